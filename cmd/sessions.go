package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zjrosen/sessionflow/internal/coordinator"
	"github.com/zjrosen/sessionflow/internal/infrastructure/sqlite"
	"github.com/zjrosen/sessionflow/internal/paths"
	"github.com/zjrosen/sessionflow/internal/presentation"
	"github.com/zjrosen/sessionflow/internal/service"
	"github.com/zjrosen/sessionflow/internal/sessions/domain"
)

var (
	listAll      bool
	listArchived bool
	listLimit    int
)

var sessionsListCmd = &cobra.Command{
	Use:   "sessions:list",
	Short: "List sessions in the store",
	Long: `List sessions as JSON, most recently updated first.

By default archived and deleted sessions are hidden.

Examples:
  # List active and idle sessions
  sessionflow sessions:list

  # Include archived sessions
  sessionflow sessions:list --archived

  # Include everything, deleted sessions too
  sessionflow sessions:list --all

  # Parse specific fields with jq
  sessionflow sessions:list | jq '.[].guid'`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(func(ctx context.Context, svc *service.SessionService) error {
			sessions, err := svc.List(domain.ListFilter{
				IncludeDeleted:  listAll,
				IncludeArchived: listAll || listArchived,
				Limit:           listLimit,
			})
			if err != nil {
				return err
			}

			formatter := presentation.NewFormatter(os.Stdout)
			return formatter.FormatSessions(presentation.FromDomainSessions(sessions))
		})
	},
}

var sessionsCreateCmd = &cobra.Command{
	Use:   "sessions:create [name]",
	Short: "Create a new session",
	Long: `Create a new idle session and print it as JSON.

Examples:
  sessionflow sessions:create "api refactor notes"
  sessionflow sessions:create   # unnamed session`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(func(ctx context.Context, svc *service.SessionService) error {
			session, err := svc.Load(ctx, coordinator.EntityNew)
			if err != nil {
				return err
			}
			if len(args) > 0 {
				session.Rename(args[0])
			}
			if err := svc.Save(ctx, session); err != nil {
				return err
			}

			formatter := presentation.NewFormatter(os.Stdout)
			return formatter.FormatSession(presentation.FromDomainSession(session))
		})
	},
}

var sessionsSwitchCmd = &cobra.Command{
	Use:   "sessions:switch <guid>",
	Short: "Make a session the active one",
	Long: `Activate the session with the given GUID. The previously active
session, if any, is demoted to idle.

Examples:
  sessionflow sessions:switch 6e5d2c
  sessionflow sessions:list | jq -r '.[0].guid' | xargs sessionflow sessions:switch`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(func(ctx context.Context, svc *service.SessionService) error {
			session, err := svc.Switch(ctx, args[0])
			if err != nil {
				return err
			}

			formatter := presentation.NewFormatter(os.Stdout)
			return formatter.FormatSession(presentation.FromDomainSession(session))
		})
	},
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "sessions:delete <guid>",
	Short: "Delete a session",
	Long: `Soft-delete the session with the given GUID. The row is kept in the
store but hidden from loads and listings.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(func(ctx context.Context, svc *service.SessionService) error {
			if err := svc.Delete(ctx, args[0]); err != nil {
				return err
			}
			fmt.Printf("deleted %s\n", args[0])
			return nil
		})
	},
}

func init() {
	sessionsListCmd.Flags().BoolVar(&listAll, "all", false, "Include archived and deleted sessions")
	sessionsListCmd.Flags().BoolVar(&listArchived, "archived", false, "Include archived sessions")
	sessionsListCmd.Flags().IntVar(&listLimit, "limit", 0, "Maximum number of sessions to return (0 = no limit)")

	rootCmd.AddCommand(sessionsListCmd)
	rootCmd.AddCommand(sessionsCreateCmd)
	rootCmd.AddCommand(sessionsSwitchCmd)
	rootCmd.AddCommand(sessionsDeleteCmd)
}

// withService opens the store, runs fn against a short-lived coordinator,
// and tears everything down. One-shot CLI commands share the daemon's code
// path so scheduling and recovery behave identically.
func withService(fn func(ctx context.Context, svc *service.SessionService) error) error {
	db, err := sqlite.NewDB(paths.ResolveStorePath(cfg.StorePath))
	if err != nil {
		return fmt.Errorf("opening session store: %w", err)
	}
	defer func() { _ = db.Close() }()

	coordCfg := coordinatorConfigFrom(cfg.Coordinator)
	coordCfg.RecoveryHook = db.IntegrityCheck

	coord := coordinator.New(coordCfg)
	ctx := context.Background()
	coord.Start(ctx)
	defer coord.Stop()

	return fn(ctx, service.NewSessionService(coord, db.SessionRepository()))
}
