// Command referralctl is the operator tool for the referral store: it applies
// migrations and inspects or repairs referral state outside the HTTP API.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/aveksana/referrals-api/internal/app"
	"github.com/aveksana/referrals-api/internal/config"
	"github.com/aveksana/referrals-api/internal/database"
	"github.com/aveksana/referrals-api/internal/logging"
	"github.com/aveksana/referrals-api/internal/referral"
	"github.com/aveksana/referrals-api/internal/user"
)

// deps are the seams the commands are built on, replaced in tests.
type deps struct {
	loadConfig func() (*config.Config, error)
	openStore  func(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*app.Store, error)
	logger     *logging.Logger
}

func main() {
	d := deps{
		loadConfig: config.Load,
		openStore:  app.OpenStore,
		logger:     logging.NewLogger(false),
	}
	if err := newRootCmd(d).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(d deps) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "referralctl",
		Short:        "Inspect and repair referral state",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		newMigrateCmd(d),
		newSummaryCmd(d),
		newReconcileCmd(d),
		newRecordEventCmd(d),
	)
	return rootCmd
}

func newMigrateCmd(d deps) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending Postgres migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := d.loadConfig()
			if err != nil {
				return err
			}
			if cfg.Store.Driver != config.StorePostgres {
				return fmt.Errorf("migrate only applies to the postgres store, STORE_DRIVER is %q", cfg.Store.Driver)
			}

			ctx := cmd.Context()
			db, err := database.OpenPostgres(ctx, cfg.Database.ConnectionString(), database.PoolOptions{MaxOpenConns: 1})
			if err != nil {
				return err
			}
			defer db.Close()

			if err := database.Migrate(ctx, db.DB); err != nil {
				return err
			}
			version, err := database.MigrationVersion(ctx, db.DB)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema at version %d\n", version)
			return nil
		},
	}
}

func newSummaryCmd(d deps) *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Print the referrals of a referrer",
		RunE: func(cmd *cobra.Command, args []string) error {
			referrerID, err := uuid.Parse(id)
			if err != nil {
				return fmt.Errorf("invalid --id: %w", err)
			}
			return withService(cmd, d, func(ctx context.Context, svc *referral.Service) error {
				summaries, err := svc.ReadReferralSummary(ctx, referrerID)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]any{"referrals": summaries})
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "Referrer ID")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func newReconcileCmd(d deps) *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Grant milestones a referrer has earned but not received",
		RunE: func(cmd *cobra.Command, args []string) error {
			referrerID, err := uuid.Parse(id)
			if err != nil {
				return fmt.Errorf("invalid --id: %w", err)
			}
			return withService(cmd, d, func(ctx context.Context, svc *referral.Service) error {
				granted, err := svc.ReconcileMilestones(ctx, referrerID)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]any{"granted": granted})
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "Referrer ID")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func newRecordEventCmd(d deps) *cobra.Command {
	var id, email, event string
	cmd := &cobra.Command{
		Use:   "record-event",
		Short: "Record an activation event for a referred user",
		RunE: func(cmd *cobra.Command, args []string) error {
			var ref user.Ref
			switch {
			case id != "":
				parsed, err := uuid.Parse(id)
				if err != nil {
					return fmt.Errorf("invalid --id: %w", err)
				}
				ref = user.ByID(parsed)
			case email != "":
				ref = user.ByEmail(email)
			default:
				return errors.New("one of --id or --email is required")
			}

			return withService(cmd, d, func(ctx context.Context, svc *referral.Service) error {
				result, err := svc.RecordActivationEvent(ctx, ref, event, map[string]any{"source": "referralctl"})
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), result)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "Referred user ID")
	cmd.Flags().StringVar(&email, "email", "", "Referred user email")
	cmd.Flags().StringVar(&event, "event", "", "Event name")
	cmd.MarkFlagsMutuallyExclusive("id", "email")
	_ = cmd.MarkFlagRequired("event")
	return cmd
}

// withService opens the configured store for the duration of fn.
func withService(cmd *cobra.Command, d deps, fn func(ctx context.Context, svc *referral.Service) error) error {
	cfg, err := d.loadConfig()
	if err != nil {
		return err
	}
	cfg.Store.MigrateOnStart = false

	ctx := cmd.Context()
	store, err := d.openStore(ctx, cfg, d.logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			d.logger.Error("failed to close store", "error", err.Error())
		}
	}()

	return fn(ctx, referral.NewService(store.Users, referral.RulesFromConfig(cfg.Referral), d.logger))
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
