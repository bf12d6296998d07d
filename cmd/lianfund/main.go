// lianfund — funding calculation and repayment lifecycle engine for the
// loan-origination CRM.
//
// Main CLI entrypoint using cobra command framework.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/mikehongyuanfan/lianfund/pkg/api"
	"github.com/mikehongyuanfan/lianfund/pkg/config"
	"github.com/mikehongyuanfan/lianfund/pkg/lending"
	"github.com/mikehongyuanfan/lianfund/pkg/notify"
	"github.com/mikehongyuanfan/lianfund/pkg/store"
)

// Build-time variables (set via -ldflags).
var (
	version = "dev"
	commit  = "unknown"
)

var cfg *config.Config

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "lianfund",
	Short: "Funding calculation and repayment lifecycle engine",
	Long: `lianfund computes loan fee breakdowns with an immutable audit trail,
generates amortized repayment schedules, and tracks each installment
through its reminder and overdue escalation milestones.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		configFile, _ := cmd.Flags().GetString("config")
		if configFile != "" {
			cfg, err = config.LoadFromFile(configFile)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file path (default: ./config.yaml)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(sweepCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("lianfund %s (commit %s)\n", version, commit)
	},
}

func newService() (*lending.Service, *store.SQLiteStore, error) {
	sqliteStore, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize SQLite store: %w", err)
	}
	svc := lending.NewService(sqliteStore, notify.LogDispatcher{}, cfg.Sweep.Workers)
	return svc, sqliteStore, nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API with a periodic escalation sweep",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, sqliteStore, err := newService()
		if err != nil {
			return err
		}
		defer sqliteStore.Close()

		// Periodic sweep alongside the API, so reminders go out even when
		// no external cron is wired up.
		interval := time.Duration(cfg.Sweep.IntervalHours) * time.Hour
		go func() {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			for range ticker.C {
				log.Println("Running escalation sweep...")
				if _, err := svc.RunEscalationSweep(context.Background(), time.Now().UTC()); err != nil {
					log.Printf("[sweep] Error: %v", err)
				}
			}
		}()

		server := api.NewServer(svc)
		log.Printf("Server starting on %s", cfg.API.Addr())
		return http.ListenAndServe(cfg.API.Addr(), server.Router())
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one escalation sweep and exit (cron entrypoint)",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, sqliteStore, err := newService()
		if err != nil {
			return err
		}
		defer sqliteStore.Close()

		today := time.Now().UTC()
		if dateStr, _ := cmd.Flags().GetString("date"); dateStr != "" {
			today, err = time.ParseInLocation("2006-01-02", dateStr, time.UTC)
			if err != nil {
				return fmt.Errorf("invalid --date, expected YYYY-MM-DD: %w", err)
			}
		}

		result, err := svc.RunEscalationSweep(cmd.Context(), today)
		if err != nil {
			return err
		}
		fmt.Printf("Sweep complete: evaluated=%d dispatched=%d duplicate_risks=%d errors=%d\n",
			result.Evaluated, len(result.Dispatched), result.DuplicateRisks, len(result.Errors))
		return nil
	},
}

func init() {
	sweepCmd.Flags().String("date", "", "reference date for the sweep (YYYY-MM-DD, default today)")
}
