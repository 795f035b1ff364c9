// Command membersctl runs operational tasks against the membership store:
// schema migration, debt lookups, debt reports and the approval queue.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/warp/membership-engine/api"
	"github.com/warp/membership-engine/config"
	"github.com/warp/membership-engine/generic"
	"github.com/warp/membership-engine/logger"
	"github.com/warp/membership-engine/store/sqlstore"
)

var Version = "dev"

var (
	configPath string
	dbPath     string
)

func main() {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:           "membersctl",
		Short:         "Membership engine operations",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config file")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database path (overrides config)")

	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(debtCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(pendingCmd)
	rootCmd.AddCommand(digestCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// env is the wired application a command runs against.
type env struct {
	cfg      *config.Config
	store    *sqlstore.Store
	services api.Services
	clock    generic.Clock
}

func openEnv() (*env, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if dbPath != "" {
		cfg.Database.Driver = sqlstore.DriverSQLite
		cfg.Database.DSN = dbPath
	}
	logger.Initialize(cfg.Log.Level, cfg.Log.Format)

	due, err := cfg.MonthlyDue()
	if err != nil {
		return nil, err
	}
	store, err := sqlstore.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}

	clock := generic.SystemClock{}
	return &env{
		cfg:      cfg,
		store:    store,
		services: api.NewServices(store, clock, due),
		clock:    clock,
	}, nil
}

func (e *env) Close() {
	if err := e.store.Close(); err != nil {
		logger.Warn("Failed to close store", "error", err)
	}
}

// periodFlags resolves --year/--month, defaulting to the current period.
func periodFlags(clock generic.Clock, year, month int) (generic.Period, error) {
	if year == 0 && month == 0 {
		return generic.PeriodOf(clock.Now()), nil
	}
	return generic.NewPeriod(year, month)
}
