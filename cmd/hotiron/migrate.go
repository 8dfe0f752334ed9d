package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cloudx-io/hotiron/registry"
)

var (
	migrateDriver string
	migrateDSN    string
	migrateSeed   bool
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply seller registry database migrations",
	Long: `Applies the embedded schema migrations to the SQL seller registry. With
--seed the built-in sellers are upserted afterwards.`,
	Args: cobra.NoArgs,
	RunE: runMigrate,
}

func init() {
	migrateCmd.Flags().StringVar(&migrateDriver, "driver", "", "Database driver: sqlite or pgx (default from config)")
	migrateCmd.Flags().StringVar(&migrateDSN, "dsn", "", "Database DSN (default from config)")
	migrateCmd.Flags().BoolVar(&migrateSeed, "seed", false, "Upsert the built-in sellers")
}

// openRegistryDB opens the SQL registry named by the flags, falling back to
// registry.driver and registry.dsn.
func openRegistryDB(ctx context.Context, driverFlag, dsnFlag string) (*sql.DB, string, error) {
	driver, dsn := cfg.Registry.Driver, cfg.Registry.DSN
	if driverFlag != "" {
		driver = driverFlag
	}
	if dsnFlag != "" {
		dsn = dsnFlag
	}
	if dsn == "" {
		return nil, "", usageError(errors.New("no database DSN: set --dsn or registry.dsn"))
	}
	db, err := registry.OpenSQL(ctx, driver, dsn)
	if err != nil {
		return nil, "", err
	}
	return db, driver, nil
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	db, driver, err := openRegistryDB(ctx, migrateDriver, migrateDSN)
	if err != nil {
		return err
	}
	defer db.Close()

	version, err := registry.Migrate(db, driver, logger.Named("migrate"))
	if err != nil {
		return err
	}

	seeded := 0
	if migrateSeed {
		source := registry.NewSQLSource(db, driver)
		for _, s := range registry.DefaultSellers() {
			if err := source.Upsert(ctx, s); err != nil {
				return fmt.Errorf("seed %s: %w", s.Name, err)
			}
			seeded++
		}
	}

	logger.Info("Registry database ready",
		zap.String("driver", driver),
		zap.Uint("version", version),
		zap.Int("seeded", seeded))
	fmt.Fprintln(cmd.OutOrStdout(), passStyle.Render(fmt.Sprintf("Schema at version %d", version)))
	return nil
}
