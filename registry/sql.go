package registry

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/cloudx-io/hotiron/core"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Supported database/sql driver names.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
)

const listSellersQuery = `
SELECT name, lat, lon, msrp, base_cost, risk_aversion, is_eaf
FROM sellers
WHERE active
ORDER BY position, name`

// SQLSource loads sellers from a relational database.
type SQLSource struct {
	db     *sql.DB
	driver string
}

// OpenSQL opens a database with one of the supported drivers and verifies the
// connection.
func OpenSQL(ctx context.Context, driver, dsn string) (*sql.DB, error) {
	switch driver {
	case DriverSQLite, DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported registry driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if driver == DriverSQLite {
		// Every connection to ":memory:" is a separate database.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// NewSQLSource wraps an open database.
func NewSQLSource(db *sql.DB, driver string) *SQLSource {
	return &SQLSource{db: db, driver: driver}
}

func (s *SQLSource) Name() string { return "sql:" + s.driver }

func (s *SQLSource) Load(ctx context.Context) ([]core.Seller, error) {
	rows, err := s.db.QueryContext(ctx, listSellersQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to query sellers: %w", err)
	}
	defer rows.Close()

	var sellers []core.Seller
	for rows.Next() {
		var seller core.Seller
		if err := rows.Scan(
			&seller.Name,
			&seller.Location.Lat,
			&seller.Location.Lon,
			&seller.MSRP,
			&seller.BaseCost,
			&seller.RiskAversion,
			&seller.IsEAF,
		); err != nil {
			return nil, fmt.Errorf("failed to scan seller: %w", err)
		}
		sellers = append(sellers, seller)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sellers: %w", err)
	}
	return sellers, nil
}

// Migrate applies the embedded schema migrations. It returns the resulting
// schema version; an already current schema is not an error.
func Migrate(db *sql.DB, driver string, logger *zap.Logger) (uint, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return 0, fmt.Errorf("failed to open migrations: %w", err)
	}

	var m *migrate.Migrate
	switch driver {
	case DriverSQLite:
		dbDriver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
		if err != nil {
			return 0, fmt.Errorf("failed to create sqlite migration driver: %w", err)
		}
		m, err = migrate.NewWithInstance("iofs", src, "sqlite", dbDriver)
		if err != nil {
			return 0, fmt.Errorf("failed to create migrator: %w", err)
		}
	case DriverPostgres:
		dbDriver, err := migratepgx.WithInstance(db, &migratepgx.Config{})
		if err != nil {
			return 0, fmt.Errorf("failed to create pgx migration driver: %w", err)
		}
		m, err = migrate.NewWithInstance("iofs", src, "pgx5", dbDriver)
		if err != nil {
			return 0, fmt.Errorf("failed to create migrator: %w", err)
		}
	default:
		return 0, fmt.Errorf("unsupported registry driver %q", driver)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("failed to apply migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	if dirty {
		return version, fmt.Errorf("schema version %d is dirty", version)
	}

	logger.Info("Registry schema migrated",
		zap.String("driver", driver),
		zap.Uint("version", version))
	return version, nil
}

// Upsert inserts or updates one seller by name. New sellers are appended
// after the existing ones.
func (s *SQLSource) Upsert(ctx context.Context, seller core.Seller) error {
	const q = `
INSERT INTO sellers (name, position, lat, lon, msrp, base_cost, risk_aversion, is_eaf, active)
VALUES ($1, (SELECT COALESCE(MAX(position), 0) + 1 FROM sellers), $2, $3, $4, $5, $6, $7, TRUE)
ON CONFLICT (name) DO UPDATE SET
	lat = excluded.lat,
	lon = excluded.lon,
	msrp = excluded.msrp,
	base_cost = excluded.base_cost,
	risk_aversion = excluded.risk_aversion,
	is_eaf = excluded.is_eaf,
	active = TRUE`

	_, err := s.db.ExecContext(ctx, s.rebind(q),
		seller.Name,
		seller.Location.Lat,
		seller.Location.Lon,
		seller.MSRP,
		seller.BaseCost,
		seller.RiskAversion,
		seller.IsEAF,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert seller %q: %w", seller.Name, err)
	}
	return nil
}

// Deactivate hides a seller from future snapshots without deleting its row.
func (s *SQLSource) Deactivate(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`UPDATE sellers SET active = FALSE WHERE name = $1`), name)
	if err != nil {
		return fmt.Errorf("failed to deactivate seller %q: %w", name, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("seller %q not found", name)
	}
	return nil
}

// rebind rewrites $N placeholders to ?N for SQLite.
func (s *SQLSource) rebind(q string) string {
	if s.driver != DriverSQLite {
		return q
	}
	return strings.ReplaceAll(q, "$", "?")
}
