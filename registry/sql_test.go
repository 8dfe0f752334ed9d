package registry

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"

	"github.com/cloudx-io/hotiron/core"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := OpenSQL(context.Background(), DriverSQLite, filepath.Join(t.TempDir(), "registry.db"))
	assert.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMigrate_SeedsDefaultSellers(t *testing.T) {
	db := openTestDB(t)

	version, err := Migrate(db, DriverSQLite, nil)
	assert.NoError(t, err)
	check.Equal(t, uint(2), version)

	sellers, err := NewSQLSource(db, DriverSQLite).Load(context.Background())
	assert.NoError(t, err)
	check.Equal(t, DefaultSellers(), sellers)
}

func TestMigrate_Idempotent(t *testing.T) {
	db := openTestDB(t)

	_, err := Migrate(db, DriverSQLite, nil)
	assert.NoError(t, err)
	version, err := Migrate(db, DriverSQLite, nil)
	assert.NoError(t, err)
	check.Equal(t, uint(2), version)
}

func TestMigrate_UnsupportedDriver(t *testing.T) {
	_, err := Migrate(openTestDB(t), "oracle", nil)
	check.Error(t, err)

	_, err = OpenSQL(context.Background(), "oracle", "")
	check.Error(t, err)
}

func TestSQLSource_UpsertAndDeactivate(t *testing.T) {
	db := openTestDB(t)
	_, err := Migrate(db, DriverSQLite, nil)
	assert.NoError(t, err)

	src := NewSQLSource(db, DriverSQLite)
	ctx := context.Background()

	newcomer := core.Seller{Name: "Big River Steel", Location: core.Point{Lat: 35.93, Lon: -89.92}, MSRP: 1000, BaseCost: 760, RiskAversion: 1.15, IsEAF: true}
	assert.NoError(t, src.Upsert(ctx, newcomer))

	updated := DefaultSellers()[0]
	updated.BaseCost = 775
	assert.NoError(t, src.Upsert(ctx, updated))

	assert.NoError(t, src.Deactivate(ctx, "Tata Steel"))
	check.Error(t, src.Deactivate(ctx, "No Such Mill"))

	r, err := Open(ctx, src, nil)
	assert.NoError(t, err)
	sellers, err := r.ListSellers(ctx)
	assert.NoError(t, err)

	check.Equal(t, 11, len(sellers))
	check.Equal(t, "Nucor", sellers[0].Name)
	check.Equal(t, 775.0, sellers[0].BaseCost)
	check.Equal(t, newcomer, sellers[len(sellers)-1])
	for _, s := range sellers {
		check.NotEqual(t, "Tata Steel", s.Name)
	}
}

func TestSQLSource_QueryFailure(t *testing.T) {
	// Without migrations the table does not exist.
	r := New(NewSQLSource(openTestDB(t), DriverSQLite), nil)
	_, err := r.Reload(context.Background())
	check.Error(t, err)
}
