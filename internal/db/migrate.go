package db

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/banshee-data/helm/internal/monitoring"
)

// migrator builds a migrate instance over the open connection. The instance
// is never closed because that would close the shared *sql.DB.
func (db *DB) migrator(migrations fs.FS) (*migrate.Migrate, error) {
	src, err := iofs.New(migrations, ".")
	if err != nil {
		return nil, fmt.Errorf("open migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(db.DB, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("sqlite migrate driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("migrate instance: %w", err)
	}
	m.Log = migrateLog{}
	return m, nil
}

// migrateWith runs step and treats ErrNoChange as success.
func (db *DB) migrateWith(migrations fs.FS, what string, step func(*migrate.Migrate) error) error {
	m, err := db.migrator(migrations)
	if err != nil {
		return err
	}
	if err := step(m); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("%s: %w", what, err)
	}
	return nil
}

// MigrateUp applies every pending migration.
func (db *DB) MigrateUp(migrations fs.FS) error {
	return db.migrateWith(migrations, "migrate up", (*migrate.Migrate).Up)
}

// MigrateDown rolls back the most recent migration.
func (db *DB) MigrateDown(migrations fs.FS) error {
	return db.migrateWith(migrations, "migrate down", func(m *migrate.Migrate) error { return m.Steps(-1) })
}

// MigrateTo moves the schema up or down to version.
func (db *DB) MigrateTo(migrations fs.FS, version uint) error {
	return db.migrateWith(migrations, fmt.Sprintf("migrate to %d", version), func(m *migrate.Migrate) error {
		return m.Migrate(version)
	})
}

// MigrateForce sets the recorded version without running anything. It is
// only for recovering from a dirty state.
func (db *DB) MigrateForce(migrations fs.FS, version int) error {
	return db.migrateWith(migrations, fmt.Sprintf("force version %d", version), func(m *migrate.Migrate) error {
		return m.Force(version)
	})
}

// MigrateVersion reports the applied version, or 0 when nothing has been
// applied yet.
func (db *DB) MigrateVersion(migrations fs.FS) (uint, bool, error) {
	m, err := db.migrator(migrations)
	if err != nil {
		return 0, false, err
	}
	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return v, dirty, err
}

type migrateLog struct{}

func (migrateLog) Printf(format string, v ...interface{}) { monitoring.Logf("[migrate] "+format, v...) }
func (migrateLog) Verbose() bool                          { return false }

// MigrationStatus is what `helm migrate status` prints.
type MigrationStatus struct {
	CurrentVersion uint `json:"current_version"`
	LatestVersion  uint `json:"latest_version"`
	Dirty          bool `json:"dirty"`
}

func (s MigrationStatus) Pending() bool { return s.CurrentVersion < s.LatestVersion }

func (db *DB) GetMigrationStatus(migrations fs.FS) (MigrationStatus, error) {
	var st MigrationStatus
	var err error
	if st.CurrentVersion, st.Dirty, err = db.MigrateVersion(migrations); err != nil {
		return MigrationStatus{}, fmt.Errorf("read migration version: %w", err)
	}
	if st.LatestVersion, err = GetLatestMigrationVersion(migrations); err != nil {
		return MigrationStatus{}, err
	}
	return st, nil
}

// GetLatestMigrationVersion returns the highest NNNNNN prefix among the
// *.up.sql files in migrations.
func GetLatestMigrationVersion(migrations fs.FS) (uint, error) {
	names, err := fs.Glob(migrations, "*.up.sql")
	if err != nil {
		return 0, fmt.Errorf("list migrations: %w", err)
	}
	var latest uint
	for _, name := range names {
		prefix, _, ok := strings.Cut(path.Base(name), "_")
		if !ok {
			continue
		}
		if v, err := strconv.ParseUint(prefix, 10, 32); err == nil && uint(v) > latest {
			latest = uint(v)
		}
	}
	if latest == 0 {
		return 0, errors.New("no numbered migration files found")
	}
	return latest, nil
}
