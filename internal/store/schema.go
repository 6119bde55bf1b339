package store

import (
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"codeberg.org/mutker/sensorlog/internal/errors"
	"codeberg.org/mutker/sensorlog/internal/logger"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// SchemaVersion is the newest migration shipped in migrations/.
const SchemaVersion = 2

//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	recordColumns = `id, timestamp,
        accel_x, accel_y, accel_z,
        gyro_roll, gyro_pitch, gyro_yaw,
        gps_lat, gps_lon, uv_index, temperature`

	insertRecordSQL = `
    INSERT INTO sensor_data (
        timestamp,
        accel_x, accel_y, accel_z,
        gyro_roll, gyro_pitch, gyro_yaw,
        gps_lat, gps_lon, uv_index, temperature
    ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	maxIDSQL = `SELECT COALESCE(MAX(id), 0) FROM sensor_data`

	queryAfterSQL = `SELECT ` + recordColumns + `
    FROM sensor_data
    WHERE id > ?
    ORDER BY id ASC`

	queryRangeAscSQL = `SELECT ` + recordColumns + `
    FROM sensor_data
    WHERE timestamp BETWEEN ? AND ?
    ORDER BY timestamp ASC, id ASC`

	queryRangeDescSQL = `SELECT ` + recordColumns + `
    FROM sensor_data
    WHERE timestamp BETWEEN ? AND ?
    ORDER BY timestamp DESC, id DESC`

	statsSQL = `
    SELECT COUNT(*),
           MIN(temperature), MAX(temperature), AVG(temperature),
           MIN(uv_index), MAX(uv_index), AVG(uv_index)
    FROM sensor_data
    WHERE timestamp BETWEEN ? AND ?`
)

// migrateLogger routes golang-migrate output through the store logger.
type migrateLogger struct {
	log logger.Logger
}

func (l migrateLogger) Printf(format string, v ...interface{}) {
	l.log.Debug().Msgf(strings.TrimSpace(format), v...)
}

func (migrateLogger) Verbose() bool {
	return false
}

func newMigrate(db *sql.DB, log logger.Logger) (*migrate.Migrate, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}

	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create sqlite3 driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = migrateLogger{log: log}

	return m, nil
}

// migrateSchema brings the database to SchemaVersion. It is idempotent. An
// existing database at an older version is backed up first when enabled.
// The migrate instance is not closed since that would close db.
func migrateSchema(db *sql.DB, cfg Config, log logger.Logger) error {
	errFactory := errors.New()

	m, err := newMigrate(db, log)
	if err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}

	log.Debug().
		Uint("version", version).
		Bool("dirty", dirty).
		Bool("init_db", version == 0).
		Msg("Current schema version")

	if dirty {
		return errFactory.WithData(ErrSchemaMigrationFailed, struct {
			Phase   string
			Version uint
		}{
			Phase:   "dirty_schema",
			Version: version,
		})
	}

	if version == SchemaVersion {
		log.Debug().Uint("version", version).Msg("Schema version is current")
		return nil
	}

	if version != 0 && version < SchemaVersion && cfg.BackupOnMigrate {
		if _, err := backupDatabase(db, cfg.backupDir(), version, log); err != nil {
			return err
		}
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return errFactory.WithData(ErrSchemaMigrationFailed, struct {
			Phase string
			From  uint
			Error string
		}{
			Phase: "migrate_up",
			From:  version,
			Error: err.Error(),
		})
	}

	log.Info().
		Uint("from", version).
		Int("to", SchemaVersion).
		Msg("Schema migrated")

	return nil
}

func schemaVersion(db *sql.DB, log logger.Logger) (uint, bool, error) {
	m, err := newMigrate(db, log)
	if err != nil {
		return 0, false, errors.New().Wrap(ErrStorageAccess, err)
	}

	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, errors.New().Wrap(ErrStorageAccess, err)
	}
	return version, dirty, nil
}

func backupDatabase(db *sql.DB, dir string, version uint, log logger.Logger) (string, error) {
	errFactory := errors.New()

	if err := os.MkdirAll(dir, defaultDirPerm); err != nil {
		return "", errFactory.WithData(ErrBackupFailed, struct {
			Phase string
			Path  string
			Error string
		}{
			Phase: "create_backup_dir",
			Path:  dir,
			Error: err.Error(),
		})
	}

	timestamp := time.Now().UTC().Format("20060102T150405Z")
	backupPath := filepath.Join(dir, fmt.Sprintf("sensor_data_v%d_%s.db", version, timestamp))

	// VACUUM INTO requires no active transaction
	if _, err := db.Exec("VACUUM INTO ?", backupPath); err != nil {
		return "", errFactory.WithData(ErrBackupFailed, struct {
			Phase string
			Path  string
			Error string
		}{
			Phase: "create_backup",
			Path:  backupPath,
			Error: err.Error(),
		})
	}

	log.Info().
		Str("path", backupPath).
		Uint("version", version).
		Msg("Database backup created")

	return backupPath, nil
}
