package store

import (
	"path/filepath"

	"codeberg.org/mutker/sensorlog/internal/errors"
)

const (
	defaultDirPerm = 0o755
	defaultDBPath  = "/var/lib/sensorlog/sensor_data.db"
)

type Config struct {
	DBPath          string
	BackupOnMigrate bool
	// BackupDir defaults to a backups directory next to DBPath.
	BackupDir string
}

func DefaultConfig() Config {
	return Config{
		DBPath:          defaultDBPath,
		BackupOnMigrate: true,
	}
}

func (c Config) Validate() error {
	if c.DBPath == "" {
		return errors.New().New(ErrInvalidDBPath)
	}
	return nil
}

func (c Config) backupDir() string {
	if c.BackupDir != "" {
		return c.BackupDir
	}
	return filepath.Join(filepath.Dir(c.DBPath), "backups")
}
