package store

import "codeberg.org/mutker/sensorlog/internal/errors"

const (
	// Configuration Errors
	ErrInvalidConfig = errors.ErrInvalidConfig
	ErrInvalidDBPath = errors.ErrorCode("store_invalid_db_path")
	ErrInvalidOrder  = errors.ErrorCode("store_invalid_order")

	// Schema Errors
	ErrSchemaInitFailed      = errors.ErrorCode("store_schema_init_failed")
	ErrSchemaMigrationFailed = errors.ErrorCode("store_schema_migration_failed")
	ErrBackupFailed          = errors.ErrorCode("store_backup_failed")

	// Storage Errors
	ErrStorageInit   = errors.ErrorCode("store_init_failed")
	ErrStorageAccess = errors.ErrorCode("store_access_failed")
	ErrInsertFailed  = errors.ErrorCode("store_insert_failed")
	ErrQueryFailed   = errors.ErrorCode("store_query_failed")
	ErrStorageClose  = errors.ErrorCode("store_close_failed")
	ErrStoreClosed   = errors.ErrorCode("store_closed")
)

func init() {
	errors.RegisterMessages(map[errors.ErrorCode]string{
		ErrInvalidDBPath:         "Invalid database path",
		ErrInvalidOrder:          "Invalid sort order",
		ErrSchemaInitFailed:      "Failed to initialize schema",
		ErrSchemaMigrationFailed: "Failed to migrate schema",
		ErrBackupFailed:          "Failed to back up database",
		ErrStorageInit:           "Failed to open telemetry store",
		ErrStorageAccess:         "Telemetry store access failed",
		ErrInsertFailed:          "Failed to insert record",
		ErrQueryFailed:           "Failed to query records",
		ErrStorageClose:          "Failed to close telemetry store",
		ErrStoreClosed:           "Telemetry store is closed",
	})
}

// IsStorageError reports whether err came from a store read or write.
func IsStorageError(err error) bool {
	return errors.HasCode(err,
		ErrSchemaInitFailed, ErrSchemaMigrationFailed, ErrBackupFailed,
		ErrStorageInit, ErrStorageAccess, ErrInsertFailed, ErrQueryFailed,
		ErrStorageClose, ErrStoreClosed,
	)
}
