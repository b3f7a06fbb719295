package storage

import (
	"strings"

	"github.com/smartdevs17/stablevault-keeper/pkg/utils"
)

// NewStorage creates a storage instance based on configuration
func NewStorage(cfg *StorageConfig) (Storage, error) {
	switch strings.ToLower(cfg.Type) {
	case "sqlite":
		return NewSQLiteStorage(cfg), nil
	case "postgres", "postgresql":
		return NewPostgreSQLStorage(cfg), nil
	default:
		return nil, utils.NewAppError(utils.ErrCodeConfiguration,
			"Unsupported storage type", cfg.Type)
	}
}
