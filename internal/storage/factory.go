package storage

import (
	apperrors "github.com/copyleftdev/gridplan/internal/errors"
)

// NewStore returns an uninitialised store for kind.
func NewStore(kind, dsn string) (Store, error) {
	switch kind {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return NewSQLiteStore(dsn), nil
	default:
		return nil, apperrors.Config("storage.NewStore", "unsupported store backend: %s", kind)
	}
}
