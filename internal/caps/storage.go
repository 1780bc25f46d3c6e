package caps

import (
	"context"
	"errors"

	"github.com/latticehq/lattice/internal/broker"
	"github.com/latticehq/lattice/internal/store"
)

// Storage is key-value storage scoped to one (user, app) pair. Keys are
// namespaced by the bundle's identity; apps cannot reach each other's
// records.
type Storage struct {
	bundle *broker.Context
}

// NewStorage builds the storage capability for a bundle.
func NewStorage(bundle *broker.Context) broker.Storage {
	return &Storage{bundle: bundle}
}

// Get returns the stored value, or nil when the key is absent.
func (s *Storage) Get(ctx context.Context, key string) (interface{}, error) {
	val, err := s.bundle.Session().Store.GetRecord(ctx, s.bundle.UserID(), s.bundle.AppID(), key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return val, nil
}

// Set stores a value under key.
func (s *Storage) Set(ctx context.Context, key string, value interface{}) error {
	return s.bundle.Session().Store.SetRecord(ctx, s.bundle.UserID(), s.bundle.AppID(), key, value)
}

// Delete removes a key. Deleting an absent key is not an error.
func (s *Storage) Delete(ctx context.Context, key string) error {
	return s.bundle.Session().Store.DeleteRecord(ctx, s.bundle.UserID(), s.bundle.AppID(), key)
}

// List returns all keys in this scope.
func (s *Storage) List(ctx context.Context) ([]string, error) {
	return s.bundle.Session().Store.ListRecordKeys(ctx, s.bundle.UserID(), s.bundle.AppID())
}

// Clear removes every record in this scope.
func (s *Storage) Clear(ctx context.Context) error {
	return s.bundle.Session().Store.ClearRecords(ctx, s.bundle.UserID(), s.bundle.AppID())
}
