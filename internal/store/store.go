// Package store defines the record access contracts the broker consumes:
// users, the installation ledger, app descriptors with output
// registrations, and scoped key-value records. Two implementations
// exist: SQLite for durable deployments and an in-memory store for
// tests and ephemeral runs.
package store

import (
	"context"
	"errors"

	"github.com/latticehq/lattice/internal/shared/types"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// Users reads account records. Owned by the account subsystem.
type Users interface {
	GetUser(ctx context.Context, id string) (*types.User, error)
}

// Installations reads the installation ledger. The broker never writes
// through this interface; grant and status changes belong to the
// account subsystem.
type Installations interface {
	GetInstallation(ctx context.Context, userID, appID string) (*types.Installation, error)
	ListInstallations(ctx context.Context, userID string, status types.InstallStatus) ([]*types.Installation, error)
}

// Apps reads app descriptors and output registrations. SaveApp exists
// for the manifest seeder.
type Apps interface {
	GetApp(ctx context.Context, appID string) (*types.App, error)
	GetOutput(ctx context.Context, appID, outputID string) (*types.Output, error)
	SaveApp(ctx context.Context, app *types.App) error
	ListApps(ctx context.Context) ([]*types.App, error)
}

// Records is scoped key-value storage, namespaced by (user_id, app_id).
type Records interface {
	GetRecord(ctx context.Context, userID, appID, key string) (interface{}, error)
	SetRecord(ctx context.Context, userID, appID, key string, value interface{}) error
	DeleteRecord(ctx context.Context, userID, appID, key string) error
	ListRecordKeys(ctx context.Context, userID, appID string) ([]string, error)
	ClearRecords(ctx context.Context, userID, appID string) error
}

// Store aggregates all record access behind one handle.
type Store interface {
	Users
	Installations
	Apps
	Records
	Close() error
}

// Session is the request-scoped data-access handle. One session is
// created per inbound action and shared by every bundle in that call
// chain: a callee's writes are visible to, and torn down with, the
// outer action. No nested transaction scopes.
type Session struct {
	Store Store
}

// NewSession opens a session over a store.
func NewSession(s Store) *Session {
	return &Session{Store: s}
}
