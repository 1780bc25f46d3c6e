package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/latticehq/lattice/internal/shared/types"

	_ "modernc.org/sqlite"
)

// SQLite persists platform records in a single SQLite database.
type SQLite struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
  id          TEXT PRIMARY KEY,
  email       TEXT NOT NULL,
  name        TEXT NOT NULL DEFAULT '',
  timezone    TEXT NOT NULL DEFAULT 'UTC',
  preferences TEXT NOT NULL DEFAULT '{}',
  created_at  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS installations (
  id                  TEXT PRIMARY KEY,
  user_id             TEXT NOT NULL,
  app_id              TEXT NOT NULL,
  status              TEXT NOT NULL,
  granted_permissions TEXT NOT NULL DEFAULT '[]',
  installed_version   TEXT NOT NULL DEFAULT '',
  installed_at        INTEGER NOT NULL,
  last_used_at        INTEGER,
  UNIQUE (user_id, app_id)
);

CREATE INDEX IF NOT EXISTS idx_installations_user ON installations (user_id, status);

CREATE TABLE IF NOT EXISTS apps (
  id         TEXT PRIMARY KEY,
  name       TEXT NOT NULL DEFAULT '',
  version    TEXT NOT NULL DEFAULT '',
  manifest   TEXT NOT NULL DEFAULT '{}',
  module_ref TEXT NOT NULL DEFAULT '',
  created_at INTEGER NOT NULL,
  updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS records (
  user_id    TEXT NOT NULL,
  app_id     TEXT NOT NULL,
  key        TEXT NOT NULL,
  value      TEXT NOT NULL,
  updated_at INTEGER NOT NULL,
  PRIMARY KEY (user_id, app_id, key)
);
`

// OpenSQLite opens the database and applies the schema.
func OpenSQLite(path string) (*SQLite, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("store path is required")
	}
	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Close closes the SQLite handle.
func (s *SQLite) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(v int64) time.Time {
	return time.UnixMilli(v).UTC()
}

// GetUser implements Users.
func (s *SQLite) GetUser(ctx context.Context, id string) (*types.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, email, name, timezone, preferences, created_at FROM users WHERE id = ?`, id)

	var u types.User
	var prefs string
	var createdAt int64
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Timezone, &prefs, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	if err := sonic.UnmarshalString(prefs, &u.Preferences); err != nil {
		return nil, fmt.Errorf("decode preferences for user %s: %w", id, err)
	}
	u.CreatedAt = fromMillis(createdAt)
	return &u, nil
}

// SaveUser upserts a user record. Used by provisioning, not the broker.
func (s *SQLite) SaveUser(ctx context.Context, u *types.User) error {
	prefs, err := sonic.MarshalString(u.Preferences)
	if err != nil {
		return fmt.Errorf("encode preferences: %w", err)
	}
	createdAt := u.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO users (id, email, name, timezone, preferences, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   email = excluded.email, name = excluded.name,
		   timezone = excluded.timezone, preferences = excluded.preferences`,
		u.ID, u.Email, u.Name, u.Timezone, prefs, toMillis(createdAt))
	if err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	return nil
}

func scanInstallation(scan func(...interface{}) error) (*types.Installation, error) {
	var inst types.Installation
	var perms string
	var installedAt int64
	var lastUsedAt sql.NullInt64
	if err := scan(&inst.ID, &inst.UserID, &inst.AppID, &inst.Status, &perms,
		&inst.InstalledVersion, &installedAt, &lastUsedAt); err != nil {
		return nil, err
	}
	if err := sonic.UnmarshalString(perms, &inst.GrantedPerms); err != nil {
		return nil, fmt.Errorf("decode granted permissions: %w", err)
	}
	inst.InstalledAt = fromMillis(installedAt)
	if lastUsedAt.Valid {
		t := fromMillis(lastUsedAt.Int64)
		inst.LastUsedAt = &t
	}
	return &inst, nil
}

const installationColumns = `id, user_id, app_id, status, granted_permissions, installed_version, installed_at, last_used_at`

// GetInstallation implements Installations.
func (s *SQLite) GetInstallation(ctx context.Context, userID, appID string) (*types.Installation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+installationColumns+` FROM installations WHERE user_id = ? AND app_id = ?`,
		userID, appID)
	inst, err := scanInstallation(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan installation: %w", err)
	}
	return inst, nil
}

// ListInstallations implements Installations.
func (s *SQLite) ListInstallations(ctx context.Context, userID string, status types.InstallStatus) ([]*types.Installation, error) {
	query := `SELECT ` + installationColumns + ` FROM installations WHERE user_id = ?`
	args := []interface{}{userID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, string(status))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list installations: %w", err)
	}
	defer rows.Close()

	var out []*types.Installation
	for rows.Next() {
		inst, err := scanInstallation(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan installation: %w", err)
		}
		out = append(out, inst)
	}
	return out, rows.Err()
}

// SaveInstallation upserts a ledger row. Used by provisioning, not the broker.
func (s *SQLite) SaveInstallation(ctx context.Context, inst *types.Installation) error {
	perms, err := sonic.MarshalString(inst.GrantedPerms)
	if err != nil {
		return fmt.Errorf("encode granted permissions: %w", err)
	}
	installedAt := inst.InstalledAt
	if installedAt.IsZero() {
		installedAt = time.Now()
	}
	var lastUsedAt interface{}
	if inst.LastUsedAt != nil {
		lastUsedAt = toMillis(*inst.LastUsedAt)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO installations (`+installationColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (user_id, app_id) DO UPDATE SET
		   status = excluded.status,
		   granted_permissions = excluded.granted_permissions,
		   installed_version = excluded.installed_version,
		   last_used_at = excluded.last_used_at`,
		inst.ID, inst.UserID, inst.AppID, string(inst.Status), perms,
		inst.InstalledVersion, toMillis(installedAt), lastUsedAt)
	if err != nil {
		return fmt.Errorf("save installation: %w", err)
	}
	return nil
}

// GetApp implements Apps.
func (s *SQLite) GetApp(ctx context.Context, appID string) (*types.App, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, version, manifest, module_ref, created_at, updated_at FROM apps WHERE id = ?`, appID)

	var app types.App
	var manifest string
	var createdAt, updatedAt int64
	if err := row.Scan(&app.ID, &app.Name, &app.Version, &manifest, &app.ModuleRef, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan app: %w", err)
	}
	if err := sonic.UnmarshalString(manifest, &app.Manifest); err != nil {
		return nil, fmt.Errorf("decode manifest for app %s: %w", appID, err)
	}
	app.CreatedAt = fromMillis(createdAt)
	app.UpdatedAt = fromMillis(updatedAt)
	return &app, nil
}

// GetOutput implements Apps.
func (s *SQLite) GetOutput(ctx context.Context, appID, outputID string) (*types.Output, error) {
	app, err := s.GetApp(ctx, appID)
	if err != nil {
		return nil, err
	}
	for _, out := range app.Manifest.Outputs {
		if out.OutputID == outputID {
			cp := out
			cp.AppID = appID
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

// SaveApp implements Apps.
func (s *SQLite) SaveApp(ctx context.Context, app *types.App) error {
	if app.ID == "" {
		return fmt.Errorf("app ID is required")
	}
	manifest, err := sonic.MarshalString(app.Manifest)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	now := time.Now()
	createdAt := app.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO apps (id, name, version, manifest, module_ref, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   name = excluded.name, version = excluded.version,
		   manifest = excluded.manifest, module_ref = excluded.module_ref,
		   updated_at = excluded.updated_at`,
		app.ID, app.Name, app.Version, manifest, app.ModuleRef,
		toMillis(createdAt), toMillis(now))
	if err != nil {
		return fmt.Errorf("save app: %w", err)
	}
	return nil
}

// ListApps implements Apps.
func (s *SQLite) ListApps(ctx context.Context) ([]*types.App, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, version, manifest, module_ref, created_at, updated_at FROM apps`)
	if err != nil {
		return nil, fmt.Errorf("list apps: %w", err)
	}
	defer rows.Close()

	var out []*types.App
	for rows.Next() {
		var app types.App
		var manifest string
		var createdAt, updatedAt int64
		if err := rows.Scan(&app.ID, &app.Name, &app.Version, &manifest, &app.ModuleRef, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan app: %w", err)
		}
		if err := sonic.UnmarshalString(manifest, &app.Manifest); err != nil {
			return nil, fmt.Errorf("decode manifest for app %s: %w", app.ID, err)
		}
		app.CreatedAt = fromMillis(createdAt)
		app.UpdatedAt = fromMillis(updatedAt)
		out = append(out, &app)
	}
	return out, rows.Err()
}

// GetRecord implements Records.
func (s *SQLite) GetRecord(ctx context.Context, userID, appID, key string) (interface{}, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT value FROM records WHERE user_id = ? AND app_id = ? AND key = ?`,
		userID, appID, key)

	var raw string
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan record: %w", err)
	}
	var value interface{}
	if err := sonic.UnmarshalString(raw, &value); err != nil {
		return nil, fmt.Errorf("decode record %s: %w", key, err)
	}
	return value, nil
}

// SetRecord implements Records.
func (s *SQLite) SetRecord(ctx context.Context, userID, appID, key string, value interface{}) error {
	raw, err := sonic.MarshalString(value)
	if err != nil {
		return fmt.Errorf("encode record %s: %w", key, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO records (user_id, app_id, key, value, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (user_id, app_id, key) DO UPDATE SET
		   value = excluded.value, updated_at = excluded.updated_at`,
		userID, appID, key, raw, toMillis(time.Now()))
	if err != nil {
		return fmt.Errorf("set record: %w", err)
	}
	return nil
}

// DeleteRecord implements Records.
func (s *SQLite) DeleteRecord(ctx context.Context, userID, appID, key string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM records WHERE user_id = ? AND app_id = ? AND key = ?`,
		userID, appID, key)
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	return nil
}

// ListRecordKeys implements Records.
func (s *SQLite) ListRecordKeys(ctx context.Context, userID, appID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key FROM records WHERE user_id = ? AND app_id = ? ORDER BY key`,
		userID, appID)
	if err != nil {
		return nil, fmt.Errorf("list record keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan record key: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// ClearRecords implements Records.
func (s *SQLite) ClearRecords(ctx context.Context, userID, appID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM records WHERE user_id = ? AND app_id = ?`,
		userID, appID)
	if err != nil {
		return fmt.Errorf("clear records: %w", err)
	}
	return nil
}
