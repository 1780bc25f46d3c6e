package store

import (
	"context"
	"sync"

	"github.com/latticehq/lattice/internal/shared/types"
)

// Memory is a mutex-guarded in-memory store. Reads return copies so
// callers cannot mutate shared state.
type Memory struct {
	mu            sync.RWMutex
	users         map[string]*types.User
	installations map[string]*types.Installation // key: userID + "\x00" + appID
	apps          map[string]*types.App
	records       map[string]interface{} // key: userID + "\x00" + appID + "\x00" + key
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		users:         make(map[string]*types.User),
		installations: make(map[string]*types.Installation),
		apps:          make(map[string]*types.App),
		records:       make(map[string]interface{}),
	}
}

func scopeKey(userID, appID string) string {
	return userID + "\x00" + appID
}

func recordKey(userID, appID, key string) string {
	return userID + "\x00" + appID + "\x00" + key
}

// PutUser seeds a user record.
func (m *Memory) PutUser(u *types.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *u
	m.users[u.ID] = &cp
}

// PutInstallation seeds or replaces a ledger row.
func (m *Memory) PutInstallation(inst *types.Installation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *inst
	cp.GrantedPerms = append([]string(nil), inst.GrantedPerms...)
	m.installations[scopeKey(inst.UserID, inst.AppID)] = &cp
}

// SetInstallationStatus flips a ledger row's status, for lifecycle tests
// and the account subsystem's uninstall path.
func (m *Memory) SetInstallationStatus(userID, appID string, status types.InstallStatus) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	inst, ok := m.installations[scopeKey(userID, appID)]
	if !ok {
		return false
	}
	inst.Status = status
	return true
}

// GetUser implements Users.
func (m *Memory) GetUser(ctx context.Context, id string) (*types.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

// GetInstallation implements Installations.
func (m *Memory) GetInstallation(ctx context.Context, userID, appID string) (*types.Installation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	inst, ok := m.installations[scopeKey(userID, appID)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *inst
	cp.GrantedPerms = append([]string(nil), inst.GrantedPerms...)
	return &cp, nil
}

// ListInstallations implements Installations.
func (m *Memory) ListInstallations(ctx context.Context, userID string, status types.InstallStatus) ([]*types.Installation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*types.Installation
	for _, inst := range m.installations {
		if inst.UserID != userID {
			continue
		}
		if status != "" && inst.Status != status {
			continue
		}
		cp := *inst
		cp.GrantedPerms = append([]string(nil), inst.GrantedPerms...)
		out = append(out, &cp)
	}
	return out, nil
}

// GetApp implements Apps.
func (m *Memory) GetApp(ctx context.Context, appID string) (*types.App, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	app, ok := m.apps[appID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *app
	return &cp, nil
}

// GetOutput implements Apps.
func (m *Memory) GetOutput(ctx context.Context, appID, outputID string) (*types.Output, error) {
	app, err := m.GetApp(ctx, appID)
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
func (m *Memory) SaveApp(ctx context.Context, app *types.App) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *app
	m.apps[app.ID] = &cp
	return nil
}

// ListApps implements Apps.
func (m *Memory) ListApps(ctx context.Context) ([]*types.App, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*types.App, 0, len(m.apps))
	for _, app := range m.apps {
		cp := *app
		out = append(out, &cp)
	}
	return out, nil
}

// GetRecord implements Records.
func (m *Memory) GetRecord(ctx context.Context, userID, appID, key string) (interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	val, ok := m.records[recordKey(userID, appID, key)]
	if !ok {
		return nil, ErrNotFound
	}
	return val, nil
}

// SetRecord implements Records.
func (m *Memory) SetRecord(ctx context.Context, userID, appID, key string, value interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[recordKey(userID, appID, key)] = value
	return nil
}

// DeleteRecord implements Records.
func (m *Memory) DeleteRecord(ctx context.Context, userID, appID, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, recordKey(userID, appID, key))
	return nil
}

// ListRecordKeys implements Records.
func (m *Memory) ListRecordKeys(ctx context.Context, userID, appID string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	prefix := userID + "\x00" + appID + "\x00"
	var keys []string
	for k := range m.records {
		if len(k) > len(prefix) && k[:len(prefix)] == prefix {
			keys = append(keys, k[len(prefix):])
		}
	}
	return keys, nil
}

// ClearRecords implements Records.
func (m *Memory) ClearRecords(ctx context.Context, userID, appID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := userID + "\x00" + appID + "\x00"
	for k := range m.records {
		if len(k) > len(prefix) && k[:len(prefix)] == prefix {
			delete(m.records, k)
		}
	}
	return nil
}

// Close implements Store.
func (m *Memory) Close() error {
	return nil
}
