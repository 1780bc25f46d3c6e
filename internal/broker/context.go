package broker

import (
	"context"
	"sync"
	"time"

	"github.com/latticehq/lattice/internal/infrastructure/logging"
	"github.com/latticehq/lattice/internal/shared/id"
	"github.com/latticehq/lattice/internal/shared/types"
	"github.com/latticehq/lattice/internal/store"
	"go.uber.org/zap"
)

// Storage is scoped key-value storage for one (user, app) pair.
type Storage interface {
	Get(ctx context.Context, key string) (interface{}, error)
	Set(ctx context.Context, key string, value interface{}) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) ([]string, error)
	Clear(ctx context.Context) error
}

// Files is a per-(user, app) file sandbox.
type Files interface {
	Read(ctx context.Context, name string) ([]byte, error)
	Write(ctx context.Context, name string, data []byte) error
	List(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, name string) error
	ContentType(ctx context.Context, name string) (string, error)
	Export(ctx context.Context) ([]byte, error)
}

// Notifications publishes user-visible messages tagged with the
// emitting app.
type Notifications interface {
	Send(ctx context.Context, title, body string) error
}

// Schedule registers deferred entry-point invocations.
type Schedule interface {
	At(t time.Time, method string, params map[string]interface{}) (string, error)
	Every(interval time.Duration, method string, params map[string]interface{}) (string, error)
	Cancel(jobID string) bool
}

// AI completes prompts through the platform's inference service.
type AI interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Integrations performs outbound third-party HTTP calls.
type Integrations interface {
	Request(ctx context.Context, method, url string, body interface{}) (map[string]interface{}, error)
}

// Builders constructs sub-capabilities for a bundle. Injected into the
// factory at startup; each builder is called at most once per bundle.
type Builders struct {
	Storage       func(bc *Context) Storage
	Files         func(bc *Context) Files
	Notifications func(bc *Context) Notifications
	Schedule      func(bc *Context) Schedule
	AI            func(bc *Context) AI
	Integrations  func(bc *Context) Integrations
}

// Context is the capability bundle app code receives: the single point
// of contact between one unit of app code and the platform. Its
// (user, app) binding is immutable after construction. A bundle never
// outlives the action that created it and is never persisted.
type Context struct {
	userID   string
	appID    string
	session  *store.Session
	userInfo *types.UserInfo
	factory  *Factory
	logger   *logging.Logger

	mu   sync.Mutex
	caps map[string]interface{} // built-once sub-capabilities
}

// UserID returns the bound user id.
func (c *Context) UserID() string { return c.userID }

// AppID returns the bound app id.
func (c *Context) AppID() string { return c.appID }

// Session returns the shared data-access handle for this call chain.
func (c *Context) Session() *store.Session { return c.session }

// User returns the resolved user identity. Fails if the factory did not
// populate it, which only happens if a bundle is built outside Create.
func (c *Context) User() (types.UserInfo, error) {
	if c.userInfo == nil {
		return types.UserInfo{}, ErrUserInfoMissing
	}
	return *c.userInfo, nil
}

// NewID generates a fresh unique identifier.
func (c *Context) NewID() string {
	return id.New()
}

// Now returns the current time.
func (c *Context) Now() time.Time {
	return time.Now()
}

// Log appends a structured log entry tagged with this bundle's
// (user, app) pair.
func (c *Context) Log(msg string, fields ...zap.Field) {
	c.logger.Info(msg, fields...)
}

// capability returns the named sub-capability, building it on first
// access. Each capability is constructed at most once per bundle.
func (c *Context) capability(name string, build func() interface{}) interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cached, ok := c.caps[name]; ok {
		return cached
	}
	built := build()
	c.caps[name] = built
	return built
}

// Storage returns the scoped key-value capability.
func (c *Context) Storage() Storage {
	return c.capability("storage", func() interface{} {
		return c.factory.builders.Storage(c)
	}).(Storage)
}

// Files returns the scoped file sandbox capability.
func (c *Context) Files() Files {
	return c.capability("files", func() interface{} {
		return c.factory.builders.Files(c)
	}).(Files)
}

// Notifications returns the notification capability.
func (c *Context) Notifications() Notifications {
	return c.capability("notifications", func() interface{} {
		return c.factory.builders.Notifications(c)
	}).(Notifications)
}

// Schedule returns the scheduling capability.
func (c *Context) Schedule() Schedule {
	return c.capability("schedule", func() interface{} {
		return c.factory.builders.Schedule(c)
	}).(Schedule)
}

// AI returns the model inference capability.
func (c *Context) AI() AI {
	return c.capability("ai", func() interface{} {
		return c.factory.builders.AI(c)
	}).(AI)
}

// Integrations returns the outbound HTTP capability.
func (c *Context) Integrations() Integrations {
	return c.capability("integrations", func() interface{} {
		return c.factory.builders.Integrations(c)
	}).(Integrations)
}

// Apps returns the inter-app capability.
func (c *Context) Apps() *Apps {
	return c.capability("apps", func() interface{} {
		return &Apps{bundle: c, factory: c.factory}
	}).(*Apps)
}
