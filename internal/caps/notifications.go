package caps

import (
	"context"

	"github.com/latticehq/lattice/internal/broker"
	"github.com/latticehq/lattice/internal/shared/id"
	"github.com/latticehq/lattice/internal/ws"
)

// Notifications publishes messages to the bundle's user through the
// WebSocket hub, tagged with the emitting app.
type Notifications struct {
	bundle *broker.Context
	hub    *ws.Hub
}

// NewNotificationsBuilder returns a notifications capability builder
// bound to a hub.
func NewNotificationsBuilder(hub *ws.Hub) func(*broker.Context) broker.Notifications {
	return func(bundle *broker.Context) broker.Notifications {
		return &Notifications{bundle: bundle, hub: hub}
	}
}

// Send publishes one notification.
func (n *Notifications) Send(ctx context.Context, title, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n.hub.Publish(n.bundle.UserID(), ws.Notification{
		ID:    id.NewNotification(),
		AppID: n.bundle.AppID(),
		Title: title,
		Body:  body,
		Time:  n.bundle.Now(),
	})
	return nil
}
