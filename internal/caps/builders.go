package caps

import (
	"github.com/latticehq/lattice/internal/broker"
	"github.com/latticehq/lattice/internal/infrastructure/config"
	"github.com/latticehq/lattice/internal/ws"
)

// Deps are the long-lived services the capabilities close over.
type Deps struct {
	Hub          *ws.Hub
	Scheduler    *Scheduler
	AI           *AIClient
	Integrations *IntegrationsClient
	Files        config.FilesConfig
}

// Builders assembles the full capability builder set for the factory.
func Builders(deps Deps) broker.Builders {
	return broker.Builders{
		Storage:       NewStorage,
		Files:         NewFilesBuilder(deps.Files.Root),
		Notifications: NewNotificationsBuilder(deps.Hub),
		Schedule:      NewScheduleBuilder(deps.Scheduler),
		AI:            NewAIBuilder(deps.AI),
		Integrations:  NewIntegrationsBuilder(deps.Integrations),
	}
}
