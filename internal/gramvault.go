// Package internal ties the services together: the database connection,
// the import service, the REST gateway and the event bus they share.
package internal

import (
	"context"
	"fmt"
	"sync"

	"github.com/gramvault/gramvault/internal/api"
	"github.com/gramvault/gramvault/internal/catalog"
	"github.com/gramvault/gramvault/internal/database"
	"github.com/gramvault/gramvault/internal/event"
	"github.com/gramvault/gramvault/internal/ffmpeg"
	"github.com/gramvault/gramvault/internal/importer"
	"github.com/gramvault/gramvault/internal/metadata"
	"github.com/gramvault/gramvault/pkg/logger"
)

var log = logger.Get("Core")

type RunnableService interface {
	Run(context.Context) error
}

// GramVault is the top-level object for the server, responsible for
// constructing the stores and services and keeping them running until the
// provided context is cancelled.
type GramVault struct {
	eventBus event.EventCoordinator
	config   GramVaultConfig
	db       database.Manager

	catalogStore *catalog.Store

	importService *importer.Service
	restGateway   *api.RestGateway
}

func New(config GramVaultConfig) *GramVault {
	log.Emit(logger.DEBUG, "Bootstrapping GramVault services using config: %#v\n", config)

	gramvault := &GramVault{
		eventBus:     event.New(),
		config:       config,
		db:           database.New(),
		catalogStore: catalog.NewStore(),
	}

	importService, err := importer.New(
		config.Import,
		gramvault.db,
		gramvault.eventBus,
		gramvault.catalogStore,
		catalog.NewLibrary(config.Library),
		ffmpeg.New(config.Ffmpeg),
		metadata.NewExtractor(config.Metadata),
	)
	if err != nil {
		panic(fmt.Sprintf("failed to construct import service due to error: %s", err.Error()))
	}

	gramvault.importService = importService
	gramvault.restGateway = api.NewRestGateway(config.Rest, importService, gramvault.eventBus)

	return gramvault
}

// Run connects to the database and brings up the services, blocking until
// the context is cancelled or a service crashes.
func (gramvault *GramVault) Run(parent context.Context) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	crashHandler := func(label string, err error) {
		log.Emit(logger.FATAL, "Service crash (%s)! %s\n", label, err.Error())
		cancel()
	}

	log.Emit(logger.NEW, "Connecting to database...\n")
	if err := gramvault.db.Connect(gramvault.config.Database); err != nil {
		return err
	}

	wg := &sync.WaitGroup{}
	gramvault.spawnAsyncService(ctx, wg, gramvault.importService, "import-service", crashHandler)
	gramvault.spawnAsyncService(ctx, wg, gramvault.restGateway, "rest-gateway", crashHandler)
	log.Emit(logger.SUCCESS, "GramVault services spawned!\n")

	wg.Wait()
	return nil
}

// spawnAsyncService runs the service on its own goroutine, updating the
// waitgroup and reporting both returned errors and panics to the crash
// handler.
func (gramvault *GramVault) spawnAsyncService(ctx context.Context, wg *sync.WaitGroup, service RunnableService, serviceLabel string, crashHandler func(string, error)) {
	log.Emit(logger.NEW, "Spawning %s\n", serviceLabel)
	wg.Add(1)

	go func(wg *sync.WaitGroup, label string, crash func(string, error)) {
		defer func() {
			if r := recover(); r != nil {
				crash(label, fmt.Errorf("panic %v", r))
			}
		}()

		defer wg.Done()
		if err := service.Run(ctx); err != nil {
			crash(label, err)
		}
	}(wg, serviceLabel, crashHandler)
}
