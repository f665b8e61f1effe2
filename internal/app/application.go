package app

import (
	"context"
	"fmt"

	"github.com/boostly/kudos/internal/app/services/leaderboard"
	"github.com/boostly/kudos/internal/app/services/members"
	"github.com/boostly/kudos/internal/app/services/recognitions"
	"github.com/boostly/kudos/internal/app/services/redemptions"
	"github.com/boostly/kudos/internal/app/services/resets"
	"github.com/boostly/kudos/internal/app/storage"
	"github.com/boostly/kudos/internal/app/system"
	"github.com/boostly/kudos/pkg/logger"
)

// Options tunes optional application behaviour.
type Options struct {
	// SweepSchedule is a cron expression for the background reset sweep.
	// Empty selects resets.DefaultSweepSchedule.
	SweepSchedule string
	// DisableSweeper skips registering the background sweep entirely.
	// Opportunistic resets on reads and sends still apply.
	DisableSweeper bool
}

// Application ties the domain services together and manages their lifecycle.
// A nil store defaults to the in-memory implementation.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Members      *members.Service
	Recognitions *recognitions.Service
	Redemptions  *redemptions.Service
	Leaderboard  *leaderboard.Service
	Resets       *resets.Service
}

// New builds a fully initialised application on top of the given store.
func New(store storage.Store, opts Options, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}
	if store == nil {
		store = storage.NewMemory()
	}

	manager := system.NewManager()

	resetService := resets.New(store, log)
	app := &Application{
		manager:      manager,
		log:          log,
		Members:      members.New(store, resetService, log),
		Recognitions: recognitions.New(store, resetService, log),
		Redemptions:  redemptions.New(store, resetService, log),
		Leaderboard:  leaderboard.New(store, log),
		Resets:       resetService,
	}

	if !opts.DisableSweeper {
		sweeper := resets.NewSweeper(resetService, opts.SweepSchedule, log)
		if err := manager.Register(sweeper); err != nil {
			return nil, fmt.Errorf("register %s: %w", sweeper.Name(), err)
		}
	}

	return app, nil
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}
