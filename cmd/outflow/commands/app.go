package commands

import (
	"database/sql"
	"time"

	"github.com/outflowhq/outflow/config"
	"github.com/outflowhq/outflow/contacts"
	"github.com/outflowhq/outflow/db"
	"github.com/outflowhq/outflow/dispatch"
	"github.com/outflowhq/outflow/errors"
	"github.com/outflowhq/outflow/internal/metrics"
	"github.com/outflowhq/outflow/logger"
	"github.com/outflowhq/outflow/maintenance"
	"github.com/outflowhq/outflow/outreach"
	"github.com/outflowhq/outflow/webhookq"
)

// ConfigPath is set by the root --config flag.
var ConfigPath string

// app bundles the wired components every command operates on.
type app struct {
	cfg        *config.Config
	db         *sql.DB
	dispatcher *dispatch.Dispatcher
	runner     *webhookq.Runner
	sweeper    *maintenance.Sweeper
	collector  *metrics.Collector
}

func (a *app) Close() {
	if a.db != nil {
		a.db.Close()
	}
}

// buildApp loads config, opens and migrates the database, and wires the
// dispatch, queue, and maintenance components together. Every command goes
// through here so one-shot and serve modes behave identically.
func buildApp() (*app, error) {
	var cfg *config.Config
	var err error
	if ConfigPath != "" {
		cfg, err = config.LoadFromFile(ConfigPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to load configuration")
	}

	log := logger.Named("db")
	database, err := db.Open(cfg.Database.Path, log)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}
	if err := db.Migrate(database, log); err != nil {
		database.Close()
		return nil, errors.Wrap(err, "failed to migrate database")
	}

	windowStore := dispatch.NewWindowStore(database, logger.Named("dispatch"))
	runStore := dispatch.NewRunStore(database)
	eventStore := webhookq.NewStore(database)
	jobStore := outreach.NewStore(database)
	contactStore := contacts.NewStore(database)

	var sender outreach.Sender
	if cfg.Outreach.SenderMode == "webhook" {
		timeout := time.Duration(cfg.Outreach.SendTimeoutSeconds) * time.Second
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		sender = outreach.NewWebhookSender(timeout)
	} else {
		sender = outreach.NewLogSender(logger.Named("outreach"))
	}
	executor := outreach.NewExecutor(jobStore, eventStore, sender,
		outreach.EventConfig{MaxAttempts: cfg.Queue.MaxAttempts},
		logger.Named("outreach"))

	registry := webhookq.NewRegistry()
	registry.Register(outreach.NewDeliveryHandler(jobStore, sender, logger.Named("outreach")))

	dispatcher := dispatch.NewDispatcher(windowStore, runStore, jobStore, executor,
		cfg.Dispatch, logger.Named("dispatch"))
	runner := webhookq.NewRunner(eventStore, registry, cfg.Queue, logger.Named("webhookq"))
	sweeper := maintenance.NewSweeper(runStore, eventStore, contactStore, jobStore,
		cfg.Dispatch, cfg.Maintenance, logger.Named("maintenance"))

	return &app{
		cfg:        cfg,
		db:         database,
		dispatcher: dispatcher,
		runner:     runner,
		sweeper:    sweeper,
		collector:  metrics.NewCollector(),
	}, nil
}
