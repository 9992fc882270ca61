package base

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"gorm.io/gorm"

	"github.com/hashicorp-forge/collabdocs/internal/config"
	"github.com/hashicorp-forge/collabdocs/pkg/capability"
	"github.com/hashicorp-forge/collabdocs/pkg/cloud/local"
	"github.com/hashicorp-forge/collabdocs/pkg/cloud/s3"
	"github.com/hashicorp-forge/collabdocs/pkg/collab"
	"github.com/hashicorp-forge/collabdocs/pkg/document"
	"github.com/hashicorp-forge/collabdocs/pkg/notify"
	"github.com/hashicorp-forge/collabdocs/pkg/outbox"
	"github.com/hashicorp-forge/collabdocs/pkg/persistence"
	"github.com/hashicorp-forge/collabdocs/pkg/snapshot"
)

// Backend is a remote backend that also stores files.
type Backend interface {
	document.CloudService
	document.StorageService
}

// Runtime is a fully wired document manager and its collaborators.
type Runtime struct {
	Config    *config.Config
	DB        *gorm.DB
	Session   *persistence.Session
	Cloud     Backend
	Snapshots *snapshot.Store
	Publisher notify.Publisher
	Manager   *document.Manager

	builder *capability.Ref[document.CollabBuilder]
	storage *capability.Ref[document.StorageService]
}

// LoadConfig loads the configuration and applies its log level.
func (c *Command) LoadConfig(path string) (*config.Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config flag is required")
	}
	cfg, err := config.LoadFile(path)
	if err != nil {
		return nil, err
	}
	c.Log.SetLevel(cfg.Level())
	return cfg, nil
}

// OpenDatabase opens the local database described by cfg.
func (c *Command) OpenDatabase(cfg *config.Config) (*gorm.DB, error) {
	db, err := persistence.Open(cfg.PersistenceConfig(), c.Log)
	if err != nil {
		return nil, fmt.Errorf("error initializing database: %w", err)
	}
	return db, nil
}

// NewBackend creates the configured remote backend.
func (c *Command) NewBackend(ctx context.Context, cfg *config.Config) (Backend, error) {
	switch cfg.Cloud.Backend {
	case config.BackendS3:
		return s3.NewAdapter(ctx, cfg.Cloud.S3, c.Log)
	default:
		return local.New(*cfg.Cloud.Local, c.Log)
	}
}

// NewPublisher creates the configured document event publisher.
func (c *Command) NewPublisher(cfg *config.Config) (notify.Publisher, error) {
	if !config.KafkaEnabled(cfg) {
		return notify.NewLogPublisher(c.Log), nil
	}
	return notify.NewKafkaPublisher(notify.KafkaConfig{
		Brokers: config.GetBrokers(cfg),
		Topic:   config.GetTopic(cfg),
		Sync:    cfg.Kafka != nil && cfg.Kafka.Sync,
	}, c.Log)
}

// Setup loads the configuration at path and wires a Manager.
func (c *Command) Setup(ctx context.Context, path string) (*Runtime, error) {
	cfg, err := c.LoadConfig(path)
	if err != nil {
		return nil, err
	}

	db, err := c.OpenDatabase(cfg)
	if err != nil {
		return nil, err
	}
	rt := &Runtime{Config: cfg, DB: db}

	if rt.Cloud, err = c.NewBackend(ctx, cfg); err != nil {
		_ = rt.Close()
		return nil, fmt.Errorf("error initializing cloud backend: %w", err)
	}
	if rt.Publisher, err = c.NewPublisher(cfg); err != nil {
		_ = rt.Close()
		return nil, fmt.Errorf("error initializing event publisher: %w", err)
	}

	rt.Session = persistence.NewSession(
		cfg.User.UID,
		cfg.User.DeviceID,
		cfg.User.WorkspaceID,
		persistence.NewStore(db, c.Log),
	)
	rt.Snapshots = snapshot.NewStore(db, c.Log)
	rt.builder = capability.NewRef[document.CollabBuilder](collab.NewBuilder(collab.BuilderConfig{
		MaxConcurrentBuilds: cfg.Document.MaxConcurrentBuilds,
		Logger:              c.Log,
	}))
	rt.storage = capability.NewRef[document.StorageService](rt.Cloud)

	var replicator document.Replicator
	if cfg.Outbox.Enabled {
		replicator = outbox.New(db, c.Log)
	} else {
		replicator = document.NewBestEffortReplicator(rt.Cloud, c.Log)
	}

	rt.Manager, err = document.NewManager(document.Config{
		User:                rt.Session,
		Cloud:               rt.Cloud,
		Snapshots:           rt.Snapshots,
		Builder:             rt.builder,
		Storage:             rt.storage,
		Replicator:          replicator,
		Publisher:           rt.Publisher,
		EvictionGracePeriod: cfg.EvictionGracePeriod(),
		Logger:              c.Log,
	})
	if err != nil {
		_ = rt.Close()
		return nil, fmt.Errorf("error initializing document manager: %w", err)
	}
	if err := rt.Manager.InitializeAfterOpenWorkspace(ctx, cfg.User.UID); err != nil {
		_ = rt.Close()
		return nil, err
	}
	return rt, nil
}

// NewRelay creates an outbox relay over the runtime's database and backend.
func (rt *Runtime) NewRelay(log hclog.Logger) (*outbox.Relay, error) {
	return outbox.NewRelay(outbox.RelayConfig{
		DB:           rt.DB,
		Cloud:        rt.Cloud,
		Publisher:    rt.Publisher,
		PollInterval: rt.Config.Outbox.PollIntervalDuration(),
		BatchSize:    rt.Config.Outbox.BatchSize,
		MaxAttempts:  rt.Config.Outbox.MaxAttempts,
		Logger:       log,
	})
}

// Close shuts the manager down and releases everything the runtime owns.
func (rt *Runtime) Close() error {
	var result *multierror.Error
	if rt.Manager != nil {
		// Closes the publisher too.
		if err := rt.Manager.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	} else if rt.Publisher != nil {
		if err := rt.Publisher.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if rt.Session != nil {
		rt.Session.SignOut()
	}
	if rt.builder != nil {
		rt.builder.Release()
	}
	if rt.storage != nil {
		rt.storage.Release()
	}
	if rt.DB != nil {
		if err := persistence.Close(rt.DB); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// Shutdown closes rt and logs what failed.
func (c *Command) Shutdown(rt *Runtime) {
	if err := rt.Close(); err != nil {
		c.Log.Warn("error shutting down", "error", err)
	}
}
