// Package config loads the collabdocs HCL configuration file.
package config

import (
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/hcl/v2/hclsimple"

	"github.com/hashicorp-forge/collabdocs/pkg/cloud/local"
	"github.com/hashicorp-forge/collabdocs/pkg/cloud/s3"
	"github.com/hashicorp-forge/collabdocs/pkg/persistence"
)

// Cloud backends.
const (
	BackendLocal = "local"
	BackendS3    = "s3"
)

// Config is the root of the configuration file.
type Config struct {
	// LogLevel is an hclog level name (default: "info").
	LogLevel string `hcl:"log_level,optional"`

	User     *User     `hcl:"user,block"`
	Database *Database `hcl:"database,block"`
	Document *Document `hcl:"document,block"`
	Cloud    *Cloud    `hcl:"cloud,block"`
	Kafka    *Kafka    `hcl:"kafka,block"`
	Outbox   *Outbox   `hcl:"outbox,block"`
}

// User identifies the signed in user on this device.
type User struct {
	UID         int64  `hcl:"uid"`
	DeviceID    string `hcl:"device_id"`
	WorkspaceID string `hcl:"workspace_id"`
}

// Database configures the local store.
type Database struct {
	Driver   string `hcl:"driver,optional"`
	Path     string `hcl:"path,optional"`
	Host     string `hcl:"host,optional"`
	Port     int    `hcl:"port,optional"`
	User     string `hcl:"user,optional"`
	Password string `hcl:"password,optional"`
	DBName   string `hcl:"dbname,optional"`
	SSLMode  string `hcl:"sslmode,optional"`

	MaxIdleConns    int    `hcl:"max_idle_conns,optional"`
	MaxOpenConns    int    `hcl:"max_open_conns,optional"`
	ConnMaxLifetime string `hcl:"conn_max_lifetime,optional"`
	ConnMaxIdleTime string `hcl:"conn_max_idle_time,optional"`
}

// Document configures the document manager.
type Document struct {
	EvictionGracePeriod string `hcl:"eviction_grace_period,optional"`
	MaxConcurrentBuilds int64  `hcl:"max_concurrent_builds,optional"`
}

// Cloud selects and configures the remote backend.
type Cloud struct {
	Backend string        `hcl:"backend,optional"`
	Local   *local.Config `hcl:"local,block"`
	S3      *s3.Config    `hcl:"s3,block"`
}

// Kafka configures document event publishing. Without a kafka block events
// are only logged.
type Kafka struct {
	Brokers []string `hcl:"brokers,optional"`
	Topic   string   `hcl:"topic,optional"`
	Sync    bool     `hcl:"sync,optional"`
}

// Outbox configures durable replication.
type Outbox struct {
	Enabled      bool   `hcl:"enabled,optional"`
	PollInterval string `hcl:"poll_interval,optional"`
	BatchSize    int    `hcl:"batch_size,optional"`
	MaxAttempts  int    `hcl:"max_attempts,optional"`
	Retention    string `hcl:"retention,optional"`
}

// LoadFile decodes, defaults and validates the configuration at path.
func LoadFile(path string) (*Config, error) {
	var cfg Config
	if err := hclsimple.DecodeFile(path, nil, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load configuration from %s: %w", path, err)
	}
	return finish(&cfg)
}

// Parse decodes configuration source. filename selects the syntax by its
// extension (".hcl" or ".json").
func Parse(filename string, src []byte) (*Config, error) {
	var cfg Config
	if err := hclsimple.Decode(filename, src, nil, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}
	return finish(&cfg)
}

func finish(cfg *Config) (*Config, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// SetDefaults fills in missing blocks and optional fields.
func (c *Config) SetDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Database == nil {
		c.Database = &Database{}
	}
	if c.Document == nil {
		c.Document = &Document{}
	}
	if c.Document.EvictionGracePeriod == "" {
		c.Document.EvictionGracePeriod = "120s"
	}
	if c.Document.MaxConcurrentBuilds == 0 {
		c.Document.MaxConcurrentBuilds = 4
	}
	if c.Cloud == nil {
		c.Cloud = &Cloud{}
	}
	if c.Cloud.Backend == "" {
		c.Cloud.Backend = BackendLocal
	}
	if c.Cloud.Backend == BackendLocal && c.Cloud.Local == nil {
		c.Cloud.Local = &local.Config{Root: "collabdocs-cloud"}
	}
	if c.Cloud.S3 != nil {
		c.Cloud.S3.SetDefaults()
	}
	if c.Outbox == nil {
		c.Outbox = &Outbox{}
	}
	if c.Outbox.PollInterval == "" {
		c.Outbox.PollInterval = "1s"
	}
	if c.Outbox.BatchSize == 0 {
		c.Outbox.BatchSize = 100
	}
	if c.Outbox.MaxAttempts == 0 {
		c.Outbox.MaxAttempts = 5
	}
	if c.Outbox.Retention == "" {
		c.Outbox.Retention = "168h"
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.LogLevel, validation.By(isLogLevel)),
		validation.Field(&c.User, validation.Required),
	); err != nil {
		return err
	}
	if err := validation.ValidateStruct(c.User,
		validation.Field(&c.User.UID, validation.Required, validation.Min(int64(1))),
		validation.Field(&c.User.DeviceID, validation.Required),
		validation.Field(&c.User.WorkspaceID, validation.Required),
	); err != nil {
		return fmt.Errorf("user: %w", err)
	}
	if err := validation.ValidateStruct(c.Document,
		validation.Field(&c.Document.EvictionGracePeriod, validation.By(isDuration)),
		validation.Field(&c.Document.MaxConcurrentBuilds, validation.Min(int64(1))),
	); err != nil {
		return fmt.Errorf("document: %w", err)
	}
	if err := validation.ValidateStruct(c.Database,
		validation.Field(&c.Database.ConnMaxLifetime, validation.By(isDuration)),
		validation.Field(&c.Database.ConnMaxIdleTime, validation.By(isDuration)),
	); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := c.Cloud.validate(); err != nil {
		return fmt.Errorf("cloud: %w", err)
	}
	if err := validation.ValidateStruct(c.Outbox,
		validation.Field(&c.Outbox.PollInterval, validation.By(isDuration)),
		validation.Field(&c.Outbox.Retention, validation.By(isDuration)),
		validation.Field(&c.Outbox.BatchSize, validation.Min(1)),
		validation.Field(&c.Outbox.MaxAttempts, validation.Min(1)),
	); err != nil {
		return fmt.Errorf("outbox: %w", err)
	}
	if c.Kafka != nil {
		if err := validation.ValidateStruct(c.Kafka,
			validation.Field(&c.Kafka.Brokers, validation.Each(validation.Required)),
		); err != nil {
			return fmt.Errorf("kafka: %w", err)
		}
	}
	return nil
}

func (c *Cloud) validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Backend, validation.In(BackendLocal, BackendS3)),
		validation.Field(&c.S3, validation.When(c.Backend == BackendS3, validation.Required)),
	); err != nil {
		return err
	}
	switch c.Backend {
	case BackendS3:
		return c.S3.Validate()
	default:
		if c.Local == nil {
			return fmt.Errorf("local block is required")
		}
		return c.Local.Validate()
	}
}

// PersistenceConfig converts the database block.
func (c *Config) PersistenceConfig() persistence.Config {
	db := c.Database
	return persistence.Config{
		Driver:          db.Driver,
		Path:            db.Path,
		Host:            db.Host,
		Port:            db.Port,
		User:            db.User,
		Password:        db.Password,
		DBName:          db.DBName,
		SSLMode:         db.SSLMode,
		MaxIdleConns:    db.MaxIdleConns,
		MaxOpenConns:    db.MaxOpenConns,
		ConnMaxLifetime: mustDuration(db.ConnMaxLifetime),
		ConnMaxIdleTime: mustDuration(db.ConnMaxIdleTime),
	}
}

// EvictionGracePeriod returns the parsed grace period.
func (c *Config) EvictionGracePeriod() time.Duration {
	return mustDuration(c.Document.EvictionGracePeriod)
}

// PollIntervalDuration returns the parsed outbox poll interval.
func (o *Outbox) PollIntervalDuration() time.Duration {
	return mustDuration(o.PollInterval)
}

// RetentionDuration returns the parsed outbox retention.
func (o *Outbox) RetentionDuration() time.Duration {
	return mustDuration(o.Retention)
}

// Level returns the configured log level.
func (c *Config) Level() hclog.Level {
	return hclog.LevelFromString(c.LogLevel)
}

func isLogLevel(value any) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	if hclog.LevelFromString(s) == hclog.NoLevel {
		return fmt.Errorf("unknown log level %q", s)
	}
	return nil
}

func isDuration(value any) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	if _, err := time.ParseDuration(s); err != nil {
		return fmt.Errorf("must be a duration like \"30s\"")
	}
	return nil
}

// mustDuration parses a duration already checked by Validate; empty is zero.
func mustDuration(s string) time.Duration {
	if s == "" {
		return 0
	}
	d, _ := time.ParseDuration(s)
	return d
}
