package persistence

import (
	"errors"
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/hashicorp/go-hclog"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/hashicorp-forge/collabdocs/internal/migrate"
)

// Config holds configuration for the local database.
type Config struct {
	// Driver is "sqlite" (default) or "postgres".
	Driver string

	// Path is the sqlite database file; ":memory:" for an in-memory database.
	Path string

	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string

	// Connection pool settings.
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration

	// SkipMigrations leaves the schema alone.
	SkipMigrations bool
}

// SetDefaults sets default values for optional fields.
func (c *Config) SetDefaults() {
	if c.Driver == "" {
		c.Driver = migrate.DriverSQLite
	}
	if c.Driver == migrate.DriverSQLite && c.Path == "" {
		c.Path = "collabdocs.db"
	}
	if c.Driver == migrate.DriverPostgres {
		if c.Port == 0 {
			c.Port = 5432
		}
		if c.SSLMode == "" {
			c.SSLMode = "disable"
		}
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = 10
	}
	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = 25
	}
	if c.ConnMaxLifetime == 0 {
		c.ConnMaxLifetime = 5 * time.Minute
	}
	if c.ConnMaxIdleTime == 0 {
		c.ConnMaxIdleTime = 10 * time.Minute
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Driver, validation.Required, validation.In(migrate.DriverSQLite, migrate.DriverPostgres)),
		validation.Field(&c.Path, validation.When(c.Driver == migrate.DriverSQLite, validation.Required)),
		validation.Field(&c.Host, validation.When(c.Driver == migrate.DriverPostgres, validation.Required)),
		validation.Field(&c.DBName, validation.When(c.Driver == migrate.DriverPostgres, validation.Required)),
		validation.Field(&c.Port, validation.Min(0), validation.Max(65535)),
	)
}

// DSN returns the driver specific connection string.
func (c *Config) DSN() string {
	if c.Driver == migrate.DriverPostgres {
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host,
			c.Port,
			c.User,
			c.Password,
			c.DBName,
			c.SSLMode,
		)
	}
	return c.Path
}

// Open connects to the database, configures the pool and applies
// migrations.
func Open(cfg Config, log hclog.Logger) (*gorm.DB, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database config: %w", err)
	}
	if log == nil {
		log = hclog.NewNullLogger()
	}

	var dialector gorm.Dialector
	switch cfg.Driver {
	case migrate.DriverPostgres:
		dialector = postgres.Open(cfg.DSN())
	default:
		dialector = sqlite.Open(cfg.DSN())
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: NewGormLogger(log.Named("gorm")),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying SQL DB: %w", err)
	}

	maxOpenConns := cfg.MaxOpenConns
	maxLifetime, maxIdleTime := cfg.ConnMaxLifetime, cfg.ConnMaxIdleTime
	if cfg.Driver == migrate.DriverSQLite && cfg.Path == ":memory:" {
		// Every connection to ":memory:" is a separate database, so the
		// single connection must never be recycled.
		maxOpenConns = 1
		maxLifetime, maxIdleTime = 0, 0
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetConnMaxLifetime(maxLifetime)
	sqlDB.SetConnMaxIdleTime(maxIdleTime)

	if !cfg.SkipMigrations {
		if err := migrate.RunMigrations(sqlDB, cfg.Driver); err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
	}

	log.Info("connected to database",
		"driver", cfg.Driver,
		"host", cfg.Host,
		"database", cfg.DBName,
		"path", cfg.Path,
		"max_idle_conns", cfg.MaxIdleConns,
		"max_open_conns", maxOpenConns,
		"conn_max_lifetime", cfg.ConnMaxLifetime,
		"conn_max_idle_time", cfg.ConnMaxIdleTime,
	)
	return db, nil
}

// Close closes the underlying connection pool.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying SQL DB: %w", err)
	}
	return sqlDB.Close()
}

// PoolStats holds database connection pool statistics.
type PoolStats struct {
	MaxOpenConnections int           // Maximum number of open connections to the database
	OpenConnections    int           // The number of established connections both in use and idle
	InUse              int           // The number of connections currently in use
	Idle               int           // The number of idle connections
	WaitCount          int64         // The total number of connections waited for
	WaitDuration       time.Duration // The total time blocked waiting for a new connection
}

// GetPoolStats returns connection pool statistics from a GORM DB instance.
func GetPoolStats(db *gorm.DB) (*PoolStats, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying SQL DB: %w", err)
	}

	stats := sqlDB.Stats()
	return &PoolStats{
		MaxOpenConnections: stats.MaxOpenConnections,
		OpenConnections:    stats.OpenConnections,
		InUse:              stats.InUse,
		Idle:               stats.Idle,
		WaitCount:          stats.WaitCount,
		WaitDuration:       stats.WaitDuration,
	}, nil
}

func isRecordNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
