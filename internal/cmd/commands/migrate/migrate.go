// Package migrate holds the subcommand that applies database migrations
// without starting a document manager.
package migrate

import (
	"database/sql"
	"flag"
	"fmt"

	// The sqlite driver is registered by golang-migrate via modernc.org/sqlite.
	_ "github.com/lib/pq"

	"github.com/hashicorp-forge/collabdocs/internal/cmd/base"
	dbmigrate "github.com/hashicorp-forge/collabdocs/internal/migrate"
)

type Command struct {
	*base.Command

	flagConfig string
}

func (c *Command) Synopsis() string {
	return "Apply database migrations"
}

func (c *Command) Help() string {
	return `Usage: collabdocs migrate [options]

  Applies all pending migrations to the configured database and prints the
  resulting schema version.` +
		c.Flags().Help()
}

func (c *Command) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("migrate", flag.ContinueOnError))

	f.StringVar(&c.flagConfig, "config", "", "(Required) Path to collabdocs config file")

	return f
}

func (c *Command) Run(args []string) int {
	ui := c.UI

	if err := c.Flags().Parse(args); err != nil {
		ui.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 1
	}

	cfg, err := c.LoadConfig(c.flagConfig)
	if err != nil {
		ui.Error(err.Error())
		return 1
	}
	dbCfg := cfg.PersistenceConfig()
	dbCfg.SetDefaults()
	if err := dbCfg.Validate(); err != nil {
		ui.Error(fmt.Sprintf("invalid database config: %v", err))
		return 1
	}

	db, err := sql.Open(dbCfg.Driver, dbCfg.DSN())
	if err != nil {
		ui.Error(fmt.Sprintf("error opening database: %v", err))
		return 1
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		ui.Error(fmt.Sprintf("error connecting to database: %v", err))
		return 1
	}

	c.Log.Info("running migrations", "driver", dbCfg.Driver)
	if err := dbmigrate.RunMigrations(db, dbCfg.Driver); err != nil {
		ui.Error(fmt.Sprintf("error running migrations: %v", err))
		return 1
	}

	v, dirty, err := dbmigrate.GetMigrationVersion(db, dbCfg.Driver)
	if err != nil {
		ui.Error(fmt.Sprintf("error reading migration version: %v", err))
		return 1
	}
	ui.Output(fmt.Sprintf("schema version %d (dirty: %t)", v, dirty))
	return 0
}
