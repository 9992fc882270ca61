package document

import (
	"flag"
	"fmt"

	"github.com/hashicorp-forge/collabdocs/internal/cmd/base"
)

type DeleteCommand struct {
	*base.Command

	flagConfig string
	flagID     string
}

func (c *DeleteCommand) Synopsis() string {
	return "Delete a document from the local store"
}

func (c *DeleteCommand) Help() string {
	return `Usage: collabdocs delete -id=<document id> [options]

  Deletes the locally stored state of a document. The remote copy is left
  alone.` +
		c.Flags().Help()
}

func (c *DeleteCommand) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("delete", flag.ContinueOnError))

	f.StringVar(&c.flagConfig, "config", "", "(Required) Path to collabdocs config file")
	f.StringVar(&c.flagID, "id", "", "(Required) Document id")

	return f
}

func (c *DeleteCommand) Run(args []string) int {
	ui := c.UI

	if err := c.Flags().Parse(args); err != nil {
		ui.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 1
	}
	id, err := parseID(c.flagID)
	if err != nil {
		ui.Error(err.Error())
		return 1
	}

	ctx, cancel := base.SignalContext()
	defer cancel()

	rt, err := c.Setup(ctx, c.flagConfig)
	if err != nil {
		ui.Error(err.Error())
		return 1
	}
	defer c.Shutdown(rt)

	if err := rt.Manager.DeleteDocument(ctx, id); err != nil {
		ui.Error(fmt.Sprintf("error deleting document: %v", err))
		return 1
	}

	ui.Info(fmt.Sprintf("deleted %s", id))
	return 0
}
