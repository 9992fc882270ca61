package document

import (
	"flag"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hashicorp-forge/collabdocs/internal/cmd/base"
	"github.com/hashicorp-forge/collabdocs/pkg/collab"
	"github.com/hashicorp-forge/collabdocs/pkg/docid"
)

type CreateCommand struct {
	*base.Command

	flagConfig string
	flagID     string
	flagFrom   string
}

func (c *CreateCommand) Synopsis() string {
	return "Create a document"
}

func (c *CreateCommand) Help() string {
	return `Usage: collabdocs create [options]

  Creates a document in the local store and schedules its replication to
  the remote backend. Without -from the document holds one empty paragraph.
  The id of the new document is printed.` +
		c.Flags().Help()
}

func (c *CreateCommand) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("create", flag.ContinueOnError))

	f.StringVar(&c.flagConfig, "config", "", "(Required) Path to collabdocs config file")
	f.StringVar(&c.flagID, "id", "", "Document id (default: a new UUID)")
	f.StringVar(&c.flagFrom, "from", "", "YAML or JSON file with the initial document data")

	return f
}

func (c *CreateCommand) Run(args []string) int {
	ui := c.UI

	if err := c.Flags().Parse(args); err != nil {
		ui.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 1
	}

	id := docid.NewUUID()
	if c.flagID != "" {
		parsed, err := parseID(c.flagID)
		if err != nil {
			ui.Error(err.Error())
			return 1
		}
		id = parsed
	}

	var data *collab.DocumentData
	if c.flagFrom != "" {
		raw, err := os.ReadFile(c.flagFrom)
		if err != nil {
			ui.Error(fmt.Sprintf("error reading %s: %v", c.flagFrom, err))
			return 1
		}
		// YAML is a superset of JSON.
		var parsed collab.DocumentData
		if err := yaml.Unmarshal(raw, &parsed); err != nil {
			ui.Error(fmt.Sprintf("error parsing %s: %v", c.flagFrom, err))
			return 1
		}
		data = &parsed
	}

	ctx, cancel := base.SignalContext()
	defer cancel()

	rt, err := c.Setup(ctx, c.flagConfig)
	if err != nil {
		ui.Error(err.Error())
		return 1
	}
	defer c.Shutdown(rt)

	if _, err := rt.Manager.CreateDocument(ctx, id, data); err != nil {
		ui.Error(fmt.Sprintf("error creating document: %v", err))
		return 1
	}

	ui.Output(id.String())
	return 0
}
