package document

import (
	"flag"
	"fmt"

	"github.com/hashicorp-forge/collabdocs/internal/cmd/base"
)

type TextCommand struct {
	*base.Command

	flagConfig string
	flagID     string
}

func (c *TextCommand) Synopsis() string {
	return "Print the plain text of a document"
}

func (c *TextCommand) Help() string {
	return `Usage: collabdocs text -id=<document id> [options]

  Prints the plain text of a document, one line per paragraph. The document
  is read from the local store, or from the remote backend when it is not
  stored locally.` +
		c.Flags().Help()
}

func (c *TextCommand) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("text", flag.ContinueOnError))

	f.StringVar(&c.flagConfig, "config", "", "(Required) Path to collabdocs config file")
	f.StringVar(&c.flagID, "id", "", "(Required) Document id")

	return f
}

func (c *TextCommand) Run(args []string) int {
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

	text, err := rt.Manager.GetDocumentText(ctx, id)
	if err != nil {
		ui.Error(fmt.Sprintf("error reading document: %v", err))
		return 1
	}

	ui.Output(text)
	return 0
}
