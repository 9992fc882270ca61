package version

import (
	"github.com/hashicorp-forge/collabdocs/internal/cmd/base"
	"github.com/hashicorp-forge/collabdocs/internal/version"
)

type Command struct {
	*base.Command
}

func (c *Command) Synopsis() string {
	return "Print the collabdocs version"
}

func (c *Command) Help() string {
	return "Usage: collabdocs version"
}

func (c *Command) Run(args []string) int {
	c.UI.Output(version.Version)
	return 0
}
