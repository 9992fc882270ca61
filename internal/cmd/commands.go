package cmd

import (
	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/cli"

	"github.com/hashicorp-forge/collabdocs/internal/cmd/base"
	"github.com/hashicorp-forge/collabdocs/internal/cmd/commands/document"
	"github.com/hashicorp-forge/collabdocs/internal/cmd/commands/files"
	"github.com/hashicorp-forge/collabdocs/internal/cmd/commands/migrate"
	"github.com/hashicorp-forge/collabdocs/internal/cmd/commands/relay"
	"github.com/hashicorp-forge/collabdocs/internal/cmd/commands/version"
)

// Commands returns the subcommand factories keyed by name.
func Commands(log hclog.Logger, ui cli.Ui) map[string]cli.CommandFactory {
	b := base.NewCommand(log, ui)

	return map[string]cli.CommandFactory{
		"create": func() (cli.Command, error) {
			return &document.CreateCommand{Command: b}, nil
		},
		"text": func() (cli.Command, error) {
			return &document.TextCommand{Command: b}, nil
		},
		"data": func() (cli.Command, error) {
			return &document.DataCommand{Command: b}, nil
		},
		"delete": func() (cli.Command, error) {
			return &document.DeleteCommand{Command: b}, nil
		},
		"snapshots": func() (cli.Command, error) {
			return &document.SnapshotsCommand{Command: b}, nil
		},
		"upload": func() (cli.Command, error) {
			return &files.UploadCommand{Command: b}, nil
		},
		"download": func() (cli.Command, error) {
			return &files.DownloadCommand{Command: b}, nil
		},
		"delete-file": func() (cli.Command, error) {
			return &files.DeleteCommand{Command: b}, nil
		},
		"migrate": func() (cli.Command, error) {
			return &migrate.Command{Command: b}, nil
		},
		"relay": func() (cli.Command, error) {
			return &relay.Command{Command: b}, nil
		},
		"version": func() (cli.Command, error) {
			return &version.Command{Command: b}, nil
		},
	}
}
