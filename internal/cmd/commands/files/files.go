// Package files holds the subcommands that manage blobs attached to
// documents.
package files

import (
	"flag"
	"fmt"

	"github.com/hashicorp-forge/collabdocs/internal/cmd/base"
	"github.com/hashicorp-forge/collabdocs/pkg/docid"
)

type UploadCommand struct {
	*base.Command

	flagConfig string
	flagID     string
	flagPath   string
}

func (c *UploadCommand) Synopsis() string {
	return "Upload a file attached to a document"
}

func (c *UploadCommand) Help() string {
	return `Usage: collabdocs upload -id=<document id> -path=<file> [options]

  Uploads a local file to the remote backend under the document. The URL of
  the stored file is printed.` +
		c.Flags().Help()
}

func (c *UploadCommand) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("upload", flag.ContinueOnError))

	f.StringVar(&c.flagConfig, "config", "", "(Required) Path to collabdocs config file")
	f.StringVar(&c.flagID, "id", "", "(Required) Document id")
	f.StringVar(&c.flagPath, "path", "", "(Required) Local file to upload")

	return f
}

func (c *UploadCommand) Run(args []string) int {
	ui := c.UI

	if err := c.Flags().Parse(args); err != nil {
		ui.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 1
	}
	if c.flagID == "" || c.flagPath == "" {
		ui.Error("id and path flags are required")
		return 1
	}
	id, err := docid.ParseUUID(c.flagID)
	if err != nil {
		ui.Error(fmt.Sprintf("invalid document id %q: %v", c.flagID, err))
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

	upload, err := rt.Manager.UploadFile(ctx, id, c.flagPath)
	if err != nil {
		ui.Error(fmt.Sprintf("error uploading file: %v", err))
		return 1
	}

	ui.Output(upload.URL)
	ui.Info(fmt.Sprintf("file id: %s", upload.FileID))
	return 0
}

type DownloadCommand struct {
	*base.Command

	flagConfig string
	flagURL    string
	flagPath   string
}

func (c *DownloadCommand) Synopsis() string {
	return "Download a stored file"
}

func (c *DownloadCommand) Help() string {
	return `Usage: collabdocs download -url=<file url> -path=<file> [options]

  Downloads a file stored by "collabdocs upload" to a local path.` +
		c.Flags().Help()
}

func (c *DownloadCommand) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("download", flag.ContinueOnError))

	f.StringVar(&c.flagConfig, "config", "", "(Required) Path to collabdocs config file")
	f.StringVar(&c.flagURL, "url", "", "(Required) URL printed by upload")
	f.StringVar(&c.flagPath, "path", "", "(Required) Local destination")

	return f
}

func (c *DownloadCommand) Run(args []string) int {
	ui := c.UI

	if err := c.Flags().Parse(args); err != nil {
		ui.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 1
	}
	if c.flagURL == "" || c.flagPath == "" {
		ui.Error("url and path flags are required")
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

	if err := rt.Manager.DownloadFile(ctx, c.flagPath, c.flagURL); err != nil {
		ui.Error(fmt.Sprintf("error downloading file: %v", err))
		return 1
	}

	ui.Info(fmt.Sprintf("downloaded to %s", c.flagPath))
	return 0
}

type DeleteCommand struct {
	*base.Command

	flagConfig string
	flagURL    string
}

func (c *DeleteCommand) Synopsis() string {
	return "Delete a stored file"
}

func (c *DeleteCommand) Help() string {
	return `Usage: collabdocs delete-file -url=<file url> [options]

  Deletes a file stored by "collabdocs upload".` +
		c.Flags().Help()
}

func (c *DeleteCommand) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("delete-file", flag.ContinueOnError))

	f.StringVar(&c.flagConfig, "config", "", "(Required) Path to collabdocs config file")
	f.StringVar(&c.flagURL, "url", "", "(Required) URL printed by upload")

	return f
}

func (c *DeleteCommand) Run(args []string) int {
	ui := c.UI

	if err := c.Flags().Parse(args); err != nil {
		ui.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 1
	}
	if c.flagURL == "" {
		ui.Error("url flag is required")
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

	if err := rt.Manager.DeleteFile(ctx, c.flagURL); err != nil {
		ui.Error(fmt.Sprintf("error deleting file: %v", err))
		return 1
	}

	ui.Info(fmt.Sprintf("deleted %s", c.flagURL))
	return 0
}
