package document

import (
	"flag"
	"fmt"
	"time"

	"github.com/hashicorp-forge/collabdocs/internal/cmd/base"
)

type SnapshotsCommand struct {
	*base.Command

	flagConfig  string
	flagID      string
	flagLimit   int
	flagCapture bool
	flagShow    string
	flagFormat  string
}

func (c *SnapshotsCommand) Synopsis() string {
	return "List, capture or show document snapshots"
}

func (c *SnapshotsCommand) Help() string {
	return `Usage: collabdocs snapshots [options]

  Lists the snapshots of a document, newest first. With -capture the
  document is opened and a new snapshot of its current state is stored
  before listing. With -show the stored state of one snapshot is printed.` +
		c.Flags().Help()
}

func (c *SnapshotsCommand) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("snapshots", flag.ContinueOnError))

	f.StringVar(&c.flagConfig, "config", "", "(Required) Path to collabdocs config file")
	f.StringVar(&c.flagID, "id", "", "Document id (required unless -show is set)")
	f.IntVar(&c.flagLimit, "limit", 0, "Maximum number of snapshots to list (0 lists all)")
	f.BoolVar(&c.flagCapture, "capture", false, "Store a new snapshot first")
	f.StringVar(&c.flagShow, "show", "", "Snapshot id to print")
	f.StringVar(&c.flagFormat, "format", "yaml", "Output format: yaml or json")

	return f
}

func (c *SnapshotsCommand) Run(args []string) int {
	ui := c.UI

	if err := c.Flags().Parse(args); err != nil {
		ui.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 1
	}

	ctx, cancel := base.SignalContext()
	defer cancel()

	if c.flagShow != "" {
		rt, err := c.Setup(ctx, c.flagConfig)
		if err != nil {
			ui.Error(err.Error())
			return 1
		}
		defer c.Shutdown(rt)

		snap, err := rt.Manager.GetDocumentSnapshot(ctx, c.flagShow)
		if err != nil {
			ui.Error(fmt.Sprintf("error reading snapshot: %v", err))
			return 1
		}
		ui.Output(fmt.Sprintf("object_id: %s", snap.ObjectID))
		ui.Output(string(snap.EncodedV1))
		return 0
	}

	id, err := parseID(c.flagID)
	if err != nil {
		ui.Error(err.Error())
		return 1
	}

	rt, err := c.Setup(ctx, c.flagConfig)
	if err != nil {
		ui.Error(err.Error())
		return 1
	}
	defer c.Shutdown(rt)

	if c.flagCapture {
		if err := rt.Manager.OpenDocument(ctx, id); err != nil {
			ui.Error(fmt.Sprintf("error opening document: %v", err))
			return 1
		}
		h, err := rt.Manager.EditableDocument(ctx, id)
		if err != nil {
			ui.Error(fmt.Sprintf("error opening document: %v", err))
			return 1
		}
		meta, err := rt.Snapshots.Capture(ctx, rt.Config.User.WorkspaceID, h)
		if err != nil {
			ui.Error(fmt.Sprintf("error capturing snapshot: %v", err))
			return 1
		}
		if err := rt.Manager.CloseDocument(ctx, id); err != nil {
			c.Log.Warn("error closing document", "document_id", id.String(), "error", err)
		}
		ui.Info(fmt.Sprintf("captured snapshot %s", meta.SnapshotID))
	}

	metas, err := rt.Manager.GetDocumentSnapshotMeta(ctx, id, c.flagLimit)
	if err != nil {
		ui.Error(fmt.Sprintf("error listing snapshots: %v", err))
		return 1
	}
	if len(metas) == 0 {
		ui.Info("no snapshots")
		return 0
	}

	rows := make([]map[string]string, 0, len(metas))
	for _, meta := range metas {
		rows = append(rows, map[string]string{
			"snapshot_id": meta.SnapshotID,
			"created_at":  meta.CreatedAt.Format(time.RFC3339),
		})
	}
	rendered, err := render(c.flagFormat, rows)
	if err != nil {
		ui.Error(err.Error())
		return 1
	}
	ui.Output(rendered)
	return 0
}
