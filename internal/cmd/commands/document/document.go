// Package document holds the subcommands that act on a single document.
package document

import (
	"fmt"

	"github.com/hashicorp-forge/collabdocs/pkg/docid"
)

func parseID(raw string) (docid.UUID, error) {
	if raw == "" {
		return docid.UUID{}, fmt.Errorf("id flag is required")
	}
	id, err := docid.ParseUUID(raw)
	if err != nil {
		return docid.UUID{}, fmt.Errorf("invalid document id %q: %w", raw, err)
	}
	return id, nil
}
