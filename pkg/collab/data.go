package collab

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Block types used by the default document.
const (
	BlockTypePage      = "page"
	BlockTypeParagraph = "paragraph"

	ExternalTypeText = "text"
)

// Block is a single node of the document tree.
type Block struct {
	ID     string `json:"id" yaml:"id"`
	Ty     string `json:"ty" yaml:"ty"`
	Parent string `json:"parent" yaml:"parent"`
	// Children is the key of this block's ordered child list in Meta.ChildrenMap.
	Children     string         `json:"children" yaml:"children"`
	Data         map[string]any `json:"data" yaml:"data"`
	ExternalID   string         `json:"external_id,omitempty" yaml:"external_id,omitempty"`
	ExternalType string         `json:"external_type,omitempty" yaml:"external_type,omitempty"`
}

// Meta holds the structure that is shared between blocks.
type Meta struct {
	ChildrenMap map[string][]string `json:"children_map" yaml:"children_map"`
	// TextMap maps a text id to its JSON encoded delta.
	TextMap map[string]string `json:"text_map" yaml:"text_map"`
}

// DocumentData is the structured, encoding independent form of a document.
type DocumentData struct {
	PageID string           `json:"page_id" yaml:"page_id"`
	Blocks map[string]Block `json:"blocks" yaml:"blocks"`
	Meta   Meta             `json:"meta" yaml:"meta"`
}

// TextDelta is one insert operation of a text delta.
type TextDelta struct {
	Insert     string         `json:"insert"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// DefaultDocumentData returns the canonical content of a new document: a page
// with a single empty paragraph.
func DefaultDocumentData(documentID string) DocumentData {
	pageID := documentID
	if pageID == "" {
		pageID = uuid.NewString()
	}
	paragraphID := uuid.NewString()
	textID := uuid.NewString()
	pageChildren := uuid.NewString()
	paragraphChildren := uuid.NewString()

	return DocumentData{
		PageID: pageID,
		Blocks: map[string]Block{
			pageID: {
				ID:       pageID,
				Ty:       BlockTypePage,
				Children: pageChildren,
				Data:     map[string]any{},
			},
			paragraphID: {
				ID:           paragraphID,
				Ty:           BlockTypeParagraph,
				Parent:       pageID,
				Children:     paragraphChildren,
				Data:         map[string]any{},
				ExternalID:   textID,
				ExternalType: ExternalTypeText,
			},
		},
		Meta: Meta{
			ChildrenMap: map[string][]string{
				pageChildren:      {paragraphID},
				paragraphChildren: {},
			},
			TextMap: map[string]string{
				textID: "[]",
			},
		},
	}
}

// Validate checks the data required for any document: a page id that names
// an existing page block.
func (d DocumentData) Validate() error {
	if d.PageID == "" {
		return fmt.Errorf("%w: page id is empty", ErrInvalidData)
	}
	page, ok := d.Blocks[d.PageID]
	if !ok {
		return fmt.Errorf("%w: page block %s is missing", ErrInvalidData, d.PageID)
	}
	if page.Ty != "" && page.Ty != BlockTypePage {
		return fmt.Errorf("%w: root block %s has type %q", ErrInvalidData, d.PageID, page.Ty)
	}
	for id, text := range d.Meta.TextMap {
		if _, err := decodeDelta(text); err != nil {
			return fmt.Errorf("%w: text %s: %v", ErrInvalidData, id, err)
		}
	}
	return nil
}

// Paragraphs returns the plain text of every text-bearing block in document
// order (depth first from the page).
func (d DocumentData) Paragraphs() []string {
	var out []string
	seen := make(map[string]bool)

	var walk func(blockID string)
	walk = func(blockID string) {
		if seen[blockID] {
			return
		}
		seen[blockID] = true

		block, ok := d.Blocks[blockID]
		if !ok {
			return
		}
		if blockID != d.PageID && block.ExternalID != "" {
			if raw, ok := d.Meta.TextMap[block.ExternalID]; ok {
				out = append(out, plainText(raw))
			}
		}
		for _, child := range d.Meta.ChildrenMap[block.Children] {
			walk(child)
		}
	}
	walk(d.PageID)

	return out
}

// clone returns a deep copy through the JSON form so callers can never alias
// the live document's maps.
func (d DocumentData) clone() (DocumentData, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return DocumentData{}, err
	}
	var out DocumentData
	if err := json.Unmarshal(raw, &out); err != nil {
		return DocumentData{}, err
	}
	return out, nil
}

func decodeDelta(raw string) ([]TextDelta, error) {
	if raw == "" {
		return nil, nil
	}
	var delta []TextDelta
	if err := json.Unmarshal([]byte(raw), &delta); err != nil {
		return nil, err
	}
	return delta, nil
}

func plainText(raw string) string {
	delta, err := decodeDelta(raw)
	if err != nil {
		return ""
	}
	var sb strings.Builder
	for _, op := range delta {
		sb.WriteString(op.Insert)
	}
	return sb.String()
}
