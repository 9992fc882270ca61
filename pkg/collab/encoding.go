package collab

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
)

// EncoderVersion identifies the layout of EncodedCollab.DocState.
type EncoderVersion int

const EncoderVersionV1 EncoderVersion = 1

const wireFormat = "collabdocs.document"

// EncodedCollab is the serialized state of a document, as persisted locally
// and replicated to the remote backend.
type EncodedCollab struct {
	StateVector []byte         `json:"state_vector"`
	DocState    []byte         `json:"doc_state"`
	Version     EncoderVersion `json:"version"`
}

// Origin records where a DataSource came from.
type Origin int

const (
	OriginDisk Origin = iota
	OriginRemote
)

func (o Origin) String() string {
	switch o {
	case OriginDisk:
		return "disk"
	case OriginRemote:
		return "remote"
	default:
		return fmt.Sprintf("origin(%d)", int(o))
	}
}

// DataSource is the initial byte state a document is built from.
type DataSource struct {
	Origin   Origin
	DocState []byte
}

// IsEmpty reports whether the source carries no bytes.
func (d DataSource) IsEmpty() bool {
	return len(d.DocState) == 0
}

type wireDocument struct {
	Format   string         `json:"format"`
	Version  EncoderVersion `json:"version"`
	ObjectID string         `json:"object_id"`
	Clock    uint64         `json:"clock"`
	Data     DocumentData   `json:"data"`
}

func encode(objectID string, clock uint64, data DocumentData) (EncodedCollab, error) {
	if err := data.Validate(); err != nil {
		return EncodedCollab{}, err
	}
	docState, err := json.Marshal(wireDocument{
		Format:   wireFormat,
		Version:  EncoderVersionV1,
		ObjectID: objectID,
		Clock:    clock,
		Data:     data,
	})
	if err != nil {
		return EncodedCollab{}, fmt.Errorf("failed to encode document %s: %w", objectID, err)
	}

	sv := make([]byte, 8)
	binary.BigEndian.PutUint64(sv, clock)

	return EncodedCollab{
		StateVector: sv,
		DocState:    docState,
		Version:     EncoderVersionV1,
	}, nil
}

func decode(objectID string, docState []byte) (wireDocument, error) {
	if len(docState) == 0 {
		return wireDocument{}, fmt.Errorf("%w: empty doc state for %s", ErrInvalidData, objectID)
	}

	var wire wireDocument
	if err := json.Unmarshal(docState, &wire); err != nil {
		return wireDocument{}, fmt.Errorf("%w: %s: %v", ErrInvalidData, objectID, err)
	}
	if wire.Format != wireFormat {
		return wireDocument{}, fmt.Errorf("%w: %s: unknown format %q", ErrInvalidData, objectID, wire.Format)
	}
	if wire.Version != EncoderVersionV1 {
		return wireDocument{}, fmt.Errorf("%w: %s: unsupported version %d", ErrInvalidData, objectID, wire.Version)
	}
	if objectID != "" && wire.ObjectID != objectID {
		return wireDocument{}, fmt.Errorf("%w: doc state belongs to %s, not %s", ErrInvalidData, wire.ObjectID, objectID)
	}
	if err := wire.Data.Validate(); err != nil {
		return wireDocument{}, fmt.Errorf("%s: %w", objectID, err)
	}

	return wire, nil
}
