package document

import (
	"context"

	"github.com/hashicorp-forge/collabdocs/pkg/collab"
	"github.com/hashicorp-forge/collabdocs/pkg/docid"
)

// createDocumentInstance sources the bytes for id and builds a document
// from them. Local bytes win; when there are none the remote backend is
// asked, and an empty answer is treated as not found. Construction failures
// caused by corrupt bytes are returned as ErrInvalidData for the caller to
// purge.
func (m *Manager) createDocumentInstance(ctx context.Context, op string, id docid.UUID, syncEnabled bool) (*collab.Document, scope, error) {
	sc, err := m.persistence(op, id)
	if err != nil {
		return nil, scope{}, err
	}

	src, err := m.dataSource(ctx, op, id, sc)
	if err != nil {
		return nil, scope{}, err
	}

	builder, err := m.collabBuilder(op, id)
	if err != nil {
		return nil, scope{}, err
	}

	m.logger.Debug("initialize document",
		"document_id", id.String(),
		"workspace_id", sc.workspaceID,
		"origin", src.Origin.String(),
		"sync", syncEnabled,
	)
	doc, err := builder.CreateDocument(ctx, id.String(), src, collab.BuildConfig{SyncEnabled: syncEnabled})
	if err != nil {
		if collab.IsInvalidData(err) {
			return nil, scope{}, newError(op, ErrInvalidData, id.String(), err, "failed to build document from %s", src.Origin)
		}
		return nil, scope{}, newError(op, nil, id.String(), err, "failed to build document")
	}
	return doc, sc, nil
}

// dataSource returns the initial bytes for id.
func (m *Manager) dataSource(ctx context.Context, op string, id docid.UUID, sc scope) (collab.DataSource, error) {
	exists, err := m.isDocExist(ctx, op, id, sc)
	if err != nil {
		return collab.DataSource{}, err
	}
	if exists {
		state, err := sc.db.LoadDocState(ctx, sc.uid, sc.workspaceID, id.String())
		if err != nil {
			if IsNotFound(err) {
				return collab.DataSource{}, newError(op, ErrNotFound, id.String(), err, "document %s not found", id)
			}
			return collab.DataSource{}, newError(op, nil, id.String(), err, "failed to load document")
		}
		return collab.DataSource{Origin: collab.OriginDisk, DocState: state}, nil
	}

	m.logger.Info("document not found locally, fetching doc state from the cloud",
		"document_id", id.String(),
	)
	state, err := m.cloud.GetDocumentDocState(ctx, id.String(), sc.workspaceID)
	if err != nil {
		return collab.DataSource{}, classifyRemote(op, id.String(), err, "failed to fetch doc state")
	}
	src := collab.DataSource{Origin: collab.OriginRemote, DocState: state}
	if src.IsEmpty() {
		return collab.DataSource{}, newError(op, ErrNotFound, id.String(), nil, "document %s not found", id)
	}
	return src, nil
}

// GetEncodedCollab encodes id from local bytes only. The document is built
// without sync and not cached. The encoding requires the page block; a
// document without one yields ErrInvalidData.
func (m *Manager) GetEncodedCollab(ctx context.Context, id docid.UUID) (collab.EncodedCollab, error) {
	const op = "GetEncodedCollab"

	if id.IsZero() {
		return collab.EncodedCollab{}, newError(op, ErrNotFound, "", nil, "document id is empty")
	}
	sc, err := m.persistence(op, id)
	if err != nil {
		return collab.EncodedCollab{}, err
	}
	exists, err := m.isDocExist(ctx, op, id, sc)
	if err != nil {
		return collab.EncodedCollab{}, err
	}
	if !exists {
		return collab.EncodedCollab{}, newError(op, ErrNotFound, id.String(), nil, "document %s not found locally", id)
	}
	state, err := sc.db.LoadDocState(ctx, sc.uid, sc.workspaceID, id.String())
	if err != nil {
		if IsNotFound(err) {
			return collab.EncodedCollab{}, newError(op, ErrNotFound, id.String(), err, "document %s not found locally", id)
		}
		return collab.EncodedCollab{}, newError(op, nil, id.String(), err, "failed to load document")
	}

	builder, err := m.collabBuilder(op, id)
	if err != nil {
		return collab.EncodedCollab{}, err
	}
	doc, err := builder.CreateDocument(ctx, id.String(), collab.DataSource{Origin: collab.OriginDisk, DocState: state}, collab.BuildConfig{})
	if err != nil {
		if collab.IsInvalidData(err) {
			return collab.EncodedCollab{}, newError(op, ErrInvalidData, id.String(), err, "failed to build document")
		}
		return collab.EncodedCollab{}, newError(op, nil, id.String(), err, "failed to build document")
	}

	encoded, err := doc.EncodeCollab()
	if err != nil {
		if collab.IsInvalidData(err) {
			return collab.EncodedCollab{}, newError(op, ErrInvalidData, id.String(), err, "document is missing required data")
		}
		return collab.EncodedCollab{}, newError(op, nil, id.String(), err, "failed to encode document")
	}
	return encoded, nil
}
