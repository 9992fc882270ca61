// Package docid provides the stable identifier used to key collaborative
// documents.
//
// A document is identified by a UUID that never changes for the lifetime of
// the document, regardless of whether its bytes live in the local store, the
// remote backend, or both. The same value keys the in-memory registry, the
// persisted collab rows and the objects replicated to the remote backend.
//
//	id := docid.NewUUID()
//	parsed, err := docid.ParseUUID("550e8400-e29b-41d4-a716-446655440000")
//	if err != nil {
//	    return err
//	}
//
// UUID implements sql.Scanner and driver.Valuer so it can be stored directly
// in gorm models, and json.Marshaler so it travels in outbox payloads and
// event envelopes as its canonical string form.
package docid
