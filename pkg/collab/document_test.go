package collab

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildDocument(t *testing.T, syncEnabled bool) (*Document, DocumentData) {
	t.Helper()
	ctx := context.Background()
	b := NewBuilder(BuilderConfig{})

	data := DefaultDocumentData("doc-1")
	encoded, err := b.EncodeDocumentData(ctx, "doc-1", data)
	require.NoError(t, err)

	doc, err := b.CreateDocument(ctx, "doc-1", DataSource{DocState: encoded.DocState}, BuildConfig{SyncEnabled: syncEnabled})
	require.NoError(t, err)
	return doc, data
}

func firstTextID(data DocumentData) string {
	for id := range data.Meta.TextMap {
		return id
	}
	return ""
}

func TestDocument_Paragraphs(t *testing.T) {
	doc, data := buildDocument(t, false)
	assert.Equal(t, []string{""}, doc.Paragraphs())

	textID := firstTextID(data)
	require.NoError(t, doc.ApplyTextDelta(textID, []TextDelta{{Insert: "Hello"}, {Insert: ", world"}}))
	assert.Equal(t, []string{"Hello, world"}, doc.Paragraphs())

	require.NoError(t, doc.InsertBlock(Block{
		ID:           "second",
		Ty:           BlockTypeParagraph,
		Parent:       data.PageID,
		Children:     "second-children",
		ExternalID:   "second-text",
		ExternalType: ExternalTypeText,
	}, ""))
	require.NoError(t, doc.ApplyTextDelta("second-text", []TextDelta{{Insert: "first line"}}))
	assert.Equal(t, []string{"first line", "Hello, world"}, doc.Paragraphs())
}

func TestDocument_ChangeEvents(t *testing.T) {
	doc, data := buildDocument(t, true)

	var events []ChangeEvent
	sub := doc.SubscribeDocumentChanged(func(ev ChangeEvent) {
		events = append(events, ev)
	})

	textID := firstTextID(data)
	require.NoError(t, doc.ApplyTextDelta(textID, []TextDelta{{Insert: "a"}}))
	require.Len(t, events, 1)
	assert.Equal(t, "text", events[0].Kind)
	assert.Equal(t, textID, events[0].Target)
	assert.Equal(t, uint64(1), events[0].Clock)

	sub.Cancel()
	require.NoError(t, doc.ApplyTextDelta(textID, []TextDelta{{Insert: "b"}}))
	assert.Len(t, events, 1)

	assert.Error(t, doc.ApplyTextDelta("unknown", nil))
}

func TestDocument_InsertBlockErrors(t *testing.T) {
	doc, data := buildDocument(t, false)

	assert.Error(t, doc.InsertBlock(Block{}, ""))
	assert.Error(t, doc.InsertBlock(Block{ID: "x", Parent: "missing"}, ""))
	assert.Error(t, doc.InsertBlock(Block{ID: data.PageID, Parent: data.PageID}, ""))
	assert.Error(t, doc.InsertBlock(Block{ID: "y", Parent: data.PageID}, "not-a-sibling"))
}

func TestDocument_EncodeKeepsEdits(t *testing.T) {
	doc, data := buildDocument(t, false)
	textID := firstTextID(data)
	require.NoError(t, doc.ApplyTextDelta(textID, []TextDelta{{Insert: "persisted"}}))

	encoded, err := doc.EncodeCollab()
	require.NoError(t, err)

	reloaded, err := NewBuilder(BuilderConfig{}).CreateDocument(context.Background(), "doc-1", DataSource{DocState: encoded.DocState}, BuildConfig{})
	require.NoError(t, err)
	assert.Equal(t, []string{"persisted"}, reloaded.Paragraphs())
}

func TestDocument_SyncState(t *testing.T) {
	doc, _ := buildDocument(t, true)

	var states []SyncState
	doc.SubscribeSyncState(func(s SyncState) { states = append(states, s) })
	doc.StartInitSync()
	assert.Equal(t, []SyncState{SyncStateInitSyncBegin, SyncStateInitSyncEnd}, states)
	assert.Equal(t, SyncStateInitSyncEnd, doc.SyncState())

	offline, _ := buildDocument(t, false)
	offline.StartInitSync()
	assert.Equal(t, SyncStateIdle, offline.SyncState())
}

func TestDocument_SnapshotState(t *testing.T) {
	doc, _ := buildDocument(t, true)

	var got []SnapshotState
	sub := doc.SubscribeSnapshotState(func(s SnapshotState) { got = append(got, s) })
	doc.RecordSnapshotState(SnapshotState{SnapshotID: "s1", Status: "success"})
	sub.Cancel()
	sub.Cancel()
	doc.RecordSnapshotState(SnapshotState{SnapshotID: "s2", Status: "success"})

	require.Len(t, got, 1)
	assert.Equal(t, "s1", got[0].SnapshotID)
}

func TestDocument_Awareness(t *testing.T) {
	doc, _ := buildDocument(t, true)

	_, ok := doc.AwarenessLocalState()
	assert.False(t, ok)

	doc.SetAwarenessLocalState(AwarenessState{
		Version:   AwarenessVersion,
		User:      AwarenessUser{UID: 7, DeviceID: "laptop"},
		Selection: &Selection{Start: Position{Path: []int{0}, Offset: 1}, End: Position{Path: []int{0}, Offset: 3}},
		Metadata:  `{"color":"red"}`,
		Timestamp: 42,
	})
	state, ok := doc.AwarenessLocalState()
	require.True(t, ok)
	assert.Equal(t, int64(7), state.User.UID)
	assert.Equal(t, 3, state.Selection.End.Offset)

	doc.CleanAwarenessLocalState()
	_, ok = doc.AwarenessLocalState()
	assert.False(t, ok)
}

func TestDocumentData_GetIsACopy(t *testing.T) {
	doc, data := buildDocument(t, false)

	got, err := doc.GetDocumentData()
	require.NoError(t, err)
	got.Meta.TextMap[firstTextID(data)] = `[{"insert":"mutated"}]`

	assert.Equal(t, []string{""}, doc.Paragraphs())
}
