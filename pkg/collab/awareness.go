package collab

// AwarenessVersion is the version stamped on every local awareness state.
const AwarenessVersion = 1

// AwarenessUser identifies the user and device publishing a state.
type AwarenessUser struct {
	UID      int64  `json:"uid"`
	DeviceID string `json:"device_id"`
}

// Position addresses a point in the block tree: the path of child indexes
// from the page, then a character offset inside that block's text.
type Position struct {
	Path   []int `json:"path"`
	Offset int   `json:"offset"`
}

// Selection is a cursor (Start == End) or a range.
type Selection struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// AwarenessState is the ephemeral presence of one user on a document. It is
// never persisted or encoded.
type AwarenessState struct {
	Version   int           `json:"version"`
	User      AwarenessUser `json:"user"`
	Selection *Selection    `json:"selection,omitempty"`
	Metadata  string        `json:"metadata,omitempty"`
	// Timestamp is milliseconds since the Unix epoch.
	Timestamp int64 `json:"timestamp"`
}
