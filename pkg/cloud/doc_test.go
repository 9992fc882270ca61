package cloud

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeys(t *testing.T) {
	assert.Equal(t, "workspaces/ws/documents/doc.collab", DocumentKey("ws", "doc"))
	assert.Equal(t, "workspaces/ws/files/doc/f1-my-notes.txt", FileKey("ws", "doc", "f1", "/tmp/my notes.txt"))
}

func TestParseURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantKey string
		wantErr bool
	}{
		{name: "valid", url: "local://workspaces/ws/files/a.txt", wantKey: "workspaces/ws/files/a.txt"},
		{name: "leading slash", url: "local:///workspaces/a.txt", wantKey: "workspaces/a.txt"},
		{name: "wrong scheme", url: "s3://bucket/a.txt", wantErr: true},
		{name: "empty key", url: "local://", wantErr: true},
		{name: "traversal", url: "local://workspaces/../../etc/passwd", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, err := ParseURL("local", tt.url)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantKey, key)
			assert.Equal(t, "local://"+tt.wantKey, FormatURL("local", key))
		})
	}
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "a-b-c.txt", SanitizeFilename("a b:c.txt"))
	assert.Equal(t, "quote.txt", SanitizeFilename(`"quote".txt`))
}
