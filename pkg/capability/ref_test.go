package capability

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type service struct{ name string }

func TestRef(t *testing.T) {
	ref := NewRef(&service{name: "storage"})

	got, ok := ref.Get()
	assert.True(t, ok)
	assert.Equal(t, "storage", got.name)

	ref.Release()
	got, ok = ref.Get()
	assert.False(t, ok)
	assert.Nil(t, got)

	// Second release is a no-op.
	ref.Release()
	_, ok = ref.Get()
	assert.False(t, ok)
}

func TestRef_Nil(t *testing.T) {
	var ref *Ref[*service]
	got, ok := ref.Get()
	assert.False(t, ok)
	assert.Nil(t, got)
}
