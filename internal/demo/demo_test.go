package demo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedPhonebookCompiles(t *testing.T) {
	pb, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "announcement", pb.Initial)
	assert.Contains(t, pb.States, "destruction")
}
