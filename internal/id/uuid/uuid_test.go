package uuid

import (
	"testing"

	goUUID "github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestGeneratorNewID(t *testing.T) {
	t.Parallel()

	gen := NewUUIDGenerator()
	id1, err := gen.NewID()
	require.NoError(t, err)
	id2, err := gen.NewID()
	require.NoError(t, err)
	require.NotEqual(t, id1, id2)

	parsed, err := goUUID.Parse(id1)
	require.NoError(t, err)
	require.Equal(t, goUUID.Version(7), parsed.Version())
}

func TestValid(t *testing.T) {
	t.Parallel()

	require.True(t, Valid("0190b1c4-7d2a-7c3e-8a1b-0123456789ab"))
	require.False(t, Valid("not-a-uuid"))
	require.False(t, Valid(""))
}
