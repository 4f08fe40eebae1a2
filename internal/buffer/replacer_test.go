package buffer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLRUReplacer_VictimOrderMatchesUnpinOrder(t *testing.T) {
	r := NewLRUReplacer(8)

	r.Unpin(1)
	r.Unpin(2)
	r.Unpin(3)
	require.Equal(t, 3, r.Size())

	v, err := r.Victim()
	require.NoError(t, err)
	require.Equal(t, 1, v)

	v, err = r.Victim()
	require.NoError(t, err)
	require.Equal(t, 2, v)

	v, err = r.Victim()
	require.NoError(t, err)
	require.Equal(t, 3, v)

	require.Equal(t, 0, r.Size())
}

func TestLRUReplacer_VictimOnEmptyFails(t *testing.T) {
	r := NewLRUReplacer(4)
	_, err := r.Victim()
	require.ErrorIs(t, err, ErrReplacerEmpty)
}

func TestLRUReplacer_PinRemovesFromCandidates(t *testing.T) {
	r := NewLRUReplacer(4)
	r.Unpin(1)
	r.Unpin(2)
	r.Pin(1)
	require.Equal(t, 1, r.Size())

	v, err := r.Victim()
	require.NoError(t, err)
	require.Equal(t, 2, v)
}

func TestLRUReplacer_ReUnpinIsNoopForOrder(t *testing.T) {
	r := NewLRUReplacer(4)
	r.Unpin(1)
	r.Unpin(2)
	r.Unpin(1) // already present; must not move to front

	v, err := r.Victim()
	require.NoError(t, err)
	require.Equal(t, 1, v)
}
