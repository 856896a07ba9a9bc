package shell

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLineInsertAndErase(t *testing.T) {
	var l line
	require.NoError(t, l.insert(0, 'a'))
	require.NoError(t, l.insert(1, 'c'))
	require.NoError(t, l.insert(1, 'b'))
	require.Equal(t, "abc", l.String())

	require.NoError(t, l.erase(1))
	require.Equal(t, "ac", l.String())
}

func TestLineInsertRejectsFullLine(t *testing.T) {
	var l line
	for i := 0; i < LineMaxSize; i++ {
		require.NoError(t, l.insert(l.size, 'x'))
	}
	require.ErrorIs(t, l.insert(l.size, 'y'), errLineTooLong)
}

func TestHistoryPushSkipsEmptyAndDuplicateLines(t *testing.T) {
	var h history

	h.push() // empty line: no-op
	require.Equal(t, uint64(0), h.newest)

	h.newestLine().insert(0, 'a')
	h.push()
	require.Equal(t, uint64(1), h.newest)

	h.newestLine().insert(0, 'b')
	h.push()
	require.Equal(t, uint64(2), h.newest, "distinct line should be pushed")

	h.newestLine().insert(0, 'b')
	h.push()
	require.Equal(t, uint64(2), h.newest, "repeat of previous line should not be pushed")
}

func TestHistoryBackAndForward(t *testing.T) {
	var h history

	h.newestLine().insert(0, '1')
	h.push()
	h.newestLine().insert(0, '2')
	h.push()

	h.back()
	require.Equal(t, "2", h.newestLine().String())
	h.back()
	require.Equal(t, "1", h.newestLine().String())
	h.back() // already at oldest: no-op
	require.Equal(t, "1", h.newestLine().String())

	h.forward()
	require.Equal(t, "2", h.newestLine().String())
	h.forward()
	require.Equal(t, "", h.newestLine().String())
}

func TestHistoryWrapsAfterCapacity(t *testing.T) {
	var h history
	for i := 0; i < HistorySize+5; i++ {
		h.newestLine().insert(0, byte('a'+i%26))
		h.push()
	}
	require.Equal(t, h.newest-uint64(HistorySize)+1, h.oldest)
}
