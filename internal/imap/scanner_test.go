package imap

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSearcher serves UID searches from a fixed set of UIDs.
type fakeSearcher struct {
	uids    []uint32
	err     error
	queries [][2]uint32
}

func (f *fakeSearcher) SearchUIDs(folder string, start, end uint32) ([]uint32, error) {
	f.queries = append(f.queries, [2]uint32{start, end})
	if f.err != nil {
		return nil, f.err
	}
	var out []uint32
	for _, uid := range f.uids {
		if uid >= start && (end == 0 || uid <= end) {
			out = append(out, uid)
		}
	}
	return out, nil
}

func TestScanUIDsSinglePage(t *testing.T) {
	s := &fakeSearcher{uids: []uint32{3, 1, 7, 5}}

	uids, err := ScanUIDs(s, "INBOX", 1, 0, 100)
	require.NoError(t, err)
	assert.Equal(t, []uint32{1, 3, 5, 7}, uids)
}

func TestScanUIDsSpansPages(t *testing.T) {
	// UIDs straddle three windows of width 10.
	s := &fakeSearcher{uids: []uint32{2, 11, 12, 25}}

	uids, err := ScanUIDs(s, "INBOX", 1, 30, 10)
	require.NoError(t, err)
	assert.Equal(t, []uint32{2, 11, 12, 25}, uids)
}

func TestScanUIDsStopsOnEmptyPage(t *testing.T) {
	// Nothing beyond UID 5: the scan of an open-ended range must stop
	// at the first empty window instead of walking to 2^32.
	s := &fakeSearcher{uids: []uint32{1, 5}}

	uids, err := ScanUIDs(s, "INBOX", 1, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, []uint32{1, 5}, uids)
	assert.Len(t, s.queries, 2)
}

func TestScanUIDsStopsAtEnd(t *testing.T) {
	s := &fakeSearcher{uids: []uint32{1, 5, 15, 25}}

	uids, err := ScanUIDs(s, "INBOX", 1, 20, 10)
	require.NoError(t, err)
	assert.Equal(t, []uint32{1, 5, 15}, uids)
	for _, q := range s.queries {
		assert.LessOrEqual(t, q[1], uint32(20))
	}
}

func TestScanUIDsPropagatesError(t *testing.T) {
	s := &fakeSearcher{err: errors.New("unexpected EOF")}

	_, err := ScanUIDs(s, "INBOX", 1, 0, 10)
	assert.Error(t, err)
}

func TestScanUIDsDeduplicatesOverlap(t *testing.T) {
	// Duplicate results across windows collapse to one entry each.
	s := &fakeSearcher{uids: []uint32{4, 4, 9}}

	uids, err := ScanUIDs(s, "INBOX", 1, 0, 100)
	require.NoError(t, err)
	assert.Equal(t, []uint32{4, 9}, uids)
}
