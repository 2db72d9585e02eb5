package imap

import (
	"log"
	"sort"
)

// DefaultScanPageSize is the width of one UID SEARCH window. Protocol
// responses are capped in byte size, so a folder's full UID range is
// queried in contiguous sub-ranges of this width and the results unioned.
const DefaultScanPageSize = 100000

// UIDSearcher is the part of a mailbox session the scanner needs.
type UIDSearcher interface {
	SearchUIDs(folder string, start, end uint32) ([]uint32, error)
}

// ScanUIDs returns the sorted, deduplicated set of UIDs in folder within
// [start, end]. end == 0 means "through the most recent message".
//
// The scan pages through the range pageSize UIDs at a time. An empty page
// before the effective end terminates the scan early: no messages exist
// beyond that point. Transport errors propagate un-retried; reconnecting
// is the caller's responsibility.
func ScanUIDs(s UIDSearcher, folder string, start, end, pageSize uint32) ([]uint32, error) {
	if start < 1 {
		start = 1
	}
	if pageSize == 0 {
		pageSize = DefaultScanPageSize
	}

	var all []uint32
	for {
		winEnd := start + pageSize
		if end != 0 && winEnd > end {
			winEnd = end
		}

		uids, err := s.SearchUIDs(folder, start, winEnd)
		if err != nil {
			return nil, err
		}
		if len(uids) == 0 {
			break
		}
		all = append(all, uids...)

		if end != 0 && winEnd >= end {
			break
		}
		start = winEnd + 1
	}

	all = dedupeSorted(all)
	if len(all) > 0 {
		log.Printf("Scanned folder %s: UIDs %d through %d, %d total", folder, all[0], all[len(all)-1], len(all))
	}
	return all, nil
}

// dedupeSorted sorts the UIDs and drops duplicates (adjacent windows can
// overlap when the server rounds range bounds).
func dedupeSorted(uids []uint32) []uint32 {
	if len(uids) == 0 {
		return uids
	}
	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })

	out := uids[:1]
	for _, uid := range uids[1:] {
		if uid != out[len(out)-1] {
			out = append(out, uid)
		}
	}
	return out
}
