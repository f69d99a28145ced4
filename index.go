package rwfs

import (
	"sort"

	"github.com/jcake/rwfs/internal/fastmap"
)

// Index is the in-memory image of the container's structural metadata:
// the header fields, the fragment-table chunks, the reconstructed
// free-space map, and the end watermark. It exists for the lifetime of a
// Store and is the sole source of truth about allocation (spec.md §3).
type Index struct {
	version             uint32
	rootFragmentID      uint64
	fragmentTableOffset uint64

	parts []FragmentTablePart

	// freeSpace maps extent size -> candidate offsets of that size, in
	// insertion order; takeFree pops the last element in O(1).
	// sizes holds the keys in ascending order for best-fit scanning.
	freeSpace map[uint64][]uint64
	sizes     []uint64

	// end is the watermark: the smallest page-aligned offset strictly
	// greater than every known occupied byte.
	end uint64

	// latest maps a fragment id to its highest-sequence descriptor,
	// kept up to date incrementally so open_fragment and identifier
	// minting don't rescan the whole table.
	latest fastmap.Uint64Map[FragmentDescriptor]

	// maxID is the largest fragment id seen across the table, used by
	// identifier minting (§4.6) when no explicit id is supplied.
	maxID uint64
}

// newIndex builds an Index from already-decoded parts, running the §4.3
// free-space reconstruction over every descriptor in the table.
func newIndex(version uint32, rootFragmentID, fragmentTableOffset uint64, parts []FragmentTablePart) *Index {
	idx := &Index{
		version:             version,
		rootFragmentID:      rootFragmentID,
		fragmentTableOffset: fragmentTableOffset,
		parts:               parts,
		freeSpace:           make(map[uint64][]uint64),
	}

	type occupied struct {
		offset uint64
		length uint64
	}
	var extents []occupied

	for _, part := range parts {
		for _, d := range part.Descriptors {
			idx.observeDescriptor(d)
			extents = append(extents, occupied{d.Offset, d.Length})
		}
		// A chunk itself occupies a page-aligned extent sized by its
		// capacity, even though that's not recorded as a descriptor.
		chunkSize := roundUp(TableChunkHeaderSize+part.Capacity*DescriptorSize, PageSize)
		extents = append(extents, occupied{part.Offset, chunkSize})
	}

	sort.Slice(extents, func(i, j int) bool { return extents[i].offset < extents[j].offset })

	for i, e := range extents {
		end := e.offset + e.length
		if end > idx.end {
			idx.end = roundUp(end, PageSize)
		}
		if i+1 >= len(extents) {
			continue
		}
		next := extents[i+1]
		gapStart := roundUp(e.offset+e.length, PageSize)
		if next.offset > gapStart {
			gapSize := roundDown(next.offset-gapStart, PageSize)
			if gapSize > 0 {
				idx.insertFree(gapStart, gapSize)
			}
		}
	}

	return idx
}

// observeDescriptor folds d into the latest-sequence cache and the
// max-id tracker. Safe to call multiple times for the same id as long as
// sequences are only ever introduced in increasing order for a given id
// (true both at open-time table walk and at append time).
func (idx *Index) observeDescriptor(d FragmentDescriptor) {
	if cur, ok := idx.latest.Get(d.ID); !ok || d.Sequence > cur.Sequence {
		idx.latest.Set(d.ID, d)
	}
	if d.ID > idx.maxID {
		idx.maxID = d.ID
	}
}

// latestDescriptor returns the highest-sequence descriptor for id.
func (idx *Index) latestDescriptor(id uint64) (FragmentDescriptor, bool) {
	return idx.latest.Get(id)
}

// nextSequence returns the sequence to use for the next write to id
// (§4.6 "Identifier minting"): one greater than the previously observed
// maximum for that id, or 1 if id has no descriptor yet.
func (idx *Index) nextSequence(id uint64) uint64 {
	if d, ok := idx.latestDescriptor(id); ok {
		return d.Sequence + 1
	}
	return 1
}

// nextID returns the fragment id to mint when the caller supplied none:
// one greater than the largest id seen in the table (or 1 if the table
// only has the id-0 placeholder / is empty).
func (idx *Index) nextID() uint64 {
	if idx.maxID == 0 {
		return 1
	}
	return idx.maxID + 1
}

// insertFree records a free extent of the given size at offset.
func (idx *Index) insertFree(offset, size uint64) {
	if _, ok := idx.freeSpace[size]; !ok {
		idx.sizes = append(idx.sizes, size)
		sort.Slice(idx.sizes, func(i, j int) bool { return idx.sizes[i] < idx.sizes[j] })
	}
	idx.freeSpace[size] = append(idx.freeSpace[size], offset)
}

// takeFree pops a best-fit offset of size >= need, if one exists.
func (idx *Index) takeFree(need uint64) (offset, granted uint64, ok bool) {
	n := len(idx.sizes)
	i := sort.Search(n, func(i int) bool { return idx.sizes[i] >= need })
	if i >= n {
		return 0, 0, false
	}
	size := idx.sizes[i]
	offsets := idx.freeSpace[size]
	offset = offsets[len(offsets)-1]
	offsets = offsets[:len(offsets)-1]
	if len(offsets) == 0 {
		delete(idx.freeSpace, size)
		idx.sizes = append(idx.sizes[:i], idx.sizes[i+1:]...)
	} else {
		idx.freeSpace[size] = offsets
	}
	return offset, size, true
}

// recordDescriptor appends d to the in-memory table image (the last
// chunk) and updates derived state. The caller is responsible for
// persisting d to the backing stream; this only updates the Index.
func (idx *Index) recordDescriptor(d FragmentDescriptor) {
	last := &idx.parts[len(idx.parts)-1]
	last.Descriptors = append(last.Descriptors, d)
	idx.observeDescriptor(d)
	if end := d.Offset + d.Length; roundUp(end, PageSize) > idx.end {
		idx.end = roundUp(end, PageSize)
	}
}

// lastPart returns the current tail chunk.
func (idx *Index) lastPart() *FragmentTablePart {
	return &idx.parts[len(idx.parts)-1]
}

// totalDescriptors counts descriptors across every chunk (§4.5 step 1).
func (idx *Index) totalDescriptors() uint64 {
	var n uint64
	for _, p := range idx.parts {
		n += uint64(len(p.Descriptors))
	}
	return n
}
