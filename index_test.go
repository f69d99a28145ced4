package rwfs

import "testing"

// TestAllocatorReuse is scenario S5: a container whose descriptors leave
// a page-aligned gap at offset 8192 of size 4096 reconstructs that gap
// into free_space at open time, and the next allocation of matching size
// reuses it instead of appending past the watermark.
func TestAllocatorReuse(t *testing.T) {
	parts := []FragmentTablePart{
		{
			Offset:       PageSize,
			Continuation: 0,
			Capacity:     initialTableCapacity,
			Descriptors: []FragmentDescriptor{
				{ID: 0, Sequence: 0, Offset: 3 * PageSize, Length: PageSize},
			},
		},
	}
	idx := newIndex(FormatVersion, 0, PageSize, parts)

	// Chunk occupies [4096, 8192); descriptor occupies [12288, 16384);
	// the gap [8192, 12288) must have been reconstructed.
	if _, ok := idx.freeSpace[PageSize]; !ok {
		t.Fatalf("expected a free entry of size %d, freeSpace = %+v", PageSize, idx.freeSpace)
	}

	wantEnd := uint64(4 * PageSize)
	if idx.end != wantEnd {
		t.Fatalf("end = %d, want %d", idx.end, wantEnd)
	}

	offset, granted := idx.allocate(PageSize)
	if offset != 2*PageSize {
		t.Fatalf("allocate reused offset = %d, want %d", offset, 2*PageSize)
	}
	if granted != PageSize {
		t.Fatalf("allocate granted = %d, want %d", granted, PageSize)
	}
	if idx.end != wantEnd {
		t.Fatalf("end changed after reusing a gap: got %d, want %d", idx.end, wantEnd)
	}

	// The gap is now consumed; a further same-size request must append.
	offset2, granted2 := idx.allocate(PageSize)
	if offset2 != wantEnd {
		t.Fatalf("second allocate offset = %d, want append at %d", offset2, wantEnd)
	}
	if granted2 != PageSize {
		t.Fatalf("second allocate granted = %d, want %d", granted2, PageSize)
	}
}

func TestAllocatorAppendFallback(t *testing.T) {
	idx := newIndex(FormatVersion, 0, PageSize, []FragmentTablePart{{
		Offset:   PageSize,
		Capacity: initialTableCapacity,
		Descriptors: []FragmentDescriptor{
			{ID: 0, Sequence: 0, Offset: 2 * PageSize, Length: PageSize},
		},
	}})
	if idx.end != 3*PageSize {
		t.Fatalf("end = %d, want %d", idx.end, 3*PageSize)
	}
	offset, granted := idx.allocate(1)
	if offset != 3*PageSize {
		t.Fatalf("allocate(1) offset = %d, want %d", offset, 3*PageSize)
	}
	if granted != PageSize {
		t.Fatalf("allocate(1) granted = %d, want %d (rounded up)", granted, PageSize)
	}
	if idx.end != 4*PageSize {
		t.Fatalf("end after append = %d, want %d", idx.end, 4*PageSize)
	}
}

// TestReconstructionDeterminism is universal property 5: closing and
// reopening a Store over the same backing reconstructs an identical
// free-space map (as a multiset keyed by size).
func TestReconstructionDeterminism(t *testing.T) {
	store, cleanup := newTempStore(t)
	defer cleanup()

	// Allocate and close several fragments under freshly minted ids, then
	// reopen and compare the reconstructed map.
	for i := 0; i < 5; i++ {
		h, err := store.NewFragment(NewFragmentOptions{SizeHint: Sized(10)})
		if err != nil {
			t.Fatalf("NewFragment: %v", err)
		}
		if _, err := h.Write([]byte("0123456789")); err != nil {
			t.Fatalf("Write: %v", err)
		}
		if err := h.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
	}
	if err := store.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	before := freeSpaceMultiset(store.idx)

	reopened := reopenTempStore(t, store)
	after := freeSpaceMultiset(reopened.idx)

	if len(before) != len(after) {
		t.Fatalf("free-space multiset size changed: before %v, after %v", before, after)
	}
	for size, count := range before {
		if after[size] != count {
			t.Fatalf("free-space count for size %d: before %d, after %d", size, count, after[size])
		}
	}
}

func freeSpaceMultiset(idx *Index) map[uint64]int {
	m := make(map[uint64]int)
	for size, offsets := range idx.freeSpace {
		m[size] = len(offsets)
	}
	return m
}
