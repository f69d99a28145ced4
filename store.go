package rwfs

import (
	"encoding/binary"
	"io"
	"math"
)

// Logger is the optional diagnostic sink a Store reports structural
// events to (chunk growth, copy-on-write promotion): the same "caller
// supplies the sink" shape gdbx uses for its UserCtx, kept out of the
// core read/write path itself (spec.md's core never logs; see
// SPEC_FULL.md "Logging"). The zero value of Options uses a no-op
// implementation, so Logf is always safe to call unconditionally.
type Logger interface {
	Logf(format string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Logf(string, ...any) {}

// Options configures a Store at Open/Blank time. Unlike gdbx's Env,
// which exposes a configurable page size, this format's page size is a
// spec-fixed constant (spec.md §3) and is not a knob here.
type Options struct {
	// BufferThreshold overrides DefaultBufferThreshold for every Dynamic
	// handle minted by this Store. Zero means "use the default".
	BufferThreshold uint64
	// Logger receives diagnostic events. Nil means "discard them".
	Logger Logger
}

func (o Options) withDefaults() Options {
	if o.BufferThreshold == 0 {
		o.BufferThreshold = DefaultBufferThreshold
	}
	if o.Logger == nil {
		o.Logger = noopLogger{}
	}
	return o
}

// initialTableCapacity is the descriptor slot count Blank reserves for
// the first fragment-table chunk: as many 32-byte descriptors as fit
// alongside the 24-byte chunk header in one page.
const initialTableCapacity = (PageSize - TableChunkHeaderSize) / DescriptorSize

// Store owns a Backing stream and the Index built from it. It mints
// fragment handles and is the sole entry point for persisting structural
// changes (table growth, new descriptors). A Store is exclusively owned:
// only one goroutine may call its methods at a time (spec.md §5).
type Store struct {
	backing         Backing
	idx             *Index
	logger          Logger
	bufferThreshold uint64
}

// Open reads an existing container from backing: decodes the header,
// walks the fragment-table chunk chain, reconstructs free space, and
// verifies the root fragment id resolves to a descriptor.
func Open(backing Backing, opts Options) (*Store, error) {
	opts = opts.withDefaults()

	if _, err := backing.Seek(0, io.SeekStart); err != nil {
		return nil, wrapError(KindIO, "seek to header", err)
	}
	header, err := DecodeHeader(backing)
	if err != nil {
		return nil, err
	}

	parts, err := readTableChunks(backing, header.FragmentTableOffset)
	if err != nil {
		return nil, err
	}

	idx := newIndex(header.Version, header.RootFragmentID, header.FragmentTableOffset, parts)
	if _, ok := idx.latestDescriptor(header.RootFragmentID); !ok {
		return nil, ErrMissingRootFragment
	}

	return &Store{
		backing:         backing,
		idx:             idx,
		logger:          opts.Logger,
		bufferThreshold: opts.BufferThreshold,
	}, nil
}

// readTableChunks decodes the chunk chain starting at first, following
// continuation pointers until one decodes to zero.
func readTableChunks(backing Backing, first uint64) ([]FragmentTablePart, error) {
	var parts []FragmentTablePart
	offset := first
	for {
		if _, err := backing.Seek(int64(offset), io.SeekStart); err != nil {
			return nil, wrapError(KindIO, "seek to fragment table chunk", err)
		}
		part, err := DecodeTablePart(backing)
		if err != nil {
			return nil, err
		}
		part.Offset = offset
		parts = append(parts, part)
		if part.Continuation == 0 {
			return parts, nil
		}
		offset = part.Continuation
	}
}

// Blank initialises a brand-new container on backing (§4.2), destroying
// whatever structure backing previously held: a header, one table chunk
// holding the synthetic id-0 placeholder descriptor that reserves the
// first data page, and the resulting end watermark.
func Blank(backing Backing, opts Options) (*Store, error) {
	opts = opts.withDefaults()

	root := FragmentDescriptor{ID: RootFragmentID, Sequence: 0, Offset: 2 * PageSize, Length: PageSize}
	part := FragmentTablePart{
		Offset:       PageSize,
		Continuation: 0,
		Capacity:     initialTableCapacity,
		Descriptors:  []FragmentDescriptor{root},
	}

	idx := newIndex(FormatVersion, RootFragmentID, PageSize, []FragmentTablePart{part})

	s := &Store{
		backing:         backing,
		idx:             idx,
		logger:          opts.Logger,
		bufferThreshold: opts.BufferThreshold,
	}

	if err := s.persistHeader(); err != nil {
		return nil, err
	}
	if err := s.persistTablePart(part); err != nil {
		return nil, err
	}
	if err := s.backing.Sync(); err != nil {
		return nil, wrapError(KindIO, "sync after blank", err)
	}
	return s, nil
}

func (s *Store) persistHeader() error {
	h := Header{Version: s.idx.version, RootFragmentID: s.idx.rootFragmentID, FragmentTableOffset: s.idx.fragmentTableOffset}
	if _, err := s.backing.Seek(0, io.SeekStart); err != nil {
		return wrapError(KindIO, "seek to header", err)
	}
	return EncodeHeader(s.backing, h)
}

func (s *Store) persistTablePart(part FragmentTablePart) error {
	if _, err := s.backing.Seek(int64(part.Offset), io.SeekStart); err != nil {
		return wrapError(KindIO, "seek to fragment table chunk", err)
	}
	return EncodeTablePart(s.backing, part)
}

// OpenFragment produces a ReadOnly handle bound to id's latest-sequence
// descriptor. It fails with ErrNotFound if id has no descriptor.
func (s *Store) OpenFragment(id uint64) (*Handle, error) {
	d, ok := s.idx.latestDescriptor(id)
	if !ok {
		return nil, &ErrNotFound{ID: id}
	}
	return newReadOnlyHandle(s, id, d), nil
}

// SizeHint selects between a Sized handle (known size up front, possibly
// just an estimate for the initial allocation) and a Dynamic/Buffered
// handle (final size unknown; see Growable).
type SizeHint struct {
	growable bool
	size     uint64
}

// Sized requests an immediately allocated extent of at least n bytes.
func Sized(n uint64) SizeHint { return SizeHint{size: n} }

// Growable requests a Dynamic handle: small writes buffer in memory and
// promote to a streamed extent once the Store's buffer threshold is
// crossed (§4.6).
var Growable = SizeHint{growable: true}

// NewFragmentOptions configures NewFragment (§4.7).
type NewFragmentOptions struct {
	SizeHint SizeHint
	// ID, if non-nil, mints the fragment under this explicit id instead
	// of the next free one (§4.6 "Identifier minting").
	ID *uint64
}

// NewFragment mints a fragment id (or uses the caller-supplied one), then
// returns a Sized or Dynamic/Buffered handle depending on opts.SizeHint.
func (s *Store) NewFragment(opts NewFragmentOptions) (*Handle, error) {
	var id uint64
	if opts.ID != nil {
		id = *opts.ID
	} else {
		id = s.idx.nextID()
	}
	sequence := s.idx.nextSequence(id)

	if opts.SizeHint.growable {
		return newDynamicHandle(s, id, sequence, s.bufferThreshold), nil
	}

	ptr, granted := s.idx.allocate(opts.SizeHint.size)
	return newSizedHandle(s, id, ptr, granted, nil, sequence), nil
}

// Flush persists any buffered writes on the backing stream. It does not
// re-encode the header: the header is written by Blank, and no later
// operation changes its fields (growTable only rewrites the continuation
// pointer inside the previous chunk), so there is nothing left for Flush
// to do there.
func (s *Store) Flush() error {
	if err := s.backing.Sync(); err != nil {
		return wrapError(KindIO, "flush backing", err)
	}
	return nil
}

// Close flushes the backing stream. It does not close the underlying
// resource (an *os.File, an MmapBacking) — ownership of that lifecycle
// stays with whoever constructed the Backing.
func (s *Store) Close() error {
	return s.Flush()
}

// appendDescriptor records d in the fragment table: growing a new chunk
// first if the current last chunk is full (§4.5), then writing d into
// the next free slot and bumping that chunk's on-disk length.
func (s *Store) appendDescriptor(d FragmentDescriptor) error {
	idx := s.idx
	last := idx.lastPart()
	if uint64(len(last.Descriptors)) >= last.Capacity {
		if err := s.growTable(); err != nil {
			return err
		}
		last = idx.lastPart()
	}

	slot := uint64(len(last.Descriptors))
	if err := s.writeDescriptorAt(last.Offset, slot, d); err != nil {
		return wrapError(KindIO, "persist descriptor", err)
	}
	if err := s.writeChunkLengthAt(last.Offset, slot+1); err != nil {
		return wrapError(KindIO, "persist fragment table chunk length", err)
	}
	idx.recordDescriptor(d)
	return nil
}

// growTable implements §4.5: compute a super-linear new chunk size from
// the table's current occupancy, allocate it, link the old last chunk's
// continuation pointer to it, and append an empty chunk to the in-memory
// list. Failure here must not leave a descriptor recorded.
func (s *Store) growTable() error {
	idx := s.idx
	last := idx.lastPart()

	consumed := idx.totalDescriptors() * DescriptorSize
	x := roundUp(consumed, PageSize)
	if x == 0 {
		x = PageSize
	}
	sq := uint64(math.Ceil(math.Sqrt(float64(x))))
	want := sq * sq

	offset, granted := idx.allocate(want)
	if granted <= TableChunkHeaderSize {
		return wrapError(KindFailedToCreateTablePart, "granted table extent too small", nil)
	}
	capacity := (granted - TableChunkHeaderSize) / DescriptorSize
	if capacity == 0 {
		return wrapError(KindFailedToCreateTablePart, "granted table extent holds no descriptor slots", nil)
	}

	if err := s.writeChunkHeaderAt(offset, 0, capacity, 0); err != nil {
		return wrapError(KindFailedToCreateTablePart, "persist new fragment table chunk", err)
	}
	if err := s.writeChunkContinuationAt(last.Offset, offset); err != nil {
		return wrapError(KindFailedToCreateTablePart, "link fragment table chunk continuation", err)
	}
	last.Continuation = offset

	idx.parts = append(idx.parts, FragmentTablePart{Offset: offset, Continuation: 0, Capacity: capacity})
	s.logger.Logf("rwfs: grew fragment table: new chunk at %d, capacity %d", offset, capacity)
	return nil
}

func (s *Store) writeChunkHeaderAt(offset, continuation, capacity, length uint64) error {
	buf := make([]byte, TableChunkHeaderSize)
	binary.LittleEndian.PutUint64(buf[0:8], continuation)
	binary.LittleEndian.PutUint64(buf[8:16], capacity)
	binary.LittleEndian.PutUint64(buf[16:24], length)
	_, err := s.backing.WriteAt(buf, int64(offset))
	return err
}

func (s *Store) writeChunkContinuationAt(offset, continuation uint64) error {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, continuation)
	_, err := s.backing.WriteAt(buf, int64(offset))
	return err
}

func (s *Store) writeChunkLengthAt(offset, length uint64) error {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, length)
	_, err := s.backing.WriteAt(buf, int64(offset+16))
	return err
}

func (s *Store) writeDescriptorAt(chunkOffset, slot uint64, d FragmentDescriptor) error {
	buf := make([]byte, DescriptorSize)
	encodeDescriptorBytes(buf, d)
	pos := chunkOffset + TableChunkHeaderSize + slot*DescriptorSize
	_, err := s.backing.WriteAt(buf, int64(pos))
	return err
}
