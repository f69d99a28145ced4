package rwfs

import "io"

// handleMode is the fragment handle's current state (§4.6). Transitions
// are one-way: ReadOnly promotes to Sized on first write (copy-on-write),
// and Dynamic/Buffered promotes to Dynamic/Streamed once its threshold is
// crossed. Sized never transitions.
type handleMode int

const (
	modeReadOnly handleMode = iota
	modeSized
	modeDynamicBuffered
	modeDynamicStreamed
)

// Handle is a streaming read/write/seek view over one fragment version.
// It implements every state the spec's handle state machine describes;
// which operations are legal, and what they mean, depends on the current
// mode. A single concrete type (rather than one type per mode) lets
// OpenFragment hand back a value that can later promote itself in place,
// mirroring the original's enum-with-payload rather than forcing the
// caller to juggle a type switch across the ReadOnly -> Sized edge.
type Handle struct {
	store *Store
	id    uint64
	mode  handleMode
	// sequence is the table sequence this handle will record at Close.
	// For ReadOnly handles that never promote, it is never used.
	sequence uint64
	closed   bool

	// window backs ReadOnly and Sized (and, post copy-on-write, the
	// promoted ReadOnly-turned-Sized state).
	window extentWindow

	// Dynamic-only state.
	threshold uint64
	buffered  []byte
	bufCursor int
	streamPtr uint64
	streamLen uint64
}

// newReadOnlyHandle wraps a handle around d's extent for reading.
func newReadOnlyHandle(s *Store, id uint64, d FragmentDescriptor) *Handle {
	return &Handle{
		store:  s,
		id:     id,
		mode:   modeReadOnly,
		window: extentWindow{backing: s.backing, ptr: d.Offset, length: d.Length},
	}
}

// newSizedHandle wraps a freshly allocated extent for writing.
func newSizedHandle(s *Store, id, ptr, length uint64, maxSize *uint64, sequence uint64) *Handle {
	return &Handle{
		store:    s,
		id:       id,
		mode:     modeSized,
		window:   extentWindow{backing: s.backing, ptr: ptr, length: length, maxSize: maxSize},
		sequence: sequence,
	}
}

// newDynamicHandle starts in Buffered mode with the given promotion
// threshold (0 substitutes DefaultBufferThreshold).
func newDynamicHandle(s *Store, id, sequence, threshold uint64) *Handle {
	if threshold == 0 {
		threshold = DefaultBufferThreshold
	}
	return &Handle{
		store:     s,
		id:        id,
		mode:      modeDynamicBuffered,
		sequence:  sequence,
		threshold: threshold,
	}
}

// ID returns the fragment identifier this handle addresses.
func (h *Handle) ID() uint64 { return h.id }

// Read implements io.Reader per the current mode (§4.6).
func (h *Handle) Read(p []byte) (int, error) {
	switch h.mode {
	case modeReadOnly, modeSized:
		return h.window.Read(p)
	case modeDynamicBuffered:
		return h.readBuffered(p)
	case modeDynamicStreamed:
		// §9: streamed mode is append-only; reopen via OpenFragment to
		// read a fragment written this way.
		return 0, ErrInvalidInput
	default:
		return 0, ErrInvalidInput
	}
}

func (h *Handle) readBuffered(p []byte) (int, error) {
	if h.bufCursor >= len(h.buffered) {
		return 0, io.EOF
	}
	n := copy(p, h.buffered[h.bufCursor:])
	h.bufCursor += n
	return n, nil
}

// Write implements io.Writer per the current mode (§4.6), performing the
// ReadOnly->Sized copy-on-write promotion and the Dynamic Buffered-
// >Streamed threshold promotion as needed.
func (h *Handle) Write(p []byte) (int, error) {
	switch h.mode {
	case modeReadOnly:
		if err := h.copyOnWrite(); err != nil {
			return 0, err
		}
		return h.window.Write(p)
	case modeSized:
		return h.window.Write(p)
	case modeDynamicBuffered:
		return h.writeBuffered(p)
	case modeDynamicStreamed:
		return h.writeStreamed(p)
	default:
		return 0, ErrInvalidInput
	}
}

// copyOnWrite performs the ReadOnly -> Sized transition (§9, Open
// Question decision 1): allocate a new extent at least as large as the
// old one, copy the *entire* old extent into it (not just bytes before
// the cursor, so a partial overwrite retains its tail), then continue
// writing from the preserved cursor in the new extent. The sequence for
// the eventual descriptor is minted now, against the current table.
func (h *Handle) copyOnWrite() error {
	old := h.window
	newPtr, newLen := h.store.idx.allocate(old.length)
	buf := make([]byte, old.length)
	if _, err := h.store.backing.ReadAt(buf, int64(old.ptr)); err != nil && err != io.EOF {
		return wrapError(KindIO, "copy-on-write: read old extent", err)
	}
	if _, err := h.store.backing.WriteAt(buf, int64(newPtr)); err != nil {
		return wrapError(KindIO, "copy-on-write: seed new extent", err)
	}
	h.window = extentWindow{backing: h.store.backing, ptr: newPtr, length: newLen, cursor: old.cursor}
	h.sequence = h.store.idx.nextSequence(h.id)
	h.mode = modeSized
	h.store.logger.Logf("rwfs: copy-on-write: fragment %d moved to extent at %d, length %d", h.id, newPtr, newLen)
	return nil
}

func (h *Handle) writeBuffered(p []byte) (int, error) {
	current := uint64(len(h.buffered))
	incoming := uint64(len(p))
	if current+incoming > h.threshold {
		return h.promote(p)
	}
	end := h.bufCursor + len(p)
	if end > len(h.buffered) {
		grown := make([]byte, end)
		copy(grown, h.buffered)
		h.buffered = grown
	}
	copy(h.buffered[h.bufCursor:end], p)
	h.bufCursor = end
	return len(p), nil
}

// promote crosses the buffer threshold (§4.6): flush whatever is
// currently buffered to a fresh extent, switch to Streamed, then
// continue the incoming write against the backing stream.
func (h *Handle) promote(incoming []byte) (int, error) {
	bufLen := uint64(len(h.buffered))
	ptr, _ := h.store.idx.allocate(bufLen + uint64(len(incoming)))
	if bufLen > 0 {
		if _, err := h.store.backing.WriteAt(h.buffered, int64(ptr)); err != nil {
			return 0, wrapError(KindIO, "flush buffered fragment on promotion", err)
		}
	}
	h.streamPtr = ptr
	h.streamLen = bufLen
	h.buffered = nil
	h.bufCursor = 0
	h.mode = modeDynamicStreamed
	return h.writeStreamed(incoming)
}

func (h *Handle) writeStreamed(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	n, err := h.store.backing.WriteAt(p, int64(h.streamPtr+h.streamLen))
	h.streamLen += uint64(n)
	if err != nil {
		return n, wrapError(KindIO, "streamed fragment write", err)
	}
	return n, nil
}

// Seek implements io.Seeker per the current mode.
func (h *Handle) Seek(offset int64, whence int) (int64, error) {
	switch h.mode {
	case modeReadOnly, modeSized:
		return h.window.Seek(offset, whence)
	case modeDynamicBuffered:
		return h.seekBuffered(offset, whence)
	case modeDynamicStreamed:
		return h.seekStreamed(offset, whence)
	default:
		return 0, ErrInvalidInput
	}
}

func (h *Handle) seekBuffered(offset int64, whence int) (int64, error) {
	bound := int64(len(h.buffered))
	var base int64
	switch whence {
	case io.SeekStart:
		base = 0
	case io.SeekCurrent:
		base = int64(h.bufCursor)
	case io.SeekEnd:
		base = bound
	default:
		return 0, ErrInvalidInput
	}
	pos, ok := addOverflowSafe(base, offset)
	if !ok || pos < 0 || pos > bound {
		return 0, ErrInvalidInput
	}
	h.bufCursor = int(pos)
	return pos, nil
}

// seekStreamed implements §9 Open Question decision 2: streamed mode is
// append-only, so the only seek that succeeds is one confirming the
// current tail position; everything else is rejected.
func (h *Handle) seekStreamed(offset int64, whence int) (int64, error) {
	var target int64
	switch whence {
	case io.SeekStart:
		target = offset
	case io.SeekCurrent:
		target = int64(h.streamLen) + offset
	case io.SeekEnd:
		target = int64(h.streamLen) + offset
	default:
		return 0, ErrInvalidInput
	}
	if target != int64(h.streamLen) {
		return 0, ErrInvalidInput
	}
	return target, nil
}

// Close finalizes the handle: ReadOnly handles that were never written
// to have nothing to persist; every other mode appends a new descriptor
// to the fragment table (§4.6, §7: append failure is treated as fatal —
// the caller sees the error and must not retry the write).
func (h *Handle) Close() error {
	if h.closed {
		return nil
	}
	h.closed = true

	switch h.mode {
	case modeReadOnly:
		return nil
	case modeSized:
		d := FragmentDescriptor{ID: h.id, Sequence: h.sequence, Offset: h.window.ptr, Length: h.window.length}
		return h.store.appendDescriptor(d)
	case modeDynamicBuffered:
		ptr, granted := h.store.idx.allocate(uint64(len(h.buffered)))
		if len(h.buffered) > 0 {
			if _, err := h.store.backing.WriteAt(h.buffered, int64(ptr)); err != nil {
				return wrapError(KindIO, "flush buffered fragment on close", err)
			}
		}
		d := FragmentDescriptor{ID: h.id, Sequence: h.sequence, Offset: ptr, Length: granted}
		return h.store.appendDescriptor(d)
	case modeDynamicStreamed:
		d := FragmentDescriptor{ID: h.id, Sequence: h.sequence, Offset: h.streamPtr, Length: roundUp(h.streamLen, PageSize)}
		return h.store.appendDescriptor(d)
	default:
		return nil
	}
}

// extentWindow is a bounded, seekable read/write view over one extent of
// the backing stream, shared by ReadOnly and Sized handles (the original
// factors this into its own `rwslice` type; see SPEC_FULL.md "Supplemented
// features"). It never observes or disturbs the backing stream's own
// cursor: every access goes through ReadAt/WriteAt, which has the same
// net effect as the source's save-cursor/seek/restore-cursor dance
// without the extra round trip.
type extentWindow struct {
	backing Backing
	ptr     uint64
	length  uint64
	maxSize *uint64
	cursor  uint64
}

func (w *extentWindow) bound() uint64 {
	if w.maxSize != nil {
		return *w.maxSize
	}
	return w.length
}

func (w *extentWindow) Read(p []byte) (int, error) {
	bound := w.bound()
	if w.cursor >= bound {
		return 0, io.EOF
	}
	avail := bound - w.cursor
	if uint64(len(p)) > avail {
		p = p[:avail]
	}
	n, err := w.backing.ReadAt(p, int64(w.ptr+w.cursor))
	w.cursor += uint64(n)
	if err == io.EOF && n > 0 {
		err = nil
	}
	return n, err
}

func (w *extentWindow) Write(p []byte) (int, error) {
	bound := w.bound()
	if w.cursor >= bound {
		return 0, nil
	}
	avail := bound - w.cursor
	if uint64(len(p)) > avail {
		p = p[:avail]
	}
	n, err := w.backing.WriteAt(p, int64(w.ptr+w.cursor))
	w.cursor += uint64(n)
	if err != nil {
		return n, wrapError(KindIO, "sized fragment write", err)
	}
	return n, nil
}

// Seek implements the Sized handle's seek contract (§4.6): signed
// arithmetic over Start/Current/End, rejecting any negative or
// out-of-bound result or any overflow, and never touching the backing
// stream's own position.
func (w *extentWindow) Seek(offset int64, whence int) (int64, error) {
	bound := int64(w.bound())
	var base int64
	switch whence {
	case io.SeekStart:
		base = 0
	case io.SeekCurrent:
		base = int64(w.cursor)
	case io.SeekEnd:
		base = bound
	default:
		return 0, ErrInvalidInput
	}
	pos, ok := addOverflowSafe(base, offset)
	if !ok || pos < 0 || pos > bound {
		return 0, ErrInvalidInput
	}
	w.cursor = uint64(pos)
	return pos, nil
}

// addOverflowSafe adds a and b, reporting ok=false on signed 64-bit
// overflow instead of wrapping.
func addOverflowSafe(a, b int64) (int64, bool) {
	sum := a + b
	if b > 0 && sum < a {
		return 0, false
	}
	if b < 0 && sum > a {
		return 0, false
	}
	return sum, true
}
