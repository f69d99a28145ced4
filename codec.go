package rwfs

import (
	"encoding/binary"
	"io"
)

// Header is the 24-byte structure at offset 0 of the backing stream.
//
//	0   4B   magic "RWFS"
//	4   4B   version (u32)
//	8   8B   root fragment id (u64)
//	16  8B   first fragment-table chunk pointer (u64)
type Header struct {
	Version             uint32
	RootFragmentID      uint64
	FragmentTableOffset uint64
}

// DecodeHeader reads a Header from the current position of r. It fails
// with ErrInvalidMagic if the magic bytes mismatch and a decode error on
// any truncated read.
func DecodeHeader(r io.Reader) (Header, error) {
	buf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return Header{}, wrapError(KindDecode, "truncated header", err)
	}
	if buf[0] != HeaderMagic[0] || buf[1] != HeaderMagic[1] || buf[2] != HeaderMagic[2] || buf[3] != HeaderMagic[3] {
		return Header{}, ErrInvalidMagic
	}
	return Header{
		Version:             binary.LittleEndian.Uint32(buf[4:8]),
		RootFragmentID:      binary.LittleEndian.Uint64(buf[8:16]),
		FragmentTableOffset: binary.LittleEndian.Uint64(buf[16:24]),
	}, nil
}

// EncodeHeader writes h to the current position of w. It does not seek;
// callers position the cursor first.
func EncodeHeader(w io.Writer, h Header) error {
	buf := make([]byte, HeaderSize)
	copy(buf[0:4], HeaderMagic[:])
	binary.LittleEndian.PutUint32(buf[4:8], h.Version)
	binary.LittleEndian.PutUint64(buf[8:16], h.RootFragmentID)
	binary.LittleEndian.PutUint64(buf[16:24], h.FragmentTableOffset)
	_, err := w.Write(buf)
	if err != nil {
		return wrapError(KindIO, "write header", err)
	}
	return nil
}

// FragmentDescriptor locates one version of one fragment: 32 bytes on
// disk as four little-endian u64s, in this order.
type FragmentDescriptor struct {
	ID       uint64
	Sequence uint64
	Offset   uint64
	Length   uint64
}

// DecodeDescriptor reads one FragmentDescriptor from the current position
// of r.
func DecodeDescriptor(r io.Reader) (FragmentDescriptor, error) {
	buf := make([]byte, DescriptorSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return FragmentDescriptor{}, wrapError(KindDecode, "truncated descriptor", err)
	}
	return decodeDescriptorBytes(buf), nil
}

func decodeDescriptorBytes(buf []byte) FragmentDescriptor {
	return FragmentDescriptor{
		ID:       binary.LittleEndian.Uint64(buf[0:8]),
		Sequence: binary.LittleEndian.Uint64(buf[8:16]),
		Offset:   binary.LittleEndian.Uint64(buf[16:24]),
		Length:   binary.LittleEndian.Uint64(buf[24:32]),
	}
}

// EncodeDescriptor writes d to the current position of w.
func EncodeDescriptor(w io.Writer, d FragmentDescriptor) error {
	buf := make([]byte, DescriptorSize)
	encodeDescriptorBytes(buf, d)
	if _, err := w.Write(buf); err != nil {
		return wrapError(KindIO, "write descriptor", err)
	}
	return nil
}

func encodeDescriptorBytes(buf []byte, d FragmentDescriptor) {
	binary.LittleEndian.PutUint64(buf[0:8], d.ID)
	binary.LittleEndian.PutUint64(buf[8:16], d.Sequence)
	binary.LittleEndian.PutUint64(buf[16:24], d.Offset)
	binary.LittleEndian.PutUint64(buf[24:32], d.Length)
}

// FragmentTablePart is one chunk of the fragment table.
//
//	0    8B   continuation pointer (0 terminates)
//	8    8B   capacity (max descriptors this chunk holds)
//	16   8B   length (descriptors actually present)
//	24+  N×32 descriptors
type FragmentTablePart struct {
	// Offset is where this chunk lives in the backing stream. Not part
	// of the on-disk chunk layout itself (a chunk doesn't know its own
	// offset); populated by the caller that located it, for the Index's
	// bookkeeping.
	Offset uint64

	Continuation uint64
	Capacity     uint64
	Descriptors  []FragmentDescriptor
}

// DecodeTableChunkHeader reads just the 24-byte fixed header of a chunk
// (continuation, capacity, length) without its descriptors. It fails
// LengthExceedsCapacity if length > capacity.
func DecodeTableChunkHeader(r io.Reader) (continuation, capacity, length uint64, err error) {
	buf := make([]byte, TableChunkHeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return 0, 0, 0, wrapError(KindDecode, "truncated table chunk header", err)
	}
	continuation = binary.LittleEndian.Uint64(buf[0:8])
	capacity = binary.LittleEndian.Uint64(buf[8:16])
	length = binary.LittleEndian.Uint64(buf[16:24])
	if length > capacity {
		return 0, 0, 0, ErrLengthExceedsCapacity
	}
	return continuation, capacity, length, nil
}

// DecodeTablePart reads one full chunk (header plus its `length` live
// descriptors) from the current position of r. Reserved-but-unused slots
// between length and capacity are not read; nothing in this format needs
// their contents.
func DecodeTablePart(r io.Reader) (FragmentTablePart, error) {
	continuation, capacity, length, err := DecodeTableChunkHeader(r)
	if err != nil {
		return FragmentTablePart{}, err
	}
	descriptors := make([]FragmentDescriptor, length)
	if length > 0 {
		buf := make([]byte, length*DescriptorSize)
		if _, err := io.ReadFull(r, buf); err != nil {
			return FragmentTablePart{}, wrapError(KindDecode, "truncated table chunk descriptors", err)
		}
		for i := range descriptors {
			descriptors[i] = decodeDescriptorBytes(buf[i*DescriptorSize : (i+1)*DescriptorSize])
		}
	}
	return FragmentTablePart{
		Continuation: continuation,
		Capacity:     capacity,
		Descriptors:  descriptors,
	}, nil
}

// EncodeTableChunkHeader writes just the fixed 24-byte header.
func EncodeTableChunkHeader(w io.Writer, continuation, capacity, length uint64) error {
	if length > capacity {
		return ErrLengthExceedsCapacity
	}
	buf := make([]byte, TableChunkHeaderSize)
	binary.LittleEndian.PutUint64(buf[0:8], continuation)
	binary.LittleEndian.PutUint64(buf[8:16], capacity)
	binary.LittleEndian.PutUint64(buf[16:24], length)
	if _, err := w.Write(buf); err != nil {
		return wrapError(KindIO, "write table chunk header", err)
	}
	return nil
}

// EncodeTablePart writes a full chunk: its header followed by every
// descriptor in part.Descriptors (len(part.Descriptors) must equal the
// length encoded; capacity may reserve more slots than are written here,
// which is fine since nothing reads past length on decode).
func EncodeTablePart(w io.Writer, part FragmentTablePart) error {
	if err := EncodeTableChunkHeader(w, part.Continuation, part.Capacity, uint64(len(part.Descriptors))); err != nil {
		return err
	}
	for _, d := range part.Descriptors {
		if err := EncodeDescriptor(w, d); err != nil {
			return err
		}
	}
	return nil
}
