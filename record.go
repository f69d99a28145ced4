package rwfs

import (
	"encoding/binary"
	"io"
)

// FragmentRecordHeader is the payload record format declared by the
// original source (magic "FRAG", a reserved payload hash, a length), kept
// here for layout completeness only. Per spec.md §4.1 and §1, nothing in
// the handle/store hot path constructs or reads one: fragments are
// addressed purely by descriptor (offset, length) in the table, and the
// hash field's algorithm is explicitly out of scope.
//
//	0    4B   magic "FRAG"
//	4    4B   flags
//	8    8B   fragment id
//	16   8B   sequence
//	24   8B   payload length
//	32   32B  reserved hash (opaque, unverified)
//	64   20B  reserved
type FragmentRecordHeader struct {
	Flags    uint32
	ID       uint64
	Sequence uint64
	Length   uint64
	Hash     [HashFieldSize]byte
}

// DecodeFragmentRecordHeader reads a FragmentRecordHeader from the
// current position of r.
func DecodeFragmentRecordHeader(r io.Reader) (FragmentRecordHeader, error) {
	buf := make([]byte, FragmentRecordHeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return FragmentRecordHeader{}, wrapError(KindDecode, "truncated fragment record header", err)
	}
	if buf[0] != FragmentRecordMagic[0] || buf[1] != FragmentRecordMagic[1] || buf[2] != FragmentRecordMagic[2] || buf[3] != FragmentRecordMagic[3] {
		return FragmentRecordHeader{}, ErrInvalidMagic
	}
	h := FragmentRecordHeader{
		Flags:    binary.LittleEndian.Uint32(buf[4:8]),
		ID:       binary.LittleEndian.Uint64(buf[8:16]),
		Sequence: binary.LittleEndian.Uint64(buf[16:24]),
		Length:   binary.LittleEndian.Uint64(buf[24:32]),
	}
	copy(h.Hash[:], buf[32:32+HashFieldSize])
	return h, nil
}

// EncodeFragmentRecordHeader writes h to the current position of w.
func EncodeFragmentRecordHeader(w io.Writer, h FragmentRecordHeader) error {
	buf := make([]byte, FragmentRecordHeaderSize)
	copy(buf[0:4], FragmentRecordMagic[:])
	binary.LittleEndian.PutUint32(buf[4:8], h.Flags)
	binary.LittleEndian.PutUint64(buf[8:16], h.ID)
	binary.LittleEndian.PutUint64(buf[16:24], h.Sequence)
	binary.LittleEndian.PutUint64(buf[24:32], h.Length)
	copy(buf[32:32+HashFieldSize], h.Hash[:])
	// buf[64:84] stays zero: reserved.
	if _, err := w.Write(buf); err != nil {
		return wrapError(KindIO, "write fragment record header", err)
	}
	return nil
}
