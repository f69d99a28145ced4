package rwfs

import (
	"bytes"
	"testing"
)

func TestHeaderRoundTrip(t *testing.T) {
	h := Header{Version: 7, RootFragmentID: 42, FragmentTableOffset: PageSize}
	var buf bytes.Buffer
	if err := EncodeHeader(&buf, h); err != nil {
		t.Fatalf("EncodeHeader: %v", err)
	}
	if buf.Len() != HeaderSize {
		t.Fatalf("encoded header is %d bytes, want %d", buf.Len(), HeaderSize)
	}
	got, err := DecodeHeader(&buf)
	if err != nil {
		t.Fatalf("DecodeHeader: %v", err)
	}
	if got != h {
		t.Fatalf("DecodeHeader round trip = %+v, want %+v", got, h)
	}
}

func TestHeaderInvalidMagic(t *testing.T) {
	buf := bytes.NewBuffer(make([]byte, HeaderSize))
	if _, err := DecodeHeader(buf); !IsInvalidMagic(err) {
		t.Fatalf("expected invalid magic error, got %v", err)
	}
}

func TestHeaderTruncated(t *testing.T) {
	var buf bytes.Buffer
	if err := EncodeHeader(&buf, Header{}); err != nil {
		t.Fatalf("EncodeHeader: %v", err)
	}
	truncated := bytes.NewBuffer(buf.Bytes()[:HeaderSize-1])
	if _, err := DecodeHeader(truncated); !IsDecodeError(err) {
		t.Fatalf("expected decode error, got %v", err)
	}
}

func TestDescriptorRoundTrip(t *testing.T) {
	cases := []FragmentDescriptor{
		{ID: 0, Sequence: 0, Offset: 2 * PageSize, Length: PageSize},
		{ID: 1, Sequence: 3, Offset: 12288, Length: 4096},
		{ID: ^uint64(0), Sequence: ^uint64(0), Offset: ^uint64(0), Length: ^uint64(0)},
	}
	for _, d := range cases {
		var buf bytes.Buffer
		if err := EncodeDescriptor(&buf, d); err != nil {
			t.Fatalf("EncodeDescriptor(%+v): %v", d, err)
		}
		if buf.Len() != DescriptorSize {
			t.Fatalf("encoded descriptor is %d bytes, want %d", buf.Len(), DescriptorSize)
		}
		got, err := DecodeDescriptor(&buf)
		if err != nil {
			t.Fatalf("DecodeDescriptor: %v", err)
		}
		if got != d {
			t.Fatalf("round trip = %+v, want %+v", got, d)
		}
	}
}

func TestTablePartRoundTrip(t *testing.T) {
	part := FragmentTablePart{
		Continuation: 8192,
		Capacity:     4,
		Descriptors: []FragmentDescriptor{
			{ID: 1, Sequence: 1, Offset: 2 * PageSize, Length: PageSize},
			{ID: 2, Sequence: 1, Offset: 3 * PageSize, Length: PageSize},
		},
	}
	var buf bytes.Buffer
	if err := EncodeTablePart(&buf, part); err != nil {
		t.Fatalf("EncodeTablePart: %v", err)
	}
	wantLen := TableChunkHeaderSize + len(part.Descriptors)*DescriptorSize
	if buf.Len() != wantLen {
		t.Fatalf("encoded part is %d bytes, want %d", buf.Len(), wantLen)
	}
	got, err := DecodeTablePart(&buf)
	if err != nil {
		t.Fatalf("DecodeTablePart: %v", err)
	}
	if got.Continuation != part.Continuation || got.Capacity != part.Capacity {
		t.Fatalf("header mismatch: got %+v, want %+v", got, part)
	}
	if len(got.Descriptors) != len(part.Descriptors) {
		t.Fatalf("descriptor count = %d, want %d", len(got.Descriptors), len(part.Descriptors))
	}
	for i := range part.Descriptors {
		if got.Descriptors[i] != part.Descriptors[i] {
			t.Fatalf("descriptor %d = %+v, want %+v", i, got.Descriptors[i], part.Descriptors[i])
		}
	}
}

func TestTablePartLengthExceedsCapacity(t *testing.T) {
	var buf bytes.Buffer
	if err := EncodeTableChunkHeader(&buf, 0, 1, 1); err != nil {
		t.Fatalf("EncodeTableChunkHeader: %v", err)
	}
	// Corrupt the length field (offset 16) to claim more than capacity.
	raw := buf.Bytes()
	raw[16] = 5
	corrupt := bytes.NewReader(raw)
	if _, err := DecodeTableChunkHeader(corrupt); err != ErrLengthExceedsCapacity {
		t.Fatalf("expected ErrLengthExceedsCapacity, got %v", err)
	}
}

func TestFragmentRecordHeaderRoundTrip(t *testing.T) {
	h := FragmentRecordHeader{Flags: 1, ID: 9, Sequence: 2, Length: 128}
	copy(h.Hash[:], "not-a-real-hash-algorithm-yet")
	var buf bytes.Buffer
	if err := EncodeFragmentRecordHeader(&buf, h); err != nil {
		t.Fatalf("EncodeFragmentRecordHeader: %v", err)
	}
	if buf.Len() != FragmentRecordHeaderSize {
		t.Fatalf("encoded record header is %d bytes, want %d", buf.Len(), FragmentRecordHeaderSize)
	}
	got, err := DecodeFragmentRecordHeader(&buf)
	if err != nil {
		t.Fatalf("DecodeFragmentRecordHeader: %v", err)
	}
	if got != h {
		t.Fatalf("round trip = %+v, want %+v", got, h)
	}
}

func TestFragmentRecordHeaderInvalidMagic(t *testing.T) {
	buf := bytes.NewBuffer(make([]byte, FragmentRecordHeaderSize))
	if _, err := DecodeFragmentRecordHeader(buf); !IsInvalidMagic(err) {
		t.Fatalf("expected invalid magic error, got %v", err)
	}
}
