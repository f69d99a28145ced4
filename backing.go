package rwfs

import (
	"io"
	"os"

	"github.com/pkg/errors"
)

// Backing is the random-access byte source the container persists to
// (spec.md §6: "Backing stream contract"). Implementations must grow on
// write past the current end and persist writes durably on Sync.
type Backing interface {
	io.Reader
	io.Writer
	io.Seeker
	io.ReaderAt
	io.WriterAt

	// Sync persists any buffered writes to the underlying medium.
	Sync() error
}

// FileBacking adapts an *os.File to Backing. This is the simple default
// implementation: every operation forwards directly to the file, which
// already implements ReaderAt/WriterAt/Seeker.
type FileBacking struct {
	f *os.File
}

// NewFileBacking wraps f as a Backing.
func NewFileBacking(f *os.File) *FileBacking {
	return &FileBacking{f: f}
}

func (b *FileBacking) Read(p []byte) (int, error)                { return b.f.Read(p) }
func (b *FileBacking) Write(p []byte) (int, error)                { return b.f.Write(p) }
func (b *FileBacking) Seek(offset int64, whence int) (int64, error) { return b.f.Seek(offset, whence) }
func (b *FileBacking) ReadAt(p []byte, off int64) (int, error)    { return b.f.ReadAt(p, off) }
func (b *FileBacking) WriteAt(p []byte, off int64) (int, error)   { return b.f.WriteAt(p, off) }

// Sync flushes the file to stable storage.
func (b *FileBacking) Sync() error {
	if err := b.f.Sync(); err != nil {
		return errors.Wrap(err, "rwfs: sync backing file")
	}
	return nil
}
