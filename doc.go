// Package rwfs is a single-file, append-oriented fragment store: a
// persistent container that maps stable fragment ids to mutable,
// versioned byte blobs held in one backing byte stream.
//
// The container owns a header, a fragment table (a singly-linked list of
// chunks, each holding fixed-size descriptors), and a page-aligned extent
// allocator that reuses gaps left by superseded fragment versions before
// falling back to appending at the end of the stream.
//
// Basic usage:
//
//	f, err := os.Create("container.rwfs")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	store, err := rwfs.Blank(rwfs.NewFileBacking(f), rwfs.Options{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
//	h, err := store.NewFragment(rwfs.NewFragmentOptions{SizeHint: rwfs.Sized(11)})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if _, err := h.Write([]byte("hello world")); err != nil {
//	    log.Fatal(err)
//	}
//	if err := h.Close(); err != nil {
//	    log.Fatal(err)
//	}
//
//	r, err := store.OpenFragment(h.ID())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer r.Close()
//	payload, err := io.ReadAll(r)
//
// Single writer, single thread. See spec.md §5: a Store is exclusively
// owned by one goroutine at a time; the concurrency story (file locking
// across processes) belongs to a calling CLI, not this package.
package rwfs
