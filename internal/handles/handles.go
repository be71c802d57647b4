// Package handles implements the client's uint64-keyed kernel file-handle
// table.
//
// The server side does not need an equivalent table: internal/sftpd builds
// on github.com/pkg/sftp's RequestServer, which already keeps its own
// string-keyed handle table (and, per handle, an independent readdir
// listing cursor) internally. An earlier revision of this package
// duplicated that bookkeeping with a hand-rolled ServerTable; it was
// dropped once the RequestServer's own per-handle state turned out to
// already avoid the shared-cursor bug the reference design suffers from,
// without needing a second table to track it in.
package handles

import (
	"sync"
)

// ClientFile is the minimal surface the client handle table needs from an
// open remote file: independent seek+read+write, matching *sftp.File.
type ClientFile interface {
	ReadAt(p []byte, off int64) (int, error)
	WriteAt(p []byte, off int64) (int, error)
	Close() error
}

// ClientTable is the client's uint64-keyed open-file-handle table. Handles
// are allocated from a monotonically increasing counter and never reused.
type ClientTable struct {
	mu      sync.Mutex
	entries map[uint64]ClientFile
	next    uint64
}

// NewClientTable returns an empty client-side handle table.
func NewClientTable() *ClientTable {
	return &ClientTable{entries: make(map[uint64]ClientFile)}
}

// Add allocates the next handle number for file and stores it.
func (t *ClientTable) Add(file ClientFile) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	fh := t.next
	t.next++
	t.entries[fh] = file
	return fh
}

// Get returns the file bound to fh, if any.
func (t *ClientTable) Get(fh uint64) (ClientFile, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	f, ok := t.entries[fh]
	return f, ok
}

// Remove drops fh from the table and closes the underlying file.
func (t *ClientTable) Remove(fh uint64) error {
	t.mu.Lock()
	f, ok := t.entries[fh]
	delete(t.entries, fh)
	t.mu.Unlock()

	if !ok {
		return nil
	}
	return f.Close()
}
