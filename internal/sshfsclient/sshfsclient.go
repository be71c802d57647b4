// Package sshfsclient implements the client side of the bridge: a
// github.com/hanwen/go-fuse/v2/fs filesystem whose every callback is
// serviced by issuing the matching call against a *sftp.Client. Every
// node holds the remote virtual path it represents rather than an
// on-disk one; internal/inode interns that path behind the inode number
// the kernel sees, and internal/handles hands out the uint64 file
// handles Open/Create return.
package sshfsclient

import (
	"context"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/pkg/sftp"

	"sftpbridge/internal/errmap"
	"sftpbridge/internal/handles"
	"sftpbridge/internal/inode"
)

// entryTTL is how long the kernel may cache a lookup's attributes before
// re-validating, trading consistency for request amplification.
const entryTTL = 1 * time.Second

// Filesystem owns the remote connection and the two client-side tables a
// mount needs beyond what go-fuse already tracks for it.
type Filesystem struct {
	client  *sftp.Client
	inodes  *inode.Table
	handles *handles.ClientTable
	uid     uint32
	gid     uint32
	root    string
}

// New returns a Filesystem rooted at the remote virtual path "/", ready
// to be passed to fs.Mount as the InodeEmbedder root.
func New(client *sftp.Client) *Filesystem {
	return NewAt(client, "/")
}

// NewAt returns a Filesystem rooted at remotePath instead of "/", for the
// client CLI's --path flag.
func NewAt(client *sftp.Client, remotePath string) *Filesystem {
	return &Filesystem{
		client:  client,
		inodes:  inode.New(remotePath),
		handles: handles.NewClientTable(),
		uid:     uint32(os.Getuid()),
		gid:     uint32(os.Getgid()),
		root:    remotePath,
	}
}

// Root returns the node embedded at the mount point.
func (f *Filesystem) Root() *Node {
	return &Node{fs: f, path: f.root}
}

// Node implements the kernel callback surface for one remote path. It
// carries no cached attributes of its own; every call re-stats through
// the sftp.Client, matching the reference adapter's stateless lookups.
type Node struct {
	fs.Inode
	fs   *Filesystem
	path string
}

var (
	_ fs.NodeLookuper  = (*Node)(nil)
	_ fs.NodeGetattrer = (*Node)(nil)
	_ fs.NodeReaddirer = (*Node)(nil)
	_ fs.NodeOpener    = (*Node)(nil)
	_ fs.NodeCreater   = (*Node)(nil)
	_ fs.NodeMkdirer   = (*Node)(nil)
	_ fs.NodeMknoder   = (*Node)(nil)
	_ fs.NodeUnlinker  = (*Node)(nil)
	_ fs.NodeRmdirer   = (*Node)(nil)
)

func childPath(parent, name string) string {
	if parent == "/" {
		return "/" + name
	}
	return parent + "/" + name
}

// attrFromStat fills out from a remote os.FileInfo the way the reference
// adapter's lookup/getattr replies do: mode, size, and mtime, with the
// uid/gid of the user running the mount since SFTP attrs do not carry
// portable ownership across hosts.
func (f *Filesystem) attrFromStat(out *fuse.Attr, info os.FileInfo) {
	out.Mode = fileTypeMode(info)
	out.Size = uint64(info.Size())
	out.Nlink = 1
	mtime := info.ModTime()
	out.SetTimes(nil, &mtime, nil)
	out.Owner = fuse.Owner{Uid: f.uid, Gid: f.gid}
}

// fileTypeMode reduces a remote FileInfo to the mode bits the kernel
// needs to know the entry's type, OR'd with its permission bits.
func fileTypeMode(info os.FileInfo) uint32 {
	var typ uint32 = syscall.S_IFREG
	m := info.Mode()
	switch {
	case m&os.ModeDir != 0:
		typ = syscall.S_IFDIR
	case m&os.ModeSymlink != 0:
		typ = syscall.S_IFLNK
	}
	return typ | uint32(m.Perm())
}

func (f *Filesystem) stableAttr(path string, info os.FileInfo) fs.StableAttr {
	return fs.StableAttr{
		Mode: fileTypeMode(info),
		Ino:  f.inodes.Intern(path),
	}
}

// Lookup implements fs.NodeLookuper.
func (n *Node) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	child := childPath(n.path, name)
	info, err := n.fs.client.Lstat(child)
	if err != nil {
		return nil, errnoFromRemote(err)
	}

	n.fs.attrFromStat(&out.Attr, info)
	out.SetEntryTimeout(entryTTL)
	out.SetAttrTimeout(entryTTL)

	childInode := n.NewInode(ctx, &Node{fs: n.fs, path: child}, n.fs.stableAttr(child, info))
	return childInode, 0
}

// Getattr implements fs.NodeGetattrer.
func (n *Node) Getattr(ctx context.Context, f fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	info, err := n.fs.client.Lstat(n.path)
	if err != nil {
		return errnoFromRemote(err)
	}
	n.fs.attrFromStat(&out.Attr, info)
	out.SetTimeout(entryTTL)
	return 0
}

// dirStream adapts a pre-fetched slice of remote directory entries to
// fs.DirStream; the synthetic "." and ".." entries both map to the root
// inode, matching the reference adapter.
type dirStream struct {
	entries []fuse.DirEntry
	pos     int
}

func (d *dirStream) HasNext() bool {
	return d.pos < len(d.entries)
}

func (d *dirStream) Next() (fuse.DirEntry, syscall.Errno) {
	e := d.entries[d.pos]
	d.pos++
	return e, 0
}

func (d *dirStream) Close() {}

// Readdir implements fs.NodeReaddirer.
func (n *Node) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	infos, err := n.fs.client.ReadDir(n.path)
	if err != nil {
		return nil, errnoFromRemote(err)
	}

	entries := make([]fuse.DirEntry, 0, len(infos)+2)
	entries = append(entries,
		fuse.DirEntry{Name: ".", Ino: inode.RootIno, Mode: syscall.S_IFDIR},
		fuse.DirEntry{Name: "..", Ino: inode.RootIno, Mode: syscall.S_IFDIR},
	)
	for _, info := range infos {
		child := childPath(n.path, info.Name())
		entries = append(entries, fuse.DirEntry{
			Name: info.Name(),
			Ino:  n.fs.inodes.Intern(child),
			Mode: fileTypeMode(info),
		})
	}
	return &dirStream{entries: entries}, 0
}

// fileHandle wraps one open *sftp.File plus the client handle-table slot
// it was registered under, so Release can drop it from the table as well
// as closing the remote file.
type fileHandle struct {
	mu     sync.Mutex
	remote *sftp.File
	fh     uint64
	table  *handles.ClientTable
}

var (
	_ fs.FileReader   = (*fileHandle)(nil)
	_ fs.FileWriter   = (*fileHandle)(nil)
	_ fs.FileReleaser = (*fileHandle)(nil)
)

// Read implements fs.FileReader. Short reads are re-issued until the
// destination buffer is full or the remote signals end-of-file, matching
// the reference adapter's partial-read handling.
func (h *fileHandle) Read(ctx context.Context, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	h.mu.Lock()
	defer h.mu.Unlock()

	got := 0
	for got < len(dest) {
		n, err := h.remote.ReadAt(dest[got:], off+int64(got))
		got += n
		if err != nil {
			break
		}
	}
	return fuse.ReadResultData(dest[:got]), 0
}

// Write implements fs.FileWriter, re-issuing until every byte supplied by
// the kernel has been accepted by the remote.
func (h *fileHandle) Write(ctx context.Context, data []byte, off int64) (uint32, syscall.Errno) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sent := 0
	for sent < len(data) {
		n, err := h.remote.WriteAt(data[sent:], off+int64(sent))
		sent += n
		if err != nil {
			return uint32(sent), errnoFromRemote(err)
		}
	}
	return uint32(sent), 0
}

// Release implements fs.FileReleaser: drop the handle table entry, which
// closes the remote file, and reply ok unconditionally per the adapter
// contract — the kernel does not expect release to fail.
func (h *fileHandle) Release(ctx context.Context) syscall.Errno {
	h.table.Remove(h.fh)
	return 0
}

// Open implements fs.NodeOpener.
func (n *Node) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	osFlags := osFlagsFromFuse(flags)
	remote, err := n.fs.client.OpenFile(n.path, osFlags)
	if err != nil {
		return nil, 0, errnoFromRemote(err)
	}
	fh := n.fs.handles.Add(remote)
	return &fileHandle{remote: remote, fh: fh, table: n.fs.handles}, 0, 0
}

// Create implements fs.NodeCreater.
func (n *Node) Create(ctx context.Context, name string, flags uint32, mode uint32, out *fuse.EntryOut) (*fs.Inode, fs.FileHandle, uint32, syscall.Errno) {
	child := childPath(n.path, name)
	remote, err := n.fs.client.OpenFile(child, osFlagsFromFuse(flags)|os.O_CREATE)
	if err != nil {
		return nil, nil, 0, errnoFromRemote(err)
	}

	info, err := n.fs.client.Lstat(child)
	if err != nil {
		remote.Close()
		return nil, nil, 0, errnoFromRemote(err)
	}
	n.fs.attrFromStat(&out.Attr, info)
	out.SetEntryTimeout(entryTTL)
	out.SetAttrTimeout(entryTTL)

	childInode := n.NewInode(ctx, &Node{fs: n.fs, path: child}, n.fs.stableAttr(child, info))
	fh := n.fs.handles.Add(remote)
	return childInode, &fileHandle{remote: remote, fh: fh, table: n.fs.handles}, 0, 0
}

// Mkdir implements fs.NodeMkdirer.
func (n *Node) Mkdir(ctx context.Context, name string, mode uint32, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	child := childPath(n.path, name)
	if err := n.fs.client.Mkdir(child); err != nil {
		return nil, errnoFromRemote(err)
	}
	info, err := n.fs.client.Lstat(child)
	if err != nil {
		return nil, errnoFromRemote(err)
	}
	n.fs.attrFromStat(&out.Attr, info)
	childInode := n.NewInode(ctx, &Node{fs: n.fs, path: child}, n.fs.stableAttr(child, info))
	return childInode, 0
}

// Mknod implements fs.NodeMknoder. Only regular files are accepted; any
// other requested type is rejected with EPERM, matching the reference
// adapter (it never services device nodes, fifos or sockets over SFTP).
func (n *Node) Mknod(ctx context.Context, name string, mode uint32, dev uint32, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	if mode&syscall.S_IFMT != syscall.S_IFREG {
		return nil, syscall.EPERM
	}

	// NodeMknoder carries no umask parameter (the kernel applies the
	// process umask before calling in), so there is nothing left to mask
	// here; with a zero umask MaskMode returns mode unchanged.
	masked := errmap.MaskMode(mode, 0)
	child := childPath(n.path, name)
	remote, err := n.fs.client.OpenFile(child, os.O_CREATE|os.O_EXCL|os.O_WRONLY)
	if err != nil {
		return nil, errnoFromRemote(err)
	}
	remote.Close()
	if err := n.fs.client.Chmod(child, os.FileMode(masked&0o7777)); err != nil {
		return nil, errnoFromRemote(err)
	}

	info, err := n.fs.client.Lstat(child)
	if err != nil {
		return nil, errnoFromRemote(err)
	}
	n.fs.attrFromStat(&out.Attr, info)
	childInode := n.NewInode(ctx, &Node{fs: n.fs, path: child}, n.fs.stableAttr(child, info))
	return childInode, 0
}

// Unlink implements fs.NodeUnlinker, retiring the child's inode binding
// on success so a later path reuse does not resurrect a stale one.
func (n *Node) Unlink(ctx context.Context, name string) syscall.Errno {
	child := childPath(n.path, name)
	if err := n.fs.client.Remove(child); err != nil {
		return errnoFromRemote(err)
	}
	if ino, ok := n.fs.inodes.InodeOf(child); ok {
		n.fs.inodes.Retire(ino)
	}
	return 0
}

// Rmdir implements fs.NodeRmdirer, retiring the child's inode binding on
// success.
func (n *Node) Rmdir(ctx context.Context, name string) syscall.Errno {
	child := childPath(n.path, name)
	if err := n.fs.client.RemoveDirectory(child); err != nil {
		return errnoFromRemote(err)
	}
	if ino, ok := n.fs.inodes.InodeOf(child); ok {
		n.fs.inodes.Retire(ino)
	}
	return 0
}

// osFlagsFromFuse mirrors internal/errmap.FromPosixFlags' O_WRONLY/O_RDWR
// precedence, but returns the raw os.O_* bitmask *sftp.Client.OpenFile
// expects rather than the SFTP-wire additive flag set.
func osFlagsFromFuse(flags uint32) int {
	out := os.O_RDONLY
	switch {
	case flags&syscall.O_WRONLY != 0:
		out = os.O_WRONLY
	case flags&syscall.O_RDWR != 0:
		out = os.O_RDWR
	}
	if flags&syscall.O_APPEND != 0 {
		out |= os.O_APPEND
	}
	if flags&syscall.O_TRUNC != 0 {
		out |= os.O_TRUNC
	}
	if flags&syscall.O_EXCL != 0 {
		out |= os.O_EXCL
	}
	return out
}

// errnoFromRemote translates an error coming back from the sftp.Client
// into a syscall.Errno, preferring the protocol status code errmap
// understands and falling back to the transport-failure mapping for
// anything that never reached the SFTP status layer.
func errnoFromRemote(err error) syscall.Errno {
	if err == nil {
		return 0
	}
	if se, ok := err.(*sftp.StatusError); ok {
		return syscall.Errno(errmap.ToErrno(sftp.StatusCode(se.Code)))
	}
	return syscall.Errno(errmap.ErrTransportFailure)
}
