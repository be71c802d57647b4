package sshfsclient

import (
	"net"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/pkg/sftp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sftpbridge/internal/audit"
	"sftpbridge/internal/sftpd"
	"sftpbridge/internal/store"
	"sftpbridge/internal/virtualroot"
)

// newTestFilesystem wires a real sftp.Client, driven over a net.Pipe by a
// real internal/sftpd.Handler backend rooted at a temp directory, so
// these tests exercise the actual remote protocol rather than a fake.
func newTestFilesystem(t *testing.T) (*Filesystem, string) {
	t.Helper()
	root := t.TempDir()
	vroot, err := virtualroot.New(root)
	require.NoError(t, err)

	db, err := store.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	auditor := audit.Wire(db)
	handlers := sftpd.New(vroot, auditor, "admin")

	serverConn, clientConn := net.Pipe()
	server := sftp.NewRequestServer(serverConn, handlers)
	go server.Serve()
	t.Cleanup(func() { server.Close() })

	client, err := sftp.NewClientPipe(clientConn, clientConn)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	return New(client), root
}

// mountTestFilesystem mounts fsys's root at a fresh temp directory using
// the real kernel FUSE path, exactly as cmd/sftpbridge-client does. Tests
// built on it skip rather than fail when /dev/fuse is unavailable, since
// that is an environment limitation rather than an adapter bug.
func mountTestFilesystem(t *testing.T, fsys *Filesystem) string {
	t.Helper()
	mountpoint := t.TempDir()
	timeout := 200 * time.Millisecond
	server, err := fs.Mount(mountpoint, fsys.Root(), &fs.Options{
		EntryTimeout: &timeout,
		AttrTimeout:  &timeout,
	})
	if err != nil {
		t.Skipf("fuse mount unavailable in this environment: %v", err)
	}
	t.Cleanup(func() {
		server.Unmount()
	})
	return mountpoint
}

func TestMountReadWriteRoundTrip(t *testing.T) {
	fsys, root := newTestFilesystem(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "hello.txt"), []byte("hi there"), 0644))

	mnt := mountTestFilesystem(t, fsys)

	got, err := os.ReadFile(filepath.Join(mnt, "hello.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hi there", string(got))

	require.NoError(t, os.WriteFile(filepath.Join(mnt, "written.txt"), []byte("payload"), 0644))
	back, err := os.ReadFile(filepath.Join(root, "written.txt"))
	require.NoError(t, err)
	assert.Equal(t, "payload", string(back))
}

func TestMountMkdirReaddirRemove(t *testing.T) {
	fsys, _ := newTestFilesystem(t)
	mnt := mountTestFilesystem(t, fsys)

	require.NoError(t, os.Mkdir(filepath.Join(mnt, "sub"), 0755))
	entries, err := os.ReadDir(mnt)
	require.NoError(t, err)
	names := map[string]bool{}
	for _, e := range entries {
		names[e.Name()] = true
	}
	assert.True(t, names["sub"])

	require.NoError(t, os.Remove(filepath.Join(mnt, "sub")))
	_, err = os.Stat(filepath.Join(mnt, "sub"))
	assert.True(t, os.IsNotExist(err))
}

func TestMountLookupMissingIsENOENT(t *testing.T) {
	fsys, _ := newTestFilesystem(t)
	mnt := mountTestFilesystem(t, fsys)

	_, err := os.Stat(filepath.Join(mnt, "missing.txt"))
	require.Error(t, err)
	assert.True(t, os.IsNotExist(err))
}

// The remainder exercises pure helpers that need neither a mount nor a
// live remote connection.

func TestFileTypeMode(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "d"), 0755))

	info, err := os.Stat(filepath.Join(root, "d"))
	require.NoError(t, err)
	assert.EqualValues(t, syscall.S_IFDIR|uint32(info.Mode().Perm()), fileTypeMode(info))
}

func TestOsFlagsFromFuse(t *testing.T) {
	assert.Equal(t, os.O_RDONLY, osFlagsFromFuse(uint32(os.O_RDONLY)))
	assert.Equal(t, os.O_WRONLY, osFlagsFromFuse(uint32(os.O_WRONLY)))
	assert.Equal(t, os.O_RDWR, osFlagsFromFuse(uint32(os.O_RDWR)))
	assert.Equal(t, os.O_WRONLY|os.O_TRUNC, osFlagsFromFuse(uint32(os.O_WRONLY|os.O_TRUNC)))
}

func TestErrnoFromRemoteNil(t *testing.T) {
	assert.Equal(t, syscall.Errno(0), errnoFromRemote(nil))
}

func TestChildPath(t *testing.T) {
	assert.Equal(t, "/a", childPath("/", "a"))
	assert.Equal(t, "/a/b", childPath("/a", "b"))
}
