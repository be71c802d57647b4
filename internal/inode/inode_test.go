package inode

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInternIsIdempotent(t *testing.T) {
	tbl := New("/")
	a := tbl.Intern("/a")
	b := tbl.Intern("/a")
	assert.Equal(t, a, b)
	assert.NotEqual(t, RootIno, a)
}

func TestRoundTrip(t *testing.T) {
	tbl := New("/")
	ino := tbl.Intern("/a/b")

	path, ok := tbl.PathOf(ino)
	assert.True(t, ok)
	assert.Equal(t, "/a/b", path)

	got, ok := tbl.InodeOf("/a/b")
	assert.True(t, ok)
	assert.Equal(t, ino, got)
}

func TestRetireDoesNotReuseInode(t *testing.T) {
	tbl := New("/")
	ino := tbl.Intern("/a")
	assert.True(t, tbl.Retire(ino))

	_, ok := tbl.PathOf(ino)
	assert.False(t, ok)

	next := tbl.Intern("/b")
	assert.Greater(t, next, ino)

	assert.False(t, tbl.Retire(ino), "retiring twice must fail")
}

func TestRebindPreservesInode(t *testing.T) {
	tbl := New("/")
	ino := tbl.Intern("/old")
	assert.True(t, tbl.Rebind("/old", "/new"))

	_, ok := tbl.InodeOf("/old")
	assert.False(t, ok)

	got, ok := tbl.InodeOf("/new")
	assert.True(t, ok)
	assert.Equal(t, ino, got)

	path, _ := tbl.PathOf(ino)
	assert.Equal(t, "/new", path)
}

func TestUniquenessAcrossOperations(t *testing.T) {
	tbl := New("/")
	seen := map[uint64]string{}
	for _, p := range []string{"/a", "/b", "/c"} {
		ino := tbl.Intern(p)
		if other, ok := seen[ino]; ok {
			t.Fatalf("inode %d bound to both %q and %q", ino, other, p)
		}
		seen[ino] = p
	}
}
