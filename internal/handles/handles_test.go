package handles

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClientFile struct {
	closed bool
}

func (f *fakeClientFile) ReadAt(p []byte, off int64) (int, error)  { return 0, nil }
func (f *fakeClientFile) WriteAt(p []byte, off int64) (int, error) { return 0, nil }
func (f *fakeClientFile) Close() error {
	f.closed = true
	return nil
}

func TestClientTableNoReuse(t *testing.T) {
	tbl := NewClientTable()
	a := tbl.Add(&fakeClientFile{})
	b := tbl.Add(&fakeClientFile{})
	assert.NotEqual(t, a, b)

	f, ok := tbl.Get(a)
	require.True(t, ok)
	require.NoError(t, tbl.Remove(a))
	assert.True(t, f.(*fakeClientFile).closed)

	_, ok = tbl.Get(a)
	assert.False(t, ok)

	c := tbl.Add(&fakeClientFile{})
	assert.NotEqual(t, a, c)
	assert.NotEqual(t, b, c)
}

type errCloseFile struct{}

func (errCloseFile) ReadAt(p []byte, off int64) (int, error)  { return 0, nil }
func (errCloseFile) WriteAt(p []byte, off int64) (int, error) { return 0, nil }
func (errCloseFile) Close() error                             { return errors.New("boom") }

func TestClientTableRemovePropagatesCloseError(t *testing.T) {
	tbl := NewClientTable()
	fh := tbl.Add(errCloseFile{})
	assert.Error(t, tbl.Remove(fh))
}
