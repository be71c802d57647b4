package errmap

import (
	"testing"

	"github.com/pkg/sftp"
	"github.com/stretchr/testify/assert"
	"golang.org/x/sys/unix"
)

func TestToErrnoMandatoryTable(t *testing.T) {
	cases := map[sftp.StatusCode]unix.Errno{
		sftp.ErrSSHFxNoSuchFile:          unix.ENOENT,
		sftp.ErrSSHFxNoSuchPath:          unix.ENOENT,
		sftp.ErrSSHFxPermissionDenied:    unix.EACCES,
		sftp.ErrSSHFxWriteProtect:        unix.EACCES,
		sftp.ErrSSHFxFailure:             unix.EIO,
		sftp.ErrSSHFxConnectionLost:      unix.ENETDOWN,
		sftp.ErrSSHFxInvalidHandle:       unix.EBADF,
		sftp.ErrSSHFxFileAlreadyExists:   unix.EEXIST,
		sftp.ErrSSHFxNoSpaceOnFilesystem: unix.ENOSPC,
		sftp.ErrSSHFxQuotaExceeded:       unix.EDQUOT,
		sftp.ErrSSHFxLockConflict:        unix.ENOLCK,
		sftp.ErrSSHFxDirNotEmpty:         unix.ENOTEMPTY,
		sftp.ErrSSHFxNotADirectory:       unix.ENOTDIR,
		sftp.ErrSSHFxInvalidFilename:     unix.ENAMETOOLONG,
		sftp.ErrSSHFxLinkLoop:            unix.ELOOP,
	}
	for code, want := range cases {
		assert.Equal(t, want, ToErrno(code), "status code %v", code)
	}
}

func TestToErrnoUnmappedFallsBackToEIO(t *testing.T) {
	assert.Equal(t, unix.EIO, ToErrno(sftp.StatusCode(250)))
}

func TestFromPosixFlags(t *testing.T) {
	f := FromPosixFlags(unix.O_WRONLY | unix.O_CREAT | unix.O_TRUNC)
	assert.True(t, f.Write)
	assert.False(t, f.Read)
	assert.True(t, f.Create)
	assert.True(t, f.Truncate)

	f = FromPosixFlags(unix.O_RDWR)
	assert.True(t, f.Read)
	assert.True(t, f.Write)

	f = FromPosixFlags(0)
	assert.True(t, f.Read)
	assert.False(t, f.Write)
}

func TestMaskModePreservesFileType(t *testing.T) {
	mode := MaskMode(unix.S_IFREG|0o777, 0o022)
	assert.Equal(t, uint32(unix.S_IFREG|0o755), mode)
}
