// Package errmap translates SFTP protocol status codes into host errno
// values for the client side, and open(2) flag bits into the server's
// SFTP open-flag vocabulary. Status codes follow github.com/pkg/sftp's
// sftp.StatusCode numbering (SFTP v3 wire values); the mapping table
// itself is authoritative per SPEC_FULL.md, not whatever a particular
// reference implementation happened to pick.
package errmap

import (
	"github.com/pkg/sftp"
	"golang.org/x/sys/unix"
)

// ToErrno maps an SFTP status code to a host errno. Any status not in the
// mandatory table is reported as EIO rather than silently swallowed. EOF is
// not a failure code: callers must check for it before calling ToErrno,
// since end-of-file is reported to the kernel as a short read, not an
// error.
func ToErrno(code sftp.StatusCode) unix.Errno {
	switch code {
	case sftp.ErrSSHFxOk:
		return 0
	case sftp.ErrSSHFxNoSuchFile, sftp.ErrSSHFxNoSuchPath:
		return unix.ENOENT
	case sftp.ErrSSHFxPermissionDenied, sftp.ErrSSHFxWriteProtect:
		return unix.EACCES
	case sftp.ErrSSHFxFailure:
		return unix.EIO
	case sftp.ErrSSHFxBadMessage:
		return unix.ENOTSUP
	case sftp.ErrSSHFxNoConnection:
		return unix.ENXIO
	case sftp.ErrSSHFxConnectionLost:
		return unix.ENETDOWN
	case sftp.ErrSSHFxOpUnsupported:
		return unix.ENOTSUP
	case sftp.ErrSSHFxInvalidHandle:
		return unix.EBADF
	case sftp.ErrSSHFxFileAlreadyExists:
		return unix.EEXIST
	case sftp.ErrSSHFxNoMedia:
		return unix.ENODEV
	case sftp.ErrSSHFxNoSpaceOnFilesystem:
		return unix.ENOSPC
	case sftp.ErrSSHFxQuotaExceeded:
		return unix.EDQUOT
	case sftp.ErrSSHFxUnknownPrincipal:
		return unix.ENOTSUP
	case sftp.ErrSSHFxLockConflict:
		return unix.ENOLCK
	case sftp.ErrSSHFxDirNotEmpty:
		return unix.ENOTEMPTY
	case sftp.ErrSSHFxNotADirectory:
		return unix.ENOTDIR
	case sftp.ErrSSHFxInvalidFilename:
		return unix.ENAMETOOLONG
	case sftp.ErrSSHFxLinkLoop:
		return unix.ELOOP
	default:
		return unix.EIO
	}
}

// ErrTransportFailure is returned by ToErrno's caller sites for errors that
// never reached the SFTP status layer at all (a dropped connection, a
// session-level I/O error). Per SPEC_FULL.md these map to ENXIO.
const ErrTransportFailure = unix.ENXIO

// OpenFlags is the client-side O_* -> SFTP open-pflag translation the
// kernel callback surface performs before issuing a remote Open.
type OpenFlags struct {
	Read, Write, Append, Create, Truncate, Exclusive bool
}

// FromPosixFlags converts kernel open(2) flags (as delivered by the
// userspace-filesystem driver) into the additive SFTP open-flag set.
// O_WRONLY maps to Write only; O_RDWR maps to Read|Write; anything else
// defaults to Read. The remaining flags are additive on top of that.
func FromPosixFlags(flags uint32) OpenFlags {
	var f OpenFlags
	switch {
	case flags&unix.O_WRONLY != 0:
		f.Write = true
	case flags&unix.O_RDWR != 0:
		f.Read = true
		f.Write = true
	default:
		f.Read = true
	}

	if flags&unix.O_APPEND != 0 {
		f.Append = true
	}
	if flags&unix.O_CREAT != 0 {
		f.Create = true
	}
	if flags&unix.O_TRUNC != 0 {
		f.Truncate = true
	}
	if flags&unix.O_EXCL != 0 {
		f.Exclusive = true
	}
	return f
}

// MaskMode masks a client-supplied mode with ~umask while preserving the
// file-type bits, matching mknod's documented contract.
func MaskMode(mode, umask uint32) uint32 {
	return mode & (^umask | unix.S_IFMT)
}
