// Package sftpd implements the server side of the bridge: an
// github.com/pkg/sftp RequestServer backend that serves a chrooted view of
// a host directory tree, and the golang.org/x/crypto/ssh transport that
// carries it. The four Handlers methods plus the optional
// LstatFileLister/RealpathFileLister interfaces are grounded directly on
// pkg/sftp's own ChrootHandler and FilesystemHandler reference backends;
// what's added here is virtual-root translation through
// internal/virtualroot and an audit record on every successful
// filesystem-affecting call, per the taxonomy internal/store enforces.
package sftpd

import (
	"errors"
	"io"
	"os"

	"github.com/pkg/sftp"

	"sftpbridge/internal/audit"
	"sftpbridge/internal/store"
	"sftpbridge/internal/virtualroot"
)

// Handler implements sftp.Handlers against a single VirtualRoot, auditing
// every successful call under the authenticated username.
type Handler struct {
	vroot    *virtualroot.VirtualRoot
	auditor  audit.Auditor
	username string
}

// New returns the four sftp.Handlers interfaces (all satisfied by the same
// Handler, like pkg/sftp's own ChrootHandler) for username against vroot,
// recording successful operations through auditor.
func New(vroot *virtualroot.VirtualRoot, auditor audit.Auditor, username string) sftp.Handlers {
	h := &Handler{vroot: vroot, auditor: auditor, username: username}
	return sftp.Handlers{
		FileGet:  h,
		FilePut:  h,
		FileCmd:  h,
		FileList: h,
	}
}

func (h *Handler) record(action store.Action, target string) {
	h.auditor.Record(h.username, action, target)
}

// auditingFile wraps *os.File so every ReadAt/WriteAt/Close the client
// performs against an open handle is audited individually, matching the
// reference server logging a line per SSH_FXP_READ/WRITE, not just at
// open time.
type auditingFile struct {
	*os.File
	h      *Handler
	target string
}

func (f *auditingFile) ReadAt(p []byte, off int64) (int, error) {
	n, err := f.File.ReadAt(p, off)
	if err == nil || err == io.EOF {
		f.h.record(store.ActionRead, f.target)
	}
	return n, err
}

func (f *auditingFile) WriteAt(p []byte, off int64) (int, error) {
	n, err := f.File.WriteAt(p, off)
	if err == nil {
		f.h.record(store.ActionWrite, f.target)
	}
	return n, err
}

func (f *auditingFile) Close() error {
	err := f.File.Close()
	if err == nil {
		f.h.record(store.ActionClose, f.target)
	}
	return err
}

// Fileread implements sftp.FileReader.
func (h *Handler) Fileread(r *sftp.Request) (io.ReaderAt, error) {
	if !r.Pflags().Read {
		return nil, os.ErrInvalid
	}
	return h.openFile(r, sftpFlagsToOsFlags(r.Pflags()))
}

// Filewrite implements sftp.FileWriter.
func (h *Handler) Filewrite(r *sftp.Request) (io.WriterAt, error) {
	if !r.Pflags().Write {
		return nil, os.ErrInvalid
	}
	return h.openFile(r, sftpFlagsToOsFlags(r.Pflags()))
}

func (h *Handler) openFile(r *sftp.Request, flags int) (*auditingFile, error) {
	real, err := h.vroot.ToReal(r.Filepath)
	if err != nil {
		return nil, os.ErrInvalid
	}
	f, err := os.OpenFile(real, flags, 0644)
	if err != nil {
		return nil, err
	}
	h.record(store.ActionOpen, real)
	return &auditingFile{File: f, h: h, target: real}, nil
}

func sftpFlagsToOsFlags(flags sftp.FileOpenFlags) int {
	out := os.O_RDONLY
	switch {
	case flags.Read && flags.Write:
		out = os.O_RDWR
	case flags.Write:
		out = os.O_WRONLY
	}
	if flags.Creat {
		out |= os.O_CREATE
	}
	if flags.Trunc {
		out |= os.O_TRUNC
	}
	if flags.Excl {
		out |= os.O_EXCL
	}
	return out
}

// Filecmd implements sftp.FileCmder: Rename, Rmdir, Remove and Mkdir, each
// audited on success. Setstat is intentionally left unsupported, matching
// original_source/server/src/sftp_server.rs's unimplemented() handler,
// which replies OpUnsupported rather than a generic failure.
func (h *Handler) Filecmd(r *sftp.Request) error {
	switch r.Method {
	case "Rename":
		oldReal, err := h.vroot.ToReal(r.Filepath)
		if err != nil {
			return os.ErrInvalid
		}
		newReal, err := h.vroot.ToReal(r.Target)
		if err != nil {
			return os.ErrInvalid
		}
		if err := os.Rename(oldReal, newReal); err != nil {
			return err
		}
		h.record(store.ActionRename, oldReal)
		return nil

	case "Rmdir":
		real, err := h.vroot.ToReal(r.Filepath)
		if err != nil {
			return os.ErrInvalid
		}
		if err := os.Remove(real); err != nil {
			return err
		}
		h.record(store.ActionRemoveDir, real)
		return nil

	case "Remove":
		real, err := h.vroot.ToReal(r.Filepath)
		if err != nil {
			return os.ErrInvalid
		}
		stat, err := os.Lstat(real)
		if err != nil {
			return err
		}
		if stat.IsDir() {
			return os.ErrInvalid
		}
		if err := os.Remove(real); err != nil {
			return err
		}
		h.record(store.ActionRemove, real)
		return nil

	case "Mkdir":
		real, err := h.vroot.ToReal(r.Filepath)
		if err != nil {
			return os.ErrInvalid
		}
		if err := os.Mkdir(real, 0755); err != nil {
			return err
		}
		h.record(store.ActionMakeDir, real)
		return nil
	}

	// Setstat and any other method this bridge doesn't implement.
	return sftp.ErrSSHFxOpUnsupported
}

// listerat adapts a slice of os.FileInfo to sftp.ListerAt, the same shape
// pkg/sftp's own reference backends use.
type listerat []os.FileInfo

func (l listerat) ListAt(dst []os.FileInfo, offset int64) (int, error) {
	if offset >= int64(len(l)) {
		return 0, io.EOF
	}
	n := copy(dst, l[offset:])
	if n < len(dst) {
		return n, io.EOF
	}
	return n, nil
}

// Filelist implements sftp.FileLister: List backs opendir+readdir, Stat
// backs stat/fstat. pkg/sftp's RequestServer never calls a Handlers method
// for SSH_FXP_OPENDIR itself (that's handled by its own internal opener),
// so the "List" branch — the first readdir a client issues after an
// opendir — is where OpenDir is recorded, alongside ReadDir for the listing
// itself. Stat records nothing: it is a metadata read, not one of the
// audited actions.
func (h *Handler) Filelist(r *sftp.Request) (sftp.ListerAt, error) {
	real, err := h.vroot.ToReal(r.Filepath)
	if err != nil {
		return nil, os.ErrInvalid
	}

	switch r.Method {
	case "List":
		entries, err := os.ReadDir(real)
		if err != nil {
			return nil, err
		}
		infos := make([]os.FileInfo, 0, len(entries))
		for _, e := range entries {
			info, err := e.Info()
			if err != nil {
				return nil, err
			}
			infos = append(infos, info)
		}
		h.record(store.ActionOpenDir, real)
		h.record(store.ActionReadDir, real)
		return listerat(infos), nil

	case "Stat":
		info, err := os.Stat(real)
		if err != nil {
			return nil, err
		}
		return listerat{info}, nil
	}

	return nil, errors.New("unsupported")
}

// Lstat implements sftp.LstatFileLister: like Stat but does not follow a
// trailing symlink.
func (h *Handler) Lstat(r *sftp.Request) (sftp.ListerAt, error) {
	real, err := h.vroot.ToReal(r.Filepath)
	if err != nil {
		return nil, os.ErrInvalid
	}
	info, err := os.Lstat(real)
	if err != nil {
		return nil, err
	}
	return listerat{info}, nil
}

// Realpath implements sftp.RealpathFileLister. The interface has no error
// return, so unlike the reference server this cannot reject a
// nonexistent path here — the client's next Stat call surfaces that
// instead. What it does do is the same join-then-virtualize the reference
// server performs, so for a path inside the root the returned name is
// root-relative and syntactically clean. A path that does not translate
// (no leading "/", or one that escapes the root) is returned unchanged.
func (h *Handler) Realpath(p string) string {
	real, err := h.vroot.ToReal(p)
	if err != nil {
		return p
	}
	virtual, err := h.vroot.ToVirtual(real)
	if err != nil {
		return p
	}
	h.record(store.ActionRealPath, real)
	return virtual
}
