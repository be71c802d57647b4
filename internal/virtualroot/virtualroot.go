// Package virtualroot implements the server's sandbox: a bidirectional
// mapping between virtual SFTP paths (always rooted at "/") and real
// filesystem paths rooted at a configured directory.
package virtualroot

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// VirtualRoot is immutable after construction. The zero value is not
// usable; construct with New.
type VirtualRoot struct {
	root string
}

// New validates that root exists and is a directory, then returns a
// VirtualRoot rooted there. root is made absolute and cleaned.
func New(root string) (*VirtualRoot, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("virtualroot: resolve %q: %w", root, err)
	}
	abs = filepath.Clean(abs)

	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("virtualroot: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("virtualroot: %q is not a directory", abs)
	}

	return &VirtualRoot{root: abs}, nil
}

// Root returns the real, absolute root directory.
func (v *VirtualRoot) Root() string {
	return v.root
}

// ToVirtual strips the root prefix from a real path and returns the
// corresponding virtual path, always starting with "/".
func (v *VirtualRoot) ToVirtual(real string) (string, error) {
	rel, err := filepath.Rel(v.root, real)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("virtualroot: %q is outside root %q", real, v.root)
	}
	if rel == "." {
		return "/", nil
	}
	return "/" + filepath.ToSlash(rel), nil
}

// ToReal joins virtual onto the root and re-verifies that the result is
// still inside the root. The check is purely textual: it does not resolve
// symlinks, so a symlink inside the root that points outside it can still
// escape. See SPEC_FULL.md for the accepted-limitation rationale.
func (v *VirtualRoot) ToReal(virtual string) (string, error) {
	if !strings.HasPrefix(virtual, "/") {
		return "", fmt.Errorf("virtualroot: path %q does not start with /", virtual)
	}

	rel := strings.TrimPrefix(virtual, "/")
	real := filepath.Join(v.root, rel)

	if err := v.VerifyReal(real); err != nil {
		return "", err
	}
	return real, nil
}

// VerifyReal fails if real does not live under the configured root. It
// performs no conversion, just the escape check.
func (v *VirtualRoot) VerifyReal(real string) error {
	real = filepath.Clean(real)
	if real != v.root && !strings.HasPrefix(real, v.root+string(filepath.Separator)) {
		return fmt.Errorf("virtualroot: %q is outside the virtual root", real)
	}
	return nil
}
