package sftpd

import (
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/sftp"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"

	"sftpbridge/internal/audit"
	"sftpbridge/internal/authsvc"
	"sftpbridge/internal/virtualroot"
)

// AuthRejectionDelay is how long a failed password attempt is held before
// the SSH layer replies, slowing down credential stuffing without
// affecting the protocol visible to a legitimate client. The reference
// server configures the same three-second delay on its SSH config.
const AuthRejectionDelay = 3 * time.Second

// Server accepts SSH connections, authenticates them against an Auther,
// and serves the sftp subsystem over a chrooted VirtualRoot per session.
type Server struct {
	Auth    authsvc.Auther
	Auditor audit.Auditor
	Root    *virtualroot.VirtualRoot
	HostKey ssh.Signer
	Log     *logrus.Logger
}

func (s *Server) sshConfig() *ssh.ServerConfig {
	cfg := &ssh.ServerConfig{
		PasswordCallback: func(conn ssh.ConnMetadata, password []byte) (*ssh.Permissions, error) {
			if err := s.Auth.Authenticate(conn.User(), string(password)); err != nil {
				time.Sleep(AuthRejectionDelay)
				return nil, fmt.Errorf("authentication failed for %q: %w", conn.User(), err)
			}
			return &ssh.Permissions{Extensions: map[string]string{"username": conn.User()}}, nil
		},
		MaxAuthTries: 6,
	}
	cfg.AddHostKey(s.HostKey)
	return cfg
}

// Serve accepts connections on ln until it returns an error (typically
// from the listener being closed by the caller).
func (s *Server) Serve(ln net.Listener) error {
	config := s.sshConfig()
	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go s.handleConn(conn, config)
	}
}

func (s *Server) handleConn(conn net.Conn, config *ssh.ServerConfig) {
	defer conn.Close()

	sshConn, chans, reqs, err := ssh.NewServerConn(conn, config)
	if err != nil {
		s.Log.WithError(err).Debug("ssh handshake failed")
		return
	}
	defer sshConn.Close()

	username := sshConn.Permissions.Extensions["username"]
	sessionID := uuid.New().String()
	s.Log.WithFields(logrus.Fields{"user": username, "remote": sshConn.RemoteAddr(), "session": sessionID}).Info("session established")

	go ssh.DiscardRequests(reqs)

	for newChannel := range chans {
		if newChannel.ChannelType() != "session" {
			newChannel.Reject(ssh.UnknownChannelType, "unsupported channel type")
			continue
		}
		channel, requests, err := newChannel.Accept()
		if err != nil {
			s.Log.WithError(err).Debug("failed to accept channel")
			continue
		}
		go s.handleSession(channel, requests, username, sessionID)
	}
}

func (s *Server) handleSession(channel ssh.Channel, requests <-chan *ssh.Request, username, sessionID string) {
	defer channel.Close()

	for req := range requests {
		switch req.Type {
		case "subsystem":
			name := string(req.Payload[4:])
			if name != "sftp" {
				req.Reply(false, nil)
				continue
			}
			req.Reply(true, nil)
			s.serveSftp(channel, username, sessionID)
			return
		default:
			if req.WantReply {
				req.Reply(false, nil)
			}
		}
	}
}

// serveSftp runs one sftp subsystem to completion. sessionID correlates
// this connection's log lines; it is not written to the audit records and
// is not part of the SFTP handle tokens pkg/sftp's own RequestServer hands
// out.
func (s *Server) serveSftp(channel ssh.Channel, username, sessionID string) {
	handlers := New(s.Root, s.Auditor, username)
	server := sftp.NewRequestServer(channel, handlers)
	defer server.Close()

	if err := server.Serve(); err != nil {
		s.Log.WithFields(logrus.Fields{"user": username, "session": sessionID}).WithError(err).Debug("sftp session ended")
	}
}
