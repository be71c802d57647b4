// Command sftpbridge-client mounts a remote sftpbridge-server endpoint as
// a local FUSE filesystem, the Go-native counterpart of the reference
// sshfs-rs client.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/pkg/sftp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/ssh"

	"sftpbridge/internal/buildinfo"
	"sftpbridge/internal/sshfsclient"
)

func main() {
	log := logrus.New()

	var addr, username, password, remotePath string
	var autoUnmount, allowRoot bool

	rootCmd := &cobra.Command{
		Use:     "sftpbridge-client <mountpoint>",
		Short:   "Mount a remote sftpbridge-server endpoint as a local filesystem",
		Version: buildinfo.Version,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return mount(log, args[0], addr, username, password, remotePath, autoUnmount, allowRoot)
		},
	}

	flags := rootCmd.Flags()
	flags.StringVarP(&addr, "addr", "a", "", "SFTP server address (host:port)")
	flags.StringVarP(&username, "username", "u", "", "username for the SFTP server")
	flags.StringVarP(&password, "password", "p", "", "password for the SFTP server")
	flags.StringVarP(&remotePath, "path", "P", "/", "path on the SFTP server to mount")
	flags.BoolVar(&autoUnmount, "auto_unmount", false, "automatically unmount on process exit")
	flags.BoolVar(&allowRoot, "allow-root", false, "allow the root user to access the mounted filesystem")
	_ = rootCmd.MarkFlagRequired("addr")
	_ = rootCmd.MarkFlagRequired("username")
	_ = rootCmd.MarkFlagRequired("password")

	if err := rootCmd.Execute(); err != nil {
		log.WithError(err).Error("sftpbridge-client exiting")
		os.Exit(1)
	}
}

func mount(log *logrus.Logger, mountpoint, addr, username, password, remotePath string, autoUnmount, allowRoot bool) error {
	sshConfig := &ssh.ClientConfig{
		User:            username,
		Auth:            []ssh.AuthMethod{ssh.Password(password)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         30 * time.Second,
	}

	conn, err := ssh.Dial("tcp", addr, sshConfig)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", addr, err)
	}
	defer conn.Close()

	client, err := sftp.NewClient(conn)
	if err != nil {
		return fmt.Errorf("start sftp session: %w", err)
	}
	defer client.Close()

	root := sshfsclient.New(client)
	if remotePath != "/" && remotePath != "" {
		root = sshfsclient.NewAt(client, remotePath)
	}

	opts := &fs.Options{
		MountOptions: fuseMountOptions(autoUnmount, allowRoot),
	}

	server, err := fs.Mount(mountpoint, root.Root(), opts)
	if err != nil {
		return fmt.Errorf("mount at %s: %w", mountpoint, err)
	}
	log.WithFields(logrus.Fields{"mountpoint": mountpoint, "addr": addr}).Info("mounted")

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		server.Unmount()
	}()

	server.Wait()
	return nil
}

// fuseMountOptions builds the raw FUSE option set for auto_unmount and
// allow_root, kept as generic -o style strings rather than dedicated
// struct fields since those are the two options the reference client's
// MountOption list (fuser::MountOption::AutoUnmount / AllowRoot) exposes
// and go-fuse's own struct fields do not name them 1:1.
func fuseMountOptions(autoUnmount, allowRoot bool) fuse.MountOptions {
	var opts []string
	if autoUnmount {
		opts = append(opts, "auto_unmount")
	}
	if allowRoot {
		opts = append(opts, "allow_root")
	}
	return fuse.MountOptions{
		FsName:  "sftpbridge",
		Options: opts,
	}
}
