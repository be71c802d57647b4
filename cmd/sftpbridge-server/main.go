// Command sftpbridge-server runs the SFTP bridge server: it serves a
// chrooted view of a host directory over SFTP to authenticated users and
// records every operation to an audit log, the Go-native counterpart of
// the reference sshfs-rs server.
package main

import (
	"fmt"
	"net"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"sftpbridge/internal/audit"
	"sftpbridge/internal/authsvc"
	"sftpbridge/internal/buildinfo"
	"sftpbridge/internal/sftpd"
	"sftpbridge/internal/store"
	"sftpbridge/internal/virtualroot"
)

func main() {
	log := logrus.New()

	var dbPath, hostKeyPath, rootDir string

	rootCmd := &cobra.Command{
		Use:     "sftpbridge-server",
		Short:   "Serve a host directory tree over SFTP with per-user audit logging",
		Version: buildinfo.Version,
	}
	rootCmd.PersistentFlags().StringVar(&dbPath, "database", store.PathFromEnv(), "path to the sqlite user/audit database")
	rootCmd.PersistentFlags().StringVar(&hostKeyPath, "host-key", "host_key.pem", "path to the SSH host key (generated on first run if absent)")

	var port int
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Start serving SFTP connections",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(log, dbPath, hostKeyPath, rootDir, port)
		},
	}
	runCmd.Flags().IntVar(&port, "port", defaultPort(), "TCP port to listen on (overrides the PORT env var)")
	runCmd.Flags().StringVar(&rootDir, "root", ".", "host directory exposed as the virtual filesystem root")

	authCmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage bridge user accounts",
	}

	registerCmd := &cobra.Command{
		Use:   "register <username> <password>",
		Short: "Create a new user account",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := store.Open(dbPath)
			if err != nil {
				return err
			}
			defer db.Close()
			return authsvc.New(db).Register(args[0], args[1])
		},
	}

	updatePasswordCmd := &cobra.Command{
		Use:   "update-password <username> <new-password> <old-password>",
		Short: "Change a user's password",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := store.Open(dbPath)
			if err != nil {
				return err
			}
			defer db.Close()
			return authsvc.New(db).UpdatePassword(args[0], args[1], args[2])
		},
	}

	authCmd.AddCommand(registerCmd, updatePasswordCmd)
	rootCmd.AddCommand(runCmd, authCmd)

	if err := rootCmd.Execute(); err != nil {
		log.WithError(err).Error("sftpbridge-server exiting")
		os.Exit(1)
	}
}

// defaultPort mirrors the reference server's PORT-env-with-2002-fallback,
// adjusted to SFTP's conventional port since this bridge, unlike the
// prototype, is meant to be reachable as a normal SFTP endpoint.
func defaultPort() int {
	if v := os.Getenv("PORT"); v != "" {
		var p int
		if _, err := fmt.Sscanf(v, "%d", &p); err == nil {
			return p
		}
	}
	return 22
}

func runServe(log *logrus.Logger, dbPath, hostKeyPath, rootDir string, port int) error {
	db, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	vroot, err := virtualroot.New(rootDir)
	if err != nil {
		return fmt.Errorf("set up virtual root: %w", err)
	}

	hostKey, err := sftpd.LoadOrGenerateHostKey(hostKeyPath)
	if err != nil {
		return fmt.Errorf("load host key: %w", err)
	}

	server := &sftpd.Server{
		Auth:    authsvc.New(db),
		Auditor: audit.Wire(db),
		Root:    vroot,
		HostKey: hostKey,
		Log:     log,
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("listen on port %d: %w", port, err)
	}
	log.WithField("port", port).Info("sftpbridge-server listening")

	return server.Serve(ln)
}
