// Package buildinfo holds the version string both binaries report,
// stamped at link time the same way rclone's build stamps
// github.com/rclone/rclone/fs.Version via -X ldflags.
package buildinfo

// Version is overridden at build time with:
//
//	go build -ldflags "-X sftpbridge/internal/buildinfo.Version=1.2.3"
//
// and stays "dev" for a plain `go build`/`go run`.
var Version = "dev"
