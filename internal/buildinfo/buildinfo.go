// Package buildinfo carries version metadata injected at build time via:
//
//	go build -ldflags "-X .../internal/buildinfo.Version=v1.2.3"
package buildinfo

var (
	Version   = "dev"
	Revision  = "unknown"
	BuildDate = "unknown"
)
