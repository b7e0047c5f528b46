// Package common contains shared service variables and logging setup.
package common

var (
	// Version is set during the build process via ldflags.
	Version = "dev"

	// PackageName is used as the metrics namespace.
	PackageName = "registry_coordinator"
)
