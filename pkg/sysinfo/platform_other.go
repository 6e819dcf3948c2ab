//go:build !linux && !darwin

package sysinfo

import "github.com/albertocavalcante/lineage/pkg/provenance"

// CurrentPlatform returns what the Go runtime knows about the platform.
func CurrentPlatform() provenance.Platform {
	return fallbackPlatform()
}
