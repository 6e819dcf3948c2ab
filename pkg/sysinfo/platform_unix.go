//go:build linux || darwin

package sysinfo

import (
	"runtime"

	"golang.org/x/sys/unix"

	"github.com/albertocavalcante/lineage/pkg/provenance"
)

// CurrentPlatform returns uname(2) details.
func CurrentPlatform() provenance.Platform {
	var u unix.Utsname
	if err := unix.Uname(&u); err != nil {
		return fallbackPlatform()
	}
	return provenance.Platform{
		System:    unix.ByteSliceToString(u.Sysname[:]),
		Release:   unix.ByteSliceToString(u.Release[:]),
		Version:   unix.ByteSliceToString(u.Version[:]),
		Machine:   unix.ByteSliceToString(u.Machine[:]),
		Processor: runtime.GOARCH,
	}
}
