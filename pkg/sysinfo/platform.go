package sysinfo

import (
	"runtime"

	"github.com/albertocavalcante/lineage/pkg/provenance"
)

func fallbackPlatform() provenance.Platform {
	return provenance.Platform{
		System:    runtime.GOOS,
		Machine:   runtime.GOARCH,
		Processor: runtime.GOARCH,
	}
}
