// Package instrument provides the interception points that feed a
// Manifest: tracked files, an HTTP transport and an object store getter.
//
// Each wrapper reports to a Recorder and otherwise behaves like the value
// it wraps. Recording never changes what the caller sees; failures inside
// the Manifest are logged there.
package instrument

import (
	"sync/atomic"

	"github.com/albertocavalcante/lineage/pkg/manifest"
	"github.com/albertocavalcante/lineage/pkg/provenance"
)

// Recorder is the ingestion side of a Manifest.
type Recorder interface {
	RecordInputHandle(path string, h manifest.Handle) (provenance.FileRef, bool)
	RecordOutputHandle(path string, h manifest.Handle)
	RecordRemoteInput(url string)
	CloseHandle(h manifest.Handle)
}

var _ Recorder = (*manifest.Manifest)(nil)

var lastHandle atomic.Uint64

// nextHandle returns a process-unique handle. File descriptors are reused
// after close, so they are not used directly.
func nextHandle() manifest.Handle {
	return manifest.Handle(lastHandle.Add(1))
}
