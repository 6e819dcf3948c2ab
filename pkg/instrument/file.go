package instrument

import (
	"os"
	"sync"

	"github.com/albertocavalcante/lineage/pkg/manifest"
)

// writeFlags are the open flags that make a file an output.
const writeFlags = os.O_WRONLY | os.O_RDWR | os.O_APPEND | os.O_CREATE | os.O_TRUNC

// File is an *os.File whose Close finalizes its lineage.
type File struct {
	*os.File

	rec       Recorder
	handle    manifest.Handle
	closeOnce sync.Once
	closeErr  error
}

// Open opens name for reading and records it as an input.
func Open(rec Recorder, name string) (*File, error) {
	return OpenFile(rec, name, os.O_RDONLY, 0)
}

// Create creates or truncates name and records it as an output.
func Create(rec Recorder, name string) (*File, error) {
	return OpenFile(rec, name, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o666)
}

// OpenFile is os.OpenFile that records name. Any write, append, create or
// truncate flag makes the file an output; otherwise it is an input.
func OpenFile(rec Recorder, name string, flag int, perm os.FileMode) (*File, error) {
	f, err := os.OpenFile(name, flag, perm)
	if err != nil {
		return nil, err
	}

	h := nextHandle()
	if IsWrite(flag) {
		rec.RecordOutputHandle(name, h)
	} else {
		rec.RecordInputHandle(name, h)
	}
	return &File{File: f, rec: rec, handle: h}, nil
}

// IsWrite reports whether flag opens a file for modification.
func IsWrite(flag int) bool {
	return flag&writeFlags != 0
}

// Close closes the file, then lets the Recorder finalize an output. The
// file is closed first so the recorded hash covers everything written.
func (f *File) Close() error {
	f.closeOnce.Do(func() {
		f.closeErr = f.File.Close()
		f.rec.CloseHandle(f.handle)
	})
	return f.closeErr
}

// Handle returns the handle the file was recorded under.
func (f *File) Handle() manifest.Handle { return f.handle }
