// Package manifest keeps the per-process record of inputs and outputs and
// turns it into lineage documents attached to every output.
//
// One Manifest exists per process. It is constructed explicitly and passed
// to the interception points (see pkg/instrument and pkg/workers); nothing
// in this package is a global other than the guard enforcing the
// one-per-process rule.
//
// Processes cooperate through a shared region: the root Manifest creates it
// and exports its location in the environment, children attach on New and
// merge their inputs with ChildFlush, and the root pulls the union back with
// ParentFlush.
package manifest

import (
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/albertocavalcante/lineage/internal/log"
	"github.com/albertocavalcante/lineage/pkg/config"
	"github.com/albertocavalcante/lineage/pkg/provenance"
	"github.com/albertocavalcante/lineage/pkg/shm"
	"github.com/albertocavalcante/lineage/pkg/store"
	"github.com/albertocavalcante/lineage/pkg/sysinfo"
)

// active guards the single-instance-per-process rule.
var active atomic.Bool

// Handle identifies an open stream, typically a file descriptor.
type Handle uint64

// Options configures New. Zero values take defaults.
type Options struct {
	// Config defaults to config.Load().
	Config *config.Config
	// Args is the recorded invocation; defaults to os.Args.
	Args []string
	// Store defaults to store.FromConfig(Config.Persist).
	Store *store.Store
	// Snapshot defaults to sysinfo.Collect in the working directory.
	Snapshot *sysinfo.Snapshot
	// Standalone skips the shared region; flushes then fail with ErrNoRegion.
	Standalone bool
	// Now defaults to time.Now.
	Now func() time.Time
}

type handleEntry struct {
	input  provenance.InputRef
	output string
}

type scope struct {
	inputs  *provenance.RefSet
	outputs map[string]struct{}
}

// Manifest is the per-process lineage bookkeeping.
type Manifest struct {
	mu sync.Mutex

	cfg   *config.Config
	store *store.Store
	now   func() time.Time

	id    string
	args  []string
	start time.Time
	snap  sysinfo.Snapshot

	inputs  *provenance.RefSet
	outputs map[string]struct{}
	handles map[Handle]handleEntry
	scopes  []scope

	root     bool
	region   *shm.Region
	lock     *shm.Lock
	excluded map[string]struct{}

	closed bool
}

// New creates the process Manifest. If LINEAGE_REGION is set the Manifest
// joins that region as a child; otherwise it becomes the root and creates
// one. Region failures are logged and leave the Manifest usable without
// cross-process merging.
func New(opts Options) (*Manifest, error) {
	if !active.CompareAndSwap(false, true) {
		return nil, ErrAlreadyActive
	}

	cfg := opts.Config
	if cfg == nil {
		cfg = config.Load()
	}
	if err := cfg.Validate(); err != nil {
		active.Store(false)
		return nil, err
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}
	st := opts.Store
	if st == nil {
		st = store.FromConfig(cfg.Persist)
	}
	args := opts.Args
	if args == nil {
		args = slices.Clone(os.Args)
	}

	m := &Manifest{
		cfg:      cfg,
		store:    st,
		now:      now,
		id:       uuid.NewString(),
		args:     args,
		start:    now().UTC(),
		inputs:   &provenance.RefSet{},
		outputs:  make(map[string]struct{}),
		handles:  make(map[Handle]handleEntry),
		lock:     shm.NewLock(cfg.Region.LockPath, cfg.Region.LockTimeout.Duration),
		excluded: make(map[string]struct{}),
	}
	m.excluded[absPath(cfg.Region.LockPath)] = struct{}{}

	// Taken before any call site is active, so the snapshot reflects the
	// state the program started from.
	if opts.Snapshot != nil {
		m.snap = *opts.Snapshot
	} else {
		m.snap = sysinfo.Collect("")
	}

	if !opts.Standalone {
		m.openRegion()
	} else {
		m.root = os.Getenv(config.RegionEnv) == ""
	}

	return m, nil
}

func (m *Manifest) openRegion() {
	logger := log.Component("manifest")

	if path := os.Getenv(config.RegionEnv); path != "" {
		r, err := shm.Attach(path)
		if err != nil {
			logger.Warn("failed to attach shared region; child inputs will not reach the parent",
				"region", path, "error", err)
			return
		}
		m.region = r
		m.excluded[absPath(path)] = struct{}{}
		logger.Debug("attached shared region", "region", path)
		return
	}

	m.root = true
	r, err := shm.Create(m.cfg.Region.Dir, m.cfg.Region.Capacity)
	if err != nil {
		logger.Warn("failed to create shared region; worker inputs will not be merged", "error", err)
		return
	}
	m.region = r
	m.excluded[absPath(r.Path())] = struct{}{}
	logger.Debug("created shared region", "region", r.Path(), "capacity", r.Capacity())
}

// ID returns the invocation id recorded in every document of this process.
func (m *Manifest) ID() string { return m.id }

// IsRoot reports whether this process owns the shared region.
func (m *Manifest) IsRoot() bool { return m.root }

// Environ returns the environment entries a child process needs to join
// this Manifest's region. It is empty when no region is available.
func (m *Manifest) Environ() []string {
	if m.region == nil {
		return nil
	}
	return []string{
		config.RegionEnv + "=" + m.region.Path(),
		config.LockEnv + "=" + m.lock.Path(),
	}
}

// RecordInput records a local file read and returns its reference. The
// bool reports whether the path was newly added. Paths are made absolute;
// the lock and region files are ignored and return false with a zero ref.
func (m *Manifest) RecordInput(path string) (provenance.FileRef, bool) {
	return m.recordInput(path, nil)
}

// RecordInputHandle is RecordInput that also remembers h for CloseHandle.
func (m *Manifest) RecordInputHandle(path string, h Handle) (provenance.FileRef, bool) {
	return m.recordInput(path, &h)
}

func (m *Manifest) recordInput(path string, h *Handle) (provenance.FileRef, bool) {
	abs := absPath(path)

	m.mu.Lock()
	if m.closed || m.isExcluded(abs) {
		m.mu.Unlock()
		return provenance.FileRef{}, false
	}
	if existing, ok := m.inputs.FileByPath(abs); ok {
		if h != nil {
			m.handles[*h] = handleEntry{input: existing}
		}
		m.mu.Unlock()
		return existing, false
	}
	m.mu.Unlock()

	// Hashing can be slow; do it without holding the lock.
	ref := m.buildFileRef(abs)

	m.mu.Lock()
	defer m.mu.Unlock()
	added := false
	if existing, ok := m.inputs.FileByPath(abs); ok {
		ref = existing
	} else {
		m.inputs.Add(ref)
		added = true
		log.Component("manifest").Debug("recorded input", "path", abs, "hash", ref.ContentHash)
	}
	if h != nil {
		m.handles[*h] = handleEntry{input: ref}
	}
	return ref, added
}

// RecordRemoteInput records a network resource. No hashing is done.
func (m *Manifest) RecordRemoteInput(url string) {
	if url == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	if m.inputs.Add(provenance.RemoteRef{URL: url}) {
		log.Component("manifest").Debug("recorded remote input", "url", url)
	}
}

// RecordOutput marks path as an output to finalize later.
func (m *Manifest) RecordOutput(path string) {
	m.recordOutput(path, nil)
}

// RecordOutputHandle is RecordOutput that finalizes path when h is closed.
func (m *Manifest) RecordOutputHandle(path string, h Handle) {
	m.recordOutput(path, &h)
}

func (m *Manifest) recordOutput(path string, h *Handle) {
	abs := absPath(path)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || m.isExcluded(abs) {
		return
	}
	m.outputs[abs] = struct{}{}
	if h != nil {
		m.handles[*h] = handleEntry{output: abs}
	}
	log.Component("manifest").Debug("recorded output", "path", abs)
}

// CloseHandle is called when the stream behind h is closed. A still-pending
// output is finalized immediately; an input mapping is simply dropped.
func (m *Manifest) CloseHandle(h Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.handles[h]
	if !ok {
		return
	}
	delete(m.handles, h)

	if entry.output == "" {
		return
	}
	if _, pending := m.outputs[entry.output]; !pending || m.closed {
		return
	}
	m.finalizeLocked([]string{entry.output})
}

// EnterScope saves the current inputs and outputs. Worker call sites use it
// to keep one unit of work's bookkeeping out of the next.
func (m *Manifest) EnterScope() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scopes = append(m.scopes, scope{
		inputs:  m.inputs.Clone(),
		outputs: maps.Clone(m.outputs),
	})
}

// ExitScope restores the state saved by the matching EnterScope. Outputs
// recorded inside the scope that are still pending are finalized first so
// they are not lost. Saved outputs finalized inside the scope stay
// finalized.
func (m *Manifest) ExitScope() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.scopes) == 0 {
		return ErrScopeUnderflow
	}
	saved := m.scopes[len(m.scopes)-1]
	m.scopes = m.scopes[:len(m.scopes)-1]

	var fresh []string
	for path := range m.outputs {
		if _, ok := saved.outputs[path]; !ok {
			fresh = append(fresh, path)
		}
	}
	if len(fresh) > 0 && !m.closed {
		slices.Sort(fresh)
		m.finalizeLocked(fresh)
	}

	// Anything finalized above or inside the scope has left m.outputs.
	maps.DeleteFunc(saved.outputs, func(path string, _ struct{}) bool {
		_, pending := m.outputs[path]
		return !pending
	})

	m.inputs = saved.inputs
	m.outputs = saved.outputs
	return nil
}

// Inputs returns the recorded inputs in deterministic order.
func (m *Manifest) Inputs() []provenance.InputRef {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inputs.Sorted()
}

// Outputs returns outputs not yet finalized, sorted.
func (m *Manifest) Outputs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pendingLocked()
}

func (m *Manifest) pendingLocked() []string {
	out := slices.Collect(maps.Keys(m.outputs))
	slices.Sort(out)
	return out
}

// Generate builds a lineage document of the current state.
//
// Output hashes are computed now, from whatever is on disk. A writer that
// has not flushed its buffers yet produces a hash of partial content; call
// sites should finalize after the stream is closed.
func (m *Manifest) Generate() *provenance.Document {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generateLocked()
}

func (m *Manifest) generateLocked() *provenance.Document {
	pending := m.pendingLocked()
	outputs := make([]provenance.OutputRecord, 0, len(pending))
	for _, path := range pending {
		outputs = append(outputs, m.outputRecord(path))
	}

	return &provenance.Document{
		InvocationID:   m.id,
		InvocationArgs: slices.Clone(m.args),
		StartTime:      m.start,
		EndTime:        m.now().UTC(),
		Environment:    m.snap.Environment,
		Inputs:         m.inputs.Clone(),
		Outputs:        outputs,
		SourceControl:  m.snap.SourceControl,
		Platform:       m.snap.Platform,
		Runtime:        m.snap.Runtime,
	}
}

// SaveAll finalizes every pending output. It is the catch-all used at exit
// for outputs never closed through an interception point.
func (m *Manifest) SaveAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.outputs) == 0 {
		return
	}
	m.finalizeLocked(m.pendingLocked())
}

// finalizeLocked generates one document and persists it to each path.
// Paths leave the pending set before persisting, so a failed write is not
// retried by a later SaveAll.
func (m *Manifest) finalizeLocked(paths []string) {
	doc := m.generateLocked()
	for _, p := range paths {
		delete(m.outputs, p)
	}

	data, err := doc.Marshal()
	if err != nil {
		log.Component("manifest").Error("failed to encode lineage document", "error", err)
		return
	}

	logger := log.Component("manifest")
	for _, p := range paths {
		tier, err := m.store.PersistRaw(p, data)
		if err != nil {
			logger.Warn("failed to persist lineage", "path", p, "error", err)
			continue
		}
		logger.Info("persisted lineage", "path", p, "tier", tier, "inputs", doc.Inputs.Len())
	}
}

// Teardown pulls in worker inputs (root only), finalizes pending outputs
// and releases the shared region. The root unlinks the region file.
// Teardown is idempotent and re-enables New in this process.
func (m *Manifest) Teardown() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	if m.root && m.region != nil {
		if err := m.ParentFlush(); err != nil {
			log.Component("manifest").Warn("final parent flush failed", "error", err)
		}
	}
	m.SaveAll()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	defer active.Store(false)

	if m.region != nil {
		if err := m.region.Close(); err != nil {
			return &SyncError{Op: "teardown", Err: err}
		}
	}
	return nil
}

func (m *Manifest) isExcluded(abs string) bool {
	_, ok := m.excluded[abs]
	return ok
}

// buildFileRef fingerprints an input, reusing the hash recorded in the
// file's own lineage when it is still current.
func (m *Manifest) buildFileRef(abs string) provenance.FileRef {
	logger := log.Component("manifest")
	ref := provenance.FileRef{Path: abs}

	history, err := m.store.Load(abs)
	if err != nil {
		logger.Debug("ignoring unreadable lineage", "path", abs, "error", err)
	}
	ref.History = history

	if history != nil && m.cfg.TrustCachedHashes() {
		if hash, ok := trustedHash(abs, history); ok {
			logger.Debug("reusing recorded hash", "path", abs)
			ref.ContentHash = hash
			return ref
		}
	}

	hash, err := provenance.HashFile(abs, m.cfg.Hashing.ChunkSize)
	if err != nil {
		logger.Warn("failed to hash input", "path", abs, "error", err)
		hash = provenance.SentinelHash
	}
	ref.ContentHash = hash
	return ref
}

// trustedHash returns the hash history recorded for abs when abs was the
// sole output of that run and the file's size and mtime still match.
func trustedHash(abs string, history *provenance.Document) (string, bool) {
	if len(history.Outputs) != 1 {
		return "", false
	}
	rec, n := history.OutputFor(abs)
	if n != 1 || rec.ContentHash == "" || rec.ContentHash == provenance.SentinelHash {
		return "", false
	}
	size, mtime, err := provenance.FileStat(abs)
	if err != nil || size != rec.Size || mtime != rec.ModTimeNS {
		return "", false
	}
	return rec.ContentHash, true
}

func (m *Manifest) outputRecord(path string) provenance.OutputRecord {
	rec := provenance.OutputRecord{Path: path, ContentHash: provenance.SentinelHash}
	hash, err := provenance.HashFile(path, m.cfg.Hashing.ChunkSize)
	if err != nil {
		log.Component("manifest").Warn("failed to hash output", "path", path, "error", err)
		return rec
	}
	rec.ContentHash = hash
	if size, mtime, err := provenance.FileStat(path); err == nil {
		rec.Size = size
		rec.ModTimeNS = mtime
	}
	return rec
}

func absPath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	return abs
}
