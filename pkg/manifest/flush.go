package manifest

import (
	"encoding/json"
	"fmt"

	"github.com/albertocavalcante/lineage/internal/log"
	"github.com/albertocavalcante/lineage/pkg/provenance"
)

// ChildFlush merges this process's inputs into the shared region under the
// cross-process lock. Workers call it before returning a unit of work.
// Merging is a set union, so repeated flushes are harmless.
func (m *Manifest) ChildFlush() error {
	if m.region == nil {
		return &SyncError{Op: "child flush", Err: ErrNoRegion}
	}

	m.mu.Lock()
	local := m.inputs.Clone()
	m.mu.Unlock()

	var merged int
	err := m.lock.With(func() error {
		shared, err := m.readShared()
		if err != nil {
			return err
		}
		shared.Union(local)
		merged = shared.Len()

		payload, err := json.Marshal(shared)
		if err != nil {
			return fmt.Errorf("encode shared inputs: %w", err)
		}
		return m.region.Write(payload)
	})
	if err != nil {
		return &SyncError{Op: "child flush", Err: err}
	}

	log.Component("manifest").Debug("flushed inputs to shared region",
		"local", local.Len(), "shared", merged)
	return nil
}

// ParentFlush merges the shared region into this process's inputs. It is a
// no-op outside the root process.
func (m *Manifest) ParentFlush() error {
	if !m.root {
		return nil
	}
	if m.region == nil {
		return &SyncError{Op: "parent flush", Err: ErrNoRegion}
	}

	var shared *provenance.RefSet
	err := m.lock.With(func() error {
		var err error
		shared, err = m.readShared()
		return err
	})
	if err != nil {
		return &SyncError{Op: "parent flush", Err: err}
	}

	m.mu.Lock()
	before := m.inputs.Len()
	m.inputs.Union(shared)
	after := m.inputs.Len()
	m.mu.Unlock()

	log.Component("manifest").Debug("merged shared inputs",
		"shared", shared.Len(), "added", after-before)
	return nil
}

// readShared decodes the region payload. An empty region is an empty set.
// Callers hold the cross-process lock.
func (m *Manifest) readShared() (*provenance.RefSet, error) {
	raw, err := m.region.Read()
	if err != nil {
		return nil, err
	}
	set := &provenance.RefSet{}
	if len(raw) == 0 {
		return set, nil
	}
	if err := json.Unmarshal(raw, set); err != nil {
		return nil, fmt.Errorf("decode shared inputs: %w", err)
	}
	return set, nil
}
