package workers

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/albertocavalcante/lineage/pkg/config"
	"github.com/albertocavalcante/lineage/pkg/manifest"
	"github.com/albertocavalcante/lineage/pkg/provenance"
	"github.com/albertocavalcante/lineage/pkg/sysinfo"
)

const (
	helperEnv      = "LINEAGE_WORKERS_HELPER"
	helperInputEnv = "LINEAGE_WORKERS_HELPER_INPUT"
	helperExitEnv  = "LINEAGE_WORKERS_HELPER_EXIT"
)

// TestMain lets the test binary double as a worker process.
func TestMain(m *testing.M) {
	if os.Getenv(helperEnv) == "1" {
		os.Exit(runHelper())
	}
	os.Exit(m.Run())
}

func runHelper() int {
	if code := os.Getenv(helperExitEnv); code != "" {
		return 3
	}

	cfg := config.Load()
	m, err := manifest.New(manifest.Options{Config: cfg, Snapshot: &sysinfo.Snapshot{}})
	if err != nil {
		return 10
	}
	err = Unit(m, func() error {
		m.RecordInput(os.Getenv(helperInputEnv))
		return nil
	})
	if tErr := m.Teardown(); tErr != nil {
		return 12
	}
	if err != nil {
		return 11
	}
	return 0
}

type fakeParent struct {
	env     []string
	flushes int
	err     error
}

func (f *fakeParent) Environ() []string { return f.env }

func (f *fakeParent) ParentFlush() error {
	f.flushes++
	return f.err
}

type fakeScope struct {
	calls    []string
	flushErr error
}

func (f *fakeScope) EnterScope() { f.calls = append(f.calls, "enter") }

func (f *fakeScope) ExitScope() error {
	f.calls = append(f.calls, "exit")
	return nil
}

func (f *fakeScope) ChildFlush() error {
	f.calls = append(f.calls, "flush")
	return f.flushErr
}

func TestUnitOrdering(t *testing.T) {
	s := &fakeScope{}
	err := Unit(s, func() error {
		s.calls = append(s.calls, "work")
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"enter", "work", "flush", "exit"}, s.calls)
}

func TestUnitJoinsErrors(t *testing.T) {
	workErr := errors.New("work failed")
	flushErr := errors.New("flush failed")
	s := &fakeScope{flushErr: flushErr}

	err := Unit(s, func() error { return workErr })
	require.ErrorIs(t, err, workErr)
	require.ErrorIs(t, err, flushErr)
	assert.Equal(t, []string{"enter", "flush", "exit"}, s.calls, "scope is restored even on failure")
}

func TestPoolEnviron(t *testing.T) {
	p := New(&fakeParent{env: []string{"LINEAGE_REGION=/tmp/r"}}, WithEnv("EXTRA=1"))
	env := p.Environ()
	assert.Contains(t, env, "LINEAGE_REGION=/tmp/r")
	assert.Contains(t, env, "EXTRA=1")

	cmd := p.Command(context.Background(), "true")
	assert.Equal(t, env, cmd.Env)
}

func TestRunFlushesEvenOnFailure(t *testing.T) {
	parent := &fakeParent{}
	p := New(parent, WithStdio(nil, nil, nil))

	cmd := p.Command(context.Background(), os.Args[0])
	cmd.Env = append(cmd.Env, helperEnv+"=1", helperExitEnv+"=1")

	err := p.Run(context.Background(), cmd)
	require.Error(t, err)
	assert.Equal(t, 1, parent.flushes)
}

func TestRunCancelled(t *testing.T) {
	parent := &fakeParent{}
	p := New(parent, WithStdio(nil, nil, nil))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := p.Run(ctx, p.Command(context.Background(), os.Args[0]))
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, parent.flushes)
}

func TestWorkersContributeInputs(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(config.RegionEnv, "")

	cfg := config.NewConfig()
	cfg.Region.Dir = dir
	cfg.Region.Capacity = 1 << 16
	cfg.Region.LockPath = filepath.Join(dir, "lineage.lock")
	cfg.Region.LockTimeout = config.Duration{Duration: 10 * time.Second}

	m, err := manifest.New(manifest.Options{Config: cfg, Snapshot: &sysinfo.Snapshot{}})
	require.NoError(t, err)
	defer func() { _ = m.Teardown() }()
	require.True(t, m.IsRoot())

	var inputs []string
	for _, name := range []string{"part-0.csv", "part-1.csv", "part-2.csv"} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(name), 0o644))
		inputs = append(inputs, path)
	}

	p := New(m, WithLimit(2), WithStdio(nil, nil, nil))
	var cmds []*exec.Cmd
	for _, in := range inputs {
		cmd := p.Command(context.Background(), os.Args[0])
		cmd.Env = append(cmd.Env, helperEnv+"=1", helperInputEnv+"="+in)
		cmds = append(cmds, cmd)
	}
	require.NoError(t, p.Run(context.Background(), cmds...))

	var got []string
	for _, ref := range m.Inputs() {
		f, ok := ref.(provenance.FileRef)
		require.True(t, ok)
		assert.Equal(t, provenance.HashBytes([]byte(filepath.Base(f.Path))), f.ContentHash)
		got = append(got, f.Path)
	}
	assert.ElementsMatch(t, inputs, got)
}
