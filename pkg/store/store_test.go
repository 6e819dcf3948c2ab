package store

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/albertocavalcante/lineage/pkg/config"
	"github.com/albertocavalcante/lineage/pkg/provenance"
)

func testDocument(args ...string) *provenance.Document {
	return &provenance.Document{
		InvocationArgs: args,
		StartTime:      time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		EndTime:        time.Date(2026, 3, 1, 0, 0, 1, 0, time.UTC),
		Inputs:         provenance.NewRefSet(provenance.RemoteRef{URL: "https://example.org/in.csv"}),
		Outputs:        []provenance.OutputRecord{{Path: "/tmp/out", ContentHash: "abc"}},
	}
}

func writeTarget(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "out.csv")
	require.NoError(t, os.WriteFile(path, []byte("a,b\n1,2\n"), 0o644))
	return path
}

func TestSideFileName(t *testing.T) {
	s := New(Options{})
	assert.Equal(t, "/data/.out.csv.lineage", s.SideFileName("/data/out.csv"))

	s = New(Options{Marker: "prov"})
	assert.Equal(t, "/data/.out.csv.prov", s.SideFileName("/data/out.csv"))
}

func TestIsSideFile(t *testing.T) {
	s := New(Options{})
	assert.True(t, s.IsSideFile("/data/.out.csv.lineage"))
	assert.False(t, s.IsSideFile("/data/out.csv"))
	assert.False(t, s.IsSideFile("/data/.lineage"))
	assert.False(t, s.IsSideFile("/data/out.lineage"))
}

func TestTierString(t *testing.T) {
	assert.Equal(t, "xattr", TierXattr.String())
	assert.Equal(t, "sidefile", TierSideFile.String())
	assert.Equal(t, "none", TierNone.String())
}

func TestSideFileOnlyRoundTrip(t *testing.T) {
	s := New(Options{SideFileOnly: true})
	target := writeTarget(t)

	tier, err := s.Persist(target, testDocument("producer", "--x"))
	require.NoError(t, err)
	assert.Equal(t, TierSideFile, tier)
	assert.FileExists(t, s.SideFileName(target))
	assert.NoFileExists(t, s.SideFileName(target)+".tmp")

	doc, err := s.Load(target)
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, []string{"producer", "--x"}, doc.InvocationArgs)

	content, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "a,b\n1,2\n", string(content), "primary content must not change")
}

func TestAutoModeRoundTrip(t *testing.T) {
	s := New(Options{})
	target := writeTarget(t)

	tier, err := s.Persist(target, testDocument("producer"))
	require.NoError(t, err)
	assert.Contains(t, []Tier{TierXattr, TierSideFile}, tier)

	doc, err := s.Load(target)
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, "producer", doc.Program())

	// Overwrite replaces the previous document on whichever tier is used.
	_, err = s.Persist(target, testDocument("second"))
	require.NoError(t, err)
	doc, err = s.Load(target)
	require.NoError(t, err)
	assert.Equal(t, "second", doc.Program())
}

func TestFallbackWhenAttributeRejected(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("relies on linux rejecting unknown xattr namespaces")
	}
	s := New(Options{XattrKey: "bogus.lineage"})
	target := writeTarget(t)

	tier, err := s.Persist(target, testDocument("producer"))
	require.NoError(t, err)
	assert.Equal(t, TierSideFile, tier)

	doc, err := s.Load(target)
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, "producer", doc.Program())
}

func TestPersistMissingTarget(t *testing.T) {
	s := New(Options{})
	_, err := s.Persist(filepath.Join(t.TempDir(), "gone.csv"), testDocument("p"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTargetMissing))
}

func TestPersistUnwritableDirectory(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root ignores directory permissions")
	}
	dir := t.TempDir()
	target := filepath.Join(dir, "out.csv")
	require.NoError(t, os.WriteFile(target, []byte("x"), 0o644))
	require.NoError(t, os.Chmod(dir, 0o555))
	t.Cleanup(func() { _ = os.Chmod(dir, 0o755) })

	s := New(Options{SideFileOnly: true})
	tier, err := s.Persist(target, testDocument("p"))
	assert.Error(t, err)
	assert.Equal(t, TierNone, tier)
}

func TestLoadWithoutHistory(t *testing.T) {
	s := New(Options{})
	target := writeTarget(t)

	doc, err := s.Load(target)
	require.NoError(t, err)
	assert.Nil(t, doc)

	doc, err = s.Load(filepath.Join(t.TempDir(), "never-existed"))
	require.NoError(t, err)
	assert.Nil(t, doc)
}

func TestLoadCorruptSideFile(t *testing.T) {
	s := New(Options{SideFileOnly: true})
	target := writeTarget(t)
	require.NoError(t, os.WriteFile(s.SideFileName(target), []byte("{broken"), 0o644))

	doc, err := s.Load(target)
	assert.Error(t, err)
	assert.Nil(t, doc)
}

func TestRemove(t *testing.T) {
	s := New(Options{})
	target := writeTarget(t)

	_, err := s.Persist(target, testDocument("p"))
	require.NoError(t, err)
	require.NoError(t, s.Remove(target))

	doc, err := s.Load(target)
	require.NoError(t, err)
	assert.Nil(t, doc)

	// Removing again is fine.
	require.NoError(t, s.Remove(target))
}

func TestFromConfig(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Persist.Mode = config.ModeSideFile
	cfg.Persist.SideFileMarker = "prov"

	s := FromConfig(cfg.Persist)
	target := writeTarget(t)

	tier, err := s.Persist(target, testDocument("p"))
	require.NoError(t, err)
	assert.Equal(t, TierSideFile, tier)
	assert.FileExists(t, filepath.Join(filepath.Dir(target), ".out.csv.prov"))
}
