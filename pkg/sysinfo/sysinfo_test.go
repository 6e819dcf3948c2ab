package sysinfo

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func initRepo(t *testing.T) (string, *git.Repository) {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "pipeline.go"), []byte("package main\n"), 0o644))
	wt, err := repo.Worktree()
	require.NoError(t, err)
	_, err = wt.Add("pipeline.go")
	require.NoError(t, err)
	_, err = wt.Commit("initial", &git.CommitOptions{
		Author: &object.Signature{Name: "ci", Email: "ci@example.org", When: time.Now()},
	})
	require.NoError(t, err)
	return dir, repo
}

func TestGitStatusCleanRepository(t *testing.T) {
	dir, repo := initRepo(t)
	_, err := repo.CreateRemote(&gitconfig.RemoteConfig{
		Name: "origin",
		URLs: []string{"https://example.org/pipeline.git"},
	})
	require.NoError(t, err)

	sub := filepath.Join(dir, "nested")
	require.NoError(t, os.MkdirAll(sub, 0o755))

	sc := GitStatus(sub)
	require.Empty(t, sc.Error)
	assert.NotEqual(t, "HEAD", sc.Branch)
	assert.Len(t, sc.Commit, 40)
	assert.False(t, sc.Dirty)
	assert.Equal(t, map[string][]string{"origin": {"https://example.org/pipeline.git"}}, sc.Remotes)
}

func TestGitStatusDirty(t *testing.T) {
	dir, _ := initRepo(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pipeline.go"), []byte("package main\n// edited\n"), 0o644))

	sc := GitStatus(dir)
	require.Empty(t, sc.Error)
	assert.True(t, sc.Dirty)
}

func TestGitStatusOutsideRepository(t *testing.T) {
	sc := GitStatus(t.TempDir())
	if sc.Error == "" {
		t.Skip("temp directory lives inside a git repository")
	}
	assert.Equal(t, "no git repository found", sc.Error)
	assert.Empty(t, sc.Commit)
}

func TestContainerID(t *testing.T) {
	id := strings.Repeat("ab", 32)
	path := filepath.Join(t.TempDir(), "cgroup")
	content := "12:memory:/docker/" + id + "\n0::/\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	orig := cgroupPath
	cgroupPath = path
	t.Cleanup(func() { cgroupPath = orig })

	assert.Equal(t, id, containerID())

	require.NoError(t, os.WriteFile(path, []byte("0::/user.slice\n"), 0o644))
	assert.Empty(t, containerID())

	cgroupPath = filepath.Join(t.TempDir(), "missing")
	assert.Empty(t, containerID())
}

func TestCurrentEnvironment(t *testing.T) {
	t.Setenv("USER", "pipeline-bot")
	t.Setenv("KUBERNETES_SERVICE_HOST", "10.0.0.1")
	t.Setenv("POD_NAME", "etl-7d9")

	env := CurrentEnvironment()
	assert.Equal(t, "pipeline-bot", env.User)
	assert.NotEmpty(t, env.Host)
	assert.Equal(t, "etl-7d9", env.Pod)
}

func TestCurrentPlatformAndRuntime(t *testing.T) {
	p := CurrentPlatform()
	assert.NotEmpty(t, p.System)
	assert.Equal(t, runtime.GOARCH, p.Processor)

	rt := CurrentRuntime()
	assert.Equal(t, runtime.Version(), rt.Version)
}

func TestCollect(t *testing.T) {
	dir, _ := initRepo(t)
	snap := Collect(dir)

	assert.NotEmpty(t, snap.Environment.User)
	assert.Empty(t, snap.SourceControl.Error)
	assert.NotEmpty(t, snap.Runtime.Version)
}
