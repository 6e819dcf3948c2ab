package sysinfo

import (
	"errors"
	"slices"

	"github.com/go-git/go-git/v5"

	"github.com/albertocavalcante/lineage/pkg/provenance"
)

// GitStatus describes the repository containing dir. Failures are reported
// through the Error field rather than returned.
func GitStatus(dir string) provenance.SourceControl {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return provenance.SourceControl{Error: "no git repository found"}
		}
		return provenance.SourceControl{Error: err.Error()}
	}

	head, err := repo.Head()
	if err != nil {
		return provenance.SourceControl{Error: "failed to resolve HEAD: " + err.Error()}
	}

	sc := provenance.SourceControl{
		Branch: "HEAD",
		Commit: head.Hash().String(),
	}
	if head.Name().IsBranch() {
		sc.Branch = head.Name().Short()
	}

	if wt, err := repo.Worktree(); err == nil {
		if status, err := wt.Status(); err == nil {
			sc.Dirty = !status.IsClean()
		}
	}

	remotes, err := repo.Remotes()
	if err == nil && len(remotes) > 0 {
		sc.Remotes = make(map[string][]string, len(remotes))
		for _, r := range remotes {
			cfg := r.Config()
			sc.Remotes[cfg.Name] = slices.Clone(cfg.URLs)
		}
	}

	return sc
}
