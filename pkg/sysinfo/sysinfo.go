// Package sysinfo captures the execution context recorded in lineage
// documents: who ran the program and where, the repository state, the
// platform and the Go runtime.
package sysinfo

import (
	"os"
	"os/user"
	"runtime"
	"runtime/debug"

	"github.com/albertocavalcante/lineage/pkg/provenance"
)

// Snapshot is the context taken once at process start.
type Snapshot struct {
	Environment   provenance.Environment
	SourceControl provenance.SourceControl
	Platform      provenance.Platform
	Runtime       provenance.Runtime
}

// Collect gathers a snapshot. dir is where the repository search starts;
// empty means the working directory.
func Collect(dir string) Snapshot {
	if dir == "" {
		if wd, err := os.Getwd(); err == nil {
			dir = wd
		}
	}
	return Snapshot{
		Environment:   CurrentEnvironment(),
		SourceControl: GitStatus(dir),
		Platform:      CurrentPlatform(),
		Runtime:       CurrentRuntime(),
	}
}

// CurrentEnvironment returns user, host and container identifiers.
func CurrentEnvironment() provenance.Environment {
	env := provenance.Environment{
		User: currentUser(),
		Host: "unknown",
	}
	if h, err := os.Hostname(); err == nil {
		env.Host = h
	}
	env.ContainerID = containerID()
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		env.Pod = firstNonEmpty(os.Getenv("POD_NAME"), os.Getenv("HOSTNAME"))
	}
	return env
}

func currentUser() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	if u, err := user.Current(); err == nil {
		return u.Username
	}
	return "unknown"
}

// CurrentRuntime returns the Go version and the modules linked into the binary.
func CurrentRuntime() provenance.Runtime {
	rt := provenance.Runtime{Version: runtime.Version()}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return rt
	}
	rt.Packages = make(map[string]string, len(info.Deps)+1)
	if info.Main.Path != "" {
		rt.Packages[info.Main.Path] = info.Main.Version
	}
	for _, dep := range info.Deps {
		if dep.Replace != nil {
			rt.Packages[dep.Path] = dep.Replace.Version
			continue
		}
		rt.Packages[dep.Path] = dep.Version
	}
	return rt
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
