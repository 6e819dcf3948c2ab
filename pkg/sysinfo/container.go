package sysinfo

import (
	"bufio"
	"os"
	"regexp"
)

// containerIDPattern matches the 64-hex container id docker, containerd
// and cri-o embed in cgroup paths.
var containerIDPattern = regexp.MustCompile(`[0-9a-f]{64}`)

// cgroupPath is a variable for tests.
var cgroupPath = "/proc/self/cgroup"

// containerID returns the id of the container this process runs in, or "".
func containerID() string {
	f, err := os.Open(cgroupPath)
	if err != nil {
		return ""
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if id := containerIDPattern.FindString(scanner.Text()); id != "" {
			return id
		}
	}
	return ""
}
