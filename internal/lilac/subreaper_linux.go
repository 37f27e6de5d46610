//go:build linux

package lilac

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"
)

// SetupSubreaper marks this process as a child subreaper so that orphaned
// grandchildren reparent to us instead of init. Without it a timed-out
// build could leave daemonized helpers running forever.
func SetupSubreaper() error {
	return unix.Prctl(unix.PR_SET_CHILD_SUBREAPER, 1, 0, 0, 0)
}

// reapDescendants kills the process groups of every process currently
// parented to us. Called after a timeout kill, when the direct child is
// gone but its orphans have been adopted here via the subreaper.
func reapDescendants() {
	self := os.Getpid()
	entries, err := os.ReadDir("/proc")
	if err != nil {
		return
	}
	for _, entry := range entries {
		pid, err := strconv.Atoi(entry.Name())
		if err != nil || pid == self {
			continue
		}
		stat, err := os.ReadFile(filepath.Join("/proc", entry.Name(), "stat"))
		if err != nil {
			continue
		}
		// the comm field may contain spaces but is parenthesized, so
		// split after it: fields are then [state, ppid, pgrp, ...]
		s := string(stat)
		i := strings.LastIndexByte(s, ')')
		if i < 0 {
			continue
		}
		fields := strings.Fields(s[i+1:])
		if len(fields) < 3 {
			continue
		}
		ppid, err := strconv.Atoi(fields[1])
		if err != nil || ppid != self {
			continue
		}
		pgid, err := strconv.Atoi(fields[2])
		if err != nil || pgid == self {
			continue
		}
		debugf("reaping orphaned process group %d (pid %d)\n", pgid, pid)
		syscall.Kill(-pgid, syscall.SIGKILL)
	}
	// collect the corpses so they don't linger as zombies
	for {
		pid, err := syscall.Wait4(-1, nil, syscall.WNOHANG, nil)
		if err != nil || pid <= 0 {
			break
		}
	}
}
