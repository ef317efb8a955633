package engine

import (
	"os"
	"sync"
)

// tmpRegistry tracks in-flight copy tmp files so a signal handler can remove
// them before exit.
var globalTmpRegistry = &tmpRegistry{}

type tmpRegistry struct {
	mu    sync.Mutex
	paths map[string]struct{}
}

// RegisterTmp records an in-flight tmp file.
func RegisterTmp(path string) {
	globalTmpRegistry.mu.Lock()
	defer globalTmpRegistry.mu.Unlock()
	if globalTmpRegistry.paths == nil {
		globalTmpRegistry.paths = make(map[string]struct{})
	}
	globalTmpRegistry.paths[path] = struct{}{}
}

// DeregisterTmp forgets a tmp file once it was renamed or removed.
func DeregisterTmp(path string) {
	globalTmpRegistry.mu.Lock()
	defer globalTmpRegistry.mu.Unlock()
	delete(globalTmpRegistry.paths, path)
}

// PendingTmp reports how many tmp files are in flight.
func PendingTmp() int {
	globalTmpRegistry.mu.Lock()
	defer globalTmpRegistry.mu.Unlock()
	return len(globalTmpRegistry.paths)
}

// CleanupTmpFiles removes every registered tmp file and returns the count.
func CleanupTmpFiles() int {
	globalTmpRegistry.mu.Lock()
	paths := make([]string, 0, len(globalTmpRegistry.paths))
	for p := range globalTmpRegistry.paths {
		paths = append(paths, p)
	}
	globalTmpRegistry.paths = nil
	globalTmpRegistry.mu.Unlock()

	removed := 0
	for _, p := range paths {
		if os.Remove(p) == nil {
			removed++
		}
	}
	return removed
}
