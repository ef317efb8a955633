package inventory

import (
	"context"
	"sync"
)

// FileTypeHandler is the capability set a file-type plugin provides.
// Handlers receive full paths of stored files.
type FileTypeHandler interface {
	// HasContentsIngested reports, per path, whether the file's metadata is
	// already in the catalog.
	HasContentsIngested(ctx context.Context, paths []string) (map[string]bool, error)
	// IngestContents loads the files' metadata into the catalog.
	IngestContents(ctx context.Context, paths []string) error
	// CheckValid reports, per path, whether the file is well formed for its type.
	CheckValid(ctx context.Context, paths []string) (map[string]bool, error)
}

var (
	handlersMu sync.RWMutex
	handlers   = map[string]FileTypeHandler{}
)

// RegisterHandler installs h for fileType, replacing any earlier handler.
// Intended to be called at startup.
func RegisterHandler(fileType string, h FileTypeHandler) {
	handlersMu.Lock()
	defer handlersMu.Unlock()
	handlers[fileType] = h
}

// Handler returns the handler for fileType, or a no-op handler.
func Handler(fileType string) FileTypeHandler {
	handlersMu.RLock()
	defer handlersMu.RUnlock()
	if h, ok := handlers[fileType]; ok {
		return h
	}
	return noopHandler{}
}

// noopHandler treats every file as valid and already ingested.
type noopHandler struct{}

func (noopHandler) HasContentsIngested(_ context.Context, paths []string) (map[string]bool, error) {
	return allTrue(paths), nil
}

func (noopHandler) IngestContents(context.Context, []string) error { return nil }

func (noopHandler) CheckValid(_ context.Context, paths []string) (map[string]bool, error) {
	return allTrue(paths), nil
}

func allTrue(paths []string) map[string]bool {
	m := make(map[string]bool, len(paths))
	for _, p := range paths {
		m[p] = true
	}
	return m
}
