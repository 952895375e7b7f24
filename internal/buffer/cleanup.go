package buffer

import (
	"errors"
	"fmt"
	"os"
	"sync"
)

// liveFiles tracks spill files owned by open buffers so they can be removed
// when the process is torn down without closing its buffers.
var liveFiles = struct {
	sync.Mutex
	paths map[string]struct{}
}{paths: make(map[string]struct{})}

func trackFile(path string) {
	liveFiles.Lock()
	liveFiles.paths[path] = struct{}{}
	liveFiles.Unlock()
}

func untrackFile(path string) {
	liveFiles.Lock()
	delete(liveFiles.paths, path)
	liveFiles.Unlock()
}

// LiveFiles returns the number of spill files currently held by open buffers.
func LiveFiles() int {
	liveFiles.Lock()
	defer liveFiles.Unlock()
	return len(liveFiles.paths)
}

// RemoveOrphans deletes every spill file still held by an open buffer.
// It is meant for signal handlers and fatal exit paths; buffers whose files
// are removed this way are unusable afterwards.
func RemoveOrphans() error {
	liveFiles.Lock()
	defer liveFiles.Unlock()

	var errs []error
	for path := range liveFiles.paths {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, fmt.Errorf("remove %s: %w", path, err))
			continue
		}
		delete(liveFiles.paths, path)
	}
	return errors.Join(errs...)
}
