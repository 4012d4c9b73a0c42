package watcher

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/penwyp/go-chat-recap/internal/util"
)

// DefaultDebounce coalesces the burst of events a single save produces.
const DefaultDebounce = 200 * time.Millisecond

// Change reports an export file whose content differs from the last seen
// version.
type Change struct {
	Path        string
	Fingerprint string
	Size        int64
}

// FileWatcher watches individual export files. It watches their parent
// directories so editors that replace files on save are still tracked.
type FileWatcher struct {
	watcher  *fsnotify.Watcher
	debounce time.Duration
	changes  chan Change
	fired    chan string
	done     chan struct{}

	mu      sync.Mutex
	files   map[string]string // abs path -> last fingerprint
	pending map[string]*time.Timer
}

// NewFileWatcher starts watching paths. The current content of every file is
// fingerprinted so only later edits are reported.
func NewFileWatcher(paths []string, debounce time.Duration) (*FileWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	fw := &FileWatcher{
		watcher:  w,
		debounce: debounce,
		changes:  make(chan Change, 16),
		fired:    make(chan string, 16),
		done:     make(chan struct{}),
		files:    make(map[string]string),
		pending:  make(map[string]*time.Timer),
	}

	dirs := make(map[string]struct{})
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			w.Close()
			return nil, err
		}
		fp, _, err := util.CalculateFileFingerprint(abs)
		if err != nil {
			util.LogDebug("Watching file that cannot be read yet", util.F("path", abs), util.F("error", err.Error()))
		}
		fw.files[abs] = fp
		dirs[filepath.Dir(abs)] = struct{}{}
	}
	for dir := range dirs {
		if err := w.Add(dir); err != nil {
			w.Close()
			return nil, err
		}
	}
	return fw, nil
}

// Changes delivers content changes. It is closed when Run returns.
func (fw *FileWatcher) Changes() <-chan Change {
	return fw.changes
}

// Run processes filesystem events until ctx is cancelled.
func (fw *FileWatcher) Run(ctx context.Context) error {
	defer func() {
		fw.mu.Lock()
		for _, t := range fw.pending {
			t.Stop()
		}
		fw.pending = map[string]*time.Timer{}
		fw.mu.Unlock()
		close(fw.done)
		fw.watcher.Close()
		close(fw.changes)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			fw.schedule(filepath.Clean(event.Name))
		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return nil
			}
			util.LogError("File watching error", util.F("error", err.Error()))
		case path := <-fw.fired:
			if change, ok := fw.check(path); ok {
				select {
				case fw.changes <- change:
				case <-ctx.Done():
					return nil
				}
			}
		}
	}
}

func (fw *FileWatcher) schedule(path string) {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if _, watched := fw.files[path]; !watched {
		return
	}
	if t, ok := fw.pending[path]; ok {
		t.Reset(fw.debounce)
		return
	}
	fw.pending[path] = time.AfterFunc(fw.debounce, func() {
		fw.mu.Lock()
		delete(fw.pending, path)
		fw.mu.Unlock()
		select {
		case fw.fired <- path:
		case <-fw.done:
		}
	})
}

// check reports a change when the file's fingerprint moved.
func (fw *FileWatcher) check(path string) (Change, bool) {
	fp, size, err := util.CalculateFileFingerprint(path)
	if err != nil {
		util.LogDebug("Skipping unreadable file", util.F("path", path), util.F("error", err.Error()))
		return Change{}, false
	}

	fw.mu.Lock()
	defer fw.mu.Unlock()
	if fw.files[path] == fp {
		util.LogDebug("File touched without content change", util.F("path", path))
		return Change{}, false
	}
	fw.files[path] = fp
	return Change{Path: path, Fingerprint: fp, Size: size}, true
}
