package interaction

import (
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// AnswerWatcher supplies input to suspended tasks from files dropped into an
// answers directory: writing a file named after a task ID resolves that
// task's suspension with the file contents. This gives external tooling a
// transport-free way to answer questions without linking against Weave.
type AnswerWatcher struct {
	dir     string
	session *Session
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewAnswerWatcher creates the answers directory if needed and starts
// watching it.
func NewAnswerWatcher(dir string, session *Session) (*AnswerWatcher, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, err
	}

	w := &AnswerWatcher{
		dir:     dir,
		session: session,
		watcher: watcher,
		done:    make(chan struct{}),
	}
	go w.watch()

	return w, nil
}

// watch consumes filesystem events until Close.
func (w *AnswerWatcher) watch() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				w.deliver(event.Name)
			}
		case <-w.watcher.Errors:
			// Keep watching; a missed event is recoverable by rewriting the file.
		}
	}
}

// deliver reads an answer file and supplies its contents to the named task.
// The file is removed after successful delivery so the same task can ask
// again later.
func (w *AnswerWatcher) deliver(path string) {
	taskID := strings.TrimSuffix(filepath.Base(path), ".txt")
	if !w.session.IsAwaiting(taskID) {
		return
	}

	content, err := os.ReadFile(path)
	if err != nil {
		log.Printf("[interaction] read answer file %s: %v", path, err)
		return
	}

	if err := w.session.SupplyInput(taskID, strings.TrimSpace(string(content))); err != nil {
		log.Printf("[interaction] supply input for %s: %v", taskID, err)
		return
	}
	os.Remove(path)
	log.Printf("[interaction] delivered answer for task %s", taskID)
}

// Dir returns the watched answers directory.
func (w *AnswerWatcher) Dir() string {
	return w.dir
}

// Close stops the watcher.
func (w *AnswerWatcher) Close() {
	close(w.done)
	w.watcher.Close()
}
