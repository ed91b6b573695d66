package authz

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/KenIjiwoye/immune-me-sub004/pkg/logger"
)

// FileConfigStore serves configuration documents from JSON files in a
// directory (<name>.json). A missing file is reported as a 404 StatusError
// so callers can distinguish "not provisioned yet" from I/O failures.
type FileConfigStore struct {
	dir    string
	logger logger.Logger

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	stopCh  chan struct{}
}

func NewFileConfigStore(dir string, log logger.Logger) *FileConfigStore {
	return &FileConfigStore{dir: dir, logger: log}
}

func (s *FileConfigStore) GetDocument(ctx context.Context, name string) ([]byte, error) {
	path := filepath.Join(s.dir, name+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &StatusError{Code: 404, Message: fmt.Sprintf("document %s not found", name)}
		}
		return nil, &StatusError{Code: 500, Message: err.Error()}
	}
	return data, nil
}

// Watch starts a file watcher that invokes onChange with the document name
// whenever a .json file in the store directory is written. Used to drive
// MatrixLoader.ReloadDocument for hot reload of individual documents.
func (s *FileConfigStore) Watch(onChange func(document string)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.watcher != nil {
		return fmt.Errorf("config store watcher already started")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := watcher.Add(s.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch config directory: %w", err)
	}

	s.watcher = watcher
	s.stopCh = make(chan struct{})
	s.logger.Info("configuration watcher started", "dir", s.dir)

	go s.run(watcher, s.stopCh, onChange)
	return nil
}

func (s *FileConfigStore) run(watcher *fsnotify.Watcher, stopCh chan struct{}, onChange func(string)) {
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if filepath.Ext(event.Name) != ".json" {
				continue
			}
			name := strings.TrimSuffix(filepath.Base(event.Name), ".json")
			s.logger.Info("configuration document changed", "document", name)
			onChange(name)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			s.logger.Error("configuration watcher error", "error", err)

		case <-stopCh:
			return
		}
	}
}

// Close stops the watcher, if running.
func (s *FileConfigStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.watcher == nil {
		return nil
	}
	close(s.stopCh)
	err := s.watcher.Close()
	s.watcher = nil
	return err
}
