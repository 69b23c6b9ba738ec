package store

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch keeps parsed topic files in memory and drops them whenever anything
// under the data directory changes. It blocks until ctx is cancelled. Until
// Watch is called every lookup re-reads the files.
func (s *FileStore) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	defer func() { _ = w.Close() }()

	if err := addTree(w, s.dataDir); err != nil {
		return err
	}

	s.mu.Lock()
	s.cached = true
	s.gen++
	s.paths = nil
	s.parsed = make(map[string]*topicFile)
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.cached = false
		s.gen++
		s.paths = nil
		s.parsed = nil
		s.mu.Unlock()
	}()

	s.logger.Info("watching data dir", "dir", s.dataDir)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			s.logger.Debug("data dir changed", "path", event.Name, "op", event.Op.String())
			if event.Has(fsnotify.Create) {
				if info, statErr := os.Stat(event.Name); statErr == nil && info.IsDir() {
					if addErr := addTree(w, event.Name); addErr != nil {
						s.logger.Warn("watching new directory", "dir", event.Name, "error", addErr)
					}
				}
			}
			s.invalidate()
		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.logger.Error("data dir watcher", "error", watchErr)
			s.invalidate()
		}
	}
}

// addTree watches root and all of its sub-directories.
func addTree(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if addErr := w.Add(path); addErr != nil {
			return fmt.Errorf("watching %s: %w", path, addErr)
		}
		return nil
	})
}
