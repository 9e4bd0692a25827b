package rbac

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// WatchPolicyFile hot-reloads the evaluator's policy table when the policy
// file changes on disk. A reload that fails to parse keeps the previous
// table. Blocks until ctx is done.
func WatchPolicyFile(ctx context.Context, path string, evaluator *Evaluator, log *logrus.Logger) error {
	if log == nil {
		log = logrus.New()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create policy watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory so editors that replace-by-rename still trigger
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watch policy dir: %w", err)
	}

	target := filepath.Clean(path)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			policy, err := LoadPolicyFile(path)
			if err != nil {
				log.WithError(err).WithField("path", path).Warn("policy reload failed, keeping previous table")
				continue
			}
			evaluator.SetPolicy(policy)
			log.WithField("path", path).Info("policy table reloaded")
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.WithError(err).Warn("policy watcher error")
		}
	}
}
