// Package credwatch watches an on-disk JSON credentials file and
// re-invokes a callback on change, so a headless embedder can rotate
// passwords without restarting the process (SPEC_FULL.md §11.4,
// supplementing spec.md §6's interactive Listener.OnCredentialsRequested
// path rather than replacing it).
package credwatch

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/exp/slog"
)

// Watcher watches one credentials file and delivers its parsed contents
// to onChange whenever the file is written.
type Watcher struct {
	path     string
	onChange func(map[string]string)
	logger   *slog.Logger

	fsw  *fsnotify.Watcher
	done chan struct{}
}

// New starts watching path, which must already exist (New returns an
// error otherwise). Its initial contents, if they parse, are delivered to
// onChange synchronously before New returns.
func New(path string, onChange func(map[string]string), logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("credwatch: new fsnotify watcher: %w", err)
	}
	if err := fsw.Add(path); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("credwatch: watch %s: %w", path, err)
	}

	w := &Watcher{
		path:     path,
		onChange: onChange,
		logger:   logger.With("component", "credwatch", "path", path),
		fsw:      fsw,
		done:     make(chan struct{}),
	}

	if creds, err := readCredentials(path); err == nil {
		onChange(creds)
	} else {
		w.logger.Warn("initial credentials read failed", "error", err)
	}

	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			creds, err := readCredentials(w.path)
			if err != nil {
				w.logger.Warn("credentials reload failed", "error", err)
				continue
			}
			w.logger.Info("credentials file changed, reloading")
			w.onChange(creds)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("fsnotify error", "error", err)
		}
	}
}

func readCredentials(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var creds map[string]string
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("credwatch: parse %s: %w", path, err)
	}
	return creds, nil
}

// Close stops watching.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fsw.Close()
}
