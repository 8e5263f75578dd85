package rules

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// boostFile is the YAML shape of the boost rules file.
type boostFile struct {
	Boosts []BoostConfig `yaml:"boosts"`
}

// LoadBoosts reads a YAML boost file and installs its rules into the
// engine.
func LoadBoosts(engine *BoostEngine, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read boost rules %s: %w", path, err)
	}
	var file boostFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse boost rules %s: %w", path, err)
	}
	return engine.Reload(file.Boosts)
}

// WatchBoosts hot-reloads the boost file on writes. A reload failure keeps
// the previous rule set active. Call the returned stop function to clean
// up the watcher.
func WatchBoosts(engine *BoostEngine, path string) (stop func(), err error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("boost watcher: %w", err)
	}
	if err := w.Add(path); err != nil {
		w.Close()
		return nil, fmt.Errorf("boost watcher add %s: %w", path, err)
	}

	done := make(chan struct{})
	go func() {
		defer w.Close()
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
					if err := LoadBoosts(engine, path); err != nil {
						slog.Error("boost reload failed, keeping previous rules",
							"path", path,
							"error", err,
						)
						continue
					}
					slog.Info("boost rules reloaded",
						"path", path,
						"count", engine.Count(),
					)
				}
			case <-w.Errors:
				// Watcher errors are not actionable here.
			case <-done:
				return
			}
		}
	}()

	return func() { close(done) }, nil
}
