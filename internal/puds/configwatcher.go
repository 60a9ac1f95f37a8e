package puds

import (
	"context"
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/rustyhorde/pud-go/internal/config"
)

// configDebounce absorbs editors that rewrite a file as several rapid
// filesystem events (truncate + write, or remove + create on rename-save).
const configDebounce = 300 * time.Millisecond

// ConfigWatcher triggers Router.AutoReload whenever the server's TOML
// configuration file changes on disk, supplementing the explicit
// manager-driven Reload command with zero-touch hot reload.
type ConfigWatcher struct {
	watcher *fsnotify.Watcher
	router  *Router
	path    string
}

// NewConfigWatcher starts watching path's parent directory (watching the
// directory, not the file, survives editors that replace the file via
// rename rather than in-place write).
func NewConfigWatcher(path string, router *Router) (*ConfigWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(path)
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, err
	}
	return &ConfigWatcher{watcher: w, router: router, path: path}, nil
}

// Run watches until ctx is cancelled. Intended to run in its own
// goroutine for the lifetime of the server.
func (cw *ConfigWatcher) Run(ctx context.Context) {
	defer cw.watcher.Close()

	var timer *time.Timer
	fire := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return

		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if event.Name != cw.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(configDebounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})

		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("puds: config watcher: %v", err)

		case <-fire:
			log.Printf("puds: %s changed, reloading", cw.path)
			cw.router.AutoReload(defaultReload)
		}
	}
}

func defaultReload(path string) (*config.ServerConfig, error) {
	return config.LoadServerConfig(path)
}
