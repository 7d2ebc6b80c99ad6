package world

import (
	"log"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// contentFiles are the table files the watcher reacts to.
var contentFiles = map[string]bool{
	"rooms.yaml":    true,
	"items.yaml":    true,
	"channels.yaml": true,
}

// Watch starts an fsnotify watcher on the content directory. When a table
// file changes, the content is reloaded and, if it validates, swapped into
// the world; a reload that fails validation is logged and discarded so the
// running tables stay intact. Returns a stop function.
func (w *World) Watch(dir string) (stop func(), err error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-done:
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if !contentFiles[filepath.Base(event.Name)] {
					continue
				}
				tables, err := LoadContent(dir)
				if err != nil {
					log.Printf("WORLD: content reload rejected: %v", err)
					continue
				}
				w.SetTables(tables)
				if err := w.Sync(); err != nil {
					log.Printf("WORLD: sync after reload: %v", err)
					continue
				}
				log.Printf("WORLD: content reloaded from %s (%d rooms, %d items, %d channels)",
					dir, len(tables.Rooms), len(tables.Items), len(tables.Channels))
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("WORLD: content watcher error: %v", err)
			}
		}
	}()
	return func() { close(done) }, nil
}
