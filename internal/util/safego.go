package util

import (
	"runtime/debug"

	"github.com/0xdeschool/deschool-lens/internal/logging"
)

// Go runs fn in a goroutine, logging and swallowing any panic so a
// background watcher cannot take the process down.
func Go(name string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logging.Error("goroutine panic recovered",
					"goroutine", name,
					"panic", r,
					"stack", string(debug.Stack()),
				)
			}
		}()
		fn()
	}()
}
