package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"guild-roster/api/internal/app"
	"guild-roster/api/internal/scan"
)

// settle is how long a new file must stay unchanged before it is scanned.
const settle = 500 * time.Millisecond

var imageExt = map[string]bool{".png": true, ".jpg": true, ".jpeg": true, ".webp": true}

func isImage(path string) bool {
	return imageExt[strings.ToLower(filepath.Ext(path))]
}

func (c *cli) watchCmd() *cobra.Command {
	var o scanOptions
	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Scan every screenshot that lands in a directory",
		Long: `Watch scans each new image file in dir as soon as it is fully written and
prints one report per file. Stop with Ctrl+C.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			deps, err := app.Build(ctx, c.cfg, c.log)
			if err != nil {
				return err
			}
			defer deps.Close()
			sess, err := c.prepareSession(ctx, deps, o)
			if err != nil {
				return err
			}

			w, err := fsnotify.NewWatcher()
			if err != nil {
				return err
			}
			defer w.Close()
			if err := w.Add(args[0]); err != nil {
				return fmt.Errorf("watch %s: %w", args[0], err)
			}
			c.log.Info("watching", "dir", args[0], "column", sess.Column(), "sheet", sess.Sheet())

			var mu sync.Mutex // one scan at a time keeps report order readable
			return watchLoop(ctx, w, settle, func(path string) {
				mu.Lock()
				defer mu.Unlock()
				c.scanOne(ctx, cmd, deps, sess, o, path)
			})
		},
	}
	cmd.Flags().StringVar(&o.column, "column", "", "target column (default: first column)")
	cmd.Flags().StringVar(&o.guild, "guild", "", "guild name to ignore")
	cmd.Flags().StringVar(&o.engine, "engine", "", "ocr engine")
	cmd.Flags().BoolVar(&o.applyNew, "apply-new", false, "add every unmatched name as a new member")
	cmd.Flags().BoolVar(&o.save, "save", false, "save the sheet after every file")
	return cmd
}

func (c *cli) scanOne(ctx context.Context, cmd *cobra.Command, deps *app.Deps, sess *scan.Session, o scanOptions, path string) {
	res, err := c.scanFiles(ctx, deps, sess, o, []string{path})
	if err != nil {
		c.log.Warn("scan failed", "file", path, "err", err)
		return
	}
	if err := c.print(cmd, res); err != nil {
		c.log.Warn("print failed", "err", err)
	}
}

// watchLoop calls fn for image files created or written under w once they
// have been quiet for delay. It returns when ctx is done.
func watchLoop(ctx context.Context, w *fsnotify.Watcher, delay time.Duration, fn func(path string)) error {
	timers := make(map[string]*time.Timer)
	defer func() {
		for _, t := range timers {
			t.Stop()
		}
	}()
	ready := make(chan string, 16)
	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watcher: %w", err)
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !(ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write)) || !isImage(ev.Name) {
				continue
			}
			name := ev.Name
			if t, ok := timers[name]; ok {
				t.Reset(delay)
				continue
			}
			timers[name] = time.AfterFunc(delay, func() { ready <- name })
		case name := <-ready:
			delete(timers, name)
			fn(name)
		}
	}
}
