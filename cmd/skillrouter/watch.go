package main

import (
	"context"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jingkaihe/skillrouter/pkg/catalog"
	"github.com/jingkaihe/skillrouter/pkg/logger"
	"github.com/jingkaihe/skillrouter/pkg/presenter"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the corpus and rebuild the catalog on changes",
	Long: `Monitor the skill corpus directories and rebuild the catalog snapshot
whenever content changes. Rebuilds are debounced and the new snapshot is
published atomically, so in-flight queries keep a consistent view. Revision
counters advance for changed skills, invalidating stale session state.

The snapshot belongs to this process. A running serve maintains its own
catalog; refresh it with POST /api/reload.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		store, err := newCatalogStore(ctx)
		if err != nil {
			return err
		}
		debounce, _ := cmd.Flags().GetInt("debounce")
		return runWatch(ctx, store, viper.GetStringSlice("catalog.dirs"), time.Duration(debounce)*time.Millisecond)
	},
}

func init() {
	watchCmd.Flags().Int("debounce", 500, "Milliseconds to wait after the last event before rebuilding")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(ctx context.Context, store *catalog.Store, dirs []string, debounce time.Duration) error {
	if len(dirs) == 0 {
		dirs = []string{"./skills"}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "failed to create filesystem watcher")
	}
	defer watcher.Close()

	watched := 0
	for _, dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			logger.G(ctx).WithField("dir", dir).WithError(err).Warn("cannot watch directory")
			continue
		}
		watched++
	}
	if watched == 0 {
		return errors.New("none of the catalog directories could be watched")
	}

	presenter.Info("Watching skill corpus for changes. Ctrl+C to stop.")

	var timer *time.Timer
	var timerCh <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			logger.G(ctx).WithField("path", event.Name).Debug("corpus change detected")
			if timer == nil {
				timer = time.NewTimer(debounce)
				timerCh = timer.C
			} else {
				timer.Reset(debounce)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.G(ctx).WithError(err).Warn("watcher error")
		case <-timerCh:
			timer = nil
			timerCh = nil
			if err := rebuildCatalog(ctx, store); err != nil {
				presenter.Error(err, "catalog rebuild failed")
				continue
			}
			snap := store.Snapshot()
			presenter.Success("catalog rebuilt")
			for _, perr := range snap.ParseErrors() {
				presenter.Warning(perr.Error())
			}
		}
	}
}

// rebuildCatalog reloads with retries: a save that replaces bundle files
// mid-scan can make a directory read or a SKILL.md read fail transiently.
func rebuildCatalog(ctx context.Context, store *catalog.Store) error {
	return retry.Do(
		func() error {
			_, err := store.Load(ctx)
			return err
		},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(200*time.Millisecond),
	)
}
