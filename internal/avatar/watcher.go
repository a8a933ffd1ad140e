package avatar

import (
	"context"
	"log/slog"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/fsnotify/fsnotify"
)

// The backend stores uploads as uploads/avatars/user_<id>.<ext>.
var fileRe = regexp.MustCompile(`^user_(\d+)\.[A-Za-z0-9]+$`)

// ChangeCallback is called after a watcher-driven invalidation.
type ChangeCallback func(userID, ts int64)

// OwnerOf returns the user id encoded in an avatar file name.
func OwnerOf(name string) (int64, bool) {
	m := fileRe.FindStringSubmatch(filepath.Base(name))
	if m == nil {
		return 0, false
	}
	id, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}

// Watch invalidates avatars as their files change in dir until ctx is
// cancelled. cb, if non-nil, is called after each invalidation.
func Watch(ctx context.Context, dir string, reg *Registry, logger *slog.Logger, cb ChangeCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(dir); err != nil {
		return err
	}
	logger.Info("avatar watcher: started", slog.String("dir", dir))

	for {
		select {
		case <-ctx.Done():
			logger.Info("avatar watcher: stopped")
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			id, ok := OwnerOf(ev.Name)
			if !ok {
				continue
			}
			ts := reg.Touch(id)
			logger.Debug("avatar watcher: invalidated",
				slog.Int64("user_id", id), slog.String("op", ev.Op.String()))
			if cb != nil {
				cb(id, ts)
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("avatar watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}
