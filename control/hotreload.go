// control/hotreload.go
// Author: momentics <momentics@gmail.com>
//
// File hot reload for ConfigStore through viper's fsnotify watcher.

package control

import (
	"fmt"
	"log/slog"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// WatchFile loads path into the store and keeps it in sync: every write or
// re-create of the file is re-read and merged, which in turn fires the
// OnReload listeners. The returned viper instance owns the watch.
func (cs *ConfigStore) WatchFile(path string, logger *slog.Logger) (*viper.Viper, error) {
	if logger == nil {
		logger = slog.Default()
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("control: read config %s: %w", path, err)
	}
	cs.SetConfig(flatten(v))

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		// viper has already re-read the file when the hook runs
		cs.SetConfig(flatten(v))
		logger.Info("config reloaded", "file", e.Name, "op", e.Op.String())
	})
	v.WatchConfig()
	return v, nil
}
