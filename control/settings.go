// control/settings.go
// Author: momentics <momentics@gmail.com>
//
// Typed runtime settings for loops and pools, decoded by viper from files,
// environment (HIOLOAD_ prefix) and flags bound by the embedder.

package control

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Settings configures a loop and its thread pool.
type Settings struct {
	Engine            string            `mapstructure:"engine"`
	CPU               int               `mapstructure:"cpu"` // -1 leaves the loop thread unpinned
	StrictThreadCheck bool              `mapstructure:"strict_thread_check"`
	Log               LogSettings       `mapstructure:"log"`
	Pool              PoolSettings      `mapstructure:"pool"`
	WaterLine         WaterLineSettings `mapstructure:"waterline"`
}

type LogSettings struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // text or json
}

type PoolSettings struct {
	MinWorkers int   `mapstructure:"min_workers"`
	MaxWorkers int   `mapstructure:"max_workers"` // 0 is unbounded
	CPUs       []int `mapstructure:"cpus"`
}

// WaterLineSettings mirrors event.WaterLine; zero fields keep the loop default.
type WaterLineSettings struct {
	RunInLoopQueueSize int           `mapstructure:"run_in_loop_queue_size"`
	RunNextQueueSize   int           `mapstructure:"run_next_queue_size"`
	WakeDelay          time.Duration `mapstructure:"wake_delay"`
	LoopCost           time.Duration `mapstructure:"loop_cost"`
	EventCbCost        time.Duration `mapstructure:"event_cb_cost"`
	RunCbCost          time.Duration `mapstructure:"run_cb_cost"`
	RunInLoopDelay     time.Duration `mapstructure:"run_in_loop_delay"`
	RunNextDelay       time.Duration `mapstructure:"run_next_delay"`
	TimerDelay         time.Duration `mapstructure:"timer_delay"`
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("engine", "epoll")
	v.SetDefault("cpu", -1)
	v.SetDefault("strict_thread_check", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("pool.min_workers", 1)
	v.SetDefault("pool.max_workers", 0)
}

// LoadSettings decodes Settings from v after applying defaults and the
// HIOLOAD_ environment overlay.
func LoadSettings(v *viper.Viper) (Settings, error) {
	SetDefaults(v)
	v.SetEnvPrefix("hioload")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("control: decode settings: %w", err)
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Validate reports inconsistent values.
func (s Settings) Validate() error {
	if s.Pool.MinWorkers < 0 || s.Pool.MaxWorkers < 0 {
		return fmt.Errorf("control: negative worker count")
	}
	if s.Pool.MaxWorkers != 0 && s.Pool.MinWorkers > s.Pool.MaxWorkers {
		return fmt.Errorf("control: pool.min_workers %d > pool.max_workers %d",
			s.Pool.MinWorkers, s.Pool.MaxWorkers)
	}
	switch s.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("control: unknown log format %q", s.Log.Format)
	}
	return nil
}
