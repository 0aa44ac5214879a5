// Package config decodes a typed configuration from an optional file and the
// environment. Watching the file for changes is opt-in (WithWatch).
package config

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/mitchellh/mapstructure"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// Config holds the current value of T.
type Config[T any] struct {
	v     *viper.Viper
	path  string
	log   zerolog.Logger
	hooks []mapstructure.DecodeHookFunc
	watch bool

	mu       sync.RWMutex
	value    *T
	watchers []func(old, new T)

	// reloadMu serializes reloads so each change notifies watchers once.
	reloadMu sync.Mutex
}

type Option[T any] func(*Config[T])

// WithDefaults sets values used when neither the file nor the environment has the key.
func WithDefaults[T any](defaults map[string]any) Option[T] {
	return func(c *Config[T]) {
		for k, v := range defaults {
			c.v.SetDefault(k, v)
		}
	}
}

// WithEnv reads PREFIX_SECTION_KEY for section.key. Only keys viper already
// knows about (defaults, file, WithEnvKeys) are looked up.
func WithEnv[T any](prefix string) Option[T] {
	return func(c *Config[T]) {
		c.v.SetEnvPrefix(prefix)
		c.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		c.v.AutomaticEnv()
	}
}

// WithEnvKeys makes keys settable from the environment without giving them defaults.
func WithEnvKeys[T any](keys ...string) Option[T] {
	return func(c *Config[T]) {
		for _, k := range keys {
			_ = c.v.BindEnv(k)
		}
	}
}

// WithDecodeHook runs hook before the built-in string conversions.
func WithDecodeHook[T any](hook mapstructure.DecodeHookFunc) Option[T] {
	return func(c *Config[T]) { c.hooks = append(c.hooks, hook) }
}

// WithWatch reloads the file when it changes and notifies OnChange callbacks.
// It has no effect without a file.
func WithWatch[T any]() Option[T] {
	return func(c *Config[T]) { c.watch = true }
}

func WithLogger[T any](l zerolog.Logger) Option[T] {
	return func(c *Config[T]) { c.log = l }
}

// Load reads path (when non-empty) and the environment into T.
func Load[T any](path string, opts ...Option[T]) (*Config[T], error) {
	c := &Config[T]{v: viper.New(), path: path, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(c)
	}

	if path != "" {
		c.v.SetConfigFile(path)
		if err := c.v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	val, err := c.decode()
	if err != nil {
		return nil, err
	}
	c.value = &val

	if c.watch && path != "" {
		c.startWatching()
	}
	return c, nil
}

func (c *Config[T]) decode() (T, error) {
	var val T
	hooks := append(append([]mapstructure.DecodeHookFunc{}, c.hooks...),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
	if err := c.v.Unmarshal(&val, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(hooks...))); err != nil {
		return val, fmt.Errorf("decode config: %w", err)
	}
	return val, nil
}

// Get returns a deep copy of the current value. Safe for concurrent use.
func (c *Config[T]) Get() T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return deepCopy(*c.value)
}

// OnChange registers a callback run after a reload that changed the value.
func (c *Config[T]) OnChange(callback func(old, new T)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.watchers = append(c.watchers, callback)
}

// Changed reports whether two values differ.
func Changed[T any](old, new T) bool {
	return !reflect.DeepEqual(old, new)
}

// deepCopy round-trips through JSON; T must be JSON-representable.
func deepCopy[T any](src T) T {
	var dst T
	data, _ := json.Marshal(src)
	_ = json.Unmarshal(data, &dst)
	return dst
}

// SecondsAsDuration decodes bare numbers ("5", 5, 0.5) into time.Duration as
// seconds. Strings with a unit ("250ms") are left to the default conversion.
func SecondsAsDuration() mapstructure.DecodeHookFuncType {
	durationType := reflect.TypeOf(time.Duration(0))
	return func(from, to reflect.Type, data any) (any, error) {
		if to != durationType || from == durationType {
			return data, nil
		}
		var secs float64
		switch from.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			secs = float64(reflect.ValueOf(data).Int())
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			secs = float64(reflect.ValueOf(data).Uint())
		case reflect.Float32, reflect.Float64:
			secs = reflect.ValueOf(data).Float()
		case reflect.String:
			f, err := strconv.ParseFloat(strings.TrimSpace(reflect.ValueOf(data).String()), 64)
			if err != nil {
				return data, nil
			}
			secs = f
		default:
			return data, nil
		}
		return time.Duration(secs * float64(time.Second)), nil
	}
}

func (c *Config[T]) startWatching() {
	var (
		timer   *time.Timer
		timerMu sync.Mutex
	)
	// Editors write files in bursts; reload once things settle.
	c.v.OnConfigChange(func(fsnotify.Event) {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(100*time.Millisecond, c.reload)
	})
	c.v.WatchConfig()
}

func (c *Config[T]) reload() {
	c.reloadMu.Lock()
	defer c.reloadMu.Unlock()

	if err := c.v.ReadInConfig(); err != nil {
		c.log.Warn().Err(err).Str("path", c.path).Msg("config reload failed, keeping previous value")
		return
	}
	val, err := c.decode()
	if err != nil {
		c.log.Warn().Err(err).Str("path", c.path).Msg("config reload failed, keeping previous value")
		return
	}

	c.mu.Lock()
	old := *c.value
	c.value = &val
	watchers := append([]func(old, new T){}, c.watchers...)
	c.mu.Unlock()

	if !Changed(old, val) {
		return
	}
	c.log.Info().Str("path", c.path).Msg("config reloaded")
	for _, cb := range watchers {
		c.notify(cb, deepCopy(old), deepCopy(val))
	}
}

func (c *Config[T]) notify(cb func(old, new T), old, new T) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error().Interface("panic", r).Msg("config watcher panicked")
		}
	}()
	cb(old, new)
}
