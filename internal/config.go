package dispatch

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	slogmulti "github.com/samber/slog-multi"
)

// DefaultCacheSize is the number of resolutions the cache keeps when the
// configuration does not say otherwise.
const DefaultCacheSize = 1024

type IEngineConfig interface {
	SetLogger(logger *slog.Logger) IEngineConfig
	AddLogHandler(handler slog.Handler) IEngineConfig
	SetLogLevel(level slog.Level) IEngineConfig
	SetCacheSize(size int) IEngineConfig
	DisableCache() IEngineConfig
	GetLogger() *slog.Logger
	GetCacheSize() int
}

type EngineConfig struct {
	logger    *slog.Logger
	handlers  []slog.Handler
	level     *slog.LevelVar
	json      bool
	cacheSize int
}

func NewConfig() *EngineConfig {
	level := new(slog.LevelVar)
	level.Set(slog.LevelWarn)
	return &EngineConfig{
		level:     level,
		cacheSize: DefaultCacheSize,
	}
}

// SetLogger replaces the engine logger. Handlers added with AddLogHandler are
// ignored once a logger is set.
func (c *EngineConfig) SetLogger(logger *slog.Logger) IEngineConfig {
	c.logger = logger
	return c
}

// AddLogHandler adds a handler next to the default stderr handler. Every
// record is sent to all of them.
func (c *EngineConfig) AddLogHandler(handler slog.Handler) IEngineConfig {
	c.handlers = append(c.handlers, handler)
	return c
}

// SetLogLevel sets the level of the default stderr handler.
func (c *EngineConfig) SetLogLevel(level slog.Level) IEngineConfig {
	c.level.Set(level)
	return c
}

// SetJSONLogs makes the default stderr handler write JSON instead of text.
func (c *EngineConfig) SetJSONLogs(enabled bool) *EngineConfig {
	c.json = enabled
	return c
}

// SetCacheSize sets the number of cached resolutions, 0 disables the cache.
func (c *EngineConfig) SetCacheSize(size int) IEngineConfig {
	if size < 0 {
		size = 0
	}
	c.cacheSize = size
	return c
}

func (c *EngineConfig) DisableCache() IEngineConfig {
	return c.SetCacheSize(0)
}

func (c *EngineConfig) GetCacheSize() int {
	return c.cacheSize
}

func (c *EngineConfig) GetLogger() *slog.Logger {
	if c.logger != nil {
		return c.logger
	}

	options := &slog.HandlerOptions{
		Level: c.level,
	}
	var handlers []slog.Handler
	if c.json {
		handlers = append(handlers, slog.NewJSONHandler(os.Stderr, options))
	} else {
		handlers = append(handlers, slog.NewTextHandler(os.Stderr, options))
	}
	handlers = append(handlers, c.handlers...)

	return slog.New(slogmulti.Fanout(handlers...)).With("component", "dispatch")
}

const configSchema = `
#Config: close({
	cache?: close({
		enabled?: bool
		size?:    int & >=0
	})
	log?: close({
		level?:  "debug" | "info" | "warn" | "error"
		format?: "text" | "json"
	})
})
`

type fileConfig struct {
	Cache *struct {
		Enabled *bool `json:"enabled"`
		Size    *int  `json:"size"`
	} `json:"cache"`
	Log *struct {
		Level  string `json:"level"`
		Format string `json:"format"`
	} `json:"log"`
}

// LoadConfig reads an engine configuration written in CUE, for example:
//
//	cache: size: 256
//	log: {
//		level:  "debug"
//		format: "json"
//	}
func LoadConfig(path string) (*EngineConfig, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read config: %w", err)
	}
	return ParseConfig(path, content)
}

// ParseConfig is LoadConfig for configuration already in memory. filename is
// only used in error messages.
func ParseConfig(filename string, content []byte) (*EngineConfig, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(configSchema, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("could not compile config schema: %w", err)
	}

	value := ctx.CompileBytes(content, cue.Filename(filename))
	if err := value.Err(); err != nil {
		return nil, fmt.Errorf("could not parse config: %w", err)
	}

	value = schema.LookupPath(cue.ParsePath("#Config")).Unify(value)
	if err := value.Validate(cue.Concrete(true)); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	var decoded fileConfig
	if err := value.Decode(&decoded); err != nil {
		return nil, fmt.Errorf("could not decode config: %w", err)
	}

	config := NewConfig()
	if decoded.Cache != nil {
		if decoded.Cache.Size != nil {
			config.SetCacheSize(*decoded.Cache.Size)
		}
		if decoded.Cache.Enabled != nil && !*decoded.Cache.Enabled {
			config.DisableCache()
		}
	}
	if decoded.Log != nil {
		if decoded.Log.Level != "" {
			var level slog.Level
			if err := level.UnmarshalText([]byte(strings.ToUpper(decoded.Log.Level))); err != nil {
				return nil, fmt.Errorf("invalid log level %q: %w", decoded.Log.Level, err)
			}
			config.SetLogLevel(level)
		}
		config.SetJSONLogs(decoded.Log.Format == "json")
	}

	return config, nil
}
