package dispatch

import (
	"context"

	internal "github.com/jerbob92/wazero-dispatch/internal"

	"github.com/tetratelabs/wazero"
)

type Engine interface {
	internal.Engine
	NewFunctionExporterForModule(guest wazero.CompiledModule) FunctionExporter
}

type DelayFunction = internal.DelayFunction

func CreateEngine(config IEngineConfig) Engine {
	return &wazeroEngine{
		Engine: internal.CreateEngine(config),
	}
}

func GetEngineFromContext(ctx context.Context) (internal.Engine, error) {
	return internal.GetEngineFromContext(ctx)
}

func NewConfig() *EngineConfig {
	return internal.NewConfig()
}

// LoadConfig reads an engine configuration from a CUE file.
func LoadConfig(path string) (*EngineConfig, error) {
	return internal.LoadConfig(path)
}

func ParseConfig(filename string, content []byte) (*EngineConfig, error) {
	return internal.ParseConfig(filename, content)
}
