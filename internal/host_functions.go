package dispatch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tetratelabs/wazero/api"
)

// Host functions imported by wasm guests. They find the engine in the call
// context, so the guest must be called through an attached context.

func mustEngine(ctx context.Context) *engine {
	e, err := engineFromContext(ctx)
	if err != nil {
		panic(fmt.Errorf("could not get dispatch engine from context: %w", err))
	}
	return e
}

// HandleIncref keeps a handle id the guest received as an argument alive
// beyond the call.
var HandleIncref = api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
	engine := mustEngine(ctx)
	if err := engine.wireHandles.incref(api.DecodeU32(stack[0])); err != nil {
		panic(fmt.Errorf("could not incref handle: %w", err))
	}
})

// HandleDecref releases a handle id kept with HandleIncref.
var HandleDecref = api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
	engine := mustEngine(ctx)
	if err := engine.wireHandles.decref(api.DecodeU32(stack[0])); err != nil {
		panic(fmt.Errorf("could not decref handle: %w", err))
	}
})

// Log writes a length prefixed message from guest memory to the engine
// logger at the given slog level.
var Log = api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
	engine := mustEngine(ctx)
	level := slog.Level(api.DecodeI32(stack[0]))
	ptr := api.DecodeU32(stack[1])

	mem := mod.Memory()
	if mem == nil {
		panic(fmt.Errorf("module %s exports no memory", mod.Name()))
	}
	length, ok := mem.ReadUint32Le(ptr)
	if !ok {
		panic(fmt.Errorf("could not read log message length at %d", ptr))
	}
	msg, ok := mem.Read(ptr+4, length)
	if !ok {
		panic(fmt.Errorf("could not read log message at %d", ptr+4))
	}

	engine.logger.Log(ctx, level, string(msg), "module", mod.Name())
})

// FlushPendingDestroys runs the deferred destruction queue. It returns 0 on
// success and 1 when an object failed to destroy.
var FlushPendingDestroys = api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
	engine := mustEngine(ctx)
	if err := engine.FlushPendingDestroys(ctx); err != nil {
		stack[0] = api.EncodeI32(1)
		return
	}
	stack[0] = api.EncodeI32(0)
})

// LiveHandles returns the number of live object handles.
var LiveHandles = api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
	engine := mustEngine(ctx)
	stack[0] = api.EncodeI32(int32(engine.LiveHandles()))
})
