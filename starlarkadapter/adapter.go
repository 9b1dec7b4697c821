// Package starlarkadapter exposes registered classes to Starlark programs.
//
// Classes are callable (constructor "new") and carry their static methods,
// child classes and constants as attributes. Objects carry their instance
// methods; assigning to a field calls the "name=" setter. Iterator results
// are single-pass Starlark iterables.
package starlarkadapter

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	dispatch "github.com/jerbob92/wazero-dispatch"
	"github.com/reusee/starlarkutil"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

const contextKey = "dispatch.context"

// Adapter converts between Starlark and dispatch values for one engine. It
// holds the owned objects handed to scripts until Close.
type Adapter struct {
	engine        dispatch.Engine
	ctx           context.Context
	retained      map[*dispatch.Handle]bool
	subscriptions []*dispatch.SignalHandle
	streams       []*Iterable
}

func New(ctx context.Context, engine dispatch.Engine) *Adapter {
	return &Adapter{
		engine:   engine,
		ctx:      engine.Attach(ctx),
		retained: map[*dispatch.Handle]bool{},
	}
}

// NewThread returns a thread whose calls run with ctx.
func (a *Adapter) NewThread(ctx context.Context, name string) *starlark.Thread {
	thread := &starlark.Thread{
		Name: name,
		Print: func(thread *starlark.Thread, msg string) {
			a.engine.Logger().InfoContext(ctx, msg, "thread", thread.Name)
		},
	}
	thread.SetLocal(contextKey, a.engine.Attach(ctx))
	return thread
}

func (a *Adapter) context(thread *starlark.Thread) context.Context {
	if thread != nil {
		if ctx, ok := thread.Local(contextKey).(context.Context); ok {
			return ctx
		}
	}
	return a.ctx
}

// Globals returns the predeclared names of a script: every registered top
// level class and the helper builtins.
func (a *Adapter) Globals() starlark.StringDict {
	globals := starlark.StringDict{
		"subscribe":     starlark.NewBuiltin("subscribe", a.subscribe),
		"destroy_later": starlark.NewBuiltin("destroy_later", a.destroyLater),
		"live_handles": starlarkutil.MakeFunc("live_handles", func() int {
			return a.engine.LiveHandles()
		}),
		"flush_pending_destroys": starlark.NewBuiltin("flush_pending_destroys", a.flushPendingDestroys),
		"signatures":             starlark.NewBuiltin("signatures", a.signatures),
	}
	for _, class := range a.engine.Classes() {
		if class.Outer() == nil {
			globals[class.Name()] = &Class{adapter: a, class: class}
		}
	}
	return globals
}

// ExecFile runs a script with the adapter globals predeclared.
func (a *Adapter) ExecFile(ctx context.Context, filename string, src any) (starlark.StringDict, error) {
	thread := a.NewThread(ctx, filename)
	return starlark.ExecFileOptions(&syntax.FileOptions{
		Set:             true,
		While:           true,
		TopLevelControl: true,
	}, thread, filename, src, a.Globals())
}

// Close disconnects every subscription made by scripts, stops the streams
// they did not finish and drops the owned objects they received, destroying
// those nobody else holds.
func (a *Adapter) Close(ctx context.Context) error {
	for _, s := range a.subscriptions {
		s.Disconnect()
	}
	a.subscriptions = nil

	for _, it := range a.streams {
		it.stream.Stop(ctx)
	}
	a.streams = nil

	handles := make([]*dispatch.Handle, 0, len(a.retained))
	for h := range a.retained {
		handles = append(handles, h)
	}
	a.retained = map[*dispatch.Handle]bool{}

	var errs []error
	for _, h := range handles {
		if err := h.Drop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (a *Adapter) call(thread *starlark.Thread, call dispatch.Call, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	positional := make([]dispatch.Value, len(args))
	for i, arg := range args {
		v, err := a.ToValue(arg)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i+1, err)
		}
		positional[i] = v
	}

	var keyword map[string]dispatch.Value
	if len(kwargs) > 0 {
		keyword = make(map[string]dispatch.Value, len(kwargs))
		for _, kw := range kwargs {
			name, _ := starlark.AsString(kw[0])
			v, err := a.ToValue(kw[1])
			if err != nil {
				return nil, fmt.Errorf("argument %s: %w", name, err)
			}
			keyword[name] = v
		}
	}

	call.Positional = positional
	call.Keyword = keyword

	ctx := a.context(thread)
	result, err := a.engine.ResolveAndCall(ctx, call)
	if err != nil {
		return nil, err
	}
	return a.fromValue(ctx, result)
}

func (a *Adapter) subscribe(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var target starlark.Value
	var signal string
	var handler starlark.Callable
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "target", &target, "signal", &signal, "handler", &handler); err != nil {
		return nil, err
	}

	var class *dispatch.ClassDescriptor
	var receiver *dispatch.ObjectRef
	switch t := target.(type) {
	case *Object:
		ref := t.ref
		receiver = &ref
	case *Class:
		class = t.class
	default:
		return nil, fmt.Errorf("%s: cannot subscribe to signals of %s", b.Name(), target.Type())
	}

	ctx := a.context(thread)
	handle, err := a.engine.Subscribe(ctx, class, receiver, signal, func(ctx context.Context, values []dispatch.Value) error {
		args := make(starlark.Tuple, len(values))
		for i, v := range values {
			sv, err := a.fromValue(ctx, v)
			if err != nil {
				return err
			}
			args[i] = sv
		}
		_, err := starlark.Call(thread, handler, args, nil)
		return err
	})
	if err != nil {
		return nil, err
	}

	a.subscriptions = append(a.subscriptions, handle)
	return &Subscription{handle: handle}, nil
}

func (a *Adapter) destroyLater(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var obj *Object
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &obj); err != nil {
		return nil, err
	}
	if err := a.engine.DestroyLater(a.context(thread), obj.ref); err != nil {
		return nil, err
	}
	return starlark.None, nil
}

func (a *Adapter) flushPendingDestroys(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 0); err != nil {
		return nil, err
	}
	if err := a.engine.FlushPendingDestroys(a.context(thread)); err != nil {
		return nil, err
	}
	return starlark.None, nil
}

// signatures lists the overloads of a method, one per line.
func (a *Adapter) signatures(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var className, method string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "class", &className, "method", &method); err != nil {
		return nil, err
	}
	class, ok := a.engine.Class(className)
	if !ok {
		return nil, fmt.Errorf("%s: unknown class %s", b.Name(), className)
	}

	var lines []string
	for _, static := range []bool{false, true} {
		set, ok := class.Registry().Find(static, method)
		if !ok || set.Static != static {
			continue
		}
		for _, m := range set.Methods {
			lines = append(lines, m.Signature())
		}
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("%s: class %s has no method %s", b.Name(), className, method)
	}
	sort.Strings(lines)
	return starlark.String(strings.Join(lines, "\n")), nil
}
