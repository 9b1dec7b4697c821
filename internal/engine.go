package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

type Engine interface {
	Attach(ctx context.Context) context.Context
	RegisterClass(class *ClassDescriptor) error
	Class(name string) (*ClassDescriptor, bool)
	Classes() []*ClassDescriptor
	ResolveAndCall(ctx context.Context, call Call) (Value, error)
	Resolve(call Call) (*MethodDescriptor, error)
	Subscribe(ctx context.Context, class *ClassDescriptor, receiver *ObjectRef, signal string, handler SignalHandler) (*SignalHandle, error)
	Wrap(class *ClassDescriptor, obj any, owned bool) (ObjectRef, error)
	DestroyLater(ctx context.Context, ref ObjectRef) error
	FlushPendingDestroys(ctx context.Context) error
	SetDelayFunction(fn DelayFunction) error
	LiveHandles() int
	CacheStats() CacheStats
	Logger() *slog.Logger

	self() *engine
}

// DelayFunction schedules fn to run at a later point, for example at the
// end of the current host event loop iteration.
type DelayFunction func(fn func(ctx context.Context) error) error

type engine struct {
	config        IEngineConfig
	logger        *slog.Logger
	classes       map[string]*ClassDescriptor
	classOrder    []*ClassDescriptor
	instances     map[any]*Handle
	handles       map[*Handle]struct{}
	cache         *resolutionCache
	deletionQueue []*Handle
	delayFunction DelayFunction
	wireHandles   *handleTable
}

func (e *engine) Attach(ctx context.Context) context.Context {
	return context.WithValue(ctx, EngineKey{}, e)
}

func (e *engine) Logger() *slog.Logger {
	return e.logger
}

func (e *engine) self() *engine {
	return e
}

// RegisterClass makes class and its named child classes available by their
// qualified names.
func (e *engine) RegisterClass(class *ClassDescriptor) error {
	if class == nil {
		return errors.New("could not register class, got nil")
	}
	if !class.built {
		return fmt.Errorf("could not register class %s, it has not been built", class.QualifiedName())
	}
	if class.name == "" {
		return errors.New("could not register a mix-in as a class, add it to a class instead")
	}

	var register func(c *ClassDescriptor) error
	register = func(c *ClassDescriptor) error {
		name := c.QualifiedName()
		if existing, ok := e.classes[name]; ok {
			if existing == c {
				return nil
			}
			return fmt.Errorf("could not register class %s, the name is already taken", name)
		}
		e.classes[name] = c
		e.classOrder = append(e.classOrder, c)

		reg := c.Registry()
		e.logger.Debug("registered class", "class", name, "names", len(reg.Names(false))+len(reg.Names(true)))

		for _, child := range c.Children() {
			if err := register(child); err != nil {
				return err
			}
		}
		return nil
	}

	return register(class)
}

func (e *engine) Class(name string) (*ClassDescriptor, bool) {
	c, ok := e.classes[name]
	return c, ok
}

// Classes lists the registered classes in registration order.
func (e *engine) Classes() []*ClassDescriptor {
	return append([]*ClassDescriptor(nil), e.classOrder...)
}

// Wrap hands an existing native object to the engine. Objects the engine
// already knows return their existing handle.
func (e *engine) Wrap(class *ClassDescriptor, obj any, owned bool) (ObjectRef, error) {
	if class == nil {
		return ObjectRef{}, errors.New("could not wrap object, no class given")
	}
	if obj == nil {
		return ObjectRef{}, fmt.Errorf("could not wrap nil as %s", class.QualifiedName())
	}
	return ObjectRef{handle: e.wrap(class, obj, owned)}, nil
}

func (e *engine) LiveHandles() int {
	return len(e.handles)
}

func (e *engine) CacheStats() CacheStats {
	return e.cache.snapshot()
}

// DestroyLater queues ref for destruction. The queue is flushed by
// FlushPendingDestroys, which the delay function is asked to run when the
// queue goes from empty to non-empty.
func (e *engine) DestroyLater(ctx context.Context, ref ObjectRef) error {
	h := ref.handle
	if h == nil {
		return newDispatchError(TypeMismatch, "invalid object reference")
	}
	if _, err := h.Object(); err != nil {
		return err
	}
	if h.deleteScheduled {
		return newDispatchError(Destroyed, "object of class %s is already scheduled for destruction", h.class.QualifiedName())
	}

	h.deleteScheduled = true
	e.deletionQueue = append(e.deletionQueue, h)

	if len(e.deletionQueue) == 1 && e.delayFunction != nil {
		return e.delayFunction(e.FlushPendingDestroys)
	}
	return nil
}

// FlushPendingDestroys destroys every queued object. Failures are logged and
// do not stop the flush.
func (e *engine) FlushPendingDestroys(ctx context.Context) error {
	var errs []error
	for len(e.deletionQueue) > 0 {
		h := e.deletionQueue[len(e.deletionQueue)-1]
		e.deletionQueue = e.deletionQueue[:len(e.deletionQueue)-1]

		h.deleteScheduled = false
		if h.IsDestroyed() {
			continue
		}
		if err := h.destroy(ctx); err != nil {
			e.logger.WarnContext(ctx, "deferred destroy failed", "class", h.class.QualifiedName(), "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (e *engine) SetDelayFunction(fn DelayFunction) error {
	e.delayFunction = fn

	if len(e.deletionQueue) > 0 && fn != nil {
		if err := fn(e.FlushPendingDestroys); err != nil {
			return err
		}
	}

	return nil
}

func GetEngineFromContext(ctx context.Context) (Engine, error) {
	raw := ctx.Value(EngineKey{})
	if raw == nil {
		return nil, fmt.Errorf("dispatch engine not found in context")
	}

	value, ok := raw.(Engine)
	if !ok {
		return nil, fmt.Errorf("context value %v not of type %T", raw, new(Engine))
	}

	return value, nil
}

func engineFromContext(ctx context.Context) (*engine, error) {
	e, err := GetEngineFromContext(ctx)
	if err != nil {
		return nil, err
	}
	return e.self(), nil
}

func MustGetEngineFromContext(ctx context.Context) Engine {
	e, err := GetEngineFromContext(ctx)
	if err != nil {
		panic(fmt.Errorf("could not get dispatch engine from context: %w, make sure to create an engine with dispatch.CreateEngine() and to attach it to the context with engine.Attach(ctx)", err))
	}
	return e
}

// EngineKey Use this key to add the engine to your context:
// ctx = context.WithValue(ctx, dispatch.EngineKey{}, engine)
type EngineKey struct{}

// CreateEngine returns a new engine. A nil config uses NewConfig().
func CreateEngine(config IEngineConfig) Engine {
	return newEngine(config)
}

func newEngine(config IEngineConfig) *engine {
	if config == nil {
		config = NewConfig()
	}
	logger := config.GetLogger()
	return &engine{
		config:      config,
		logger:      logger,
		classes:     map[string]*ClassDescriptor{},
		instances:   map[any]*Handle{},
		handles:     map[*Handle]struct{}{},
		cache:       newResolutionCache(config.GetCacheSize(), logger),
		wireHandles: newHandleTable(),
	}
}
