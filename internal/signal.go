package dispatch

import (
	"context"
	"fmt"
	"sync"
)

// SignalHandler receives the arguments of an emitted signal, converted like
// ordinary results.
type SignalHandler func(ctx context.Context, args []Value) error

// SignalHandle is an active subscription.
type SignalHandle struct {
	name       string
	mu         sync.Mutex
	connected  bool
	disconnect func()
	once       sync.Once
}

func (s *SignalHandle) Name() string {
	return s.name
}

func (s *SignalHandle) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Disconnect stops the subscription. Calling it again does nothing.
func (s *SignalHandle) Disconnect() {
	s.once.Do(func() {
		s.mu.Lock()
		s.connected = false
		s.mu.Unlock()
		if s.disconnect != nil {
			s.disconnect()
		}
	})
}

// Subscribe connects handler to the signal named signal. receiver is nil for
// class-level signals.
func (e *engine) Subscribe(ctx context.Context, class *ClassDescriptor, receiver *ObjectRef, signal string, handler SignalHandler) (*SignalHandle, error) {
	if handler == nil {
		return nil, fmt.Errorf("could not subscribe to %s, no handler given", signal)
	}
	call := Call{Class: class, Receiver: receiver, Method: signal}
	class, err := call.class()
	if err != nil {
		return nil, err
	}

	name := qualifiedMethodName(class, signal)
	set, ok := class.Registry().Find(call.static(), signal)
	if !ok {
		return nil, newDispatchError(UnknownMethod, "undefined signal '%s' for class %s", signal, class.QualifiedName())
	}

	var m *MethodDescriptor
	for _, candidate := range set.Methods {
		if candidate.signal {
			m = candidate
			break
		}
	}
	if m == nil {
		return nil, newDispatchError(TypeMismatch, "%s is not a signal", name)
	}

	var self any
	if !m.static {
		if receiver == nil {
			return nil, newDispatchError(TypeMismatch, "signal %s needs an instance", name)
		}
		if self, err = receiver.Object(); err != nil {
			return nil, err
		}
	}

	handle := &SignalHandle{name: name, connected: true}

	emit := func(ctx context.Context, args []any) error {
		if !handle.Connected() {
			return nil
		}
		if len(args) != len(m.params) {
			return fmt.Errorf("signal %s emitted with %d argument(s), expected %d", name, len(args), len(m.params))
		}
		values := make([]Value, len(args))
		for i := range args {
			t := m.params[i].Type
			if t.Kind == TypeObject && t.Class == nil {
				t.Class = class
			}
			v, err := e.fromNative(ctx, t, args[i])
			if err != nil {
				return fmt.Errorf("could not convert argument %d (%s) of signal %s: %w", i+1, m.params[i].Name, name, err)
			}
			values[i] = v
		}
		return handler(ctx, values)
	}

	err = e.callHook(name+".connect", func() error {
		disconnect, err := m.connect(ctx, self, emit)
		handle.disconnect = disconnect
		return err
	})
	if err != nil {
		return nil, err
	}

	return handle, nil
}
