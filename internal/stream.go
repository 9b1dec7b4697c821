package dispatch

import (
	"context"
	"fmt"
	"iter"
)

// Iterator is the native side of an iterator-typed result. Close is called
// exactly once, whether iteration ran to the end or was stopped early.
type Iterator interface {
	Next(ctx context.Context) (any, bool, error)
	Close() error
}

// Stream is a lazy, finite, single-pass sequence produced by a method whose
// return type is an iterator. Every element costs one native call; once
// exhausted or stopped, a Stream stays empty.
type Stream struct {
	engine  *engine
	elem    TypeTag
	next    func(ctx context.Context) (any, bool, error)
	cleanup func() error
	done    bool
	closed  bool
}

func (e *engine) newStream(ctx context.Context, elem TypeTag, o any) (*Stream, error) {
	s := &Stream{engine: e, elem: elem}

	switch src := o.(type) {
	case func(yield func(any) bool):
		o = iter.Seq[any](src)
	case func(yield func(any, error) bool):
		o = iter.Seq2[any, error](src)
	}

	switch src := o.(type) {
	case Iterator:
		s.next = src.Next
		s.cleanup = src.Close
	case iter.Seq[any]:
		next, stop := iter.Pull(src)
		s.next = func(context.Context) (any, bool, error) {
			v, ok := next()
			return v, ok, nil
		}
		s.cleanup = func() error {
			stop()
			return nil
		}
	case iter.Seq2[any, error]:
		next, stop := iter.Pull2(src)
		s.next = func(context.Context) (any, bool, error) {
			v, err, ok := next()
			return v, ok, err
		}
		s.cleanup = func() error {
			stop()
			return nil
		}
	case []any:
		i := 0
		s.next = func(context.Context) (any, bool, error) {
			if i >= len(src) {
				return nil, false, nil
			}
			i++
			return src[i-1], true, nil
		}
	default:
		return nil, newDispatchError(TypeMismatch, "native %T is not an iterator", o)
	}

	return s, nil
}

func (s *Stream) Elem() TypeTag {
	return s.elem
}

// Done reports whether the stream is exhausted or stopped.
func (s *Stream) Done() bool {
	return s.done
}

// Next produces the next element. A cancelled context stops the stream, runs
// the cleanup and returns the context error.
func (s *Stream) Next(ctx context.Context) (Value, bool, error) {
	if s.done {
		return nil, false, nil
	}
	if err := ctx.Err(); err != nil {
		s.Stop(ctx)
		return nil, false, err
	}

	raw, ok, err := s.pull(ctx)
	if err != nil {
		s.Stop(ctx)
		return nil, false, err
	}
	if !ok {
		s.Stop(ctx)
		return nil, false, nil
	}

	v, err := s.engine.fromNative(ctx, s.elem, raw)
	if err != nil {
		s.Stop(ctx)
		return nil, false, err
	}
	return v, true, nil
}

func (s *Stream) pull(ctx context.Context) (raw any, ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &NativeError{Method: "iterator", Err: panicError(r)}
		}
	}()

	raw, ok, err = s.next(ctx)
	if err != nil {
		return nil, false, &NativeError{Method: "iterator", Err: err}
	}
	return raw, ok, nil
}

// Stop ends the stream and runs the native cleanup. It is idempotent;
// cleanup failures are logged and swallowed.
func (s *Stream) Stop(ctx context.Context) {
	if s.closed {
		return
	}
	s.closed = true
	s.done = true

	if s.cleanup == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			s.engine.logger.WarnContext(ctx, "iterator cleanup panicked", "panic", fmt.Sprint(r))
		}
	}()

	if err := s.cleanup(); err != nil {
		s.engine.logger.WarnContext(ctx, "iterator cleanup failed", "error", err)
	}
}

// All ranges over the remaining elements. Breaking out of the loop stops
// the stream.
func (s *Stream) All(ctx context.Context) iter.Seq2[Value, error] {
	return func(yield func(Value, error) bool) {
		defer s.Stop(ctx)
		for {
			v, ok, err := s.Next(ctx)
			if err != nil {
				yield(nil, err)
				return
			}
			if !ok {
				return
			}
			if !yield(v, nil) {
				return
			}
		}
	}
}

func (s *Stream) String() string {
	return "<stream of " + s.elem.String() + ">"
}
