package starlarkadapter_test

import (
	"context"
	"errors"
	"iter"

	dispatch "github.com/jerbob92/wazero-dispatch"
	"github.com/jerbob92/wazero-dispatch/starlarkadapter"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.starlark.net/starlark"
)

type point struct {
	x, y      int64
	listeners []func(ctx context.Context, args []any) error
}

type model struct {
	engine    dispatch.Engine
	point     *dispatch.ClassDescriptor
	destroyed []*point
}

func newModel() *model {
	m := &model{engine: dispatch.CreateEngine(dispatch.NewConfig())}

	style := dispatch.NewClass("Style").Constant("WIDTH", dispatch.Int(2)).MustBuild()

	b := dispatch.NewClass("Point").Child(style)
	cls := b.Class()
	b.Lifecycle(dispatch.Lifecycle{
		New: func(ctx context.Context) (any, error) {
			return &point{}, nil
		},
		Destroy: func(ctx context.Context, obj any) error {
			m.destroyed = append(m.destroyed, obj.(*point))
			return nil
		},
	})
	b.Method(
		dispatch.NewConstructor("new", cls).
			Param("x", dispatch.IntType).
			ParamDefault("y", dispatch.IntType, dispatch.Int(0)).
			Call(func(ctx context.Context, self any, args []any) (any, error) {
				return &point{x: args[0].(int64), y: args[1].(int64)}, nil
			}).MustBuild(),

		dispatch.NewMethod("x").Const().Returns(dispatch.IntType).Call(func(ctx context.Context, self any, args []any) (any, error) {
			return self.(*point).x, nil
		}).MustBuild(),

		dispatch.NewMethod("set_x").Setter("x").Param("value", dispatch.IntType).Call(func(ctx context.Context, self any, args []any) (any, error) {
			self.(*point).x = args[0].(int64)
			return nil, nil
		}).MustBuild(),

		dispatch.NewMethod("y").Const().Returns(dispatch.IntType).Call(func(ctx context.Context, self any, args []any) (any, error) {
			return self.(*point).y, nil
		}).MustBuild(),

		dispatch.NewMethod("move").Param("dx", dispatch.IntType).ParamDefault("dy", dispatch.IntType, dispatch.Int(0)).Call(func(ctx context.Context, self any, args []any) (any, error) {
			p := self.(*point)
			p.x += args[0].(int64)
			p.y += args[1].(int64)
			for _, emit := range p.listeners {
				if emit == nil {
					continue
				}
				if err := emit(ctx, []any{args[0], args[1]}); err != nil {
					return nil, err
				}
			}
			return nil, nil
		}).MustBuild(),

		dispatch.NewMethod("coords").Const().Returns(dispatch.IteratorOf(dispatch.IntType)).Call(func(ctx context.Context, self any, args []any) (any, error) {
			p := self.(*point)
			return iter.Seq[any](func(yield func(any) bool) {
				if !yield(p.x) {
					return
				}
				yield(p.y)
			}), nil
		}).MustBuild(),

		dispatch.NewMethod("origin").Static().Returns(dispatch.NewObjectOf(cls)).Call(func(ctx context.Context, self any, args []any) (any, error) {
			return &point{}, nil
		}).MustBuild(),

		dispatch.NewMethod("sum").Static().Param("values", dispatch.SeqOf(dispatch.IntType)).Returns(dispatch.IntType).Call(func(ctx context.Context, self any, args []any) (any, error) {
			var total int64
			for _, v := range args[0].([]any) {
				total += v.(int64)
			}
			return total, nil
		}).MustBuild(),

		dispatch.NewMethod("kind").Static().Param("v", dispatch.IntType).Returns(dispatch.StringType).Call(func(ctx context.Context, self any, args []any) (any, error) {
			return "int", nil
		}).MustBuild(),
		dispatch.NewMethod("kind").Static().Param("v", dispatch.StringType).Returns(dispatch.StringType).Call(func(ctx context.Context, self any, args []any) (any, error) {
			return "string", nil
		}).MustBuild(),

		dispatch.NewMethod("fail").Call(func(ctx context.Context, self any, args []any) (any, error) {
			return nil, errors.New("native failure")
		}).MustBuild(),

		dispatch.NewSignal("moved", func(ctx context.Context, self any, emit func(ctx context.Context, args []any) error) (func(), error) {
			p := self.(*point)
			p.listeners = append(p.listeners, emit)
			n := len(p.listeners) - 1
			return func() { p.listeners[n] = nil }, nil
		}).Param("dx", dispatch.IntType).Param("dy", dispatch.IntType).MustBuild(),
	)
	m.point = b.MustBuild()

	if err := m.engine.RegisterClass(m.point); err != nil {
		panic(err)
	}
	return m
}

func asInt(v starlark.Value) int {
	i, err := starlark.AsInt32(v)
	Expect(err).To(Not(HaveOccurred()))
	return i
}

var _ = Describe("Adapter", func() {
	var m *model
	var adapter *starlarkadapter.Adapter
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
		m = newModel()
		adapter = starlarkadapter.New(ctx, m.engine)
	})

	run := func(src string) starlark.StringDict {
		globals, err := adapter.ExecFile(ctx, "test.star", src)
		Expect(err).To(Not(HaveOccurred()))
		return globals
	}

	Context("when calling classes and methods", func() {
		It("constructs objects by calling the class", func() {
			globals := run(`
p = Point(3, y = 4)
x = p.x()
y = p.y()
t = type(p)
`)
			Expect(asInt(globals["x"])).To(Equal(3))
			Expect(asInt(globals["y"])).To(Equal(4))
			Expect(globals["t"]).To(Equal(starlark.String("Point")))
		})

		It("fills in defaults", func() {
			globals := run(`
p = Point(3)
y = p.y()
`)
			Expect(asInt(globals["y"])).To(Equal(0))
		})

		It("writes properties through the setter", func() {
			globals := run(`
p = Point(1)
p.x = 10
x = p.x()
`)
			Expect(asInt(globals["x"])).To(Equal(10))
		})

		It("calls static methods on the class", func() {
			globals := run(`
total = Point.sum([1, 2, 3])
a = Point.kind(1)
b = Point.kind("one")
`)
			Expect(asInt(globals["total"])).To(Equal(6))
			Expect(globals["a"]).To(Equal(starlark.String("int")))
			Expect(globals["b"]).To(Equal(starlark.String("string")))
		})

		It("reads child classes and constants", func() {
			globals := run(`
width = Point.Style.WIDTH
style = Point.Style
`)
			Expect(asInt(globals["width"])).To(Equal(2))
			Expect(globals["style"].Type()).To(Equal("class"))
			Expect(globals["style"].(*starlarkadapter.Class).Descriptor().QualifiedName()).To(Equal("Point.Style"))
		})

		It("iterates iterator results", func() {
			globals := run(`
p = Point(5, 6)
coords = [c for c in p.coords()]
`)
			coords := globals["coords"].(*starlark.List)
			Expect(coords.Len()).To(Equal(2))
			Expect(asInt(coords.Index(0))).To(Equal(5))
			Expect(asInt(coords.Index(1))).To(Equal(6))
		})

		It("pulls streams with the context of the calling thread", func() {
			threadCtx, cancel := context.WithCancel(ctx)
			defer cancel()

			thread := adapter.NewThread(threadCtx, "cancel.star")
			globals := adapter.Globals()
			globals["cancel"] = starlark.NewBuiltin("cancel", func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
				cancel()
				return starlark.None, nil
			})
			out, err := starlark.ExecFile(thread, "cancel.star", `
s = Point(5, 6).coords()
cancel()
coords = [c for c in s]
`, globals)
			Expect(err).To(BeNil())
			Expect(out["coords"].(*starlark.List).Len()).To(Equal(0))

			stream := out["s"].(*starlarkadapter.Iterable)
			Expect(stream.Truth()).To(Equal(starlark.False))
			Expect(errors.Is(stream.Err(), context.Canceled)).To(BeTrue())
		})

		It("stops unfinished streams on Close", func() {
			globals := run(`
s = Point(5, 6).coords()
`)
			stream := globals["s"].(*starlarkadapter.Iterable)
			Expect(stream.Truth()).To(Equal(starlark.True))

			Expect(adapter.Close(ctx)).To(Succeed())
			Expect(stream.Truth()).To(Equal(starlark.False))
		})

		It("compares objects by identity", func() {
			globals := run(`
p = Point(1)
q = Point(1)
same = p == p
different = p == q
`)
			Expect(globals["same"]).To(Equal(starlark.True))
			Expect(globals["different"]).To(Equal(starlark.False))
		})

		It("surfaces resolution errors", func() {
			_, err := adapter.ExecFile(ctx, "test.star", `Point.kind([1])`)
			Expect(err).To(HaveOccurred())
			Expect(errors.Is(err, dispatch.ErrNoMatch)).To(BeTrue())
		})

		It("truncates floats passed for int parameters", func() {
			globals := run(`
k = Point.kind(1.5)
p = Point(2.9, -1.7)
x = p.x()
y = p.y()
`)
			Expect(globals["k"]).To(Equal(starlark.String("int")))
			Expect(asInt(globals["x"])).To(Equal(2))
			Expect(asInt(globals["y"])).To(Equal(-1))
		})

		It("surfaces native errors", func() {
			_, err := adapter.ExecFile(ctx, "test.star", `Point(1).fail()`)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("error while calling Point.fail: native failure"))
		})

		It("rejects unknown attributes", func() {
			_, err := adapter.ExecFile(ctx, "test.star", `Point(1).nope()`)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("nope"))
		})
	})

	Context("when subscribing to signals", func() {
		It("calls the handler until disconnected", func() {
			globals := run(`
moves = []
p = Point(0)
def on_move(dx, dy):
    moves.append((dx, dy))
sub = subscribe(p, "moved", on_move)
p.move(1, dy = 2)
connected = sub.connected
sub.disconnect()
p.move(5)
`)
			moves := globals["moves"].(*starlark.List)
			Expect(moves.Len()).To(Equal(1))
			Expect(moves.Index(0).String()).To(Equal("(1, 2)"))
			Expect(globals["connected"]).To(Equal(starlark.True))
			Expect(globals["sub"].Truth()).To(Equal(starlark.False))
		})

		It("rejects non-signals", func() {
			_, err := adapter.ExecFile(ctx, "test.star", `subscribe(Point(0), "move", lambda dx, dy: None)`)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("is not a signal"))
		})
	})

	Context("when managing lifetimes", func() {
		It("destroys owned objects on Close", func() {
			run(`
p = Point(1)
o = Point.origin()
`)
			Expect(m.engine.LiveHandles()).To(Equal(2))
			Expect(adapter.Close(ctx)).To(Succeed())
			Expect(m.destroyed).To(HaveLen(2))
			Expect(m.engine.LiveHandles()).To(Equal(0))
		})

		It("destroys objects scheduled with destroy_later on flush", func() {
			globals := run(`
p = Point(1)
destroy_later(p)
before = bool(p)
flush_pending_destroys()
after = bool(p)
`)
			Expect(globals["before"]).To(Equal(starlark.True))
			Expect(globals["after"]).To(Equal(starlark.False))
			Expect(m.destroyed).To(HaveLen(1))
		})

		It("fails on calls to destroyed objects", func() {
			_, err := adapter.ExecFile(ctx, "test.star", `
p = Point(1)
destroy_later(p)
flush_pending_destroys()
p.x()
`)
			Expect(err).To(HaveOccurred())
			Expect(errors.Is(err, dispatch.ErrDestroyed)).To(BeTrue())
		})

		It("reports the number of live handles", func() {
			globals := run(`
p = Point(1)
q = Point(2)
n = live_handles()
`)
			Expect(globals["n"].String()).To(Equal("2"))
		})
	})

	Context("when listing signatures", func() {
		It("lists every overload", func() {
			globals := run(`
s = signatures("Point", "kind")
`)
			Expect(globals["s"]).To(Equal(starlark.String("static kind(v: int) -> string\nstatic kind(v: string) -> string")))
		})

		It("fails for unknown methods", func() {
			_, err := adapter.ExecFile(ctx, "test.star", `signatures("Point", "nope")`)
			Expect(err).To(MatchError(ContainSubstring("class Point has no method nope")))
		})
	})
})

var _ = Describe("Conversion", func() {
	var adapter *starlarkadapter.Adapter

	BeforeEach(func() {
		adapter = starlarkadapter.New(context.Background(), newModel().engine)
	})

	It("converts scalars both ways", func() {
		for _, v := range []starlark.Value{starlark.None, starlark.True, starlark.MakeInt(42), starlark.Float(1.5), starlark.String("hi")} {
			dv, err := adapter.ToValue(v)
			Expect(err).To(Not(HaveOccurred()))
			back, err := adapter.FromValue(dv)
			Expect(err).To(Not(HaveOccurred()))
			Expect(back).To(Equal(v))
		}
	})

	It("converts lists, tuples and dicts", func() {
		d := starlark.NewDict(1)
		Expect(d.SetKey(starlark.String("a"), starlark.Tuple{starlark.MakeInt(1)})).To(Succeed())

		v, err := adapter.ToValue(starlark.NewList([]starlark.Value{starlark.MakeInt(1), d}))
		Expect(err).To(Not(HaveOccurred()))
		Expect(dispatch.EqualValues(v, dispatch.Seq{dispatch.Int(1), dispatch.Map{"a": dispatch.Seq{dispatch.Int(1)}}})).To(BeTrue())
	})

	It("rejects dicts with non-string keys", func() {
		d := starlark.NewDict(1)
		Expect(d.SetKey(starlark.MakeInt(1), starlark.None)).To(Succeed())
		_, err := adapter.ToValue(d)
		Expect(err).To(MatchError(ContainSubstring("is not a string")))
	})

	It("rejects integers out of range", func() {
		big := starlark.MakeInt64(1 << 62)
		big = big.Mul(starlark.MakeInt(8))
		_, err := adapter.ToValue(big)
		Expect(err).To(MatchError(ContainSubstring("out of range")))
	})

	It("rejects unsupported values", func() {
		_, err := adapter.ToValue(starlark.NewSet(0))
		Expect(err).To(MatchError("cannot pass set to a native method"))
	})

	It("converts maps to dicts", func() {
		v, err := adapter.FromValue(dispatch.Map{"b": dispatch.Int(2), "a": dispatch.Int(1)})
		Expect(err).To(Not(HaveOccurred()))
		Expect(v.String()).To(Equal(`{"a": 1, "b": 2}`))
	})
})
