package dispatch

import (
	"bytes"
	"context"
	"log/slog"

	"github.com/jerbob92/wazero-dispatch/internal/wasmtest"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Calling wasm guests", Label("wasm"), func() {
	var ctx context.Context
	var runtime wazero.Runtime
	var mod api.Module
	var e *engine
	var logs *bytes.Buffer

	BeforeEach(func() {
		ctx = context.Background()
		runtime = wazero.NewRuntime(ctx)
		compiled, err := runtime.CompileModule(ctx, wasmtest.Guest())
		Expect(err).To(BeNil())
		mod, err = runtime.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName("guest"))
		Expect(err).To(BeNil())

		logs = &bytes.Buffer{}
		e = newEngine(NewConfig().AddLogHandler(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug})))
		ctx = e.Attach(ctx)
	})

	AfterEach(func() {
		Expect(runtime.Close(context.Background())).To(Succeed())
	})

	When("binding exported functions", func() {
		It("passes and returns integers", func() {
			add, err := NewWasmCall(mod, "add", []TypeTag{IntType, IntType}, IntType, false)
			Expect(err).To(BeNil())
			Expect(add(ctx, nil, []any{int64(2), int64(40)})).To(Equal(int64(42)))
			Expect(add(ctx, nil, []any{int64(-2), int64(1)})).To(Equal(int64(-1)))
		})

		It("passes and returns floats", func() {
			half, err := NewWasmCall(mod, "half", []TypeTag{FloatType}, FloatType, false)
			Expect(err).To(BeNil())
			Expect(half(ctx, nil, []any{2.5})).To(Equal(1.25))
		})

		It("passes booleans as integers", func() {
			add, err := NewWasmCall(mod, "add", []TypeTag{BoolType, BoolType}, IntType, false)
			Expect(err).To(BeNil())
			Expect(add(ctx, nil, []any{true, true})).To(Equal(int64(2)))
		})

		It("copies strings into guest memory behind a length prefix", func() {
			strlen, err := NewWasmCall(mod, "strlen", []TypeTag{StringType}, IntType, false)
			Expect(err).To(BeNil())
			Expect(strlen(ctx, nil, []any{"hello"})).To(Equal(int64(5)))
		})

		It("prefixes wide strings with their number of code units", func() {
			strlen, err := NewWasmCall(mod, "strlen", []TypeTag{WStringType}, IntType, false)
			Expect(err).To(BeNil())
			encoded, err := EncodeWString("héllo")
			Expect(err).To(BeNil())
			Expect(strlen(ctx, nil, []any{encoded})).To(Equal(int64(5)))
		})

		It("reads returned strings", func() {
			greet, err := NewWasmCall(mod, "greet", nil, StringType, false)
			Expect(err).To(BeNil())
			Expect(greet(ctx, nil, nil)).To(Equal("hi"))
		})

		It("passes host values as handle ids and releases them after the call", func() {
			add, err := NewWasmCall(mod, "add", []TypeTag{AnyType, IntType}, IntType, false)
			Expect(err).To(BeNil())
			Expect(add(ctx, nil, []any{Str("opaque"), int64(0)})).To(Equal(int64(1)))
			Expect(e.wireHandles.live()).To(Equal(0))
		})

		It("reports missing exports", func() {
			_, err := NewWasmCall(mod, "nope", nil, VoidType, false)
			Expect(err).To(MatchError(`module guest does not export the function "nope"`))
		})

		It("checks the number of parameters and results", func() {
			_, err := NewWasmCall(mod, "add", []TypeTag{IntType}, IntType, false)
			Expect(err).To(MatchError("function add takes 2 parameter(s), expected 1"))

			_, err = NewWasmCall(mod, "free", []TypeTag{IntType}, IntType, false)
			Expect(err).To(MatchError("function free returns 0 value(s), expected one"))

			_, err = NewWasmCall(mod, "add", []TypeTag{IntType, IntType}, VoidType, false)
			Expect(err).To(MatchError("function add returns a value, expected none"))
		})

		It("needs the engine in the context", func() {
			add, err := NewWasmCall(mod, "add", []TypeTag{IntType, IntType}, IntType, false)
			Expect(err).To(BeNil())
			_, err = add(context.Background(), nil, []any{int64(1), int64(1)})
			Expect(err).To(MatchError("dispatch engine not found in context"))
		})
	})

	When("a class lives in guest memory", func() {
		var class *ClassDescriptor

		BeforeEach(func() {
			lifecycle, err := WasmLifecycle(mod, "point_new", "point_destroy", "point_copy")
			Expect(err).To(BeNil())

			getX, err := NewWasmCall(mod, "point_get_x", nil, IntType, true)
			Expect(err).To(BeNil())
			setX, err := NewWasmCall(mod, "point_set_x", []TypeTag{IntType}, VoidType, true)
			Expect(err).To(BeNil())

			b := NewClass("GuestPoint").Lifecycle(lifecycle)
			copyFrom, err := NewWasmCall(mod, "point_copy", []TypeTag{ConstObjectOf(b.Class())}, VoidType, true)
			Expect(err).To(BeNil())

			class = b.Method(
				NewMethod("x").Const().Returns(IntType).Call(getX).MustBuild(),
				NewMethod("x").AsSetter().Param("value", IntType).Call(setX).MustBuild(),
				NewMethod("copy_from").Param("other", ConstObjectOf(b.Class())).Call(copyFrom).MustBuild(),
			).MustBuild()
			Expect(e.RegisterClass(class)).To(Succeed())
		})

		call := func(recv *ObjectRef, method string, args ...Value) (Value, error) {
			return e.ResolveAndCall(ctx, Call{Class: class, Receiver: recv, Method: method, Positional: args})
		}

		It("constructs objects as guest pointers", func() {
			v, err := call(nil, "new")
			Expect(err).To(BeNil())
			p := v.(ObjectRef)
			obj, err := p.Object()
			Expect(err).To(BeNil())
			Expect(obj).To(BeAssignableToTypeOf(GuestPointer(0)))
			Expect(p.Owns()).To(BeTrue())
		})

		It("reads and writes guest state through methods", func() {
			v, err := call(nil, "new")
			Expect(err).To(BeNil())
			p := v.(ObjectRef)

			_, err = call(&p, "x=", Int(12))
			Expect(err).To(BeNil())
			Expect(call(&p, "x")).To(Equal(Int(12)))
		})

		It("duplicates and assigns through the copy export", func() {
			v, err := call(nil, "new")
			Expect(err).To(BeNil())
			a := v.(ObjectRef)
			_, err = call(&a, "x=", Int(3))
			Expect(err).To(BeNil())

			v, err = call(&a, "dup")
			Expect(err).To(BeNil())
			b := v.(ObjectRef)
			Expect(b.Handle()).ToNot(BeIdenticalTo(a.Handle()))
			Expect(call(&b, "x")).To(Equal(Int(3)))

			_, err = call(&a, "x=", Int(9))
			Expect(err).To(BeNil())
			_, err = call(&b, "copy_from", a)
			Expect(err).To(BeNil())
			Expect(call(&b, "x")).To(Equal(Int(9)))
		})

		It("destroys guest objects", func() {
			v, err := call(nil, "new")
			Expect(err).To(BeNil())
			p := v.(ObjectRef)
			_, err = call(&p, "destroy")
			Expect(err).To(BeNil())
			_, err = call(&p, "x")
			Expect(err).To(MatchError(ErrDestroyed))
		})
	})

	When("the guest calls host functions", func() {
		It("keeps handle ids alive until released", func() {
			id := e.wireHandles.allocate("kept")
			HandleIncref.Call(ctx, mod, []uint64{api.EncodeU32(id)})

			HandleDecref.Call(ctx, mod, []uint64{api.EncodeU32(id)})
			Expect(e.wireHandles.get(id)).To(Equal("kept"))

			HandleDecref.Call(ctx, mod, []uint64{api.EncodeU32(id)})
			_, err := e.wireHandles.get(id)
			Expect(err).To(MatchError("invalid handle id: 1"))
		})

		It("panics on unknown handle ids", func() {
			Expect(func() {
				HandleDecref.Call(ctx, mod, []uint64{api.EncodeU32(42)})
			}).To(Panic())
		})

		It("logs guest messages", func() {
			Expect(mod.Memory().WriteUint32Le(4096, 5)).To(BeTrue())
			Expect(mod.Memory().WriteString(4100, "hello")).To(BeTrue())

			Log.Call(ctx, mod, []uint64{api.EncodeI32(int32(slog.LevelWarn)), api.EncodeU32(4096)})
			Expect(logs.String()).To(ContainSubstring("msg=hello"))
			Expect(logs.String()).To(ContainSubstring("module=guest"))
		})

		It("reports live handles and flushes deferred destruction", func() {
			class := NewClass("Plain").MustBuild()
			ref, err := e.Wrap(class, &label{}, true)
			Expect(err).To(BeNil())
			Expect(e.DestroyLater(ctx, ref)).To(Succeed())

			stack := []uint64{0}
			LiveHandles.Call(ctx, mod, stack)
			Expect(api.DecodeI32(stack[0])).To(Equal(int32(1)))

			FlushPendingDestroys.Call(ctx, mod, stack)
			Expect(api.DecodeI32(stack[0])).To(Equal(int32(0)))
			Expect(ref.IsDestroyed()).To(BeTrue())

			LiveHandles.Call(ctx, mod, stack)
			Expect(api.DecodeI32(stack[0])).To(Equal(int32(0)))
		})
	})
})

var _ = Describe("Handle tables", func() {
	It("reuses freed ids", func() {
		t := newHandleTable()
		a := t.allocate("a")
		b := t.allocate("b")
		Expect([]uint32{a, b}).To(Equal([]uint32{1, 2}))

		Expect(t.decref(a)).To(Succeed())
		Expect(t.allocate("c")).To(Equal(a))
		Expect(t.live()).To(Equal(2))
	})

	It("treats id 0 as null", func() {
		t := newHandleTable()
		_, err := t.get(0)
		Expect(err).To(MatchError("invalid handle id: 0"))
	})
})
