package dispatch

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/tetratelabs/wazero/api"
)

// GuestPointer is the address of an object that lives in the linear memory
// of a wasm guest.
type GuestPointer uint32

// handleTable hands out ids for host values passed to a wasm guest, which
// cannot hold Go values directly. Id 0 is the null reference.
type handleTable struct {
	mu        sync.Mutex
	allocated []*wireHandle
	freelist  []uint32
}

type wireHandle struct {
	value    any
	refcount int
}

func newHandleTable() *handleTable {
	return &handleTable{
		allocated: []*wireHandle{nil},
	}
}

func (t *handleTable) allocate(value any) uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()

	handle := &wireHandle{value: value, refcount: 1}

	// Reuse freed slots first.
	if len(t.freelist) > 0 {
		id := t.freelist[len(t.freelist)-1]
		t.freelist = t.freelist[:len(t.freelist)-1]
		t.allocated[id] = handle
		return id
	}

	t.allocated = append(t.allocated, handle)
	return uint32(len(t.allocated) - 1)
}

func (t *handleTable) lookup(id uint32) (*wireHandle, error) {
	if id == 0 || int(id) >= len(t.allocated) || t.allocated[id] == nil {
		return nil, fmt.Errorf("invalid handle id: %d", id)
	}
	return t.allocated[id], nil
}

func (t *handleTable) get(id uint32) (any, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	handle, err := t.lookup(id)
	if err != nil {
		return nil, err
	}
	return handle.value, nil
}

func (t *handleTable) incref(id uint32) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	handle, err := t.lookup(id)
	if err != nil {
		return err
	}
	handle.refcount++
	return nil
}

func (t *handleTable) decref(id uint32) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	handle, err := t.lookup(id)
	if err != nil {
		return err
	}
	handle.refcount--
	if handle.refcount == 0 {
		t.allocated[id] = nil
		t.freelist = append(t.freelist, id)
	}
	return nil
}

func (t *handleTable) live() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.allocated) - 1 - len(t.freelist)
}

type unexportedFunctionError struct {
	module string
	name   string
}

func (e unexportedFunctionError) Error() string {
	return fmt.Sprintf("module %s does not export the function %q", e.module, e.name)
}

// wasmCall is the thunk of a method implemented by an exported function of
// a wasm module. Every parameter crosses as one wire word; instance methods
// get the guest pointer of the receiver as first word.
type wasmCall struct {
	mod      api.Module
	fn       api.Function
	name     string
	params   []TypeTag
	ret      TypeTag
	instance bool
	wire     []api.ValueType
	result   []api.ValueType
}

// NewWasmCall binds a method thunk to the exported function export of mod.
// params and ret must be the types the method descriptor declares.
func NewWasmCall(mod api.Module, export string, params []TypeTag, ret TypeTag, instance bool) (CallFunc, error) {
	fn := mod.ExportedFunction(export)
	if fn == nil {
		return nil, unexportedFunctionError{module: mod.Name(), name: export}
	}

	def := fn.Definition()
	expected := len(params)
	if instance {
		expected++
	}
	if len(def.ParamTypes()) != expected {
		return nil, fmt.Errorf("function %s takes %d parameter(s), expected %d", export, len(def.ParamTypes()), expected)
	}
	switch {
	case ret.Kind == TypeVoid && len(def.ResultTypes()) != 0:
		return nil, fmt.Errorf("function %s returns a value, expected none", export)
	case ret.Kind != TypeVoid && len(def.ResultTypes()) != 1:
		return nil, fmt.Errorf("function %s returns %d value(s), expected one", export, len(def.ResultTypes()))
	}

	needsHeap := ret.Kind == TypeString || ret.Kind == TypeWString
	for _, p := range params {
		if p.Kind == TypeString || p.Kind == TypeWString {
			needsHeap = true
		}
	}
	if needsHeap {
		for _, required := range []string{"malloc", "free"} {
			if mod.ExportedFunction(required) == nil {
				return nil, unexportedFunctionError{module: mod.Name(), name: required}
			}
		}
	}

	c := &wasmCall{
		mod:      mod,
		fn:       fn,
		name:     export,
		params:   params,
		ret:      ret,
		instance: instance,
		wire:     def.ParamTypes(),
		result:   def.ResultTypes(),
	}
	return c.call, nil
}

// WasmLifecycle builds lifecycle hooks from exported functions of mod. An
// empty export name leaves the hook unset.
func WasmLifecycle(mod api.Module, newExport, destroyExport, copyExport string) (Lifecycle, error) {
	var l Lifecycle

	lookup := func(name string) (api.Function, error) {
		fn := mod.ExportedFunction(name)
		if fn == nil {
			return nil, unexportedFunctionError{module: mod.Name(), name: name}
		}
		return fn, nil
	}

	if newExport != "" {
		fn, err := lookup(newExport)
		if err != nil {
			return l, err
		}
		l.New = func(ctx context.Context) (any, error) {
			res, err := fn.Call(ctx)
			if err != nil {
				return nil, err
			}
			if len(res) != 1 || api.DecodeU32(res[0]) == 0 {
				return nil, fmt.Errorf("%s did not return an object", newExport)
			}
			return GuestPointer(api.DecodeU32(res[0])), nil
		}
	}

	if destroyExport != "" {
		fn, err := lookup(destroyExport)
		if err != nil {
			return l, err
		}
		l.Destroy = func(ctx context.Context, obj any) error {
			ptr, err := guestPointer(obj)
			if err != nil {
				return err
			}
			_, err = fn.Call(ctx, api.EncodeU32(uint32(ptr)))
			return err
		}
	}

	if copyExport != "" {
		fn, err := lookup(copyExport)
		if err != nil {
			return l, err
		}
		l.Copy = func(ctx context.Context, dst, src any) error {
			dstPtr, err := guestPointer(dst)
			if err != nil {
				return err
			}
			srcPtr, err := guestPointer(src)
			if err != nil {
				return err
			}
			_, err = fn.Call(ctx, api.EncodeU32(uint32(dstPtr)), api.EncodeU32(uint32(srcPtr)))
			return err
		}
	}

	return l, nil
}

func guestPointer(obj any) (GuestPointer, error) {
	ptr, ok := obj.(GuestPointer)
	if !ok {
		return 0, fmt.Errorf("native %T is not a guest object", obj)
	}
	if ptr == 0 {
		return 0, errors.New("null guest object")
	}
	return ptr, nil
}

func (c *wasmCall) call(ctx context.Context, self any, args []any) (any, error) {
	engine, err := engineFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var destructors []*destructorFunc

	words := make([]uint64, 0, len(c.wire))
	if c.instance {
		ptr, err := guestPointer(self)
		if err != nil {
			return nil, fmt.Errorf("invalid receiver: %w", err)
		}
		words = append(words, api.EncodeU32(uint32(ptr)))
	}

	for i := range args {
		word, err := c.toWire(ctx, engine, c.params[i], c.wire[len(words)], args[i], &destructors)
		if err != nil {
			engine.releaseDestructors(ctx, destructors)
			return nil, fmt.Errorf("could not get wire type of argument %d (%s): %w", i+1, c.params[i], err)
		}
		words = append(words, word)
	}

	res, err := c.fn.Call(ctx, words...)
	engine.releaseDestructors(ctx, destructors)
	if err != nil {
		return nil, err
	}

	if c.ret.Kind == TypeVoid {
		return nil, nil
	}
	return c.fromWire(ctx, engine, c.ret, c.result[0], res[0])
}

func encodeInt(vt api.ValueType, i int64) uint64 {
	switch vt {
	case api.ValueTypeI32:
		return api.EncodeI32(int32(i))
	case api.ValueTypeF32:
		return api.EncodeF32(float32(i))
	case api.ValueTypeF64:
		return api.EncodeF64(float64(i))
	}
	return api.EncodeI64(i)
}

func encodeFloat(vt api.ValueType, f float64) uint64 {
	switch vt {
	case api.ValueTypeI32:
		return api.EncodeI32(int32(f))
	case api.ValueTypeI64:
		return api.EncodeI64(int64(f))
	case api.ValueTypeF32:
		return api.EncodeF32(float32(f))
	}
	return api.EncodeF64(f)
}

func decodeInt(vt api.ValueType, word uint64) int64 {
	switch vt {
	case api.ValueTypeI32:
		return int64(api.DecodeI32(word))
	case api.ValueTypeF32:
		return int64(api.DecodeF32(word))
	case api.ValueTypeF64:
		return int64(api.DecodeF64(word))
	}
	return int64(word)
}

func decodeFloat(vt api.ValueType, word uint64) float64 {
	switch vt {
	case api.ValueTypeI32:
		return float64(api.DecodeI32(word))
	case api.ValueTypeI64:
		return float64(int64(word))
	case api.ValueTypeF32:
		return float64(api.DecodeF32(word))
	}
	return api.DecodeF64(word)
}

func (c *wasmCall) toWire(ctx context.Context, e *engine, t TypeTag, vt api.ValueType, arg any, destructors *[]*destructorFunc) (uint64, error) {
	switch t.Kind {
	case TypeBool:
		if arg.(bool) {
			return encodeInt(vt, 1), nil
		}
		return encodeInt(vt, 0), nil

	case TypeInt:
		return encodeInt(vt, arg.(int64)), nil

	case TypeFloat:
		return encodeFloat(vt, arg.(float64)), nil

	case TypeString:
		return c.writeBuffer(ctx, []byte(arg.(string)), uint32(len(arg.(string))), destructors)

	case TypeWString:
		encoded := arg.([]byte)
		return c.writeBuffer(ctx, encoded, uint32(len(encoded)/2), destructors)

	case TypeObject:
		if arg == nil {
			return 0, nil
		}
		if ptr, ok := arg.(GuestPointer); ok {
			return api.EncodeU32(uint32(ptr)), nil
		}
	}

	// Everything else crosses as an opaque reference to the host value.
	id := e.wireHandles.allocate(arg)
	*destructors = append(*destructors, &destructorFunc{
		name: "wire handle",
		fn: func(context.Context) error {
			return e.wireHandles.decref(id)
		},
	})
	return api.EncodeU32(id), nil
}

// writeBuffer copies data into guest memory behind a little endian uint32
// length prefix and frees it after the call.
func (c *wasmCall) writeBuffer(ctx context.Context, data []byte, length uint32, destructors *[]*destructorFunc) (uint64, error) {
	mem := c.mod.Memory()
	if mem == nil {
		return 0, fmt.Errorf("module %s exports no memory", c.mod.Name())
	}
	if uint64(len(data)) > math.MaxUint32-4 {
		return 0, errors.New("buffer too large")
	}

	res, err := c.mod.ExportedFunction("malloc").Call(ctx, api.EncodeU32(uint32(4+len(data))))
	if err != nil {
		return 0, fmt.Errorf("could not allocate guest memory: %w", err)
	}
	ptr := api.DecodeU32(res[0])

	*destructors = append(*destructors, &destructorFunc{
		name: "guest buffer",
		fn: func(ctx context.Context) error {
			_, err := c.mod.ExportedFunction("free").Call(ctx, api.EncodeU32(ptr))
			return err
		},
	})

	if !mem.WriteUint32Le(ptr, length) || !mem.Write(ptr+4, data) {
		return 0, fmt.Errorf("could not write %d bytes to guest memory at %d", len(data), ptr)
	}
	return api.EncodeU32(ptr), nil
}

// readBuffer reads a length prefixed buffer and frees it, the callee handed
// its ownership over.
func (c *wasmCall) readBuffer(ctx context.Context, ptr uint32, unitSize uint32) ([]byte, error) {
	mem := c.mod.Memory()
	if mem == nil {
		return nil, fmt.Errorf("module %s exports no memory", c.mod.Name())
	}

	length, ok := mem.ReadUint32Le(ptr)
	if !ok {
		return nil, fmt.Errorf("could not read buffer length at %d", ptr)
	}
	view, ok := mem.Read(ptr+4, length*unitSize)
	if !ok {
		return nil, fmt.Errorf("could not read %d bytes at %d", length*unitSize, ptr+4)
	}
	data := append([]byte(nil), view...)

	if _, err := c.mod.ExportedFunction("free").Call(ctx, api.EncodeU32(ptr)); err != nil {
		return nil, fmt.Errorf("could not free guest buffer: %w", err)
	}
	return data, nil
}

func (c *wasmCall) fromWire(ctx context.Context, e *engine, t TypeTag, vt api.ValueType, word uint64) (any, error) {
	switch t.Kind {
	case TypeBool:
		return decodeInt(vt, word) != 0, nil

	case TypeInt:
		return decodeInt(vt, word), nil

	case TypeFloat:
		return decodeFloat(vt, word), nil

	case TypeString:
		data, err := c.readBuffer(ctx, api.DecodeU32(word), 1)
		if err != nil {
			return nil, err
		}
		return string(data), nil

	case TypeWString:
		return c.readBuffer(ctx, api.DecodeU32(word), 2)

	case TypeObject:
		ptr := api.DecodeU32(word)
		if ptr == 0 {
			return nil, nil
		}
		return GuestPointer(ptr), nil
	}

	// Opaque host values come back by id. The callee returns a reference it
	// owns, which is released here.
	id := api.DecodeU32(word)
	if id == 0 {
		return nil, nil
	}
	value, err := e.wireHandles.get(id)
	if err != nil {
		return nil, err
	}
	if err := e.wireHandles.decref(id); err != nil {
		return nil, err
	}
	return value, nil
}
