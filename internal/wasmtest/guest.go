// Package wasmtest assembles the small wasm guest module the tests run
// marshalling against.
package wasmtest

// Exports of the guest module.
//
//	memory                          one page, "hi" stored at 16 with a length prefix
//	malloc(size i32) i32            bump allocator starting at 1024
//	free(ptr i32)                   no-op
//	strlen(ptr i32) i32             reads the length prefix of a buffer
//	greet() i32                     returns the buffer at 16
//	point_new() i32                 allocates a point {x i32}
//	point_destroy(ptr i32)          no-op
//	point_get_x(ptr i32) i32
//	point_set_x(ptr i32, x i32)
//	point_copy(dst i32, src i32)
//	add(a i32, b i32) i32
//	half(v f64) f64
const (
	typeVoidToI32 = iota
	typeI32ToVoid
	typeI32ToI32
	typeI32I32ToVoid
	typeI32I32ToI32
	typeF64ToF64
)

const (
	opEnd       = 0x0b
	opCall      = 0x10
	opLocalGet  = 0x20
	opGlobalGet = 0x23
	opGlobalSet = 0x24
	opI32Load   = 0x28
	opI32Store  = 0x36
	opI32Const  = 0x41
	opF64Const  = 0x44
	opI32Add    = 0x6a
	opF64Div    = 0xa3
	valI32      = 0x7f
	valF64      = 0x7c
)

type function struct {
	name string
	typ  byte
	body []byte
}

var functions = []function{
	{"malloc", typeI32ToI32, []byte{opGlobalGet, 0, opGlobalGet, 0, opLocalGet, 0, opI32Add, opGlobalSet, 0}},
	{"free", typeI32ToVoid, nil},
	{"strlen", typeI32ToI32, []byte{opLocalGet, 0, opI32Load, 2, 0}},
	{"greet", typeVoidToI32, []byte{opI32Const, 16}},
	{"point_new", typeVoidToI32, []byte{opI32Const, 4, opCall, 0}},
	{"point_destroy", typeI32ToVoid, nil},
	{"point_get_x", typeI32ToI32, []byte{opLocalGet, 0, opI32Load, 2, 0}},
	{"point_set_x", typeI32I32ToVoid, []byte{opLocalGet, 0, opLocalGet, 1, opI32Store, 2, 0}},
	{"point_copy", typeI32I32ToVoid, []byte{opLocalGet, 0, opLocalGet, 1, opI32Load, 2, 0, opI32Store, 2, 0}},
	{"add", typeI32I32ToI32, []byte{opLocalGet, 0, opLocalGet, 1, opI32Add}},
	{"half", typeF64ToF64, []byte{opLocalGet, 0, opF64Const, 0, 0, 0, 0, 0, 0, 0, 0x40, opF64Div}},
}

// uleb encodes n as unsigned LEB128.
func uleb(n int) []byte {
	var out []byte
	for {
		b := byte(n & 0x7f)
		n >>= 7
		if n != 0 {
			out = append(out, b|0x80)
			continue
		}
		return append(out, b)
	}
}

func section(id byte, content []byte) []byte {
	out := append([]byte{id}, uleb(len(content))...)
	return append(out, content...)
}

func vector(items ...[]byte) []byte {
	out := uleb(len(items))
	for _, item := range items {
		out = append(out, item...)
	}
	return out
}

func name(s string) []byte {
	return append(uleb(len(s)), s...)
}

// Guest returns the binary of the guest module.
func Guest() []byte {
	out := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

	out = append(out, section(1, vector(
		[]byte{0x60, 0, 1, valI32},
		[]byte{0x60, 1, valI32, 0},
		[]byte{0x60, 1, valI32, 1, valI32},
		[]byte{0x60, 2, valI32, valI32, 0},
		[]byte{0x60, 2, valI32, valI32, 1, valI32},
		[]byte{0x60, 1, valF64, 1, valF64},
	))...)

	types := make([][]byte, len(functions))
	for i, fn := range functions {
		types[i] = []byte{fn.typ}
	}
	out = append(out, section(3, vector(types...))...)

	// One page of memory, no maximum.
	out = append(out, section(5, vector([]byte{0x00, 1}))...)

	// Mutable i32 heap pointer, starting at 1024.
	out = append(out, section(6, vector([]byte{valI32, 1, opI32Const, 0x80, 0x08, opEnd}))...)

	exports := [][]byte{append(name("memory"), 0x02, 0)}
	for i, fn := range functions {
		exports = append(exports, append(append(name(fn.name), 0x00), uleb(i)...))
	}
	out = append(out, section(7, vector(exports...))...)

	bodies := make([][]byte, len(functions))
	for i, fn := range functions {
		body := append([]byte{0}, fn.body...)
		body = append(body, opEnd)
		bodies[i] = append(uleb(len(body)), body...)
	}
	out = append(out, section(10, vector(bodies...))...)

	// "hi" with its length prefix at 16.
	out = append(out, section(11, vector(
		append([]byte{0, opI32Const, 16, opEnd}, append(uleb(6), 2, 0, 0, 0, 'h', 'i')...),
	))...)

	return out
}
