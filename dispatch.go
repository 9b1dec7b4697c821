// Package dispatch calls methods of a statically declared object model from
// dynamically typed runtimes: lookup by name, overload resolution, keyword
// arguments, const correctness and ownership of native objects.
package dispatch

import (
	internal "github.com/jerbob92/wazero-dispatch/internal"
)

type (
	Value     = internal.Value
	Kind      = internal.Kind
	Void      = internal.Void
	Bool      = internal.Bool
	Int       = internal.Int
	Float     = internal.Float
	Str       = internal.Str
	Seq       = internal.Seq
	Map       = internal.Map
	Scope     = internal.Scope
	ObjectRef = internal.ObjectRef
	Stream    = internal.Stream
	Iterator  = internal.Iterator

	TypeTag  = internal.TypeTag
	TypeKind = internal.TypeKind

	ClassDescriptor  = internal.ClassDescriptor
	ClassBuilder     = internal.ClassBuilder
	Lifecycle        = internal.Lifecycle
	MethodDescriptor = internal.MethodDescriptor
	MethodBuilder    = internal.MethodBuilder
	ParamSpec        = internal.ParamSpec
	Synonym          = internal.Synonym
	Special          = internal.Special
	CallFunc         = internal.CallFunc
	ConnectFunc      = internal.ConnectFunc
	OverloadSet      = internal.OverloadSet
	Registry         = internal.Registry

	Call          = internal.Call
	CallRequest   = internal.CallRequest
	BindResult    = internal.BindResult
	Handle        = internal.Handle
	HandleState   = internal.HandleState
	SignalHandler = internal.SignalHandler
	SignalHandle  = internal.SignalHandle
	CacheStats    = internal.CacheStats
	GuestPointer  = internal.GuestPointer

	DispatchError = internal.DispatchError
	NativeError   = internal.NativeError
	ErrorKind     = internal.ErrorKind

	IEngineConfig = internal.IEngineConfig
	EngineConfig  = internal.EngineConfig
	EngineKey     = internal.EngineKey
)

const (
	NoMatch        = internal.NoMatch
	Ambiguous      = internal.Ambiguous
	UnknownMethod  = internal.UnknownMethod
	ConstViolation = internal.ConstViolation
	TypeMismatch   = internal.TypeMismatch
	Destroyed      = internal.Destroyed
	UnknownKeyword = internal.UnknownKeyword

	StateBorrowed  = internal.StateBorrowed
	StateOwned     = internal.StateOwned
	StateDestroyed = internal.StateDestroyed
)

var (
	ErrNoMatch        = internal.ErrNoMatch
	ErrAmbiguous      = internal.ErrAmbiguous
	ErrUnknownMethod  = internal.ErrUnknownMethod
	ErrConstViolation = internal.ErrConstViolation
	ErrTypeMismatch   = internal.ErrTypeMismatch
	ErrDestroyed      = internal.ErrDestroyed
	ErrUnknownKeyword = internal.ErrUnknownKeyword
)

var (
	VoidType    = internal.VoidType
	BoolType    = internal.BoolType
	IntType     = internal.IntType
	FloatType   = internal.FloatType
	StringType  = internal.StringType
	WStringType = internal.WStringType
	AnyType     = internal.AnyType
)

func ObjectOf(class *ClassDescriptor) TypeTag      { return internal.ObjectOf(class) }
func ConstObjectOf(class *ClassDescriptor) TypeTag { return internal.ConstObjectOf(class) }
func NewObjectOf(class *ClassDescriptor) TypeTag   { return internal.NewObjectOf(class) }
func SeqOf(elem TypeTag) TypeTag                   { return internal.SeqOf(elem) }
func MapOf(elem TypeTag) TypeTag                   { return internal.MapOf(elem) }
func IteratorOf(elem TypeTag) TypeTag              { return internal.IteratorOf(elem) }

// NewClass starts the declaration of a class, an empty name declares a
// mix-in.
func NewClass(name string) *ClassBuilder {
	return internal.NewClass(name)
}

func NewMethod(name string) *MethodBuilder {
	return internal.NewMethod(name)
}

func NewConstructor(name string, class *ClassDescriptor) *MethodBuilder {
	return internal.NewConstructor(name, class)
}

func NewSignal(name string, connect ConnectFunc) *MethodBuilder {
	return internal.NewSignal(name, connect)
}

// ValueOf converts plain Go values (bool, integers, floats, strings, slices
// and string keyed maps of those) to a Value.
func ValueOf(o any) (Value, error) {
	return internal.ValueOf(o)
}

func Clone(v Value) Value {
	return internal.Clone(v)
}

func EqualValues(a, b Value) bool {
	return internal.EqualValues(a, b)
}

func EncodeWString(s string) ([]byte, error) {
	return internal.EncodeWString(s)
}

func DecodeWString(b []byte) (string, error) {
	return internal.DecodeWString(b)
}
