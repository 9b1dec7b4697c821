package dispatch

import (
	"fmt"
	"strings"
)

type TypeKind uint8

const (
	TypeVoid TypeKind = iota
	TypeBool
	TypeInt
	TypeFloat
	TypeString
	// TypeWString is a string whose native form is UTF-16LE.
	TypeWString
	TypeObject
	TypeSeq
	TypeMap
	TypeAny
	TypeIterator
)

func (k TypeKind) String() string {
	switch k {
	case TypeVoid:
		return "void"
	case TypeBool:
		return "bool"
	case TypeInt:
		return "int"
	case TypeFloat:
		return "float"
	case TypeString:
		return "string"
	case TypeWString:
		return "wstring"
	case TypeObject:
		return "object"
	case TypeSeq:
		return "seq"
	case TypeMap:
		return "map"
	case TypeAny:
		return "any"
	case TypeIterator:
		return "iterator"
	}
	return fmt.Sprintf("TypeKind(%d)", int(k))
}

// TypeTag describes a parameter or return type.
type TypeTag struct {
	Kind TypeKind

	// Class is the object class for TypeObject. A nil class accepts an
	// object of any class.
	Class *ClassDescriptor

	// Elem is the element type of TypeSeq, TypeMap and TypeIterator.
	Elem *TypeTag

	// Const marks an object parameter that accepts const references, or an
	// object result that is handed out as a const reference.
	Const bool

	// Nullable object parameters accept Void.
	Nullable bool

	// ByValue object parameters receive a temporary copy of the argument
	// that is destroyed after the call.
	ByValue bool

	// Transfer marks an object result whose ownership moves to the caller.
	Transfer bool
}

var (
	VoidType    = TypeTag{Kind: TypeVoid}
	BoolType    = TypeTag{Kind: TypeBool}
	IntType     = TypeTag{Kind: TypeInt}
	FloatType   = TypeTag{Kind: TypeFloat}
	StringType  = TypeTag{Kind: TypeString}
	WStringType = TypeTag{Kind: TypeWString}
	AnyType     = TypeTag{Kind: TypeAny}
)

func ObjectOf(class *ClassDescriptor) TypeTag {
	return TypeTag{Kind: TypeObject, Class: class}
}

func ConstObjectOf(class *ClassDescriptor) TypeTag {
	return TypeTag{Kind: TypeObject, Class: class, Const: true}
}

// NewObjectOf is the return type of a method that transfers ownership of a
// new object to the caller.
func NewObjectOf(class *ClassDescriptor) TypeTag {
	return TypeTag{Kind: TypeObject, Class: class, Transfer: true}
}

func SeqOf(elem TypeTag) TypeTag {
	return TypeTag{Kind: TypeSeq, Elem: &elem}
}

func MapOf(elem TypeTag) TypeTag {
	return TypeTag{Kind: TypeMap, Elem: &elem}
}

func IteratorOf(elem TypeTag) TypeTag {
	return TypeTag{Kind: TypeIterator, Elem: &elem}
}

func (t TypeTag) AsNullable() TypeTag {
	t.Nullable = true
	return t
}

func (t TypeTag) AsByValue() TypeTag {
	t.ByValue = true
	return t
}

func (t TypeTag) elem() TypeTag {
	if t.Elem == nil {
		return AnyType
	}
	return *t.Elem
}

func (t TypeTag) String() string {
	var sb strings.Builder
	switch t.Kind {
	case TypeObject:
		if t.Const {
			sb.WriteString("const ")
		}
		if t.Class == nil {
			sb.WriteString("object")
		} else {
			sb.WriteString(t.Class.QualifiedName())
		}
		if t.Nullable {
			sb.WriteString("?")
		}
	case TypeSeq, TypeIterator:
		sb.WriteString(t.Kind.String())
		sb.WriteString("<")
		sb.WriteString(t.elem().String())
		sb.WriteString(">")
	case TypeMap:
		sb.WriteString("map<string, ")
		sb.WriteString(t.elem().String())
		sb.WriteString(">")
	default:
		sb.WriteString(t.Kind.String())
	}
	return sb.String()
}
