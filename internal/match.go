package dispatch

// Strict reports whether v has exactly the declared type.
func (t TypeTag) Strict(v Value) bool {
	switch t.Kind {
	case TypeBool:
		_, ok := v.(Bool)
		return ok
	case TypeInt:
		_, ok := v.(Int)
		return ok
	case TypeFloat:
		_, ok := v.(Float)
		return ok
	case TypeString, TypeWString:
		_, ok := v.(Str)
		return ok
	case TypeObject:
		ref, ok := v.(ObjectRef)
		if !ok || !ref.Valid() || !t.acceptsConstness(ref) {
			return false
		}
		return t.Class == nil || ref.Class() == t.Class
	case TypeSeq:
		seq, ok := v.(Seq)
		if !ok {
			return false
		}
		elem := t.elem()
		for _, e := range seq {
			if !elem.Strict(e) {
				return false
			}
		}
		return true
	case TypeMap:
		m, ok := v.(Map)
		if !ok {
			return false
		}
		elem := t.elem()
		for _, e := range m {
			if !elem.Strict(e) {
				return false
			}
		}
		return true
	}
	return false
}

// Loose reports whether v can be converted to the declared type. Every
// strict match is also a loose match.
func (t TypeTag) Loose(v Value) bool {
	switch t.Kind {
	case TypeBool, TypeInt, TypeFloat:
		switch v.(type) {
		case Bool, Int, Float:
			return true
		}
		return false
	case TypeString, TypeWString:
		_, ok := v.(Str)
		return ok
	case TypeObject:
		if _, ok := v.(Void); ok {
			return t.Nullable
		}
		ref, ok := v.(ObjectRef)
		if !ok || !ref.Valid() || !t.acceptsConstness(ref) {
			return false
		}
		return t.Class == nil || ref.Class().IsA(t.Class)
	case TypeSeq:
		seq, ok := v.(Seq)
		if !ok {
			return false
		}
		elem := t.elem()
		for _, e := range seq {
			if !elem.Loose(e) {
				return false
			}
		}
		return true
	case TypeMap:
		m, ok := v.(Map)
		if !ok {
			return false
		}
		elem := t.elem()
		for _, e := range m {
			if !elem.Loose(e) {
				return false
			}
		}
		return true
	case TypeAny:
		return v != nil
	}
	return false
}

// match returns the score contribution of v: 1 for a strict match, 0 for a
// loose one.
func (t TypeTag) match(v Value) (int, bool) {
	if t.Strict(v) {
		return 1, true
	}
	if t.Loose(v) {
		return 0, true
	}
	return 0, false
}

// A const reference cannot be bound to a non-const parameter, unless the
// parameter receives a copy.
func (t TypeTag) acceptsConstness(ref ObjectRef) bool {
	return !ref.Const || t.Const || t.ByValue
}

// describeValue names the type of v for error messages.
func describeValue(v Value) string {
	if v == nil {
		return "nothing"
	}
	if ref, ok := v.(ObjectRef); ok {
		if !ref.Valid() {
			return "invalid object"
		}
		if ref.Const {
			return "const " + ref.Class().QualifiedName()
		}
		return ref.Class().QualifiedName()
	}
	return v.Kind().String()
}
