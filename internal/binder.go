package dispatch

import (
	"fmt"
	"sort"
	"strings"
)

// CallRequest is one call as seen by the binder and the resolver.
type CallRequest struct {
	Positional []Value
	// Keyword is nil when the call passed no keyword arguments.
	Keyword        map[string]Value
	ConstReceiver  bool
	HasBlock       bool
	AllowProtected bool
}

func (r *CallRequest) keywordNames() []string {
	names := make([]string, 0, len(r.Keyword))
	for name := range r.Keyword {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// String renders the arguments for error messages.
func (r *CallRequest) String() string {
	parts := make([]string, 0, len(r.Positional)+len(r.Keyword))
	for _, v := range r.Positional {
		parts = append(parts, describeValue(v))
	}
	for _, name := range r.keywordNames() {
		parts = append(parts, name+"="+describeValue(r.Keyword[name]))
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

type rejectKind uint8

const (
	rejectNone rejectKind = iota
	rejectArgCount
	rejectUnknownKeyword
	rejectType
	rejectExcluded
)

// BindResult is the binder's verdict for one method.
type BindResult struct {
	Compatible bool
	Score      int
	Reason     string
	kind       rejectKind
}

func rejected(kind rejectKind, format string, args ...any) BindResult {
	return BindResult{kind: kind, Reason: fmt.Sprintf(format, args...)}
}

// Bind checks whether m accepts the positional and keyword arguments of req
// and scores the match: every strictly matching argument adds one.
func Bind(m *MethodDescriptor, req *CallRequest) BindResult {
	nargs := len(m.params)
	npos := len(req.Positional)
	nkw := len(req.Keyword)

	if npos > nargs {
		return rejected(rejectArgCount, "too many positional arguments (%d given, takes %d)", npos, nargs)
	}

	if npos == nargs && nkw > 0 {
		return rejected(rejectUnknownKeyword, "unknown keyword parameter(s): %s", strings.Join(req.keywordNames(), ", "))
	}

	if npos < nargs {
		consumed := map[string]bool{}
		var missing []string
		for i := npos; i < nargs; i++ {
			p := m.params[i]
			if _, ok := req.Keyword[p.Name]; ok {
				consumed[p.Name] = true
			} else if !p.HasDefault {
				missing = append(missing, p.Name)
			}
		}

		if len(consumed) < nkw {
			var unknown []string
			for _, name := range req.keywordNames() {
				if !consumed[name] {
					unknown = append(unknown, name)
				}
			}
			return rejected(rejectUnknownKeyword, "unknown keyword parameter(s): %s", strings.Join(unknown, ", "))
		}

		if len(missing) > 0 {
			return rejected(rejectArgCount, "missing argument(s): %s", strings.Join(missing, ", "))
		}
	}

	score := 0
	for i, v := range req.Positional {
		p := m.params[i]
		s, ok := p.Type.match(v)
		if !ok {
			return rejected(rejectType, "argument %d (%s): expected %s, got %s", i+1, p.Name, p.Type, describeValue(v))
		}
		score += s
	}
	for i := npos; i < nargs; i++ {
		p := m.params[i]
		v, ok := req.Keyword[p.Name]
		if !ok {
			continue
		}
		s, ok := p.Type.match(v)
		if !ok {
			return rejected(rejectType, "argument %s: expected %s, got %s", p.Name, p.Type, describeValue(v))
		}
		score += s
	}

	return BindResult{Compatible: true, Score: score}
}

// bindArguments lines the supplied arguments up with the parameters of m,
// filling omitted parameters with fresh copies of their defaults. m must
// have been accepted by Bind.
func bindArguments(m *MethodDescriptor, req *CallRequest) []Value {
	args := make([]Value, len(m.params))
	for i, p := range m.params {
		switch {
		case i < len(req.Positional):
			args[i] = req.Positional[i]
		default:
			if v, ok := req.Keyword[p.Name]; ok {
				args[i] = v
			} else {
				args[i] = Clone(p.Default)
			}
		}
	}
	return args
}
