package dispatch

import (
	"sort"
	"strings"
)

type candidate struct {
	method *MethodDescriptor
	score  int
}

type rejection struct {
	method *MethodDescriptor
	result BindResult
}

// Resolve picks exactly one method of set for req. It has no side effects;
// the same registry and request always produce the same answer.
func Resolve(class *ClassDescriptor, set *OverloadSet, req *CallRequest) (*MethodDescriptor, error) {
	var candidates []candidate
	var rejections []rejection

	for _, m := range set.Methods {
		switch {
		case m.signal:
			rejections = append(rejections, rejection{m, rejected(rejectExcluded, "is a signal, subscribe to it instead")})
			continue
		case m.callback:
			rejections = append(rejections, rejection{m, rejected(rejectExcluded, "is a callback and cannot be called directly")})
			continue
		case m.protected && !req.AllowProtected:
			rejections = append(rejections, rejection{m, rejected(rejectExcluded, "is protected")})
			continue
		}

		result := Bind(m, req)
		if !result.Compatible {
			rejections = append(rejections, rejection{m, result})
			continue
		}
		candidates = append(candidates, candidate{method: m, score: result.Score})
	}

	name := qualifiedMethodName(class, set.Name)

	var selected *MethodDescriptor
	switch len(candidates) {
	case 0:
		return nil, noMatchError(name, req, rejections)
	case 1:
		selected = candidates[0].method
	default:
		best := refine(candidates, req)
		if len(best) > 1 {
			return nil, ambiguousError(name, req, best)
		}
		selected = best[0].method
	}

	if req.ConstReceiver && !selected.static && !selected.isConst {
		return nil, newDispatchError(ConstViolation, "cannot call non-const method %s on a const reference", name)
	}
	// Reached through an instance, a constructor replaces the object in place.
	if req.ConstReceiver && selected.special == SpecialConstructor {
		return nil, newDispatchError(ConstViolation, "cannot construct %s on a const reference", name)
	}

	return selected, nil
}

// refine narrows the candidates down by score, then by constness matching
// the receiver, then by the number of parameters.
func refine(candidates []candidate, req *CallRequest) []candidate {
	bestScore := candidates[0].score
	for _, c := range candidates[1:] {
		if c.score > bestScore {
			bestScore = c.score
		}
	}

	var best []candidate
	for _, c := range candidates {
		if c.score == bestScore {
			best = append(best, c)
		}
	}

	if len(best) > 1 {
		var constMatching []candidate
		for _, c := range best {
			if c.method.isConst == req.ConstReceiver {
				constMatching = append(constMatching, c)
			}
		}
		if len(constMatching) > 0 {
			best = constMatching
		}
	}

	if len(best) > 1 {
		fewest := len(best[0].method.params)
		for _, c := range best[1:] {
			if n := len(c.method.params); n < fewest {
				fewest = n
			}
		}
		var shortest []candidate
		for _, c := range best {
			if len(c.method.params) == fewest {
				shortest = append(shortest, c)
			}
		}
		best = shortest
	}

	return best
}

func qualifiedMethodName(class *ClassDescriptor, name string) string {
	if class == nil {
		return name
	}
	return class.QualifiedName() + "." + name
}

func noMatchError(name string, req *CallRequest, rejections []rejection) error {
	kind := UnknownKeyword
	if len(rejections) == 0 {
		kind = NoMatch
	}
	lines := make([]string, len(rejections))
	for i, r := range rejections {
		if r.result.kind != rejectUnknownKeyword {
			kind = NoMatch
		}
		lines[i] = "  " + r.method.Signature() + ": " + r.result.Reason
	}
	sort.Strings(lines)

	if kind == UnknownKeyword {
		return newDispatchError(kind, "no overload of %s accepts the keyword arguments %s, candidates are:\n%s", name, req, strings.Join(lines, "\n"))
	}
	return newDispatchError(kind, "no overload of %s matches the arguments %s, candidates are:\n%s", name, req, strings.Join(lines, "\n"))
}

func ambiguousError(name string, req *CallRequest, tied []candidate) error {
	lines := make([]string, len(tied))
	for i, c := range tied {
		lines[i] = "  " + c.method.Signature()
	}
	sort.Strings(lines)
	return newDispatchError(Ambiguous, "ambiguous call of %s with arguments %s, candidates are:\n%s", name, req, strings.Join(lines, "\n"))
}
