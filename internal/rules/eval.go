package rules

import (
	"strings"
)

// Eval interprets an expression against a flat invoice record. Evaluation is
// side-effect-free and fails soft: malformed patterns, missing variables, type
// mismatches and division by zero all yield nil, never a panic or an error.
// A nil result means "this rule has nothing to say about this invoice".
func Eval(e *Expr, rec map[string]any) any {
	if e == nil {
		return nil
	}
	switch e.Op {
	case OpLit:
		return e.Value

	case OpVar:
		v, ok := rec[e.Name]
		if !ok {
			return nil
		}
		return v

	case OpAnd:
		for _, a := range e.Args {
			if !truthy(Eval(a, rec)) {
				return false
			}
		}
		return len(e.Args) > 0

	case OpOr:
		for _, a := range e.Args {
			if truthy(Eval(a, rec)) {
				return true
			}
		}
		return false

	case OpNot:
		if len(e.Args) != 1 {
			return nil
		}
		return !truthy(Eval(e.Args[0], rec))

	case OpIf:
		if len(e.Args) != 3 {
			return nil
		}
		if truthy(Eval(e.Args[0], rec)) {
			return Eval(e.Args[1], rec)
		}
		return Eval(e.Args[2], rec)

	case OpEq, OpNe:
		if len(e.Args) != 2 {
			return nil
		}
		eq := looseEqual(Eval(e.Args[0], rec), Eval(e.Args[1], rec))
		if e.Op == OpNe {
			return !eq
		}
		return eq

	case OpGt, OpGe, OpLt, OpLe:
		if len(e.Args) != 2 {
			return nil
		}
		a, aok := toFloat(Eval(e.Args[0], rec))
		b, bok := toFloat(Eval(e.Args[1], rec))
		if !aok || !bok {
			return nil
		}
		switch e.Op {
		case OpGt:
			return a > b
		case OpGe:
			return a >= b
		case OpLt:
			return a < b
		default:
			return a <= b
		}

	case OpAdd, OpSub, OpMul, OpDiv:
		if len(e.Args) != 2 {
			return nil
		}
		a, aok := toFloat(Eval(e.Args[0], rec))
		b, bok := toFloat(Eval(e.Args[1], rec))
		if !aok || !bok {
			return nil
		}
		switch e.Op {
		case OpAdd:
			return a + b
		case OpSub:
			return a - b
		case OpMul:
			return a * b
		default:
			if b == 0 {
				return nil
			}
			return a / b
		}

	case OpEmpty:
		if len(e.Args) != 1 {
			return nil
		}
		return isEmpty(Eval(e.Args[0], rec))

	case OpRegexExtract:
		if len(e.Args) != 3 {
			return nil
		}
		pattern, _ := Eval(e.Args[0], rec).(string)
		text, ok := toString(Eval(e.Args[1], rec))
		if !ok {
			return nil
		}
		group, gok := toFloat(Eval(e.Args[2], rec))
		if !gok {
			return nil
		}
		return regexExtract(pattern, text, int(group))

	case OpRegexTest:
		if len(e.Args) != 2 {
			return nil
		}
		pattern, _ := Eval(e.Args[0], rec).(string)
		text, ok := toString(Eval(e.Args[1], rec))
		if !ok {
			return false
		}
		return regexTest(pattern, text)

	case OpMapLookup:
		if len(e.Args) != 1 {
			return nil
		}
		key, ok := toString(Eval(e.Args[0], rec))
		if !ok {
			return nil
		}
		return mapLookup(e.Table, key)

	case OpDateISO:
		if len(e.Args) != 1 {
			return nil
		}
		s, ok := toString(Eval(e.Args[0], rec))
		if !ok {
			return nil
		}
		return normalizeDateISO(s)

	case OpDateGerman:
		if len(e.Args) != 1 {
			return nil
		}
		s, ok := toString(Eval(e.Args[0], rec))
		if !ok {
			return nil
		}
		return normalizeDateGerman(s)

	case OpNumber:
		if len(e.Args) != 1 {
			return nil
		}
		s, ok := toString(Eval(e.Args[0], rec))
		if !ok {
			return nil
		}
		return extractNumber(s)

	case OpCurrency:
		if len(e.Args) != 1 {
			return nil
		}
		s, ok := toString(Eval(e.Args[0], rec))
		if !ok {
			return nil
		}
		return extractCurrency(s)

	case OpContains:
		if len(e.Args) != 2 {
			return nil
		}
		text, tok := toString(Eval(e.Args[0], rec))
		sub, sok := toString(Eval(e.Args[1], rec))
		if !tok || !sok {
			return false
		}
		return strings.Contains(strings.ToLower(text), strings.ToLower(sub))
	}
	return nil
}

// EvalBool evaluates a trigger expression; any failure counts as false.
func EvalBool(e *Expr, rec map[string]any) bool {
	return truthy(Eval(e, rec))
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	default:
		if f, ok := toFloat(v); ok {
			return f != 0
		}
		return true
	}
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case bool:
		return !t
	default:
		if f, ok := toFloat(v); ok {
			return f == 0
		}
		return false
	}
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case *float64:
		if t == nil {
			return 0, false
		}
		return *t, true
	default:
		return 0, false
	}
}

func toString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

// looseEqual compares numbers numerically and everything else by string
// identity, so a rule written against "119" still matches 119.0.
func looseEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return af == bf
		}
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return as == bs
	}
	return a == b
}
