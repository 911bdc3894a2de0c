package rules

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func roundTrip(t *testing.T, e *Expr) *Expr {
	t.Helper()
	data, err := json.Marshal(e)
	require.NoError(t, err)
	var out Expr
	require.NoError(t, json.Unmarshal(data, &out))
	return &out
}

func TestEval_LitAndVar(t *testing.T) {
	rec := map[string]any{"vendor": "Acme GmbH", "totalAmount": 119.0}

	assert.Equal(t, 42.0, Eval(Lit(42.0), rec))
	assert.Equal(t, "Acme GmbH", Eval(Var("vendor"), rec))
	assert.Nil(t, Eval(Var("missing"), rec))
	assert.Nil(t, Eval(nil, rec))
}

func TestEval_Arithmetic(t *testing.T) {
	rec := map[string]any{"totalAmount": 119.0}

	// 119 - 119/1.19 = 19
	tax := Call(OpSub, Var("totalAmount"), Call(OpDiv, Var("totalAmount"), Lit(1.19)))
	assert.InDelta(t, 19.0, Eval(tax, rec).(float64), 0.0001)

	assert.Equal(t, 5.0, Eval(Call(OpAdd, Lit(2.0), Lit(3.0)), rec))
	assert.Equal(t, 6.0, Eval(Call(OpMul, Lit(2.0), Lit(3.0)), rec))
}

func TestEval_DivisionByZeroYieldsNil(t *testing.T) {
	assert.Nil(t, Eval(Call(OpDiv, Lit(1.0), Lit(0.0)), nil))
}

func TestEval_ArithmeticOverMissingVarYieldsNil(t *testing.T) {
	assert.Nil(t, Eval(Call(OpSub, Var("totalAmount"), Lit(1.0)), map[string]any{}))
}

func TestEval_Comparisons(t *testing.T) {
	rec := map[string]any{"n": 5.0}

	assert.Equal(t, true, Eval(Call(OpGt, Var("n"), Lit(4.0)), rec))
	assert.Equal(t, false, Eval(Call(OpLt, Var("n"), Lit(4.0)), rec))
	assert.Equal(t, true, Eval(Call(OpGe, Var("n"), Lit(5.0)), rec))
	assert.Equal(t, true, Eval(Call(OpLe, Var("n"), Lit(5.0)), rec))
}

func TestEval_LooseNumericEquality(t *testing.T) {
	// A rule written against an int literal matches a float record value.
	rec := map[string]any{"n": 119.0}
	assert.Equal(t, true, Eval(Call(OpEq, Var("n"), Lit(119)), rec))
	assert.Equal(t, false, Eval(Call(OpNe, Var("n"), Lit(119)), rec))
}

func TestEval_Connectives(t *testing.T) {
	rec := map[string]any{"a": true, "b": false}

	assert.Equal(t, true, Eval(Call(OpAnd, Var("a"), Lit(true)), rec))
	assert.Equal(t, false, Eval(Call(OpAnd, Var("a"), Var("b")), rec))
	assert.Equal(t, true, Eval(Call(OpOr, Var("b"), Var("a")), rec))
	assert.Equal(t, true, Eval(Call(OpNot, Var("b")), rec))
	// zero-arg and is vacuously false, not true
	assert.Equal(t, false, Eval(Call(OpAnd), rec))
}

func TestEval_If(t *testing.T) {
	rec := map[string]any{"taxAmount": 0.0}

	e := Call(OpIf, Call(OpEmpty, Var("taxAmount")), Lit("then"), Lit("else"))
	assert.Equal(t, "then", Eval(e, rec))

	rec["taxAmount"] = 19.0
	assert.Equal(t, "else", Eval(e, rec))
}

func TestEval_Empty(t *testing.T) {
	rec := map[string]any{
		"zero":  0.0,
		"blank": "  ",
		"set":   "x",
	}

	assert.Equal(t, true, Eval(Call(OpEmpty, Var("zero")), rec))
	assert.Equal(t, true, Eval(Call(OpEmpty, Var("blank")), rec))
	assert.Equal(t, true, Eval(Call(OpEmpty, Var("missing")), rec))
	assert.Equal(t, false, Eval(Call(OpEmpty, Var("set")), rec))
}

func TestEval_UnknownOpYieldsNil(t *testing.T) {
	assert.Nil(t, Eval(&Expr{Op: "frobnicate"}, nil))
}

func TestEval_Contains(t *testing.T) {
	rec := map[string]any{"rawText": "Gesamtbetrag inkl. MwSt: 119,00 EUR"}

	assert.Equal(t, true, Eval(Call(OpContains, Var("rawText"), Lit("INKL")), rec))
	assert.Equal(t, false, Eval(Call(OpContains, Var("rawText"), Lit("netto")), rec))
	assert.Equal(t, false, Eval(Call(OpContains, Var("missing"), Lit("x")), rec))
}

func TestEvalBool_FailureIsFalse(t *testing.T) {
	assert.False(t, EvalBool(Call(OpDiv, Lit(1.0), Lit(0.0)), nil))
	assert.False(t, EvalBool(nil, nil))
	assert.True(t, EvalBool(Lit(true), nil))
}

func TestEval_JSONRoundTripPreservesSemantics(t *testing.T) {
	// Rules live in the store as JSON; a reloaded rule must evaluate the
	// same as the original.
	e := Call(OpIf,
		Call(OpEmpty, Var("taxAmount")),
		Call(OpSub, Var("totalAmount"), Call(OpDiv, Var("totalAmount"), Lit(1.19))),
		Var("taxAmount"))
	rec := map[string]any{"taxAmount": 0.0, "totalAmount": 119.0}

	reloaded := roundTrip(t, e)
	assert.InDelta(t, 19.0, Eval(reloaded, rec).(float64), 0.0001)
}
