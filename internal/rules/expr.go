package rules

// Op identifies one node kind of the rule expression language. The set is
// closed: the evaluator rejects anything else by returning no result.
type Op string

const (
	// Value nodes.
	OpLit Op = "lit" // literal value
	OpVar Op = "var" // field reference into the invoice record

	// Connectives.
	OpAnd Op = "and"
	OpOr  Op = "or"
	OpNot Op = "not"
	OpIf  Op = "if" // if(cond, then, else)

	// Comparisons.
	OpEq Op = "eq"
	OpNe Op = "ne"
	OpGt Op = "gt"
	OpGe Op = "ge"
	OpLt Op = "lt"
	OpLe Op = "le"

	// Arithmetic.
	OpAdd Op = "add"
	OpSub Op = "sub"
	OpMul Op = "mul"
	OpDiv Op = "div"

	// Domain primitives.
	OpEmpty        Op = "empty"        // empty(var): field missing, nil, zero or blank
	OpRegexExtract Op = "regexExtract" // regexExtract(pattern, text, group)
	OpRegexTest    Op = "regexTest"    // regexTest(pattern, text)
	OpMapLookup    Op = "mapLookup"    // mapLookup(key) against the node's table
	OpDateISO      Op = "dateISO"      // normalize a date string to YYYY-MM-DD
	OpDateGerman   Op = "dateGerman"   // normalize a date string to DD.MM.YYYY
	OpNumber       Op = "number"       // first numeric literal in a string
	OpCurrency     Op = "currency"     // first known currency code in a string
	OpContains     Op = "contains"     // case-insensitive substring containment
)

// MapEntry is one ordered row of a mapLookup table. Order matters: lookup
// falls back to substring containment and the first matching key wins.
type MapEntry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Expr is one node of a rule expression. Expressions are stored as JSON in
// vendor and correction memories, so every field is serializable.
type Expr struct {
	Op    Op         `json:"op"`
	Args  []*Expr    `json:"args,omitempty"`
	Value any        `json:"value,omitempty"` // OpLit only
	Name  string     `json:"name,omitempty"`  // OpVar only
	Table []MapEntry `json:"table,omitempty"` // OpMapLookup only
}

// Lit builds a literal node.
func Lit(v any) *Expr { return &Expr{Op: OpLit, Value: v} }

// Var builds a field-reference node.
func Var(name string) *Expr { return &Expr{Op: OpVar, Name: name} }

// Call builds an operator node over the given arguments.
func Call(op Op, args ...*Expr) *Expr { return &Expr{Op: op, Args: args} }

// Lookup builds a mapLookup node with an ordered table and a key expression.
func Lookup(table []MapEntry, key *Expr) *Expr {
	return &Expr{Op: OpMapLookup, Args: []*Expr{key}, Table: table}
}
