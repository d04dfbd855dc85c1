// Package query implements the minimal query-subscription language: a
// projection over VSS paths with an optional single WHERE comparison,
// compiled once at subscription time against the registry's current data
// types (spec.md §4.6 "Registering a query subscription"). This is
// intentionally small — the spec's Non-goals carve out a full query
// language — but it is wired to a real registry read accessor rather than
// stubbed out, so query subscriptions are fully exercised end to end.
package query

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/sdv-broker/databroker/internal/broker"
	"github.com/sdv-broker/databroker/internal/brokererr"
)

// Op is a WHERE-clause comparison operator.
type Op string

const (
	OpEq  Op = "="
	OpNe  Op = "!="
	OpLt  Op = "<"
	OpLe  Op = "<="
	OpGt  Op = ">"
	OpGe  Op = ">="
)

// Condition is a single WHERE comparison: path OP literal.
type Condition struct {
	Path  string
	Op    Op
	Value broker.Value
}

// CompiledQuery is a query ready for repeated execution against the
// registry. Compile resolves every referenced path to a registered entry
// up front so malformed or unknown paths fail at subscription time, not on
// every notification round.
type CompiledQuery struct {
	Raw        string
	Projection []compiledPath
	Where      *compiledCondition
}

type compiledPath struct {
	path string
	id   broker.ID
}

type compiledCondition struct {
	path string
	id   broker.ID
	op   Op
	lit  string
}

var queryPattern = regexp.MustCompile(`(?is)^\s*SELECT\s+(.+?)(?:\s+WHERE\s+(.+?))?\s*$`)
var conditionPattern = regexp.MustCompile(`^\s*([A-Za-z0-9_.]+)\s*(!=|<=|>=|=|<|>)\s*(.+?)\s*$`)

// Resolver resolves a VSS path to its registered id and data type, as seen
// by the read accessor at compilation time.
type Resolver func(path string) (broker.ID, broker.Kind, bool)

// Compile parses and resolves a query string of the form
// "SELECT path[, path...] [WHERE path op literal]". Resolution failures
// (unknown path, unparseable literal for the target's type) surface as a
// brokererr.CompilationError, per spec.md §4.6.
func Compile(qs string, resolve Resolver) (*CompiledQuery, error) {
	m := queryPattern.FindStringSubmatch(qs)
	if m == nil {
		return nil, brokererr.New(brokererr.CompilationError, "query must be of the form SELECT path[, path...] [WHERE path op literal]")
	}

	rawPaths := strings.Split(m[1], ",")
	cq := &CompiledQuery{Raw: qs}
	for _, p := range rawPaths {
		p = strings.TrimSpace(p)
		if p == "" {
			return nil, brokererr.New(brokererr.CompilationError, "empty projected path in query %q", qs)
		}
		id, _, ok := resolve(p)
		if !ok {
			return nil, brokererr.New(brokererr.CompilationError, "unknown path %q in query %q", p, qs)
		}
		cq.Projection = append(cq.Projection, compiledPath{path: p, id: id})
	}

	if m[2] != "" {
		cm := conditionPattern.FindStringSubmatch(m[2])
		if cm == nil {
			return nil, brokererr.New(brokererr.CompilationError, "malformed WHERE clause %q", m[2])
		}
		path, op, lit := strings.TrimSpace(cm[1]), Op(cm[2]), strings.Trim(strings.TrimSpace(cm[3]), `"'`)
		id, kind, ok := resolve(path)
		if !ok {
			return nil, brokererr.New(brokererr.CompilationError, "unknown path %q in WHERE clause", path)
		}
		if _, err := literalToValue(kind, lit); err != nil {
			return nil, brokererr.Wrap(brokererr.CompilationError, err, "WHERE clause literal %q does not fit %s", lit, path)
		}
		cq.Where = &compiledCondition{path: path, id: id, op: op, lit: lit}
	}

	return cq, nil
}

// ReferencedIDs returns every id the compiled query reads, projection and
// WHERE clause combined, deduplicated.
func (cq *CompiledQuery) ReferencedIDs() []broker.ID {
	seen := map[broker.ID]struct{}{}
	var ids []broker.ID
	add := func(id broker.ID) {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	for _, p := range cq.Projection {
		add(p.id)
	}
	if cq.Where != nil {
		add(cq.Where.id)
	}
	return ids
}

// Field is one (path, value) projection result.
type Field struct {
	Path  string
	Value broker.Value
}

// ValueLookup fetches the current value (or NotAvailable/error) for an id,
// as the executor's view of registry state — normally bound to a read
// accessor so unauthorized paths substitute NotAvailable per spec.md open
// question resolution (see DESIGN.md).
type ValueLookup func(id broker.ID) (broker.Value, error)

// Execute runs the compiled query against lookup and returns the
// projected row, or ok=false if the WHERE clause rejects it.
func (cq *CompiledQuery) Execute(lookup ValueLookup) (fields []Field, ok bool, err error) {
	if cq.Where != nil {
		v, lerr := lookup(cq.Where.id)
		if lerr != nil {
			v = broker.NotAvailable
		}
		match, cerr := evalCondition(cq.Where.op, v, cq.Where.lit)
		if cerr != nil {
			return nil, false, cerr
		}
		if !match {
			return nil, false, nil
		}
	}

	out := make([]Field, 0, len(cq.Projection))
	for _, p := range cq.Projection {
		v, lerr := lookup(p.id)
		if lerr != nil {
			v = broker.NotAvailable
		}
		out = append(out, Field{Path: p.path, Value: v})
	}
	return out, true, nil
}

func evalCondition(op Op, v broker.Value, lit string) (bool, error) {
	if v.Kind == broker.KindNotAvailable {
		return false, nil
	}
	lv, err := literalToValue(v.Kind, lit)
	if err != nil {
		return false, err
	}
	switch op {
	case OpEq:
		return v.Equals(lv), nil
	case OpNe:
		return !v.Equals(lv), nil
	case OpLt:
		return v.LessThan(lv)
	case OpLe:
		lt, err := v.LessThan(lv)
		return lt || v.Equals(lv), err
	case OpGt:
		return v.GreaterThan(lv)
	case OpGe:
		gt, err := v.GreaterThan(lv)
		return gt || v.Equals(lv), err
	default:
		return false, fmt.Errorf("unsupported operator %q", op)
	}
}

func literalToValue(kind broker.Kind, lit string) (broker.Value, error) {
	switch kind {
	case broker.KindString:
		return broker.StringValue(lit), nil
	case broker.KindBool:
		b, err := strconv.ParseBool(lit)
		if err != nil {
			return broker.Value{}, err
		}
		return broker.BoolValue(b), nil
	case broker.KindFloat:
		f, err := strconv.ParseFloat(lit, 32)
		if err != nil {
			return broker.Value{}, err
		}
		return broker.FloatValue(float32(f)), nil
	case broker.KindDouble:
		f, err := strconv.ParseFloat(lit, 64)
		if err != nil {
			return broker.Value{}, err
		}
		return broker.DoubleValue(f), nil
	case broker.KindInt8, broker.KindInt16, broker.KindInt32, broker.KindInt64:
		n, err := strconv.ParseInt(lit, 10, 64)
		if err != nil {
			return broker.Value{}, err
		}
		return broker.Int64Value(n), nil
	case broker.KindUint8, broker.KindUint16, broker.KindUint32, broker.KindUint64:
		n, err := strconv.ParseUint(lit, 10, 64)
		if err != nil {
			return broker.Value{}, err
		}
		return broker.Uint64Value(n), nil
	default:
		return broker.Value{}, fmt.Errorf("type %s is not comparable in a WHERE clause", kind)
	}
}
