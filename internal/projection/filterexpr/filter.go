// Package filterexpr compiles an optional CEL expression used to decide,
// per envelope, whether the projection's handler should run at all. A
// filtered envelope still advances the offset; it is simply never handed to
// the handler.
package filterexpr

import (
	"strings"
	"time"

	"github.com/google/cel-go/cel"

	"github.com/leviramsey/sliceoffset/internal/validation"
)

// Filter wraps a compiled CEL program. A zero Filter (as returned for an
// empty expression) always evaluates true.
type Filter struct {
	prog    cel.Program
	enabled bool
}

// Compile parses and type-checks expr against the envelope variables: pid
// (string), seq_nr (int), origin (string: "Live"|"Backtracking"|"PubSub"),
// filtered (bool), and now_ms (int, wall-clock at evaluation time, for
// windowed filters). An empty expression yields a Filter that always
// passes.
func Compile(expr string) (Filter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return Filter{enabled: false}, nil
	}
	env, err := cel.NewEnv(
		cel.Variable("pid", cel.StringType),
		cel.Variable("seq_nr", cel.IntType),
		cel.Variable("origin", cel.StringType),
		cel.Variable("filtered", cel.BoolType),
		cel.Variable("now_ms", cel.IntType),
	)
	if err != nil {
		return Filter{}, err
	}
	ast, iss := env.Parse(expr)
	if iss != nil && iss.Err() != nil {
		return Filter{}, iss.Err()
	}
	checked, iss2 := env.Check(ast)
	if iss2 != nil && iss2.Err() != nil {
		return Filter{}, iss2.Err()
	}
	prog, err := env.Program(checked)
	if err != nil {
		return Filter{}, err
	}
	return Filter{prog: prog, enabled: true}, nil
}

// Eval reports whether the handler should run for e. An evaluation error
// or a non-bool result is treated as "do not run the handler" — the offset
// still advances, matching the filtered-envelope contract.
func (f Filter) Eval(e validation.Envelope) bool {
	if !f.enabled {
		return true
	}
	out, _, err := f.prog.Eval(map[string]any{
		"pid":      e.Pid,
		"seq_nr":   int64(e.SeqNr),
		"origin":   e.Origin.String(),
		"filtered": e.Filtered,
		"now_ms":   time.Now().UnixMilli(),
	})
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}
