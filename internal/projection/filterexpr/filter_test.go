package filterexpr

import (
	"testing"

	"github.com/leviramsey/sliceoffset/internal/validation"
)

func TestEmptyExpressionAlwaysPasses(t *testing.T) {
	f, err := Compile("")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if !f.Eval(validation.Envelope{Pid: "p1"}) {
		t.Fatalf("empty filter should always pass")
	}
}

func TestFilterOnOrigin(t *testing.T) {
	f, err := Compile(`origin == "Backtracking"`)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if f.Eval(validation.Envelope{Pid: "p1", Origin: validation.Live}) {
		t.Fatalf("Live origin should not pass")
	}
	if !f.Eval(validation.Envelope{Pid: "p1", Origin: validation.Backtracking}) {
		t.Fatalf("Backtracking origin should pass")
	}
}

func TestFilterOnPidPrefix(t *testing.T) {
	f, err := Compile(`pid.startsWith("cart-")`)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if !f.Eval(validation.Envelope{Pid: "cart-42"}) {
		t.Fatalf("cart-42 should pass")
	}
	if f.Eval(validation.Envelope{Pid: "order-42"}) {
		t.Fatalf("order-42 should not pass")
	}
}

func TestCompileRejectsInvalidExpression(t *testing.T) {
	if _, err := Compile("pid +"); err == nil {
		t.Fatalf("expected parse error for malformed expression")
	}
}
