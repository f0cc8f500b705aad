package p100protocol

import (
	"errors"
	"testing"
)

// result returns the delivered result, or fails if none was delivered.
func result(t *testing.T, p *pendingQuery) queryResult {
	t.Helper()
	select {
	case r := <-p.done:
		return r
	default:
		t.Fatal("query not resolved")
		return queryResult{}
	}
}

func assertOpen(t *testing.T, p *pendingQuery) {
	t.Helper()
	select {
	case r := <-p.done:
		t.Fatalf("query resolved early with %+v", r)
	default:
	}
}

func TestPendingQuerySimple(t *testing.T) {
	p := newPendingQuery("POWER?")

	// A push for another token sharing the prefix must not match.
	if p.offer("!POWERZONE2(0)") {
		t.Error("POWERZONE2 consumed by POWER?")
	}
	if p.offer("!ZVOL(-200)") {
		t.Error("unrelated line consumed")
	}
	assertOpen(t, p)

	if !p.offer("!POWER(1)") {
		t.Fatal("matching line not consumed")
	}
	if r := result(t, p); r.response != "!POWER(1)" || r.err != nil {
		t.Errorf("got %+v", r)
	}
	if p.offer("!POWER(0)") {
		t.Error("line consumed after resolution")
	}
}

func TestPendingQueryAggregate(t *testing.T) {
	p := newPendingQuery("SRCS?")

	// A source push before the header is not part of the list.
	if p.offer(`!SRC(3)"TV"`) {
		t.Error("entry before header consumed")
	}
	if !p.offer("!SRCCOUNT(2)") {
		t.Fatal("header not consumed")
	}
	if !p.offer(`!SRC(0)"A"`) {
		t.Fatal("entry not consumed")
	}
	if p.offer("!VOL(-300)") {
		t.Error("unrelated line consumed while accumulating")
	}
	assertOpen(t, p)
	if !p.offer(`!SRC(1)"B"`) {
		t.Fatal("entry not consumed")
	}

	want := "!SRCCOUNT(2)\n!SRC(0)\"A\"\n!SRC(1)\"B\""
	if r := result(t, p); r.response != want || r.err != nil {
		t.Errorf("got %+v, want %q", r, want)
	}
}

func TestPendingQueryAggregateEmpty(t *testing.T) {
	p := newPendingQuery("AUDMODEL?")
	if !p.offer("!AUDMODECOUNT(0)") {
		t.Fatal("header not consumed")
	}
	if r := result(t, p); r.response != "!AUDMODECOUNT(0)" {
		t.Errorf("got %+v", r)
	}
}

func TestPendingQueryAggregateRestart(t *testing.T) {
	p := newPendingQuery("SRCS?")
	p.offer("!SRCCOUNT(2)")
	p.offer(`!SRC(0)"stale"`)
	p.offer("!SRCCOUNT(1)")
	p.offer(`!SRC(0)"fresh"`)

	if r := result(t, p); r.response != "!SRCCOUNT(1)\n!SRC(0)\"fresh\"" {
		t.Errorf("got %+v", r)
	}
}

func TestPendingQueryBadHeader(t *testing.T) {
	p := newPendingQuery("SRCS?")
	if !p.offer("!SRCCOUNT(x)") {
		t.Fatal("header not consumed")
	}
	if r := result(t, p); !errors.Is(r.err, ErrResponseFormat) {
		t.Errorf("expected ErrResponseFormat, got %+v", r)
	}
}

func TestPendingQueryCompleteOnce(t *testing.T) {
	p := newPendingQuery("VOL?")
	p.complete(queryResult{err: NewConnectionError("disconnected", nil)})
	p.complete(queryResult{response: "!VOL(0)"})
	r := result(t, p)
	var ce *ConnectionError
	if !errors.As(r.err, &ce) {
		t.Errorf("expected first result to win, got %+v", r)
	}
	assertOpen(t, p)
}

func TestLineToken(t *testing.T) {
	tests := map[string]string{
		"!SRCCOUNT(3)":  "SRCCOUNT",
		`!SRC(0)"A(1)"`: "SRC",
		"#VOL?":         "",
		"!()":           "",
		"!POWER":        "",
	}
	for line, want := range tests {
		if got := lineToken(line); got != want {
			t.Errorf("lineToken(%q) = %q, want %q", line, got, want)
		}
	}
}
