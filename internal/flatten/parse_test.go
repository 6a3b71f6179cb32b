package flatten

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseKeepsDocumentOrder(t *testing.T) {
	v := mustParse(t, `{"zeta":1,"alpha":{"m":true,"b":null},"mid":[1.50,"x",-3e2]}`)

	var keys []string
	for _, m := range v.Members() {
		keys = append(keys, m.Key)
	}
	if diff := cmp.Diff([]string{"zeta", "alpha", "mid"}, keys); diff != "" {
		t.Errorf("member order mismatch (-want +got):\n%s", diff)
	}

	want := Object(
		Member{Key: "zeta", Value: Number("1")},
		Member{Key: "alpha", Value: Object(
			Member{Key: "m", Value: Bool(true)},
			Member{Key: "b", Value: Null()},
		)},
		Member{Key: "mid", Value: Array(Number("1.50"), String("x"), Number("-3e2"))},
	)
	if !v.Equal(want) {
		t.Errorf("parsed value does not match expected tree")
	}
}

func TestParseUnescapesStrings(t *testing.T) {
	v := mustParse(t, `{"s":"café \"q\" a\\b","nl":"x\ny"}`)

	s, _ := v.Lookup("s")
	if got, want := s.Text(), `café "q" a\b`; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	nl, _ := v.Lookup("nl")
	if got, want := nl.Text(), "x\ny"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestParseDuplicateKeysLastValueWins(t *testing.T) {
	v := mustParse(t, `{"a":1,"b":2,"a":3}`)

	members := v.Members()
	if len(members) != 2 {
		t.Fatalf("got %d members, want 2", len(members))
	}
	if members[0].Key != "a" || members[0].Value.Text() != "3" {
		t.Errorf("first member = %s:%s, want a:3", members[0].Key, members[0].Value.Text())
	}
}

func TestParseRejectsInvalidJSON(t *testing.T) {
	for _, doc := range []string{``, `{`, `{"a":}`, `{"a":1} trailing`, `[1,2,,]`} {
		_, err := Parse([]byte(doc), 0)
		if !errors.Is(err, ErrMalformedDocument) {
			t.Errorf("Parse(%q): expected ErrMalformedDocument, got %v", doc, err)
		}
	}
}

func TestParseDepthLimit(t *testing.T) {
	doc := strings.Repeat("[", 20) + strings.Repeat("]", 20)

	if _, err := Parse([]byte(doc), 20); err != nil {
		t.Fatalf("depth 20 should parse with limit 20: %v", err)
	}
	_, err := Parse([]byte(doc), 19)
	if !errors.Is(err, ErrRecursionLimit) {
		t.Fatalf("expected ErrRecursionLimit, got %v", err)
	}
}

func TestParseDepthLimitInsideObject(t *testing.T) {
	doc := `{"a":{"b":{"c":{"d":1}}}}`

	_, err := Parse([]byte(doc), 3)
	if !errors.Is(err, ErrRecursionLimit) {
		t.Fatalf("expected ErrRecursionLimit, got %v", err)
	}
}

func TestParseScalarAccessors(t *testing.T) {
	v := mustParse(t, `{"t":true,"f":false,"n":null,"s":"x","num":7,"arr":[],"obj":{}}`)

	scalar := map[string]bool{"t": true, "f": true, "n": true, "s": true, "num": true, "arr": false, "obj": false}
	for key, want := range scalar {
		got, ok := v.Lookup(key)
		if !ok {
			t.Fatalf("member %q missing", key)
		}
		if got.IsScalar() != want {
			t.Errorf("%q IsScalar = %v, want %v", key, got.IsScalar(), want)
		}
	}
	if tv, _ := v.Lookup("t"); !tv.BoolValue() {
		t.Errorf("t should be true")
	}
	if fv, _ := v.Lookup("f"); fv.BoolValue() {
		t.Errorf("f should be false")
	}
}
