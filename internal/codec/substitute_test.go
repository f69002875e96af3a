package codec

import (
	"errors"
	"strings"
	"testing"
)

func TestCompressExpandRoundTrip(t *testing.T) {
	inputs := []string{
		"",
		`{}`,
		`{"s":[]}`,
		`{"q":[{"ck":["A"],"fa":"correct","qn":"1","ua":[{"a":["A"],"hl":false,"ic":true,"t":1}]}]}`,
		`{"n":"label with \"fa\":\"correct\" and true false null inside"}`,
		`{"n":"truefalsenull","x":[true,false,null]}`,
		`{"n":"\u0001 escaped control byte"}`,
		`","":":},{,"`,
	}
	for _, in := range inputs {
		out, err := Compress(in)
		if err != nil {
			t.Fatalf("Compress(%q): %v", in, err)
		}
		if got := Expand(out); got != in {
			t.Errorf("Expand(Compress(%q)) = %q", in, got)
		}
	}
}

func TestCompressRejectsReservedBytes(t *testing.T) {
	_, err := Compress("abc\x02def")
	if !errors.Is(err, ErrReservedByte) {
		t.Errorf("expected ErrReservedByte, got %v", err)
	}
	if _, err := Compress("tab\tand\nnewline"); err != nil {
		t.Errorf("whitespace should not be reserved: %v", err)
	}
}

func TestCompressShortensLiterals(t *testing.T) {
	in := `{"fa":"correct","x":true,"y":false,"z":null}`
	out, err := Compress(in)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	if len(out) >= len(in) {
		t.Errorf("expected shorter output, got %d >= %d", len(out), len(in))
	}
	for _, lit := range []string{"true", "false", "null", `"fa":"correct"`} {
		if strings.Contains(out, lit) {
			t.Errorf("literal %q survived compression: %q", lit, out)
		}
	}
}

func TestSubstitutionTable(t *testing.T) {
	seen := make(map[string]bool)
	for _, s := range substitutions {
		if len(s.token) != 1 || !isReserved(s.token[0]) {
			t.Errorf("token %q for %q is not a single reserved byte", s.token, s.literal)
		}
		if seen[s.token] {
			t.Errorf("token %q used twice", s.token)
		}
		seen[s.token] = true
		for i := 0; i < len(s.literal); i++ {
			if isReserved(s.literal[i]) {
				t.Errorf("literal %q contains a reserved byte", s.literal)
			}
		}
	}
}
