package codec

import (
	"errors"
	"strings"
)

// ErrReservedByte is returned by Compress when the input already contains a
// byte from the token space. encoding/json never emits raw control bytes,
// so this only happens for text that did not come from Layer 1.
var ErrReservedByte = errors.New("text contains a reserved token byte")

type substitution struct {
	literal string
	token   string
}

// Tokens are raw control bytes: JSON escapes them inside strings and never
// uses them as syntax, so they cannot collide with encoded data. NUL, tab,
// newline and carriage return are left out of the token space.
//
// Encoding applies the table top to bottom; decoding applies it bottom to
// top. Never reorder or reuse entries: stored data depends on them.
var substitutions = []substitution{
	{`"fa":"incorrect"`, "\x01"},
	{`"fa":"correct"`, "\x02"},
	{`"fa":"preview"`, "\x03"},
	{`"fa":"unset"`, "\x04"},
	{`[{"a":["`, "\x05"},
	{`{"a":["`, "\x06"},
	{`"],"hl":`, "\x07"},
	{`,"ic":`, "\x08"},
	{`,"t":`, "\x0b"},
	{`{"ck":["`, "\x0c"},
	{`,"qn":"`, "\x0e"},
	{`,"ua":`, "\x0f"},
	{`}],"`, "\x10"},
	{`"],"`, "\x11"},
	{`","`, "\x12"},
	{`":"`, "\x13"},
	{`},{`, "\x14"},
	{`":`, "\x15"},
	{`,"`, "\x16"},
	{`true`, "\x17"},
	{`false`, "\x18"},
	{`null`, "\x19"},
}

func isReserved(b byte) bool {
	return b < 0x20 && b != '\t' && b != '\n' && b != '\r'
}

// Compress applies the substitution table.
func Compress(text string) (string, error) {
	for i := 0; i < len(text); i++ {
		if isReserved(text[i]) {
			return "", ErrReservedByte
		}
	}
	for _, s := range substitutions {
		text = strings.ReplaceAll(text, s.literal, s.token)
	}
	return text, nil
}

// Expand reverses Compress. Text written before substitution existed
// contains no tokens and passes through unchanged.
func Expand(text string) string {
	for i := len(substitutions) - 1; i >= 0; i-- {
		s := substitutions[i]
		text = strings.ReplaceAll(text, s.token, s.literal)
	}
	return text
}
