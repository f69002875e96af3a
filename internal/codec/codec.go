package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/pavelanni/examstats/internal/model"
)

// Decode stages reported by DecodeError.
const (
	StageDocument = "document"
	StageRecord   = "record"
)

// DecodeError reports stored text that does not have the expected shape.
type DecodeError struct {
	Stage string
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Stage, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Encode renders a snapshot in storage form: Layer 1 with compact names,
// serialized as JSON, then Layer 2 substitution.
func Encode(s model.Snapshot) (string, error) {
	data, err := json.Marshal(EncodeSnapshot(s, Compact))
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}
	text, err := Compress(string(data))
	if err != nil {
		return "", fmt.Errorf("compress snapshot: %w", err)
	}
	return text, nil
}

// Decode is the strict inverse of Encode. Loading stored history goes
// through migrate instead, which tolerates legacy and damaged records.
func Decode(text string) (model.Snapshot, error) {
	doc, err := ParseDocument(text)
	if err != nil {
		return model.Snapshot{}, err
	}
	return DecodeSnapshot(doc, Compact)
}

// ParseDocument reverses Layer 2 and parses the top-level JSON object.
// Numbers are kept as json.Number so epoch milliseconds stay exact.
func ParseDocument(text string) (map[string]any, error) {
	return parseObject(strings.NewReader(Expand(text)))
}

// ParseJSON parses a JSON object that never went through Layer 2, such as
// an exported snapshot.
func ParseJSON(data []byte) (map[string]any, error) {
	return parseObject(bytes.NewReader(data))
}

func parseObject(r io.Reader) (map[string]any, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, &DecodeError{Stage: StageDocument, Err: err}
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, &DecodeError{Stage: StageDocument, Err: errors.New("trailing data after document")}
	}
	doc, ok := v.(map[string]any)
	if !ok {
		return nil, &DecodeError{Stage: StageDocument, Err: fmt.Errorf("top level is %T, want object", v)}
	}
	return doc, nil
}

// MarshalVerbose renders the snapshot with export names, indented.
func MarshalVerbose(s model.Snapshot) ([]byte, error) {
	return json.MarshalIndent(EncodeSnapshot(s, Verbose), "", "  ")
}
