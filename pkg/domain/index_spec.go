package domain

import (
	"bytes"
	"encoding/json"
	"io"
	"strconv"
	"strings"

	"github.com/m-mizutani/goerr/v2"
)

// IndexDirection is the sort order of one indexed field
type IndexDirection int

const (
	Ascending  IndexDirection = 1
	Descending IndexDirection = -1
)

// IndexKey is one (field, direction) pair of an index key document
type IndexKey struct {
	Field     string
	Direction IndexDirection
}

// IndexSpec is a validated, ordered index key document.
// The zero value is not a valid spec; build one with ParseIndexSpec or NewIndexSpec.
type IndexSpec struct {
	keys []IndexKey
}

// IndexOptions are passed to the database alongside the spec
type IndexOptions struct {
	Unique     bool `json:"unique"`
	Background bool `json:"background"`
}

// ErrInvalidIndexSpec is the message carried by every spec validation error
const ErrInvalidIndexSpec = "invalid index spec"

func invalidSpec(reason string, opts ...goerr.Option) error {
	opts = append(opts, goerr.V("reason", reason), goerr.T(TagValidation))
	return goerr.New(ErrInvalidIndexSpec, opts...)
}

// NewIndexSpec validates keys and returns a spec holding a copy of them
func NewIndexSpec(keys ...IndexKey) (IndexSpec, error) {
	if len(keys) == 0 {
		return IndexSpec{}, invalidSpec("spec has no keys")
	}
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if err := validateKey(k.Field); err != nil {
			return IndexSpec{}, err
		}
		if k.Direction != Ascending && k.Direction != Descending {
			return IndexSpec{}, invalidSpec("direction must be 1 or -1", goerr.V("field", k.Field))
		}
		if _, dup := seen[k.Field]; dup {
			return IndexSpec{}, invalidSpec("duplicate field", goerr.V("field", k.Field))
		}
		seen[k.Field] = struct{}{}
	}
	return IndexSpec{keys: append([]IndexKey(nil), keys...)}, nil
}

func validateKey(field string) error {
	if field == "" {
		return invalidSpec("field name is empty")
	}
	if field == "_id" {
		return invalidSpec("cannot index _id", goerr.V("field", field))
	}
	return nil
}

// ParseIndexSpec parses a JSON object of field -> 1|-1 into an IndexSpec.
// Field order is kept. A repeated field keeps its first position and its last value;
// only the values that survive are validated.
func ParseIndexSpec(raw []byte) (IndexSpec, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return IndexSpec{}, invalidSpec("spec is missing")
	}

	dec := json.NewDecoder(bytes.NewReader(raw))

	tok, err := dec.Token()
	if err != nil {
		return IndexSpec{}, invalidSpec("spec is not valid JSON")
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return IndexSpec{}, invalidSpec("spec is not an object")
	}

	var fields []string
	values := make(map[string]json.RawMessage)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return IndexSpec{}, invalidSpec("spec is not valid JSON")
		}
		field, ok := tok.(string)
		if !ok {
			return IndexSpec{}, invalidSpec("field name is not a string")
		}

		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return IndexSpec{}, invalidSpec("spec is not valid JSON")
		}
		if _, seen := values[field]; !seen {
			fields = append(fields, field)
		}
		values[field] = value
	}

	if _, err := dec.Token(); err != nil {
		return IndexSpec{}, invalidSpec("spec is not valid JSON")
	}
	if _, err := dec.Token(); err != io.EOF {
		return IndexSpec{}, invalidSpec("trailing data after spec")
	}
	if len(fields) == 0 {
		return IndexSpec{}, invalidSpec("spec has no keys")
	}

	keys := make([]IndexKey, 0, len(fields))
	for _, field := range fields {
		if err := validateKey(field); err != nil {
			return IndexSpec{}, err
		}
		dir, err := parseDirection(values[field])
		if err != nil {
			return IndexSpec{}, invalidSpec(err.Error(), goerr.V("field", field))
		}
		keys = append(keys, IndexKey{Field: field, Direction: dir})
	}
	return IndexSpec{keys: keys}, nil
}

func parseDirection(raw json.RawMessage) (IndexDirection, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return 0, goerr.Wrap(err, "direction is not valid JSON")
	}
	n, ok := v.(json.Number)
	if !ok {
		return 0, goerr.New("direction must be 1 or -1")
	}
	f, err := n.Float64()
	if err != nil {
		return 0, goerr.New("direction must be 1 or -1")
	}
	switch f {
	case 1:
		return Ascending, nil
	case -1:
		return Descending, nil
	}
	return 0, goerr.New("direction must be 1 or -1")
}

// Keys returns a copy of the ordered index keys
func (s IndexSpec) Keys() []IndexKey {
	return append([]IndexKey(nil), s.keys...)
}

// Len returns the number of indexed fields
func (s IndexSpec) Len() int {
	return len(s.keys)
}

// Name returns the conventional index name, e.g. "email_1" or "a_1_b_-1"
func (s IndexSpec) Name() string {
	parts := make([]string, 0, len(s.keys)*2)
	for _, k := range s.keys {
		parts = append(parts, k.Field, strconv.Itoa(int(k.Direction)))
	}
	return strings.Join(parts, "_")
}

// Equal reports whether both specs index the same fields in the same order and direction
func (s IndexSpec) Equal(other IndexSpec) bool {
	if len(s.keys) != len(other.keys) {
		return false
	}
	for i := range s.keys {
		if s.keys[i] != other.keys[i] {
			return false
		}
	}
	return true
}

// MarshalJSON encodes the spec as an ordered JSON object
func (s IndexSpec) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range s.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(k.Field)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		buf.WriteString(strconv.Itoa(int(k.Direction)))
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
