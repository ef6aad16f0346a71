package snapshot

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"
)

var (
	ErrNotAnObject = errors.New("snapshot: variables must be a JSON object")
	ErrUnencodable = errors.New("snapshot: value is not JSON-representable")
)

// Snapshot is an insertion-ordered set of named JSON values.
// The zero value is empty and ready to use. Not safe for concurrent use.
type Snapshot struct {
	names  []string
	values map[string]json.RawMessage
}

func New() *Snapshot {
	return &Snapshot{values: make(map[string]json.RawMessage)}
}

// Set encodes value and stores it under name. A repeated name keeps its
// original position and takes the new value.
func (s *Snapshot) Set(name string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrUnencodable, name, err)
	}
	return s.SetRaw(name, raw)
}

// SetRaw stores an already-encoded JSON value under name. Names must be
// valid UTF-8 so that distinct names stay distinct on the wire.
func (s *Snapshot) SetRaw(name string, raw json.RawMessage) error {
	if !utf8.ValidString(name) {
		return fmt.Errorf("%w: name %q is not valid UTF-8", ErrUnencodable, name)
	}
	if !json.Valid(raw) {
		return fmt.Errorf("%w: %q", ErrUnencodable, name)
	}
	if s.values == nil {
		s.values = make(map[string]json.RawMessage)
	}
	if _, ok := s.values[name]; !ok {
		s.names = append(s.names, name)
	}
	cp := make(json.RawMessage, len(raw))
	copy(cp, raw)
	s.values[name] = cp
	return nil
}

func (s *Snapshot) Raw(name string) (json.RawMessage, bool) {
	if s == nil {
		return nil, false
	}
	raw, ok := s.values[name]
	return raw, ok
}

// Value decodes the stored value for name into its generic JSON form.
func (s *Snapshot) Value(name string) (any, bool, error) {
	raw, ok := s.Raw(name)
	if !ok {
		return nil, false, nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, true, err
	}
	return v, true, nil
}

func (s *Snapshot) Has(name string) bool {
	_, ok := s.Raw(name)
	return ok
}

// Names returns variable names in insertion order.
func (s *Snapshot) Names() []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.names)
}

func (s *Snapshot) Reset() {
	s.names = nil
	s.values = make(map[string]json.RawMessage)
}

func (s *Snapshot) Clone() *Snapshot {
	out := New()
	if s == nil {
		return out
	}
	for _, name := range s.names {
		_ = out.SetRaw(name, s.values[name])
	}
	return out
}

func (s *Snapshot) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	if s != nil {
		for i, name := range s.names {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(name)
			if err != nil {
				return nil, err
			}
			buf.Write(key)
			buf.WriteByte(':')
			buf.Write(s.values[name])
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON accepts a JSON object and keeps its key order. Duplicate keys
// resolve to the last value, matching Set.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return ErrNotAnObject
	}
	s.Reset()
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := tok.(string)
		if !ok {
			return ErrNotAnObject
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		if err := s.SetRaw(name, raw); err != nil {
			return err
		}
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}
