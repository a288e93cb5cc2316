// Package state implements the shared key/value bag that journey nodes read
// and write while a single authentication attempt is in flight.
//
// Values are held as JSON documents so the bag can be persisted between
// suspend points without losing type information. Insertion order is kept
// across JSON round trips.
package state

import (
	"bytes"
	"encoding/json"

	"github.com/cockroachdb/errors"
)

// Key names a shared-state entry.
type Key string

// Well-known keys exchanged between nodes.
const (
	OrgID                  Key = "org_id"                       // string, written by the profiler node
	SessionID              Key = "session_id"                   // string, written by the profiler node
	SessionQueryResponse   Key = "session_query_response"       // object, written by the session query node
	RequestID              Key = "request_id"                   // string, written by the session query node
	UpdateResponse         Key = "update_response"              // object, written by the update review node
	SessionQueryParameters Key = "tmx_session_query_parameters" // map[string]string, optional caller input
)

var (
	// ErrNotFound is returned when a key is absent or holds JSON null.
	ErrNotFound = errors.New("state: key not found")

	// ErrWrongType is returned when a value cannot be decoded as the requested type.
	ErrWrongType = errors.New("state: unexpected value type")
)

var jsonNull = []byte("null")

// State is an ordered key/value bag. It is owned by one attempt and is not
// safe for concurrent use.
type State struct {
	order  []Key
	values map[Key]json.RawMessage
}

// New returns an empty State.
func New() *State {
	return &State{values: make(map[Key]json.RawMessage)}
}

// Len returns the number of entries.
func (s *State) Len() int {
	return len(s.order)
}

// Keys returns the keys in insertion order.
func (s *State) Keys() []Key {
	out := make([]Key, len(s.order))
	copy(out, s.order)
	return out
}

// Has reports whether k is present with a non-null value.
func (s *State) Has(k Key) bool {
	v, ok := s.values[k]
	return ok && !bytes.Equal(v, jsonNull)
}

// Raw returns the JSON document stored under k.
func (s *State) Raw(k Key) (json.RawMessage, bool) {
	if !s.Has(k) {
		return nil, false
	}
	v := s.values[k]
	out := make(json.RawMessage, len(v))
	copy(out, v)
	return out, true
}

// String returns the string stored under k.
func (s *State) String(k Key) (string, error) {
	var v string
	if err := s.decode(k, &v); err != nil {
		return "", err
	}
	return v, nil
}

// Strings returns the list of strings stored under k.
func (s *State) Strings(k Key) ([]string, error) {
	var v []string
	if err := s.decode(k, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// StringMap returns the string map stored under k.
func (s *State) StringMap(k Key) (map[string]string, error) {
	var v map[string]string
	if err := s.decode(k, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// Set marshals v and stores it under k. Overwriting keeps the key's
// original position.
func (s *State) Set(k Key, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "state: marshal %s", k)
	}
	s.put(k, b)
	return nil
}

// SetString stores a string under k.
func (s *State) SetString(k Key, v string) {
	b, _ := json.Marshal(v) // strings always marshal
	s.put(k, b)
}

// SetRaw stores an already-encoded JSON document under k.
func (s *State) SetRaw(k Key, raw json.RawMessage) error {
	if !json.Valid(raw) {
		return errors.Newf("state: invalid JSON for %s", k)
	}
	b := make(json.RawMessage, len(raw))
	copy(b, raw)
	s.put(k, b)
	return nil
}

// Clone returns a deep copy.
func (s *State) Clone() *State {
	c := &State{
		order:  make([]Key, len(s.order)),
		values: make(map[Key]json.RawMessage, len(s.values)),
	}
	copy(c.order, s.order)
	for k, v := range s.values {
		b := make(json.RawMessage, len(v))
		copy(b, v)
		c.values[k] = b
	}
	return c
}

// MarshalJSON encodes the bag as a JSON object in insertion order.
func (s *State) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range s.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(string(k))
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(s.values[k])
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object, keeping the document's key order.
func (s *State) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return errors.Wrap(err, "state: decode")
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return errors.New("state: expected a JSON object")
	}

	s.order = nil
	s.values = make(map[Key]json.RawMessage)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return errors.Wrap(err, "state: decode key")
		}
		name, _ := tok.(string)
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return errors.Wrapf(err, "state: decode value for %s", name)
		}
		s.put(Key(name), raw)
	}
	if _, err := dec.Token(); err != nil {
		return errors.Wrap(err, "state: decode")
	}
	return nil
}

func (s *State) put(k Key, v json.RawMessage) {
	if s.values == nil {
		s.values = make(map[Key]json.RawMessage)
	}
	if _, exists := s.values[k]; !exists {
		s.order = append(s.order, k)
	}
	s.values[k] = v
}

func (s *State) decode(k Key, dst any) error {
	if !s.Has(k) {
		return errors.Wrapf(ErrNotFound, "%s", k)
	}
	if err := json.Unmarshal(s.values[k], dst); err != nil {
		return errors.Wrapf(ErrWrongType, "%s: %v", k, err)
	}
	return nil
}
