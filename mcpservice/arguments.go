package mcpservice

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrMissingArgument is returned when a required argument is absent or null.
	ErrMissingArgument = errors.New("missing required parameter")
	// ErrInvalidArgument is returned when an argument cannot be decoded into
	// the expected type.
	ErrInvalidArgument = errors.New("invalid argument")
)

// Arguments are the name-keyed arguments of a tool invocation.
type Arguments map[string]json.RawMessage

// Has reports whether name is present with a non-null value.
func (a Arguments) Has(name string) bool {
	raw, ok := a[name]
	return ok && !isNull(raw)
}

// Decode unmarshals the named argument into v.
func (a Arguments) Decode(name string, v any) error {
	if !a.Has(name) {
		return fmt.Errorf("%w: %s", ErrMissingArgument, name)
	}
	if err := json.Unmarshal(a[name], v); err != nil {
		return fmt.Errorf("%w %q: %v", ErrInvalidArgument, name, err)
	}
	return nil
}

// DecodeOptional unmarshals the named argument into v when present and
// reports whether it did. Absent and null arguments leave v untouched.
func (a Arguments) DecodeOptional(name string, v any) (bool, error) {
	if !a.Has(name) {
		return false, nil
	}
	if err := a.Decode(name, v); err != nil {
		return false, err
	}
	return true, nil
}

func (a Arguments) String(name string) (string, error) {
	var s string
	err := a.Decode(name, &s)
	return s, err
}

func (a Arguments) Int64(name string) (int64, error) {
	var n int64
	err := a.Decode(name, &n)
	return n, err
}

func (a Arguments) Float64(name string) (float64, error) {
	var f float64
	err := a.Decode(name, &f)
	return f, err
}

func (a Arguments) Bool(name string) (bool, error) {
	var b bool
	err := a.Decode(name, &b)
	return b, err
}

// OptionalInt64 returns nil when the argument is absent or null.
func (a Arguments) OptionalInt64(name string) (*int64, error) {
	var n int64
	ok, err := a.DecodeOptional(name, &n)
	if err != nil || !ok {
		return nil, err
	}
	return &n, nil
}

// OptionalString returns nil when the argument is absent or null.
func (a Arguments) OptionalString(name string) (*string, error) {
	var s string
	ok, err := a.DecodeOptional(name, &s)
	if err != nil || !ok {
		return nil, err
	}
	return &s, nil
}

// Bind decodes the whole argument object into v, typically a pointer to an
// argument struct.
func (a Arguments) Bind(v any) error {
	if a == nil {
		a = Arguments{}
	}
	b, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	return nil
}

// Values decodes every argument into a generic value, for rendering.
func (a Arguments) Values() (map[string]any, error) {
	out := make(map[string]any, len(a))
	for k, raw := range a {
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("%w %q: %v", ErrInvalidArgument, k, err)
		}
		out[k] = v
	}
	return out, nil
}

// ParseArguments decodes the "arguments" member of a tools/call request.
// Absent or null arguments yield an empty set; anything other than a JSON
// object is rejected.
func ParseArguments(raw json.RawMessage) (Arguments, error) {
	if len(raw) == 0 || isNull(raw) {
		return Arguments{}, nil
	}
	var args Arguments
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("%w: expected object: %v", ErrInvalidArgument, err)
	}
	if args == nil {
		args = Arguments{}
	}
	return args, nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
