package clip

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Errors returned while parsing clip descriptors.
var (
	ErrMissingVars = errors.New("descriptor is missing its parameter block")
	ErrMissingText = errors.New("descriptor is missing text")
)

// Vars is a parsed "{k1=v1,k2=v2}suffix" descriptor.
type Vars struct {
	values map[string]string
	Suffix string
}

// ParseVars splits path into its brace-delimited parameter block and the
// trailing suffix. Pairs without '=' are ignored.
func ParseVars(path string) (Vars, error) {
	left := strings.IndexByte(path, '{')
	if left == -1 {
		return Vars{}, fmt.Errorf("%w: %q", ErrMissingVars, path)
	}
	right := strings.IndexByte(path[left:], '}')
	if right == -1 {
		return Vars{}, fmt.Errorf("%w: %q", ErrMissingVars, path)
	}
	right += left

	v := Vars{values: make(map[string]string), Suffix: path[right+1:]}
	for _, pair := range strings.Split(path[left+1:right], ",") {
		k, val, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		v.values[strings.TrimSpace(k)] = strings.TrimSpace(val)
	}
	return v, nil
}

// Get returns the value of key and whether it was present.
func (v Vars) Get(key string) (string, bool) {
	val, ok := v.values[key]
	return val, ok
}

// String returns the value of key, or "" when absent.
func (v Vars) String(key string) string {
	return v.values[key]
}

// Bool returns the boolean value of key, or def when absent or invalid.
func (v Vars) Bool(key string, def bool) bool {
	val, ok := v.values[key]
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return def
	}
	return b
}

// Int returns the integer value of key. Absent, empty and invalid values
// report false.
func (v Vars) Int(key string) (int, bool) {
	val, ok := v.values[key]
	if !ok || val == "" {
		return 0, false
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, false
	}
	return n, true
}
