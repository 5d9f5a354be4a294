// Package flagx contains command-line flag types that the standard pflag set
// does not provide.
package flagx

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/pflag"
)

// ParseMap parses "key:value;key:value" into a map. Whitespace around keys
// and values is ignored and empty items are skipped.
//
//	ParseMap("us-east-1:tooltool-use1; us-west-2:tooltool-usw2")
func ParseMap(s string) (map[string]string, error) {
	out := make(map[string]string)
	for _, item := range strings.Split(s, ";") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		k, v, ok := strings.Cut(item, ":")
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if !ok || k == "" || v == "" {
			return nil, fmt.Errorf("invalid map item %q, want key:value", item)
		}
		out[k] = v
	}
	return out, nil
}

// FormatMap is the inverse of ParseMap with keys in sorted order.
func FormatMap(m map[string]string) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	items := make([]string, 0, len(keys))
	for _, k := range keys {
		items = append(items, k+":"+m[k])
	}
	return strings.Join(items, ";")
}

// MapValue is a pflag.Value holding a "key:value;key:value" map.
type MapValue struct {
	m *map[string]string
}

var _ pflag.Value = (*MapValue)(nil)

// NewMapValue binds a MapValue to target, keeping its current content as default.
func NewMapValue(target *map[string]string) *MapValue {
	if *target == nil {
		*target = map[string]string{}
	}
	return &MapValue{m: target}
}

func (v *MapValue) String() string {
	if v == nil || v.m == nil {
		return ""
	}
	return FormatMap(*v.m)
}

func (v *MapValue) Set(s string) error {
	parsed, err := ParseMap(s)
	if err != nil {
		return err
	}
	*v.m = parsed
	return nil
}

func (v *MapValue) Type() string {
	return "map"
}
