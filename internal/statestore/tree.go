package statestore

import (
	"fmt"
	"sort"
	"strings"
)

// Flatten converts value stored at prefix into leaf paths. Nested maps become
// deeper paths; an empty map produces no leaves.
func Flatten(prefix string, value any) (map[string]any, error) {
	out := make(map[string]any)
	if err := flatten(out, prefix, value); err != nil {
		return nil, err
	}
	return out, nil
}

func flatten(out map[string]any, prefix string, value any) error {
	switch v := value.(type) {
	case map[string]any:
		for k, child := range v {
			if err := ValidateSegment(k); err != nil {
				return err
			}
			if err := flatten(out, prefix+"/"+k, child); err != nil {
				return err
			}
		}
	case map[string]bool:
		for k, child := range v {
			if err := ValidateSegment(k); err != nil {
				return err
			}
			out[prefix+"/"+k] = child
		}
	case map[string]string:
		for k, child := range v {
			if err := ValidateSegment(k); err != nil {
				return err
			}
			out[prefix+"/"+k] = child
		}
	case nil:
		return fmt.Errorf("nil value at %q", prefix)
	case bool, string, float64, float32, int, int32, int64, uint, uint32, uint64:
		out[prefix] = v
	default:
		return fmt.Errorf("unsupported value type %T at %q", value, prefix)
	}
	return nil
}

// Assemble rebuilds the value at prefix from leaf paths. It returns the leaf
// itself when prefix is a leaf, a nested map when prefix has descendants, and
// ok=false when neither.
func Assemble(prefix string, leaves map[string]any) (value any, ok bool) {
	if v, found := leaves[prefix]; found {
		return v, true
	}

	root := make(map[string]any)
	want := prefix + "/"
	keys := make([]string, 0, len(leaves))
	for k := range leaves {
		if strings.HasPrefix(k, want) {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return nil, false
	}
	sort.Strings(keys)

	for _, k := range keys {
		segs := strings.Split(strings.TrimPrefix(k, want), "/")
		node := root
		for _, seg := range segs[:len(segs)-1] {
			child, isMap := node[seg].(map[string]any)
			if !isMap {
				child = make(map[string]any)
				node[seg] = child
			}
			node = child
		}
		node[segs[len(segs)-1]] = leaves[k]
	}
	return root, true
}

// Covers reports whether key is path itself or lies below it.
func Covers(path, key string) bool {
	return key == path || strings.HasPrefix(key, path+"/")
}
