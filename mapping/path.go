package mapping

import (
	"strconv"
	"strings"

	"github.com/valyala/fastjson"
)

// PathSeparator splits a src_path into segments
const PathSeparator = "."

// SplitPath splits a dotted path. The empty path yields a single empty segment.
func SplitPath(path string) []string {
	return strings.Split(path, PathSeparator)
}

// Resolve walks root along segments and never fails.
//
// For each segment:
//   - on an array, descend when the segment is a non-negative integer within bounds
//   - on an object, descend when the segment is a present, non-empty key
//   - otherwise stay on the current value
//
// A path that names nothing therefore resolves to the deepest value it could reach,
// possibly root itself. A key repeated within one object resolves to its last
// value, the same one CanonicalJSON keeps.
func Resolve(root *fastjson.Value, segments []string) *fastjson.Value {
	current := root
	for _, seg := range segments {
		if seg == "" || current == nil {
			continue
		}

		switch current.Type() {
		case fastjson.TypeArray:
			idx, err := strconv.ParseUint(seg, 10, 64)
			if err != nil {
				continue
			}
			arr, _ := current.Array()
			if idx < uint64(len(arr)) {
				current = arr[idx]
			}
		case fastjson.TypeObject:
			obj, _ := current.Object()
			if next := lastValue(obj, seg); next != nil {
				current = next
			}
		}
	}
	return current
}

// lastValue is Object.Get with last-wins semantics for duplicate keys
func lastValue(obj *fastjson.Object, key string) *fastjson.Value {
	var found *fastjson.Value
	obj.Visit(func(k []byte, v *fastjson.Value) {
		if string(k) == key {
			found = v
		}
	})
	return found
}
