/*
SPDX-License-Identifier: Apache-2.0

Copyright 2025 ConfigButler

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package model

import "sort"

// DiffOp is the kind of a single attribute-level change.
type DiffOp string

const (
	DiffAdd    DiffOp = "add"
	DiffChange DiffOp = "change"
	DiffRemove DiffOp = "remove"
)

// Diff is one attribute-level change: Op at Path, Old -> New.
// Path mirrors the original's tuple-of-attribute-names addressing, e.g.
// ["mount", "a/v1/foos", "default/x", "spec", "intent"].
type Diff struct {
	Op   DiffOp
	Path []string
	Old  any
	New  any
}

// SortDiff sorts a diff slice lexicographically by path, so that
// updates to the same child at different nesting depths collapse
// deterministically.
func SortDiff(diff []Diff) []Diff {
	out := make([]Diff, len(diff))
	copy(out, diff)
	sort.SliceStable(out, func(i, j int) bool {
		return pathLess(out[i].Path, out[j].Path)
	})
	return out
}

func pathLess(a, b []string) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}

// ApplyDiff applies an ordered list of attribute-level changes to spec,
// returning a new map. Paths of length 0 are ignored.
func ApplyDiff(spec map[string]any, diff []Diff) map[string]any {
	out := deepCopyMap(spec)
	for _, d := range diff {
		if len(d.Path) == 0 {
			continue
		}
		switch d.Op {
		case DiffRemove:
			removeAt(out, d.Path)
		default:
			setAt(out, d.Path, d.New)
		}
	}
	return out
}

// Trim returns spec with every top-level or nested occurrence of an
// attribute in attrs removed.
func Trim(spec map[string]any, attrs ...string) map[string]any {
	if len(attrs) == 0 {
		return deepCopyMap(spec)
	}
	drop := make(map[string]struct{}, len(attrs))
	for _, a := range attrs {
		drop[a] = struct{}{}
	}
	return trimValue(spec, drop).(map[string]any)
}

func trimValue(v any, drop map[string]struct{}) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, vv := range t {
			if _, ok := drop[k]; ok {
				continue
			}
			out[k] = trimValue(vv, drop)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, vv := range t {
			out[i] = trimValue(vv, drop)
		}
		return out
	default:
		return v
	}
}

func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return deepCopyMap(t)
	case []any:
		out := make([]any, len(t))
		for i, vv := range t {
			out[i] = deepCopyValue(vv)
		}
		return out
	default:
		return v
	}
}

func setAt(m map[string]any, path []string, value any) {
	cur := m
	for i, p := range path {
		if i == len(path)-1 {
			cur[p] = value
			return
		}
		next, ok := cur[p].(map[string]any)
		if !ok {
			next = map[string]any{}
			cur[p] = next
		}
		cur = next
	}
}

func removeAt(m map[string]any, path []string) {
	cur := m
	for i, p := range path {
		if i == len(path)-1 {
			delete(cur, p)
			return
		}
		next, ok := cur[p].(map[string]any)
		if !ok {
			return
		}
		cur = next
	}
}
