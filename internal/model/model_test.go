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

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digi-dev/mounter/internal/modelref"
)

func TestParseMountMap(t *testing.T) {
	spec := map[string]any{
		"mount": map[string]any{
			"a/v1/foos": map[string]any{
				"default/x": map[string]any{
					"spec":       map[string]any{"intent": float64(1)},
					"version":    "rv-1",
					"generation": float64(3),
					"status":     "active",
				},
				"y": map[string]any{ // legacy bare-name key
					"spec": map[string]any{},
				},
			},
			"bad-gvr": map[string]any{},
		},
	}

	mm, skipped := ParseMountMap(spec)
	require.Equal(t, []string{"bad-gvr"}, skipped)

	e, ok := mm.Lookup(modelref.GVR{Group: "a", Version: "v1", Plural: "foos"}, modelref.NSN{Namespace: "default", Name: "x"})
	require.True(t, ok)
	assert.Equal(t, MountStatus("active"), e.Status)
	assert.Equal(t, int64(3), e.Generation)

	_, ok = mm.Lookup(modelref.GVR{Group: "a", Version: "v1", Plural: "foos"}, modelref.NSN{Namespace: "default", Name: "y"})
	assert.True(t, ok, "legacy bare-name key should resolve")
}

func TestTrimRemovesNestedFamilies(t *testing.T) {
	spec := map[string]any{
		"intent": 5,
		"status": 0,
		"nested": map[string]any{
			"status": "x",
			"keep":   "y",
		},
	}
	trimmed := Trim(spec, StatusLike...)
	assert.NotContains(t, trimmed, "status")
	assert.Contains(t, trimmed, "intent")
	nested := trimmed["nested"].(map[string]any)
	assert.NotContains(t, nested, "status")
	assert.Equal(t, "y", nested["keep"])
}

func TestApplyDiffSetsAndRemoves(t *testing.T) {
	spec := map[string]any{"intent": 1}
	diff := []Diff{
		{Op: DiffChange, Path: []string{"intent"}, New: 5},
		{Op: DiffAdd, Path: []string{"status"}, New: 0},
	}
	out := ApplyDiff(spec, diff)
	assert.Equal(t, 5, out["intent"])
	assert.Equal(t, 0, out["status"])
	assert.Equal(t, 1, spec["intent"], "ApplyDiff must not mutate its input")

	removed := ApplyDiff(out, []Diff{{Op: DiffRemove, Path: []string{"status"}}})
	assert.NotContains(t, removed, "status")
}

func TestSortDiffOrdersByPath(t *testing.T) {
	diff := []Diff{
		{Path: []string{"mount", "a/v1/foos", "default/x", "spec", "status"}},
		{Path: []string{"mount", "a/v1/foos", "default/x", "spec", "intent"}},
	}
	sorted := SortDiff(diff)
	assert.Equal(t, "intent", sorted[0].Path[4])
	assert.Equal(t, "status", sorted[1].Path[4])
}
