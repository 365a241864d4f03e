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

package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/dynamic/fake"
	"sigs.k8s.io/yaml"

	"github.com/digi-dev/mounter/internal/modelref"
)

func newFakeClient(t *testing.T, objs ...runtime.Object) *fake.FakeDynamicClient {
	t.Helper()
	scheme := runtime.NewScheme()
	gvrListKinds := map[schema.GroupVersionResource]string{
		{Group: "a.digi.dev", Version: "v1", Resource: "foos"}: "FooList",
	}
	return fake.NewSimpleDynamicClientWithCustomListKinds(scheme, gvrListKinds, objs...)
}

func newFoo(ns, name string, spec map[string]any, generation int64, rv string) *unstructured.Unstructured {
	obj := &unstructured.Unstructured{Object: map[string]any{
		"apiVersion": "a.digi.dev/v1",
		"kind":       "Foo",
		"metadata": map[string]any{
			"name":            name,
			"namespace":       ns,
			"generation":      generation,
			"resourceVersion": rv,
		},
		"spec": spec,
	}}
	return obj
}

func TestGetReturnsSpecAndMeta(t *testing.T) {
	client := newFakeClient(t, newFoo("default", "x", map[string]any{"intent": int64(1)}, 3, "rv-1"))
	sc := New(client)
	gvr := modelref.GVR{Group: "a.digi.dev", Version: "v1", Plural: "foos"}
	nsn := modelref.NSN{Namespace: "default", Name: "x"}

	spec, rv, gen, err := sc.Get(context.Background(), gvr, nsn)
	require.NoError(t, err)
	assert.EqualValues(t, 1, spec["intent"])
	assert.Equal(t, "rv-1", rv)
	assert.Equal(t, int64(3), gen)
}

func TestGetNotFound(t *testing.T) {
	client := newFakeClient(t)
	sc := New(client)
	gvr := modelref.GVR{Group: "a.digi.dev", Version: "v1", Plural: "foos"}
	nsn := modelref.NSN{Namespace: "default", Name: "missing"}

	_, _, _, err := sc.Get(context.Background(), gvr, nsn)
	assert.ErrorIs(t, err, ErrNotFound)
}

// TestPatchFromYAMLFixture exercises a patch payload authored as YAML
// (the same round-trip shape a human-edited mount fixture would use)
// instead of a literal Go map, decoded with sigs.k8s.io/yaml.
func TestPatchFromYAMLFixture(t *testing.T) {
	const fixture = `
mount:
  a.digi.dev/v1/children:
    default/c:
      spec:
        intent: 7
      status: active
      mode: show
`
	var patch map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(fixture), &patch))

	client := newFakeClient(t, newFoo("default", "x", map[string]any{}, 1, "rv-1"))
	sc := New(client)
	gvr := modelref.GVR{Group: "a.digi.dev", Version: "v1", Plural: "foos"}
	nsn := modelref.NSN{Namespace: "default", Name: "x"}

	require.NoError(t, sc.Patch(context.Background(), gvr, nsn, patch, "rv-1"))

	spec, _, _, err := sc.Get(context.Background(), gvr, nsn)
	require.NoError(t, err)
	mount, _ := spec["mount"].(map[string]any)
	require.NotNil(t, mount)
	children, _ := mount["a.digi.dev/v1/children"].(map[string]any)
	require.NotNil(t, children)
	entry, _ := children["default/c"].(map[string]any)
	require.NotNil(t, entry)
	assert.Equal(t, "active", entry["status"])
}

func TestPatchUnconditionalSucceeds(t *testing.T) {
	client := newFakeClient(t, newFoo("default", "x", map[string]any{"intent": int64(1)}, 3, "rv-1"))
	sc := New(client)
	gvr := modelref.GVR{Group: "a.digi.dev", Version: "v1", Plural: "foos"}
	nsn := modelref.NSN{Namespace: "default", Name: "x"}

	err := sc.Patch(context.Background(), gvr, nsn, map[string]any{"intent": 5}, "")
	require.NoError(t, err)

	spec, _, _, err := sc.Get(context.Background(), gvr, nsn)
	require.NoError(t, err)
	assert.EqualValues(t, 5, spec["intent"])
}
