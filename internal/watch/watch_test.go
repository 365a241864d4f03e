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

package watch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/dynamic/fake"

	"github.com/digi-dev/mounter/internal/model"
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
	return &unstructured.Unstructured{Object: map[string]any{
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
}

func TestWatchDeliversCreateThenUpdate(t *testing.T) {
	obj := newFoo("default", "x", map[string]any{"intent": int64(1)}, 1, "rv-1")
	client := newFakeClient(t, obj)
	gvr := modelref.GVR{Group: "a.digi.dev", Version: "v1", Plural: "foos"}
	nsn := modelref.NSN{Namespace: "default", Name: "x"}

	var mu sync.Mutex
	var created, updated bool
	updateDone := make(chan struct{})

	w, err := New(client, gvr, nsn, Callbacks{
		OnCreate: func(body map[string]any, meta Meta) {
			mu.Lock()
			created = true
			mu.Unlock()
		},
		OnUpdate: func(body map[string]any, meta Meta, diff []model.Diff) {
			mu.Lock()
			updated = true
			mu.Unlock()
			close(updateDone)
		},
	}, logr.Discard())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		ok := created
		mu.Unlock()
		if ok || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	assert.True(t, created)

	updatedObj := newFoo("default", "x", map[string]any{"intent": int64(2)}, 2, "rv-2")
	_, err = client.Resource(schema.GroupVersionResource{Group: "a.digi.dev", Version: "v1", Resource: "foos"}).
		Namespace("default").Update(context.Background(), updatedObj, metav1.UpdateOptions{})
	require.NoError(t, err)

	select {
	case <-updateDone:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for update callback")
	}
	assert.True(t, updated)
}
