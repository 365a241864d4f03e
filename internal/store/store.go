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

// Package store provides a thin, optimistic-concurrency wrapper over the
// cluster store (a dynamic Kubernetes client) used to read and
// conditionally patch a model's spec by (gvr, nsn).
package store

import (
	"context"
	"encoding/json"
	"fmt"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/dynamic"

	"github.com/digi-dev/mounter/internal/model"
	"github.com/digi-dev/mounter/internal/modelref"
)

// Diff re-exports model.Diff so callers only need to import one package
// when wiring StoreClient.ApplyDiff.
type Diff = model.Diff

// StoreClient reads and conditionally patches models held in the
// cluster store.
type StoreClient struct {
	Dynamic dynamic.Interface
}

// New builds a StoreClient over a dynamic client.
func New(dyn dynamic.Interface) *StoreClient {
	return &StoreClient{Dynamic: dyn}
}

func resourceInterface(dyn dynamic.Interface, gvr modelref.GVR, nsn modelref.NSN) dynamic.ResourceInterface {
	gv := schema.GroupVersionResource{Group: gvr.Group, Version: gvr.Version, Resource: gvr.Plural}
	ri := dyn.Resource(gv)
	if nsn.Namespace != "" {
		return ri.Namespace(nsn.Namespace)
	}
	return ri
}

// Get returns the current spec, resourceVersion and generation of a
// model, or ErrNotFound/ErrTransient.
func (c *StoreClient) Get(ctx context.Context, gvr modelref.GVR, nsn modelref.NSN) (spec map[string]any, rv string, generation int64, err error) {
	obj, err := resourceInterface(c.Dynamic, gvr, nsn).Get(ctx, nsn.Name, metav1.GetOptions{})
	if err != nil {
		if apierrors.IsNotFound(err) {
			return nil, "", 0, ErrNotFound
		}
		return nil, "", 0, fmt.Errorf("%w: %s", ErrTransient, err)
	}

	s, found, err := unstructured.NestedMap(obj.Object, "spec")
	if err != nil {
		return nil, "", 0, fmt.Errorf("%w: reading spec: %s", ErrTransient, err)
	}
	if !found {
		s = map[string]any{}
	}
	return s, obj.GetResourceVersion(), obj.GetGeneration(), nil
}

// Patch applies a JSON-merge patch to a model's spec. When rv is
// non-empty the patch is conditional on resourceVersion == rv and
// yields ErrConflict if the store has moved on. A patch value of nil at
// patch.mount[gvr][nsn] deletes that mount entry (JSON merge patch
// null-deletes semantics).
func (c *StoreClient) Patch(ctx context.Context, gvr modelref.GVR, nsn modelref.NSN, patch map[string]any, rv string) error {
	body := map[string]any{"spec": patch}
	if rv != "" {
		body["metadata"] = map[string]any{"resourceVersion": rv}
	}

	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%w: encoding patch: %s", ErrTransient, err)
	}

	_, err = resourceInterface(c.Dynamic, gvr, nsn).Patch(ctx, nsn.Name, types.MergePatchType, data, metav1.PatchOptions{})
	if err != nil {
		if apierrors.IsConflict(err) {
			return ErrConflict
		}
		if apierrors.IsNotFound(err) {
			return ErrNotFound
		}
		return fmt.Errorf("%w: %s", ErrTransient, err)
	}
	return nil
}

// ApplyDiff applies an ordered list of attribute-level changes to spec.
// Delegates to internal/model so StoreClient and the Mounter share one
// diff semantics.
func ApplyDiff(spec map[string]any, diff []Diff) map[string]any {
	return model.ApplyDiff(spec, diff)
}

// Trim returns spec with every occurrence of the named attributes
// removed, top-level and nested.
func Trim(spec map[string]any, attrs ...string) map[string]any {
	return model.Trim(spec, attrs...)
}
