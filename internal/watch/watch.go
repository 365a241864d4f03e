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

// Package watch subscribes to a single model instance and delivers its
// lifecycle events (create/resume, update with attribute diff, delete,
// field-scoped updates) to injected callbacks, one at a time, in store
// order. Each Watch owns a dynamic informer scoped to one (gvr, nsn)
// and a single dispatch goroutine draining a buffered event channel, so
// handlers for the same resource never overlap while different Watches
// run fully in parallel.
package watch

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/go-logr/logr"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/fields"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/dynamic/dynamicinformer"
	"k8s.io/client-go/tools/cache"

	"github.com/digi-dev/mounter/internal/model"
	"github.com/digi-dev/mounter/internal/modelref"
)

// inboxCapacity bounds how many pending events a Watch buffers before
// the informer's own event loop starts blocking on us.
const inboxCapacity = 32

// defaultResync of zero: watch events, not periodic relist, drive
// reconciliation.
const defaultResync = 0 * time.Second

// Meta carries a model's store-side metadata at the time an event fired.
type Meta struct {
	ResourceVersion string
	Generation      int64
}

// Callbacks are the handlers a Watch dispatches to. At least one must be
// set. All are optional.
type Callbacks struct {
	// OnCreate and OnResume are aliases: whichever is set fires with
	// the object's full current spec the first time this Watch observes
	// it. When both are set only OnCreate fires.
	OnCreate func(body map[string]any, meta Meta)
	OnResume func(body map[string]any, meta Meta)

	// OnUpdate fires on every subsequent spec change.
	OnUpdate func(body map[string]any, meta Meta, diff []model.Diff)

	// OnDelete fires on tombstone; tolerant of a missing object.
	OnDelete func(body map[string]any)

	// OnField, when Field is non-empty, fires only when the named
	// top-level spec attribute's subtree changes.
	Field   string
	OnField func(body map[string]any, meta Meta, diff []model.Diff)
}

// Watch is a single subscription to one (gvr, nsn).
type Watch struct {
	gvr modelref.GVR
	nsn modelref.NSN
	dyn dynamic.Interface
	cb  Callbacks
	log logr.Logger

	inbox    chan func()
	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
	cancel   context.CancelFunc

	// lastSpec is only ever touched from the dispatch goroutine, so it
	// needs no lock.
	lastSpec    map[string]any
	seenInitial bool
}

// New builds a Watch. Call Start to begin delivery.
func New(dyn dynamic.Interface, gvr modelref.GVR, nsn modelref.NSN, cb Callbacks, log logr.Logger) (*Watch, error) {
	if cb.OnCreate == nil && cb.OnResume == nil && cb.OnUpdate == nil && cb.OnDelete == nil && cb.OnField == nil {
		return nil, fmt.Errorf("watch: no handler provided for %s/%s", gvr, nsn)
	}
	return &Watch{
		gvr:    gvr,
		nsn:    nsn,
		dyn:    dyn,
		cb:     cb,
		log:    log.WithValues("gvr", gvr.String(), "nsn", nsn.String()),
		inbox:  make(chan func(), inboxCapacity),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}, nil
}

// Start spawns the background delivery loop and blocks until the
// informer's cache has synced.
func (w *Watch) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	select {
	case <-w.stopCh:
		// Stop raced ahead of Start; don't spin anything up.
		cancel()
		return nil
	default:
	}

	gv := schema.GroupVersionResource{Group: w.gvr.Group, Version: w.gvr.Version, Resource: w.gvr.Plural}
	factory := dynamicinformer.NewFilteredDynamicSharedInformerFactory(
		w.dyn, defaultResync, w.nsn.Namespace, func(opts *metav1.ListOptions) {
			opts.FieldSelector = fields.OneTermEqualSelector("metadata.name", w.nsn.Name).String()
		},
	)
	informer := factory.ForResource(gv).Informer()

	if _, err := informer.AddEventHandler(cache.ResourceEventHandlerFuncs{
		AddFunc: func(obj any) { w.enqueueUpsert(obj) },
		UpdateFunc: func(_, newObj any) {
			w.enqueueUpsert(newObj)
		},
		DeleteFunc: func(obj any) { w.enqueueDelete(obj) },
	}); err != nil {
		cancel()
		return fmt.Errorf("watch: adding event handler: %w", err)
	}

	go w.dispatchLoop()
	go func() {
		// Cancellation of the caller's context is equivalent to Stop;
		// without this the dispatch goroutine would outlive the informer.
		<-runCtx.Done()
		w.Stop()
	}()

	factory.Start(runCtx.Done())
	if !cache.WaitForCacheSync(runCtx.Done(), informer.HasSynced) {
		cancel()
		return fmt.Errorf("watch: cache did not sync for %s/%s", w.gvr, w.nsn)
	}
	return nil
}

// Stop requests shutdown. Idempotent, safe from any goroutine.
func (w *Watch) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		if w.cancel != nil {
			w.cancel()
		}
	})
}

// Done closes once the dispatch loop has exited.
func (w *Watch) Done() <-chan struct{} { return w.doneCh }

func (w *Watch) dispatchLoop() {
	defer close(w.doneCh)
	for {
		select {
		case <-w.stopCh:
			return
		case job := <-w.inbox:
			job()
		}
	}
}

func (w *Watch) enqueueUpsert(obj any) {
	u := toUnstructured(obj)
	if u == nil || u.GetName() != w.nsn.Name {
		return
	}
	spec, _, _ := unstructured.NestedMap(u.Object, "spec")
	if spec == nil {
		spec = map[string]any{}
	}
	meta := Meta{ResourceVersion: u.GetResourceVersion(), Generation: u.GetGeneration()}

	select {
	case w.inbox <- func() { w.handleUpsert(spec, meta) }:
	case <-w.stopCh:
	}
}

func (w *Watch) enqueueDelete(obj any) {
	u := toUnstructured(obj)
	var spec map[string]any
	if u != nil {
		spec, _, _ = unstructured.NestedMap(u.Object, "spec")
	}
	select {
	case w.inbox <- func() { w.handleDelete(spec) }:
	case <-w.stopCh:
	}
}

func (w *Watch) handleUpsert(spec map[string]any, meta Meta) {
	if !w.seenInitial {
		w.seenInitial = true
		w.lastSpec = spec
		if w.cb.OnCreate != nil {
			w.cb.OnCreate(spec, meta)
		} else if w.cb.OnResume != nil {
			w.cb.OnResume(spec, meta)
		}
		return
	}

	diff := computeDiff(w.lastSpec, spec, nil)
	w.lastSpec = spec

	if len(diff) == 0 {
		return
	}

	if w.cb.OnUpdate != nil {
		w.cb.OnUpdate(spec, meta, diff)
	}
	if w.cb.Field != "" && w.cb.OnField != nil && touchesField(diff, w.cb.Field) {
		w.cb.OnField(spec, meta, diff)
	}
}

func (w *Watch) handleDelete(spec map[string]any) {
	if w.cb.OnDelete != nil {
		w.cb.OnDelete(spec)
	}
}

func touchesField(diff []model.Diff, field string) bool {
	for _, d := range diff {
		if len(d.Path) > 0 && d.Path[0] == field {
			return true
		}
	}
	return false
}

// computeDiff produces an attribute-level structural diff between old
// and new, recursing into nested maps so that an update deep inside
// spec.mount[gvr][nsn].spec still yields a full path.
func computeDiff(oldV, newV map[string]any, path []string) []model.Diff {
	var diffs []model.Diff

	keys := make(map[string]struct{}, len(oldV)+len(newV))
	for k := range oldV {
		keys[k] = struct{}{}
	}
	for k := range newV {
		keys[k] = struct{}{}
	}
	sorted := make([]string, 0, len(keys))
	for k := range keys {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	for _, k := range sorted {
		p := append(append([]string{}, path...), k)
		ov, hasOld := oldV[k]
		nv, hasNew := newV[k]

		switch {
		case !hasOld && hasNew:
			diffs = append(diffs, model.Diff{Op: model.DiffAdd, Path: p, New: nv})
		case hasOld && !hasNew:
			diffs = append(diffs, model.Diff{Op: model.DiffRemove, Path: p, Old: ov})
		case !reflect.DeepEqual(ov, nv):
			om, oIsMap := ov.(map[string]any)
			nm, nIsMap := nv.(map[string]any)
			if oIsMap && nIsMap {
				diffs = append(diffs, computeDiff(om, nm, p)...)
				continue
			}
			diffs = append(diffs, model.Diff{Op: model.DiffChange, Path: p, Old: ov, New: nv})
		}
	}
	return diffs
}

// toUnstructured safely unwraps an informer callback object, tolerating
// delete tombstones.
func toUnstructured(obj any) *unstructured.Unstructured {
	switch t := obj.(type) {
	case *unstructured.Unstructured:
		return t
	case cache.DeletedFinalStateUnknown:
		if u, ok := t.Obj.(*unstructured.Unstructured); ok {
			return u
		}
	default:
		if ro, ok := t.(runtime.Object); ok {
			u := &unstructured.Unstructured{}
			if m, err := runtime.DefaultUnstructuredConverter.ToUnstructured(ro); err == nil {
				u.Object = m
				return u
			}
		}
	}
	return nil
}
