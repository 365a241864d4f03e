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

package mounter

import (
	"context"
	"errors"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/digi-dev/mounter/internal/model"
	"github.com/digi-dev/mounter/internal/modelref"
	"github.com/digi-dev/mounter/internal/store"
	"github.com/digi-dev/mounter/internal/watch"
)

// childRetryBackoff paces the unbounded child→parent retry loop, so a
// parent under heavy contention doesn't get hammered at a fixed rate.
var childRetryBackoff = wait.Backoff{
	Duration: 250 * time.Millisecond,
	Factor:   2.0,
	Jitter:   0.1,
	Cap:      10 * time.Second,
	Steps:    1 << 30, // effectively unbounded; retries until success or cancellation
}

// syncFromParent pushes a newly (re)discovered child's cached intent
// down to it, once, at watch establishment. Entries that are not active
// are skipped.
func (m *Mounter) syncFromParent(ctx context.Context, key modelref.ChildKey, meta watch.Meta) {
	parentSpec, _, _, err := m.store.Get(ctx, m.gvr, m.nsn)
	if err != nil {
		m.log.Error(err, "syncFromParent: reading parent", "child", key.String())
		m.metric.SyncParentToChild("error")
		return
	}

	mountMap, _ := model.ParseMountMap(parentSpec)
	entry, ok := mountMap.Lookup(key.GVR, key.NSN)
	if !ok {
		m.log.Info("syncFromParent: child not found in parent mount", "child", key.String())
		return
	}
	if entry.StatusOrDefault() != model.MountActive {
		return
	}

	patch := model.Trim(entry.Spec, model.StatusLike...)
	rv := entry.Version
	if rv == "" {
		rv = meta.ResourceVersion
	}

	h := contentHash(patch)
	if h == m.lastChildPush[key] {
		m.metric.SyncParentToChild("ok")
		return
	}

	if err := m.store.Patch(ctx, key.GVR, key.NSN, patch, rv); err != nil {
		m.log.Error(err, "syncFromParent: patching child", "child", key.String())
		m.metric.SyncParentToChild("error")
		return
	}
	m.lastChildPush[key] = h
	m.bridge.RecordChildWrite(ctx, key, meta.Generation)
	m.metric.SyncParentToChild("ok")
}

// syncToParent propagates a child's current state (spec is nil on
// delete) into the parent's cached mount entry. Retries indefinitely
// against CAS conflicts — the child side is the sole source of truth
// for its own cached copy, so there is never a reason to give up.
func (m *Mounter) syncToParent(ctx context.Context, key modelref.ChildKey, meta watch.Meta, spec map[string]any, diff []model.Diff, attrsToTrim []string) {
	gvrStr := key.GVR.String()
	canonNSN := modelref.FormatNSN(key.NSN)

	err := wait.ExponentialBackoff(childRetryBackoff, func() (bool, error) {
		if ctx.Err() != nil {
			return true, ctx.Err()
		}

		parentSpec, parentRV, parentGen, err := m.store.Get(ctx, m.gvr, m.nsn)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				m.log.Info("syncToParent: parent no longer exists", "child", key.String())
				return true, nil
			}
			return false, nil
		}

		mountMap, _ := model.ParseMountMap(parentSpec)
		entry, found := mountMap.Lookup(key.GVR, key.NSN)
		if !found {
			m.log.Info("syncToParent: child no longer mounted", "child", key.String())
			return true, nil
		}

		var entryPatch any
		var pushedHash uint64
		if spec == nil {
			entryPatch = nil
		} else {
			trim := append([]string{}, attrsToTrim...)
			if entry.ModeOrDefault() == model.ModeHide {
				trim = append(trim, model.AttrMount)
			}
			childSpec := genParentPatch(spec, diff, trim)
			pushedHash = contentHash(childSpec)
			if pushedHash == m.lastParentPush[key] {
				return true, nil
			}
			entryPatch = map[string]any{
				"spec":       childSpec,
				"version":    meta.ResourceVersion,
				"generation": meta.Generation,
			}
		}

		patch := map[string]any{
			model.AttrMount: map[string]any{
				gvrStr: map[string]any{
					canonNSN: entryPatch,
				},
			},
		}

		if err := m.store.Patch(ctx, m.gvr, m.nsn, patch, parentRV); err != nil {
			if errors.Is(err, store.ErrConflict) {
				return false, nil
			}
			if errors.Is(err, store.ErrNotFound) {
				return true, nil
			}
			return false, nil
		}

		if spec != nil {
			m.lastParentPush[key] = pushedHash
		} else {
			delete(m.lastParentPush, key)
		}
		m.bridge.RecordParentWrite(ctx, m.gvr, m.nsn, parentGen)
		return true, nil
	})

	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			m.log.Info("syncToParent: aborted on cancellation", "child", key.String())
			m.metric.SyncChildToParent("cancelled")
			return
		}
		m.log.Error(err, "syncToParent: gave up", "child", key.String())
		m.metric.SyncChildToParent("error")
		return
	}
	m.metric.SyncChildToParent("ok")
}

// syncToParentDelete is syncToParent's nil-spec case, split out for
// readability at the on_child_delete call site.
func (m *Mounter) syncToParentDelete(ctx context.Context, key modelref.ChildKey) {
	m.syncToParent(ctx, key, watch.Meta{}, nil, nil, nil)
	m.ledger.ForgetChild(key)
}

// genParentPatch applies the triggering diff to a child's spec and then
// trims reserved attribute families, producing the value cached into
// the parent's mount entry.
func genParentPatch(childSpec map[string]any, diff []model.Diff, attrsToTrim []string) map[string]any {
	s := childSpec
	if diff != nil {
		s = model.ApplyDiff(s, diff)
	}
	if len(attrsToTrim) > 0 {
		s = model.Trim(s, attrsToTrim...)
	}
	return s
}

// syncToChildren pushes intent changes in the parent's spec.mount
// subtree down to the affected children. A single retry per triggering
// event; if the push loses a race, the next watch-cycle event on that
// child (or the next parent update) carries it.
func (m *Mounter) syncToChildren(ctx context.Context, parentSpec map[string]any, diff []model.Diff) {
	mountMap, skipped := model.ParseMountMap(parentSpec)
	if len(skipped) > 0 {
		m.metric.MalformedMount(len(skipped))
	}

	sorted := model.SortDiff(diff)
	type syncItem struct {
		spec map[string]any
		rv   string
		gen  int64
	}
	toSync := make(map[modelref.ChildKey]syncItem)

	considerDiff := func(gvrStr, nsnStr string) {
		gvr, err := modelref.ParseGVR(gvrStr)
		if err != nil {
			return
		}
		nsn := modelref.ParseNSN(nsnStr)
		canonNSN := modelref.FormatNSN(nsn)
		key := modelref.ChildKey{GVR: gvr, NSN: nsn}
		if _, already := toSync[key]; already {
			return
		}
		// mountMap's inner keys are always canonical (ParseMountMap
		// normalizes on the way in), but a diff computed over the raw
		// spec may still carry a legacy bare-name path segment.
		spec, rv, gen, ok := genChildPatch(mountMap, gvrStr, canonNSN)
		if !ok {
			return
		}
		toSync[key] = syncItem{spec: spec, rv: rv, gen: gen}
	}

	for _, d := range sorted {
		tail := d.Path
		if len(tail) > 0 && tail[0] == model.AttrMount {
			tail = tail[1:]
		}
		if len(tail) < 3 {
			continue
		}
		considerDiff(tail[0], tail[1])
	}

	if len(diff) == 0 {
		for gvrStr, models := range mountMap {
			for nsnStr := range models {
				considerDiff(gvrStr, nsnStr)
			}
		}
	}

	for key, item := range toSync {
		h := contentHash(item.spec)
		if h == m.lastChildPush[key] {
			m.metric.SyncParentToChild("ok")
			continue
		}
		if err := m.store.Patch(ctx, key.GVR, key.NSN, item.spec, item.rv); err != nil {
			m.log.Error(err, "syncToChildren: patching child", "child", key.String())
			m.metric.SyncParentToChild("error")
			continue
		}
		m.lastChildPush[key] = h
		if item.gen != 0 {
			m.bridge.RecordChildWrite(ctx, key, item.gen)
		}
		m.metric.SyncParentToChild("ok")
	}
}

// genChildPatch derives the patch to push down for one mount entry:
// hidden entries have their own nested mount attribute stripped so a
// hidden child never re-publishes a grandchild tree, and only active
// entries with a populated spec are pushed at all — a mount entry
// added before its spec snapshot exists (e.g. {"status": "active"}
// alone) is skipped rather than patched as a null spec.
func genChildPatch(mountMap model.MountMap, gvrStr, nsnStr string) (spec map[string]any, rv string, gen int64, ok bool) {
	models, found := mountMap[gvrStr]
	if !found {
		return nil, "", 0, false
	}
	entry, found := models[nsnStr]
	if !found {
		return nil, "", 0, false
	}

	if entry.StatusOrDefault() != model.MountActive {
		return nil, "", 0, false
	}

	if entry.Spec == nil {
		return nil, "", 0, false
	}

	s := entry.Spec
	if entry.ModeOrDefault() == model.ModeHide {
		s = model.Trim(s, model.AttrMount)
	}
	s = model.Trim(s, model.StatusLike...)
	return s, entry.Version, entry.Generation, true
}
