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
	"github.com/digi-dev/mounter/internal/model"
	"github.com/digi-dev/mounter/internal/modelref"
	"github.com/digi-dev/mounter/internal/watch"
)

// updateChildWatches reconciles the live child-watch set against the
// parent's current spec.mount: start a watch for every newly-mounted
// child, leave running watches alone, and stop watches for children no
// longer named. Only ever called from the actor goroutine, so the
// childWatches map needs no lock — this is the snapshot-iteration race
// the single-actor design eliminates by construction.
func (m *Mounter) updateChildWatches(spec map[string]any) {
	mountMap, skipped := model.ParseMountMap(spec)
	if len(skipped) > 0 {
		m.log.Info("skipping malformed mount entries", "keys", skipped)
		m.metric.MalformedMount(len(skipped))
	}

	for gvrStr, models := range mountMap {
		gvr, err := modelref.ParseGVR(gvrStr)
		if err != nil {
			continue
		}
		if m.childWatches[gvrStr] == nil {
			m.childWatches[gvrStr] = make(map[string]*watch.Watch)
		}
		for nsnStr := range models {
			nsn := modelref.ParseNSN(nsnStr)
			canon := modelref.FormatNSN(nsn)
			if _, running := m.childWatches[gvrStr][canon]; running {
				continue
			}
			m.startChildWatch(gvr, nsn, gvrStr, canon)
		}
	}

	for gvrStr, byNSN := range m.childWatches {
		gvr, gvrErr := modelref.ParseGVR(gvrStr)

		models, stillMounted := mountMap[gvrStr]
		if !stillMounted {
			for canonNSN, w := range byNSN {
				w.Stop()
				if gvrErr == nil {
					m.forgetChildPushes(gvr, canonNSN)
				}
			}
			delete(m.childWatches, gvrStr)
			continue
		}

		canonicalStillMounted := make(map[string]struct{}, len(models))
		for nsnStr := range models {
			canonicalStillMounted[modelref.FormatNSN(modelref.ParseNSN(nsnStr))] = struct{}{}
		}

		for canonNSN, w := range byNSN {
			if _, ok := canonicalStillMounted[canonNSN]; ok {
				continue
			}
			w.Stop()
			delete(byNSN, canonNSN)
			if gvrErr == nil {
				m.forgetChildPushes(gvr, canonNSN)
			}
		}
	}

	m.metric.ChildWatchCount(m.countChildWatches())
}

func (m *Mounter) countChildWatches() int {
	n := 0
	for _, byNSN := range m.childWatches {
		n += len(byNSN)
	}
	return n
}

// forgetChildPushes drops the cached dedupe hashes for an unmounted
// child so a later remount never skips a push by matching against a
// stale value recorded before the gap in coverage.
func (m *Mounter) forgetChildPushes(gvr modelref.GVR, canonNSN string) {
	key := modelref.ChildKey{GVR: gvr, NSN: modelref.ParseNSN(canonNSN)}
	delete(m.lastChildPush, key)
	delete(m.lastParentPush, key)
}

func (m *Mounter) startChildWatch(gvr modelref.GVR, nsn modelref.NSN, gvrStr, canonNSN string) {
	key := modelref.ChildKey{GVR: gvr, NSN: nsn}

	onCreate := func(body map[string]any, meta watch.Meta) {
		m.enqueue(func() {
			m.syncFromParent(m.runCtx, key, meta)
			m.syncToParent(m.runCtx, key, meta, body, nil, model.IntentLike)
		})
	}

	w, err := watch.New(m.store.Dynamic, gvr, nsn, watch.Callbacks{
		OnCreate: onCreate,
		OnResume: onCreate,
		OnUpdate: func(body map[string]any, meta watch.Meta, diff []model.Diff) {
			m.enqueue(func() {
				if m.ledger.IsChildEcho(key, meta.Generation) {
					m.metric.EchoDropped("child")
					return
				}
				m.syncToParent(m.runCtx, key, meta, body, diff, nil)
			})
		},
		OnDelete: func(body map[string]any) {
			m.enqueue(func() {
				if byNSN, ok := m.childWatches[gvrStr]; ok {
					if w, ok := byNSN[canonNSN]; ok {
						w.Stop()
						delete(byNSN, canonNSN)
					}
				}
				m.forgetChildPushes(gvr, canonNSN)
				m.syncToParentDelete(m.runCtx, key)
			})
		},
	}, m.log)
	if err != nil {
		m.log.Error(err, "unable to build child watch", "gvr", gvrStr, "nsn", canonNSN)
		return
	}

	m.childWatches[gvrStr][canonNSN] = w
	go func() {
		if err := w.Start(m.runCtx); err != nil {
			m.log.Error(err, "child watch failed to start", "gvr", gvrStr, "nsn", canonNSN)
		}
	}()
}
