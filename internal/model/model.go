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

// Package model defines the mount data model: the MountEntry record a
// parent keeps per mounted child, the reserved attribute families the
// Mounter trims during propagation, and the spec.mount subtree shape.
package model

import "github.com/digi-dev/mounter/internal/modelref"

// Reserved attribute families recognized during propagation.
const (
	AttrIntent = "intent"
	AttrInput  = "input"
	AttrStatus = "status"
	AttrOutput = "output"
	AttrObs    = "obs"
	AttrMount  = "mount"
)

// IntentLike is the parent->child attribute family.
var IntentLike = []string{AttrIntent, AttrInput}

// StatusLike is the child->parent attribute family.
var StatusLike = []string{AttrStatus, AttrOutput, AttrObs}

// MountStatus is whether a mount entry's parent->child edge is live.
type MountStatus string

const (
	// MountActive means the parent drives the child's intent.
	MountActive MountStatus = "active"
	// MountInactive means only child->parent status flows. Default.
	MountInactive MountStatus = "inactive"
)

// MountMode controls whether a child's own mount subtree survives a
// child->parent sync.
type MountMode string

const (
	// ModeHide strips the child's own mount subtree from the snapshot
	// the parent stores. Default.
	ModeHide MountMode = "hide"
	// ModeShow keeps it.
	ModeShow MountMode = "show"
)

// MountEntry is the parent-held projection of one mounted child.
type MountEntry struct {
	Spec       map[string]any `json:"spec"`
	Version    string         `json:"version"`
	Generation int64          `json:"generation"`
	Status     MountStatus    `json:"status,omitempty"`
	Mode       MountMode      `json:"mode,omitempty"`
}

// StatusOrDefault returns Status with MountInactive substituted for empty.
func (e MountEntry) StatusOrDefault() MountStatus {
	if e.Status == "" {
		return MountInactive
	}
	return e.Status
}

// ModeOrDefault returns Mode with ModeHide substituted for empty.
func (e MountEntry) ModeOrDefault() MountMode {
	if e.Mode == "" {
		return ModeHide
	}
	return e.Mode
}

// FromAttrs decodes a MountEntry out of a generic attribute map read off
// an unstructured spec, as produced by unstructured.NestedMap.
func FromAttrs(attrs map[string]any) MountEntry {
	e := MountEntry{}
	if spec, ok := attrs["spec"].(map[string]any); ok {
		e.Spec = spec
	}
	if v, ok := attrs["version"].(string); ok {
		e.Version = v
	}
	if g, ok := attrs["generation"]; ok {
		e.Generation = toInt64(g)
	}
	if s, ok := attrs["status"].(string); ok {
		e.Status = MountStatus(s)
	}
	if m, ok := attrs["mode"].(string); ok {
		e.Mode = MountMode(m)
	}
	return e
}

// ToAttrs encodes a MountEntry back into the generic attribute map shape
// the store patches carry.
func (e MountEntry) ToAttrs() map[string]any {
	out := map[string]any{
		"spec":       e.Spec,
		"version":    e.Version,
		"generation": e.Generation,
	}
	if e.Status != "" {
		out["status"] = string(e.Status)
	}
	if e.Mode != "" {
		out["mode"] = string(e.Mode)
	}
	return out
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}

// MountMap is the parsed form of a parent's spec.mount attribute:
// gvr-string -> nsn-string -> MountEntry.
type MountMap map[string]map[string]MountEntry

// ParseMountMap reads spec.mount off a raw parent spec, tolerating both
// legacy bare-name and qualified nsn-string keys. Malformed entries are
// skipped and reported through the returned skipped slice, never a
// panic.
func ParseMountMap(spec map[string]any) (MountMap, []string) {
	out := make(MountMap)
	var skipped []string

	raw, ok := spec[AttrMount].(map[string]any)
	if !ok {
		return out, skipped
	}

	for gvrStr, v := range raw {
		if _, err := modelref.ParseGVR(gvrStr); err != nil {
			skipped = append(skipped, gvrStr)
			continue
		}
		models, ok := v.(map[string]any)
		if !ok {
			skipped = append(skipped, gvrStr)
			continue
		}
		entries := make(map[string]MountEntry, len(models))
		for nsnStr, mv := range models {
			attrs, ok := mv.(map[string]any)
			if !ok {
				skipped = append(skipped, gvrStr+"/"+nsnStr)
				continue
			}
			nsn := modelref.ParseNSN(nsnStr)
			entries[modelref.FormatNSN(nsn)] = FromAttrs(attrs)
		}
		out[gvrStr] = entries
	}
	return out, skipped
}

// Keys returns every (gvr, nsn) pair present in the mount map, with nsn
// fully qualified.
func (m MountMap) Keys() []modelref.ChildKey {
	var keys []modelref.ChildKey
	for gvrStr, models := range m {
		gvr, err := modelref.ParseGVR(gvrStr)
		if err != nil {
			continue
		}
		for nsnStr := range models {
			keys = append(keys, modelref.ChildKey{GVR: gvr, NSN: modelref.ParseNSN(nsnStr)})
		}
	}
	return keys
}

// Lookup finds the MountEntry for a child, accepting the legacy bare-name
// key alongside the canonical qualified one.
func (m MountMap) Lookup(gvr modelref.GVR, nsn modelref.NSN) (MountEntry, bool) {
	models, ok := m[gvr.String()]
	if !ok {
		return MountEntry{}, false
	}
	if e, ok := models[modelref.FormatNSN(nsn)]; ok {
		return e, true
	}
	if e, ok := models[nsn.Name]; ok {
		return e, true
	}
	return MountEntry{}, false
}
