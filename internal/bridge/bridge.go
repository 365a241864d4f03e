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

// Package bridge provides the default mounter.ReconcileBridge: one that
// does nothing but publish generations into the shared GenerationLedger.
// A driver wiring its own reconcile loop through the same ledger can
// wrap LedgerBridge to fan a write out to both places instead of
// reimplementing the ledger bookkeeping itself.
package bridge

import (
	"context"

	"github.com/digi-dev/mounter/internal/ledger"
	"github.com/digi-dev/mounter/internal/modelref"
)

// LedgerBridge satisfies mounter.ReconcileBridge by delegating straight
// to a GenerationLedger.
type LedgerBridge struct {
	Ledger *ledger.Ledger
}

// New builds a LedgerBridge over an existing ledger.
func New(l *ledger.Ledger) *LedgerBridge {
	return &LedgerBridge{Ledger: l}
}

// RecordParentWrite publishes the parent generation read immediately
// before a write the runtime itself issued.
func (b *LedgerBridge) RecordParentWrite(_ context.Context, _ modelref.GVR, _ modelref.NSN, generation int64) {
	b.Ledger.SetParent(generation)
}

// RecordChildWrite does the same for a mounted child.
func (b *LedgerBridge) RecordChildWrite(_ context.Context, key modelref.ChildKey, generation int64) {
	b.Ledger.SetChild(key, generation)
}
