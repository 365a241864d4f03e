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

	"github.com/digi-dev/mounter/internal/modelref"
)

// ReconcileBridge is the seam between a Mounter and whatever external
// collaborator also issues writes against the same parent or child
// models (a status reconciler living in the same driver process, for
// instance). Every write the Mounter itself performs is funneled
// through a ReconcileBridge instead of touching the GenerationLedger
// directly, so a driver can supply a bridge that fans the same
// bookkeeping out to its own reconcile loop without that loop
// mistaking the Mounter's writes for independent user intent.
type ReconcileBridge interface {
	// RecordParentWrite publishes the parent generation read
	// immediately before a write the runtime itself issued.
	RecordParentWrite(ctx context.Context, gvr modelref.GVR, nsn modelref.NSN, generation int64)

	// RecordChildWrite does the same for a mounted child.
	RecordChildWrite(ctx context.Context, key modelref.ChildKey, generation int64)
}
