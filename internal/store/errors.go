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

import "errors"

// Sentinel error kinds callers branch on with errors.Is.
var (
	// ErrNotFound means the target resource is gone; callers treat this
	// as a deletion.
	ErrNotFound = errors.New("store: resource not found")
	// ErrConflict means the optimistic CAS precondition did not hold.
	ErrConflict = errors.New("store: resourceVersion conflict")
	// ErrTransient means a retryable network/store hiccup occurred.
	ErrTransient = errors.New("store: transient error")
)
