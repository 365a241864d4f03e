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

// Package modelref identifies model kinds and instances by the
// gvr-string/nsn-string encodings the mount runtime uses on the wire.
package modelref

import (
	"fmt"
	"strings"
)

// DefaultNamespace is substituted for nsn-strings that omit a namespace.
const DefaultNamespace = "default"

// GVR identifies a model kind: (group, version, plural).
type GVR struct {
	Group   string
	Version string
	Plural  string
}

// String renders the canonical "<group>/<version>/<plural>" encoding.
func (g GVR) String() string {
	return fmt.Sprintf("%s/%s/%s", g.Group, g.Version, g.Plural)
}

// ParseGVR parses a "<group>/<version>/<plural>" string.
func ParseGVR(s string) (GVR, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 3 {
		return GVR{}, fmt.Errorf("modelref: malformed gvr-string %q", s)
	}
	return GVR{Group: parts[0], Version: parts[1], Plural: parts[2]}, nil
}

// NSN identifies a model instance: (namespace, name).
type NSN struct {
	Namespace string
	Name      string
}

// String renders the canonical "<namespace>/<name>" encoding, restoring
// DefaultNamespace when empty.
func (n NSN) String() string {
	ns := n.Namespace
	if ns == "" {
		ns = DefaultNamespace
	}
	return ns + "/" + n.Name
}

// ParseNSN parses a "<namespace>/<name>" string. The legacy bare-name
// form "<name>" (no namespace) is accepted and normalized to
// DefaultNamespace: tolerated on read, never produced on write (see
// FormatNSN / NSN.String).
func ParseNSN(s string) NSN {
	if idx := strings.IndexByte(s, '/'); idx >= 0 {
		return NSN{Namespace: s[:idx], Name: s[idx+1:]}
	}
	return NSN{Namespace: DefaultNamespace, Name: s}
}

// FormatNSN returns the canonical encoding for an NSN, restoring
// DefaultNamespace when empty. Every value the Mounter writes goes
// through this, never through a bare name.
func FormatNSN(n NSN) string {
	return n.String()
}

// ChildKey uniquely keys a mounted child across the whole parent: its
// kind and its instance.
type ChildKey struct {
	GVR GVR
	NSN NSN
}

// String renders "<gvr-string>@<nsn-string>", used for logging and maps
// that need a comparable, loggable key.
func (k ChildKey) String() string {
	return k.GVR.String() + "@" + k.NSN.String()
}
