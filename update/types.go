// Copyright 2017 Intel Corporation
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package update implements the client-side update engine: version
// negotiation, manifest recursion and consolidation, delta-then-full content
// acquisition with bounded retry, optional mix overlay, staging and the
// crash-safe commit phase.
package update

import "github.com/clearlinux/swupd-update/swupd"

// Subscription is a bundle the system has opted into, tracked from current
// to target version. Includes is filled in transitively by
// ResolveSubscriptions (C3); a bundle reached from several subscriptions is
// listed only under the first.
type Subscription struct {
	Name           string
	CurrentVersion uint32
	TargetVersion  uint32
	Includes       []string
}

// Source distinguishes the upstream pipeline from the optional mix overlay.
type Source int

// The two pipeline sources named in §3: updates[0] is upstream, updates[1]
// is the optional mix overlay.
const (
	Upstream Source = 0
	Mix      Source = 1
)

// PipelineState holds the (updates, manifests) pair per source described in
// the data model: index 0 is upstream, index 1 is the optional mix branch.
type PipelineState struct {
	Updates   [2][]*swupd.File
	Manifests [2]*swupd.MoM
}

// Decision is the outcome of version negotiation (C1).
type Decision struct {
	NoUpdate bool
	From     uint32
	To       uint32
}
