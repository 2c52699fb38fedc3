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

package update

import (
	"testing"

	"github.com/clearlinux/swupd-update/swupd"
)

func TestTryDeltaSkipsDirectories(t *testing.T) {
	engine := NewDeltaEngine(Config{}, &fakeRepo{base: t.TempDir()})
	f := &swupd.File{Name: "/usr/share/doc", Type: swupd.TypeDirectory, DeltaPeer: &swupd.File{Hash: swupd.Hashval(0), Version: 10}}

	if engine.TryDelta(f) {
		t.Errorf("expected TryDelta to refuse a non-regular-file entry")
	}
}

func TestTryDeltaSkipsEntriesWithoutPeer(t *testing.T) {
	engine := NewDeltaEngine(Config{}, &fakeRepo{base: t.TempDir()})
	f := &swupd.File{Name: "/usr/bin/new-tool", Type: swupd.TypeFile}

	if engine.TryDelta(f) {
		t.Errorf("expected TryDelta to refuse an entry with no delta predecessor")
	}
}

func TestTryDeltaSkipsWhenPredecessorNotStagedLocally(t *testing.T) {
	repoBase := t.TempDir()
	engine := NewDeltaEngine(Config{}, &fakeRepo{base: repoBase})

	f := &swupd.File{
		Name:      "/usr/bin/tool",
		Type:      swupd.TypeFile,
		Hash:      swupd.Hashval(0),
		DeltaPeer: &swupd.File{Hash: hashFromString(t, "predecessor content"), Version: 10},
	}

	if engine.TryDelta(f) {
		t.Errorf("expected TryDelta to fall back to full download when the predecessor blob is absent")
	}
}

func TestTryDeltasReturnsAllUnresolvedCandidates(t *testing.T) {
	engine := NewDeltaEngine(Config{NumWorkers: 4}, &fakeRepo{base: t.TempDir()})

	candidates := []*swupd.File{
		{Name: "/a", Type: swupd.TypeFile},
		{Name: "/b", Type: swupd.TypeFile},
		{Name: "/c", Type: swupd.TypeDirectory, DeltaPeer: &swupd.File{Hash: swupd.Hashval(0), Version: 5}},
	}

	remaining := engine.TryDeltas(candidates)
	if len(remaining) != len(candidates) {
		t.Fatalf("expected all %d candidates to remain (none had an eligible local predecessor), got %d", len(candidates), len(remaining))
	}
}
