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

func manifestOf(name string, files ...*swupd.File) *swupd.Manifest {
	return &swupd.Manifest{Name: name, Files: files}
}

func TestConsolidateFilesHigherVersionWins(t *testing.T) {
	low := &swupd.File{Name: "/foo", Hash: swupd.Hashval(1), Version: 10}
	high := &swupd.File{Name: "/foo", Hash: swupd.Hashval(2), Version: 20}

	result := consolidateFiles([]*swupd.Manifest{
		manifestOf("bundle-a", low),
		manifestOf("bundle-b", high),
	})

	if len(result) != 1 {
		t.Fatalf("expected 1 consolidated entry, got %d", len(result))
	}
	if result[0].Hash != high.Hash {
		t.Errorf("expected higher-version entry to win, got hash %v", result[0].Hash)
	}
}

func TestConsolidateFilesTieBreaksByBundleName(t *testing.T) {
	fromZ := &swupd.File{Name: "/foo", Hash: swupd.Hashval(1), Version: 10}
	fromA := &swupd.File{Name: "/foo", Hash: swupd.Hashval(2), Version: 10}

	result := consolidateFiles([]*swupd.Manifest{
		manifestOf("zzz-bundle", fromZ),
		manifestOf("aaa-bundle", fromA),
	})

	if len(result) != 1 {
		t.Fatalf("expected 1 consolidated entry, got %d", len(result))
	}
	if result[0].Hash != fromA.Hash {
		t.Errorf("expected lexicographically-smallest bundle name to win a version tie, got hash %v", result[0].Hash)
	}
}

func TestConsolidateFilesNoDuplicatePaths(t *testing.T) {
	a := &swupd.File{Name: "/a", Hash: swupd.Hashval(1), Version: 10}
	b := &swupd.File{Name: "/a", Hash: swupd.Hashval(2), Version: 10}
	c := &swupd.File{Name: "/b", Hash: swupd.Hashval(3), Version: 10}

	result := consolidateFiles([]*swupd.Manifest{manifestOf("bundle", a, b, c)})

	seen := make(map[string]bool)
	for _, f := range result {
		if seen[f.Name] {
			t.Fatalf("duplicate path %s in consolidated list", f.Name)
		}
		seen[f.Name] = true
	}
}

func TestLinkManifestsNewAndRemovedEntries(t *testing.T) {
	serverFiles := []*swupd.File{
		{Name: "/kept", Hash: swupd.Hashval(1), Version: 20},
		{Name: "/new", Hash: swupd.Hashval(2), Version: 20},
	}
	currentFiles := []*swupd.File{
		{Name: "/kept", Hash: swupd.Hashval(1), Version: 10},
		{Name: "/removed", Hash: swupd.Hashval(3), Version: 10},
	}

	linked := linkManifests(serverFiles, currentFiles)

	byName := make(map[string]*swupd.File)
	for _, f := range linked {
		byName[f.Name] = f
	}

	if kept, ok := byName["/kept"]; !ok || kept.DeltaPeer == nil {
		t.Errorf("expected /kept to be peer-linked to its current entry")
	}
	if _, ok := byName["/new"]; !ok {
		t.Errorf("expected /new to appear as a new entry")
	}
	removed, ok := byName["/removed"]
	if !ok || !removed.IsDeleted() {
		t.Errorf("expected /removed to appear as a tombstone")
	}
}

func TestLinkManifestsOrderedByName(t *testing.T) {
	serverFiles := []*swupd.File{
		{Name: "/usr/bin/b", Hash: swupd.Hashval(1), Version: 20},
		{Name: "/usr", Hash: swupd.Hashval(2), Version: 20},
		{Name: "/usr/bin", Hash: swupd.Hashval(3), Version: 20},
	}

	linked := linkManifests(serverFiles, nil)

	for i := 1; i < len(linked); i++ {
		if linked[i-1].Name > linked[i].Name {
			t.Fatalf("linked list not sorted ascending: %s before %s", linked[i-1].Name, linked[i].Name)
		}
	}
}

func TestCreateUpdateListExcludesDoNotUpdate(t *testing.T) {
	same := &swupd.File{Name: "/same", Hash: swupd.Hashval(1), Version: 20, DeltaPeer: &swupd.File{Hash: swupd.Hashval(1), Version: 10}}
	changed := &swupd.File{Name: "/changed", Hash: swupd.Hashval(2), Version: 20, DeltaPeer: &swupd.File{Hash: swupd.Hashval(1), Version: 10}}
	excluded := &swupd.File{Name: "/excluded", Hash: swupd.Hashval(2), Version: 20, DeltaPeer: &swupd.File{Hash: swupd.Hashval(1), Version: 10}, DoNotUpdate: true}
	deleted := &swupd.File{Name: "/deleted", Status: swupd.StatusDeleted, Version: 20}

	updates := CreateUpdateList([]*swupd.File{same, changed, excluded, deleted})

	names := make(map[string]bool)
	for _, f := range updates {
		names[f.Name] = true
	}

	if names["/same"] {
		t.Errorf("unchanged entry should not appear in the update list")
	}
	if !names["/changed"] {
		t.Errorf("changed entry should appear in the update list")
	}
	if names["/excluded"] {
		t.Errorf("do_not_update entry should never appear in the update list")
	}
	if !names["/deleted"] {
		t.Errorf("deleted entry should always appear in the update list")
	}
}

func TestCreateUpdateListIsSubsetOfConsolidated(t *testing.T) {
	serverFiles := []*swupd.File{
		{Name: "/a", Hash: swupd.Hashval(1), Version: 20},
		{Name: "/b", Hash: swupd.Hashval(2), Version: 20},
	}
	currentFiles := []*swupd.File{
		{Name: "/a", Hash: swupd.Hashval(1), Version: 10},
	}

	consolidated := linkManifests(serverFiles, currentFiles)
	updates := CreateUpdateList(consolidated)

	consolidatedNames := make(map[string]bool)
	for _, f := range consolidated {
		consolidatedNames[f.Name] = true
	}
	for _, f := range updates {
		if !consolidatedNames[f.Name] {
			t.Errorf("update list entry %s is not present in the consolidated list", f.Name)
		}
	}
}
