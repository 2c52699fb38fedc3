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
	"sort"

	"github.com/clearlinux/swupd-update/swupd"
)

// filesFromBundles flattens every sub-manifest's files into one sequence,
// implementing files_from_bundles.
func filesFromBundles(manifests []*swupd.Manifest) []*swupd.File {
	var all []*swupd.File
	for _, m := range manifests {
		all = append(all, m.Files...)
	}
	return all
}

type ownedFile struct {
	bundle string
	file   *swupd.File
}

// consolidateFiles implements consolidate_files: flattens every sub-manifest
// into one path-deduplicated sequence. When two entries share a path, the
// entry from the higher-version bundle wins; ties are resolved by
// lexicographically-smallest bundle name, a stable rule chosen because the
// source does not specify a direction for the tie-break.
func consolidateFiles(manifests []*swupd.Manifest) []*swupd.File {
	winners := make(map[string]ownedFile)
	for _, m := range manifests {
		for _, f := range m.Files {
			cur, ok := winners[f.Name]
			if !ok {
				winners[f.Name] = ownedFile{bundle: m.Name, file: f}
				continue
			}
			switch {
			case f.Version > cur.file.Version:
				winners[f.Name] = ownedFile{bundle: m.Name, file: f}
			case f.Version == cur.file.Version && m.Name < cur.bundle:
				winners[f.Name] = ownedFile{bundle: m.Name, file: f}
			}
		}
	}

	result := make([]*swupd.File, 0, len(winners))
	for _, of := range winners {
		result = append(result, of.file)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// linkManifests implements link_manifests + link_renames: pairs each
// consolidated server-side entry with its current-side counterpart by path.
// Unmatched server entries are new files. Unmatched current entries (absent
// from the server consolidation) become synthesized tombstones: they are
// removals the update list must carry so the stager/committer unlink them.
// Matching entries get DeltaPeer set on both sides, mirroring
// swupd.Manifest.linkPeersAndChange's two-pointer merge.
func linkManifests(serverFiles, currentFiles []*swupd.File) []*swupd.File {
	sort.Slice(serverFiles, func(i, j int) bool { return serverFiles[i].Name < serverFiles[j].Name })
	sort.Slice(currentFiles, func(i, j int) bool { return currentFiles[i].Name < currentFiles[j].Name })

	var result []*swupd.File
	sx, cx := 0, 0
	for sx < len(serverFiles) && cx < len(currentFiles) {
		sf := serverFiles[sx]
		cf := currentFiles[cx]
		switch {
		case sf.Name == cf.Name:
			if cf.Present() {
				sf.DeltaPeer = cf
				cf.DeltaPeer = sf
			}
			result = append(result, sf)
			sx++
			cx++
		case sf.Name < cf.Name:
			result = append(result, sf)
			sx++
		default:
			if cf.Present() {
				result = append(result, tombstoneFor(cf))
			}
			cx++
		}
	}
	for ; sx < len(serverFiles); sx++ {
		result = append(result, serverFiles[sx])
	}
	for ; cx < len(currentFiles); cx++ {
		if currentFiles[cx].Present() {
			result = append(result, tombstoneFor(currentFiles[cx]))
		}
	}

	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// tombstoneFor synthesizes a deletion record for a path present in the
// current manifest but absent from the server's consolidated list.
func tombstoneFor(cf *swupd.File) *swupd.File {
	return &swupd.File{
		Name:    cf.Name,
		Status:  swupd.StatusDeleted,
		Type:    cf.Type,
		Version: cf.Version,
	}
}

// CreateUpdateList implements create_update_list: every server entry whose
// paired current entry is absent or has a different hash, plus every entry
// flagged is_deleted, excluding anything flagged do_not_update. The result
// is already sorted ascending by filename (so parent directories precede
// their children) because linkManifests produces a sorted list.
func CreateUpdateList(consolidated []*swupd.File) []*swupd.File {
	var updates []*swupd.File
	for _, f := range consolidated {
		if f.DoNotUpdate {
			continue
		}
		if f.IsDeleted() {
			updates = append(updates, f)
			continue
		}
		if f.DeltaPeer == nil || f.DeltaPeer.Hash != f.Hash {
			updates = append(updates, f)
		}
	}
	return updates
}
