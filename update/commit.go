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
	"os"
	"path/filepath"
	"sort"
	"syscall"

	"github.com/clearlinux/swupd-update/log"
	"github.com/clearlinux/swupd-update/swupd"
)

// Committer implements C9: the crash-safe commit phase that replaces the
// staged shadow tree onto the final root, bracketed by a global sync on
// each side.
type Committer struct {
	cfg    Config
	stager *Stager
}

// NewCommitter constructs a Committer bound to the Stager whose shadow
// paths it will rename into place.
func NewCommitter(cfg Config, stager *Stager) *Committer {
	return &Committer{cfg: cfg, stager: stager}
}

// Commit implements rename_all_files_to_final: for each entry, atomically
// renames the shadow to the final path (or removes it, for a tombstone; a
// directory entry whose final path is already a directory keeps that
// directory and drops its shadow). Ordering is directories-before-contents,
// matching the update list order.
// If any rename fails the function stops and returns an error; the update
// is considered partially applied (§7) and the caller should invoke
// Stager.Cleanup on whatever remains.
func (c *Committer) Commit(updates []*swupd.File) error {
	sorted := make([]*swupd.File, len(updates))
	copy(sorted, updates)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	syscall.Sync()

	for _, f := range sorted {
		final := filepath.Join(c.cfg.PathPrefix, f.Name)

		if f.IsDeleted() {
			if err := os.RemoveAll(final); err != nil && !os.IsNotExist(err) {
				return Wrapf(CommitFailed, err, "couldn't remove %s", f.Name)
			}
			continue
		}

		shadow := c.stager.ShadowPath(f)
		if f.Type == swupd.TypeDirectory {
			// A directory already at the final path (present before the
			// update, or created while staging an entry beneath it) is
			// kept: rename cannot replace a non-empty directory, so only
			// the empty shadow is removed.
			if info, err := os.Lstat(final); err == nil && info.IsDir() {
				_ = os.Remove(shadow)
				continue
			}
		}
		if err := os.MkdirAll(filepath.Dir(final), 0755); err != nil {
			return Wrapf(CommitFailed, err, "couldn't prepare %s for rename", f.Name)
		}
		if err := os.Rename(shadow, final); err != nil {
			return Wrapf(CommitFailed, err, "couldn't rename %s to final", f.Name)
		}
	}

	syscall.Sync()
	log.Info(log.Update, "committed %d entries", len(sorted))
	return nil
}
