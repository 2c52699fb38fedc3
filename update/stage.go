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
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/clearlinux/swupd-update/log"
	"github.com/clearlinux/swupd-update/swupd"
)

// shadowSuffix matches the source's "<path>.update" shadow naming.
const shadowSuffix = ".update"

// Stager implements C8: places verified content into a shadow tree
// alongside its final location, ahead of the Committer's atomic rename.
type Stager struct {
	cfg  Config
	repo Repository
}

// NewStager constructs a Stager bound to the given repository's content
// store (the "staged/<hash>" pool internal/client.State's extractFullfile
// already populates).
func NewStager(cfg Config, repo Repository) *Stager {
	return &Stager{cfg: cfg, repo: repo}
}

// ShadowPath returns the shadow path an update list entry stages to.
func (s *Stager) ShadowPath(f *swupd.File) string {
	return filepath.Join(s.cfg.PathPrefix, f.Name+shadowSuffix)
}

// StageAll walks the update list in ascending filename order -- so that
// parent directories are staged before the entries they contain -- and
// stages every entry that is not flagged do_not_update or is_deleted.
// Staging failure on any single entry aborts the whole call with an error;
// the committer must not be entered.
func (s *Stager) StageAll(updates []*swupd.File) error {
	sorted := make([]*swupd.File, len(updates))
	copy(sorted, updates)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	for _, f := range sorted {
		if f.DoNotUpdate || f.IsDeleted() {
			continue
		}
		if err := s.stageOne(f); err != nil {
			return Wrapf(StagingFailed, err, "couldn't stage %s", f.Name)
		}
	}
	return nil
}

// stageOne implements do_staging: verifies the staged-content hash, creates
// parent directories if absent, and materializes the entry at its shadow
// path.
func (s *Stager) stageOne(f *swupd.File) error {
	shadow := s.ShadowPath(f)
	if err := os.MkdirAll(filepath.Dir(shadow), 0755); err != nil {
		return err
	}

	switch f.Type {
	case swupd.TypeDirectory:
		return os.MkdirAll(shadow, 0755)
	case swupd.TypeLink:
		return s.stageSymlink(f, shadow)
	default:
		return s.stageRegular(f, shadow)
	}
}

func (s *Stager) stageRegular(f *swupd.File, shadow string) error {
	src := s.repo.Path("staged", f.Hash.String())
	hash, err := swupd.GetHashForFile(src)
	if err != nil {
		return err
	}
	if hash != f.Hash.String() {
		return Wrapf(StagingFailed, nil, "staged content for %s has wrong hash: got %s want %s", f.Name, hash, f.Hash)
	}

	_ = os.Remove(shadow)
	// Try a hardlink first -- resolving hardlinks ahead of content copy
	// keeps multiple entries sharing the same hash from duplicating bytes
	// on disk -- falling back to a copy across filesystem boundaries.
	if err := os.Link(src, shadow); err == nil {
		return nil
	}
	return copyFile(src, shadow)
}

func (s *Stager) stageSymlink(f *swupd.File, shadow string) error {
	src := s.repo.Path("staged", f.Hash.String())
	target, err := os.Readlink(src)
	if err != nil {
		return err
	}
	_ = os.Remove(shadow)
	return os.Symlink(target, shadow)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_RDWR|os.O_CREATE|os.O_TRUNC, info.Mode())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

// Cleanup best-effort removes any shadow files left behind by a failed or
// interrupted staging/commit attempt, per the CommitFailed policy in §7:
// "remaining shadow files must be cleaned up best-effort."
func (s *Stager) Cleanup(updates []*swupd.File) {
	for _, f := range updates {
		shadow := s.ShadowPath(f)
		if err := os.Remove(shadow); err != nil && !os.IsNotExist(err) {
			log.Warning(log.Update, "couldn't remove leftover shadow file %s: %s", shadow, err)
		}
	}
}
