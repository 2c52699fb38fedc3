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
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/clearlinux/swupd-update/swupd"
)

// fakeRepo is a minimal Repository used by stage/commit tests: only Path is
// exercised by the Stager, the rest satisfy the interface but are unused.
type fakeRepo struct {
	base string
}

func (r *fakeRepo) GetMoM(version string) (*swupd.Manifest, error) { return nil, errNotImplemented }
func (r *fakeRepo) GetBundleManifest(version, name, expectedHash string) (*swupd.Manifest, error) {
	return nil, errNotImplemented
}
func (r *fakeRepo) GetFullfile(version, hash string) error { return errNotImplemented }
func (r *fakeRepo) GetFile(elem ...string) (string, error) { return "", errNotImplemented }
func (r *fakeRepo) Path(elem ...string) string {
	return filepath.Join(append([]string{r.base}, elem...)...)
}

var errNotImplemented = Wrap(ConfigError, nil, "not implemented in fakeRepo")

// stagedContentFile writes content under repoBase/staged/<hash> and returns
// the swupd.Hashval matching that content, the way a real fullfile
// extraction would have left it there.
func stagedContentFile(t *testing.T, repoBase string, content string) swupd.Hashval {
	t.Helper()
	tmp, err := ioutil.TempFile("", "content")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.WriteString(content); err != nil {
		t.Fatal(err)
	}
	_ = tmp.Close()

	hv, err := swupd.Hashcalc(tmp.Name())
	if err != nil {
		t.Fatal(err)
	}

	if err := os.MkdirAll(filepath.Join(repoBase, "staged"), 0755); err != nil {
		t.Fatal(err)
	}
	dst := filepath.Join(repoBase, "staged", hv.String())
	data, err := ioutil.ReadFile(tmp.Name())
	if err != nil {
		t.Fatal(err)
	}
	if err := ioutil.WriteFile(dst, data, 0644); err != nil {
		t.Fatal(err)
	}
	return hv
}

func TestStageOneRegularFile(t *testing.T) {
	root := t.TempDir()
	repoBase := t.TempDir()

	hv := stagedContentFile(t, repoBase, "hello from update")

	cfg := Config{PathPrefix: root}
	stager := NewStager(cfg, &fakeRepo{base: repoBase})

	f := &swupd.File{Name: "/usr/share/hello.txt", Type: swupd.TypeFile, Hash: hv}
	if err := stager.StageAll([]*swupd.File{f}); err != nil {
		t.Fatalf("StageAll failed: %s", err)
	}

	shadow := stager.ShadowPath(f)
	data, err := ioutil.ReadFile(shadow)
	if err != nil {
		t.Fatalf("expected shadow file at %s: %s", shadow, err)
	}
	if string(data) != "hello from update" {
		t.Errorf("shadow content = %q, want %q", data, "hello from update")
	}
}

func TestStageOneDirectory(t *testing.T) {
	root := t.TempDir()
	repoBase := t.TempDir()

	cfg := Config{PathPrefix: root}
	stager := NewStager(cfg, &fakeRepo{base: repoBase})

	f := &swupd.File{Name: "/usr/share/doc", Type: swupd.TypeDirectory}
	if err := stager.StageAll([]*swupd.File{f}); err != nil {
		t.Fatalf("StageAll failed: %s", err)
	}

	info, err := os.Stat(stager.ShadowPath(f))
	if err != nil || !info.IsDir() {
		t.Errorf("expected a directory at the shadow path")
	}
}

func TestStageOneRejectsHashMismatch(t *testing.T) {
	root := t.TempDir()
	repoBase := t.TempDir()

	hv := stagedContentFile(t, repoBase, "real content")

	cfg := Config{PathPrefix: root}
	stager := NewStager(cfg, &fakeRepo{base: repoBase})

	// Declare a hash that does not match what's actually staged under it.
	wrongHash := stagedContentFile(t, repoBase, "different content")
	f := &swupd.File{Name: "/usr/share/hello.txt", Type: swupd.TypeFile, Hash: wrongHash}
	_ = hv

	// Overwrite the content at wrongHash's path so it no longer matches.
	if err := ioutil.WriteFile(filepath.Join(repoBase, "staged", wrongHash.String()), []byte("tampered"), 0644); err != nil {
		t.Fatal(err)
	}

	err := stager.StageAll([]*swupd.File{f})
	if err == nil {
		t.Fatal("expected staging to reject mismatched content hash")
	}
	if !IsKind(err, StagingFailed) {
		t.Errorf("expected a StagingFailed error, got %v", err)
	}
}

func TestStageAllSkipsDoNotUpdateAndDeleted(t *testing.T) {
	root := t.TempDir()
	repoBase := t.TempDir()

	cfg := Config{PathPrefix: root}
	stager := NewStager(cfg, &fakeRepo{base: repoBase})

	excluded := &swupd.File{Name: "/excluded", Type: swupd.TypeDirectory, DoNotUpdate: true}
	deleted := &swupd.File{Name: "/gone", Status: swupd.StatusDeleted}

	if err := stager.StageAll([]*swupd.File{excluded, deleted}); err != nil {
		t.Fatalf("StageAll failed: %s", err)
	}
	if _, err := os.Stat(stager.ShadowPath(excluded)); err == nil {
		t.Errorf("do_not_update entry should not be staged")
	}
	if _, err := os.Stat(stager.ShadowPath(deleted)); err == nil {
		t.Errorf("deleted entry should not be staged")
	}
}
