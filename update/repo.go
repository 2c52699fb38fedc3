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
	"fmt"
	"io/ioutil"

	"github.com/clearlinux/swupd-update/internal/client"
	"github.com/clearlinux/swupd-update/swupd"
)

// Repository is the transport collaborator the engine consumes: fetch MoMs,
// bundle manifests, fullfiles and deltas from a content base that can be a
// remote HTTP(S) URL or a local path (the mix branch always uses the
// latter). It is satisfied by *client.State, kept small so tests can supply
// a fake.
type Repository interface {
	GetMoM(version string) (*swupd.Manifest, error)
	GetBundleManifest(version, name, expectedHash string) (*swupd.Manifest, error)
	GetFullfile(version, hash string) error
	GetFile(elem ...string) (string, error)
	Path(elem ...string) string
}

// NewRepository adapts a Config into a Repository against its ContentURL,
// caching downloads under cfg.StateDir the way internal/client.State already
// does for the mixer's own swupd-inspector/swupd-extract tools.
func NewRepository(cfg Config) (Repository, error) {
	base := cfg.ContentURL
	st, err := client.NewState(cfg.StateDir, base)
	if err != nil {
		return nil, Wrap(Network, err, "couldn't initialize repository state")
	}
	return st, nil
}

// FetchDelta downloads a binary delta patch file for the given predecessor
// and target hash pair, used by the delta engine (C5). The wire layout
// mirrors the server's "<version>/delta/<from>-<to>-<fromhash>-<tohash>"
// naming convention used by swupd/delta.go on the build side.
func FetchDelta(repo Repository, toVersion uint32, fromVersion uint32, fromHash, toHash string) (string, error) {
	name := fmt.Sprintf("%d-%d-%s-%s", fromVersion, toVersion, fromHash, toHash)
	return repo.GetFile(fmt.Sprint(toVersion), "delta", name)
}

// readVersionFile reads a simple integer version marker file, used both for
// the local "version/format" state file (C1) and for the remote version URL
// once downloaded by the caller.
func readVersionFile(path string) (uint32, error) {
	b, err := ioutil.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return parseVersion(string(b))
}
