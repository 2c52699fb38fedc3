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
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/clearlinux/swupd-update/log"
)

var osReleaseVersionRE = regexp.MustCompile(`(?m)^VERSION_ID=(\d+)\n?$`)

func parseVersion(s string) (uint32, error) {
	s = strings.TrimSpace(s)
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, err
	}
	return uint32(v), nil
}

// currentVersion reads the locally-installed version, the way
// mcswupd/main.go's getCurrentVersion reads VERSION_ID from os-release: it
// checks the state directory's own marker file first (written by a prior
// successful update), falling back to the root's os-release.
func currentVersion(cfg Config) (uint32, error) {
	marker := filepath.Join(cfg.StateDir, "version", "format")
	if v, err := readVersionFile(marker); err == nil {
		return v, nil
	}

	b, err := ioutil.ReadFile(filepath.Join(cfg.PathPrefix, "usr/lib/os-release"))
	if err != nil {
		return 0, Wrap(ConfigError, err, "unable to determine current version")
	}
	m := osReleaseVersionRE.FindStringSubmatch(string(b))
	if len(m) == 0 {
		return 0, Wrap(ConfigError, nil, "VERSION_ID not found in os-release")
	}
	return parseVersion(m[1])
}

// serverVersion reads the latest published version from the "latest" marker
// at the repository's content base (cfg.ContentURL), downloading it into the
// repository's cache. Config.VersionURL is not consulted.
func serverVersion(repo Repository) (uint32, error) {
	path, err := repo.GetFile("latest")
	if err != nil {
		return 0, Wrap(Network, err, "couldn't fetch server version")
	}
	v, err := readVersionFile(path)
	if err != nil {
		return 0, Wrap(ManifestParse, err, "couldn't parse server version")
	}
	return v, nil
}

// NegotiateVersion implements C1: reads the current and server versions and
// decides whether an update is needed. Both versions are returned even on
// NoUpdate so the caller can log/telemeter them.
func NegotiateVersion(cfg Config, repo Repository) (Decision, error) {
	from, err := currentVersion(cfg)
	if err != nil {
		return Decision{}, err
	}

	to, err := serverVersion(repo)
	if err != nil {
		log.Error(log.Update, "could not read server version: %s", err)
		return Decision{From: from}, err
	}

	log.Info(log.Update, "current version: %d, server version: %d", from, to)

	if to <= from {
		return Decision{NoUpdate: true, From: from, To: to}, nil
	}
	return Decision{From: from, To: to}, nil
}
