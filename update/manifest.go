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

	"github.com/clearlinux/swupd-update/log"
	"github.com/clearlinux/swupd-update/swupd"
)

// LoadMoM implements C2: fetches and parses the Manifest-of-Manifests for
// version, retried up to cfg.MaxTries times with exponential backoff.
// LoadMoM treats the current and server versions alike; the caller (Driver)
// decides whether a failure for the current version is recoverable, and
// downgrades it to "deltas disabled" instead of failing the run.
func LoadMoM(cfg Config, repo Repository, version uint32) (*swupd.MoM, error) {
	var mom *swupd.Manifest
	err := retry(cfg.MaxTries, cfg.InitialBackoff, func(attempt int) (bool, error) {
		var lerr error
		mom, lerr = repo.GetMoM(fmt.Sprint(version))
		if lerr != nil {
			log.Warning(log.Update, "failed to load MoM for version %d (attempt %d): %s", version, attempt+1, lerr)
			return false, Wrap(ManifestNotFound, lerr, "couldn't load MoM")
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return &swupd.MoM{Manifest: *mom}, nil
}
