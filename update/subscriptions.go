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
	"sort"

	"github.com/clearlinux/swupd-update/internal/stringset"
	"github.com/clearlinux/swupd-update/log"
	"github.com/clearlinux/swupd-update/swupd"
)

// ResolveSubscriptions implements C3 (recurse_manifest): given a MoM and the
// names of the bundles the system is subscribed to, it fetches every
// sub-manifest reachable from that seed set, following the "includes:"
// entries in each fetched manifest's header, until the frontier is empty.
// Returns the fetched sub-manifests (unique by bundle name) and the updated
// subscription records including transitive includes. A name reached from
// more than one seed bundle is recorded only under the first one to reach it.
func ResolveSubscriptions(cfg Config, repo Repository, version uint32, mom *swupd.MoM, seedBundles []string) ([]*swupd.Manifest, []Subscription, error) {
	byName := make(map[string]*swupd.File, len(mom.Files))
	for _, f := range mom.Files {
		byName[f.Name] = f
	}

	seen := stringset.New()
	var frontier []string
	// owner maps every queued name to the seed bundle it was reached from,
	// so includes of includes are recorded on that seed's subscription.
	owner := make(map[string]string)
	for _, name := range seedBundles {
		if !seen.Contains(name) {
			seen.Add(name)
			frontier = append(frontier, name)
			owner[name] = name
		}
	}

	var fetched []*swupd.Manifest
	subs := make(map[string]*Subscription)
	for _, name := range seedBundles {
		subs[name] = &Subscription{Name: name, TargetVersion: version}
	}

	for len(frontier) > 0 {
		name := frontier[0]
		frontier = frontier[1:]

		entry, ok := byName[name]
		if !ok {
			// Not every included name necessarily ships a bundle in this
			// MoM (e.g. an index bundle); skip silently like readIncludes
			// does for names it cannot resolve.
			continue
		}

		var m *swupd.Manifest
		err := retry(cfg.MaxTries, cfg.InitialBackoff, func(attempt int) (bool, error) {
			var ferr error
			m, ferr = repo.GetBundleManifest(fmt.Sprint(entry.Version), name, entry.Hash.String())
			if ferr != nil {
				log.Warning(log.Update, "failed to fetch sub-manifest %s (attempt %d): %s", name, attempt+1, ferr)
				return false, Wrapf(ManifestRecurse, ferr, "couldn't fetch sub-manifest %s", name)
			}
			return true, nil
		})
		if err != nil {
			return nil, nil, err
		}

		fetched = append(fetched, m)
		if sub, ok := subs[name]; ok {
			sub.TargetVersion = m.Header.Version
		}

		for _, inc := range m.Header.Includes {
			if inc.Name == "" || seen.Contains(inc.Name) {
				continue
			}
			seen.Add(inc.Name)
			frontier = append(frontier, inc.Name)
			owner[inc.Name] = owner[name]
			if sub, ok := subs[owner[name]]; ok {
				sub.Includes = append(sub.Includes, inc.Name)
			}
		}
	}

	result := make([]Subscription, 0, len(subs))
	for _, sub := range subs {
		result = append(result, *sub)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })

	return fetched, result, nil
}
