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
	"time"

	"github.com/clearlinux/swupd-update/swupd"
)

// subscriptionFakeRepo serves fixed bundle manifests by name, used to
// exercise ResolveSubscriptions' includes-following BFS without a network.
type subscriptionFakeRepo struct {
	fakeRepo
	manifests map[string]*swupd.Manifest
	failOnce  map[string]bool
}

func (r *subscriptionFakeRepo) GetBundleManifest(version, name, expectedHash string) (*swupd.Manifest, error) {
	if r.failOnce[name] {
		r.failOnce[name] = false
		return nil, errNotImplemented
	}
	m, ok := r.manifests[name]
	if !ok {
		return nil, errNotImplemented
	}
	return m, nil
}

func TestResolveSubscriptionsFollowsIncludes(t *testing.T) {
	osCoreUpdate := &swupd.Manifest{Name: "os-core-update"}
	osCore := &swupd.Manifest{
		Name:   "os-core",
		Header: swupd.ManifestHeader{Version: 20, Includes: []*swupd.Manifest{{Name: "os-core-update"}}},
	}
	editors := &swupd.Manifest{Name: "editors", Header: swupd.ManifestHeader{Version: 20}}

	mom := &swupd.MoM{Manifest: swupd.Manifest{Files: []*swupd.File{
		{Name: "os-core", Version: 20},
		{Name: "os-core-update", Version: 20},
		{Name: "editors", Version: 20},
	}}}

	repo := &subscriptionFakeRepo{manifests: map[string]*swupd.Manifest{
		"os-core":        osCore,
		"os-core-update": osCoreUpdate,
		"editors":        editors,
	}}

	cfg := Config{MaxTries: 1, InitialBackoff: time.Millisecond}
	fetched, subs, err := ResolveSubscriptions(cfg, repo, 20, mom, []string{"os-core", "editors"})
	if err != nil {
		t.Fatalf("ResolveSubscriptions failed: %s", err)
	}

	names := make(map[string]bool)
	for _, m := range fetched {
		names[m.Name] = true
	}
	if !names["os-core"] || !names["os-core-update"] || !names["editors"] {
		t.Errorf("expected transitive include os-core-update to be fetched, got %v", names)
	}

	var osCoreSub *Subscription
	for i := range subs {
		if subs[i].Name == "os-core" {
			osCoreSub = &subs[i]
		}
	}
	if osCoreSub == nil || len(osCoreSub.Includes) != 1 || osCoreSub.Includes[0] != "os-core-update" {
		t.Errorf("expected os-core's subscription to record its transitive include, got %+v", osCoreSub)
	}
}

func TestResolveSubscriptionsDeduplicatesFrontier(t *testing.T) {
	shared := &swupd.Manifest{Name: "shared", Header: swupd.ManifestHeader{Version: 10}}
	a := &swupd.Manifest{Name: "a", Header: swupd.ManifestHeader{Version: 10, Includes: []*swupd.Manifest{{Name: "shared"}}}}
	b := &swupd.Manifest{Name: "b", Header: swupd.ManifestHeader{Version: 10, Includes: []*swupd.Manifest{{Name: "shared"}}}}

	mom := &swupd.MoM{Manifest: swupd.Manifest{Files: []*swupd.File{
		{Name: "a", Version: 10},
		{Name: "b", Version: 10},
		{Name: "shared", Version: 10},
	}}}

	repo := &subscriptionFakeRepo{manifests: map[string]*swupd.Manifest{"a": a, "b": b, "shared": shared}}
	cfg := Config{MaxTries: 1, InitialBackoff: time.Millisecond}

	fetched, _, err := ResolveSubscriptions(cfg, repo, 10, mom, []string{"a", "b"})
	if err != nil {
		t.Fatalf("ResolveSubscriptions failed: %s", err)
	}

	count := 0
	for _, m := range fetched {
		if m.Name == "shared" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("expected shared bundle to be fetched exactly once, got %d", count)
	}
}

func TestResolveSubscriptionsRetriesBeforeFailing(t *testing.T) {
	osCore := &swupd.Manifest{Name: "os-core", Header: swupd.ManifestHeader{Version: 10}}
	mom := &swupd.MoM{Manifest: swupd.Manifest{Files: []*swupd.File{{Name: "os-core", Version: 10}}}}

	repo := &subscriptionFakeRepo{
		manifests: map[string]*swupd.Manifest{"os-core": osCore},
		failOnce:  map[string]bool{"os-core": true},
	}

	defer func(f func(time.Duration)) { sleepFunc = f }(sleepFunc)
	sleepFunc = func(time.Duration) {}

	cfg := Config{MaxTries: 2, InitialBackoff: time.Millisecond}
	fetched, _, err := ResolveSubscriptions(cfg, repo, 10, mom, []string{"os-core"})
	if err != nil {
		t.Fatalf("expected the retry to succeed on the second attempt, got %s", err)
	}
	if len(fetched) != 1 {
		t.Errorf("expected exactly one fetched manifest, got %d", len(fetched))
	}
}
