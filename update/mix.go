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
	"context"
	"os"
	"path/filepath"

	"github.com/clearlinux/swupd-update/log"
	"github.com/clearlinux/swupd-update/swupd"
)

// checkMixExists implements check_mix_exists(): the mix branch only runs
// when the mix branch is enabled, MixContentURL is set, and that local path
// exists.
func checkMixExists(cfg Config) bool {
	if !cfg.MixEnabled || cfg.MixContentURL == "" {
		return false
	}
	_, err := os.Stat(cfg.MixContentURL)
	return err == nil
}

// MixOverlay implements C7: repeats C2-C4 against the locally-published mix
// MoM for the current and target versions. Mix downloads use a derived,
// retry-disabled configuration (Config.WithLocalURL) because the source is
// the local filesystem; a single failure there is fatal for the mix branch
// only and never aborts the upstream update (§4.7, §7).
func MixOverlay(ctx context.Context, cfg Config, current, target uint32, seedBundles []string) ([]*swupd.File, error) {
	if !checkMixExists(cfg) {
		return nil, nil
	}

	mixCfg := cfg.WithLocalURL(cfg.MixContentURL)
	repo, err := NewRepository(mixCfg)
	if err != nil {
		log.Warning(log.Update, "mix branch unavailable: %s", err)
		return nil, nil
	}

	serverMom, err := LoadMoM(mixCfg, repo, target)
	if err != nil {
		log.Warning(log.Update, "could not load mix MoM for version %d, skipping mix update: %s", target, err)
		return nil, nil
	}

	serverBundles, _, err := ResolveSubscriptions(mixCfg, repo, target, serverMom, seedBundles)
	if err != nil {
		log.Warning(log.Update, "could not resolve mix subscriptions, skipping mix update: %s", err)
		return nil, nil
	}
	serverFiles := consolidateFiles(serverBundles)

	var currentFiles []*swupd.File
	if current > 0 {
		if currentMom, cerr := LoadMoM(mixCfg, repo, current); cerr == nil {
			if currentBundles, _, rerr := ResolveSubscriptions(mixCfg, repo, current, currentMom, seedBundles); rerr == nil {
				currentFiles = consolidateFiles(currentBundles)
			}
		}
	}

	consolidated := linkManifests(serverFiles, currentFiles)
	updates := CreateUpdateList(consolidated)

	downloader := NewDownloader(mixCfg, repo, nil)
	if err := downloader.RetryDownloads(ctx, target, updates); err != nil {
		log.Warning(log.Update, "mix content download failed, dropping mix update list: %s", err)
		return nil, nil
	}

	return updates, nil
}

// mixMarkerPath is the conventional path a mix workspace records its bundle
// list and version under, following mcswupd/main.go's mixbundles/mixversion
// naming.
func mixMarkerPath(mixWorkspace, name string) string {
	return filepath.Join(mixWorkspace, name)
}
