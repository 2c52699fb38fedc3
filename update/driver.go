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
	"io/ioutil"
	"os"
	"path/filepath"
	"strconv"

	"github.com/clearlinux/swupd-update/log"
	"github.com/clearlinux/swupd-update/swupd"
	"github.com/clearlinux/swupd-update/update/statedb"
	"github.com/clearlinux/swupd-update/update/telemetry"
)

// Driver implements C10: it composes C1-C9 into the state machine of
// spec §4.10 (INIT -> VERSIONS -> MOMS -> SUBMANIFESTS -> PACKS ->
// UPDATE_LIST -> [MIX_SETUP?] -> DOWNLOADS -> STAGING -> COMMIT ->
// POSTSCRIPTS -> DONE, with CLEAN_EXIT teardown on any failure).
type Driver struct {
	cfg     Config
	repo    Repository
	scripts ScriptRunner
	db      *statedb.DB
}

// NewDriver constructs a Driver. db may be nil, in which case subscription
// state is not persisted across runs (every run recomputes it from the
// seed bundle list the caller provides).
func NewDriver(cfg Config, repo Repository, scripts ScriptRunner, db *statedb.DB) *Driver {
	return &Driver{cfg: cfg, repo: repo, scripts: scripts, db: db}
}

// SeedBundles reads the subscribed bundle set from the persisted
// subscription database, falling back to the minimal "os-core" bundle every
// installed system carries when db is nil or has no recorded state yet (a
// first run). Shared by both cmd/swupd-update and cmd/swupd-updated so the
// default-bundle policy lives in one place.
func SeedBundles(db *statedb.DB) []string {
	if db == nil {
		return []string{"os-core"}
	}
	bundles, err := db.Bundles()
	if err != nil || len(bundles) == 0 {
		return []string{"os-core"}
	}
	names := make([]string, 0, len(bundles))
	for name := range bundles {
		names = append(names, name)
	}
	return names
}

// Run executes one full update attempt against seedBundles, the set of
// bundle names the system is subscribed to. It always returns a telemetry
// Record -- even on failure -- so the caller can report current/server
// version and elapsed time regardless of outcome; a non-nil error indicates
// the run did not complete successfully and carries the exit code via
// Error.Code.
func (d *Driver) Run(ctx context.Context, seedBundles []string) (*telemetry.Record, error) {
	timing := NewTiming()
	timing.Start("total")

	lock, err := AcquireLock(d.cfg)
	if err != nil {
		timing.Stop("total")
		return d.cleanExit(timing, 0, 0, err)
	}
	defer lock.Release()

	// VERSIONS
	timing.Start("versions")
	decision, err := NegotiateVersion(d.cfg, d.repo)
	timing.Stop("versions")
	if err != nil {
		timing.Stop("total")
		return d.cleanExit(timing, decision.From, decision.To, err)
	}
	if decision.NoUpdate {
		timing.Stop("total")
		log.Info(log.Update, "current version %d is up to date", decision.From)
		record := telemetry.NewRecord(decision.From, decision.To)
		record.Time = timing.Total()
		telemetry.Emit(record)
		return record, nil
	}

	// MOMS
	timing.Start("moms")
	serverMom, err := LoadMoM(d.cfg, d.repo, decision.To)
	if err != nil {
		timing.Stop("moms")
		timing.Stop("total")
		return d.cleanExit(timing, decision.From, decision.To, err)
	}

	deltaDisabled := false
	currentMom, merr := LoadMoM(d.cfg, d.repo, decision.From)
	if merr != nil {
		log.Warning(log.Update, "could not load current MoM, disabling deltas for this run: %s", merr)
		deltaDisabled = true
	}
	timing.Stop("moms")

	// SUBMANIFESTS
	timing.Start("submanifests")
	serverBundles, _, err := ResolveSubscriptions(d.cfg, d.repo, decision.To, serverMom, seedBundles)
	if err != nil {
		timing.Stop("submanifests")
		timing.Stop("total")
		return d.cleanExit(timing, decision.From, decision.To, err)
	}

	var currentBundles []*swupd.Manifest
	if !deltaDisabled {
		var serr error
		currentBundles, _, serr = ResolveSubscriptions(d.cfg, d.repo, decision.From, currentMom, seedBundles)
		if serr != nil {
			log.Warning(log.Update, "could not resolve current subscriptions, disabling deltas for this run: %s", serr)
			deltaDisabled = true
			currentBundles = nil
		}
	}
	timing.Stop("submanifests")

	// UPDATE_LIST
	serverFiles := consolidateFiles(serverBundles)
	currentFiles := consolidateFiles(currentBundles)
	consolidated := linkManifests(serverFiles, currentFiles)
	updates := CreateUpdateList(consolidated)
	log.Info(log.Update, "update list has %d entries", len(updates))

	if d.scripts != nil {
		if err := d.scripts.RunPreupdate(serverMom); err != nil {
			log.Warning(log.Update, "preupdate scripts reported an error: %s", err)
		}
	}

	// MIX_SETUP (optional)
	mixUpdates, mixErr := MixOverlay(ctx, d.cfg, decision.From, decision.To, seedBundles)
	if mixErr != nil {
		// MixOverlay already absorbs its own failures and logs them;
		// a non-nil error here would be unexpected, but per §4.7/§7 it must
		// never abort the upstream branch either way.
		log.Warning(log.Update, "mix overlay failed, continuing without mix content: %s", mixErr)
		mixUpdates = nil
	}

	// DOWNLOADS
	timing.Start("downloads")
	var delta *DeltaEngine
	if !deltaDisabled {
		delta = NewDeltaEngine(d.cfg, d.repo)
	}
	downloader := NewDownloader(d.cfg, d.repo, delta)
	err = downloader.RetryDownloads(ctx, decision.To, updates)
	timing.Stop("downloads")
	if err != nil {
		timing.Stop("total")
		return d.cleanExit(timing, decision.From, decision.To, err)
	}

	if d.cfg.DownloadOnly {
		timing.Stop("total")
		log.Info(log.Update, "download-only mode: skipping staging")
		record := telemetry.NewRecord(decision.From, decision.To)
		record.Time = timing.Total()
		record.Result = codeGeneric
		telemetry.Emit(record)
		return record, Wrap(ConfigError, nil, "download-only mode forces a non-zero exit after downloads")
	}

	// STAGING
	timing.Start("staging")
	stager := NewStager(d.cfg, d.repo)
	if err := stager.StageAll(updates); err != nil {
		stager.Cleanup(updates)
		timing.Stop("staging")
		timing.Stop("total")
		return d.cleanExit(timing, decision.From, decision.To, err)
	}

	// Per §9's resolved ambiguity: mix staging failure is logged and
	// dropped, never fatal to the upstream commit.
	if len(mixUpdates) > 0 {
		if err := stager.StageAll(mixUpdates); err != nil {
			log.Warning(log.Update, "mix content failed to stage, dropping mix update list: %s", err)
			stager.Cleanup(mixUpdates)
			mixUpdates = nil
		}
	}
	timing.Stop("staging")

	// COMMIT
	timing.Start("commit")
	committer := NewCommitter(d.cfg, stager)
	all := append(append([]*swupd.File{}, updates...), mixUpdates...)
	if err := committer.Commit(all); err != nil {
		stager.Cleanup(all)
		timing.Stop("commit")
		timing.Stop("total")
		return d.cleanExit(timing, decision.From, decision.To, err)
	}
	timing.Stop("commit")

	// POSTSCRIPTS
	if d.scripts != nil {
		if err := d.scripts.RunPost(); err != nil {
			log.Warning(log.Update, "post-update scripts reported an error: %s", err)
		}
	}

	d.recordSuccess(decision.To)
	clearMOTD(d.cfg)

	timing.Stop("total")
	timing.Report()

	record := telemetry.NewRecord(decision.From, decision.To)
	record.Time = timing.Total()
	telemetry.Emit(record)
	log.Info(log.Update, "update to version %d complete", decision.To)
	return record, nil
}

// recordSuccess persists the new installed version, both as the flat
// version/format marker (read back by currentVersion on the next run) and
// in the subscription database if one was configured. Failure here is
// logged but never fails an otherwise-successful run, per §4.10 ("writes
// the new 'latest' version marker on success, a failure there is
// non-fatal").
func (d *Driver) recordSuccess(version uint32) {
	marker := filepath.Join(d.cfg.StateDir, "version", "format")
	if err := os.MkdirAll(filepath.Dir(marker), 0755); err != nil {
		log.Warning(log.Update, "couldn't prepare version directory: %s", err)
	} else if err := ioutil.WriteFile(marker, []byte(strconv.FormatUint(uint64(version), 10)), 0644); err != nil {
		log.Warning(log.Update, "couldn't write version marker: %s", err)
	}
	if d.db != nil {
		if err := d.db.SetLastVersion(version); err != nil {
			log.Warning(log.Update, "couldn't persist version to state database: %s", err)
		}
	}
}

// cleanExit implements CLEAN_EXIT: always emits a telemetry record
// regardless of which state failed, and returns the original error so the
// caller can map it to an exit code via Error.Code.
func (d *Driver) cleanExit(timing *Timing, from, to uint32, err error) (*telemetry.Record, error) {
	log.Error(log.Update, "update failed: %s", err)
	record := telemetry.NewRecord(from, to)
	record.Time = timing.Total()
	if uerr, ok := err.(*Error); ok {
		record.Result = uerr.Code()
	} else {
		record.Result = codeGeneric
	}
	telemetry.Emit(record)
	return record, err
}
