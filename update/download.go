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
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/clearlinux/swupd-update/log"
	"github.com/clearlinux/swupd-update/swupd"
)

// Downloader implements C6: fetches every update-list entry not already
// materialized by the delta engine, as a bounded-concurrency batch.
type Downloader struct {
	cfg   Config
	repo  Repository
	delta *DeltaEngine
}

// NewDownloader constructs a Downloader. delta may be nil, in which case no
// delta attempt precedes the full download (used for the mix branch, which
// disables deltas).
func NewDownloader(cfg Config, repo Repository, delta *DeltaEngine) *Downloader {
	return &Downloader{cfg: cfg, repo: repo, delta: delta}
}

// downloadOne fetches a single entry's fullfile. It is the unit of work
// start_full_download/end_full_download batches.
func (d *Downloader) downloadOne(version uint32, f *swupd.File) error {
	return d.repo.GetFullfile(fmt.Sprint(version), f.Hash.String())
}

// downloadBatch is the "multiplexed download session" of §4.6:
// start_full_download opens it, each candidate is queued as a concurrent
// GET, end_full_download drains the batch and returns the failed subset.
// Bounded concurrency is provided by errgroup.Group (the pack's idiomatic
// worker-pool primitive for an I/O-bound fan-out, as opposed to the
// teacher's hand-rolled WaitGroup+channel used for the CPU-bound delta
// workers in DeltaEngine.TryDeltas).
func (d *Downloader) downloadBatch(ctx context.Context, version uint32, candidates []*swupd.File) []*swupd.File {
	numWorkers := d.cfg.NumWorkers
	if numWorkers < 1 {
		numWorkers = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, numWorkers)

	var mu sync.Mutex
	var failed []*swupd.File

	for _, f := range candidates {
		f := f
		select {
		case sem <- struct{}{}:
		case <-gctx.Done():
		}
		g.Go(func() error {
			defer func() { <-sem }()
			if err := d.downloadOne(version, f); err != nil {
				log.Debug(log.Update, "download failed for %s: %s", f.Name, err)
				mu.Lock()
				failed = append(failed, f)
				mu.Unlock()
			}
			// Errors are tracked via the failed slice, not returned, so one
			// failed fetch does not cancel the rest of the batch -- the
			// whole point of end_full_download is to drain to quiescence
			// and report every failure, not to fail fast.
			return nil
		})
	}

	_ = g.Wait()
	return failed
}

// candidatesForDownload selects update-list entries that need content: not
// is_deleted and not do_not_update. Entries the delta engine resolves are
// dropped later, inside RetryDownloads.
func candidatesForDownload(updates []*swupd.File) []*swupd.File {
	var out []*swupd.File
	for _, f := range updates {
		if f.IsDeleted() || f.DoNotUpdate {
			continue
		}
		out = append(out, f)
	}
	return out
}

// RetryDownloads implements the retry-wrapped full-download loop of §4.6:
// delta attempts run once per retry iteration over the failed subset, then
// a full-download batch runs over whatever deltas didn't resolve. Backoff
// is exponential starting at cfg.InitialBackoff, bounded by cfg.MaxTries.
func (d *Downloader) RetryDownloads(ctx context.Context, version uint32, updates []*swupd.File) error {
	candidates := candidatesForDownload(updates)
	var failed []*swupd.File

	err := retry(d.cfg.MaxTries, d.cfg.InitialBackoff, func(attempt int) (bool, error) {
		if d.delta != nil {
			candidates = d.delta.TryDeltas(candidates)
		}
		failed = d.downloadBatch(ctx, version, candidates)
		if len(failed) == 0 {
			return true, nil
		}
		candidates = failed
		return false, Wrapf(DownloadFailed, nil, "%d entries failed to download", len(failed))
	})

	if err != nil {
		log.Error(log.Update, "could not download all files")
		return Wrap(DownloadFailed, err, "could not download all files")
	}
	return nil
}
