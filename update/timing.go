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
	"time"

	"github.com/clearlinux/swupd-update/log"
)

// Timing records per-stage elapsed time across one Driver.Run, replacing
// the source's print_statistics/print_time_stats.
type Timing struct {
	started map[string]time.Time
	elapsed map[string]time.Duration
	order   []string
}

// NewTiming creates an empty Timing tracker.
func NewTiming() *Timing {
	return &Timing{
		started: make(map[string]time.Time),
		elapsed: make(map[string]time.Duration),
	}
}

// Start marks the beginning of a named stage.
func (t *Timing) Start(stage string) {
	if _, ok := t.started[stage]; !ok {
		t.order = append(t.order, stage)
	}
	t.started[stage] = time.Now()
}

// Stop records the elapsed time for a stage previously started.
func (t *Timing) Stop(stage string) {
	start, ok := t.started[stage]
	if !ok {
		return
	}
	t.elapsed[stage] += time.Since(start)
}

// Total returns the elapsed time of the "total" stage, which Driver.Run
// wraps around every other stage. Without a "total" stage it returns the sum
// of every recorded stage's elapsed time.
func (t *Timing) Total() time.Duration {
	if d, ok := t.elapsed["total"]; ok {
		return d
	}
	var total time.Duration
	for _, d := range t.elapsed {
		total += d
	}
	return total
}

// Report logs every stage's elapsed time in the order stages were first
// started.
func (t *Timing) Report() {
	for _, stage := range t.order {
		log.Info(log.Update, "stage %s took %s", stage, t.elapsed[stage])
	}
}
