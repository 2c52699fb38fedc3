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

// Package telemetry implements the "telemetry emission" collaborator named
// in spec §6: a terminal record emitted once per update run, plus
// Prometheus counters/gauges so a long-lived update daemon can expose the
// same facts to a scrape target.
package telemetry

import (
	"fmt"
	"io/ioutil"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

// Record is the terminal telemetry record emitted once per Driver.Run, the
// Go equivalent of the source's
// "current_version=<n>\nserver_version=<n>\nresult=<code>\ntime=<seconds>".
type Record struct {
	ID               string
	CurrentVersion   uint32
	ServerVersion    uint32
	Result           int
	Time             time.Duration
	FilesOutsidePack int
}

// NewRecord creates a Record stamped with a fresh run identifier, so
// multiple update attempts in the same log stream are distinguishable.
func NewRecord(current, server uint32) *Record {
	return &Record{
		ID:             uuid.New().String(),
		CurrentVersion: current,
		ServerVersion:  server,
	}
}

// String renders the flat-file telemetry format.
func (r *Record) String() string {
	return fmt.Sprintf("current_version=%d\nserver_version=%d\nresult=%d\ntime=%.3f\n",
		r.CurrentVersion, r.ServerVersion, r.Result, r.Time.Seconds())
}

// WriteFile writes the flat-file telemetry record to path.
func (r *Record) WriteFile(path string) error {
	return ioutil.WriteFile(path, []byte(r.String()), 0644)
}

var (
	updatesAttempted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "swupd_update",
		Name:      "attempts_total",
		Help:      "Number of update runs attempted.",
	})
	updatesSucceeded = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "swupd_update",
		Name:      "success_total",
		Help:      "Number of update runs that completed successfully.",
	})
	filesOutsidePack = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "swupd_update",
		Name:      "files_outside_pack_total",
		Help:      "Number of files fetched individually rather than via a pack.",
	})
	runDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "swupd_update",
		Name:      "run_duration_seconds",
		Help:      "Wall-clock duration of an update run.",
		Buckets:   prometheus.DefBuckets,
	})
)

func init() {
	prometheus.MustRegister(updatesAttempted, updatesSucceeded, filesOutsidePack, runDuration)
}

// Emit records r against the process's Prometheus registry. Callers that
// also want the flat-file record should call Record.WriteFile separately;
// the two are independent sinks for the same fact.
func Emit(r *Record) {
	updatesAttempted.Inc()
	if r.Result == 0 {
		updatesSucceeded.Inc()
	}
	filesOutsidePack.Add(float64(r.FilesOutsidePack))
	runDuration.Observe(r.Time.Seconds())
}
