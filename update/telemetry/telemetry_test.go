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

package telemetry

import (
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestRecordStringFormat(t *testing.T) {
	r := NewRecord(100, 110)
	r.Result = 0
	r.Time = 2500 * time.Millisecond

	s := r.String()
	for _, want := range []string{"current_version=100", "server_version=110", "result=0", "time=2.500"} {
		if !strings.Contains(s, want) {
			t.Errorf("Record.String() = %q, want it to contain %q", s, want)
		}
	}
}

func TestRecordHasUniqueID(t *testing.T) {
	a := NewRecord(1, 2)
	b := NewRecord(1, 2)
	if a.ID == "" {
		t.Fatal("expected a non-empty run ID")
	}
	if a.ID == b.ID {
		t.Errorf("expected distinct records to get distinct run IDs")
	}
}

func TestRecordWriteFile(t *testing.T) {
	r := NewRecord(100, 110)
	r.Result = 0

	path := filepath.Join(t.TempDir(), "telemetry")
	if err := r.WriteFile(path); err != nil {
		t.Fatalf("WriteFile failed: %s", err)
	}
}

func TestEmitDoesNotPanic(t *testing.T) {
	r := NewRecord(100, 110)
	r.Result = 0
	r.Time = time.Second
	Emit(r)

	r2 := NewRecord(100, 110)
	r2.Result = 6
	r2.FilesOutsidePack = 3
	Emit(r2)
}
