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
	"os"
	"path/filepath"
	"syscall"
)

// Lock is the process-wide advisory lock named in §5/§6 ("a process-wide
// advisory lock file enforces single-instance execution"). None of the
// pack's dependencies wrap flock, so this is one of the few places update/
// reaches for the standard library directly: syscall.Flock is the whole of
// what's needed and pulling in a library for one syscall would not serve
// anything else in the tree.
type Lock struct {
	f *os.File
}

// AcquireLock takes an exclusive, non-blocking advisory lock on
// <statedir>/swupd-update.lock, mirroring swupd_init's lock acquisition.
// A busy lock is reported as LockBusy, not retried -- a second concurrent
// run should fail fast rather than queue behind the first.
func AcquireLock(cfg Config) (*Lock, error) {
	if err := os.MkdirAll(cfg.StateDir, 0755); err != nil {
		return nil, Wrap(ConfigError, err, "couldn't prepare state directory")
	}

	path := filepath.Join(cfg.StateDir, "swupd-update.lock")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, Wrap(ConfigError, err, "couldn't open lock file")
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		_ = f.Close()
		return nil, Wrap(LockBusy, err, "another update is already running")
	}

	return &Lock{f: f}, nil
}

// Release drops the advisory lock and closes the underlying file, mirroring
// swupd_deinit's lock release.
func (l *Lock) Release() {
	if l == nil || l.f == nil {
		return
	}
	_ = syscall.Flock(int(l.f.Fd()), syscall.LOCK_UN)
	_ = l.f.Close()
}
