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

// sleepFunc is overridden in tests so the backoff schedule can be observed
// without actually waiting.
var sleepFunc = time.Sleep

// retry re-expresses the source's goto-labeled retry blocks (§9) as a single
// bounded combinator: op is attempted up to maxTries times, with the delay
// between attempts starting at initial and doubling each time. op returns
// (done, err): done stops the loop early (success), a non-nil err on the
// final attempt is returned to the caller.
func retry(maxTries int, initial time.Duration, op func(attempt int) (done bool, err error)) error {
	if maxTries < 1 {
		maxTries = 1
	}
	backoff := initial
	var err error
	for attempt := 0; attempt < maxTries; attempt++ {
		var done bool
		done, err = op(attempt)
		if done {
			return nil
		}
		if attempt == maxTries-1 {
			break
		}
		log.Debug(log.Update, "retrying after %s (attempt %d/%d)", backoff, attempt+1, maxTries)
		sleepFunc(backoff)
		backoff *= 2
	}
	return err
}
