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
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"

	"github.com/clearlinux/swupd-update/helpers"
	"github.com/clearlinux/swupd-update/log"
	"github.com/clearlinux/swupd-update/swupd"
)

// ScriptRunner is the "scripts" collaborator named in §6: run_preupdate is
// invoked once the update list is known (after C4), run_post once the
// commit has completed.
type ScriptRunner interface {
	RunPreupdate(serverManifest *swupd.MoM) error
	RunPost() error
}

// dirScriptRunner is the default ScriptRunner: it executes every executable
// file under a pre-hooks/post-hooks directory, in name order, the way the
// real swupd client's scripts.c walks a hook directory.
type dirScriptRunner struct {
	preDir  string
	postDir string
}

// NewScriptRunner builds the default ScriptRunner rooted at pathPrefix,
// using <path_prefix>/usr/bin/clr-update-pre-hooks and -post-hooks as the
// hook directories.
func NewScriptRunner(pathPrefix string) ScriptRunner {
	return &dirScriptRunner{
		preDir:  filepath.Join(pathPrefix, "usr/bin/clr-update-pre-hooks"),
		postDir: filepath.Join(pathPrefix, "usr/bin/clr-update-post-hooks"),
	}
}

func (r *dirScriptRunner) RunPreupdate(serverManifest *swupd.MoM) error {
	return runHookDir(r.preDir)
}

func (r *dirScriptRunner) RunPost() error {
	return runHookDir(r.postDir)
}

func runHookDir(dir string) error {
	entries, err := ioutil.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		path := filepath.Join(dir, name)
		info, err := os.Stat(path)
		if err != nil || info.IsDir() || info.Mode()&0111 == 0 {
			continue
		}
		if err := helpers.RunCommandSilent(path); err != nil {
			log.Warning(log.Update, "hook %s failed: %s", path, err)
		}
	}
	return nil
}

// clearMOTD implements delete_motd(): removes a stale message-of-the-day
// file after a successful update. Failure is logged, never fatal.
func clearMOTD(cfg Config) {
	path := filepath.Join(cfg.PathPrefix, "etc/motd")
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Warning(log.Update, "couldn't clear motd: %s", err)
	}
}
