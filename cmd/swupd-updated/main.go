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

// swupd-updated is a thin periodic wrapper around the same update.Driver
// cmd/swupd-update drives interactively: it exists because the autoupdate
// mode implied but not detailed by the update design is easiest to offer as
// a tiny always-running process rather than folding a scheduler into the
// one-shot command.
package main

import (
	"context"
	"os"
	"path/filepath"

	"github.com/robfig/cron/v3"
	"github.com/spf13/pflag"

	"github.com/clearlinux/swupd-update/log"
	"github.com/clearlinux/swupd-update/update"
	"github.com/clearlinux/swupd-update/update/statedb"
)

var flags = struct {
	pathPrefix string
	schedule   string
}{}

func main() {
	pflag.StringVar(&flags.pathPrefix, "path-prefix", "/", "Root of the filesystem to update")
	pflag.StringVar(&flags.schedule, "schedule", "0 3 * * *", "Cron schedule for periodic update checks")
	pflag.Parse()

	c := cron.New()
	_, err := c.AddFunc(flags.schedule, runOnce)
	if err != nil {
		log.Error(log.Update, "invalid schedule %q: %s", flags.schedule, err)
		os.Exit(1)
	}

	log.Info(log.Update, "swupd-updated starting, schedule=%s", flags.schedule)
	c.Run()
}

// runOnce drives one full update attempt, logging any failure instead of
// exiting -- unlike cmd/swupd-update, a scheduled run must survive a failed
// attempt and simply try again on the next tick.
func runOnce() {
	cfg, err := update.LoadConfig(flags.pathPrefix, filepath.Join(flags.pathPrefix, "etc/swupd-update.ini"))
	if err != nil {
		log.Error(log.Update, "scheduled update: couldn't load configuration: %s", err)
		return
	}

	repo, err := update.NewRepository(cfg)
	if err != nil {
		log.Error(log.Update, "scheduled update: couldn't initialize repository: %s", err)
		return
	}

	db, err := statedb.Open(filepath.Join(cfg.StateDir, "bundles.db"))
	if err != nil {
		log.Warning(log.Update, "scheduled update: couldn't open subscription database: %s", err)
		db = nil
	} else {
		defer func() { _ = db.Close() }()
	}

	scripts := update.NewScriptRunner(cfg.PathPrefix)
	driver := update.NewDriver(cfg, repo, scripts, db)

	if _, err := driver.Run(context.Background(), update.SeedBundles(db)); err != nil {
		log.Error(log.Update, "scheduled update failed: %s", err)
	}
}
