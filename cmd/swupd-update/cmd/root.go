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

// Package cmd implements the swupd-update command line, built the way
// mixer/cmd builds RootCmd: a single cobra command with persistent flags
// bound directly to an update.Config.
package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/clearlinux/swupd-update/log"
	"github.com/clearlinux/swupd-update/update"
	"github.com/clearlinux/swupd-update/update/statedb"
)

var rootCmdFlags = struct {
	pathPrefix   string
	url          string
	format       string
	downloadOnly bool
	status       bool
}{}

// RootCmd is the base command for swupd-update.
var RootCmd = &cobra.Command{
	Use:   "swupd-update",
	Short: "Update this system to the latest published version",
	Long:  `swupd-update transitions a local root filesystem from its installed version to the latest published server version.`,

	RunE: func(cmd *cobra.Command, args []string) error {
		return run()
	},
}

func init() {
	flags := RootCmd.PersistentFlags()
	flags.StringVar(&rootCmdFlags.pathPrefix, "path-prefix", "/", "Root of the filesystem to update")
	flags.StringVar(&rootCmdFlags.url, "url", "", "Override the content URL read from configuration")
	flags.StringVar(&rootCmdFlags.format, "format", "", "Override the format read from configuration")
	flags.BoolVar(&rootCmdFlags.downloadOnly, "download-only", false, "Download content but skip staging and commit")
	flags.BoolVar(&rootCmdFlags.status, "status", false, "Report current and server version, then exit")
}

// Execute runs RootCmd, mapping a returned *update.Error to its exit code.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		if uerr, ok := err.(*update.Error); ok {
			os.Exit(uerr.Code())
		}
		os.Exit(1)
	}
}

func run() error {
	cfg, err := update.LoadConfig(rootCmdFlags.pathPrefix, filepath.Join(rootCmdFlags.pathPrefix, "etc/swupd-update.ini"))
	if err != nil {
		return err
	}
	if rootCmdFlags.url != "" {
		cfg.ContentURL = rootCmdFlags.url
		cfg.VersionURL = rootCmdFlags.url
	}
	if rootCmdFlags.format != "" {
		cfg.Format = rootCmdFlags.format
	}
	if rootCmdFlags.downloadOnly {
		cfg.DownloadOnly = true
	}

	repo, err := update.NewRepository(cfg)
	if err != nil {
		return err
	}

	if rootCmdFlags.status {
		return printStatus(cfg, repo)
	}

	db, err := statedb.Open(filepath.Join(cfg.StateDir, "bundles.db"))
	if err != nil {
		log.Warning(log.Update, "couldn't open subscription database, proceeding without persisted state: %s", err)
		db = nil
	} else {
		defer func() { _ = db.Close() }()
	}

	seedBundles := update.SeedBundles(db)
	scripts := update.NewScriptRunner(cfg.PathPrefix)
	driver := update.NewDriver(cfg, repo, scripts, db)

	_, err = driver.Run(context.Background(), seedBundles)
	return err
}

func printStatus(cfg update.Config, repo update.Repository) error {
	decision, err := update.NegotiateVersion(cfg, repo)
	if err != nil {
		return err
	}
	if decision.NoUpdate {
		fmt.Printf("Installed version %d is up to date.\n", decision.From)
		return nil
	}
	fmt.Printf("Installed version: %d\nServer version: %d\n", decision.From, decision.To)
	return nil
}
