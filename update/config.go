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
	"time"

	"github.com/go-ini/ini"
)

// Config is the immutable configuration record threaded through every
// component, replacing the source's path_prefix/download_only/local_download
// process globals (see §9 of the design notes).
type Config struct {
	// PathPrefix is the root the update is applied under ("/" in production,
	// a chroot in tests).
	PathPrefix string
	// StateDir holds cached manifests, staged content and the download
	// scratch area, typically <PathPrefix>/var/lib/swupd.
	StateDir string
	// ContentURL is the base URL (or local path, when LocalDownload is set)
	// manifests and fullfiles are fetched from.
	ContentURL string
	// VersionURL is loaded from configuration and the --url flag; the server
	// version is read through the ContentURL repository, not from here.
	VersionURL string
	Format     string

	// MaxTries bounds any single retryable network operation.
	MaxTries int
	// InitialBackoff is the first sleep in the exponential backoff sequence
	// (doubled on every subsequent attempt).
	InitialBackoff time.Duration

	// DownloadOnly forces a non-zero exit after a successful download phase,
	// skipping staging entirely.
	DownloadOnly bool
	// LocalDownload marks ContentURL as a local filesystem path rather than
	// an HTTP(S) base, disabling retries for fetches made against it.
	LocalDownload bool
	// MixEnabled gates the C7 mix branch.
	MixEnabled bool
	// MixContentURL is the local path mix content is published under.
	MixContentURL string

	NumWorkers int
}

// DefaultMaxTries is MAX_TRIES from the glossary: the bounded retry count
// for any single network operation.
const DefaultMaxTries = 3

// DefaultInitialBackoff is the first backoff delay; it doubles on each
// subsequent retry (10s, 20s, 40s, ...).
const DefaultInitialBackoff = 10 * time.Second

// DefaultFormat is used when the INI file does not set one.
const DefaultFormat = "staging"

// LoadConfig reads an swupd-update.ini file the way swupd/config.go reads
// server.ini: missing keys fall back to defaults, a missing file is not an
// error.
func LoadConfig(pathPrefix, path string) (Config, error) {
	cfg := Config{
		PathPrefix:     pathPrefix,
		StateDir:       filepath.Join(pathPrefix, "var/lib/swupd"),
		ContentURL:     "https://cdn.download.clearlinux.org/update",
		VersionURL:     "https://cdn.download.clearlinux.org/update",
		Format:         DefaultFormat,
		MaxTries:       DefaultMaxTries,
		InitialBackoff: DefaultInitialBackoff,
		NumWorkers:     3,
	}

	ok, err := fileExists(path)
	if err != nil {
		return cfg, Wrap(ConfigError, err, "couldn't stat configuration file")
	}
	if !ok {
		return cfg, nil
	}

	f, err := ini.InsensitiveLoad(path)
	if err != nil {
		return cfg, Wrap(ConfigError, err, "couldn't parse "+path)
	}

	sec := f.Section("update")
	if key, kerr := sec.GetKey("contenturl"); kerr == nil {
		cfg.ContentURL = key.Value()
	}
	if key, kerr := sec.GetKey("versionurl"); kerr == nil {
		cfg.VersionURL = key.Value()
	}
	if key, kerr := sec.GetKey("format"); kerr == nil {
		cfg.Format = key.Value()
	}
	if key, kerr := sec.GetKey("statedir"); kerr == nil {
		cfg.StateDir = key.Value()
	}
	if key, kerr := sec.GetKey("max_retries"); kerr == nil {
		if n, aerr := key.Int(); aerr == nil && n > 0 {
			cfg.MaxTries = n
		}
	}
	if key, kerr := sec.GetKey("download_only"); kerr == nil {
		cfg.DownloadOnly = key.Value() == "true"
	}
	if key, kerr := sec.GetKey("mix_content_url"); kerr == nil {
		cfg.MixContentURL = key.Value()
		cfg.MixEnabled = cfg.MixContentURL != ""
	}

	return cfg, nil
}

// WithLocalURL derives a configuration for the mix branch without mutating
// the receiver, per §9's guidance to avoid the source's set_mix_globals()
// global mutation.
func (c Config) WithLocalURL(localPath string) Config {
	derived := c
	derived.ContentURL = localPath
	derived.LocalDownload = true
	// The mix source is the local filesystem: a single failure there is
	// fatal for the mix branch only, so retries are pointless.
	derived.MaxTries = 1
	return derived
}

func fileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}
