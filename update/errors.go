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
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies the failure modes the update engine can report. Network
// and DownloadFailed are retried with backoff before they surface; DeltaFailed
// never surfaces on its own, it only ever causes a fall back to full download.
type Kind int

// Error kinds, one per §7 of the update design.
const (
	Network Kind = iota
	ManifestNotFound
	ManifestParse
	ManifestRecurse
	SignatureInvalid
	DownloadFailed
	DeltaFailed
	StagingFailed
	CommitFailed
	LockBusy
	ConfigError
)

func (k Kind) String() string {
	switch k {
	case Network:
		return "network"
	case ManifestNotFound:
		return "manifest-not-found"
	case ManifestParse:
		return "manifest-parse"
	case ManifestRecurse:
		return "manifest-recurse"
	case SignatureInvalid:
		return "signature-invalid"
	case DownloadFailed:
		return "download-failed"
	case DeltaFailed:
		return "delta-failed"
	case StagingFailed:
		return "staging-failed"
	case CommitFailed:
		return "commit-failed"
	case LockBusy:
		return "lock-busy"
	case ConfigError:
		return "config"
	default:
		return "unknown"
	}
}

// Distinguished exit codes for the kinds the driver's caller cares about.
// The pack's original source names these (EMOM_NOTFOUND, ERECURSE_MANIFEST,
// EMANIFEST_LOAD, ENOSWUPDSERVER) but does not ship the header defining their
// numeric values, so this assigns its own stable, small positive integers.
const (
	codeGeneric          = 1
	codeMomNotFound      = 2
	codeRecurseManifest  = 3
	codeManifestLoad     = 4
	codeNoSwupdServer    = 5
	codeCouldNotDownload = 6
	codeStagingFailed    = 7
	codeCommitFailed     = 8
	codeLockBusy         = 9
	codeConfig           = 10
)

// Error is the sum-typed error every update/ component returns. Kind
// classifies the failure for retry/propagation policy; Cause is the
// underlying wrapped error, if any.
type Error struct {
	Kind  Kind
	Cause error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Cause)
}

// Unwrap lets errors.Is/errors.As from the standard library see through to
// the wrapped cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Code maps the error's kind to the exit code the process boundary reports.
func (e *Error) Code() int {
	switch e.Kind {
	case ManifestNotFound:
		return codeMomNotFound
	case ManifestRecurse:
		return codeRecurseManifest
	case ManifestParse:
		return codeManifestLoad
	case Network:
		return codeNoSwupdServer
	case DownloadFailed:
		return codeCouldNotDownload
	case StagingFailed:
		return codeStagingFailed
	case CommitFailed:
		return codeCommitFailed
	case LockBusy:
		return codeLockBusy
	case ConfigError:
		return codeConfig
	default:
		return codeGeneric
	}
}

// Wrap builds an *Error of the given kind around cause, attaching msg as
// additional context the way the rest of the repo uses github.com/pkg/errors.
func Wrap(kind Kind, cause error, msg string) error {
	if cause == nil {
		return &Error{Kind: kind, Cause: errors.New(msg)}
	}
	return &Error{Kind: kind, Cause: errors.Wrap(cause, msg)}
}

// Wrapf is Wrap with a formatted message.
func Wrapf(kind Kind, cause error, format string, args ...interface{}) error {
	return Wrap(kind, cause, fmt.Sprintf(format, args...))
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	uerr, ok := err.(*Error)
	return ok && uerr.Kind == kind
}
