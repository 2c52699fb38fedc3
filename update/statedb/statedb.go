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

// Package statedb implements the subscription/bundle database named as an
// external collaborator in spec §1/§6: the set of installed bundles and the
// version they were last brought up to, persisted across runs. It replaces
// the flat mixbundles/mixversion marker files the mix workspace otherwise
// uses for the same bookkeeping.
package statedb

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.etcd.io/bbolt"
)

var (
	bundlesBucket = []byte("bundles")
	metaBucket    = []byte("meta")
)

const lastVersionKey = "last_version"

// Bundle is one row of the subscription database: a bundle name, the
// version it was last synced to, and its transitive includes at that
// version.
type Bundle struct {
	Name          string
	TargetVersion uint32
	Includes      []string
}

// DB wraps a bbolt file, the embedded KV store used throughout the pack for
// small, infrequently-written local state.
type DB struct {
	bolt *bbolt.DB
}

// Open opens (creating if absent) the bundle database at path, ensuring its
// parent directory and both top-level buckets exist.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}

	bdb, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, err
	}

	err = bdb.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bundlesBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(metaBucket)
		return err
	})
	if err != nil {
		_ = bdb.Close()
		return nil, err
	}

	return &DB{bolt: bdb}, nil
}

// Close releases the underlying bbolt file and its lock.
func (d *DB) Close() error {
	return d.bolt.Close()
}

// SaveBundle upserts a bundle's recorded subscription state.
func (d *DB) SaveBundle(b Bundle) error {
	return d.bolt.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bundlesBucket)
		return bucket.Put([]byte(b.Name), encodeBundle(b))
	})
}

// RemoveBundle deletes a bundle's subscription record, used when a bundle is
// unsubscribed or tombstoned away entirely.
func (d *DB) RemoveBundle(name string) error {
	return d.bolt.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bundlesBucket).Delete([]byte(name))
	})
}

// Bundles returns every subscribed bundle's recorded state, keyed by name.
func (d *DB) Bundles() (map[string]Bundle, error) {
	out := make(map[string]Bundle)
	err := d.bolt.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bundlesBucket).ForEach(func(k, v []byte) error {
			out[string(k)] = decodeBundle(string(k), v)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SetLastVersion records the version the system was last successfully
// updated to, the persisted analogue of the state directory's
// version/format marker file.
func (d *DB) SetLastVersion(v uint32) error {
	return d.bolt.Update(func(tx *bbolt.Tx) error {
		buf := make([]byte, 4)
		binary.BigEndian.PutUint32(buf, v)
		return tx.Bucket(metaBucket).Put([]byte(lastVersionKey), buf)
	})
}

// LastVersion returns the last recorded version, and false if none has been
// set yet (a first run).
func (d *DB) LastVersion() (uint32, bool, error) {
	var v uint32
	var ok bool
	err := d.bolt.View(func(tx *bbolt.Tx) error {
		buf := tx.Bucket(metaBucket).Get([]byte(lastVersionKey))
		if buf == nil {
			return nil
		}
		ok = true
		v = binary.BigEndian.Uint32(buf)
		return nil
	})
	if err != nil {
		return 0, false, err
	}
	return v, ok, nil
}

// encodeBundle flattens a Bundle into the value stored for its key: a
// version followed by a newline-joined include list, deliberately simple
// since the database holds a handful of rows at most.
func encodeBundle(b Bundle) []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, b.TargetVersion)
	return append(buf, []byte(strings.Join(b.Includes, "\n"))...)
}

func decodeBundle(name string, v []byte) Bundle {
	b := Bundle{Name: name}
	if len(v) < 4 {
		return b
	}
	b.TargetVersion = binary.BigEndian.Uint32(v[:4])
	if rest := string(v[4:]); rest != "" {
		b.Includes = strings.Split(rest, "\n")
	}
	return b
}
