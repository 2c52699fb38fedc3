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

package swupd

import (
	"errors"
	"fmt"
	"os"
)

// Ftype is the type of a file entry in a manifest.
type Ftype int

// Fmodifier further qualifies a file entry (config, state, boot).
type Fmodifier int

// Fstatus records whether a file entry is present, deleted or ghosted.
type Fstatus int

// Frename marks whether a file entry participates in rename detection.
type Frename bool

const (
	// TypeUnset is the zero value, used for tombstones once their hash is cleared.
	TypeUnset Ftype = iota
	// TypeFile is a regular file entry.
	TypeFile
	// TypeDirectory is a directory entry.
	TypeDirectory
	// TypeLink is a symbolic link entry.
	TypeLink
	// TypeManifest marks an entry in a MoM naming a bundle sub-manifest.
	TypeManifest
)

var typeBytes = map[Ftype]byte{
	TypeUnset:     '.',
	TypeFile:      'F',
	TypeDirectory: 'D',
	TypeLink:      'L',
	TypeManifest:  'M',
}

const (
	// ModifierUnset is the zero value.
	ModifierUnset Fmodifier = iota
	// ModifierConfig marks a /etc config file.
	ModifierConfig
	// ModifierState marks a file under a state directory.
	ModifierState
	// ModifierBoot marks a file that lives on the boot partition.
	ModifierBoot
)

var modifierBytes = map[Fmodifier]byte{
	ModifierUnset:  '.',
	ModifierConfig: 'C',
	ModifierState:  's',
	ModifierBoot:   'b',
}

const (
	// StatusUnset means the entry is present in this version.
	StatusUnset Fstatus = iota
	// StatusDeleted marks a tombstone: the file must be removed on update.
	StatusDeleted
	// StatusGhosted marks a file the client must not touch once deleted (e.g. old kernels).
	StatusGhosted
)

var statusBytes = map[Fstatus]byte{
	StatusUnset:   '.',
	StatusDeleted: 'd',
	StatusGhosted: 'g',
}

const (
	// RenameUnset means the entry is not part of a detected rename pair.
	RenameUnset = false
	// RenameSet means the entry is linked to a RenamePeer/DeltaPeer across a rename.
	RenameSet = true
)

var renameBytes = map[Frename]byte{
	RenameUnset: '.',
	RenameSet:   'r',
}

// File represents an entry in a manifest.
type File struct {
	Name    string
	Hash    Hashval
	Version uint32

	// flags
	Type     Ftype
	Status   Fstatus
	Modifier Fmodifier
	Rename   Frename

	// DoNotUpdate marks an entry the update engine must never download or
	// stage even though it differs from its current-manifest peer. There is
	// no mixer-side producer for this flag; the client update engine sets it
	// when a file is policy-excluded.
	DoNotUpdate bool

	// renames
	RenameScore uint16
	RenamePeer  *File

	Info os.FileInfo

	// DeltaPeer links this entry to its counterpart in the other version.
	// The mixer uses it to decide which fullfiles get a binary delta
	// generated server-side; the client update engine uses the same field
	// as the "predecessor" peer a downloaded delta patches from.
	DeltaPeer *File
}

// Present reports whether the file exists in this version, as opposed to
// being a tombstone or ghost.
func (f *File) Present() bool {
	return f.Status != StatusDeleted && f.Status != StatusGhosted
}

// IsDeleted reports whether this entry is a tombstone requiring removal.
func (f *File) IsDeleted() bool {
	return f.Status == StatusDeleted
}

// typeFromFlag return file type based on flag byte
func typeFromFlag(flag byte) (Ftype, error) {
	switch flag {
	case 'F':
		return TypeFile, nil
	case 'D':
		return TypeDirectory, nil
	case 'L':
		return TypeLink, nil
	case 'M':
		return TypeManifest, nil
	case '.':
		return TypeUnset, nil
	default:
		return TypeUnset, fmt.Errorf("invalid file type flag: %v", flag)
	}
}

func (t Ftype) String() string {
	switch t {
	case TypeFile:
		return "F"
	case TypeDirectory:
		return "D"
	case TypeLink:
		return "L"
	case TypeManifest:
		return "M"
	case TypeUnset:
		return "."
	}
	return "?"
}

// statusFromFlag return status based on flag byte
func statusFromFlag(flag byte) (Fstatus, error) {
	switch flag {
	case 'd':
		return StatusDeleted, nil
	case 'g':
		return StatusGhosted, nil
	case '.':
		return StatusUnset, nil
	default:
		return StatusUnset, fmt.Errorf("invalid file status flag: %v", flag)
	}
}

// modifierFromFlag return modifier from flag byte
func modifierFromFlag(flag byte) (Fmodifier, error) {
	switch flag {
	case 'C':
		return ModifierConfig, nil
	case 's':
		return ModifierState, nil
	case 'b':
		return ModifierBoot, nil
	case '.':
		return ModifierUnset, nil
	default:
		return ModifierUnset, fmt.Errorf("invalid file modifier flag: %v", flag)
	}
}

// renameFromFlag set rename flag from flag byte
func renameFromFlag(flag byte) (Frename, error) {
	switch flag {
	case 'r':
		return RenameSet, nil
	case '.':
		return RenameUnset, nil
	default:
		return RenameUnset, fmt.Errorf("invalid file rename flag: %v", flag)
	}
}

// setFlags set flags from flag string
func (f *File) setFlags(flags string) error {
	if len(flags) != 4 {
		return fmt.Errorf("invalid number of flags: %v", flags)
	}

	var err error
	// set file type
	if f.Type, err = typeFromFlag(flags[0]); err != nil {
		return err
	}
	// set status
	if f.Status, err = statusFromFlag(flags[1]); err != nil {
		return err
	}
	// set modifier
	if f.Modifier, err = modifierFromFlag(flags[2]); err != nil {
		return err
	}
	// set rename flag
	if f.Rename, err = renameFromFlag(flags[3]); err != nil {
		return err
	}

	return nil
}

// GetFlagString returns the flags in a format suitable for the Manifest
func (f *File) GetFlagString() (string, error) {
	if f.Type == TypeUnset &&
		f.Status == StatusUnset &&
		f.Modifier == ModifierUnset &&
		f.Rename == RenameUnset {
		return "", errors.New("no flags are set on file")
	}

	flagBytes := []byte{
		typeBytes[f.Type],
		statusBytes[f.Status],
		modifierBytes[f.Modifier],
		renameBytes[f.Rename],
	}

	return string(flagBytes), nil
}

func (f *File) findFileNameInSlice(fs []*File) *File {
	for _, file := range fs {
		if file.Name == f.Name {
			return file
		}
	}

	return nil
}

func sameFile(f1 *File, f2 *File) bool {
	return f1.Name == f2.Name &&
		f1.Hash == f2.Hash &&
		f1.Type == f2.Type &&
		f1.Status == f2.Status &&
		f1.Modifier == f2.Modifier
}

func (f *File) isUnsupportedTypeChange() bool {
	if f.DeltaPeer == nil {
		// nothing to check, new or deleted file
		return false
	}

	if f.Status == StatusDeleted || f.DeltaPeer.Status == StatusDeleted {
		return false
	}

	if f.Type == f.DeltaPeer.Type {
		return false
	}

	// file -> link OK
	// file -> directory OK
	// link -> file OK
	// link -> directory OK
	// directory -> anything TYPE CHANGE
	return f.DeltaPeer.Type == TypeDirectory && f.Type != TypeDirectory
}
