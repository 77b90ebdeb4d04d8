// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package archive

import (
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/zeebo/errs/v2"
)

// ReadRecords calls fn for every record stored in r.
func ReadRecords(r io.Reader, fn func(*Record) error) error {
	segments := NewSegmentReader(r)
	defer func() { _ = segments.Close() }()

	dec := json.NewDecoder(segments)
	for {
		var record Record
		if err := dec.Decode(&record); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return errs.Wrap(err)
		}
		if err := fn(&record); err != nil {
			return err
		}
	}
}

// ReadFile calls fn for every record stored in the archive file at path.
func ReadFile(path string, fn func(*Record) error) (err error) {
	fh, err := os.Open(path)
	if err != nil {
		return errs.Wrap(err)
	}
	defer func() { _ = fh.Close() }()
	if err := ReadRecords(fh, fn); err != nil {
		return errs.Errorf("%s: %v", path, err)
	}
	return nil
}

// Files lists the archive files below dir in lexical order, which is
// chronological per protocol and sender.
func Files(dir string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() && strings.HasSuffix(path, Extension) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, errs.Wrap(err)
	}
	sort.Strings(paths)
	return paths, nil
}

// Walk calls fn for every record of every archive file below dir.
func Walk(dir string, fn func(*Record) error) error {
	paths, err := Files(dir)
	if err != nil {
		return err
	}
	for _, path := range paths {
		if err := ReadFile(path, fn); err != nil {
			return err
		}
	}
	return nil
}
