// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package archive

import (
	"compress/zlib"
	"errors"
	"io"

	"github.com/zeebo/errs/v2"
)

// SegmentWriter writes one zlib compressed segment into a delimited stream.
// Appending segments to a file keeps it readable even when a writer died
// halfway: the reader skips to the next delimiter.
type SegmentWriter struct {
	frames   *FrameWriter
	compress *zlib.Writer
}

// NewSegmentWriter starts a segment on base.
func NewSegmentWriter(base io.Writer, level int) (*SegmentWriter, error) {
	frames := NewFrameWriter(base)
	if err := frames.Delimit(); err != nil {
		return nil, err
	}
	compress, err := zlib.NewWriterLevel(frames, level)
	if err != nil {
		return nil, errs.Wrap(err)
	}
	return &SegmentWriter{frames: frames, compress: compress}, nil
}

// Write compresses p into the segment.
func (w *SegmentWriter) Write(p []byte) (n int, err error) {
	n, err = w.compress.Write(p)
	return n, errs.Wrap(err)
}

// Close finishes the segment. It does not close the underlying writer.
func (w *SegmentWriter) Close() error {
	if err := w.compress.Close(); err != nil {
		return errs.Wrap(err)
	}
	return w.frames.Flush()
}

// SegmentReader reads the concatenated content of all segments of a stream.
type SegmentReader struct {
	frames  *FrameReader
	current io.ReadCloser
}

// NewSegmentReader returns a reader over base.
func NewSegmentReader(base io.Reader) *SegmentReader {
	return &SegmentReader{frames: NewFrameReader(base)}
}

type countingReader struct {
	io.Reader
	count int64
}

func (r *countingReader) Read(p []byte) (n int, err error) {
	n, err = r.Reader.Read(p)
	r.count += int64(n)
	return n, err
}

// Read implements io.Reader.
func (r *SegmentReader) Read(p []byte) (n int, err error) {
	for r.current == nil {
		if !r.frames.Next() {
			if err := r.frames.Err(); err != nil {
				return 0, errs.Wrap(err)
			}
			return 0, io.EOF
		}

		counted := &countingReader{Reader: r.frames}
		current, err := zlib.NewReader(counted)
		if err != nil {
			// empty messages come from delimiters without a body.
			if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
				if counted.count == 0 {
					continue
				}
			}
			return 0, errs.Wrap(err)
		}
		r.current = current
	}

	n, err = r.current.Read(p)
	if errors.Is(err, io.EOF) {
		err = r.current.Close()
		r.current = nil
		_, _ = io.Copy(io.Discard, r.frames)
	}
	return n, err
}

// Close releases the current segment.
func (r *SegmentReader) Close() error {
	if r.current == nil {
		return nil
	}
	err := r.current.Close()
	r.current = nil
	return errs.Wrap(err)
}
