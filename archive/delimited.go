// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package archive

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"

	"github.com/zeebo/errs/v2"
)

// A delimited stream is a sequence of frames. Each frame starts with a
// control byte and a big endian uint16 size. Data frames carry up to
// maxFrameSize bytes; a delimit frame has no body and ends a message.

const (
	frameHeaderSize = 3
	maxFrameSize    = 1<<16 - 1
)

type controlByte byte

const (
	controlData    controlByte = 0
	controlDelimit controlByte = 1
)

// FrameWriter splits a byte stream into frames and separates messages with
// delimiters.
type FrameWriter struct {
	base io.Writer
	buf  bytes.Buffer
}

// NewFrameWriter returns a FrameWriter writing to base.
func NewFrameWriter(base io.Writer) *FrameWriter {
	return &FrameWriter{base: base}
}

// Write buffers p and writes every full frame.
func (w *FrameWriter) Write(p []byte) (n int, err error) {
	n, _ = w.buf.Write(p)
	for w.buf.Len() >= maxFrameSize {
		if err := w.flushFrame(); err != nil {
			return n, err
		}
	}
	return n, nil
}

func (w *FrameWriter) flushFrame() error {
	body := w.buf.Next(maxFrameSize)
	if len(body) == 0 {
		return nil
	}
	var header [frameHeaderSize]byte
	header[0] = byte(controlData)
	binary.BigEndian.PutUint16(header[1:], uint16(len(body)))
	if _, err := w.base.Write(header[:]); err != nil {
		return errs.Wrap(err)
	}
	_, err := w.base.Write(body)
	return errs.Wrap(err)
}

// Flush writes the buffered bytes as frames.
func (w *FrameWriter) Flush() error {
	for w.buf.Len() > 0 {
		if err := w.flushFrame(); err != nil {
			return err
		}
	}
	return nil
}

// Delimit flushes and ends the current message.
func (w *FrameWriter) Delimit() error {
	if err := w.Flush(); err != nil {
		return err
	}
	var header [frameHeaderSize]byte
	header[0] = byte(controlDelimit)
	_, err := w.base.Write(header[:])
	return errs.Wrap(err)
}

// FrameReader reads the messages of a delimited stream. Call Next before
// reading each message.
type FrameReader struct {
	base      io.Reader
	control   controlByte
	data      [maxFrameSize]byte
	remaining []byte
	err       error
}

// NewFrameReader returns a FrameReader reading from base.
func NewFrameReader(base io.Reader) *FrameReader {
	return &FrameReader{base: base, control: controlDelimit}
}

// Next skips the rest of the current message and reports whether another
// one follows.
func (r *FrameReader) Next() bool {
	for r.control != controlDelimit && r.err == nil {
		r.readFrame()
	}
	if r.err != nil {
		return false
	}
	last := r.control
	r.readFrame()
	return r.err == nil || (last == controlDelimit && errors.Is(r.err, io.EOF))
}

func (r *FrameReader) readFrame() {
	for {
		var header [frameHeaderSize]byte
		if _, err := io.ReadFull(r.base, header[:]); err != nil {
			r.err = err
			return
		}

		switch controlByte(header[0]) {
		case controlDelimit:
			r.control = controlDelimit
			return
		case controlData:
			r.control = controlData
		default:
			r.err = errs.Errorf("unknown control byte %#x", header[0])
			return
		}

		size := int(binary.BigEndian.Uint16(header[1:]))
		r.remaining = r.data[:size]
		if _, err := io.ReadFull(r.base, r.remaining); err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			r.err = err
			return
		}
		if size > 0 {
			return
		}
	}
}

// Err returns the error that stopped Next, if it was not the end of the
// stream.
func (r *FrameReader) Err() error {
	if errors.Is(r.err, io.EOF) {
		return nil
	}
	return r.err
}

// Read reads from the current message. It returns io.EOF at its end.
func (r *FrameReader) Read(p []byte) (n int, err error) {
	if r.err != nil {
		return 0, r.err
	}
	if r.control != controlData {
		return 0, io.EOF
	}
	n = copy(p, r.remaining)
	r.remaining = r.remaining[n:]
	if len(r.remaining) == 0 {
		r.readFrame()
	}
	return n, nil
}
