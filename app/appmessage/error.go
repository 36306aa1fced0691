// Copyright (c) 2013-2015 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package appmessage

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kinds of frame errors. A decoded frame that fails with any of these is
// unusable and the connection it came from must be dropped.
var (
	// ErrBadMagic means the frame doesn't start with the network's magic bytes.
	ErrBadMagic = errors.New("bad magic")

	// ErrMalformedCommand means the command field isn't NUL-padded printable ASCII.
	ErrMalformedCommand = errors.New("malformed command")

	// ErrOversizedMessage means the declared payload length exceeds the maximum.
	ErrOversizedMessage = errors.New("oversized message")

	// ErrChecksumMismatch means the payload doesn't match the header checksum.
	ErrChecksumMismatch = errors.New("checksum mismatch")

	// ErrTruncatedPayload means a payload is shorter than its fixed layout requires.
	ErrTruncatedPayload = errors.New("truncated payload")

	// ErrMalformedPayload means a payload field holds an impossible value.
	ErrMalformedPayload = errors.New("malformed payload")
)

// ErrIncompleteFrame is returned by Codec.Decode when the buffer doesn't yet
// hold a whole frame. It is not a frame error: the caller should read more
// bytes and try again.
var ErrIncompleteFrame = errors.New("incomplete frame")

// MessageError describes an issue with a frame or a payload.
// Kind is one of the frame error kinds above and is what errors.Is
// matches against.
type MessageError struct {
	Func        string // Function name
	Kind        error  // Frame error kind
	Description string // Human readable description of the issue
}

// Error satisfies the error interface and prints human-readable errors.
func (e *MessageError) Error() string {
	if e.Func != "" {
		return fmt.Sprintf("%s: %s", e.Func, e.Description)
	}
	return e.Description
}

// Unwrap returns the error kind.
func (e *MessageError) Unwrap() error {
	return e.Kind
}

// messageError creates a MessageError given a set of arguments.
func messageError(f string, kind error, desc string) error {
	return errors.WithStack(&MessageError{Func: f, Kind: kind, Description: desc})
}

// IsFrameError returns whether err is, or wraps, a MessageError.
func IsFrameError(err error) bool {
	var messageErr *MessageError
	return errors.As(err, &messageErr)
}

// FrameErrorKind returns the kind of a frame error as a short string, or
// "unknown" for any other error.
func FrameErrorKind(err error) string {
	var messageErr *MessageError
	if !errors.As(err, &messageErr) || messageErr.Kind == nil {
		return "unknown"
	}
	return messageErr.Kind.Error()
}
