// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package exierr defines the coded errors
// produced by the EXI encoder and decoder.
//
// Every error that is part of the codec contract
// is an *Error carrying a stable Code, so callers
// can branch on the cause with errors.Is or CodeOf
// instead of matching on message text.
package exierr

import (
	"errors"
	"fmt"
	"strings"
)

// Code identifies the cause of an Error.
type Code string

const (
	// EventNotAdmissible is returned when an event
	// is requested that the current grammar state
	// does not offer.
	EventNotAdmissible Code = "exi-event-not-admissible"
	// PrefixNotBound is returned when a prefix is
	// used without an in-scope namespace declaration.
	PrefixNotBound Code = "exi-prefix-not-bound"
	// PrefixMismatch is returned when a prefix is
	// bound to a different namespace than the one
	// the event requires.
	PrefixMismatch Code = "exi-prefix-mismatch"
	// Malformed is returned for streams that
	// do not follow the EXI encoding rules.
	Malformed Code = "exi-malformed"
	// CodeOutOfRange is returned when a decoded event
	// code does not index an event type in the current lexicon.
	CodeOutOfRange Code = "exi-code-out-of-range"
	// Truncated is returned when the stream ends early.
	Truncated Code = "exi-truncated"
	// Inflate is returned when a compressed block
	// cannot be decompressed.
	Inflate Code = "exi-inflate"
	// InvalidValue is returned when a value cannot be
	// represented by its datatype and the grammar has
	// no untyped alternative.
	InvalidValue Code = "exi-invalid-value"
	// Header is returned for invalid EXI headers.
	Header Code = "exi-header"
	// BlockDesync is returned when the decoder's block
	// framing disagrees with the encoder's.
	BlockDesync Code = "exi-block-desync"
	// Unsupported is returned for EXI features
	// this implementation does not provide.
	Unsupported Code = "exi-unsupported"
	// Schema is returned for inconsistent schema corpora.
	Schema Code = "exi-schema"
	// Options is returned for invalid option combinations.
	Options Code = "exi-options"
)

// Sentinels for use with errors.Is.
var (
	ErrEventNotAdmissible = &Error{Code: EventNotAdmissible}
	ErrPrefixNotBound     = &Error{Code: PrefixNotBound}
	ErrPrefixMismatch     = &Error{Code: PrefixMismatch}
	ErrMalformed          = &Error{Code: Malformed}
	ErrCodeOutOfRange     = &Error{Code: CodeOutOfRange}
	ErrTruncated          = &Error{Code: Truncated}
	ErrInflate            = &Error{Code: Inflate}
	ErrInvalidValue       = &Error{Code: InvalidValue}
	ErrHeader             = &Error{Code: Header}
	ErrBlockDesync        = &Error{Code: BlockDesync}
	ErrUnsupported        = &Error{Code: Unsupported}
	ErrSchema             = &Error{Code: Schema}
	ErrOptions            = &Error{Code: Options}
)

// Error is a coded codec error.
type Error struct {
	Code    Code
	Message string
	// Prefix, Expected and Actual carry
	// namespace binding context when present.
	Prefix   string
	Expected string
	Actual   string
	// Err is the underlying cause, if any.
	Err error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Prefix != "" || e.Expected != "" || e.Actual != "" {
		fmt.Fprintf(&b, " (prefix %q", e.Prefix)
		if e.Expected != "" {
			fmt.Fprintf(&b, ", expected %q", e.Expected)
		}
		if e.Actual != "" {
			fmt.Fprintf(&b, ", actual %q", e.Actual)
		}
		b.WriteString(")")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error
// with the same Code. This makes the sentinels
// match any error with their code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// New constructs an Error with a formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap constructs an Error with an underlying cause.
func Wrap(code Code, err error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// Binding constructs a namespace binding error.
func Binding(code Code, prefix, expected, actual string) *Error {
	msg := "prefix not bound"
	if code == PrefixMismatch {
		msg = "prefix bound to a different namespace"
	}
	return &Error{Code: code, Message: msg, Prefix: prefix, Expected: expected, Actual: actual}
}

// CodeOf returns the Code of the first *Error
// in the chain of err, or the empty Code.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
