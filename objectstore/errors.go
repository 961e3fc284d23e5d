// Copyright 2025 Poiesic Systems
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


package objectstore

import (
	"errors"
	"fmt"
)

// Kind classifies an object store failure.
type Kind int

const (
	// KindFatal is a failure that retrying will not fix.
	KindFatal Kind = iota
	// KindNotFound means the object or branch does not exist.
	KindNotFound
	// KindTransient is a failure worth retrying (network, throttling, 5xx).
	KindTransient
	// KindNoChanges means a commit found nothing to record.
	KindNoChanges
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not found"
	case KindTransient:
		return "transient"
	case KindNoChanges:
		return "no changes"
	default:
		return "fatal"
	}
}

// Sentinels matched by errors.Is against an *Error of the same kind.
var (
	ErrNotFound  = errors.New("object not found")
	ErrTransient = errors.New("transient object store error")
	ErrNoChanges = errors.New("no changes to commit")
	ErrFatal     = errors.New("object store error")
)

// Error is returned by Store implementations.
type Error struct {
	Op   string
	Key  string
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	msg := e.Op
	if e.Key != "" {
		msg += " " + e.Key
	}
	msg += ": " + e.Kind.String()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for e's kind.
func (e *Error) Is(target error) bool {
	return target == kindSentinel(e.Kind)
}

func kindSentinel(k Kind) error {
	switch k {
	case KindNotFound:
		return ErrNotFound
	case KindTransient:
		return ErrTransient
	case KindNoChanges:
		return ErrNoChanges
	default:
		return ErrFatal
	}
}

// NewError builds an *Error.
func NewError(op, key string, kind Kind, err error) *Error {
	return &Error{Op: op, Key: key, Kind: kind, Err: err}
}

// Errorf builds an *Error with a formatted cause.
func Errorf(op, key string, kind Kind, format string, args ...any) *Error {
	return &Error{Op: op, Key: key, Kind: kind, Err: fmt.Errorf(format, args...)}
}

// IsNotFound reports whether err is a not-found failure.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsNoChanges reports whether err is a commit with nothing to record.
func IsNoChanges(err error) bool { return errors.Is(err, ErrNoChanges) }

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool { return errors.Is(err, ErrTransient) }
