// Package failure classifies the errors a build run can end with so the CLI
// can report them (and pick an exit code) by kind rather than by message.
package failure

import (
	"errors"
	"fmt"
)

// Kind is the category of a failed run.
type Kind int

const (
	Unknown Kind = iota
	// Config means required project or compiler metadata is missing or invalid.
	Config
	// CacheIO means the persisted cache could not be read, decoded or written.
	CacheIO
	// Generation means a command could not be generated, e.g. an unknown module dependency.
	Generation
	// Spawn means a process could not be started at all.
	Spawn
	// Compile means a compiler process ran and exited with a non-zero status.
	Compile
	// Link means the link step failed.
	Link
	// Runtime means the produced binary exited with a non-zero status.
	Runtime
)

var kindNames = map[Kind]string{
	Unknown:    "error",
	Config:     "configuration error",
	CacheIO:    "cache error",
	Generation: "command generation error",
	Spawn:      "spawn error",
	Compile:    "compilation failed",
	Link:       "link failed",
	Runtime:    "program failed",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return kindNames[Unknown]
}

// ExitCode maps a kind to the process exit code of the CLI.
func (k Kind) ExitCode() int {
	switch k {
	case Config:
		return 2
	case CacheIO:
		return 3
	case Generation:
		return 4
	case Spawn:
		return 5
	case Compile:
		return 6
	case Link:
		return 7
	case Runtime:
		return 8
	default:
		return 1
	}
}

// Error carries the kind of a failure, the stage it happened in and the
// subject (translation unit, target or file) it is about.
type Error struct {
	Kind    Kind
	Stage   string
	Subject string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Kind.String()
	if e.Stage != "" {
		msg = e.Stage + ": " + msg
	}
	if e.Subject != "" {
		msg += " (" + e.Subject + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err with a kind, stage and subject.
func New(kind Kind, stage, subject string, err error) error {
	return &Error{Kind: kind, Stage: stage, Subject: subject, Err: err}
}

// Newf is New with a formatted cause.
func Newf(kind Kind, stage, subject, format string, a ...any) error {
	return &Error{Kind: kind, Stage: stage, Subject: subject, Err: fmt.Errorf(format, a...)}
}

// KindOf returns the kind of the outermost *Error in err's chain, or Unknown.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return Unknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
