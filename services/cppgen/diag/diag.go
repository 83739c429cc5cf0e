// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package diag defines the error kinds shared by every cppgen stage.
//
// Fatal kinds (MalformedDeclaration, InvalidOwnershipCycle) abort a run and
// are returned as errors. Recoverable kinds (UnresolvedReference,
// DuplicateDefinition) are collected into a List and surfaced next to the
// generated output.
package diag

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a diagnostic.
type Kind int

const (
	// KindMalformedDeclaration is a structural inconsistency in the input.
	KindMalformedDeclaration Kind = iota

	// KindUnresolvedReference is a named type not found in the merged symbol table.
	KindUnresolvedReference

	// KindInvalidOwnershipCycle is a cycle among Owned edges.
	KindInvalidOwnershipCycle

	// KindDuplicateDefinition is a second, differing definition of a name.
	KindDuplicateDefinition
)

// Sentinel errors, one per Kind. Use errors.Is to test a returned error.
var (
	ErrMalformedDeclaration  = errors.New("malformed declaration")
	ErrUnresolvedReference   = errors.New("unresolved reference")
	ErrInvalidOwnershipCycle = errors.New("invalid ownership cycle")
	ErrDuplicateDefinition   = errors.New("duplicate definition")
)

// String returns the snake_case name of the kind.
func (k Kind) String() string {
	switch k {
	case KindMalformedDeclaration:
		return "malformed_declaration"
	case KindUnresolvedReference:
		return "unresolved_reference"
	case KindInvalidOwnershipCycle:
		return "invalid_ownership_cycle"
	case KindDuplicateDefinition:
		return "duplicate_definition"
	default:
		return "unknown"
	}
}

// MarshalText renders the kind by name in JSON reports.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText parses a kind name written by MarshalText.
func (k *Kind) UnmarshalText(text []byte) error {
	for c := KindMalformedDeclaration; c <= KindDuplicateDefinition; c++ {
		if c.String() == string(text) {
			*k = c
			return nil
		}
	}
	return fmt.Errorf("unknown diagnostic kind %q", text)
}

// Fatal reports whether a diagnostic of this kind aborts the run.
func (k Kind) Fatal() bool {
	return k == KindMalformedDeclaration || k == KindInvalidOwnershipCycle
}

// sentinel maps a kind to its sentinel error.
func (k Kind) sentinel() error {
	switch k {
	case KindMalformedDeclaration:
		return ErrMalformedDeclaration
	case KindUnresolvedReference:
		return ErrUnresolvedReference
	case KindInvalidOwnershipCycle:
		return ErrInvalidOwnershipCycle
	case KindDuplicateDefinition:
		return ErrDuplicateDefinition
	default:
		return nil
	}
}

// Diagnostic is a single finding about the input.
//
// Thread Safety: Value type, safe to copy.
type Diagnostic struct {
	// Kind classifies the finding.
	Kind Kind `json:"kind"`

	// Subject is the qualified name of the offending declaration or function.
	Subject string `json:"subject"`

	// Message describes the finding.
	Message string `json:"message"`
}

// String renders the diagnostic as "kind: subject: message".
func (d Diagnostic) String() string {
	if d.Subject == "" {
		return fmt.Sprintf("%s: %s", d.Kind, d.Message)
	}
	return fmt.Sprintf("%s: %s: %s", d.Kind, d.Subject, d.Message)
}

// Error wraps a Diagnostic as an error.
//
// Description:
//
//	Error is what fatal paths return. errors.Is(err, ErrMalformedDeclaration)
//	and friends match on the wrapped Kind, and errors.As recovers the
//	Diagnostic for reporting.
type Error struct {
	Diagnostic
}

// Error implements error.
func (e *Error) Error() string {
	return e.Diagnostic.String()
}

// Unwrap returns the sentinel for the Kind so errors.Is works.
func (e *Error) Unwrap() error {
	return e.Kind.sentinel()
}

// Newf builds a Diagnostic with a formatted message.
func Newf(kind Kind, subject, format string, args ...any) Diagnostic {
	return Diagnostic{Kind: kind, Subject: subject, Message: fmt.Sprintf(format, args...)}
}

// Errorf builds an *Error with a formatted message.
func Errorf(kind Kind, subject, format string, args ...any) *Error {
	return &Error{Diagnostic: Newf(kind, subject, format, args...)}
}

// List collects recoverable diagnostics in the order they were found.
//
// Thread Safety: Not safe for concurrent use. Each pipeline stage owns its
// own List and the pipeline concatenates them after the stage completes.
type List struct {
	items []Diagnostic
}

// Add appends a diagnostic.
func (l *List) Add(d Diagnostic) {
	l.items = append(l.items, d)
}

// Addf appends a formatted diagnostic.
func (l *List) Addf(kind Kind, subject, format string, args ...any) {
	l.Add(Newf(kind, subject, format, args...))
}

// Extend appends every diagnostic from other.
func (l *List) Extend(other List) {
	l.items = append(l.items, other.items...)
}

// Items returns a copy of the collected diagnostics.
func (l List) Items() []Diagnostic {
	out := make([]Diagnostic, len(l.items))
	copy(out, l.items)
	return out
}

// Len returns the number of diagnostics.
func (l List) Len() int {
	return len(l.items)
}

// Count returns how many diagnostics have the given kind.
func (l List) Count(kind Kind) int {
	n := 0
	for _, d := range l.items {
		if d.Kind == kind {
			n++
		}
	}
	return n
}

// FirstFatal returns the first fatal diagnostic as an error, or nil.
func (l List) FirstFatal() error {
	for _, d := range l.items {
		if d.Kind.Fatal() {
			return &Error{Diagnostic: d}
		}
	}
	return nil
}

// String renders one diagnostic per line.
func (l List) String() string {
	var sb strings.Builder
	for i, d := range l.items {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(d.String())
	}
	return sb.String()
}
