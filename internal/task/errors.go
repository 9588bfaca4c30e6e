// Package task provides the task model and its SQLite-backed store.
//
// This file defines the domain error types shared by the tool layer
// and the REST handlers.
package task

import (
	"fmt"
	"strings"
)

// ValidationError indicates rejected input (empty title, bad status
// filter, missing fields). The message is safe to show to users and
// to fold into tool results.
type ValidationError struct {
	Msg string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return e.Msg
}

// AuthorizationError is returned when a task ID does not resolve to a
// task owned by the caller. The same error covers both a nonexistent
// ID and an ID owned by someone else, so responses never reveal
// whether a given ID exists.
type AuthorizationError struct{}

// Error implements the error interface.
func (e *AuthorizationError) Error() string {
	return "not authorized to access this task"
}

// NotFoundError is returned when a title search matches nothing.
type NotFoundError struct {
	Name string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("task '%s' not found. Check the task list.", e.Name)
}

// AmbiguousMatchError is returned when a title search matches more
// than one task. Titles lists every match so the model can ask the
// user to disambiguate.
type AmbiguousMatchError struct {
	Name   string
	Titles []string
}

// Error implements the error interface.
func (e *AmbiguousMatchError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "found %d tasks matching '%s':\n", len(e.Titles), e.Name)
	for _, t := range e.Titles {
		fmt.Fprintf(&b, "- %s\n", t)
	}
	b.WriteString("Please be more specific.")
	return b.String()
}
