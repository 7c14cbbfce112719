package models

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyContent      = errors.New("no extractable text in item")
	ErrConfig            = errors.New("invalid configuration")
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid lead status transition")
	ErrTenantRequired    = errors.New("tenant id is required")
)

// EmptyContentError marks an item that should be skipped and counted, not retried.
type EmptyContentError struct {
	Source string
	Title  string
	Reason string
}

func (e *EmptyContentError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("unusable content from %s item %q: %s", e.Source, e.Title, e.Reason)
	}
	return fmt.Sprintf("empty content from %s item %q", e.Source, e.Title)
}

func (e *EmptyContentError) Unwrap() error { return ErrEmptyContent }

// ConfigError is fatal for the run that hit it.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error { return ErrConfig }

func sprintf(format string, args ...any) string {
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}
