package extraction

import (
	"errors"
	"fmt"
)

// ErrMissingTitle is wrapped by NormalizationError when a candidate has no usable title.
var ErrMissingTitle = errors.New("missing title")

// ErrInvalidItem is wrapped by NormalizationError when a candidate is not an object.
var ErrInvalidItem = errors.New("invalid item")

// ConfigError reports invalid configuration. It is returned at construction
// time and never per document.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %s %s", e.Field, e.Reason)
}

// ParseError reports that a model reply held no extractable JSON.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse failure: %s: %v", e.Reason, e.Err)
	}
	return "parse failure: " + e.Reason
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ReasonCode explains a normalization failure.
type ReasonCode string

const (
	ReasonMissingTitle ReasonCode = "MISSING_TITLE"
	ReasonInvalidItem  ReasonCode = "INVALID_ITEM"
)

// NormalizationError reports a candidate that could not become an ActionItem.
type NormalizationError struct {
	Reason ReasonCode
}

func (e *NormalizationError) Error() string {
	return "normalization failure: " + string(e.Reason)
}

func (e *NormalizationError) Unwrap() error {
	switch e.Reason {
	case ReasonMissingTitle:
		return ErrMissingTitle
	case ReasonInvalidItem:
		return ErrInvalidItem
	default:
		return nil
	}
}
