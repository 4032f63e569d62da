package domain

import (
	"errors"
	"fmt"
)

// TransportError is an upstream HTTP or network failure during a fetch.
type TransportError struct {
	Platform Platform
	Op       string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Platform, e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// NotFoundError means the requested account does not exist on the platform.
type NotFoundError struct {
	Platform   Platform
	Identifier string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s account not found: %s", e.Platform, e.Identifier)
}

// ConfigurationError rejects malformed input before any network call.
type ConfigurationError struct {
	Platform Platform
	Input    string
	Reason   string
}

func (e *ConfigurationError) Error() string {
	if e.Platform == "" {
		return fmt.Sprintf("invalid input %q: %s", e.Input, e.Reason)
	}
	return fmt.Sprintf("invalid %s input %q: %s", e.Platform, e.Input, e.Reason)
}

// PartialDataWarning reports an affinity walk that stopped early. It is
// informational: the index built so far is still usable.
type PartialDataWarning struct {
	Platform     Platform
	PagesFetched int
	Reason       string
	Err          error
}

func (w *PartialDataWarning) Error() string {
	if w.Err != nil {
		return fmt.Sprintf("%s affinity index is partial after %d pages: %s: %v", w.Platform, w.PagesFetched, w.Reason, w.Err)
	}
	return fmt.Sprintf("%s affinity index is partial after %d pages: %s", w.Platform, w.PagesFetched, w.Reason)
}

func (w *PartialDataWarning) Unwrap() error {
	return w.Err
}

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// asTransportError wraps err as a TransportError unless it already carries a
// more specific domain error.
func asTransportError(platform Platform, op string, err error) error {
	var (
		te *TransportError
		nf *NotFoundError
		ce *ConfigurationError
	)
	if errors.As(err, &te) || errors.As(err, &nf) || errors.As(err, &ce) {
		return err
	}
	return &TransportError{Platform: platform, Op: op, Err: err}
}
