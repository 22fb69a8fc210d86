// Package errorx classifies errors crossing the capture and reset
// paths and integrates pkg/errors stack traces with slog.
package errorx

import "github.com/pkg/errors"

// Temporary reports whether err marks a transient condition worth
// retrying, such as an interrupted capture read or a transmit queue
// momentarily full. The whole wrap chain is searched.
func Temporary(err error) bool {
	var e interface{ Temporary() bool }
	return errors.As(err, &e) && e.Temporary()
}

type temporaryErr struct {
	error
}

// WrapTemp marks err as transient for Temporary.
func WrapTemp(err error) error {
	if err == nil {
		return nil
	}
	return &temporaryErr{error: err}
}

func (t *temporaryErr) Error() string   { return t.error.Error() }
func (t *temporaryErr) Unwrap() error   { return t.error }
func (t *temporaryErr) Temporary() bool { return true }
