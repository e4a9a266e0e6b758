package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/antedotee/mad-project-price-tracker/store"
)

// ErrTimeout indicates a store or price source call exceeded its deadline.
// Callers may retry the item.
type ErrTimeout struct {
	Op  string
	Err error
}

func (e ErrTimeout) Error() string {
	return fmt.Errorf("%s: timeout: %w", e.Op, e.Err).Error()
}

func (e ErrTimeout) Unwrap() error {
	return e.Err
}

// ErrStore indicates a failed store read or write.
type ErrStore struct {
	Op  string
	Err error
}

func (e ErrStore) Error() string {
	return fmt.Errorf("%s: %w", e.Op, e.Err).Error()
}

func (e ErrStore) Unwrap() error {
	return e.Err
}

// ErrPriceSource indicates the price source could not produce a price.
type ErrPriceSource struct {
	Err error
}

func (e ErrPriceSource) Error() string {
	return fmt.Errorf("price source: %w", e.Err).Error()
}

func (e ErrPriceSource) Unwrap() error {
	return e.Err
}

// classify wraps err from op in ErrTimeout or ErrStore.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout{Op: op, Err: err}
	}
	return ErrStore{Op: op, Err: err}
}

// IsRetryable reports whether err is a transient per-item failure: a
// timeout, or a cause in its chain whose Retryable method says so.
func IsRetryable(err error) bool {
	var timeout ErrTimeout
	if errors.As(err, &timeout) {
		return true
	}
	var r interface{ Retryable() bool }
	return errors.As(err, &r) && r.Retryable()
}

// ErrorTypeLabel returns the metrics label for err.
func ErrorTypeLabel(err error) string {
	if err == nil {
		return "unknown"
	}
	var timeout ErrTimeout
	if errors.As(err, &timeout) {
		return "timeout"
	}
	var source ErrPriceSource
	if errors.As(err, &source) {
		return "price_source"
	}
	if errors.Is(err, store.ErrNotFound) {
		return "not_found"
	}
	var storeErr ErrStore
	if errors.As(err, &storeErr) {
		return "store"
	}
	return "other"
}
