package quote

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrNotFound         = errors.New("quote not found")
	ErrPermissionDenied = errors.New("permission denied")
	ErrStorage          = errors.New("storage failure")
)

// StorageError wraps a backend failure. Kind is ErrPermissionDenied or ErrStorage.
type StorageError struct {
	Op   string
	Kind error
	Err  error
}

func (e *StorageError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *StorageError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func NewStorageError(op string, err error) error {
	return &StorageError{Op: op, Kind: ErrStorage, Err: err}
}

func NewPermissionError(op string, err error) error {
	return &StorageError{Op: op, Kind: ErrPermissionDenied, Err: err}
}

func IsPermissionDenied(err error) bool { return errors.Is(err, ErrPermissionDenied) }

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// Repository is implemented by every storage backend. List and Snapshot
// contents are always ordered by UpdatedAt, newest first.
type Repository interface {
	List(ctx context.Context) ([]Quote, error)
	Subscribe(ctx context.Context) (Subscription, error)
	Save(ctx context.Context, q Quote) (Quote, error)
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (Quote, error)
}

// Snapshot is one delivery of a live subscription: the full list or an error.
type Snapshot struct {
	Quotes []Quote
	Err    error
}

// Subscription streams snapshots until Close. The first snapshot is sent
// right after subscribing, even when the list is empty. Close is idempotent
// and returns once nothing else will be sent; the channel is then closed.
type Subscription interface {
	Snapshots() <-chan Snapshot
	Close()
}
