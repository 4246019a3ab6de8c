package domain

import (
	"errors"
	"fmt"
	"strconv"
)

// ErrNotFound is returned when a referenced record does not exist.
type ErrNotFound struct {
	Entity EntityType
	ID     string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// NotFound builds an ErrNotFound for an integer identifier.
func NotFound(entity EntityType, id int) ErrNotFound {
	return ErrNotFound{Entity: entity, ID: strconv.Itoa(id)}
}

// ValidationError reports input that was rejected before reaching storage.
type ValidationError struct {
	Field  string
	Reason string
	// TooLarge marks size ceiling violations so transports can map them to 413.
	TooLarge bool
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// StorageError wraps a disk or database failure.
type StorageError struct {
	Op  string
	Err error
}

func (e StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e StorageError) Unwrap() error { return e.Err }

// IsNotFound reports whether err wraps ErrNotFound.
func IsNotFound(err error) bool {
	var nf ErrNotFound
	return errors.As(err, &nf)
}

// IsValidation reports whether err wraps ValidationError.
func IsValidation(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}
