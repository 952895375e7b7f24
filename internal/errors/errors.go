// Package errors defines application-specific error types and sentinel errors.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common conditions.
var (
	ErrRecordTooLarge  = errors.New("record too large")
	ErrBufferClosed    = errors.New("buffer is closed")
	ErrNotInitialized  = errors.New("buffer is not initialized")
	ErrCancelled       = errors.New("read cancelled")
	ErrIOFailure       = errors.New("spill file i/o failure")
	ErrConsumerClosed  = errors.New("consumer is closed")
	ErrProducerClosed  = errors.New("producer is closed")
	ErrInvalidRecord   = errors.New("invalid record")
	ErrWriterClosed    = errors.New("storage writer is closed")
	ErrConnectionLost  = errors.New("connection lost")
	ErrGraphRunning    = errors.New("graph is already running")
	ErrUnknownEdge     = errors.New("unknown edge")
	ErrPortUnconnected = errors.New("port is not connected")
)

// SpillError represents a failure on the buffer's backing file.
// A SpillError leaves the buffer unusable.
type SpillError struct {
	Operation string
	Path      string
	Slot      int
	Err       error
}

func (e *SpillError) Error() string {
	return fmt.Sprintf("spill error: operation=%s path=%s slot=%d: %v",
		e.Operation, e.Path, e.Slot, e.Err)
}

func (e *SpillError) Unwrap() []error {
	return []error{ErrIOFailure, e.Err}
}

// NodeError represents a failure reported by a graph node.
type NodeError struct {
	Node string
	Err  error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("node %s failed: %v", e.Node, e.Err)
}

func (e *NodeError) Unwrap() error {
	return e.Err
}

// ValidationError represents a record that does not match its schema.
type ValidationError struct {
	Schema string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: schema=%s field=%s: %s",
		e.Schema, e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidRecord
}

// StorageError represents a storage operation failure.
type StorageError struct {
	Operation string
	Path      string
	Err       error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error: operation=%s path=%s: %v",
		e.Operation, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Retryable defines an interface for errors that can indicate if they are retryable.
type Retryable interface {
	error
	IsRetryable() bool
}

// IsRetryable checks if an error is retryable.
// It first checks if the error implements the Retryable interface,
// then falls back to checking specific error types and sentinel errors.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var retryable Retryable
	if errors.As(err, &retryable) {
		return retryable.IsRetryable()
	}

	// A cancelled read leaves the buffer intact; spill failures and closed buffers do not.
	if errors.Is(err, ErrCancelled) || errors.Is(err, ErrConnectionLost) {
		return true
	}

	return false
}

// IsRetryable determines if a StorageError is retryable based on the operation type.
func (e *StorageError) IsRetryable() bool {
	return e.Operation == "write" || e.Operation == "upload" || e.Operation == "create"
}

// IsRetryable reports false: the buffer is unusable after a spill failure.
func (e *SpillError) IsRetryable() bool {
	return false
}

// IsRetryable determines if a NodeError is retryable.
func (e *NodeError) IsRetryable() bool {
	return IsRetryable(e.Err)
}
