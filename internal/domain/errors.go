package domain

import (
	"fmt"
)

// Error types for domain-specific errors
type ErrorType string

const (
	ErrorTypeTransport   ErrorType = "transport"
	ErrorTypeStructural  ErrorType = "structural"
	ErrorTypeRendering   ErrorType = "rendering"
	ErrorTypePersistence ErrorType = "persistence"
	ErrorTypeValidation  ErrorType = "validation"
	ErrorTypeConfig      ErrorType = "config"
	ErrorTypeIO          ErrorType = "io"
	ErrorTypeCancelled   ErrorType = "cancelled"
)

// DomainError represents a domain-specific error with context
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewError creates a new domain error
func NewError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
	}
}

// Common error constructors
func TransportError(message string, err error) *DomainError {
	return NewError(ErrorTypeTransport, message, err)
}

func StructuralError(message string, err error) *DomainError {
	return NewError(ErrorTypeStructural, message, err)
}

func RenderingError(message string, err error) *DomainError {
	return NewError(ErrorTypeRendering, message, err)
}

func PersistenceError(message string, err error) *DomainError {
	return NewError(ErrorTypePersistence, message, err)
}

func ValidationError(message string, err error) *DomainError {
	return NewError(ErrorTypeValidation, message, err)
}

func ConfigError(message string, err error) *DomainError {
	return NewError(ErrorTypeConfig, message, err)
}

func IOError(message string, err error) *DomainError {
	return NewError(ErrorTypeIO, message, err)
}

func CancelledError(message string, err error) *DomainError {
	return NewError(ErrorTypeCancelled, message, err)
}

// IsType reports whether err, or any error in its tree, is a DomainError
// of the given type. Joined errors are searched branch by branch.
func IsType(err error, errType ErrorType) bool {
	for err != nil {
		if de, ok := err.(*DomainError); ok && de.Type == errType {
			return true
		}
		switch u := err.(type) {
		case interface{ Unwrap() []error }:
			for _, e := range u.Unwrap() {
				if IsType(e, errType) {
					return true
				}
			}
			return false
		case interface{ Unwrap() error }:
			err = u.Unwrap()
		default:
			return false
		}
	}
	return false
}
