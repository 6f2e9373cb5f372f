// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	ErrInvalidSignal      = errors.New("invalid signal")
	ErrUnsupportedSymbol  = errors.New("unsupported symbol")
	ErrInsufficientMargin = errors.New("insufficient margin")
	ErrOrderRejected      = errors.New("order rejected")
	ErrPositionNotFound   = errors.New("position not found")
	ErrTradeNotFound      = errors.New("trade not found")
	ErrRateLimited        = errors.New("rate limited")
	ErrConnectionFailed   = errors.New("connection failed")
	ErrTimeout            = errors.New("operation timed out")
	ErrConfigInvalid      = errors.New("invalid configuration")
	ErrSymbolHalted       = errors.New("trading halted for symbol")
	ErrDatabaseError      = errors.New("database error")
)

// ConfigurationError represents invalid risk or trading parameters for a
// single trade, such as a zero stop distance. It rejects that trade only.
type ConfigurationError struct {
	Parameter string
	Value     interface{}
	Message   string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s (%v): %s", e.Parameter, e.Value, e.Message)
}

// NewConfigurationError creates a new ConfigurationError.
func NewConfigurationError(parameter string, value interface{}, message string) *ConfigurationError {
	return &ConfigurationError{
		Parameter: parameter,
		Value:     value,
		Message:   message,
	}
}

// AdmissionError represents a rejected trade admission: a risk limit or
// the daily circuit breaker triggered. Expected, logged at info level.
type AdmissionError struct {
	Rule    string
	Current float64
	Limit   float64
	Reason  string
}

func (e *AdmissionError) Error() string {
	return fmt.Sprintf("admission rejected [%s]: %s (current: %.4f, limit: %.4f)", e.Rule, e.Reason, e.Current, e.Limit)
}

// NewAdmissionError creates a new AdmissionError.
func NewAdmissionError(rule string, current, limit float64, reason string) *AdmissionError {
	return &AdmissionError{
		Rule:    rule,
		Current: current,
		Limit:   limit,
		Reason:  reason,
	}
}

// ExecutionError represents a failed exchange call.
type ExecutionError struct {
	OrderID string
	Symbol  string
	Side    string
	Reason  string
	Err     error
}

func (e *ExecutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("execution error [%s] %s %s: %s: %v", e.OrderID, e.Side, e.Symbol, e.Reason, e.Err)
	}
	return fmt.Sprintf("execution error [%s] %s %s: %s", e.OrderID, e.Side, e.Symbol, e.Reason)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// NewExecutionError creates a new ExecutionError.
func NewExecutionError(orderID, symbol, side, reason string, err error) *ExecutionError {
	return &ExecutionError{
		OrderID: orderID,
		Symbol:  symbol,
		Side:    side,
		Reason:  reason,
		Err:     err,
	}
}

// InvalidStateError represents a local account-state inconsistency.
// It blocks further trading on the affected symbol until resynced.
type InvalidStateError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("invalid state: %s (%v): %s", e.Field, e.Value, e.Message)
}

// NewInvalidStateError creates a new InvalidStateError.
func NewInvalidStateError(field string, value interface{}, message string) *InvalidStateError {
	return &InvalidStateError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// ExchangeError represents an error from the exchange API.
type ExchangeError struct {
	Code    string
	Message string
	Err     error
}

func (e *ExchangeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("exchange error [%s]: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("exchange error [%s]: %s", e.Code, e.Message)
}

func (e *ExchangeError) Unwrap() error {
	return e.Err
}

// NewExchangeError creates a new ExchangeError.
func NewExchangeError(code, message string, err error) *ExchangeError {
	return &ExchangeError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// ConfirmationError represents an error from an AI confirmation model.
type ConfirmationError struct {
	Model     string
	Operation string
	Err       error
}

func (e *ConfirmationError) Error() string {
	return fmt.Sprintf("confirmation error [%s] %s: %v", e.Model, e.Operation, e.Err)
}

func (e *ConfirmationError) Unwrap() error {
	return e.Err
}

// NewConfirmationError creates a new ConfirmationError.
func NewConfirmationError(model, operation string, err error) *ConfirmationError {
	return &ConfirmationError{
		Model:     model,
		Operation: operation,
		Err:       err,
	}
}

// ValidationError represents a validation error on an inbound payload.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s (%v): %s", e.Field, e.Value, e.Message)
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
