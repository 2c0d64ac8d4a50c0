package types

import (
	"errors"

	"github.com/hearthvm/hearth/common/check"
)

// This file contains the errors handling for the execution phase. Each failure is uniquely
// identified by an integer number (ErrorCode), which is then reported in the call receipt.
//
// There are two main reasons to use this approach to errors handling:
// 1. Ease of adding new errors. To do this, just add a new `ErrorCode` enum constant and use it
//    like this: `types.NewError(types.ErrorSomeNewError)`. The name of the constant is also a
//    string representation of the error, e.g. `ErrorOutOfGas.String() => "OutOfGas"`.
// 2. Accurate identification of failures in receipts: for any particular failure case a
//    dedicated error code can exist, so the reason of a failed call is visible from its receipt.

type ErrorCode uint32

//go:generate stringer -type=ErrorCode -trimprefix=Error

const (
	ErrorSuccess ErrorCode = iota
	ErrorUnknown
	ErrorExecution

	// ErrorOutOfGas is returned when the frame's gas meter cannot cover a charge.
	ErrorOutOfGas

	// ErrorRequireFailed is returned when a require check observes a zero condition.
	ErrorRequireFailed

	// ErrorAssertFailed is returned when an assert check observes a zero condition.
	// Unlike require, assert burns all remaining gas.
	ErrorAssertFailed

	// ErrorExecutionReverted is returned on an explicit revert.
	ErrorExecutionReverted

	// ErrorReentrancyBlocked is returned when a guarded contract is re-entered
	// while its guard is held, at any call depth.
	ErrorReentrancyBlocked

	// ErrorVisibilityViolation is returned when binding rejects a call because the
	// function is not visible to the caller.
	ErrorVisibilityViolation

	// ErrorPayableViolation is returned when value is attached to a non-payable function.
	ErrorPayableViolation

	// ErrorContractDoesNotExist is returned on a call to an unknown or terminated address.
	ErrorContractDoesNotExist

	// ErrorContractAlreadyExists is returned on an attempt to deploy to an occupied address.
	ErrorContractAlreadyExists

	// ErrorDeploymentFailed is returned when code validation or the constructor fails.
	ErrorDeploymentFailed

	// ErrorExternalCallInConstructor is returned when a constructor attempts an external call.
	ErrorExternalCallInConstructor

	// ErrorUnknownFunction is returned when binding finds no function with the requested name.
	ErrorUnknownFunction

	// ErrorInvalidArgument is returned when binding rejects the argument list.
	ErrorInvalidArgument

	// ErrorInsufficientBalance is returned when the caller cannot cover the attached value.
	ErrorInsufficientBalance

	// ErrorWriteProtection is returned on a state mutation inside a view or pure frame.
	ErrorWriteProtection

	ErrorStackUnderflow
	ErrorStackOverflow
	ErrorInvalidOpcode

	// ErrorCallDepthExceeded is returned when the frame stack exceeds its depth limit.
	ErrorCallDepthExceeded

	// ErrorGasUintOverflow is returned when gas arithmetic would overflow.
	ErrorGasUintOverflow
)

// BurnsRemainingGas reports whether a failure with this code consumes the frame's
// entire remaining gas. Internal faults burn; validation and explicit failures
// only consume what was metered before the failure.
func (c ErrorCode) BurnsRemainingGas() bool {
	switch c {
	case ErrorAssertFailed, ErrorWriteProtection, ErrorStackUnderflow,
		ErrorStackOverflow, ErrorInvalidOpcode, ErrorGasUintOverflow:
		return true
	}
	return false
}

type ExecError interface {
	error
	Code() ErrorCode
}

var _ ExecError = new(BaseError)

type BaseError struct {
	code ErrorCode
}

type VerboseError struct {
	BaseError
	msg string
}

type WrapError struct {
	BaseError
	inner error
}

// VmError marks failures raised by the instruction interpreter itself, as
// opposed to binding or host-level failures carrying the same codes.
type VmError struct {
	BaseError
}

type VmVerboseError struct {
	VmError
	msg string
}

func NewError(code ErrorCode) ExecError {
	return &BaseError{code}
}

func IsValidError(err error) bool {
	return ToError(err) != nil
}

func ToBaseError(err error) *BaseError {
	var base *BaseError
	if errors.As(err, &base) {
		return base
	}
	return nil
}

func ToError(err error) ExecError {
	if e, ok := err.(ExecError); ok { //nolint:errorlint
		return e
	}
	return nil
}

func IsVmError(err error) bool {
	var e *VmError
	return errors.As(err, &e)
}

func IsOutOfGasError(err error) bool {
	return GetErrorCode(err) == ErrorOutOfGas
}

func GetErrorCode(err error) ErrorCode {
	var e ExecError
	if errors.As(err, &e) {
		return e.Code()
	}
	return ErrorUnknown
}

func HasErrorCode(err error, code ErrorCode) bool {
	return GetErrorCode(err) == code
}

func NewVmError(code ErrorCode) ExecError {
	return &VmError{BaseError{code}}
}

func NewWrapError(code ErrorCode, err error) ExecError {
	// Nested errors(Error type) are not allowed because error code must be unique.
	check.PanicIfNotf(!IsValidError(err), "nested errors are prohibited")
	return &WrapError{BaseError{code}, err}
}

func KeepOrWrapError(code ErrorCode, err error) ExecError {
	if e := ToError(err); e != nil {
		return e
	}
	return NewWrapError(code, err)
}

func NewVerboseError(code ErrorCode, msg string) ExecError {
	return &VerboseError{BaseError{code}, msg}
}

func NewVmVerboseError(code ErrorCode, msg string) ExecError {
	return &VmVerboseError{VmError{BaseError{code}}, msg}
}

func (e BaseError) Error() string {
	return e.Code().String()
}

func (e BaseError) Code() ErrorCode {
	return e.code
}

func (e VmError) Unwrap() error {
	return &e.BaseError
}

func (e WrapError) Error() string {
	return e.BaseError.Error() + ": " + e.inner.Error()
}

func (e WrapError) Unwrap() error {
	return e.inner
}

func (e VerboseError) Error() string {
	return e.BaseError.Error() + ": " + e.msg
}

func (e VerboseError) Unwrap() error {
	return &e.BaseError
}

// Reason returns the user-supplied message of a require or revert failure.
func (e VerboseError) Reason() string {
	return e.msg
}

func (e VmVerboseError) Error() string {
	return e.VmError.Error() + ": " + e.msg
}

func (e VmVerboseError) Unwrap() error {
	return &e.VmError
}

func (e VmVerboseError) Reason() string {
	return e.msg
}

// FailureReason extracts the user-supplied message from a require or revert
// failure, or returns the empty string.
func FailureReason(err error) string {
	var r interface{ Reason() string }
	if errors.As(err, &r) {
		return r.Reason()
	}
	return ""
}
