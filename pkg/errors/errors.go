package errors

import (
	stdErrors "errors"
	"fmt"
)

type Code string

const (
	CodeValidation          Code = "VALIDATION_ERROR"
	CodeNotFound            Code = "NOT_FOUND"
	CodeInsufficientStock   Code = "INSUFFICIENT_STOCK"
	CodeConflict            Code = "CONFLICT"
	CodeResourceUnavailable Code = "RESOURCE_UNAVAILABLE"
	CodeStorage             Code = "STORAGE_ERROR"
)

type Metadata struct {
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

var metadataByCode = map[Code]Metadata{
	CodeValidation: {
		Retryable:      false,
		PublicMessage:  "validation failed",
		DetailsAllowed: true,
	},
	CodeNotFound: {
		Retryable:      false,
		PublicMessage:  "resource not found",
		DetailsAllowed: false,
	},
	CodeInsufficientStock: {
		Retryable:      false,
		PublicMessage:  "insufficient stock",
		DetailsAllowed: true,
	},
	CodeConflict: {
		Retryable:      true,
		PublicMessage:  "concurrent update detected",
		DetailsAllowed: false,
	},
	CodeResourceUnavailable: {
		Retryable:      true,
		PublicMessage:  "resource unavailable",
		DetailsAllowed: false,
	},
	CodeStorage: {
		Retryable:      false,
		PublicMessage:  "storage failure",
		DetailsAllowed: false,
	},
}

func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeStorage]
}

type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Wrap(code Code, err error, message string) *Error {
	if err == nil {
		return New(code, message)
	}
	return &Error{code: code, message: message, cause: err}
}

// StockShortage describes how far a consumption request overshot availability.
type StockShortage struct {
	Available int `json:"available"`
	Requested int `json:"requested"`
}

// InsufficientStock builds the canonical shortage error carrying the
// available/requested pair callers inspect before surfacing the failure.
func InsufficientStock(available, requested int) *Error {
	err := New(CodeInsufficientStock, fmt.Sprintf("insufficient stock: available %d, requested %d", available, requested))
	return err.WithDetails(StockShortage{Available: available, Requested: requested})
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeStorage
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithDetails(details any) *Error {
	if e == nil {
		return nil
	}
	e.details = details
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

func As(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// HasCode reports whether err is a coded error carrying the given code.
func HasCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.Code() == code
}

// IsStorageFailure reports whether err is an infrastructure failure, storage
// or resource unavailability, as opposed to a domain outcome.
func IsStorageFailure(err error) bool {
	return HasCode(err, CodeStorage) || HasCode(err, CodeResourceUnavailable)
}
