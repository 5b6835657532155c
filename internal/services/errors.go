package services

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindNetwork    ErrorKind = "network"
	KindAuth       ErrorKind = "auth"
	KindBackend    ErrorKind = "backend"
	KindValidation ErrorKind = "validation"
)

var (
	ErrNetwork    = errors.New("backend unreachable")
	ErrAuth       = errors.New("not authorized")
	ErrBackend    = errors.New("backend error")
	ErrValidation = errors.New("invalid input")

	ErrUnsupportedUpload = errors.New("unsupported file type")
)

// RequestError is returned by every BackendClient helper. Message is safe to
// show to the user; Detail is the backend's own detail field, if it sent one.
// Err keeps the transport or decode cause.
type RequestError struct {
	Kind    ErrorKind
	Status  int
	Message string
	Detail  string
	Err     error
}

func (e *RequestError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s error (%d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Kind, e.Message)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

func (e *RequestError) Is(target error) bool {
	switch target {
	case ErrNetwork:
		return e.Kind == KindNetwork
	case ErrAuth:
		return e.Kind == KindAuth
	case ErrBackend:
		return e.Kind == KindBackend
	case ErrValidation:
		return e.Kind == KindValidation
	}
	return false
}

// UserMessage returns the text a form or card shows for err.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var rerr *RequestError
	if errors.As(err, &rerr) && rerr.Message != "" {
		return rerr.Message
	}
	return err.Error()
}

// DetailOr returns the backend detail carried by err, or fallback.
func DetailOr(err error, fallback string) string {
	var rerr *RequestError
	if errors.As(err, &rerr) && rerr.Detail != "" {
		return rerr.Detail
	}
	return fallback
}
