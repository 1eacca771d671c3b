// Package errors wraps pkg/errors and adds coded errors used to carry
// a fixed taxonomy of failure codes across the schema-refresh and
// Cassandra-task FSM boundaries.
package errors

import (
	"encoding/json"
	"io"

	"github.com/pkg/errors"
)

// Code is an error code which can be checked against with Is.
type Code string

const (
	// ErrUncoded names the absence of a Code. MarshalJSON does not
	// use it: an error without a Code is marshaled with Code empty.
	ErrUncoded Code = "Uncoded"

	// BadIdentifier: a "sat.sat_key" string failed to parse.
	BadIdentifier Code = "BadIdentifier"

	// QueryTimeout / QueryFailedRestartable: transient Cassandra
	// failures, retried up to 5 times before surfacing.
	QueryTimeout           Code = "QueryTimeout"
	QueryFailedRestartable Code = "QueryFailedRestartable"

	// MissData: an expected row or message text was absent.
	MissData Code = "MissData"

	// SeqFailed: a callback was registered on a task after it left Init.
	SeqFailed Code = "SeqFailed"

	// LbsmServiceNotResolved: schema build could not resolve a named
	// service to a host list.
	LbsmServiceNotResolved Code = "LbsmServiceNotResolved"

	// ResolverKeyspaceDuplicated / ResolverKeyspaceUndefined /
	// BlobKeyspacesEmpty: meta-keyspace content is structurally invalid.
	ResolverKeyspaceDuplicated Code = "ResolverKeyspaceDuplicated"
	ResolverKeyspaceUndefined  Code = "ResolverKeyspaceUndefined"
	BlobKeyspacesEmpty         Code = "BlobKeyspacesEmpty"

	// SatInfoKeyspaceUndefined: the meta-keyspace name was never configured.
	SatInfoKeyspaceUndefined Code = "SatInfoKeyspaceUndefined"

	// SatInfoSat2KeyspaceEmpty: the sat2keyspace table returned no rows.
	SatInfoSat2KeyspaceEmpty Code = "SatInfoSat2KeyspaceEmpty"

	// MessagesEmpty: the messages table returned no rows.
	MessagesEmpty Code = "MessagesEmpty"
)

// New returns a stack-carrying error with the given code and message.
func New(code Code, message string) error {
	return errors.WithStack(codedError{Code: code, Message: message})
}

func As(err error, target interface{}) bool { return errors.As(err, target) }
func Cause(err error) error                 { return errors.Cause(err) }
func Errorf(format string, args ...interface{}) error {
	return errors.Errorf(format, args...)
}

// Is reports whether err's cause is a codedError with the given Code.
func Is(err error, target Code) bool {
	match := codedError{Code: target}
	return errors.Is(err, match)
}

func Unwrap(err error) error { return errors.Unwrap(err) }

func WithMessage(err error, message string) error { return errors.WithMessage(err, message) }
func WithMessagef(err error, format string, args ...interface{}) error {
	return errors.WithMessagef(err, format, args...)
}
func WithStack(err error) error { return errors.WithStack(err) }
func Wrap(err error, message string) error {
	return errors.Wrap(err, message)
}
func Wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}

// codedError is the fundamental type used by this package to provide
// coded errors that survive JSON marshaling across the data_error_cb
// boundary.
type codedError struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Wrapped string `json:"wrapped,omitempty"`
}

func (ce codedError) Error() string {
	if ce.Wrapped != "" {
		return ce.Wrapped
	}
	return ce.Message
}

func (ce codedError) Is(err error) bool {
	e, ok := err.(codedError)
	return ok && ce.Code == e.Code
}

// MarshalJSON returns err encoded as a codedError JSON object, even
// when err was never coded (Code is left empty in that case).
func MarshalJSON(err error) string {
	cause := Cause(err)

	var out *codedError
	switch v := cause.(type) {
	case codedError:
		v.Wrapped = err.Error()
		out = &v
	default:
		out = &codedError{Message: cause.Error(), Wrapped: err.Error()}
	}

	j, jerr := json.Marshal(out)
	if jerr != nil {
		return out.Error()
	}
	return string(j)
}

// UnmarshalJSON reads a codedError from r, falling back to a plain
// error over the raw bytes if they don't decode.
func UnmarshalJSON(r io.Reader) error {
	b, _ := io.ReadAll(r)
	out := &codedError{}
	if err := json.Unmarshal(b, out); err != nil {
		return errors.New(string(b))
	}
	return *out
}
