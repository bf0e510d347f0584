package fetcher

import (
	"errors"
	"io/fs"
)

// Kind classifies a fetcher failure.
type Kind int

const (
	// KindConnection covers failures to open or close a session, including
	// rejected credentials.
	KindConnection Kind = iota + 1
	// KindAuthorization means access to a resource was denied.
	KindAuthorization
	// KindNotFound means the resource does not exist.
	KindNotFound
	// KindTransfer is any other retrieval failure.
	KindTransfer
)

func (k Kind) String() string {
	switch k {
	case KindConnection:
		return "connection"
	case KindAuthorization:
		return "authorization"
	case KindNotFound:
		return "not found"
	case KindTransfer:
		return "transfer"
	default:
		return "unknown"
	}
}

// Sentinels matched by errors.Is against an *Error of the same kind.
var (
	ErrConnection    = errors.New("connection failure")
	ErrAuthorization = errors.New("authorization failure")
	ErrNotFound      = errors.New("resource not found")
	ErrTransfer      = errors.New("transfer failure")
)

// Error is the only error type a Fetcher returns.
type Error struct {
	Kind     Kind
	Resource string // empty for connection failures
	Message  string
	Err      error // the transport's error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel for the error's kind. KindNotFound also matches
// fs.ErrNotExist.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrConnection:
		return e.Kind == KindConnection
	case ErrAuthorization:
		return e.Kind == KindAuthorization
	case ErrNotFound, fs.ErrNotExist:
		return e.Kind == KindNotFound
	case ErrTransfer:
		return e.Kind == KindTransfer
	}
	return false
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind, true
	}
	return 0, false
}

// IsNotFound reports whether err says the resource does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
