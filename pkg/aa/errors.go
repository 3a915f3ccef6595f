package aa

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies gateway errors.
type Kind int

const (
	// KindConfig marks a configuration mismatch between the client
	// and the gateway, such as differing EntryPoint addresses. Fatal:
	// submitting would produce operations the gateway cannot sponsor.
	KindConfig Kind = iota + 1

	// KindQuote marks a failed or rejected paymaster quote. The
	// operation remains unsent.
	KindQuote

	// KindSubmission marks a relay failure reported by the gateway.
	KindSubmission
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindQuote:
		return "quote"
	case KindSubmission:
		return "submission"
	default:
		return "unknown"
	}
}

// Error is a classified gateway error. Detail carries the gateway's
// own diagnostic text when one was provided.
type Error struct {
	Kind   Kind
	Status int // HTTP status, 0 when not applicable
	Detail string
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("aa: %s error (status %d)", e.Kind, e.Status)
	}
	return fmt.Sprintf("aa: %s error: %s", e.Kind, e.Detail)
}

// Is reports kind equality, letting errors.Is match classified errors.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Temporary reports whether the request may succeed on retry.
func (e *Error) Temporary() bool {
	switch e.Status {
	case 429, 502, 503, 504:
		return true
	default:
		return false
	}
}

// ErrEntryPointMismatch is returned when the gateway reports a
// different EntryPoint than the locally configured one. The client
// must not quote or send against such a gateway.
var ErrEntryPointMismatch = &Error{Kind: KindConfig, Detail: "gateway EntryPoint does not match configured EntryPoint"}

// IsDuplicateRegistration reports whether err is the chain rejecting a
// track registration that already exists. Recoverable: retry the batch
// scrobble-only.
func IsDuplicateRegistration(err error) bool {
	var gwErr *Error
	if !errors.As(err, &gwErr) {
		return false
	}
	detail := strings.ToLower(gwErr.Detail)
	return strings.Contains(detail, "already registered") ||
		strings.Contains(detail, "alreadyregistered") ||
		strings.Contains(detail, "track exists")
}
