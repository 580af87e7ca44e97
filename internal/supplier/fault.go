package supplier

import (
	"errors"
	"fmt"
)

// FaultKind discriminates supplier-side failures so the poll loop can decide
// between aborting the cycle, skipping the poll, or skipping one document.
type FaultKind int

const (
	// KindConnectivity means the endpoint is unreachable. Aborts the cycle.
	KindConnectivity FaultKind = iota
	// KindRateLimited means the supplier returned too-many-requests. The
	// current poll is skipped and the loop continues.
	KindRateLimited
	// KindSupplier is a fault reported by the supplier itself.
	KindSupplier
	// KindContent marks a corrupt or undecodable document payload.
	KindContent
	// KindAccounting marks an accounting invariant violation (zero copies,
	// unknown requester).
	KindAccounting
	// KindDispatch marks a rejection by the print backend.
	KindDispatch
)

func (k FaultKind) String() string {
	switch k {
	case KindConnectivity:
		return "connectivity"
	case KindRateLimited:
		return "rate_limited"
	case KindSupplier:
		return "supplier"
	case KindContent:
		return "content"
	case KindAccounting:
		return "accounting"
	case KindDispatch:
		return "dispatch"
	}
	return "unknown"
}

type Fault struct {
	Kind    FaultKind
	Message string
	Err     error
}

func (f *Fault) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s fault: %s: %v", f.Kind, f.Message, f.Err)
	}
	return fmt.Sprintf("%s fault: %s", f.Kind, f.Message)
}

func (f *Fault) Unwrap() error {
	return f.Err
}

func Faultf(kind FaultKind, format string, args ...interface{}) *Fault {
	return &Fault{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func WrapFault(kind FaultKind, msg string, err error) *Fault {
	return &Fault{Kind: kind, Message: msg, Err: err}
}

// IsKind reports whether err is (or wraps) a Fault of the given kind.
func IsKind(err error, kind FaultKind) bool {
	var f *Fault
	if errors.As(err, &f) {
		return f.Kind == kind
	}
	return false
}
