package domain

import (
	"context"
	"fmt"

	"github.com/cockroachdb/errors"
)

var (
	ErrMissingID              = errors.New("product id is required")
	ErrMissingSlug            = errors.New("product slug is required")
	ErrEmptyTitle             = errors.New("product title must not be empty")
	ErrMissingSeller          = errors.New("product seller id is required")
	ErrNegativePrice          = errors.New("product price must not be negative")
	ErrSellerAmountAbovePrice = errors.New("seller amount must not exceed price")
	ErrDuplicateID            = errors.New("duplicate product id in payload")
	ErrDuplicateSlug          = errors.New("duplicate product slug in payload")

	// ErrUpstreamRejected marks a remote response whose success flag was false.
	ErrUpstreamRejected = errors.New("catalog upstream reported failure")
	// ErrCircuitOpen marks calls refused locally because the upstream keeps failing.
	ErrCircuitOpen = errors.New("catalog upstream circuit is open")
)

// FetchErrorKind classifies why a remote catalog fetch failed
type FetchErrorKind string

const (
	KindTransport FetchErrorKind = "transport"
	KindTimeout   FetchErrorKind = "timeout"
	KindCanceled  FetchErrorKind = "canceled"
	KindRejected  FetchErrorKind = "rejected"
	KindMalformed FetchErrorKind = "malformed"
)

// FetchError is the only failure the fetcher surfaces to callers.
// Message is safe to show to end users.
type FetchError struct {
	Kind    FetchErrorKind
	Message string
	Err     error
}

func (e *FetchError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("catalog fetch %s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("catalog fetch %s: %s: %v", e.Kind, e.Message, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// NewFetchError classifies err into a FetchError with a user-facing message.
// An existing FetchError is returned as is.
func NewFetchError(err error) *FetchError {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &FetchError{Kind: KindTimeout, Message: "The catalog took too long to respond.", Err: err}
	case errors.Is(err, context.Canceled):
		return &FetchError{Kind: KindCanceled, Message: "Loading the catalog was cancelled.", Err: err}
	case errors.Is(err, ErrUpstreamRejected):
		return &FetchError{Kind: KindRejected, Message: "The catalog service could not list products.", Err: err}
	case errors.Is(err, ErrCircuitOpen):
		return &FetchError{Kind: KindTransport, Message: "The catalog service is temporarily unavailable.", Err: err}
	case IsMalformed(err):
		return &FetchError{Kind: KindMalformed, Message: "The catalog service returned invalid data.", Err: err}
	default:
		return &FetchError{Kind: KindTransport, Message: "Could not reach the catalog service.", Err: err}
	}
}

var errMalformed = errors.New("malformed catalog payload")

// MarkMalformed tags err as a payload problem rather than a transport problem
func MarkMalformed(err error) error {
	if err == nil {
		return nil
	}
	return errors.Mark(err, errMalformed)
}

// IsMalformed reports whether err was tagged by MarkMalformed
func IsMalformed(err error) bool {
	return errors.Is(err, errMalformed)
}

// ValidatePayload returns the usable records of a remote listing together with
// the reasons the others were dropped. Duplicate ids or slugs, or a non-empty
// listing without a single valid record, make the whole payload malformed.
func ValidatePayload(items []Product) ([]Product, []error, error) {
	valid := make([]Product, 0, len(items))
	var dropped []error
	ids := make(map[int64]struct{}, len(items))
	slugs := make(map[string]struct{}, len(items))
	for i := range items {
		if err := items[i].Validate(); err != nil {
			dropped = append(dropped, errors.Wrapf(err, "item %d (id %d)", i, items[i].ID))
			continue
		}
		if _, dup := ids[items[i].ID]; dup {
			return nil, nil, MarkMalformed(errors.Wrapf(ErrDuplicateID, "id %d", items[i].ID))
		}
		if _, dup := slugs[items[i].Slug]; dup {
			return nil, nil, MarkMalformed(errors.Wrapf(ErrDuplicateSlug, "slug %q", items[i].Slug))
		}
		ids[items[i].ID] = struct{}{}
		slugs[items[i].Slug] = struct{}{}
		valid = append(valid, items[i])
	}
	if len(items) > 0 && len(valid) == 0 {
		return nil, dropped, MarkMalformed(errors.Wrap(dropped[0], "no valid records"))
	}
	return valid, dropped, nil
}
