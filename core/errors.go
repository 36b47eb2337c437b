package core

// errors.go – the error-kind taxonomy shared by consensus, state transition,
// storage and mempool. Every rejection surfaced to a peer or submit-surface
// caller carries one of these kinds so the caller can decide disposition
// (reject-only, demerit peer, evict, retry, halt).

import "errors"

// Kind classifies a failure so callers can decide how to react without
// string-matching error messages.
type Kind uint8

const (
	// KindValidation covers malformed or rule-violating data: bad
	// signatures, bad PoW, bad Merkle roots, nonce gaps, insufficient
	// balance, oversized payloads. The offending block/tx is rejected and
	// the originating peer is demerited.
	KindValidation Kind = iota
	// KindReorgRefused means an inbound branch exceeded MaxReorgDepth.
	KindReorgRefused
	// KindOrphan means a tx has a nonce gap or a block's parent is
	// unknown; the item is held pending rather than rejected outright.
	KindOrphan
	// KindResource means a bounded structure (mempool, orphan pool, peer
	// table) is full; the new item is evicted or rejected, retriable.
	KindResource
	// KindTransport covers timeouts, closed peers and failed handshakes.
	KindTransport
	// KindStorage covers I/O failures and detected corruption.
	KindStorage
	// KindFatal indicates an invariant violation discovered after
	// validation passed — a bug. The node halts rather than risk
	// on-disk corruption.
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindReorgRefused:
		return "reorg_refused"
	case KindOrphan:
		return "orphan"
	case KindResource:
		return "resource"
	case KindTransport:
		return "transport"
	case KindStorage:
		return "storage"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error wraps an underlying cause with a Kind for disposition and an optional
// reject reason surfaced across the submit interface.
type Error struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Reason + ": " + e.Err.Error()
	}
	return e.Reason
}

func (e *Error) Unwrap() error { return e.Err }

// NewError constructs a classified Error.
func NewError(kind Kind, reason string, cause error) *Error {
	return &Error{Kind: kind, Reason: reason, Err: cause}
}

// KindOf extracts the Kind from err, defaulting to KindValidation for
// unclassified errors so callers always get a disposition.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindValidation
}

func validationErr(reason string) error { return NewError(KindValidation, reason, nil) }
func orphanErr(reason string) error     { return NewError(KindOrphan, reason, nil) }
func resourceErr(reason string) error   { return NewError(KindResource, reason, nil) }
func storageErr(reason string, cause error) error {
	return NewError(KindStorage, reason, cause)
}
