package poller

// Kind classifies why a status fetch did not produce a usable result.
type Kind int

const (
	// KindNone means the fetch succeeded.
	KindNone Kind = iota

	// KindTransient covers transport failures and timeouts.
	KindTransient

	// KindProtocol covers non-2xx responses, malformed JSON and envelopes
	// whose ok flag is not true.
	KindProtocol

	// KindCanceled means the request was aborted by its owner.
	KindCanceled
)

// String returns the metric/log label for the kind.
func (k Kind) String() string {
	switch k {
	case KindNone:
		return "success"
	case KindTransient:
		return "transient"
	case KindProtocol:
		return "protocol"
	case KindCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// FetchError is the error carried by a failed [Result].
type FetchError struct {
	Kind Kind
	Err  error
}

func (e *FetchError) Error() string {
	if e.Err == nil {
		return e.Kind.String() + " fetch failure"
	}
	return e.Kind.String() + ": " + e.Err.Error()
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
