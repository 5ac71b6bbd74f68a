package provider

import "errors"

// Error kinds reported by provider implementations. Adapters wrap the
// underlying error so both errors.Is and the original message survive.
var (
	ErrNotFound       = errors.New("not found")
	ErrAuthentication = errors.New("authentication failed")
	ErrConflict       = errors.New("conflict")
	ErrConfiguration  = errors.New("invalid configuration")
	ErrTransient      = errors.New("transient provider failure")
	ErrUnsupported    = errors.New("not supported by provider")
)

// KindError attaches an error kind to a provider failure.
type KindError struct {
	Kind error
	Err  error
}

func (e *KindError) Error() string {
	return e.Err.Error()
}

func (e *KindError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

func WithKind(kind error, err error) error {
	if err == nil {
		return nil
	}
	return &KindError{Kind: kind, Err: err}
}
