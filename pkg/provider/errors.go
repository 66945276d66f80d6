package provider

import (
	"errors"
	"fmt"
)

// Backends map their native errors onto these sentinels inside a
// *ProviderError, so callers can classify failures with errors.Is.
var (
	ErrNotFound              = errors.New("object not found")
	ErrAccessDenied          = errors.New("access denied")
	ErrBucketNotFound        = errors.New("bucket not found")
	ErrInvalidCredentials    = errors.New("invalid credentials")
	ErrProviderUnavailable   = errors.New("provider unavailable")
	ErrThrottled             = errors.New("request throttled")
	ErrVersioningUnsupported = errors.New("version listing not supported")
)

// ProviderError records the failed operation and the object it addressed.
type ProviderError struct {
	Op       string // List, ListVersions, Head
	Provider ProviderType
	Bucket   string
	Key      string // object key or list prefix
	Err      error
}

func (e *ProviderError) Error() string {
	switch {
	case e.Key != "":
		return fmt.Sprintf("%s %s: %s/%s: %v", e.Provider, e.Op, e.Bucket, e.Key, e.Err)
	case e.Bucket != "":
		return fmt.Sprintf("%s %s: %s: %v", e.Provider, e.Op, e.Bucket, e.Err)
	default:
		return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
	}
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
func IsAccessDenied(err error) bool { return errors.Is(err, ErrAccessDenied) }
func IsBucketNotFound(err error) bool { return errors.Is(err, ErrBucketNotFound) }
func IsInvalidCredentials(err error) bool { return errors.Is(err, ErrInvalidCredentials) }
func IsProviderUnavailable(err error) bool { return errors.Is(err, ErrProviderUnavailable) }
func IsThrottled(err error) bool { return errors.Is(err, ErrThrottled) }
func IsVersioningUnsupported(err error) bool { return errors.Is(err, ErrVersioningUnsupported) }
