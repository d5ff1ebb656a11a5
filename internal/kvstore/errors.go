package kvstore

import (
	"errors"
	"fmt"
	"strings"
)

// PersistenceDegradedError is returned when neither backend accepted a write.
// The optimistic in-memory value is still served for the process lifetime, so
// callers should surface it as a warning rather than a failure.
type PersistenceDegradedError struct {
	Keys []string
	Err  error
}

func (e *PersistenceDegradedError) Error() string {
	return fmt.Sprintf("persistence degraded for %s: %v", strings.Join(e.Keys, ","), e.Err)
}

func (e *PersistenceDegradedError) Unwrap() error {
	return e.Err
}

// IsDegraded reports whether err is (or wraps) a PersistenceDegradedError.
func IsDegraded(err error) bool {
	var de *PersistenceDegradedError
	return errors.As(err, &de)
}
