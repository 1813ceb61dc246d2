package session

import "errors"

// TransientError marks a session-store I/O failure that callers should
// degrade around: treat Get as a miss and Update as a no-op.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return "session store transient error: " + e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is a transient session-store failure.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
