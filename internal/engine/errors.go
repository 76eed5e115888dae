package engine

// unavailableError signals the external training runtime is missing from the
// environment, so the run must fail before training is attempted.
type unavailableError struct{ msg string }

func (e unavailableError) Error() string { return e.msg }

// ErrUnavailable constructs an unavailableError.
func ErrUnavailable(msg string) error { return unavailableError{msg: msg} }

// IsUnavailable reports whether err indicates a missing training runtime.
func IsUnavailable(err error) bool {
	_, ok := err.(unavailableError)
	return ok
}
