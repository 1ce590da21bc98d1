package kernel

// Error describes a kernel error. Kernel packages define their errors as
// package-level pointers to Error values so that callers can compare them by
// identity.
type Error struct {
	// The module where the error occurred.
	Module string

	// The error message
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

// HostError converts an error reported by the host (e.g. a failed system call
// while setting up simulated hardware) into a kernel Error tagged with the
// supplied module name. HostError returns nil if err is nil.
func HostError(module string, err error) *Error {
	if err == nil {
		return nil
	}

	if kErr, ok := err.(*Error); ok {
		return kErr
	}

	return &Error{Module: module, Message: err.Error()}
}
