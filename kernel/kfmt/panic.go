package kfmt

import "pagemap/kernel"

var (
	// haltFn is invoked by Panic after the error has been reported. Tests
	// may override it to observe kernel panics without unwinding.
	haltFn = func(err *kernel.Error) { panic(err) }
)

// Panic reports the supplied error and halts the current operation. Calls to
// Panic never return: the default halt implementation panics with the
// *kernel.Error that describes the failure so that its kind can be recovered
// by the caller.
func Panic(e interface{}) {
	var err *kernel.Error

	switch t := e.(type) {
	case *kernel.Error:
		err = t
	case string:
		err = &kernel.Error{Module: "rt", Message: t}
	case error:
		err = &kernel.Error{Module: "rt", Message: t.Error()}
	default:
		err = &kernel.Error{Module: "rt", Message: "unknown cause"}
	}

	Logger(err.Module).Error(err.Message)

	Printf("\n-----------------------------------\n")
	Printf("[%s] unrecoverable error: %s\n", err.Module, err.Message)
	Printf("*** kernel panic: operation aborted ***")
	Printf("\n-----------------------------------\n")

	haltFn(err)
}
