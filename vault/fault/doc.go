// Package fault defines the error taxonomy shared by every vault component.
//
// Low-level failures (secret store codes, filesystem errors, cipher library
// errors) are normalized into one of the taxonomy kinds at the boundary of the
// component that observed them. Callers match kinds with errors.Is and never
// inspect the underlying cause:
//
//	if errors.Is(err, fault.ErrNotAuthorized) {
//	    fmt.Println(fault.Describe(err))
//	}
//
// Wrap attaches a kind to a cause while keeping the cause available through
// errors.Unwrap for logging. Causes must never carry key material.
package fault
