// Package errors provides coded diagnostics for the ripple CLI and devtools.
//
// Every failure the engine can report to a developer has a code:
//   - R0xx: reactive graph (cycles, disposed sources, derive failures)
//   - R1xx: threading (UI-only calls off the UI goroutine)
//   - R2xx: scopes and handlers
//   - R3xx: runtime (event loop, app lifecycle)
//   - C0xx: configuration
//   - L0xx: command line
//
// Classify turns an error returned by the engine into a Diagnostic:
//
//	if err := a.Mount(root); err != nil {
//	    errors.PrintError(os.Stderr, errors.Classify(err))
//	}
//
// which prints
//
//	ERROR R101: UI-only call off the UI goroutine
//
//	  reactive: app.Mount called from goroutine 41, must run on UI goroutine 1
//
//	  Hint: Post the call with Bridge.Post or write through an OnUI cell
//
//	  Learn more: https://ripple.dev/docs/errors/R101
package errors
