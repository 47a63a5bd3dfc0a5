// Package errors provides the error taxonomy of the queue reconnect harness.
//
// Each error type includes a constructor, Error() method, and a type-checking
// helper using errors.As for proper error unwrapping.
//
// # Error Types Overview
//
//	┌──────────────────────┬──────────┬──────────────────────────────────────────┐
//	│ Error Type           │ Verdict  │ Description                              │
//	├──────────────────────┼──────────┼──────────────────────────────────────────┤
//	│ SetupError           │ fatal    │ Scenario could not be stood up           │
//	│ AssertionError       │ fail     │ Observed queue length differs            │
//	│ TeardownWarning      │ logged   │ Process or server did not stop in time   │
//	│ ExhaustionError      │ (setup)  │ No free port in range                    │
//	│ LaunchError          │ (setup)  │ Binary missing or could not be started   │
//	│ InvalidArgumentError │ (setup)  │ Missing or malformed argument            │
//	└──────────────────────┴──────────┴──────────────────────────────────────────┘
//
// ExhaustionError, LaunchError and InvalidArgumentError are causes: the scenario
// runner wraps them in a SetupError naming the stage that failed.
//
// # SetupError
//
// Aborts the scenario before any traffic is sent.
//
// Constructor:
//   - NewSetupError(stage string, err error)
//
// Usage:
//
//	if errors.IsSetupError(err) {
//	    os.Exit(2)
//	}
//
// # AssertionError
//
// Carries the assertion point, the queue key and both the expected and the
// observed value so the verdict can be reported without further context.
//
// Constructor:
//   - NewAssertionError(point, key string, expected, observed int64)
//
// # TeardownWarning
//
// Returned by components whose bounded stop did not complete. Callers log it
// and keep going; it must not mask an earlier failure.
//
// Constructor:
//   - NewTeardownWarning(component string, err error)
//
// # Type Checking Pattern
//
// All error types provide Is* helper functions that use errors.As
// for proper error chain unwrapping:
//
//	wrapped := fmt.Errorf("allocating store port: %w", errors.NewExhaustionError(1024, 2048, 10))
//	errors.IsExhaustionError(wrapped) // returns true
package errors
