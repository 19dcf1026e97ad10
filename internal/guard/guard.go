// Package guard holds the production-safety predicates consulted before
// any write to the target tenant.
package guard

import "errors"

// TestProjectKeyPrefix is the naming convention a target project must
// follow unless the production override is set. Replaying into a real
// project by accident is the one mistake this tool must not allow.
const TestProjectKeyPrefix = "MIGTEST"

// ErrConflictingOverrides is returned when both override flags are set;
// they exist for different accidents and combining them defeats both.
var ErrConflictingOverrides = errors.New("guard: --force-production and --force-import cannot be combined")

// Allow reports whether writes to the project are permitted. It never
// errors: skipping is the designed degraded behavior, and the caller logs
// the warning.
func Allow(projectKey string, forceProduction bool) bool {
	if forceProduction {
		return true
	}
	return len(projectKey) >= len(TestProjectKeyPrefix) &&
		projectKey[:len(TestProjectKeyPrefix)] == TestProjectKeyPrefix
}

// CheckOverrides validates the override flag combination before anything
// touches the remote service.
func CheckOverrides(forceProduction, forceImport bool) error {
	if forceProduction && forceImport {
		return ErrConflictingOverrides
	}
	return nil
}
