// Package version provides the mr release version and semantic version
// constraint checks for runner files that declare a minimum tool version.
package version

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Current is the version reported by `mr --version` and matched against
// the `requires` constraint of runner files.
const Current = "1.2.0"

// String constants for operations (used in CompatibilityError)
const (
	OpParseConstraint = "parse_constraint"
	OpParseVersion    = "parse_version"
	OpCheckConstraint = "check_constraint"
)

// Sentinel errors
var (
	ErrEmptyVersion = errors.New("version cannot be empty")
)

// CompatibilityError reports that a runner file cannot be used with this
// version of mr, either because its constraint is malformed or because the
// running version does not satisfy it.
type CompatibilityError struct {
	Constraint string
	Version    string
	Op         string
	Cause      error
}

func (e *CompatibilityError) Error() string {
	if e.Op == OpCheckConstraint {
		return fmt.Sprintf("runner file requires mr %s, running %s", e.Constraint, e.Version)
	}
	return fmt.Sprintf("version operation %s failed for %q: %v", e.Op, e.Constraint, e.Cause)
}

func (e *CompatibilityError) Unwrap() error {
	return e.Cause
}

// Check verifies that current satisfies the constraint expression.
// An empty constraint is always satisfied.
func Check(constraint, current string) error {
	constraint = strings.TrimSpace(constraint)
	if constraint == "" {
		return nil
	}
	if strings.TrimSpace(current) == "" {
		return &CompatibilityError{Constraint: constraint, Op: OpParseVersion, Cause: ErrEmptyVersion}
	}

	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return &CompatibilityError{Constraint: constraint, Version: current, Op: OpParseConstraint, Cause: err}
	}
	v, err := semver.NewVersion(current)
	if err != nil {
		return &CompatibilityError{Constraint: constraint, Version: current, Op: OpParseVersion, Cause: err}
	}

	if ok, reasons := c.Validate(v); !ok {
		return &CompatibilityError{
			Constraint: constraint,
			Version:    current,
			Op:         OpCheckConstraint,
			Cause:      errors.Join(reasons...),
		}
	}
	return nil
}

// CheckCurrent is Check against the running mr version.
func CheckCurrent(constraint string) error {
	return Check(constraint, Current)
}
