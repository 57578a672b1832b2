package version

import (
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/rxtech-lab/argo-perp/pkg/errors"
)

// CheckRequired checks the running version against the required_version
// constraint of a config file, e.g. ">= 0.4, < 1".
//
// Rules:
//   - An empty constraint always passes
//   - A "main" (development) build always passes
//   - Otherwise the running version must satisfy the constraint
//
// Examples:
//   - running 0.4.2, constraint ">= 0.4" -> OK
//   - running v0.4.2, constraint "~0.4.0" -> OK (v prefix ignored)
//   - running 0.3.9, constraint ">= 0.4" -> ERROR
//   - running main, constraint ">= 9" -> OK (dev build, skip check)
func CheckRequired(running, constraint string) error {
	constraint = strings.TrimSpace(constraint)
	if constraint == "" {
		return nil
	}

	running = strings.TrimPrefix(running, "v")
	if running == "main" {
		return nil
	}

	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "invalid required_version %q", constraint)
	}

	v, err := semver.NewVersion(running)
	if err != nil {
		return errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "invalid agent version %q", running)
	}

	if ok, reasons := c.Validate(v); !ok {
		msgs := make([]string, 0, len(reasons))
		for _, r := range reasons {
			msgs = append(msgs, r.Error())
		}

		return errors.Newf(errors.ErrCodeInvalidConfiguration,
			"agent %s does not satisfy required_version %q: %s", v, constraint, strings.Join(msgs, "; "))
	}

	return nil
}
