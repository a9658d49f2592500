// Copyright 2026 The Cyst Authors
// SPDX-License-Identifier: Apache-2.0

package envelope

import (
	"errors"
	"fmt"
)

// ErrPolicyUnsatisfied is returned by Unseal when the supplied secrets,
// individually valid or not, fail to satisfy the policy tree. Wrong
// secrets and missing secrets produce the same error: the engine never
// reports which branch was close.
var ErrPolicyUnsatisfied = errors.New("supplied secrets do not satisfy the unlock policy")

// ErrCorruptEnvelope is returned when an envelope cannot be parsed
// (bad version, truncated field, malformed structure) or when its
// integrity is violated (a DEK unwrap that fails authentication after
// the policy tree reported satisfiable). Errors wrap this sentinel;
// test with errors.Is.
var ErrCorruptEnvelope = errors.New("corrupt envelope")

// UnsupportedFactorError is returned when an envelope references a
// factor tag the registry does not know. The envelope itself may be
// perfectly valid — it was sealed by a build with more factors.
type UnsupportedFactorError struct {
	// Tag is the unrecognized factor tag from the envelope.
	Tag string
}

func (e *UnsupportedFactorError) Error() string {
	return fmt.Sprintf("envelope: unsupported factor tag %q", e.Tag)
}

// IsUnsupportedFactor reports whether err is an UnsupportedFactorError.
func IsUnsupportedFactor(err error) bool {
	var unsupported *UnsupportedFactorError
	return errors.As(err, &unsupported)
}

// corrupt wraps a parse or integrity fault with the ErrCorruptEnvelope
// sentinel.
func corrupt(format string, args ...any) error {
	return fmt.Errorf("envelope: %s: %w", fmt.Sprintf(format, args...), ErrCorruptEnvelope)
}
