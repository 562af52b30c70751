package transcript

import (
	"fmt"

	"github.com/google/uuid"
)

// namespace is a fixed, arbitrary UUID used as the root of every derived
// block uuid. It must never change: changing it would change every
// previously-derived uuid and break P5 (append-only prefix) across a
// version upgrade.
var namespace = uuid.MustParse("8f6b6e9c-6e3f-4b1a-9c1e-2a6b5d4e3f21")

// DeriveBlockUUID computes the deterministic uuid for blockIndex within the
// source message identified by parentUUID. Same inputs always produce the
// same output (P10): no wall-clock, no randomness.
func DeriveBlockUUID(parentUUID string, blockIndex int) string {
	name := fmt.Sprintf("%s:%d", parentUUID, blockIndex)
	return uuid.NewSHA1(namespace, []byte(name)).String()
}
