// Package script builds the JavaScript for Automation source sent to the
// scripting host. Every script is assembled from a fixed tier library, a
// per-operation body, and JSON-bound parameters; caller values never reach
// the source as spliced text. Building is pure: the same operation and
// parameters always produce byte-identical source.
package script

import (
	"fmt"

	"focusbridge-mcp-server/internal/result"
)

// Tier selects how much of the helper library a script carries. Bodies only
// reference helpers their tier provides, so small operations stay small.
type Tier int

const (
	// TierMinimal carries framing and error capture only.
	TierMinimal Tier = iota
	// TierStandard adds entity row mappers, finders, and the task scan.
	TierStandard
	// TierFull adds the secondary-context escalation helper and the
	// embedded fragment table.
	TierFull
)

func (t Tier) String() string {
	switch t {
	case TierMinimal:
		return "minimal"
	case TierStandard:
		return "standard"
	case TierFull:
		return "full"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

// Script is a fully assembled program ready for the host.
type Script struct {
	Op     string
	Tier   Tier
	Source string
	Size   int
	// Schema describes the payload shape the operation promises, used to
	// validate parsed replies. Nil means any payload is accepted.
	Schema *result.Schema
}

// UnknownOperationError reports a Build call for an operation id that is
// not registered.
type UnknownOperationError struct {
	Op string
}

func (e *UnknownOperationError) Error() string {
	return fmt.Sprintf("unknown operation %q", e.Op)
}

// TooLargeError reports a script whose assembled source exceeds the build
// ceiling. It is raised before anything is spawned so oversized requests
// never reach the host.
type TooLargeError struct {
	Op   string
	Size int
	Max  int
}

func (e *TooLargeError) Error() string {
	return fmt.Sprintf("script for %s is %d bytes, over the %d byte ceiling", e.Op, e.Size, e.Max)
}
