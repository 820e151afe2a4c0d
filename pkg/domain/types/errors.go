package types

import (
	"context"
	"errors"

	"github.com/m-mizutani/goerr/v2"
)

// Error tags categorize failures so that main can translate any error
// bubbling out of the CLI into the documented process exit code.
var (
	// TagBadInput marks usage and input validation errors
	TagBadInput = goerr.NewTag("bad_input")

	// TagEnvironment marks setup failures before any transfer work starts
	// (config file problems, invalid tuning values)
	TagEnvironment = goerr.NewTag("environment")

	// TagStorage marks download directory and disk space failures
	TagStorage = goerr.NewTag("storage")

	// TagTransfer marks probe, download, and resume failures
	TagTransfer = goerr.NewTag("transfer")
)

// Exit codes of the hauler process
const (
	ExitOK          = 0
	ExitBadInput    = 1
	ExitEnvironment = 2
	ExitStorage     = 3
	ExitTransfer    = 4
	ExitInterrupted = 130 // 128 + SIGINT
)

// ExitCode maps an error returned by the CLI to a process exit code.
// Interruption wins over any category because a cancelled transfer may
// surface as a wrapped transfer error.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, context.Canceled):
		return ExitInterrupted
	case goerr.HasTag(err, TagBadInput):
		return ExitBadInput
	case goerr.HasTag(err, TagEnvironment):
		return ExitEnvironment
	case goerr.HasTag(err, TagStorage):
		return ExitStorage
	case goerr.HasTag(err, TagTransfer):
		return ExitTransfer
	default:
		return ExitBadInput
	}
}
