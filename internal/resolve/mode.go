package resolve

import (
	"errors"
	"fmt"
)

// ErrUsage marks invocation mistakes that should print command usage.
var ErrUsage = errors.New("usage error")

// Mode selects whether a run changes anything.
type Mode int

const (
	// ModeSimulate logs intended moves and deletions only.
	ModeSimulate Mode = iota + 1
	// ModeApply moves files and deletes catalog rows.
	ModeApply
)

func (m Mode) String() string {
	switch m {
	case ModeSimulate:
		return "simulate"
	case ModeApply:
		return "apply"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode turns the dry-run/force flag pair into a Mode. Exactly one of
// the two must be set.
func ParseMode(simulate, apply bool) (Mode, error) {
	switch {
	case simulate && apply:
		return 0, fmt.Errorf("%w: --dry-run and --force cannot be enabled at the same time", ErrUsage)
	case simulate:
		return ModeSimulate, nil
	case apply:
		return ModeApply, nil
	default:
		return 0, fmt.Errorf("%w: either --dry-run or --force has to be specified", ErrUsage)
	}
}
