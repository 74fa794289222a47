package strategy

import (
	"fmt"

	"github.com/arloliu/chorus/types"
)

// ErrNoWorkers indicates that no candidate qualified for the guild.
//
// It wraps types.ErrNoWorkersAvailable so callers can match either.
var ErrNoWorkers = fmt.Errorf("strategy: %w", types.ErrNoWorkersAvailable)
