package bench

import "errors"

var errNoWork = errors.New("--workers and --rounds must be positive")

const (
	workersFlag = "workers"
	roundsFlag  = "rounds"
)

var params = &benchParams{}

type benchParams struct {
	workers int
	rounds  int
}

// initRawParams validates all parameters to ensure they are correctly set
func (p *benchParams) initRawParams() error {
	if p.workers <= 0 || p.rounds <= 0 {
		return errNoWork
	}
	return nil
}
