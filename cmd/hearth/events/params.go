package events

import (
	"errors"

	"github.com/hearthvm/hearth/internal/types"
)

var (
	errNoContract = errors.New("--contract is required")
	errNoEvent    = errors.New("--event is required")
)

const (
	contractFlag = "contract"
	eventFlag    = "event"
	matchFlag    = "match"
	fromFlag     = "from"
	toFlag       = "to"
	limitFlag    = "limit"
)

var params = &eventsParams{}

type eventsParams struct {
	contract types.Address
	event    string
	matches  []string
	from     uint64
	to       uint64
	limit    int
}

// initRawParams validates all parameters to ensure they are correctly set
func (p *eventsParams) initRawParams() error {
	if p.contract.IsEmpty() {
		return errNoContract
	}
	if p.event == "" {
		return errNoEvent
	}
	return nil
}
