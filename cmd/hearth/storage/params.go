package storage

import (
	"errors"

	"github.com/hearthvm/hearth/internal/types"
)

var (
	errNoContract       = errors.New("--contract is required")
	errNoSelected       = errors.New("one of --var or --key is required")
	errMultipleSelected = errors.New("only one of --var or --key can be set")
)

const (
	contractFlag = "contract"
	varFlag      = "var"
	keyFlag      = "key"
)

var params = &storageParams{}

type storageParams struct {
	contract types.Address
	variable string
	key      string
}

// initRawParams validates all parameters to ensure they are correctly set
func (p *storageParams) initRawParams() error {
	if p.contract.IsEmpty() {
		return errNoContract
	}

	flagsSet := 0
	if p.variable != "" {
		flagsSet++
	}
	if p.key != "" {
		flagsSet++
	}

	if flagsSet == 0 {
		return errNoSelected
	}
	if flagsSet > 1 {
		return errMultipleSelected
	}

	return nil
}
