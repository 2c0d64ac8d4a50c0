package scenario

import (
	"fmt"
	"reflect"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/hearthvm/hearth/internal/types"
)

func decodeAddress(f reflect.Type, t reflect.Type, data any) (any, error) {
	if f.Kind() == reflect.String && t == reflect.TypeOf(types.Address{}) {
		s, _ := data.(string)
		var res types.Address
		if err := res.UnmarshalText([]byte(s)); err != nil {
			return nil, err
		}
		return res, nil
	}
	return data, nil
}

func decodeValue(f reflect.Type, t reflect.Type, data any) (any, error) {
	if f.Kind() == reflect.String && t == reflect.TypeOf(types.Value{}) {
		s, _ := data.(string)
		var res types.Value
		if err := res.Set(s); err != nil {
			return nil, err
		}
		return res, nil
	}
	return data, nil
}

func decodeGas(f reflect.Type, t reflect.Type, data any) (any, error) {
	if f.Kind() == reflect.String && t == reflect.TypeOf(types.Gas(0)) {
		s, _ := data.(string)
		var res types.Gas
		if err := res.Set(s); err != nil {
			return nil, err
		}
		return res, nil
	}
	return data, nil
}

func updateDecoderConfig(config *mapstructure.DecoderConfig) {
	config.DecodeHook = mapstructure.ComposeDecodeHookFunc(
		config.DecodeHook,
		decodeAddress,
		decodeValue,
		decodeGas,
	)
}

// Load reads a YAML scenario file.
func Load(path string) (*Scenario, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var s Scenario
	if err := v.Unmarshal(&s, updateDecoderConfig); err != nil {
		return nil, fmt.Errorf("unable to decode scenario: %w", err)
	}
	if err := validate(&s); err != nil {
		return nil, err
	}
	return &s, nil
}

func validate(s *Scenario) error {
	if len(s.Transactions) == 0 {
		return fmt.Errorf("scenario %q has no transactions", s.Name)
	}
	for i := range s.Transactions {
		tx := &s.Transactions[i]
		switch tx.Kind {
		case KindDeploy, KindCall, KindCredit, KindTerminate:
		default:
			return fmt.Errorf("transaction %d: unknown kind %q", i, tx.Kind)
		}
	}
	return nil
}
