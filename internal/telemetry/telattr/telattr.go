package telattr

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/hearthvm/hearth/internal/types"
)

func With(attrs ...attribute.KeyValue) metric.MeasurementOption {
	return metric.WithAttributes(attrs...)
}

func Contract(addr types.Address) attribute.KeyValue {
	return attribute.String("contract.address", addr.Hex())
}

func Function(name string) attribute.KeyValue {
	return attribute.String("function.name", name)
}

func ErrorCode(code types.ErrorCode) attribute.KeyValue {
	return attribute.String("error.code", code.String())
}
