package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/hearthvm/hearth/internal/telemetry/internal"
)

type (
	Config       = internal.Config
	ExportOption = internal.ExportOption

	Meter = metric.Meter
)

const (
	ExportOptionNone   = internal.ExportOptionNone
	ExportOptionStdout = internal.ExportOptionStdout
	ExportOptionGrpc   = internal.ExportOptionGrpc
)

func Init(ctx context.Context, config *Config) error {
	if err := internal.InitMetrics(ctx, config); err != nil {
		return err
	}
	return nil
}

func Shutdown(ctx context.Context) {
	internal.ShutdownMetrics(ctx)
}

func NewMeter(name string) Meter {
	return otel.Meter(name)
}
