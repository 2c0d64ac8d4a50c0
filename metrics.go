package hearth

import (
	"context"

	"github.com/hearthvm/hearth/internal/telemetry"
	"github.com/hearthvm/hearth/internal/telemetry/telattr"
	"github.com/hearthvm/hearth/internal/types"
)

type metricsHandler struct {
	commitMeasurer *telemetry.Measurer

	// Histograms
	gasUsedHistogram    telemetry.Histogram
	frameDepthHistogram telemetry.Histogram

	// Counters
	callsExecuted   telemetry.Counter
	deploysExecuted telemetry.Counter
	revertsTotal    telemetry.Counter
}

func newMetricsHandler(name string) (*metricsHandler, error) {
	meter := telemetry.NewMeter(name)
	measurer, err := telemetry.NewMeasurer(meter, "commit")
	if err != nil {
		return nil, err
	}

	handler := &metricsHandler{
		commitMeasurer: measurer,
	}

	if err := handler.initMetrics(meter); err != nil {
		return nil, err
	}

	return handler, nil
}

func (mh *metricsHandler) initMetrics(meter telemetry.Meter) error {
	var err error

	// Initialize histograms
	mh.gasUsedHistogram, err = meter.Int64Histogram("gas_used")
	if err != nil {
		return err
	}

	mh.frameDepthHistogram, err = meter.Int64Histogram("frame_depth")
	if err != nil {
		return err
	}

	// Initialize counters
	mh.callsExecuted, err = meter.Int64Counter("total_calls_executed")
	if err != nil {
		return err
	}

	mh.deploysExecuted, err = meter.Int64Counter("total_deploys_executed")
	if err != nil {
		return err
	}

	mh.revertsTotal, err = meter.Int64Counter("total_reverts")
	if err != nil {
		return err
	}

	return nil
}

func (mh *metricsHandler) StartCommitMeasurement() {
	mh.commitMeasurer.Restart()
}

func (mh *metricsHandler) EndCommitMeasurement(ctx context.Context) {
	mh.commitMeasurer.Measure(ctx)
}

func (mh *metricsHandler) RecordCall(ctx context.Context, gasUsed types.Gas, maxDepth int) {
	mh.callsExecuted.Add(ctx, 1)
	mh.gasUsedHistogram.Record(ctx, int64(gasUsed.Uint64()))
	mh.frameDepthHistogram.Record(ctx, int64(maxDepth))
}

func (mh *metricsHandler) RecordDeploy(ctx context.Context, gasUsed types.Gas) {
	mh.deploysExecuted.Add(ctx, 1)
	mh.gasUsedHistogram.Record(ctx, int64(gasUsed.Uint64()))
}

func (mh *metricsHandler) RecordRevert(ctx context.Context, code types.ErrorCode) {
	mh.revertsTotal.Add(ctx, 1, telattr.With(telattr.ErrorCode(code)))
}
