package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/giftflow-backend/internal/recovery"
	"github.com/angelmondragon/giftflow-backend/pkg/logger"
)

const defaultSweepMinAge = 15 * time.Minute

type recoverySweeper interface {
	Sweep(ctx context.Context, minAge time.Duration) (*recovery.SweepReport, error)
}

// StuckOrderRecoveryJobParams configure the recovery sweep job.
type StuckOrderRecoveryJobParams struct {
	Logger   *logger.Logger
	Recovery recoverySweeper
	MinAge   time.Duration
}

// NewStuckOrderRecoveryJob builds the job that re-submits paid orders whose webhook never
// arrived. Orders younger than MinAge are left to the normal flow.
func NewStuckOrderRecoveryJob(params StuckOrderRecoveryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Recovery == nil {
		return nil, fmt.Errorf("recovery service required")
	}
	minAge := params.MinAge
	if minAge <= 0 {
		minAge = defaultSweepMinAge
	}
	return &stuckOrderRecoveryJob{logg: params.Logger, recovery: params.Recovery, minAge: minAge}, nil
}

type stuckOrderRecoveryJob struct {
	logg     *logger.Logger
	recovery recoverySweeper
	minAge   time.Duration
}

func (j *stuckOrderRecoveryJob) Name() string { return "stuck-order-recovery" }

func (j *stuckOrderRecoveryJob) Run(ctx context.Context) error {
	report, err := j.recovery.Sweep(ctx, j.minAge)
	if err != nil {
		return fmt.Errorf("recovery sweep: %w", err)
	}
	if report != nil && report.Candidates > 0 {
		j.logg.Info(j.logg.WithField(ctx, "candidates", report.Candidates), "stuck orders swept")
	}
	return nil
}
