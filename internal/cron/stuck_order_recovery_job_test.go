package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/angelmondragon/giftflow-backend/internal/recovery"
)

type fakeSweeper struct {
	minAge time.Duration
	err    error
}

func (f *fakeSweeper) Sweep(ctx context.Context, minAge time.Duration) (*recovery.SweepReport, error) {
	f.minAge = minAge
	return &recovery.SweepReport{Candidates: 2, Submitted: 2}, f.err
}

func TestStuckOrderRecoveryJobSweeps(t *testing.T) {
	sweeper := &fakeSweeper{}
	job, err := NewStuckOrderRecoveryJob(StuckOrderRecoveryJobParams{Logger: testLogger(), Recovery: sweeper})
	if err != nil {
		t.Fatalf("NewStuckOrderRecoveryJob: %v", err)
	}
	if job.Name() != "stuck-order-recovery" {
		t.Fatalf("unexpected job name %q", job.Name())
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sweeper.minAge != defaultSweepMinAge {
		t.Fatalf("expected default min age, got %s", sweeper.minAge)
	}
}

func TestStuckOrderRecoveryJobReportsSweepFailures(t *testing.T) {
	sweeper := &fakeSweeper{err: errors.New("order GF-1: marketplace rejected order")}
	job, err := NewStuckOrderRecoveryJob(StuckOrderRecoveryJobParams{Logger: testLogger(), Recovery: sweeper, MinAge: time.Hour})
	if err != nil {
		t.Fatalf("NewStuckOrderRecoveryJob: %v", err)
	}
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected sweep failure to fail the job")
	}
	if sweeper.minAge != time.Hour {
		t.Fatalf("expected configured min age, got %s", sweeper.minAge)
	}
}
