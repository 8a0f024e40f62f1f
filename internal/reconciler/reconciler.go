// Package reconciler periodically rebuilds opportunity aggregates from their
// bid sets, healing drift left behind by an interrupted aggregate write.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"bidding-marketplace/internal/metrics"
	"bidding-marketplace/internal/models"
	"bidding-marketplace/utils"

	"golang.org/x/sync/errgroup"
)

//go:generate mockgen -source=reconciler.go -destination=mock_reconciler.go -package=reconciler

// OpportunityLister lists the opportunities to reconcile
type OpportunityLister interface {
	ListOpportunities(ctx context.Context) ([]models.Opportunity, error)
}

// Recomputer rebuilds the aggregate of one opportunity and reports whether it changed
type Recomputer interface {
	Recompute(ctx context.Context, opportunityID string) (models.Aggregate, bool, error)
}

// Report summarizes one reconciliation pass
type Report struct {
	Checked   int
	Corrected int
	Failed    int
	Duration  time.Duration
}

// Reconciler runs reconciliation passes over every opportunity
type Reconciler struct {
	lister      OpportunityLister
	recomputer  Recomputer
	interval    time.Duration
	concurrency int
	metrics     metrics.Recorder
}

// New creates a Reconciler. concurrency bounds the number of opportunities
// recomputed at the same time.
func New(lister OpportunityLister, recomputer Recomputer, interval time.Duration, concurrency int, rec metrics.Recorder) *Reconciler {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Reconciler{
		lister:      lister,
		recomputer:  recomputer,
		interval:    interval,
		concurrency: concurrency,
		metrics:     metrics.OrNop(rec),
	}
}

// RunOnce recomputes every opportunity once. A failure on one opportunity is
// counted and logged without stopping the pass.
func (r *Reconciler) RunOnce(ctx context.Context) (Report, error) {
	start := time.Now()

	opps, err := r.lister.ListOpportunities(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("reconciler: failed to list opportunities: %w", err)
	}

	var corrected, failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for _, opp := range opps {
		opp := opp
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			agg, changed, err := r.recomputer.Recompute(gctx, opp.OpportunityID)
			if err != nil {
				failed.Add(1)
				utils.Error("reconciliation failed", map[string]any{
					"opportunity_id": opp.OpportunityID,
					"error":          err.Error(),
				})
				return nil
			}
			if changed {
				corrected.Add(1)
				r.metrics.RecordReconcileCorrection()
				utils.Warn("aggregate drift corrected", map[string]any{
					"opportunity_id":      opp.OpportunityID,
					"stale_highest_bid":   opp.CurrentHighestBid.String(),
					"stale_bidder_id":     opp.HighestBidderID,
					"current_highest_bid": agg.CurrentHighestBid.String(),
					"highest_bidder_id":   agg.HighestBidderID,
				})
			}
			return nil
		})
	}

	waitErr := g.Wait()

	report := Report{
		Checked:   len(opps),
		Corrected: int(corrected.Load()),
		Failed:    int(failed.Load()),
		Duration:  time.Since(start),
	}
	if waitErr != nil {
		return report, fmt.Errorf("reconciler: pass interrupted: %w", waitErr)
	}
	return report, nil
}

// Run performs a pass immediately and then once per interval until ctx is done
func (r *Reconciler) Run(ctx context.Context) error {
	if r.interval <= 0 {
		return errors.New("reconciler: interval must be positive")
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		report, err := r.RunOnce(ctx)
		if err != nil && ctx.Err() == nil {
			utils.Error("reconciliation pass failed", map[string]any{"error": err.Error()})
		} else if err == nil {
			utils.Info("reconciliation pass finished", map[string]any{
				"checked":     report.Checked,
				"corrected":   report.Corrected,
				"failed":      report.Failed,
				"duration_ms": report.Duration.Milliseconds(),
			})
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
