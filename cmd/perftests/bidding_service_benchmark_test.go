package perftests

import (
	"context"
	"fmt"
	"math/rand"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

// Benchmark 1: PlaceBid - Isolated Opportunities (Low Contention - Micro Benchmark)
func Benchmark_PlaceBid_Isolated(b *testing.B) {
	_, svc := setupMarketplace(b, b.N, 1)
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		opportunityID := fmt.Sprintf("opp_%d", i)
		amount := decimal.NewFromInt(int64(50 + rand.Intn(100)))
		if _, err := svc.PlaceBid(ctx, opportunityID, "user_0", amount); err != nil {
			b.Fatalf("failed to place bid: %v", err)
		}
	}
}

// Benchmark 2: PlaceBid - Shared Opportunity (High Contention - CAS retries)
func Benchmark_PlaceBid_ConcurrentSharedOpportunity(b *testing.B) {
	_, svc := setupMarketplace(b, 1, 64)
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()

	var lastBid int64 = 50
	var conflicts int64

	b.RunParallel(func(pb *testing.PB) {
		rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
		for pb.Next() {
			userID := fmt.Sprintf("user_%d", rnd.Intn(64))
			nextBid := atomic.AddInt64(&lastBid, int64(rnd.Intn(5)+1))
			if _, err := svc.PlaceBid(ctx, "opp_0", userID, decimal.NewFromInt(nextBid)); err != nil {
				atomic.AddInt64(&conflicts, 1)
			}
		}
	})

	b.ReportMetric(float64(conflicts)/float64(b.N), "rejects/op")
}

// Benchmark 3: GetWinningBid - Single - Threaded (Low Contention)
func Benchmark_GetWinningBid_SingleThreaded(b *testing.B) {
	_, svc := setupMarketplace(b, b.N, 10)
	ctx := context.Background()

	for i := 0; i < b.N; i++ {
		opportunityID := fmt.Sprintf("opp_%d", i)
		for j := 0; j < 10; j++ {
			_, _ = svc.PlaceBid(ctx, opportunityID, fmt.Sprintf("user_%d", j), decimal.NewFromInt(int64(50+j*10)))
		}
	}

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if _, err := svc.GetWinningBid(ctx, fmt.Sprintf("opp_%d", i)); err != nil {
			b.Fatalf("failed to get winning bid: %v", err)
		}
	}
}

// Benchmark 4: GetWinningBid - Concurrent (High Contention)
func Benchmark_GetWinningBid_ConcurrentSharedOpportunity(b *testing.B) {
	_, svc := setupMarketplace(b, 1, 100)
	ctx := context.Background()

	for j := 0; j < 100; j++ {
		_, _ = svc.PlaceBid(ctx, "opp_0", fmt.Sprintf("user_%d", j), decimal.NewFromInt(int64(50+j)))
	}

	b.ReportAllocs()
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := svc.GetWinningBid(ctx, "opp_0"); err != nil {
				b.Errorf("failed to get winning bid: %v", err)
				return
			}
		}
	})
}

// Benchmark 5: Mixed Workload (Readers + Writers concurrently)
func Benchmark_MixedWorkload_SharedOpportunity(b *testing.B) {
	_, svc := setupMarketplace(b, 1, 50)
	ctx := context.Background()

	for j := 0; j < 50; j++ {
		_, _ = svc.PlaceBid(ctx, "opp_0", fmt.Sprintf("user_%d", j), decimal.NewFromInt(int64(50+j*2)))
	}

	b.ReportAllocs()
	b.ResetTimer()

	var lastBid int64 = 150

	// Ratio: 70% readers, 30% writers
	b.RunParallel(func(pb *testing.PB) {
		rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
		for pb.Next() {
			if rnd.Intn(10) < 3 {
				userID := fmt.Sprintf("user_%d", rnd.Intn(50))
				nextBid := atomic.AddInt64(&lastBid, int64(rnd.Intn(5)+1))
				_, _ = svc.PlaceBid(ctx, "opp_0", userID, decimal.NewFromInt(nextBid))
				continue
			}
			_, _ = svc.GetWinningBid(ctx, "opp_0")
		}
	})
}

// Benchmark 6: Recompute - full scan of an opportunity's bids
func Benchmark_Recompute(b *testing.B) {
	for _, numBids := range []int{10, 100, 1000} {
		b.Run(fmt.Sprintf("bids_%d", numBids), func(b *testing.B) {
			_, svc := setupMarketplace(b, 1, numBids)
			ctx := context.Background()
			for j := 0; j < numBids; j++ {
				if _, err := svc.PlaceBid(ctx, "opp_0", fmt.Sprintf("user_%d", j), decimal.NewFromInt(int64(j+1))); err != nil {
					b.Fatalf("failed to seed bid: %v", err)
				}
			}

			b.ReportAllocs()
			b.ResetTimer()

			for i := 0; i < b.N; i++ {
				if _, _, err := svc.Recompute(ctx, "opp_0"); err != nil {
					b.Fatalf("recompute failed: %v", err)
				}
			}
		})
	}
}
