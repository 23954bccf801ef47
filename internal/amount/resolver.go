// Package amount fills in the 金额 column by sending deduplicated
// (hours, rate) requests to an amount oracle in batches.
package amount

import (
	"context"
	"math"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/feerecon/internal/model"
)

// DefaultBatchSize is the number of unique requests per oracle call.
const DefaultBatchSize = 30

// Oracle computes one amount per request. Implementations should return a
// slice the same length as reqs; the resolver treats any other length, or
// an error, as a failure of the whole batch.
type Oracle interface {
	Compute(ctx context.Context, reqs []model.CalcRequest) ([]model.Amount, error)
}

// Resolver projects oracle results onto records.
type Resolver struct {
	oracle      Oracle
	batchSize   int
	concurrency int
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithBatchSize sets the number of unique requests per oracle call.
func WithBatchSize(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

// WithConcurrency sets how many batches may be in flight at once.
func WithConcurrency(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// NewResolver creates a Resolver backed by the given oracle.
func NewResolver(oracle Oracle, opts ...Option) *Resolver {
	r := &Resolver{
		oracle:      oracle,
		batchSize:   DefaultBatchSize,
		concurrency: 1,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Summary reports what one Resolve call did.
type Summary struct {
	AlreadyValid  int `json:"already_valid"`
	MissingInput  int `json:"missing_input"`
	Requested     int `json:"requested"`
	Unique        int `json:"unique"`
	Batches       int `json:"batches"`
	FailedBatches int `json:"failed_batches"`
	Resolved      int `json:"resolved"`
	Failed        int `json:"failed"`
}

// Resolve sets 金额 on every record that lacks a valid amount. Failures are
// stored as NaN. Oracle errors never escape; a failed batch degrades to
// failure markers for its members.
func (r *Resolver) Resolve(ctx context.Context, records []*model.Record) Summary {
	var sum Summary

	type pending struct {
		record *model.Record
		req    model.CalcRequest
	}
	var work []pending
	var unique []model.CalcRequest
	seen := make(map[model.CalcRequest]bool)

	for _, rec := range records {
		if hasValidAmount(rec) {
			sum.AlreadyValid++
			continue
		}
		if rec.IsBlank(model.FieldHours) || rec.IsBlank(model.FieldRate) {
			rec.Set(model.FieldAmount, math.NaN())
			sum.MissingInput++
			sum.Failed++
			continue
		}
		hours, _ := rec.Get(model.FieldHours)
		rate, _ := rec.Get(model.FieldRate)
		req := model.CalcRequest{Hours: model.FormatValue(hours), Rate: model.FormatValue(rate)}
		work = append(work, pending{record: rec, req: req})
		if !seen[req] {
			seen[req] = true
			unique = append(unique, req)
		}
	}
	sum.Requested = len(work)
	sum.Unique = len(unique)

	if len(unique) == 0 {
		return sum
	}

	cache := make(map[model.CalcRequest]model.Amount, len(unique))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for start := 0; start < len(unique); start += r.batchSize {
		batch := unique[start:min(start+r.batchSize, len(unique))]
		batchNum := start / r.batchSize
		sum.Batches++

		g.Go(func() error {
			results, ok := r.computeBatch(gctx, batchNum, batch)
			mu.Lock()
			defer mu.Unlock()
			if !ok {
				sum.FailedBatches++
			}
			for i, req := range batch {
				cache[req] = results[i]
			}
			return nil
		})
	}
	_ = g.Wait()

	for _, w := range work {
		a, ok := cache[w.req]
		if !ok {
			zap.L().Warn("amount: no result for request",
				zap.String("hours", w.req.Hours),
				zap.String("rate", w.req.Rate),
			)
			a = model.AmountFailed()
		}
		if a.OK {
			w.record.Set(model.FieldAmount, round2(a.Value))
			sum.Resolved++
		} else {
			w.record.Set(model.FieldAmount, math.NaN())
			sum.Failed++
		}
	}

	zap.L().Info("amount: resolve complete",
		zap.Int("already_valid", sum.AlreadyValid),
		zap.Int("requested", sum.Requested),
		zap.Int("unique", sum.Unique),
		zap.Int("batches", sum.Batches),
		zap.Int("failed_batches", sum.FailedBatches),
		zap.Int("resolved", sum.Resolved),
		zap.Int("failed", sum.Failed),
	)
	return sum
}

// computeBatch calls the oracle once. The returned slice always has
// len(batch) entries; ok is false when the whole batch failed.
func (r *Resolver) computeBatch(ctx context.Context, batchNum int, batch []model.CalcRequest) ([]model.Amount, bool) {
	log := zap.L().With(zap.Int("batch", batchNum), zap.Int("size", len(batch)))

	results, err := r.oracle.Compute(ctx, batch)
	if err != nil {
		log.Warn("amount: oracle batch failed", zap.Error(err))
		return model.FailedAmounts(len(batch)), false
	}
	if len(results) != len(batch) {
		log.Warn("amount: oracle returned wrong number of results", zap.Int("got", len(results)))
		return model.FailedAmounts(len(batch)), false
	}
	return results, true
}

// hasValidAmount reports whether 金额 already holds a finite number or a
// numeric string.
func hasValidAmount(rec *model.Record) bool {
	v, ok := rec.Get(model.FieldAmount)
	if !ok {
		return false
	}
	switch t := v.(type) {
	case float64:
		return !math.IsNaN(t) && !math.IsInf(t, 0)
	case int, int64:
		return true
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return false
		}
		_, err := decimal.NewFromString(s)
		return err == nil
	default:
		return false
	}
}

func round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}
