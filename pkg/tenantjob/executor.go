package tenantjob

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/arcadia-hq/arcadia-sdk/pkg/composables"
	"github.com/arcadia-hq/arcadia-sdk/pkg/configuration"
	"github.com/arcadia-hq/arcadia-sdk/pkg/eventbus"
)

// Tenant is the slice of tenant state the executor needs.
type Tenant struct {
	ID   uuid.UUID
	Name string
}

// TenantLister supplies the active tenants a job should visit. Implemented
// by the tenant repository.
type TenantLister interface {
	AllActive(ctx context.Context) ([]Tenant, error)
}

// Handler is one unit of per-tenant work. It runs with the tenant's frame
// already active on ctx.
type Handler func(ctx context.Context, tenant Tenant) error

type Options struct {
	// Parallel dispatches tenants in bounded-concurrency batches instead
	// of one at a time.
	Parallel bool
	// MaxConcurrency bounds a parallel batch.
	MaxConcurrency int
	// StopOnError halts dispatch once a tenant fails. Serial mode stops at
	// the first failure, parallel mode after the failing batch drains. The
	// default is to keep going and report the failure in the summary.
	StopOnError bool
}

func (o *Options) setDefaults() {
	if o.MaxConcurrency <= 0 {
		o.MaxConcurrency = configuration.Use().TenantJob.MaxConcurrency
	}
}

type Result struct {
	TenantID uuid.UUID
	Name     string
	Duration time.Duration
	Err      error
}

type Summary struct {
	Total       int
	Succeeded   int
	Failed      int
	Duration    time.Duration
	AvgDuration time.Duration
	Results     []Result
}

// TenantJobFinished is published on the event bus after every run.
type TenantJobFinished struct {
	Summary Summary
}

type Executor struct {
	tenants TenantLister
	bus     eventbus.EventBus
	log     *logrus.Logger
}

func NewExecutor(tenants TenantLister, bus eventbus.EventBus, log *logrus.Logger) *Executor {
	return &Executor{tenants: tenants, bus: bus, log: log}
}

// Execute runs handler once per active tenant and reports per-tenant
// outcomes. A panicking handler is captured as that tenant's failure.
func (e *Executor) Execute(ctx context.Context, handler Handler, opts Options) (*Summary, error) {
	opts.setDefaults()

	tenants, err := e.tenants.AllActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active tenants: %w", err)
	}

	started := time.Now()
	var results []Result
	if opts.Parallel {
		results = e.runParallel(ctx, handler, tenants, opts)
	} else {
		results = e.runSerial(ctx, handler, tenants, opts)
	}

	summary := &Summary{
		Total:    len(tenants),
		Duration: time.Since(started),
		Results:  results,
	}
	for _, res := range results {
		if res.Err != nil {
			summary.Failed++
		} else {
			summary.Succeeded++
		}
	}
	if len(results) > 0 {
		summary.AvgDuration = summary.Duration / time.Duration(len(results))
	}

	if e.log != nil {
		e.log.WithFields(logrus.Fields{
			"total":     summary.Total,
			"succeeded": summary.Succeeded,
			"failed":    summary.Failed,
			"duration":  summary.Duration,
		}).Info("tenant job finished")
	}
	recordRun(summary)
	if e.bus != nil {
		e.bus.Publish(TenantJobFinished{Summary: *summary})
	}
	return summary, nil
}

func (e *Executor) runSerial(ctx context.Context, handler Handler, tenants []Tenant, opts Options) []Result {
	results := make([]Result, 0, len(tenants))
	for _, tenant := range tenants {
		res := e.runOne(ctx, handler, tenant)
		results = append(results, res)
		if res.Err != nil && opts.StopOnError {
			break
		}
	}
	return results
}

func (e *Executor) runParallel(ctx context.Context, handler Handler, tenants []Tenant, opts Options) []Result {
	var results []Result
	for start := 0; start < len(tenants); start += opts.MaxConcurrency {
		end := min(start+opts.MaxConcurrency, len(tenants))
		batch := tenants[start:end]

		batchResults := make([]Result, len(batch))
		var g errgroup.Group
		for i, tenant := range batch {
			g.Go(func() error {
				batchResults[i] = e.runOne(ctx, handler, tenant)
				return nil
			})
		}
		_ = g.Wait()

		results = append(results, batchResults...)
		if opts.StopOnError {
			for _, res := range batchResults {
				if res.Err != nil {
					return results
				}
			}
		}
	}
	return results
}

func (e *Executor) runOne(ctx context.Context, handler Handler, tenant Tenant) Result {
	started := time.Now()
	err := composables.RunWithTenant(ctx, tenant.ID, func(ctx context.Context) (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("tenant job panicked: %v", r)
				if e.log != nil {
					e.log.WithField("tenant_id", tenant.ID).WithError(err).Error("tenant job recovered")
				}
			}
		}()
		return handler(ctx, tenant)
	})
	return Result{
		TenantID: tenant.ID,
		Name:     tenant.Name,
		Duration: time.Since(started),
		Err:      err,
	}
}
