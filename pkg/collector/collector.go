package collector

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
	"golang.org/x/sync/errgroup"

	"github.com/opscart/vm-billing-platform/pkg/models"
	"github.com/opscart/vm-billing-platform/pkg/storage"
)

// Querier is the slice of the Prometheus API the collector needs. Tests
// substitute a fake.
type Querier interface {
	Query(ctx context.Context, query string, ts time.Time, opts ...v1.Option) (model.Value, v1.Warnings, error)
}

// Collector samples per-VM usage metrics from Prometheus and appends them to
// the local time series consumed by the alert evaluator.
type Collector struct {
	store   storage.Store
	querier Querier
	logger  *slog.Logger
	now     func() time.Time
}

// NewPrometheusCollector builds a collector backed by a Prometheus server.
func NewPrometheusCollector(store storage.Store, prometheusURL string, logger *slog.Logger) (*Collector, error) {
	client, err := api.NewClient(api.Config{
		Address: prometheusURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus client: %w", err)
	}
	return New(store, v1.NewAPI(client), logger), nil
}

func New(store storage.Store, querier Querier, logger *slog.Logger) *Collector {
	return &Collector{
		store:   store,
		querier: querier,
		logger:  logger,
		now:     time.Now,
	}
}

// Run collects one sample for every running VM. Per-VM failures are
// isolated and counted; they never block sibling VMs.
func (c *Collector) Run(ctx context.Context) (*models.CollectSummary, error) {
	vms, err := c.store.ListRunningVMs(ctx)
	if err != nil {
		return nil, err
	}

	summary := &models.CollectSummary{}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	for _, vm := range vms {
		vm := vm
		g.Go(func() error {
			sample, err := c.sampleVM(gctx, vm)
			if err == nil {
				err = c.store.AppendMetricSample(gctx, sample)
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				c.logger.Error("failed to collect VM metrics", "vm_id", vm.ID, "name", vm.Name, "error", err)
				summary.Errored++
				return nil
			}
			summary.Collected++
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return summary, err
	}
	return summary, nil
}

func (c *Collector) sampleVM(ctx context.Context, vm *models.VirtualMachineRecord) (*models.MetricSample, error) {
	cpu, err := c.querySingle(ctx, fmt.Sprintf(`vm_cpu_usage_percent{vm_id="%s"}`, vm.ID))
	if err != nil {
		return nil, fmt.Errorf("CPU query failed: %w", err)
	}

	mem, err := c.querySingle(ctx, fmt.Sprintf(`vm_memory_usage_percent{vm_id="%s"}`, vm.ID))
	if err != nil {
		return nil, fmt.Errorf("memory query failed: %w", err)
	}

	netIn, err := c.querySingle(ctx, fmt.Sprintf(`rate(vm_network_receive_bytes_total{vm_id="%s"}[5m])`, vm.ID))
	if err != nil {
		netIn = 0 // network metrics are best-effort
	}
	netOut, err := c.querySingle(ctx, fmt.Sprintf(`rate(vm_network_transmit_bytes_total{vm_id="%s"}[5m])`, vm.ID))
	if err != nil {
		netOut = 0
	}

	return &models.MetricSample{
		VMID:       vm.ID,
		Timestamp:  c.now(),
		CPUPercent: cpu,
		MemPercent: mem,
		NetInKBps:  netIn / 1024,
		NetOutKBps: netOut / 1024,
	}, nil
}

func (c *Collector) querySingle(ctx context.Context, query string) (float64, error) {
	result, _, err := c.querier.Query(ctx, query, c.now())
	if err != nil {
		return 0, err
	}

	vector, ok := result.(model.Vector)
	if !ok {
		return 0, fmt.Errorf("unexpected result type %s", result.Type())
	}
	if len(vector) == 0 {
		return 0, fmt.Errorf("no data for query %q", query)
	}

	return float64(vector[0].Value), nil
}
