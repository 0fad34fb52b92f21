package server

import (
	"context"
	"expvar"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/INLOpen/areas/kv"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

// SystemCollectorOptions configures a SystemCollector.
type SystemCollectorOptions struct {
	// DiskPath is the directory whose volume is reported, usually the store's.
	DiskPath string
	Interval time.Duration
	// Store, when set, has its size and budget usage reported.
	Store kv.Store
	// Publish registers the gauges with expvar under their system_* names.
	Publish bool
	Logger  *slog.Logger
}

// SystemCollector periodically samples host CPU, memory and disk usage and
// the property store's size, publishing them via expvar.
type SystemCollector struct {
	CPUUsagePercent    *expvar.Float
	MemUsagePercent    *expvar.Float
	DiskUsagePercent   *expvar.Float
	StoreBytes         *expvar.Int
	StoreBudgetPercent *expvar.Float

	diskPath string
	store    kv.Store
	interval time.Duration
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	logger   *slog.Logger
}

// NewSystemCollector creates a new collector.
func NewSystemCollector(opts SystemCollectorOptions) *SystemCollector {
	interval := opts.Interval
	if interval <= 0 {
		interval = 15 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	sc := &SystemCollector{
		CPUUsagePercent:    new(expvar.Float),
		MemUsagePercent:    new(expvar.Float),
		DiskUsagePercent:   new(expvar.Float),
		StoreBytes:         new(expvar.Int),
		StoreBudgetPercent: new(expvar.Float),
		diskPath:           opts.DiskPath,
		store:              opts.Store,
		interval:           interval,
		stopChan:           make(chan struct{}),
		logger:             logger.With("component", "SystemCollector"),
	}
	if opts.Publish {
		publishVar("system_cpu_usage_percent", sc.CPUUsagePercent)
		publishVar("system_mem_usage_percent", sc.MemUsagePercent)
		publishVar("system_disk_usage_percent", sc.DiskUsagePercent)
		publishVar("areas_store_bytes", sc.StoreBytes)
		publishVar("areas_store_budget_usage_percent", sc.StoreBudgetPercent)
	}
	return sc
}

// publishVar registers v unless the name is taken; expvar panics on reuse.
func publishVar(name string, v expvar.Var) {
	if expvar.Get(name) == nil {
		expvar.Publish(name, v)
	}
}

// Start begins the background collection loop.
func (sc *SystemCollector) Start() {
	sc.logger.Info("Starting system metrics collector", "interval", sc.interval)
	sc.wg.Add(1)
	go sc.collectLoop()
}

// Stop signals the collection loop to terminate and waits for it to finish.
func (sc *SystemCollector) Stop() {
	sc.stopOnce.Do(func() {
		sc.logger.Info("Stopping system metrics collector")
		close(sc.stopChan)
	})
	sc.wg.Wait()
}

func (sc *SystemCollector) collectLoop() {
	defer sc.wg.Done()
	ticker := time.NewTicker(sc.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			sc.Collect(context.Background())
		case <-sc.stopChan:
			return
		}
	}
}

// Collect takes one sample. Failed probes leave the previous value.
func (sc *SystemCollector) Collect(ctx context.Context) {
	// Zero interval compares against the previous call instead of sleeping.
	if pct, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(pct) > 0 {
		sc.CPUUsagePercent.Set(pct[0])
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		sc.MemUsagePercent.Set(vm.UsedPercent)
	}
	if sc.diskPath != "" {
		if du, err := disk.UsageWithContext(ctx, sc.diskPath); err == nil {
			sc.DiskUsagePercent.Set(du.UsedPercent)
		}
	}
	if sc.store == nil {
		return
	}
	total, err := sc.store.TotalBytes(ctx)
	if err != nil {
		sc.logger.Warn("Failed to read store size", "error", err)
		return
	}
	sc.StoreBytes.Set(total)
	if _, limit, ok, err := kv.BudgetUsage(ctx, sc.store); err == nil && ok {
		sc.StoreBudgetPercent.Set(float64(total) / float64(limit) * 100)
	}
}
