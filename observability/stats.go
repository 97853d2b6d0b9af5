package observability

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"
	"github.com/shirou/gopsutil/v3/process"
	otelruntime "go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/automaxprocs/maxprocs"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/benz9527/xrinq/lib/xlog"
)

const (
	AppStatsName = "xrinq/app"
)

var (
	once        sync.Once
	appStatsErr error
)

type appStats struct {
	proc       *process.Process
	goroutines metric.Int64ObservableGauge
	maxProcs   metric.Int64ObservableGauge
	rss        metric.Int64ObservableGauge
}

// InitAppStats registers the process gauges (goroutines, GOMAXPROCS and
// resident set size) plus the Go runtime instrumentation into the global
// meter provider. Only the first call takes effect, later calls return
// the first result.
func InitAppStats(name string, logger xlog.XLogger) error {
	once.Do(func() {
		if logger == nil {
			logger = xlog.NewNopXLogger()
		}
		if name = strings.TrimSpace(name); len(name) == 0 {
			name = "default"
		}
		meterName := fmt.Sprintf("%s/%s", AppStatsName, name)
		meter := otel.Meter(meterName, metric.WithInstrumentationVersion(otelruntime.Version()))

		proc, err := process.NewProcess(int32(os.Getpid()))
		if err != nil {
			appStatsErr = err
			return
		}
		stats := &appStats{proc: proc}
		stats.goroutines = lo.Must[metric.Int64ObservableGauge](meter.Int64ObservableGauge(
			"xrinq.app.goroutines",
			metric.WithDescription(`The application goroutines' info.`),
			metric.WithInt64Callback(func(ctx context.Context, ob metric.Int64Observer) error {
				ob.Observe(int64(runtime.NumGoroutine()))
				return nil
			}),
		))
		stats.maxProcs = lo.Must[metric.Int64ObservableGauge](meter.Int64ObservableGauge(
			"xrinq.app.maxprocs",
			metric.WithDescription(`The application GOMAXPROCS.`),
			metric.WithInt64Callback(func(ctx context.Context, ob metric.Int64Observer) error {
				ob.Observe(int64(runtime.GOMAXPROCS(0)))
				return nil
			}),
		))
		stats.rss = lo.Must[metric.Int64ObservableGauge](meter.Int64ObservableGauge(
			"xrinq.app.rss",
			metric.WithDescription(`The application resident set size.`),
			metric.WithUnit("By"),
			metric.WithInt64Callback(func(ctx context.Context, ob metric.Int64Observer) error {
				memInfo, err := stats.proc.MemoryInfoWithContext(ctx)
				if err != nil {
					return err
				}
				ob.Observe(int64(memInfo.RSS))
				return nil
			}),
		))
		if err = otelruntime.Start(
			otelruntime.WithMeterProvider(otel.GetMeterProvider()),
			otelruntime.WithMinimumReadMemStatsInterval(time.Second),
		); err != nil {
			appStatsErr = err
			return
		}
		logger.Info("[xrinq] app stats initialized", zap.String("meter", meterName))
	})
	return appStatsErr
}

// AdjustMaxProcs sets GOMAXPROCS to the container CPU quota, never below
// minProcs. The returned function restores the previous value.
func AdjustMaxProcs(minProcs int, logger xlog.XLogger) (func(), error) {
	if logger == nil {
		logger = xlog.NewNopXLogger()
	}
	if minProcs <= 0 {
		minProcs = 1
	}
	return maxprocs.Set(
		maxprocs.Min(minProcs),
		maxprocs.Logger(func(format string, args ...any) {
			logger.Logf(zapcore.InfoLevel, format, args...)
		}),
	)
}
