package deploy

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hatlonely/workerplane/errs"
)

// Metrics 部署流程的 prometheus 指标
type Metrics struct {
	operationCounter    *prometheus.CounterVec
	operationDuration   *prometheus.HistogramVec
	activeOperations    *prometheus.GaugeVec
	compensationCounter *prometheus.CounterVec
}

// NewMetrics 创建并注册指标，name 作为指标名前缀
func NewMetrics(name string, reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	metrics := &Metrics{
		operationCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: name + "_operations_total",
				Help: "Total number of worker administration operations",
			},
			[]string{"operation", "status"},
		),
		operationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    name + "_operation_duration_seconds",
				Help:    "Duration of worker administration operations in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
			},
			[]string{"operation"},
		),
		activeOperations: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: name + "_active_operations",
				Help: "Number of in-flight worker administration operations",
			},
			[]string{"operation"},
		),
		compensationCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: name + "_compensations_total",
				Help: "Total number of saga compensation steps",
			},
			[]string{"step", "status"},
		),
	}

	for _, c := range []prometheus.Collector{
		metrics.operationCounter,
		metrics.operationDuration,
		metrics.activeOperations,
		metrics.compensationCounter,
	} {
		if err := reg.Register(c); err != nil {
			return nil, errors.Wrap(err, "register metrics failed")
		}
	}
	return metrics, nil
}

func (m *Metrics) compensation(step string, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.compensationCounter.WithLabelValues(step, status).Inc()
}

// observe 统一记录指标、追踪和日志
func (o *Orchestrator) observe(ctx context.Context, operation string, attrs []attribute.KeyValue, fn func(context.Context) error) error {
	start := time.Now()

	var span trace.Span
	if o.tracer != nil {
		ctx, span = o.tracer.Start(ctx, "deploy."+operation, trace.WithAttributes(attrs...))
		defer span.End()
	}

	if o.metrics != nil {
		o.metrics.activeOperations.WithLabelValues(operation).Inc()
		defer o.metrics.activeOperations.WithLabelValues(operation).Dec()
	}

	err := fn(ctx)
	duration := time.Since(start)

	if span != nil {
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			span.RecordError(err)
		} else {
			span.SetStatus(codes.Ok, "")
		}
	}

	if o.metrics != nil {
		o.metrics.operationCounter.WithLabelValues(operation, status(err)).Inc()
		o.metrics.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
	}

	if err != nil {
		o.logger.WarnContext(ctx, "worker operation failed",
			"operation", operation,
			"duration_ms", duration.Milliseconds(),
			"error", err.Error(),
		)
	} else {
		o.logger.InfoContext(ctx, "worker operation completed",
			"operation", operation,
			"duration_ms", duration.Milliseconds(),
		)
	}
	return err
}

// status 成功为 success，失败时为错误分类
func status(err error) string {
	if err == nil {
		return "success"
	}
	if e, ok := errs.As(err); ok {
		return e.Kind.String()
	}
	return "error"
}

func newTracer(enable bool) trace.Tracer {
	if !enable {
		return nil
	}
	return otel.Tracer("github.com/hatlonely/workerplane/deploy")
}
