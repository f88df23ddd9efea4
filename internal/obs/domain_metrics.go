package obs

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// PricingQuotesTotal counts goods pricing evaluations by operation and outcome.
	PricingQuotesTotal *prometheus.CounterVec
	// PricingRepricedLines counts lines whose unit price was recomputed.
	PricingRepricedLines prometheus.Counter
	// PricingLockedSkipped counts recompute triggers ignored because the line price was locked.
	PricingLockedSkipped prometheus.Counter
	// PricingMissingTariff counts lines priced against an absent tariff.
	PricingMissingTariff prometheus.Counter
	// TariffCacheTotal tracks tariff table cache hits and misses.
	TariffCacheTotal *prometheus.CounterVec
	// ReportExportTotal counts report export jobs by outcome.
	ReportExportTotal *prometheus.CounterVec
	// ReportExportDuration records export rendering latency in milliseconds.
	ReportExportDuration prometheus.Histogram
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		PricingQuotesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pricing_quotes_total",
			Help:      "Count of goods pricing evaluations by operation and result.",
		}, []string{"operation", "result"})
		PricingRepricedLines = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pricing_repriced_lines_total",
			Help:      "Number of line unit prices recomputed from tariffs.",
		})
		PricingLockedSkipped = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pricing_locked_skipped_total",
			Help:      "Number of recompute triggers skipped for manually priced lines.",
		})
		PricingMissingTariff = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pricing_missing_tariff_total",
			Help:      "Number of lines priced without a configured tariff.",
		})
		TariffCacheTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tariff_cache_total",
			Help:      "Tariff table cache lookups by result.",
		}, []string{"result"})
		ReportExportTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "report_export_total",
			Help:      "Count of report exports by format and result.",
		}, []string{"format", "result"})
		ReportExportDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "report_export_duration_ms",
			Help:      "Latency for rendering report exports in milliseconds.",
			Buckets:   []float64{10, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		})

		mustRegisterCollector(reg, PricingQuotesTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				PricingQuotesTotal = v
			}
		})
		mustRegisterCollector(reg, PricingRepricedLines, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				PricingRepricedLines = v
			}
		})
		mustRegisterCollector(reg, PricingLockedSkipped, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				PricingLockedSkipped = v
			}
		})
		mustRegisterCollector(reg, PricingMissingTariff, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				PricingMissingTariff = v
			}
		})
		mustRegisterCollector(reg, TariffCacheTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				TariffCacheTotal = v
			}
		})
		mustRegisterCollector(reg, ReportExportTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				ReportExportTotal = v
			}
		})
		mustRegisterCollector(reg, ReportExportDuration, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Histogram); ok {
				ReportExportDuration = v
			}
		})
	})
}

// ObservePricing records resolver activity for one goods operation. It is a
// no-op until MustRegisterDomainMetrics has run.
func ObservePricing(operation, result string, repriced, lockedSkipped, missingTariff int) {
	if PricingQuotesTotal == nil {
		return
	}
	PricingQuotesTotal.WithLabelValues(operation, result).Inc()
	PricingRepricedLines.Add(float64(repriced))
	PricingLockedSkipped.Add(float64(lockedSkipped))
	PricingMissingTariff.Add(float64(missingTariff))
}

// ObserveTariffCache records a tariff cache hit or miss.
func ObserveTariffCache(hit bool) {
	if TariffCacheTotal == nil {
		return
	}
	if hit {
		TariffCacheTotal.WithLabelValues("hit").Inc()
		return
	}
	TariffCacheTotal.WithLabelValues("miss").Inc()
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register domain metric: %w", err))
	}
}

// ObserveReportExport records the outcome and latency of one export.
func ObserveReportExport(format, result string, d time.Duration) {
	if ReportExportTotal == nil {
		return
	}
	ReportExportTotal.WithLabelValues(format, result).Inc()
	ReportExportDuration.Observe(DurationMillis(d))
}
