package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// PricingDocumentsTotal counts resolved documents by outcome (ok, partial, rejected).
	PricingDocumentsTotal *prometheus.CounterVec
	// PricingLinesTotal counts priced lines by selling mode and pricing path.
	PricingLinesTotal *prometheus.CounterVec
	// PricingIssuesTotal counts per-line and per-group issues by kind.
	PricingIssuesTotal *prometheus.CounterVec
	// PricingMinimumAppliedTotal counts lines billed at a minimum quantity.
	PricingMinimumAppliedTotal *prometheus.CounterVec
	// ItemConfigCacheTotal counts item configuration cache lookups by result.
	ItemConfigCacheTotal *prometheus.CounterVec
	// ItemConfigMutationsTotal counts tier/minimum saves by kind and result.
	ItemConfigMutationsTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		PricingDocumentsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pricing_documents_total",
			Help:      "Count of pricing resolutions by outcome.",
		}, []string{"result"})
		PricingLinesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pricing_lines_total",
			Help:      "Count of priced document lines by selling mode and path.",
		}, []string{"mode", "path"})
		PricingIssuesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pricing_issues_total",
			Help:      "Count of pricing issues reported alongside results.",
		}, []string{"kind"})
		PricingMinimumAppliedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pricing_minimum_applied_total",
			Help:      "Count of lines whose billable quantity was raised by a minimum rule.",
		}, []string{"mode", "calc"})
		ItemConfigCacheTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "item_config_cache_total",
			Help:      "Item configuration cache lookups by result.",
		}, []string{"result"})
		ItemConfigMutationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "item_config_mutations_total",
			Help:      "Tier and minimum rule saves by kind and result.",
		}, []string{"kind", "result"})

		for _, target := range []**prometheus.CounterVec{
			&PricingDocumentsTotal,
			&PricingLinesTotal,
			&PricingIssuesTotal,
			&PricingMinimumAppliedTotal,
			&ItemConfigCacheTotal,
			&ItemConfigMutationsTotal,
		} {
			mustRegisterCollector(reg, *target, func(existing prometheus.Collector) {
				if v, ok := existing.(*prometheus.CounterVec); ok {
					*target = v
				}
			})
		}
	})
}

func incCounter(vec *prometheus.CounterVec, labels ...string) {
	if vec == nil {
		return
	}
	vec.WithLabelValues(labels...).Inc()
}

// ObservePricingDocument records one resolution outcome.
func ObservePricingDocument(result string) { incCounter(PricingDocumentsTotal, result) }

// ObservePricingLine records one priced line.
func ObservePricingLine(mode, path string) { incCounter(PricingLinesTotal, mode, path) }

// ObservePricingIssue records one reported issue.
func ObservePricingIssue(kind string) { incCounter(PricingIssuesTotal, kind) }

// ObserveMinimumApplied records a line billed at its minimum.
func ObserveMinimumApplied(mode, calc string) { incCounter(PricingMinimumAppliedTotal, mode, calc) }

// ObserveItemConfigCache records a cache lookup (hit, miss, error, bypass) or a
// skipped write-back (stale).
func ObserveItemConfigCache(result string) { incCounter(ItemConfigCacheTotal, result) }

// ObserveItemConfigMutation records a configuration save.
func ObserveItemConfigMutation(kind, result string) {
	incCounter(ItemConfigMutationsTotal, kind, result)
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
