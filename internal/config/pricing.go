package config

import (
	"strings"
	"time"

	"github.com/theirongolddev/smriti/internal/model"
)

// ModelPricing holds per-million-token prices for a model.
type ModelPricing struct {
	InputPerMTok      float64
	OutputPerMTok     float64
	CacheWritePerMTok float64
	CacheReadPerMTok  float64
}

type modelPricingVersion struct {
	EffectiveFrom time.Time
	Pricing       ModelPricing
}

// DefaultPricing maps model base names to their pricing. Cache writes are
// priced at the 5 minute rate.
var DefaultPricing = map[string]ModelPricing{
	"claude-opus-4-6":   {InputPerMTok: 5.00, OutputPerMTok: 25.00, CacheWritePerMTok: 6.25, CacheReadPerMTok: 0.50},
	"claude-opus-4-5":   {InputPerMTok: 5.00, OutputPerMTok: 25.00, CacheWritePerMTok: 6.25, CacheReadPerMTok: 0.50},
	"claude-opus-4-1":   {InputPerMTok: 15.00, OutputPerMTok: 75.00, CacheWritePerMTok: 18.75, CacheReadPerMTok: 1.50},
	"claude-opus-4":     {InputPerMTok: 15.00, OutputPerMTok: 75.00, CacheWritePerMTok: 18.75, CacheReadPerMTok: 1.50},
	"claude-sonnet-4-6": {InputPerMTok: 3.00, OutputPerMTok: 15.00, CacheWritePerMTok: 3.75, CacheReadPerMTok: 0.30},
	"claude-sonnet-4-5": {InputPerMTok: 3.00, OutputPerMTok: 15.00, CacheWritePerMTok: 3.75, CacheReadPerMTok: 0.30},
	"claude-sonnet-4":   {InputPerMTok: 3.00, OutputPerMTok: 15.00, CacheWritePerMTok: 3.75, CacheReadPerMTok: 0.30},
	"claude-haiku-4-5":  {InputPerMTok: 1.00, OutputPerMTok: 5.00, CacheWritePerMTok: 1.25, CacheReadPerMTok: 0.10},
	"claude-haiku-3-5":  {InputPerMTok: 0.80, OutputPerMTok: 4.00, CacheWritePerMTok: 1.00, CacheReadPerMTok: 0.08},
	"gpt-5":             {InputPerMTok: 1.25, OutputPerMTok: 10.00, CacheReadPerMTok: 0.125},
	"gpt-5-codex":       {InputPerMTok: 1.25, OutputPerMTok: 10.00, CacheReadPerMTok: 0.125},
	"gpt-5-mini":        {InputPerMTok: 0.25, OutputPerMTok: 2.00, CacheReadPerMTok: 0.025},
	"gpt-4.1":           {InputPerMTok: 2.00, OutputPerMTok: 8.00, CacheReadPerMTok: 0.50},
	"gpt-4o":            {InputPerMTok: 2.50, OutputPerMTok: 10.00, CacheReadPerMTok: 1.25},
	"o3":                {InputPerMTok: 2.00, OutputPerMTok: 8.00, CacheReadPerMTok: 0.50},
	"o4-mini":           {InputPerMTok: 1.10, OutputPerMTok: 4.40, CacheReadPerMTok: 0.275},
}

// defaultPricingHistory stores effective-dated prices for each model.
// Entries must be sorted by EffectiveFrom ascending.
var defaultPricingHistory = makeDefaultPricingHistory(DefaultPricing)

func makeDefaultPricingHistory(base map[string]ModelPricing) map[string][]modelPricingVersion {
	history := make(map[string][]modelPricingVersion, len(base))
	for modelName, pricing := range base {
		history[modelName] = []modelPricingVersion{
			{Pricing: pricing},
		}
	}
	return history
}

func hasPricingModel(name string) bool {
	if _, ok := defaultPricingHistory[name]; ok {
		return true
	}
	_, ok := DefaultPricing[name]
	return ok
}

// NormalizeModelName strips provider prefixes and date suffixes from model
// identifiers.
// e.g., "claude-opus-4-5-20251101" -> "claude-opus-4-5",
// "openai/gpt-4.1-2025-04-14" -> "gpt-4.1"
func NormalizeModelName(raw string) string {
	if i := strings.LastIndex(raw, "/"); i >= 0 {
		raw = raw[i+1:]
	}
	if hasPricingModel(raw) {
		return raw
	}

	parts := strings.Split(raw, "-")
	n := len(parts)

	// Anthropic style: -20251101
	if n >= 2 && isAllDigits(parts[n-1]) && len(parts[n-1]) >= 8 {
		if candidate := strings.Join(parts[:n-1], "-"); hasPricingModel(candidate) {
			return candidate
		}
	}
	// OpenAI style: -2025-04-14
	if n >= 4 && len(parts[n-3]) == 4 && isAllDigits(parts[n-3]) &&
		isAllDigits(parts[n-2]) && isAllDigits(parts[n-1]) {
		if candidate := strings.Join(parts[:n-3], "-"); hasPricingModel(candidate) {
			return candidate
		}
	}

	return raw
}

func isAllDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return len(s) > 0
}

// LookupPricingAt returns the pricing for a model at the given timestamp.
// If at is zero, the latest known pricing entry is used.
func LookupPricingAt(name string, at time.Time) (ModelPricing, bool) {
	normalized := NormalizeModelName(name)
	versions, ok := defaultPricingHistory[normalized]
	if !ok || len(versions) == 0 {
		p, fallback := DefaultPricing[normalized]
		return p, fallback
	}

	if at.IsZero() {
		return versions[len(versions)-1].Pricing, true
	}

	at = at.UTC()
	selected := versions[0].Pricing
	for _, v := range versions {
		if v.EffectiveFrom.IsZero() || !at.Before(v.EffectiveFrom.UTC()) {
			selected = v.Pricing
			continue
		}
		break
	}
	return selected, true
}

// Pricer prices token usage, applying user overrides on top of the
// built-in table.
type Pricer struct {
	overrides map[string]ModelPricingOverride
}

// NewPricer returns a Pricer using the given overrides.
func NewPricer(p PricingOverrides) *Pricer {
	overrides := make(map[string]ModelPricingOverride, len(p.Overrides))
	for name, o := range p.Overrides {
		overrides[NormalizeModelName(name)] = o
	}
	return &Pricer{overrides: overrides}
}

// Lookup returns the pricing for a model at a point in time.
func (p *Pricer) Lookup(name string, at time.Time) (ModelPricing, bool) {
	pricing, ok := LookupPricingAt(name, at)
	if p == nil {
		return pricing, ok
	}
	o, has := p.overrides[NormalizeModelName(name)]
	if !has {
		return pricing, ok
	}
	if o.InputPerMTok != nil {
		pricing.InputPerMTok = *o.InputPerMTok
	}
	if o.OutputPerMTok != nil {
		pricing.OutputPerMTok = *o.OutputPerMTok
	}
	if o.CacheWritePerMTok != nil {
		pricing.CacheWritePerMTok = *o.CacheWritePerMTok
	}
	if o.CacheReadPerMTok != nil {
		pricing.CacheReadPerMTok = *o.CacheReadPerMTok
	}
	return pricing, true
}

// Cost computes the estimated cost in USD of one turn's usage. Unknown
// models cost nothing.
func (p *Pricer) Cost(name string, at time.Time, u model.TokenUsage) float64 {
	pricing, ok := p.Lookup(name, at)
	if !ok {
		return 0
	}
	cost := float64(u.Input) * pricing.InputPerMTok / 1_000_000
	cost += float64(u.Output) * pricing.OutputPerMTok / 1_000_000
	cost += float64(u.CacheCreate) * pricing.CacheWritePerMTok / 1_000_000
	cost += float64(u.CacheRead) * pricing.CacheReadPerMTok / 1_000_000
	return cost
}
