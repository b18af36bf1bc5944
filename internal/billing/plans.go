// AngelaMos | 2026
// plans.go

package billing

import (
	"sort"

	"github.com/carterperez-dev/dreamdiary-backend/internal/config"
)

type Plan struct {
	Key     string `json:"key"`
	PriceID string `json:"-"`
	Mode    string `json:"mode"`
	Feature string `json:"feature"`
}

func (p Plan) Lifetime() bool {
	return p.Mode == config.PlanModePayment
}

type Catalog struct {
	byKey          map[string]Plan
	byPrice        map[string]Plan
	defaultFeature string
}

func NewCatalog(plans map[string]config.PlanConfig, defaultFeature string) *Catalog {
	c := &Catalog{
		byKey:          make(map[string]Plan, len(plans)),
		byPrice:        make(map[string]Plan, len(plans)),
		defaultFeature: defaultFeature,
	}

	for key, pc := range plans {
		feature := pc.Feature
		if feature == "" {
			feature = defaultFeature
		}
		p := Plan{Key: key, PriceID: pc.PriceID, Mode: pc.Mode, Feature: feature}
		c.byKey[key] = p
		if pc.PriceID != "" {
			c.byPrice[pc.PriceID] = p
		}
	}

	return c
}

func (c *Catalog) ByKey(key string) (Plan, bool) {
	p, ok := c.byKey[key]
	return p, ok
}

func (c *Catalog) ByPrice(priceID string) (Plan, bool) {
	p, ok := c.byPrice[priceID]
	return p, ok
}

// Resolve finds the plan by price first, then by key. Unknown plans still
// map to the default feature.
func (c *Catalog) Resolve(priceID, key string) Plan {
	if p, ok := c.ByPrice(priceID); ok {
		return p
	}
	if p, ok := c.ByKey(key); ok {
		return p
	}
	return Plan{Key: key, PriceID: priceID, Feature: c.defaultFeature}
}

func (c *Catalog) DefaultFeature() string {
	return c.defaultFeature
}

func (c *Catalog) Plans() []Plan {
	out := make([]Plan, 0, len(c.byKey))
	for _, p := range c.byKey {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
