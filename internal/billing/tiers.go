// Package billing owns reader subscriptions: the typed tier catalogue,
// payment webhook signature verification, and the idempotent handler that
// turns payment events into subscription rows and lifecycle emails.
package billing

import (
	"bytes"
	_ "embed"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

//go:embed tiers.yaml
var defaultTiersYAML []byte

// TierName identifies one of the closed set of subscription tiers.
type TierName string

const (
	TierFree      TierName = "free"
	TierSupporter TierName = "supporter"
	TierSustainer TierName = "sustainer"
)

// TierNames lists every tier, cheapest first.
var TierNames = []TierName{TierFree, TierSupporter, TierSustainer}

// ErrUnknownTier is returned for a tier name outside the closed set.
var ErrUnknownTier = eris.New("billing: unknown tier")

// ParseTierName validates s against the closed set of tiers.
func ParseTierName(s string) (TierName, error) {
	for _, n := range TierNames {
		if string(n) == strings.ToLower(strings.TrimSpace(s)) {
			return n, nil
		}
	}
	return "", eris.Wrapf(ErrUnknownTier, "billing: %q", s)
}

// Limits are the entitlements a tier grants. ArticlesPerMonth of 0 means unlimited.
type Limits struct {
	ArticlesPerMonth int  `yaml:"articles_per_month" json:"articles_per_month"`
	Newsletter       bool `yaml:"newsletter" json:"newsletter"`
	AdFree           bool `yaml:"ad_free" json:"ad_free"`
	ArchiveAccess    bool `yaml:"archive_access" json:"archive_access"`
}

// Tier is one decoded catalogue entry.
type Tier struct {
	Name        TierName `yaml:"name" json:"name"`
	DisplayName string   `yaml:"display_name" json:"display_name"`
	PriceCents  int      `yaml:"price_cents" json:"price_cents"`
	PriceID     string   `yaml:"price_id" json:"price_id,omitempty"`
	Limits      Limits   `yaml:"limits" json:"limits"`
}

// Unlimited reports whether the tier has no monthly article cap.
func (t Tier) Unlimited() bool { return t.Limits.ArticlesPerMonth == 0 }

// Catalogue is the validated, immutable set of tiers.
type Catalogue struct {
	tiers   map[TierName]Tier
	byPrice map[string]TierName
}

type catalogueFile struct {
	Tiers []Tier `yaml:"tiers"`
}

// ParseTiers decodes and validates a tier catalogue. Unknown fields, unknown
// tier names, duplicates and missing tiers are all rejected.
func ParseTiers(data []byte) (*Catalogue, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var f catalogueFile
	if err := dec.Decode(&f); err != nil {
		return nil, eris.Wrap(err, "billing: decode tiers")
	}

	c := &Catalogue{tiers: make(map[TierName]Tier), byPrice: make(map[string]TierName)}
	var errs []string
	for _, t := range f.Tiers {
		name, err := ParseTierName(string(t.Name))
		if err != nil {
			errs = append(errs, err.Error())
			continue
		}
		t.Name = name
		if _, dup := c.tiers[name]; dup {
			errs = append(errs, "duplicate tier "+string(name))
			continue
		}
		if t.PriceCents < 0 {
			errs = append(errs, "negative price for "+string(name))
		}
		if t.PriceCents > 0 && t.PriceID == "" {
			errs = append(errs, "paid tier "+string(name)+" needs a price_id")
		}
		if t.Limits.ArticlesPerMonth < 0 {
			errs = append(errs, "negative article limit for "+string(name))
		}
		if t.DisplayName == "" {
			t.DisplayName = string(name)
		}
		c.tiers[name] = t
		if t.PriceID != "" {
			c.byPrice[t.PriceID] = name
		}
	}
	for _, n := range TierNames {
		if _, ok := c.tiers[n]; !ok {
			errs = append(errs, "missing tier "+string(n))
		}
	}
	if len(errs) > 0 {
		return nil, eris.Errorf("billing: invalid tiers: %s", strings.Join(errs, "; "))
	}
	return c, nil
}

// LoadTiers reads the catalogue at path, or the built-in catalogue when path is empty.
func LoadTiers(path string) (*Catalogue, error) {
	if path == "" {
		return ParseTiers(defaultTiersYAML)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "billing: read tiers %s", path)
	}
	return ParseTiers(data)
}

// Get returns the tier named name.
func (c *Catalogue) Get(name string) (Tier, error) {
	n, err := ParseTierName(name)
	if err != nil {
		return Tier{}, err
	}
	return c.tiers[n], nil
}

// ByPriceID returns the tier sold under a payment provider price id.
func (c *Catalogue) ByPriceID(priceID string) (Tier, bool) {
	n, ok := c.byPrice[priceID]
	if !ok {
		return Tier{}, false
	}
	return c.tiers[n], true
}

// All returns every tier, cheapest first.
func (c *Catalogue) All() []Tier {
	out := make([]Tier, 0, len(TierNames))
	for _, n := range TierNames {
		out = append(out, c.tiers[n])
	}
	return out
}
