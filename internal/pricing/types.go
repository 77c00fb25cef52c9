package pricing

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrUnknownItem  = errors.New("unknown catalog item")
	ErrMissingPrice = errors.New("missing price cell")
)

// VATRate is applied to every quote subtotal. It is not part of RateSettings.
var VATRate = decimal.RequireFromString("0.19")

type Tier string

const (
	TierMedium Tier = "medium"
	TierAbove  Tier = "above"
	TierHigh   Tier = "high"
)

var Tiers = []Tier{TierMedium, TierAbove, TierHigh}

func ParseTier(s string) (Tier, error) {
	for _, t := range Tiers {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("invalid price tier %q", s)
}

type Size string

const (
	SizeM   Size = "M"
	SizeL   Size = "L"
	SizeXL  Size = "XL"
	SizeXXL Size = "XXL"
)

var Sizes = []Size{SizeM, SizeL, SizeXL, SizeXXL}

func ParseSize(s string) (Size, error) {
	for _, sz := range Sizes {
		if string(sz) == s {
			return sz, nil
		}
	}
	return "", fmt.Errorf("invalid size %q", s)
}

type RateSettings struct {
	BaseFee          decimal.Decimal `json:"base_fee"`
	PerKilometerFee  decimal.Decimal `json:"per_kilometer_fee"`
	PerFloorFee      decimal.Decimal `json:"per_floor_fee"`
	HourlyLaborRate  decimal.Decimal `json:"hourly_labor_rate"`
	DefaultTier      Tier            `json:"default_price_tier"`
	SurchargePercent decimal.Decimal `json:"surcharge_percent"`
}

// SettingsPatch carries a partial update; nil fields are left unchanged.
type SettingsPatch struct {
	BaseFee          *decimal.Decimal `json:"base_fee,omitempty"`
	PerKilometerFee  *decimal.Decimal `json:"per_kilometer_fee,omitempty"`
	PerFloorFee      *decimal.Decimal `json:"per_floor_fee,omitempty"`
	HourlyLaborRate  *decimal.Decimal `json:"hourly_labor_rate,omitempty"`
	DefaultTier      *Tier            `json:"default_price_tier,omitempty"`
	SurchargePercent *decimal.Decimal `json:"surcharge_percent,omitempty"`
}

func (p SettingsPatch) Empty() bool {
	return p.BaseFee == nil && p.PerKilometerFee == nil && p.PerFloorFee == nil &&
		p.HourlyLaborRate == nil && p.DefaultTier == nil && p.SurchargePercent == nil
}

// Apply returns a copy of s with every non-nil field of p written over it.
func (p SettingsPatch) Apply(s RateSettings) RateSettings {
	if p.BaseFee != nil {
		s.BaseFee = *p.BaseFee
	}
	if p.PerKilometerFee != nil {
		s.PerKilometerFee = *p.PerKilometerFee
	}
	if p.PerFloorFee != nil {
		s.PerFloorFee = *p.PerFloorFee
	}
	if p.HourlyLaborRate != nil {
		s.HourlyLaborRate = *p.HourlyLaborRate
	}
	if p.DefaultTier != nil {
		s.DefaultTier = *p.DefaultTier
	}
	if p.SurchargePercent != nil {
		s.SurchargePercent = *p.SurchargePercent
	}
	return s
}

// Validate checks the ranges callers must enforce before handing a patch to the engine.
func (p SettingsPatch) Validate() error {
	money := []struct {
		name  string
		value *decimal.Decimal
	}{
		{"base_fee", p.BaseFee},
		{"per_kilometer_fee", p.PerKilometerFee},
		{"per_floor_fee", p.PerFloorFee},
		{"hourly_labor_rate", p.HourlyLaborRate},
		{"surcharge_percent", p.SurchargePercent},
	}
	for _, m := range money {
		if m.value != nil && m.value.IsNegative() {
			return fmt.Errorf("%s must not be negative", m.name)
		}
	}
	if p.SurchargePercent != nil && p.SurchargePercent.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("surcharge_percent must not exceed 100")
	}
	if p.DefaultTier != nil {
		if _, err := ParseTier(string(*p.DefaultTier)); err != nil {
			return err
		}
	}
	return nil
}

type TierPrices map[Tier]decimal.Decimal

type CatalogEntry struct {
	Name           string              `json:"name"`
	Prices         map[Size]TierPrices `json:"prices"`
	AssemblyFee    decimal.Decimal     `json:"assembly_fee"`
	DisassemblyFee decimal.Decimal     `json:"disassembly_fee"`
}

// UnitPrice is the only place that resolves a size/tier cell. An absent cell
// reports false and a zero price.
func (e CatalogEntry) UnitPrice(size Size, tier Tier) (decimal.Decimal, bool) {
	row, ok := e.Prices[size]
	if !ok {
		return decimal.Zero, false
	}
	price, ok := row[tier]
	if !ok {
		return decimal.Zero, false
	}
	return price, true
}

type LineRequest struct {
	ItemName    string `json:"item_name"`
	Size        Size   `json:"size,omitempty"`
	Quantity    int    `json:"quantity,omitempty"`
	Assembly    bool   `json:"assembly,omitempty"`
	Disassembly bool   `json:"disassembly,omitempty"`
}

type QuoteRequest struct {
	Items             []LineRequest
	Tier              Tier // empty selects the settings default
	DistanceKm        decimal.Decimal
	OriginFloors      int
	DestinationFloors int
}

type LineResult struct {
	ItemName         string          `json:"item_name"`
	Size             Size            `json:"size"`
	Quantity         int             `json:"quantity"`
	UnitPrice        decimal.Decimal `json:"unit_price"`
	AssemblyPrice    decimal.Decimal `json:"assembly_price"`
	DisassemblyPrice decimal.Decimal `json:"disassembly_price"`
	LineTotal        decimal.Decimal `json:"line_total"`
}

type Quote struct {
	BaseFee       decimal.Decimal `json:"base_fee"`
	DistanceFee   decimal.Decimal `json:"distance_fee"`
	FloorFee      decimal.Decimal `json:"floor_fee"`
	ItemsSubtotal decimal.Decimal `json:"items_subtotal"`
	Lines         []LineResult    `json:"lines"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	Tax           decimal.Decimal `json:"tax"`
	Total         decimal.Decimal `json:"total"`
	Tier          Tier            `json:"price_tier"`
}
