package pricing

import "github.com/shopspring/decimal"

// Catalog is an ordered, read-only table of priceable items.
type Catalog struct {
	names   []string
	entries map[string]CatalogEntry
}

func NewCatalog(entries ...CatalogEntry) *Catalog {
	c := &Catalog{entries: make(map[string]CatalogEntry, len(entries))}
	for _, e := range entries {
		if _, dup := c.entries[e.Name]; !dup {
			c.names = append(c.names, e.Name)
		}
		c.entries[e.Name] = e
	}
	return c
}

func (c *Catalog) Names() []string {
	out := make([]string, len(c.names))
	copy(out, c.names)
	return out
}

func (c *Catalog) Entry(name string) (CatalogEntry, bool) {
	e, ok := c.entries[name]
	return e, ok
}

func DefaultSettings() RateSettings {
	return RateSettings{
		BaseFee:          amount("54.5"),
		PerKilometerFee:  amount("1.308"),
		PerFloorFee:      amount("8.72"),
		HourlyLaborRate:  amount("27.25"),
		DefaultTier:      TierMedium,
		SurchargePercent: decimal.Zero,
	}
}

// DefaultCatalog returns the built-in furniture and service price list.
func DefaultCatalog() *Catalog {
	return NewCatalog(
		CatalogEntry{
			Name: "Bed",
			Prices: map[Size]TierPrices{
				SizeM:   tiers("54.5", "65.4", "81.75"),
				SizeL:   tiers("76.3", "92.65", "119.9"),
				SizeXL:  tiers("98.1", "119.9", "152.6"),
				SizeXXL: tiers("130.8", "163.5", "196.2"),
			},
			AssemblyFee:    amount("27.25"),
			DisassemblyFee: amount("21.8"),
		},
		CatalogEntry{
			Name: "Sofa",
			Prices: map[Size]TierPrices{
				SizeM:   tiers("43.6", "59.95", "76.3"),
				SizeL:   tiers("65.4", "81.75", "103.55"),
				SizeXL:  tiers("87.2", "109", "141.7"),
				SizeXXL: tiers("119.9", "141.7", "174.4"),
			},
		},
		CatalogEntry{
			Name: "Kitchen Cabinet",
			Prices: map[Size]TierPrices{
				SizeM:   tiers("54.5", "65.4", "87.2"),
				SizeL:   tiers("76.3", "92.65", "119.9"),
				SizeXL:  tiers("98.1", "119.9", "152.6"),
				SizeXXL: tiers("130.8", "163.5", "196.2"),
			},
			AssemblyFee:    amount("32.7"),
			DisassemblyFee: amount("27.25"),
		},
		CatalogEntry{
			Name: "Washing Machine",
			Prices: map[Size]TierPrices{
				SizeM:   tiers("54.5", "65.4", "87.2"),
				SizeL:   tiers("76.3", "92.65", "119.9"),
				SizeXL:  tiers("98.1", "119.9", "152.6"),
				SizeXXL: tiers("130.8", "163.5", "196.2"),
			},
			AssemblyFee:    amount("16.35"),
			DisassemblyFee: amount("10.9"),
		},
		CatalogEntry{
			Name: "Boxes",
			Prices: map[Size]TierPrices{
				SizeM:   tiers("3.27", "4.36", "5.45"),
				SizeL:   tiers("4.36", "5.45", "6.54"),
				SizeXL:  tiers("5.45", "6.54", "7.63"),
				SizeXXL: tiers("6.54", "7.63", "8.72"),
			},
		},
		CatalogEntry{
			Name: "Heavy Item",
			Prices: map[Size]TierPrices{
				SizeM:   tiers("218", "239.8", "272.5"),
				SizeL:   tiers("272.5", "305.2", "348.8"),
				SizeXL:  tiers("327", "381.5", "436"),
				SizeXXL: tiers("436", "490.5", "545"),
			},
			AssemblyFee:    amount("54.5"),
			DisassemblyFee: amount("54.5"),
		},
		flatEntry("Transport Service", tiers("1.09", "1.308", "1.635")),
		flatEntry("Floor Surcharge", tiers("5.45", "6.54", "8.72")),
		flatEntry("Labor Hour", tiers("21.8", "27.25", "32.7")),
	)
}

// flatEntry prices every size the same, for services billed per unit.
func flatEntry(name string, row TierPrices) CatalogEntry {
	prices := make(map[Size]TierPrices, len(Sizes))
	for _, s := range Sizes {
		prices[s] = row
	}
	return CatalogEntry{Name: name, Prices: prices}
}

func tiers(medium, above, high string) TierPrices {
	return TierPrices{
		TierMedium: amount(medium),
		TierAbove:  amount(above),
		TierHigh:   amount(high),
	}
}

func amount(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
