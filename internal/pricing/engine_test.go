package pricing

import (
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func assertAmount(t *testing.T, want string, got decimal.Decimal, field string) {
	t.Helper()
	assert.Truef(t, dec(want).Equal(got), "%s: got %s, want %s", field, got, want)
}

func exampleSettings() RateSettings {
	return RateSettings{
		BaseFee:          dec("54.5"),
		PerKilometerFee:  dec("1.308"),
		PerFloorFee:      dec("8.72"),
		HourlyLaborRate:  dec("27.25"),
		DefaultTier:      TierMedium,
		SurchargePercent: decimal.Zero,
	}
}

func exampleRequest(assembly bool) QuoteRequest {
	return QuoteRequest{
		Items: []LineRequest{
			{ItemName: "Bed", Size: SizeM, Quantity: 1, Assembly: assembly},
		},
		Tier:              TierMedium,
		DistanceKm:        dec("10"),
		OriginFloors:      2,
		DestinationFloors: 3,
	}
}

func TestCalculate_WorkedExamples(t *testing.T) {
	tests := []struct {
		name          string
		assembly      bool
		lineTotal     string
		itemsSubtotal string
		subtotal      string
		tax           string
		total         string
	}{
		{
			name:          "bed without assembly",
			lineTotal:     "54.5",
			itemsSubtotal: "54.5",
			subtotal:      "165.68",
			tax:           "31.48",
			total:         "197.16",
		},
		{
			name:          "bed with assembly",
			assembly:      true,
			lineTotal:     "81.75",
			itemsSubtotal: "81.75",
			subtotal:      "192.93",
			tax:           "36.66",
			total:         "229.59",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := NewEngine(DefaultCatalog(), exampleSettings())

			q := engine.Calculate(exampleRequest(tt.assembly))

			assertAmount(t, "54.5", q.BaseFee, "base fee")
			assertAmount(t, "13.08", q.DistanceFee, "distance fee")
			assertAmount(t, "43.6", q.FloorFee, "floor fee")
			assertAmount(t, tt.itemsSubtotal, q.ItemsSubtotal, "items subtotal")
			assertAmount(t, tt.subtotal, q.Subtotal, "subtotal")
			assertAmount(t, tt.tax, q.Tax, "tax")
			assertAmount(t, tt.total, q.Total, "total")
			assert.Equal(t, TierMedium, q.Tier)

			require.Len(t, q.Lines, 1)
			line := q.Lines[0]
			assert.Equal(t, "Bed", line.ItemName)
			assert.Equal(t, SizeM, line.Size)
			assert.Equal(t, 1, line.Quantity)
			assertAmount(t, "54.5", line.UnitPrice, "unit price")
			assertAmount(t, tt.lineTotal, line.LineTotal, "line total")
		})
	}
}

func TestCalculate_Deterministic(t *testing.T) {
	engine := NewEngine(DefaultCatalog(), exampleSettings())
	req := exampleRequest(true)
	req.Items = append(req.Items,
		LineRequest{ItemName: "Sofa", Size: SizeXL, Quantity: 2, Disassembly: true},
		LineRequest{ItemName: "Boxes", Size: SizeL, Quantity: 30},
	)

	first := engine.Calculate(req)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, engine.Calculate(req))
	}
}

func TestCalculate_Additivity(t *testing.T) {
	engine := NewEngine(DefaultCatalog(), exampleSettings())
	items := []LineRequest{
		{ItemName: "Bed", Size: SizeL, Quantity: 1, Assembly: true, Disassembly: true},
		{ItemName: "Sofa", Size: SizeM, Quantity: 2},
		{ItemName: "Boxes", Size: SizeM, Quantity: 10},
		{ItemName: "Washing Machine", Size: SizeXXL, Quantity: 1, Assembly: true},
	}

	full := engine.Calculate(QuoteRequest{Items: items, Tier: TierAbove})

	sum := decimal.Zero
	for _, l := range full.Lines {
		sum = sum.Add(l.LineTotal)
	}
	assertAmount(t, full.ItemsSubtotal.String(), sum, "sum of line totals")

	for i := range items {
		rest := append(append([]LineRequest{}, items[:i]...), items[i+1:]...)
		partial := engine.Calculate(QuoteRequest{Items: rest, Tier: TierAbove})
		diff := full.ItemsSubtotal.Sub(partial.ItemsSubtotal)
		assertAmount(t, full.Lines[i].LineTotal.String(), diff, "omitted line "+items[i].ItemName)
	}
}

func TestCalculate_ZeroItems(t *testing.T) {
	settings := exampleSettings()
	settings.SurchargePercent = dec("10")
	engine := NewEngine(DefaultCatalog(), settings)

	q := engine.Calculate(QuoteRequest{DistanceKm: dec("10"), OriginFloors: 2, DestinationFloors: 3})

	assert.Empty(t, q.Lines)
	assertAmount(t, "0", q.ItemsSubtotal, "items subtotal")
	// (54.5 + 13.08 + 43.6) * 1.10
	assertAmount(t, "122.3", q.Subtotal, "subtotal")
	assertAmount(t, "23.24", q.Tax, "tax")
	assertAmount(t, "145.53", q.Total, "total")
}

func TestCalculate_RoundsOnceAtOutput(t *testing.T) {
	engine := NewEngine(DefaultCatalog(), RateSettings{
		BaseFee:         dec("0.004"),
		PerKilometerFee: dec("0.004"),
		PerFloorFee:     dec("0.004"),
		DefaultTier:     TierMedium,
	})

	q := engine.Calculate(QuoteRequest{DistanceKm: dec("1"), OriginFloors: 1})

	roundedParts := q.BaseFee.Add(q.DistanceFee).Add(q.FloorFee)
	assertAmount(t, "0", roundedParts, "sum of rounded parts")
	assertAmount(t, "0.01", q.Subtotal, "subtotal")
	assertAmount(t, "0.01", q.Total, "total")

	for _, v := range []decimal.Decimal{q.BaseFee, q.DistanceFee, q.FloorFee, q.ItemsSubtotal, q.Subtotal, q.Tax, q.Total} {
		assert.True(t, v.Equal(v.Round(2)), "%s has more than two decimals", v)
	}
}

func TestCalculate_TaxLaw(t *testing.T) {
	settings := exampleSettings()
	settings.SurchargePercent = dec("7.5")
	engine := NewEngine(DefaultCatalog(), settings)

	req := QuoteRequest{
		Items: []LineRequest{
			{ItemName: "Transport Service", Quantity: 37},
			{ItemName: "Heavy Item", Size: SizeXL, Quantity: 1, Disassembly: true},
		},
		Tier:              TierHigh,
		DistanceKm:        dec("23.7"),
		OriginFloors:      4,
		DestinationFloors: 1,
	}
	q := engine.Calculate(req)

	raw := settings.BaseFee.
		Add(dec("23.7").Mul(settings.PerKilometerFee)).
		Add(dec("5").Mul(settings.PerFloorFee)).
		Add(dec("1.635").Mul(dec("37"))).
		Add(dec("436").Add(dec("54.5")))
	raw = raw.Add(raw.Mul(dec("0.075")))

	assertAmount(t, raw.Round(2).String(), q.Subtotal, "subtotal")
	assertAmount(t, raw.Mul(VATRate).Round(2).String(), q.Tax, "tax")
	assertAmount(t, raw.Add(raw.Mul(VATRate)).Round(2).String(), q.Total, "total")
}

func TestCalculate_UnknownItemSkipped(t *testing.T) {
	engine := NewEngine(DefaultCatalog(), exampleSettings())

	with := engine.Calculate(QuoteRequest{Items: []LineRequest{
		{ItemName: "Bed"},
		{ItemName: "Grand Piano", Size: SizeXXL, Quantity: 3},
	}})
	without := engine.Calculate(QuoteRequest{Items: []LineRequest{{ItemName: "Bed"}}})

	require.Len(t, with.Lines, 1)
	assert.Equal(t, "Bed", with.Lines[0].ItemName)
	assert.Equal(t, without, with)
}

func TestCalculate_Defaults(t *testing.T) {
	settings := exampleSettings()
	settings.DefaultTier = TierHigh
	engine := NewEngine(DefaultCatalog(), settings)

	q := engine.Calculate(QuoteRequest{Items: []LineRequest{{ItemName: "Bed"}}})

	assert.Equal(t, TierHigh, q.Tier)
	require.Len(t, q.Lines, 1)
	assert.Equal(t, SizeM, q.Lines[0].Size)
	assert.Equal(t, 1, q.Lines[0].Quantity)
	assertAmount(t, "81.75", q.Lines[0].UnitPrice, "unit price")
	assertAmount(t, "0", q.Lines[0].AssemblyPrice, "assembly")
	assertAmount(t, "0", q.Lines[0].DisassemblyPrice, "disassembly")
}

func TestCalculate_MissingCellIsZero(t *testing.T) {
	catalog := NewCatalog(CatalogEntry{
		Name: "Piano",
		Prices: map[Size]TierPrices{
			SizeM: {TierMedium: dec("100")},
		},
		AssemblyFee: dec("10"),
	})
	engine := NewEngine(catalog, exampleSettings())

	q := engine.Calculate(QuoteRequest{
		Items: []LineRequest{{ItemName: "Piano", Size: SizeXL, Quantity: 2, Assembly: true}},
	})

	require.Len(t, q.Lines, 1)
	assertAmount(t, "0", q.Lines[0].UnitPrice, "unit price")
	assertAmount(t, "20", q.Lines[0].LineTotal, "line total")
}

func TestCalculateStrict(t *testing.T) {
	catalog := NewCatalog(CatalogEntry{
		Name:   "Piano",
		Prices: map[Size]TierPrices{SizeM: {TierMedium: dec("100")}},
	})
	engine := NewEngine(catalog, exampleSettings())

	t.Run("unknown item", func(t *testing.T) {
		_, err := engine.CalculateStrict(QuoteRequest{Items: []LineRequest{{ItemName: "Bed"}}})
		assert.True(t, errors.Is(err, ErrUnknownItem))
	})

	t.Run("missing cell", func(t *testing.T) {
		_, err := engine.CalculateStrict(QuoteRequest{
			Items: []LineRequest{{ItemName: "Piano", Size: SizeL}},
		})
		assert.True(t, errors.Is(err, ErrMissingPrice))
	})

	t.Run("valid request matches lenient", func(t *testing.T) {
		req := QuoteRequest{Items: []LineRequest{{ItemName: "Piano"}}, DistanceKm: dec("3")}
		q, err := engine.CalculateStrict(req)
		require.NoError(t, err)
		assert.Equal(t, engine.Calculate(req), q)
	})
}

func TestUpdateSettings_MergesFields(t *testing.T) {
	engine := NewEngine(DefaultCatalog(), DefaultSettings())
	tier := TierAbove

	got := engine.UpdateSettings(SettingsPatch{
		PerKilometerFee: decPtr("2"),
		DefaultTier:     &tier,
	})

	assertAmount(t, "54.5", got.BaseFee, "base fee")
	assertAmount(t, "2", got.PerKilometerFee, "per km")
	assertAmount(t, "8.72", got.PerFloorFee, "per floor")
	assertAmount(t, "27.25", got.HourlyLaborRate, "hourly")
	assert.Equal(t, TierAbove, got.DefaultTier)
	assert.Equal(t, got, engine.Settings())

	unchanged := engine.UpdateSettings(SettingsPatch{})
	assert.Equal(t, got, unchanged)
}

func TestCalculate_ObservesConsistentSnapshot(t *testing.T) {
	full := func(v string) SettingsPatch {
		return SettingsPatch{BaseFee: decPtr(v), PerKilometerFee: decPtr(v), PerFloorFee: decPtr(v)}
	}
	engine := NewEngine(DefaultCatalog(), full("1").Apply(DefaultSettings()))
	req := QuoteRequest{DistanceKm: dec("1"), OriginFloors: 1}

	stop := make(chan struct{})
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			if i%2 == 0 {
				engine.UpdateSettings(full("2"))
			} else {
				engine.UpdateSettings(full("1"))
			}
		}
	}()

	var readers sync.WaitGroup
	for r := 0; r < 4; r++ {
		readers.Add(1)
		go func() {
			defer readers.Done()
			for i := 0; i < 2000; i++ {
				q := engine.Calculate(req)
				if !q.BaseFee.Equal(q.DistanceFee) || !q.BaseFee.Equal(q.FloorFee) {
					t.Errorf("mixed snapshot: base=%s distance=%s floor=%s", q.BaseFee, q.DistanceFee, q.FloorFee)
					return
				}
			}
		}()
	}

	readers.Wait()
	close(stop)
	<-writerDone
}

func TestSettingsPatch_Validate(t *testing.T) {
	bad := Tier("premium")
	tests := []struct {
		name    string
		patch   SettingsPatch
		wantErr bool
	}{
		{name: "empty", patch: SettingsPatch{}},
		{name: "valid", patch: SettingsPatch{BaseFee: decPtr("10"), SurchargePercent: decPtr("100")}},
		{name: "negative fee", patch: SettingsPatch{PerFloorFee: decPtr("-0.01")}, wantErr: true},
		{name: "surcharge above 100", patch: SettingsPatch{SurchargePercent: decPtr("100.5")}, wantErr: true},
		{name: "unknown tier", patch: SettingsPatch{DefaultTier: &bad}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.patch.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCatalog(t *testing.T) {
	engine := NewEngine(nil, DefaultSettings())

	names := engine.ItemNames()
	assert.Equal(t, []string{
		"Bed", "Sofa", "Kitchen Cabinet", "Washing Machine", "Boxes",
		"Heavy Item", "Transport Service", "Floor Surcharge", "Labor Hour",
	}, names)

	names[0] = "mutated"
	assert.Equal(t, "Bed", engine.ItemNames()[0])

	for _, name := range engine.ItemNames() {
		entry, ok := engine.Entry(name)
		require.True(t, ok, name)
		for _, size := range Sizes {
			for _, tier := range Tiers {
				_, found := entry.UnitPrice(size, tier)
				assert.True(t, found, "%s %s/%s", name, size, tier)
			}
		}
	}

	_, ok := engine.Entry("Grand Piano")
	assert.False(t, ok)
}
