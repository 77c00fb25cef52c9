package pricing

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/shopspring/decimal"
)

const outputPlaces = 2

var hundred = decimal.NewFromInt(100)

// Engine computes itemized moving quotes. Settings are swapped as whole
// snapshots, so a calculation never sees a half-applied update.
type Engine struct {
	catalog  *Catalog
	settings atomic.Pointer[RateSettings]
	writeMu  sync.Mutex
}

func NewEngine(catalog *Catalog, settings RateSettings) *Engine {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	e := &Engine{catalog: catalog}
	e.settings.Store(&settings)
	return e
}

func (e *Engine) Settings() RateSettings {
	return *e.settings.Load()
}

// UpdateSettings merges patch over the current settings without validating it.
func (e *Engine) UpdateSettings(patch SettingsPatch) RateSettings {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	next := patch.Apply(*e.settings.Load())
	e.settings.Store(&next)
	return next
}

func (e *Engine) ItemNames() []string {
	return e.catalog.Names()
}

func (e *Engine) Entry(name string) (CatalogEntry, bool) {
	return e.catalog.Entry(name)
}

// Calculate never fails: unknown items are dropped and missing price cells count as zero.
func (e *Engine) Calculate(req QuoteRequest) Quote {
	q, _ := e.calculate(req, false)
	return q
}

// CalculateStrict rejects the whole request on an unknown item or a missing price cell.
func (e *Engine) CalculateStrict(req QuoteRequest) (Quote, error) {
	return e.calculate(req, true)
}

func (e *Engine) calculate(req QuoteRequest, strict bool) (Quote, error) {
	s := e.settings.Load()

	tier := req.Tier
	if tier == "" {
		tier = s.DefaultTier
	}

	baseFee := s.BaseFee
	distanceFee := req.DistanceKm.Mul(s.PerKilometerFee)
	floors := decimal.NewFromInt(int64(req.OriginFloors + req.DestinationFloors))
	floorFee := floors.Mul(s.PerFloorFee)

	itemsSubtotal := decimal.Zero
	lines := make([]LineResult, 0, len(req.Items))

	for i, item := range req.Items {
		entry, ok := e.catalog.Entry(item.ItemName)
		if !ok {
			if strict {
				return Quote{}, fmt.Errorf("line %d %q: %w", i, item.ItemName, ErrUnknownItem)
			}
			continue
		}

		size := item.Size
		if size == "" {
			size = SizeM
		}
		quantity := item.Quantity
		if quantity == 0 {
			quantity = 1
		}

		unitPrice, found := entry.UnitPrice(size, tier)
		if !found && strict {
			return Quote{}, fmt.Errorf("line %d %q %s/%s: %w", i, item.ItemName, size, tier, ErrMissingPrice)
		}

		assembly := decimal.Zero
		if item.Assembly {
			assembly = entry.AssemblyFee
		}
		disassembly := decimal.Zero
		if item.Disassembly {
			disassembly = entry.DisassemblyFee
		}

		lineTotal := unitPrice.Add(assembly).Add(disassembly).Mul(decimal.NewFromInt(int64(quantity)))
		itemsSubtotal = itemsSubtotal.Add(lineTotal)

		lines = append(lines, LineResult{
			ItemName:         item.ItemName,
			Size:             size,
			Quantity:         quantity,
			UnitPrice:        round(unitPrice),
			AssemblyPrice:    round(assembly),
			DisassemblyPrice: round(disassembly),
			LineTotal:        round(lineTotal),
		})
	}

	subtotal := baseFee.Add(distanceFee).Add(floorFee).Add(itemsSubtotal)
	surcharge := subtotal.Mul(s.SurchargePercent.Div(hundred))
	subtotal = subtotal.Add(surcharge)

	tax := subtotal.Mul(VATRate)
	total := subtotal.Add(tax)

	return Quote{
		BaseFee:       round(baseFee),
		DistanceFee:   round(distanceFee),
		FloorFee:      round(floorFee),
		ItemsSubtotal: round(itemsSubtotal),
		Lines:         lines,
		Subtotal:      round(subtotal),
		Tax:           round(tax),
		Total:         round(total),
		Tier:          tier,
	}, nil
}

func round(d decimal.Decimal) decimal.Decimal {
	return d.Round(outputPlaces)
}
