package httpapi

import (
	"net/http"

	"movedesk/internal/metrics"
	"movedesk/internal/pricing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type lineItem struct {
	ItemName    string `json:"item_name" binding:"required"`
	Size        string `json:"size" binding:"omitempty,oneof=M L XL XXL"`
	Quantity    *int   `json:"quantity" binding:"omitempty,min=1"`
	Assembly    bool   `json:"assembly"`
	Disassembly bool   `json:"disassembly"`
}

// quantity reports 0 for an omitted quantity; the engine prices that as one unit.
func (i lineItem) quantity() int {
	if i.Quantity == nil {
		return 0
	}
	return *i.Quantity
}

type quoteRequest struct {
	Items      []lineItem      `json:"items" binding:"required,min=1,dive"`
	PriceTier  string          `json:"price_tier" binding:"omitempty,oneof=medium above high"`
	DistanceKm decimal.Decimal `json:"distance_km"`
	FromFloors int             `json:"from_floors" binding:"min=0"`
	ToFloors   int             `json:"to_floors" binding:"min=0"`
}

func (s *Server) handleQuote(c *gin.Context) {
	var req quoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	if req.DistanceKm.IsNegative() {
		writeError(c, http.StatusBadRequest, "distance_km must not be negative")
		return
	}

	lines := make([]pricing.LineRequest, 0, len(req.Items))
	for _, item := range req.Items {
		lines = append(lines, pricing.LineRequest{
			ItemName:    item.ItemName,
			Size:        pricing.Size(item.Size),
			Quantity:    item.quantity(),
			Assembly:    item.Assembly,
			Disassembly: item.Disassembly,
		})
	}

	quote, err := s.calculate(pricing.QuoteRequest{
		Items:             lines,
		Tier:              pricing.Tier(req.PriceTier),
		DistanceKm:        req.DistanceKm,
		OriginFloors:      req.FromFloors,
		DestinationFloors: req.ToFloors,
	})
	metrics.RecordQuote("api", len(quote.Lines), err)
	if err != nil {
		s.writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, quote)
}

func (s *Server) calculate(req pricing.QuoteRequest) (pricing.Quote, error) {
	if s.strict {
		return s.engine.CalculateStrict(req)
	}
	return s.engine.Calculate(req), nil
}

func (s *Server) handleGetSettings(c *gin.Context) {
	c.JSON(http.StatusOK, s.settings.Get())
}

func (s *Server) handleUpdateSettings(c *gin.Context) {
	var patch pricing.SettingsPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}

	updated, err := s.settings.Update(c.Request.Context(), patch)
	if err != nil {
		s.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (s *Server) handleCatalog(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"items": s.engine.ItemNames()})
}

func (s *Server) handleCatalogEntry(c *gin.Context) {
	entry, ok := s.engine.Entry(c.Param("name"))
	if !ok {
		writeError(c, http.StatusNotFound, "unknown catalog item")
		return
	}
	c.JSON(http.StatusOK, entry)
}
