package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"movedesk/internal/contracts"
	"movedesk/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

const (
	dateLayout = "2006-01-02"
	xlsxType   = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

type createContractRequest struct {
	CustomerName    string          `json:"customer_name" binding:"required"`
	CustomerContact string          `json:"customer_contact"`
	ContractDate    string          `json:"contract_date" binding:"omitempty,datetime=2006-01-02"`
	FromAddress     string          `json:"from_address"`
	ToAddress       string          `json:"to_address"`
	DistanceKm      decimal.Decimal `json:"distance_km"`
	FromFloors      int             `json:"from_floors" binding:"min=0"`
	ToFloors        int             `json:"to_floors" binding:"min=0"`
	PriceTier       string          `json:"price_tier" binding:"omitempty,oneof=medium above high"`
	Notes           string          `json:"notes"`
	Items           []lineItem      `json:"items" binding:"dive"`
}

type listContractsQuery struct {
	Status string `form:"status"`
	Limit  int    `form:"limit" binding:"min=0"`
}

type updateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

type contractItemResponse struct {
	ID               int64           `json:"id"`
	ItemName         string          `json:"item_name"`
	Size             string          `json:"size"`
	Quantity         int             `json:"quantity"`
	UnitPrice        decimal.Decimal `json:"unit_price"`
	AssemblyPrice    decimal.Decimal `json:"assembly_price"`
	DisassemblyPrice decimal.Decimal `json:"disassembly_price"`
	TotalPrice       decimal.Decimal `json:"total_price"`
}

type contractResponse struct {
	ID              int64                  `json:"id"`
	Number          string                 `json:"contract_number"`
	CustomerName    string                 `json:"customer_name"`
	CustomerContact string                 `json:"customer_contact,omitempty"`
	ContractDate    string                 `json:"contract_date"`
	FromAddress     string                 `json:"from_address"`
	ToAddress       string                 `json:"to_address"`
	DistanceKm      decimal.Decimal        `json:"distance_km"`
	FromFloors      int                    `json:"from_floors"`
	ToFloors        int                    `json:"to_floors"`
	PriceTier       string                 `json:"price_tier"`
	Status          string                 `json:"status"`
	Notes           string                 `json:"notes,omitempty"`
	TotalPrice      decimal.Decimal        `json:"total_price"`
	CreatedAt       time.Time              `json:"created_at"`
	UpdatedAt       time.Time              `json:"updated_at"`
	Items           []contractItemResponse `json:"items,omitempty"`
}

func toContractResponse(c storage.Contract) contractResponse {
	resp := contractResponse{
		ID:              c.ID,
		Number:          c.Number,
		CustomerName:    c.CustomerName,
		CustomerContact: c.CustomerContact,
		ContractDate:    c.ContractDate.Format(dateLayout),
		FromAddress:     c.FromAddress,
		ToAddress:       c.ToAddress,
		DistanceKm:      c.DistanceKm,
		FromFloors:      c.FromFloors,
		ToFloors:        c.ToFloors,
		PriceTier:       c.PriceTier,
		Status:          c.Status,
		Notes:           c.Notes,
		TotalPrice:      c.TotalPrice,
		CreatedAt:       c.CreatedAt,
		UpdatedAt:       c.UpdatedAt,
	}
	for _, item := range c.Items {
		resp.Items = append(resp.Items, contractItemResponse{
			ID:               item.ID,
			ItemName:         item.ItemName,
			Size:             item.Size,
			Quantity:         item.Quantity,
			UnitPrice:        item.UnitPrice,
			AssemblyPrice:    item.AssemblyPrice,
			DisassemblyPrice: item.DisassemblyPrice,
			TotalPrice:       item.TotalPrice,
		})
	}
	return resp
}

func (s *Server) handleCreateContract(c *gin.Context) {
	var req createContractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}

	in := contracts.CreateInput{
		CustomerName:    req.CustomerName,
		CustomerContact: req.CustomerContact,
		FromAddress:     req.FromAddress,
		ToAddress:       req.ToAddress,
		DistanceKm:      req.DistanceKm,
		FromFloors:      req.FromFloors,
		ToFloors:        req.ToFloors,
		PriceTier:       req.PriceTier,
		Notes:           req.Notes,
	}
	if req.ContractDate != "" {
		// layout already checked by the binding
		in.ContractDate, _ = time.Parse(dateLayout, req.ContractDate)
	}
	for _, item := range req.Items {
		in.Items = append(in.Items, contracts.ItemInput{
			ItemName:    item.ItemName,
			Size:        item.Size,
			Quantity:    item.Quantity,
			Assembly:    item.Assembly,
			Disassembly: item.Disassembly,
		})
	}

	contract, err := s.contracts.Create(c.Request.Context(), in)
	if err != nil {
		s.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toContractResponse(*contract))
}

func (s *Server) handleListContracts(c *gin.Context) {
	var q listContractsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}

	list, err := s.contracts.List(c.Request.Context(), contracts.ListFilter{Status: q.Status, Limit: q.Limit})
	if err != nil {
		s.writeServiceError(c, err)
		return
	}

	resp := make([]contractResponse, 0, len(list))
	for _, contract := range list {
		resp = append(resp, toContractResponse(contract))
	}
	c.JSON(http.StatusOK, gin.H{"contracts": resp})
}

func (s *Server) handleGetContract(c *gin.Context) {
	id, ok := contractID(c)
	if !ok {
		return
	}

	contract, err := s.contracts.Get(c.Request.Context(), id)
	if err != nil {
		s.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, toContractResponse(*contract))
}

func (s *Server) handleUpdateContractStatus(c *gin.Context) {
	id, ok := contractID(c)
	if !ok {
		return
	}

	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.contracts.UpdateStatus(c.Request.Context(), id, req.Status); err != nil {
		s.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "status": req.Status})
}

func (s *Server) handleExportContract(c *gin.Context) {
	id, ok := contractID(c)
	if !ok {
		return
	}

	data, filename, err := s.contracts.Export(c.Request.Context(), id)
	if err != nil {
		s.writeServiceError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, xlsxType, data)
}

func contractID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(c, http.StatusBadRequest, "invalid contract id")
		return 0, false
	}
	return id, true
}
