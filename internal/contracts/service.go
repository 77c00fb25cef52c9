package contracts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"movedesk/internal/metrics"
	"movedesk/internal/pricing"
	"movedesk/internal/storage"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var ErrInvalidInput = errors.New("invalid input")

const (
	StatusDraft     = "draft"
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

var Statuses = []string{StatusDraft, StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled}

const (
	DefaultListLimit = 15
	MaxListLimit     = 100
)

// distance_km is NUMERIC(10,3) in storage.
const distanceScale = 3

var maxDistanceKm = decimal.RequireFromString("9999999.999")

const (
	cacheKeyPrefix  = "movedesk:contract:"
	defaultCacheTTL = 10 * time.Minute
)

type Repository interface {
	SaveContract(ctx context.Context, c *storage.Contract) (int64, error)
	GetContract(ctx context.Context, id int64) (*storage.Contract, error)
	ListContracts(ctx context.Context, status string, limit int) ([]storage.Contract, error)
	UpdateContractStatus(ctx context.Context, id int64, status string) error
}

type Notifier interface {
	NotifyNewContract(ctx context.Context, c storage.Contract)
}

// Cache holds serialized contracts. Get reports a miss as nil data and nil error.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

type ItemInput struct {
	ItemName    string
	Size        string
	Quantity    *int // nil means one unit
	Assembly    bool
	Disassembly bool
}

type CreateInput struct {
	CustomerName    string
	CustomerContact string
	ContractDate    time.Time // zero means today
	FromAddress     string
	ToAddress       string
	DistanceKm      decimal.Decimal
	FromFloors      int
	ToFloors        int
	PriceTier       string // empty selects the settings default
	Notes           string
	Items           []ItemInput
}

type ListFilter struct {
	Status string
	Limit  int
}

type Service struct {
	engine   *pricing.Engine
	repo     Repository
	notifier Notifier
	strict   bool
	logger   *zap.Logger

	cache    Cache
	cacheTTL time.Duration

	now    func() time.Time
	suffix func() int
}

func NewService(engine *pricing.Engine, repo Repository, notifier Notifier, strict bool, logger *zap.Logger) *Service {
	return &Service{
		engine:   engine,
		repo:     repo,
		notifier: notifier,
		strict:   strict,
		logger:   logger,
		now:      time.Now,
		suffix:   func() int { return 1000 + rand.IntN(9000) },
	}
}

// WithCache enables cache-aside reads of single contracts.
func (s *Service) WithCache(cache Cache, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	s.cache = cache
	s.cacheTTL = ttl
	return s
}

func (s *Service) Create(ctx context.Context, in CreateInput) (*storage.Contract, error) {
	const operation = "contracts.Create"

	req, err := s.quoteRequest(in)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", operation, err)
	}

	now := s.now()
	contractDate := in.ContractDate
	if contractDate.IsZero() {
		contractDate = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	}

	c := &storage.Contract{
		Number:          s.newNumber(now),
		CustomerName:    strings.TrimSpace(in.CustomerName),
		CustomerContact: strings.TrimSpace(in.CustomerContact),
		ContractDate:    contractDate,
		FromAddress:     strings.TrimSpace(in.FromAddress),
		ToAddress:       strings.TrimSpace(in.ToAddress),
		DistanceKm:      in.DistanceKm,
		FromFloors:      in.FromFloors,
		ToFloors:        in.ToFloors,
		PriceTier:       string(req.Tier),
		Status:          StatusDraft,
		Notes:           in.Notes,
		TotalPrice:      decimal.Zero,
		CreatedAt:       now,
	}

	if len(req.Items) > 0 {
		quote, err := s.calculate(req)
		metrics.RecordQuote("contract", len(quote.Lines), err)
		if err != nil {
			return nil, fmt.Errorf("%s: %w: %v", operation, ErrInvalidInput, err)
		}

		c.TotalPrice = quote.Total
		c.Items = make([]storage.ContractItem, 0, len(quote.Lines))
		for _, line := range quote.Lines {
			c.Items = append(c.Items, storage.ContractItem{
				ItemName:         line.ItemName,
				Size:             string(line.Size),
				Quantity:         line.Quantity,
				UnitPrice:        line.UnitPrice,
				AssemblyPrice:    line.AssemblyPrice,
				DisassemblyPrice: line.DisassemblyPrice,
				TotalPrice:       line.LineTotal,
			})
		}
	}

	if _, err := s.repo.SaveContract(ctx, c); err != nil {
		return nil, fmt.Errorf("%s: %w", operation, err)
	}
	metrics.RecordContractCreated()

	s.logger.Info("Contract created",
		zap.Int64("contract_id", c.ID),
		zap.String("contract_number", c.Number),
		zap.String("price_tier", c.PriceTier),
		zap.String("total_price", c.TotalPrice.StringFixed(2)))

	if s.notifier != nil {
		go s.notifier.NotifyNewContract(context.WithoutCancel(ctx), *c)
	}
	return c, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*storage.Contract, error) {
	if c := s.cached(ctx, id); c != nil {
		return c, nil
	}

	c, err := s.repo.GetContract(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("contracts.Get: %w", err)
	}
	s.store(ctx, c)
	return c, nil
}

func cacheKey(id int64) string {
	return fmt.Sprintf("%s%d", cacheKeyPrefix, id)
}

func (s *Service) cached(ctx context.Context, id int64) *storage.Contract {
	if s.cache == nil {
		return nil
	}

	data, err := s.cache.Get(ctx, cacheKey(id))
	if err != nil {
		s.logger.Warn("Contract cache read failed", zap.Int64("contract_id", id), zap.Error(err))
		return nil
	}
	if data == nil {
		return nil
	}

	var c storage.Contract
	if err := json.Unmarshal(data, &c); err != nil {
		s.logger.Warn("Dropping malformed cached contract", zap.Int64("contract_id", id), zap.Error(err))
		s.invalidate(ctx, id)
		return nil
	}
	return &c
}

func (s *Service) store(ctx context.Context, c *storage.Contract) {
	if s.cache == nil {
		return
	}

	data, err := json.Marshal(c)
	if err != nil {
		s.logger.Warn("Failed to encode contract for cache", zap.Int64("contract_id", c.ID), zap.Error(err))
		return
	}
	if err := s.cache.Set(ctx, cacheKey(c.ID), data, s.cacheTTL); err != nil {
		s.logger.Warn("Contract cache write failed", zap.Int64("contract_id", c.ID), zap.Error(err))
	}
}

func (s *Service) invalidate(ctx context.Context, id int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, cacheKey(id)); err != nil {
		s.logger.Warn("Contract cache invalidation failed", zap.Int64("contract_id", id), zap.Error(err))
	}
}

func (s *Service) List(ctx context.Context, f ListFilter) ([]storage.Contract, error) {
	const operation = "contracts.List"

	if f.Status != "" && !validStatus(f.Status) {
		return nil, fmt.Errorf("%s: %w: unknown status %q", operation, ErrInvalidInput, f.Status)
	}

	limit := f.Limit
	switch {
	case limit < 0:
		return nil, fmt.Errorf("%s: %w: limit must be positive", operation, ErrInvalidInput)
	case limit == 0:
		limit = DefaultListLimit
	case limit > MaxListLimit:
		limit = MaxListLimit
	}

	list, err := s.repo.ListContracts(ctx, f.Status, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", operation, err)
	}
	return list, nil
}

func (s *Service) UpdateStatus(ctx context.Context, id int64, status string) error {
	const operation = "contracts.UpdateStatus"

	if !validStatus(status) {
		return fmt.Errorf("%s: %w: unknown status %q", operation, ErrInvalidInput, status)
	}
	if err := s.repo.UpdateContractStatus(ctx, id, status); err != nil {
		return fmt.Errorf("%s: %w", operation, err)
	}
	s.invalidate(ctx, id)

	s.logger.Info("Contract status updated",
		zap.Int64("contract_id", id),
		zap.String("status", status))
	return nil
}

// Export renders the contract as an xlsx workbook and suggests a file name for it.
func (s *Service) Export(ctx context.Context, id int64) ([]byte, string, error) {
	const operation = "contracts.Export"

	c, err := s.Get(ctx, id)
	if err != nil {
		return nil, "", fmt.Errorf("%s: %w", operation, err)
	}

	data, err := storage.ExportContractToExcel(*c)
	if err != nil {
		return nil, "", fmt.Errorf("%s: %w", operation, err)
	}
	return data, c.Number + ".xlsx", nil
}

func (s *Service) quoteRequest(in CreateInput) (pricing.QuoteRequest, error) {
	if strings.TrimSpace(in.CustomerName) == "" {
		return pricing.QuoteRequest{}, fmt.Errorf("%w: customer name is required", ErrInvalidInput)
	}
	if in.DistanceKm.IsNegative() {
		return pricing.QuoteRequest{}, fmt.Errorf("%w: distance must not be negative", ErrInvalidInput)
	}
	if !in.DistanceKm.Equal(in.DistanceKm.Round(distanceScale)) {
		return pricing.QuoteRequest{}, fmt.Errorf("%w: distance allows at most %d decimal places", ErrInvalidInput, distanceScale)
	}
	if in.DistanceKm.GreaterThan(maxDistanceKm) {
		return pricing.QuoteRequest{}, fmt.Errorf("%w: distance exceeds %s km", ErrInvalidInput, maxDistanceKm)
	}
	if in.FromFloors < 0 || in.ToFloors < 0 {
		return pricing.QuoteRequest{}, fmt.Errorf("%w: floors must not be negative", ErrInvalidInput)
	}

	tier := s.engine.Settings().DefaultTier
	if in.PriceTier != "" {
		t, err := pricing.ParseTier(in.PriceTier)
		if err != nil {
			return pricing.QuoteRequest{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		tier = t
	}

	items := make([]pricing.LineRequest, 0, len(in.Items))
	for i, item := range in.Items {
		line, err := lineRequest(item)
		if err != nil {
			return pricing.QuoteRequest{}, fmt.Errorf("%w: item %d: %v", ErrInvalidInput, i, err)
		}
		items = append(items, line)
	}

	return pricing.QuoteRequest{
		Items:             items,
		Tier:              tier,
		DistanceKm:        in.DistanceKm,
		OriginFloors:      in.FromFloors,
		DestinationFloors: in.ToFloors,
	}, nil
}

func lineRequest(item ItemInput) (pricing.LineRequest, error) {
	if strings.TrimSpace(item.ItemName) == "" {
		return pricing.LineRequest{}, errors.New("item name is required")
	}
	quantity := 1
	if item.Quantity != nil {
		if *item.Quantity < 1 {
			return pricing.LineRequest{}, errors.New("quantity must be at least 1")
		}
		quantity = *item.Quantity
	}

	size := pricing.SizeM
	if item.Size != "" {
		s, err := pricing.ParseSize(item.Size)
		if err != nil {
			return pricing.LineRequest{}, err
		}
		size = s
	}

	return pricing.LineRequest{
		ItemName:    item.ItemName,
		Size:        size,
		Quantity:    quantity,
		Assembly:    item.Assembly,
		Disassembly: item.Disassembly,
	}, nil
}

func (s *Service) calculate(req pricing.QuoteRequest) (pricing.Quote, error) {
	if s.strict {
		return s.engine.CalculateStrict(req)
	}
	return s.engine.Calculate(req), nil
}

func (s *Service) newNumber(now time.Time) string {
	return fmt.Sprintf("CT-%s-%04d", now.Format("20060102"), s.suffix())
}

func validStatus(status string) bool {
	for _, st := range Statuses {
		if st == status {
			return true
		}
	}
	return false
}
