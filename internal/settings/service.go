package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"movedesk/internal/pricing"
	"movedesk/internal/storage"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const ChangedChannel = "movedesk:pricing-settings"

var ErrInvalidInput = errors.New("invalid input")

const (
	KeyBaseFee          = "base_fee"
	KeyPerKilometerFee  = "per_kilometer_fee"
	KeyPerFloorFee      = "per_floor_fee"
	KeyHourlyLaborRate  = "hourly_labor_rate"
	KeyDefaultTier      = "default_price_tier"
	KeySurchargePercent = "surcharge_percent"
)

type Store interface {
	GetPricingSettings(ctx context.Context) ([]storage.Setting, error)
	SavePricingSettings(ctx context.Context, settings []storage.Setting) error
}

type Bus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

type changedEvent struct {
	Origin string `json:"origin"`
}

// Service keeps the engine settings in sync with the persisted key/value table.
type Service struct {
	engine   *pricing.Engine
	store    Store
	bus      Bus
	logger   *zap.Logger
	instance string

	// mu keeps the persisted table and the engine snapshot moving together.
	mu sync.Mutex
}

func NewService(engine *pricing.Engine, store Store, bus Bus, logger *zap.Logger) *Service {
	return &Service{
		engine:   engine,
		store:    store,
		bus:      bus,
		logger:   logger,
		instance: uuid.NewString(),
	}
}

func (s *Service) Get() pricing.RateSettings {
	return s.engine.Settings()
}

// Load applies persisted settings to the engine. An empty table keeps the defaults.
func (s *Service) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.store.GetPricingSettings(ctx)
	if err != nil {
		return fmt.Errorf("load pricing settings: %w", err)
	}
	if len(rows) == 0 {
		s.logger.Info("No persisted pricing settings, using defaults")
		return nil
	}

	patch := s.patchFromRows(rows)
	if err := patch.Validate(); err != nil {
		return fmt.Errorf("persisted pricing settings: %w", err)
	}
	s.engine.UpdateSettings(patch)

	s.logger.Info("Pricing settings loaded", zap.Int("keys", len(rows)))
	return nil
}

func (s *Service) Update(ctx context.Context, patch pricing.SettingsPatch) (pricing.RateSettings, error) {
	if patch.Empty() {
		return pricing.RateSettings{}, fmt.Errorf("%w: no settings given", ErrInvalidInput)
	}
	if err := patch.Validate(); err != nil {
		return pricing.RateSettings{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	updated, err := s.apply(ctx, patch)
	if err != nil {
		return pricing.RateSettings{}, err
	}
	s.publishChanged(ctx)

	s.logger.Info("Pricing settings updated",
		zap.String("base_fee", updated.BaseFee.String()),
		zap.String("per_kilometer_fee", updated.PerKilometerFee.String()),
		zap.String("per_floor_fee", updated.PerFloorFee.String()),
		zap.String("default_price_tier", string(updated.DefaultTier)),
		zap.String("surcharge_percent", updated.SurchargePercent.String()))
	return updated, nil
}

func (s *Service) apply(ctx context.Context, patch pricing.SettingsPatch) (pricing.RateSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.SavePricingSettings(ctx, rowsFromPatch(patch)); err != nil {
		return pricing.RateSettings{}, fmt.Errorf("save pricing settings: %w", err)
	}
	return s.engine.UpdateSettings(patch), nil
}

// Watch reloads settings whenever another instance announces a change.
// It blocks until ctx is done.
func (s *Service) Watch(ctx context.Context) error {
	if s.bus == nil {
		<-ctx.Done()
		return nil
	}

	events, err := s.bus.Subscribe(ctx, ChangedChannel)
	if err != nil {
		return fmt.Errorf("watch pricing settings: %w", err)
	}

	for payload := range events {
		var ev changedEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			s.logger.Warn("Malformed settings event", zap.ByteString("payload", payload), zap.Error(err))
			continue
		}
		if ev.Origin == s.instance {
			continue
		}
		if err := s.Load(ctx); err != nil {
			s.logger.Error("Failed to reload pricing settings",
				zap.String("origin", ev.Origin),
				zap.Error(err))
			continue
		}
		s.logger.Info("Pricing settings reloaded", zap.String("origin", ev.Origin))
	}
	return nil
}

func (s *Service) publishChanged(ctx context.Context) {
	if s.bus == nil {
		return
	}
	payload, _ := json.Marshal(changedEvent{Origin: s.instance})
	if err := s.bus.Publish(ctx, ChangedChannel, payload); err != nil {
		s.logger.Warn("Failed to publish settings change", zap.Error(err))
	}
}

func (s *Service) patchFromRows(rows []storage.Setting) pricing.SettingsPatch {
	var patch pricing.SettingsPatch

	for _, row := range rows {
		if row.Key == KeyDefaultTier {
			tier, err := pricing.ParseTier(row.Value)
			if err != nil {
				s.logger.Warn("Ignoring persisted setting", zap.String("key", row.Key), zap.Error(err))
				continue
			}
			patch.DefaultTier = &tier
			continue
		}

		target := moneyField(&patch, row.Key)
		if target == nil {
			s.logger.Warn("Unknown persisted setting", zap.String("key", row.Key))
			continue
		}
		v, err := decimal.NewFromString(row.Value)
		if err != nil {
			s.logger.Warn("Ignoring persisted setting", zap.String("key", row.Key), zap.Error(err))
			continue
		}
		*target = &v
	}
	return patch
}

func moneyField(p *pricing.SettingsPatch, key string) **decimal.Decimal {
	switch key {
	case KeyBaseFee:
		return &p.BaseFee
	case KeyPerKilometerFee:
		return &p.PerKilometerFee
	case KeyPerFloorFee:
		return &p.PerFloorFee
	case KeyHourlyLaborRate:
		return &p.HourlyLaborRate
	case KeySurchargePercent:
		return &p.SurchargePercent
	}
	return nil
}

func rowsFromPatch(p pricing.SettingsPatch) []storage.Setting {
	var rows []storage.Setting
	add := func(key, value string) {
		rows = append(rows, storage.Setting{Key: key, Value: value, Description: "setting: " + key})
	}

	for _, key := range []string{KeyBaseFee, KeyPerKilometerFee, KeyPerFloorFee, KeyHourlyLaborRate} {
		if v := *moneyField(&p, key); v != nil {
			add(key, v.String())
		}
	}
	if p.DefaultTier != nil {
		add(KeyDefaultTier, string(*p.DefaultTier))
	}
	if p.SurchargePercent != nil {
		add(KeySurchargePercent, p.SurchargePercent.String())
	}
	return rows
}
