package contracts

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"movedesk/internal/pricing"
	"movedesk/internal/storage"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeRepo struct {
	saved     []storage.Contract
	saveErr   error
	contracts map[int64]*storage.Contract

	listStatus string
	listLimit  int

	statusID int64
	status   string
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{contracts: map[int64]*storage.Contract{}}
}

func (r *fakeRepo) SaveContract(ctx context.Context, c *storage.Contract) (int64, error) {
	if r.saveErr != nil {
		return 0, r.saveErr
	}
	c.ID = int64(len(r.saved) + 1)
	r.saved = append(r.saved, *c)
	r.contracts[c.ID] = c
	return c.ID, nil
}

func (r *fakeRepo) GetContract(ctx context.Context, id int64) (*storage.Contract, error) {
	c, ok := r.contracts[id]
	if !ok {
		return nil, fmt.Errorf("contract %d: %w", id, storage.ErrNotFound)
	}
	return c, nil
}

func (r *fakeRepo) ListContracts(ctx context.Context, status string, limit int) ([]storage.Contract, error) {
	r.listStatus, r.listLimit = status, limit
	return []storage.Contract{}, nil
}

func (r *fakeRepo) UpdateContractStatus(ctx context.Context, id int64, status string) error {
	if _, ok := r.contracts[id]; !ok {
		return storage.ErrNotFound
	}
	r.statusID, r.status = id, status
	return nil
}

type fakeCache struct {
	mu     sync.Mutex
	data   map[string][]byte
	ttl    time.Duration
	getErr error
}

func newFakeCache() *fakeCache {
	return &fakeCache{data: map[string][]byte{}}
}

func (f *fakeCache) Get(ctx context.Context, key string) ([]byte, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.data[key], nil
}

func (f *fakeCache) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = data
	f.ttl = ttl
	return nil
}

func (f *fakeCache) Del(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.data, key)
	return nil
}

type chanNotifier chan storage.Contract

func (n chanNotifier) NotifyNewContract(ctx context.Context, c storage.Contract) {
	n <- c
}

func newTestService(repo Repository, notifier Notifier, strict bool) *Service {
	engine := pricing.NewEngine(pricing.DefaultCatalog(), pricing.DefaultSettings())
	svc := NewService(engine, repo, notifier, strict, zap.NewNop())
	svc.now = func() time.Time { return time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC) }
	svc.suffix = func() int { return 4821 }
	return svc
}

func qty(n int) *int { return &n }

func validInput() CreateInput {
	return CreateInput{
		CustomerName: " Jana Weber ",
		FromAddress:  "Hauptstr. 1",
		ToAddress:    "Ringweg 9",
		DistanceKm:   decimal.NewFromInt(10),
		FromFloors:   2,
		ToFloors:     3,
		Items: []ItemInput{
			{ItemName: "Bed", Size: "M", Quantity: qty(1), Assembly: true},
		},
	}
}

func TestCreate(t *testing.T) {
	t.Run("prices and persists contract", func(t *testing.T) {
		repo := newFakeRepo()
		notified := make(chanNotifier, 1)
		svc := newTestService(repo, notified, false)

		c, err := svc.Create(context.Background(), validInput())
		require.NoError(t, err)

		assert.Equal(t, int64(1), c.ID)
		assert.Equal(t, "CT-20260302-4821", c.Number)
		assert.Equal(t, "Jana Weber", c.CustomerName)
		assert.Equal(t, StatusDraft, c.Status)
		assert.Equal(t, "medium", c.PriceTier)
		assert.Equal(t, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), c.ContractDate)
		assert.True(t, c.TotalPrice.Equal(decimal.RequireFromString("229.59")), c.TotalPrice.String())

		require.Len(t, c.Items, 1)
		item := c.Items[0]
		assert.Equal(t, "Bed", item.ItemName)
		assert.Equal(t, "M", item.Size)
		assert.True(t, item.UnitPrice.Equal(decimal.RequireFromString("54.5")))
		assert.True(t, item.AssemblyPrice.Equal(decimal.RequireFromString("27.25")))
		assert.True(t, item.TotalPrice.Equal(decimal.RequireFromString("81.75")))

		require.Len(t, repo.saved, 1)

		select {
		case got := <-notified:
			assert.Equal(t, c.Number, got.Number)
		case <-time.After(time.Second):
			t.Fatal("staff notification not sent")
		}
	})

	t.Run("omitted quantity prices one unit", func(t *testing.T) {
		svc := newTestService(newFakeRepo(), nil, false)
		in := validInput()
		in.Items[0].Quantity = nil

		c, err := svc.Create(context.Background(), in)
		require.NoError(t, err)
		require.Len(t, c.Items, 1)
		assert.Equal(t, 1, c.Items[0].Quantity)
		assert.True(t, c.TotalPrice.Equal(decimal.RequireFromString("229.59")), c.TotalPrice.String())
	})

	t.Run("distance with three decimals is kept as given", func(t *testing.T) {
		svc := newTestService(newFakeRepo(), nil, false)
		in := validInput()
		in.DistanceKm = decimal.RequireFromString("10.125")

		c, err := svc.Create(context.Background(), in)
		require.NoError(t, err)
		assert.True(t, c.DistanceKm.Equal(decimal.RequireFromString("10.125")))
	})

	t.Run("no items leaves total at zero", func(t *testing.T) {
		repo := newFakeRepo()
		svc := newTestService(repo, nil, false)
		in := validInput()
		in.Items = nil
		in.PriceTier = "high"

		c, err := svc.Create(context.Background(), in)
		require.NoError(t, err)
		assert.True(t, c.TotalPrice.IsZero())
		assert.Empty(t, c.Items)
		assert.Equal(t, "high", c.PriceTier)
	})

	t.Run("unknown item dropped in lenient mode", func(t *testing.T) {
		svc := newTestService(newFakeRepo(), nil, false)
		in := validInput()
		in.Items = append(in.Items, ItemInput{ItemName: "Piano", Quantity: qty(1)})

		c, err := svc.Create(context.Background(), in)
		require.NoError(t, err)
		assert.Len(t, c.Items, 1)
	})

	t.Run("unknown item rejected in strict mode", func(t *testing.T) {
		repo := newFakeRepo()
		svc := newTestService(repo, nil, true)
		in := validInput()
		in.Items = append(in.Items, ItemInput{ItemName: "Piano", Quantity: qty(1)})

		_, err := svc.Create(context.Background(), in)
		assert.True(t, errors.Is(err, ErrInvalidInput))
		assert.Empty(t, repo.saved)
	})

	t.Run("invalid input", func(t *testing.T) {
		tests := []struct {
			name   string
			mutate func(*CreateInput)
		}{
			{"missing customer", func(in *CreateInput) { in.CustomerName = "  " }},
			{"negative distance", func(in *CreateInput) { in.DistanceKm = decimal.NewFromInt(-1) }},
			{"negative floors", func(in *CreateInput) { in.ToFloors = -1 }},
			{"unknown tier", func(in *CreateInput) { in.PriceTier = "premium" }},
			{"unknown size", func(in *CreateInput) { in.Items[0].Size = "S" }},
			{"zero quantity", func(in *CreateInput) { in.Items[0].Quantity = qty(0) }},
			{"negative quantity", func(in *CreateInput) { in.Items[0].Quantity = qty(-2) }},
			{"distance finer than metres", func(in *CreateInput) { in.DistanceKm = decimal.RequireFromString("10.1234") }},
			{"distance beyond column range", func(in *CreateInput) { in.DistanceKm = decimal.RequireFromString("10000000") }},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				repo := newFakeRepo()
				svc := newTestService(repo, nil, false)
				in := validInput()
				tt.mutate(&in)

				_, err := svc.Create(context.Background(), in)
				assert.True(t, errors.Is(err, ErrInvalidInput), "got %v", err)
				assert.Empty(t, repo.saved)
			})
		}
	})

	t.Run("repository failure", func(t *testing.T) {
		repo := newFakeRepo()
		repo.saveErr = errors.New("db down")
		svc := newTestService(repo, nil, false)

		_, err := svc.Create(context.Background(), validInput())
		assert.ErrorContains(t, err, "db down")
	})
}

func TestList(t *testing.T) {
	tests := []struct {
		name      string
		filter    ListFilter
		wantLimit int
		wantErr   bool
	}{
		{name: "default limit", filter: ListFilter{}, wantLimit: DefaultListLimit},
		{name: "explicit limit", filter: ListFilter{Status: StatusPending, Limit: 40}, wantLimit: 40},
		{name: "capped limit", filter: ListFilter{Limit: 500}, wantLimit: MaxListLimit},
		{name: "negative limit", filter: ListFilter{Limit: -1}, wantErr: true},
		{name: "unknown status", filter: ListFilter{Status: "archived"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newFakeRepo()
			svc := newTestService(repo, nil, false)

			_, err := svc.List(context.Background(), tt.filter)
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrInvalidInput))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantLimit, repo.listLimit)
			assert.Equal(t, tt.filter.Status, repo.listStatus)
		})
	}
}

func TestUpdateStatus(t *testing.T) {
	repo := newFakeRepo()
	repo.contracts[3] = &storage.Contract{ID: 3}
	svc := newTestService(repo, nil, false)

	require.NoError(t, svc.UpdateStatus(context.Background(), 3, StatusConfirmed))
	assert.Equal(t, int64(3), repo.statusID)
	assert.Equal(t, StatusConfirmed, repo.status)

	err := svc.UpdateStatus(context.Background(), 3, "shipped")
	assert.True(t, errors.Is(err, ErrInvalidInput))

	err = svc.UpdateStatus(context.Background(), 9, StatusCancelled)
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}

func TestExport(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, nil, false)

	c, err := svc.Create(context.Background(), validInput())
	require.NoError(t, err)

	data, name, err := svc.Export(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, "CT-20260302-4821.xlsx", name)
	assert.NotEmpty(t, data)

	_, _, err = svc.Export(context.Background(), 42)
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}

func TestGet_CacheAside(t *testing.T) {
	t.Run("miss fills cache and hit skips repository", func(t *testing.T) {
		repo := newFakeRepo()
		cache := newFakeCache()
		svc := newTestService(repo, nil, false).WithCache(cache, time.Minute)

		created, err := svc.Create(context.Background(), validInput())
		require.NoError(t, err)

		first, err := svc.Get(context.Background(), created.ID)
		require.NoError(t, err)
		assert.Contains(t, cache.data, "movedesk:contract:1")
		assert.Equal(t, time.Minute, cache.ttl)

		delete(repo.contracts, created.ID)

		second, err := svc.Get(context.Background(), created.ID)
		require.NoError(t, err)
		assert.Equal(t, first.Number, second.Number)
		assert.True(t, second.TotalPrice.Equal(first.TotalPrice))
		require.Len(t, second.Items, 1)
		assert.True(t, second.Items[0].TotalPrice.Equal(decimal.RequireFromString("81.75")))
	})

	t.Run("status change invalidates entry", func(t *testing.T) {
		repo := newFakeRepo()
		cache := newFakeCache()
		svc := newTestService(repo, nil, false).WithCache(cache, 0)

		created, err := svc.Create(context.Background(), validInput())
		require.NoError(t, err)
		_, err = svc.Get(context.Background(), created.ID)
		require.NoError(t, err)
		assert.Equal(t, defaultCacheTTL, cache.ttl)

		require.NoError(t, svc.UpdateStatus(context.Background(), created.ID, StatusPending))
		assert.NotContains(t, cache.data, "movedesk:contract:1")
	})

	t.Run("cache failure falls back to repository", func(t *testing.T) {
		repo := newFakeRepo()
		cache := newFakeCache()
		cache.getErr = errors.New("redis down")
		svc := newTestService(repo, nil, false).WithCache(cache, time.Minute)

		created, err := svc.Create(context.Background(), validInput())
		require.NoError(t, err)

		got, err := svc.Get(context.Background(), created.ID)
		require.NoError(t, err)
		assert.Equal(t, created.Number, got.Number)
	})

	t.Run("malformed entry is dropped", func(t *testing.T) {
		repo := newFakeRepo()
		cache := newFakeCache()
		svc := newTestService(repo, nil, false).WithCache(cache, time.Minute)

		created, err := svc.Create(context.Background(), validInput())
		require.NoError(t, err)
		cache.data["movedesk:contract:1"] = []byte("{broken")

		got, err := svc.Get(context.Background(), created.ID)
		require.NoError(t, err)
		assert.Equal(t, created.Number, got.Number)
	})
}
