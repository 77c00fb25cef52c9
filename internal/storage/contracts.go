package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Contract struct {
	ID              int64           `db:"id"`
	Number          string          `db:"contract_number"`
	CustomerName    string          `db:"customer_name"`
	CustomerContact string          `db:"customer_contact"`
	ContractDate    time.Time       `db:"contract_date"`
	FromAddress     string          `db:"from_address"`
	ToAddress       string          `db:"to_address"`
	DistanceKm      decimal.Decimal `db:"distance_km"`
	FromFloors      int             `db:"from_floors"`
	ToFloors        int             `db:"to_floors"`
	PriceTier       string          `db:"price_tier"`
	Status          string          `db:"status"`
	Notes           string          `db:"notes"`
	TotalPrice      decimal.Decimal `db:"total_price"`
	CreatedAt       time.Time       `db:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at"`
	Items           []ContractItem  `db:"-"`
}

type ContractItem struct {
	ID               int64           `db:"id"`
	ContractID       int64           `db:"contract_id"`
	ItemName         string          `db:"item_name"`
	Size             string          `db:"size"`
	Quantity         int             `db:"quantity"`
	UnitPrice        decimal.Decimal `db:"unit_price"`
	AssemblyPrice    decimal.Decimal `db:"assembly_price"`
	DisassemblyPrice decimal.Decimal `db:"disassembly_price"`
	TotalPrice       decimal.Decimal `db:"total_price"`
}

const contractColumns = `id, contract_number, customer_name, customer_contact, contract_date,
        from_address, to_address, distance_km, from_floors, to_floors, price_tier,
        status, notes, total_price, created_at, updated_at`

// SaveContract inserts the contract and its items in one transaction and
// fills in the generated IDs.
func (s *PostgresStorage) SaveContract(ctx context.Context, c *Contract) (int64, error) {
	const operation = "storage.SaveContract"
	const insertContract = `
        INSERT INTO contracts (
            contract_number, customer_name, customer_contact, contract_date,
            from_address, to_address, distance_km, from_floors, to_floors,
            price_tier, status, notes, total_price, created_at, updated_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $14)
        RETURNING id
    `
	const insertItem = `
        INSERT INTO contract_items (
            contract_id, item_name, size, quantity, unit_price,
            assembly_price, disassembly_price, total_price
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        RETURNING id
    `

	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		err := tx.QueryRowContext(ctx, insertContract,
			c.Number,
			c.CustomerName,
			c.CustomerContact,
			c.ContractDate,
			c.FromAddress,
			c.ToAddress,
			c.DistanceKm,
			c.FromFloors,
			c.ToFloors,
			c.PriceTier,
			c.Status,
			c.Notes,
			c.TotalPrice,
			c.CreatedAt,
		).Scan(&c.ID)
		if err != nil {
			return fmt.Errorf("insert contract: %w", err)
		}

		for i := range c.Items {
			item := &c.Items[i]
			item.ContractID = c.ID
			err := tx.QueryRowContext(ctx, insertItem,
				item.ContractID,
				item.ItemName,
				item.Size,
				item.Quantity,
				item.UnitPrice,
				item.AssemblyPrice,
				item.DisassemblyPrice,
				item.TotalPrice,
			).Scan(&item.ID)
			if err != nil {
				return fmt.Errorf("insert item %q: %w", item.ItemName, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%s: %w", operation, err)
	}

	c.UpdatedAt = c.CreatedAt
	s.logger.Info("Contract saved",
		zap.Int64("contract_id", c.ID),
		zap.String("contract_number", c.Number),
		zap.Int("items", len(c.Items)))
	return c.ID, nil
}

func (s *PostgresStorage) GetContract(ctx context.Context, id int64) (*Contract, error) {
	const operation = "storage.GetContract"
	query := `SELECT ` + contractColumns + ` FROM contracts WHERE id = $1`
	const itemsQuery = `
        SELECT id, contract_id, item_name, size, quantity, unit_price,
            assembly_price, disassembly_price, total_price
        FROM contract_items
        WHERE contract_id = $1
        ORDER BY id
    `

	var c Contract
	if err := s.db.GetContext(ctx, &c, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: contract %d: %w", operation, id, ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", operation, err)
	}

	if err := s.db.SelectContext(ctx, &c.Items, itemsQuery, id); err != nil {
		return nil, fmt.Errorf("%s: items: %w", operation, err)
	}
	return &c, nil
}

// ListContracts returns the newest contracts first. An empty status matches all.
func (s *PostgresStorage) ListContracts(ctx context.Context, status string, limit int) ([]Contract, error) {
	const operation = "storage.ListContracts"
	query := `SELECT ` + contractColumns + `
        FROM contracts
        WHERE ($1 = '' OR status = $1)
        ORDER BY contract_date DESC, id DESC
        LIMIT $2`

	contracts := []Contract{}
	if err := s.db.SelectContext(ctx, &contracts, query, status, limit); err != nil {
		return nil, fmt.Errorf("%s: %w", operation, err)
	}
	return contracts, nil
}

func (s *PostgresStorage) UpdateContractStatus(ctx context.Context, id int64, status string) error {
	const operation = "storage.UpdateContractStatus"
	const query = `UPDATE contracts SET status = $1, updated_at = NOW() WHERE id = $2`

	res, err := s.db.ExecContext(ctx, query, status, id)
	if err != nil {
		return fmt.Errorf("%s: %w", operation, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: rows affected: %w", operation, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: contract %d: %w", operation, id, ErrNotFound)
	}
	return nil
}
