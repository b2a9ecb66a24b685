package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/referral-commissions/internal/model"
)

// GetCascadeRate возвращает текущий глобальный процент каскада.
func (r *PostgresRepository) GetCascadeRate(ctx context.Context) (decimal.Decimal, error) {
	var pct decimal.Decimal
	err := r.pool.QueryRow(ctx,
		`SELECT cascade_rate_percent FROM settings WHERE id = 1`,
	).Scan(&pct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, nil
		}
		return decimal.Zero, fmt.Errorf("get cascade rate: %w", err)
	}
	return pct, nil
}

// SetCascadeRate сохраняет глобальный процент каскада. Диапазон проверяется сервисом.
func (r *PostgresRepository) SetCascadeRate(ctx context.Context, pct decimal.Decimal) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO settings (id, cascade_rate_percent) VALUES (1, $1)
		 ON CONFLICT (id) DO UPDATE SET cascade_rate_percent = EXCLUDED.cascade_rate_percent`,
		pct,
	)
	if err != nil {
		return fmt.Errorf("set cascade rate: %w", err)
	}
	return nil
}

// InsertCascadeCommission сохраняет каскадную комиссию, если для продажи её ещё нет.
// Возвращает false без ошибки, когда запись уже существует.
func (r *PostgresRepository) InsertCascadeCommission(ctx context.Context, c *model.CascadeCommission) (bool, error) {
	cents, err := model.ToCents(c.Amount)
	if err != nil {
		return false, fmt.Errorf("cascade amount: %w", err)
	}

	err = r.pool.QueryRow(ctx,
		`INSERT INTO cascade_commissions (sale_id, parrain_id, filleul_id, amount)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (sale_id) DO NOTHING
		 RETURNING id, created_at`,
		c.SaleID, c.ParrainID, c.FilleulID, cents,
	).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("insert cascade commission: %w", err)
	}
	return true, nil
}

// ListCascadeCommissions возвращает каскадные комиссии пригласившего, либо все при parrainID == 0.
func (r *PostgresRepository) ListCascadeCommissions(ctx context.Context, parrainID int64) ([]model.CascadeCommission, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, sale_id, parrain_id, filleul_id, amount, paid, paid_at, created_at
		 FROM cascade_commissions
		 WHERE $1::bigint = 0 OR parrain_id = $1
		 ORDER BY created_at DESC`,
		parrainID,
	)
	if err != nil {
		return nil, fmt.Errorf("select cascade commissions: %w", err)
	}
	defer rows.Close()

	var res []model.CascadeCommission
	for rows.Next() {
		var (
			c     model.CascadeCommission
			cents int64
		)
		if err := rows.Scan(&c.ID, &c.SaleID, &c.ParrainID, &c.FilleulID, &cents,
			&c.Paid, &c.PaidAt, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan cascade commission: %w", err)
		}
		c.Amount = model.FromCents(cents)
		res = append(res, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// MarkCascadePaid отмечает каскадную комиссию как выплаченную.
func (r *PostgresRepository) MarkCascadePaid(ctx context.Context, id int64, at time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE cascade_commissions SET paid = TRUE, paid_at = COALESCE(paid_at, $2) WHERE id = $1`,
		id, at)
	if err != nil {
		return fmt.Errorf("mark cascade paid: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrCascadeNotFound
	}
	return nil
}
