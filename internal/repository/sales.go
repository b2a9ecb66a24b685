package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/referral-commissions/internal/model"
)

// CreateSale сохраняет продажу. Это точка фиксации: после неё продажа считается фактом.
func (r *PostgresRepository) CreateSale(ctx context.Context, sale *model.Sale) error {
	amountC, err := model.ToCents(sale.Amount)
	if err != nil {
		return fmt.Errorf("sale amount: %w", err)
	}
	commC, err := model.ToCents(sale.Commission)
	if err != nil {
		return fmt.Errorf("sale commission: %w", err)
	}

	// Повтор после обрыва соединения идёт с тем же id и не создаёт дубль.
	return withRetry(ctx, retryDelays, func() error {
		err := r.pool.QueryRow(ctx,
			`INSERT INTO sales (id, referrer_id, client_name, service, amount, commission, admin_note, source)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			 ON CONFLICT (id) DO UPDATE SET id = EXCLUDED.id
			 RETURNING created_at`,
			sale.ID, sale.ReferrerID, sale.ClientName, string(sale.Service),
			amountC, commC,
			sale.AdminNote, string(sale.Source),
		).Scan(&sale.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert sale: %w", err)
		}
		return nil
	})
}

// ListSales возвращает продажи апортёра, либо все продажи при referrerID == 0.
func (r *PostgresRepository) ListSales(ctx context.Context, referrerID int64) ([]model.Sale, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, referrer_id, client_name, service, amount, commission, paid, paid_at,
		        admin_note, source, created_at
		 FROM sales
		 WHERE $1::bigint = 0 OR referrer_id = $1
		 ORDER BY created_at DESC`,
		referrerID,
	)
	if err != nil {
		return nil, fmt.Errorf("select sales: %w", err)
	}
	defer rows.Close()

	var res []model.Sale
	for rows.Next() {
		var (
			s               model.Sale
			service, source string
			amountC, commC  int64
		)
		if err := rows.Scan(&s.ID, &s.ReferrerID, &s.ClientName, &service, &amountC, &commC,
			&s.Paid, &s.PaidAt, &s.AdminNote, &source, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan sale: %w", err)
		}
		s.Service = model.Service(service)
		s.Source = model.SaleSource(source)
		s.Amount = model.FromCents(amountC)
		s.Commission = model.FromCents(commC)
		res = append(res, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// MarkSalePaid отмечает комиссию по продаже как выплаченную.
func (r *PostgresRepository) MarkSalePaid(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE sales SET paid = TRUE, paid_at = COALESCE(paid_at, $2) WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("mark sale paid: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSaleNotFound
	}
	return nil
}

// DeleteSale удаляет продажу и возвращает её апортёра. Производные факты (каскад, бейджи, челленджи) не отзываются.
func (r *PostgresRepository) DeleteSale(ctx context.Context, id uuid.UUID) (int64, error) {
	var referrerID int64
	err := r.pool.QueryRow(ctx,
		`DELETE FROM sales WHERE id = $1 RETURNING referrer_id`, id,
	).Scan(&referrerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrSaleNotFound
		}
		return 0, fmt.Errorf("delete sale: %w", err)
	}
	return referrerID, nil
}
