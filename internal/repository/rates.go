package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/referral-commissions/internal/model"
)

// GetReferrerRate возвращает индивидуальную ставку апортёра; ok=false, если её нет.
func (r *PostgresRepository) GetReferrerRate(ctx context.Context, referrerID int64, service model.Service) (decimal.Decimal, bool, error) {
	var cents int64
	err := r.pool.QueryRow(ctx,
		`SELECT amount FROM referrer_commission_rates WHERE referrer_id = $1 AND service = $2`,
		referrerID, string(service),
	).Scan(&cents)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, false, nil
		}
		return decimal.Zero, false, fmt.Errorf("get referrer rate: %w", err)
	}
	return model.FromCents(cents), true, nil
}

// GetGlobalRate возвращает глобальную ставку по продукту; ok=false, если она не задана.
func (r *PostgresRepository) GetGlobalRate(ctx context.Context, service model.Service) (decimal.Decimal, bool, error) {
	var cents int64
	err := r.pool.QueryRow(ctx,
		`SELECT amount FROM commission_rates WHERE service = $1`, string(service),
	).Scan(&cents)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, false, nil
		}
		return decimal.Zero, false, fmt.Errorf("get global rate: %w", err)
	}
	return model.FromCents(cents), true, nil
}

func (r *PostgresRepository) queryRates(ctx context.Context, query string, args ...any) (map[model.Service]decimal.Decimal, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select rates: %w", err)
	}
	defer rows.Close()

	res := make(map[model.Service]decimal.Decimal)
	for rows.Next() {
		var (
			service string
			cents   int64
		)
		if err := rows.Scan(&service, &cents); err != nil {
			return nil, fmt.Errorf("scan rate: %w", err)
		}
		res[model.Service(service)] = model.FromCents(cents)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// ListGlobalRates возвращает все глобальные ставки.
func (r *PostgresRepository) ListGlobalRates(ctx context.Context) (map[model.Service]decimal.Decimal, error) {
	return r.queryRates(ctx, `SELECT service, amount FROM commission_rates`)
}

// ListReferrerRates возвращает индивидуальные ставки апортёра.
func (r *PostgresRepository) ListReferrerRates(ctx context.Context, referrerID int64) (map[model.Service]decimal.Decimal, error) {
	return r.queryRates(ctx,
		`SELECT service, amount FROM referrer_commission_rates WHERE referrer_id = $1`, referrerID)
}

// UpsertGlobalRates перезаписывает глобальные ставки одной транзакцией. История не хранится.
func (r *PostgresRepository) UpsertGlobalRates(ctx context.Context, rates map[model.Service]decimal.Decimal) error {
	return r.upsertRates(ctx, func(batch *pgx.Batch, service model.Service, cents int64) {
		batch.Queue(
			`INSERT INTO commission_rates (service, amount) VALUES ($1, $2)
			 ON CONFLICT (service) DO UPDATE SET amount = EXCLUDED.amount`,
			string(service), cents,
		)
	}, rates)
}

// UpsertReferrerRates перезаписывает индивидуальные ставки апортёра одной транзакцией.
func (r *PostgresRepository) UpsertReferrerRates(ctx context.Context, referrerID int64, rates map[model.Service]decimal.Decimal) error {
	return r.upsertRates(ctx, func(batch *pgx.Batch, service model.Service, cents int64) {
		batch.Queue(
			`INSERT INTO referrer_commission_rates (referrer_id, service, amount) VALUES ($1, $2, $3)
			 ON CONFLICT (referrer_id, service) DO UPDATE SET amount = EXCLUDED.amount`,
			referrerID, string(service), cents,
		)
	}, rates)
}

func (r *PostgresRepository) upsertRates(
	ctx context.Context,
	queue func(batch *pgx.Batch, service model.Service, cents int64),
	rates map[model.Service]decimal.Decimal,
) error {
	if len(rates) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for service, amount := range rates {
		cents, err := model.ToCents(amount)
		if err != nil {
			return fmt.Errorf("rate for %s: %w", service, err)
		}
		queue(batch, service, cents)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upsert rates: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// DeleteReferrerRates удаляет все индивидуальные ставки апортёра, возвращая его к глобальным.
func (r *PostgresRepository) DeleteReferrerRates(ctx context.Context, referrerID int64) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM referrer_commission_rates WHERE referrer_id = $1`, referrerID)
	if err != nil {
		return fmt.Errorf("delete referrer rates: %w", err)
	}
	return nil
}
