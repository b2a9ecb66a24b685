package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/referral-commissions/internal/model"
)

const referrerColumns = `id, first_name, last_name, email, code, status, tier, recruiter_id, created_at`

func scanReferrer(row pgx.Row) (*model.Referrer, error) {
	var (
		ref    model.Referrer
		status string
		tier   string
	)
	err := row.Scan(&ref.ID, &ref.FirstName, &ref.LastName, &ref.Email, &ref.Code,
		&status, &tier, &ref.RecruiterID, &ref.CreatedAt)
	if err != nil {
		return nil, err
	}
	ref.Status = model.ReferrerStatus(status)
	ref.Tier = model.Tier(tier)
	return &ref, nil
}

// CreateReferrer регистрирует апортёра и заполняет его идентификатор и дату создания.
func (r *PostgresRepository) CreateReferrer(ctx context.Context, ref *model.Referrer) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO referrers (first_name, last_name, email, code, status, tier, recruiter_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, created_at`,
		ref.FirstName, ref.LastName, ref.Email, ref.Code,
		string(ref.Status), string(ref.Tier), ref.RecruiterID,
	).Scan(&ref.ID, &ref.CreatedAt)
	if err != nil {
		if pgErr, ok := isUniqueViolation(err); ok {
			if pgErr.ConstraintName == "referrers_code_key" {
				return fmt.Errorf("%w: %s", ErrCodeExists, ref.Code)
			}
			return fmt.Errorf("%w: %s", ErrEmailExists, ref.Email)
		}
		return fmt.Errorf("create referrer: %w", err)
	}
	return nil
}

// GetReferrerByCode возвращает апортёра по реферальному коду.
func (r *PostgresRepository) GetReferrerByCode(ctx context.Context, code string) (*model.Referrer, error) {
	ref, err := scanReferrer(r.pool.QueryRow(ctx,
		`SELECT `+referrerColumns+` FROM referrers WHERE code = $1`, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrReferrerNotFound
		}
		return nil, fmt.Errorf("get referrer by code: %w", err)
	}
	return ref, nil
}

// GetReferrer возвращает апортёра по идентификатору.
func (r *PostgresRepository) GetReferrer(ctx context.Context, id int64) (*model.Referrer, error) {
	ref, err := scanReferrer(r.pool.QueryRow(ctx,
		`SELECT `+referrerColumns+` FROM referrers WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrReferrerNotFound
		}
		return nil, fmt.Errorf("get referrer: %w", err)
	}
	return ref, nil
}

// ListReferrers возвращает всех апортёров в порядке регистрации.
func (r *PostgresRepository) ListReferrers(ctx context.Context) ([]model.Referrer, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+referrerColumns+` FROM referrers ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("select referrers: %w", err)
	}
	defer rows.Close()

	var res []model.Referrer
	for rows.Next() {
		ref, err := scanReferrer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan referrer: %w", err)
		}
		res = append(res, *ref)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// UpdateReferrerStatus меняет статус апортёра.
func (r *PostgresRepository) UpdateReferrerStatus(ctx context.Context, id int64, status model.ReferrerStatus) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE referrers SET status = $2 WHERE id = $1`, id, string(status))
	if err != nil {
		return fmt.Errorf("update referrer status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrReferrerNotFound
	}
	return nil
}

// RecomputeTier пересчитывает уровень апортёра по числу его продаж и сохраняет его.
// Строка апортёра блокируется до подсчёта, поэтому конкурентные пересчёты идут по очереди
// и последний из них видит все зафиксированные продажи.
func (r *PostgresRepository) RecomputeTier(ctx context.Context, id int64, tierFor func(salesCount int64) model.Tier) (model.Tier, error) {
	var tier model.Tier

	err := withRetry(ctx, retryDelays, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		var locked int64
		err = tx.QueryRow(ctx,
			`SELECT id FROM referrers WHERE id = $1 FOR UPDATE`, id,
		).Scan(&locked)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrReferrerNotFound
			}
			return fmt.Errorf("lock referrer: %w", err)
		}

		var count int64
		err = tx.QueryRow(ctx,
			`SELECT COUNT(*) FROM sales WHERE referrer_id = $1`, id,
		).Scan(&count)
		if err != nil {
			return fmt.Errorf("count sales: %w", err)
		}

		tier = tierFor(count)
		if _, err := tx.Exec(ctx,
			`UPDATE referrers SET tier = $2 WHERE id = $1`, id, string(tier)); err != nil {
			return fmt.Errorf("update referrer tier: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return tier, nil
}
