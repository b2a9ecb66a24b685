package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/referral-commissions/internal/model"
)

// GetBadgeStats считает агрегаты апортёра за всё время одним запросом.
func (r *PostgresRepository) GetBadgeStats(ctx context.Context, referrerID int64) (*model.BadgeStats, error) {
	var (
		stats       model.BadgeStats
		commissionC int64
		tier        string
		services    []string
	)
	err := r.pool.QueryRow(ctx,
		`SELECT
		     (SELECT COUNT(*) FROM sales WHERE referrer_id = r.id),
		     (SELECT COALESCE(SUM(commission), 0)::bigint FROM sales WHERE referrer_id = r.id),
		     r.tier,
		     (SELECT COALESCE(array_agg(DISTINCT service), '{}'::text[]) FROM sales WHERE referrer_id = r.id),
		     (SELECT COUNT(*) FROM referrers WHERE recruiter_id = r.id)
		 FROM referrers r
		 WHERE r.id = $1`,
		referrerID,
	).Scan(&stats.SalesCount, &commissionC, &tier, &services, &stats.RecruitedCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrReferrerNotFound
		}
		return nil, fmt.Errorf("badge stats: %w", err)
	}

	stats.CommissionTotal = model.FromCents(commissionC)
	stats.Tier = model.Tier(tier)
	stats.ServicesSold = make(map[model.Service]bool, len(services))
	for _, s := range services {
		stats.ServicesSold[model.Service(s)] = true
	}

	return &stats, nil
}

// ListEarnedBadges возвращает уже полученные апортёром бейджи.
func (r *PostgresRepository) ListEarnedBadges(ctx context.Context, referrerID int64) ([]model.EarnedBadge, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT badge_id, earned_at FROM referrer_badges WHERE referrer_id = $1 ORDER BY earned_at`,
		referrerID,
	)
	if err != nil {
		return nil, fmt.Errorf("select badges: %w", err)
	}
	defer rows.Close()

	var res []model.EarnedBadge
	for rows.Next() {
		var b model.EarnedBadge
		if err := rows.Scan(&b.BadgeID, &b.EarnedAt); err != nil {
			return nil, fmt.Errorf("scan badge: %w", err)
		}
		res = append(res, b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// AwardBadge выдаёт бейдж. Если он уже выдан, возвращается false без ошибки.
func (r *PostgresRepository) AwardBadge(ctx context.Context, referrerID int64, badgeID string) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`INSERT INTO referrer_badges (referrer_id, badge_id) VALUES ($1, $2)
		 ON CONFLICT (referrer_id, badge_id) DO NOTHING`,
		referrerID, badgeID,
	)
	if err != nil {
		return false, fmt.Errorf("award badge: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

const challengeColumns = `id, title, description, month, active, condition_type, threshold, service, bonus, created_at`

func scanChallenge(row pgx.Row) (*model.Challenge, error) {
	var (
		c       model.Challenge
		kind    string
		service string
		bonusC  int64
	)
	err := row.Scan(&c.ID, &c.Title, &c.Description, &c.Month, &c.Active,
		&kind, &c.Condition.Threshold, &service, &bonusC, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	c.Condition.Kind = model.ChallengeConditionKind(kind)
	c.Condition.Service = model.Service(service)
	c.Bonus = model.FromCents(bonusC)
	return &c, nil
}

func collectChallenges(rows pgx.Rows) ([]model.Challenge, error) {
	defer rows.Close()

	var res []model.Challenge
	for rows.Next() {
		c, err := scanChallenge(rows)
		if err != nil {
			return nil, fmt.Errorf("scan challenge: %w", err)
		}
		res = append(res, *c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// CreateChallenge сохраняет челлендж и заполняет его идентификатор.
func (r *PostgresRepository) CreateChallenge(ctx context.Context, c *model.Challenge) error {
	bonusC, err := model.ToCents(c.Bonus)
	if err != nil {
		return fmt.Errorf("challenge bonus: %w", err)
	}

	err = r.pool.QueryRow(ctx,
		`INSERT INTO challenges (title, description, month, active, condition_type, threshold, service, bonus)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id, created_at`,
		c.Title, c.Description, c.Month, c.Active, string(c.Condition.Kind),
		c.Condition.Threshold, string(c.Condition.Service), bonusC,
	).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return fmt.Errorf("create challenge: %w", err)
	}
	return nil
}

// ListChallenges возвращает челленджи месяца, либо все при пустом month.
func (r *PostgresRepository) ListChallenges(ctx context.Context, month string) ([]model.Challenge, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+challengeColumns+` FROM challenges
		 WHERE $1 = '' OR month = $1
		 ORDER BY month DESC, id`,
		month,
	)
	if err != nil {
		return nil, fmt.Errorf("select challenges: %w", err)
	}
	return collectChallenges(rows)
}

// SetChallengeActive включает или выключает челлендж.
func (r *PostgresRepository) SetChallengeActive(ctx context.Context, id int64, active bool) error {
	tag, err := r.pool.Exec(ctx, `UPDATE challenges SET active = $2 WHERE id = $1`, id, active)
	if err != nil {
		return fmt.Errorf("update challenge: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrChallengeNotFound
	}
	return nil
}

// ListOpenChallenges возвращает активные челленджи месяца, ещё не выполненные апортёром.
func (r *PostgresRepository) ListOpenChallenges(ctx context.Context, referrerID int64, month string) ([]model.Challenge, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+challengeColumns+` FROM challenges c
		 WHERE c.active AND c.month = $2
		   AND NOT EXISTS (
		       SELECT 1 FROM challenge_completions cc
		       WHERE cc.challenge_id = c.id AND cc.referrer_id = $1
		   )
		 ORDER BY c.id`,
		referrerID, month,
	)
	if err != nil {
		return nil, fmt.Errorf("select open challenges: %w", err)
	}
	return collectChallenges(rows)
}

// GetMonthStats считает продажи и комиссии апортёра за календарный месяц.
func (r *PostgresRepository) GetMonthStats(ctx context.Context, referrerID int64, month string) (*model.MonthStats, error) {
	from, to, err := monthRange(month)
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT service, COUNT(*), COALESCE(SUM(commission), 0)::bigint
		 FROM sales
		 WHERE referrer_id = $1 AND created_at >= $2 AND created_at < $3
		 GROUP BY service`,
		referrerID, from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("month stats: %w", err)
	}
	defer rows.Close()

	stats := &model.MonthStats{ServiceCounts: make(map[model.Service]int64)}
	var totalC int64
	for rows.Next() {
		var (
			service string
			count   int64
			sumC    int64
		)
		if err := rows.Scan(&service, &count, &sumC); err != nil {
			return nil, fmt.Errorf("scan month stats: %w", err)
		}
		stats.ServiceCounts[model.Service(service)] = count
		stats.SalesCount += count
		totalC += sumC
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	stats.CommissionTotal = model.FromCents(totalC)
	return stats, nil
}

// RecordChallengeCompletion фиксирует выполнение челленджа. Повторная запись возвращает false без ошибки.
func (r *PostgresRepository) RecordChallengeCompletion(ctx context.Context, challengeID, referrerID int64) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`INSERT INTO challenge_completions (challenge_id, referrer_id) VALUES ($1, $2)
		 ON CONFLICT (challenge_id, referrer_id) DO NOTHING`,
		challengeID, referrerID,
	)
	if err != nil {
		return false, fmt.Errorf("record challenge completion: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PostgresRepository) queryCompletions(ctx context.Context, query string, arg int64) ([]model.ChallengeCompletion, error) {
	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("select completions: %w", err)
	}
	defer rows.Close()

	var res []model.ChallengeCompletion
	for rows.Next() {
		var c model.ChallengeCompletion
		if err := rows.Scan(&c.ChallengeID, &c.ReferrerID, &c.CompletedAt, &c.BonusPaid, &c.BonusPaidAt); err != nil {
			return nil, fmt.Errorf("scan completion: %w", err)
		}
		res = append(res, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// ListChallengeCompletions возвращает всех апортёров, выполнивших челлендж.
func (r *PostgresRepository) ListChallengeCompletions(ctx context.Context, challengeID int64) ([]model.ChallengeCompletion, error) {
	return r.queryCompletions(ctx,
		`SELECT challenge_id, referrer_id, completed_at, bonus_paid, bonus_paid_at
		 FROM challenge_completions WHERE challenge_id = $1 ORDER BY completed_at`,
		challengeID)
}

// ListReferrerCompletions возвращает все выполненные апортёром челленджи.
func (r *PostgresRepository) ListReferrerCompletions(ctx context.Context, referrerID int64) ([]model.ChallengeCompletion, error) {
	return r.queryCompletions(ctx,
		`SELECT challenge_id, referrer_id, completed_at, bonus_paid, bonus_paid_at
		 FROM challenge_completions WHERE referrer_id = $1 ORDER BY completed_at`,
		referrerID)
}

// MarkChallengeBonusPaid отмечает бонус за челлендж как выплаченный.
func (r *PostgresRepository) MarkChallengeBonusPaid(ctx context.Context, challengeID, referrerID int64, at time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE challenge_completions
		 SET bonus_paid = TRUE, bonus_paid_at = COALESCE(bonus_paid_at, $3)
		 WHERE challenge_id = $1 AND referrer_id = $2`,
		challengeID, referrerID, at,
	)
	if err != nil {
		return fmt.Errorf("mark bonus paid: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrCompletionNotFound
	}
	return nil
}
