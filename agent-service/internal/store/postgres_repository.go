/**
 * @description
 * PostgreSQL implementation of the agent-service Repository using pgx.
 * Decimal columns travel as text so no precision is lost between NUMERIC and
 * shopspring/decimal.
 */
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/multimart/marketplace/internal/domain"
	"github.com/shopspring/decimal"
)

const (
	uniqueViolation = "23505"

	onePendingPerProductConstraint = "agent_applications_one_pending_per_product"
	agentCodeConstraint            = "agent_applications_agent_code_key"
)

const applicationColumns = `
	id::text, applicant_id, applicant_email, product_id, product_name,
	full_name, national_id, payout_method, payout_number,
	bank_name, bank_account_number, bank_account_name, reason, accepted_terms,
	status, commission_rate::text, agent_code, rejection_reason, reviewed_by, reviewed_at,
	total_sales::text, total_commission::text, applied_at`

// PostgresRepository is the pgx-backed Repository.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a repository over db.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// CreateApplication inserts a pending application.
func (r *PostgresRepository) CreateApplication(ctx context.Context, app *domain.AgentApplication) (*domain.AgentApplication, error) {
	query := `
		INSERT INTO agent_applications (
			id, applicant_id, applicant_email, product_id, product_name,
			full_name, national_id, payout_method, payout_number,
			bank_name, bank_account_number, bank_account_name, reason, accepted_terms, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, 'pending')
		RETURNING ` + applicationColumns

	created, err := scanApplication(r.db.QueryRow(ctx, query,
		app.ID,
		app.ApplicantID,
		app.ApplicantEmail,
		app.ProductID,
		app.ProductName,
		app.FullName,
		app.NationalID,
		string(app.PayoutMethod),
		app.PayoutNumber,
		app.BankName,
		app.BankAccountNumber,
		app.BankAccountName,
		app.Reason,
		app.AcceptedTerms,
	))
	if err != nil {
		if isUniqueViolation(err, onePendingPerProductConstraint) {
			return nil, ErrDuplicatePending
		}
		return nil, fmt.Errorf("insert agent application: %w", err)
	}
	return created, nil
}

// GetApplication returns one application by id.
func (r *PostgresRepository) GetApplication(ctx context.Context, id string) (*domain.AgentApplication, error) {
	query := `SELECT ` + applicationColumns + ` FROM agent_applications WHERE id::text = $1`
	app, err := scanApplication(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrApplicationNotFound
		}
		return nil, err
	}
	return app, nil
}

// ListByApplicant returns the applicant's applications, newest first.
func (r *PostgresRepository) ListByApplicant(ctx context.Context, applicantID string) ([]domain.AgentApplication, error) {
	query := `SELECT ` + applicationColumns + `
		FROM agent_applications
		WHERE applicant_id = $1
		ORDER BY applied_at DESC`
	return r.queryApplications(ctx, query, applicantID)
}

// ListApplications is the admin listing with optional status and search filters.
func (r *PostgresRepository) ListApplications(ctx context.Context, filter ListFilter) ([]domain.AgentApplication, error) {
	var (
		conditions []string
		args       []any
	)
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if q := strings.TrimSpace(filter.Query); q != "" {
		args = append(args, "%"+escapeLike(q)+"%")
		n := len(args)
		conditions = append(conditions, fmt.Sprintf(
			"(full_name ILIKE $%d OR national_id ILIKE $%d OR product_name ILIKE $%d OR applicant_email ILIKE $%d)",
			n, n, n, n,
		))
	}

	query := `SELECT ` + applicationColumns + ` FROM agent_applications`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY applied_at DESC"

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 500
	}
	args = append(args, limit)
	query += fmt.Sprintf(" LIMIT $%d", len(args))

	return r.queryApplications(ctx, query, args...)
}

// Approve transitions a pending application to approved.
func (r *PostgresRepository) Approve(ctx context.Context, params ApproveParams) (*domain.AgentApplication, error) {
	query := `
		UPDATE agent_applications
		SET status = 'approved',
		    commission_rate = $2::numeric,
		    agent_code = $3,
		    rejection_reason = NULL,
		    reviewed_by = $4,
		    reviewed_at = $5,
		    updated_at = NOW()
		WHERE id::text = $1 AND status = 'pending'
		RETURNING ` + applicationColumns

	app, err := scanApplication(r.db.QueryRow(ctx, query,
		params.ID,
		params.CommissionRate.String(),
		params.AgentCode,
		params.ReviewedBy,
		params.ReviewedAt,
	))
	if err != nil {
		if isUniqueViolation(err, agentCodeConstraint) {
			return nil, ErrAgentCodeTaken
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, r.transitionMiss(ctx, params.ID)
		}
		return nil, fmt.Errorf("approve agent application: %w", err)
	}
	return app, nil
}

// Reject transitions a pending application to rejected.
func (r *PostgresRepository) Reject(ctx context.Context, params RejectParams) (*domain.AgentApplication, error) {
	query := `
		UPDATE agent_applications
		SET status = 'rejected',
		    rejection_reason = $2,
		    commission_rate = NULL,
		    agent_code = NULL,
		    reviewed_by = $3,
		    reviewed_at = $4,
		    updated_at = NOW()
		WHERE id::text = $1 AND status = 'pending'
		RETURNING ` + applicationColumns

	app, err := scanApplication(r.db.QueryRow(ctx, query,
		params.ID,
		params.RejectionReason,
		params.ReviewedBy,
		params.ReviewedAt,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, r.transitionMiss(ctx, params.ID)
		}
		return nil, fmt.Errorf("reject agent application: %w", err)
	}
	return app, nil
}

// FindApprovedForProduct returns the applicant's approved application for productID.
func (r *PostgresRepository) FindApprovedForProduct(ctx context.Context, applicantID, productID string) (*domain.AgentApplication, error) {
	query := `SELECT ` + applicationColumns + `
		FROM agent_applications
		WHERE applicant_id = $1 AND product_id = $2 AND status = 'approved'
		ORDER BY reviewed_at DESC
		LIMIT 1`
	app, err := scanApplication(r.db.QueryRow(ctx, query, applicantID, productID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrApplicationNotFound
		}
		return nil, err
	}
	return app, nil
}

// UpdateLedgerTotals stores the running totals reported by the commission ledger.
func (r *PostgresRepository) UpdateLedgerTotals(ctx context.Context, agentCode string, totalSales, totalCommission decimal.Decimal) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE agent_applications
		SET total_sales = $2::numeric, total_commission = $3::numeric, updated_at = NOW()
		WHERE agent_code = $1 AND status = 'approved'`,
		agentCode, totalSales.String(), totalCommission.String(),
	)
	if err != nil {
		return fmt.Errorf("update ledger totals: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUnknownAgentCode
	}
	return nil
}

// CountPendingOlderThan counts pending applications submitted before cutoff.
func (r *PostgresRepository) CountPendingOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM agent_applications WHERE status = 'pending' AND applied_at < $1`,
		cutoff,
	).Scan(&count)
	return count, err
}

// isUniqueViolation reports whether err is a unique violation of constraint.
// Other unique violations (a primary key collision, say) are left to the caller.
func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == constraint
}

func (r *PostgresRepository) transitionMiss(ctx context.Context, id string) error {
	if _, err := r.GetApplication(ctx, id); err != nil {
		return err
	}
	return ErrNotPending
}

func (r *PostgresRepository) queryApplications(ctx context.Context, query string, args ...any) ([]domain.AgentApplication, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	apps := []domain.AgentApplication{}
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		apps = append(apps, *app)
	}
	return apps, rows.Err()
}

func scanApplication(row pgx.Row) (*domain.AgentApplication, error) {
	var (
		app             domain.AgentApplication
		payoutMethod    string
		status          string
		commissionRate  *string
		totalSales      string
		totalCommission string
	)
	err := row.Scan(
		&app.ID,
		&app.ApplicantID,
		&app.ApplicantEmail,
		&app.ProductID,
		&app.ProductName,
		&app.FullName,
		&app.NationalID,
		&payoutMethod,
		&app.PayoutNumber,
		&app.BankName,
		&app.BankAccountNumber,
		&app.BankAccountName,
		&app.Reason,
		&app.AcceptedTerms,
		&status,
		&commissionRate,
		&app.AgentCode,
		&app.RejectionReason,
		&app.ReviewedBy,
		&app.ReviewedAt,
		&totalSales,
		&totalCommission,
		&app.AppliedAt,
	)
	if err != nil {
		return nil, err
	}

	app.PayoutMethod = domain.PayoutMethod(payoutMethod)
	app.Status = domain.ApplicationStatus(status)
	if commissionRate != nil {
		rate, err := decimal.NewFromString(*commissionRate)
		if err != nil {
			return nil, fmt.Errorf("parse commission rate %q: %w", *commissionRate, err)
		}
		app.CommissionRate = &rate
	}
	if app.TotalSales, err = decimal.NewFromString(totalSales); err != nil {
		return nil, fmt.Errorf("parse total sales %q: %w", totalSales, err)
	}
	if app.TotalCommission, err = decimal.NewFromString(totalCommission); err != nil {
		return nil, fmt.Errorf("parse total commission %q: %w", totalCommission, err)
	}
	return &app, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
