// Package analytics aggregates claim and inbox figures for the practice
// dashboard.
package analytics

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/revclarity/revclarity/internal/platform/db"
)

// Summary is the dashboard payload. Financial sums coalesce NULL amounts to
// zero so a practice with no adjudicated claims still renders.
type Summary struct {
	TotalClaims        int            `json:"total_claims"`
	ClaimsByStatus     map[string]int `json:"claims_by_status"`
	TotalCharged       float64        `json:"total_charged"`
	TotalPaid          float64        `json:"total_paid"`
	TotalPatientOwed   float64        `json:"total_patient_owed"`
	TotalPatients      int            `json:"total_patients"`
	DocumentsByStatus  map[string]int `json:"documents_by_status"`
	PendingDocuments   int            `json:"pending_documents"`
	CompletedReferrals int            `json:"completed_referrals"`
}

// Repository computes the summary.
type Repository interface {
	Summary(ctx context.Context) (*Summary, error)
}

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

func (r *repoPG) Summary(ctx context.Context) (*Summary, error) {
	s := &Summary{
		ClaimsByStatus:    make(map[string]int),
		DocumentsByStatus: make(map[string]int),
	}

	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(total_charge_amount), 0),
			COALESCE(SUM(payer_paid_amount), 0),
			COALESCE(SUM(patient_responsibility_amount), 0)
		FROM claim`).
		Scan(&s.TotalClaims, &s.TotalCharged, &s.TotalPaid, &s.TotalPatientOwed)
	if err != nil {
		return nil, err
	}

	rows, err := r.conn(ctx).Query(ctx, `SELECT status, COUNT(*) FROM claim GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		s.ClaimsByStatus[status] = count
	}
	rows.Close()

	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patient`).Scan(&s.TotalPatients); err != nil {
		return nil, err
	}

	docRows, err := r.conn(ctx).Query(ctx, `SELECT status, COUNT(*) FROM orthopilot_document GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer docRows.Close()
	for docRows.Next() {
		var status string
		var count int
		if err := docRows.Scan(&status, &count); err != nil {
			return nil, err
		}
		s.DocumentsByStatus[status] = count
	}
	s.PendingDocuments = s.DocumentsByStatus["PENDING"] + s.DocumentsByStatus["PROCESSING"]

	err = r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM orthopilot_document WHERE status = 'COMPLETED' AND classification = 'REFERRAL_FAX'`).
		Scan(&s.CompletedReferrals)
	if err != nil {
		return nil, err
	}
	return s, nil
}
