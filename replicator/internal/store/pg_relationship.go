package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/0xRichardL/vibe-copy-trading/replicator/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGRelationshipStore reads copy relationships from the copy_relationships table.
type PGRelationshipStore struct {
	pool *pgxpool.Pool
}

func NewPGRelationshipStore(pool *pgxpool.Pool) *PGRelationshipStore {
	return &PGRelationshipStore{pool: pool}
}

// Upsert inserts or updates the (master, follower) row.
func (s *PGRelationshipStore) Upsert(ctx context.Context, rel domain.CopyRelationship) error {
	if err := validateRelationship(rel); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx, `insert into copy_relationships (master_account_id, follower_account_id, risk_ratio, status)
values ($1, $2, $3, $4)
on conflict (master_account_id, follower_account_id)
do update set risk_ratio = excluded.risk_ratio, status = excluded.status`,
		rel.MasterAccountID, rel.FollowerAccountID, rel.RiskRatio, string(rel.Status))
	if err != nil {
		return fmt.Errorf("upsert copy relationship %s/%s: %w", rel.MasterAccountID, rel.FollowerAccountID, err)
	}
	return nil
}

// ListByMaster returns every relationship of a master ordered by follower id.
func (s *PGRelationshipStore) ListByMaster(ctx context.Context, masterID string) ([]domain.CopyRelationship, error) {
	return s.list(ctx, "select master_account_id, follower_account_id, coalesce(risk_ratio, 1.0), status from copy_relationships where master_account_id = $1 order by follower_account_id asc", masterID)
}

// ListActiveByMaster returns the active relationships of a master ordered by follower id.
func (s *PGRelationshipStore) ListActiveByMaster(ctx context.Context, masterID string) ([]domain.CopyRelationship, error) {
	return s.list(ctx, "select master_account_id, follower_account_id, coalesce(risk_ratio, 1.0), status from copy_relationships where master_account_id = $1 and lower(status) = 'active' order by follower_account_id asc", masterID)
}

func (s *PGRelationshipStore) list(ctx context.Context, query, masterID string) ([]domain.CopyRelationship, error) {
	rows, err := s.pool.Query(ctx, query, masterID)
	if err != nil {
		return nil, fmt.Errorf("query copy relationships of %s: %w", masterID, err)
	}
	defer rows.Close()

	var out []domain.CopyRelationship
	for rows.Next() {
		var rel domain.CopyRelationship
		var status string
		if err := rows.Scan(&rel.MasterAccountID, &rel.FollowerAccountID, &rel.RiskRatio, &status); err != nil {
			return nil, fmt.Errorf("scan copy relationship: %w", err)
		}
		rel.Status = domain.RelationshipStatus(strings.ToLower(status))
		out = append(out, rel)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate copy relationships: %w", err)
	}
	return out, nil
}
