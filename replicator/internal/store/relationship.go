package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/0xRichardL/vibe-copy-trading/replicator/internal/domain"
	redis "github.com/redis/go-redis/v9"
)

// relationshipRecord is the stored form; RiskRatio is a pointer so an absent
// ratio can be told apart from an explicit zero.
type relationshipRecord struct {
	MasterAccountID   string   `json:"master_account_id"`
	FollowerAccountID string   `json:"follower_account_id"`
	RiskRatio         *float64 `json:"risk_ratio,omitempty"`
	Status            string   `json:"status"`
}

func (r relationshipRecord) toDomain() domain.CopyRelationship {
	ratio := domain.DefaultRiskRatio
	if r.RiskRatio != nil {
		ratio = *r.RiskRatio
	}
	return domain.CopyRelationship{
		MasterAccountID:   r.MasterAccountID,
		FollowerAccountID: r.FollowerAccountID,
		RiskRatio:         ratio,
		Status:            domain.RelationshipStatus(strings.ToLower(r.Status)),
	}
}

// RelationshipStore keeps copy relationships in Redis: one hash per master,
// keyed by follower account id.
type RelationshipStore struct {
	client *redis.Client
	prefix string
}

// NewRelationshipStore creates a new RelationshipStore backed by Redis.
func NewRelationshipStore(client *redis.Client, prefix string) *RelationshipStore {
	return &RelationshipStore{client: client, prefix: prefix}
}

func (s *RelationshipStore) key(masterID string) string {
	return fmt.Sprintf("%s:%s", s.prefix, masterID)
}

// Upsert stores or replaces the relationship for (master, follower).
func (s *RelationshipStore) Upsert(ctx context.Context, rel domain.CopyRelationship) error {
	if err := validateRelationship(rel); err != nil {
		return err
	}
	ratio := rel.RiskRatio
	data, err := json.Marshal(relationshipRecord{
		MasterAccountID:   rel.MasterAccountID,
		FollowerAccountID: rel.FollowerAccountID,
		RiskRatio:         &ratio,
		Status:            string(rel.Status),
	})
	if err != nil {
		return fmt.Errorf("marshal relationship: %w", err)
	}
	key := s.key(rel.MasterAccountID)
	if err := s.client.HSet(ctx, key, rel.FollowerAccountID, string(data)).Err(); err != nil {
		return fmt.Errorf("redis HSET %s: %w", key, err)
	}
	return nil
}

// ListByMaster returns every relationship of a master, sorted by follower id.
func (s *RelationshipStore) ListByMaster(ctx context.Context, masterID string) ([]domain.CopyRelationship, error) {
	key := s.key(masterID)
	members, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis HGETALL %s: %w", key, err)
	}

	res := make([]domain.CopyRelationship, 0, len(members))
	for follower, m := range members {
		var rec relationshipRecord
		if err := json.Unmarshal([]byte(m), &rec); err != nil {
			// Skip malformed entries but continue.
			continue
		}
		if rec.FollowerAccountID == "" {
			rec.FollowerAccountID = follower
		}
		if rec.MasterAccountID == "" {
			rec.MasterAccountID = masterID
		}
		res = append(res, rec.toDomain())
	}
	sortByFollower(res)
	return res, nil
}

// ListActiveByMaster returns the relationships that take part in replication.
func (s *RelationshipStore) ListActiveByMaster(ctx context.Context, masterID string) ([]domain.CopyRelationship, error) {
	all, err := s.ListByMaster(ctx, masterID)
	if err != nil {
		return nil, err
	}
	return filterActive(all), nil
}

func filterActive(rels []domain.CopyRelationship) []domain.CopyRelationship {
	out := rels[:0]
	for _, r := range rels {
		if r.Active() {
			out = append(out, r)
		}
	}
	return out
}

func sortByFollower(rels []domain.CopyRelationship) {
	sort.Slice(rels, func(i, j int) bool {
		return rels[i].FollowerAccountID < rels[j].FollowerAccountID
	})
}

func validateRelationship(rel domain.CopyRelationship) error {
	if rel.MasterAccountID == "" || rel.FollowerAccountID == "" {
		return fmt.Errorf("%w: master and follower account ids are required", domain.ErrInvalidRelationship)
	}
	if rel.MasterAccountID == rel.FollowerAccountID {
		return fmt.Errorf("%w: an account cannot follow itself", domain.ErrInvalidRelationship)
	}
	switch rel.Status {
	case domain.RelationshipActive, domain.RelationshipPaused, domain.RelationshipCancelled:
	default:
		return fmt.Errorf("%w: unknown status %q", domain.ErrInvalidRelationship, rel.Status)
	}
	return nil
}
