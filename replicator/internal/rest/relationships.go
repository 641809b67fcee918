package rest

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/0xRichardL/vibe-copy-trading/replicator/internal/domain"
	"github.com/gin-gonic/gin"
)

type RelationshipStore interface {
	Upsert(ctx context.Context, rel domain.CopyRelationship) error
	ListByMaster(ctx context.Context, masterID string) ([]domain.CopyRelationship, error)
}

type RelationshipController struct {
	store RelationshipStore
}

func NewRelationshipController(store RelationshipStore) *RelationshipController {
	return &RelationshipController{store: store}
}

func (c *RelationshipController) RegisterRelationshipRoutes(rg *gin.RouterGroup) {
	rg.POST("/relationships", c.handleUpsertRelationship)
	rg.GET("/relationships/:master", c.handleListRelationships)
}

func (c *RelationshipController) handleUpsertRelationship(ctx *gin.Context) {
	var req struct {
		MasterAccountID   string   `json:"master_account_id"`
		FollowerAccountID string   `json:"follower_account_id"`
		RiskRatio         *float64 `json:"risk_ratio"`
		Status            string   `json:"status"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	rel := domain.CopyRelationship{
		MasterAccountID:   req.MasterAccountID,
		FollowerAccountID: req.FollowerAccountID,
		RiskRatio:         domain.DefaultRiskRatio,
		Status:            domain.RelationshipActive,
	}
	if req.RiskRatio != nil {
		rel.RiskRatio = *req.RiskRatio
	}
	if req.Status != "" {
		rel.Status = domain.RelationshipStatus(strings.ToLower(req.Status))
	}

	reqCtx, cancel := context.WithTimeout(ctx.Request.Context(), 5*time.Second)
	defer cancel()
	if err := c.store.Upsert(reqCtx, rel); err != nil {
		if errors.Is(err, domain.ErrInvalidRelationship) {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	ctx.JSON(http.StatusOK, rel)
}

func (c *RelationshipController) handleListRelationships(ctx *gin.Context) {
	rels, err := c.store.ListByMaster(ctx.Request.Context(), ctx.Param("master"))
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if rels == nil {
		rels = []domain.CopyRelationship{}
	}
	ctx.JSON(http.StatusOK, rels)
}
