package rest

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/0xRichardL/vibe-copy-trading/replicator/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type JobStore interface {
	Create(ctx context.Context, job domain.ReplicationJob) error
	Get(ctx context.Context, id string) (domain.ReplicationJob, error)
}

type JobPublisher interface {
	PublishJob(ctx context.Context, ev domain.JobEvent) error
}

type JobController struct {
	store     JobStore
	publisher JobPublisher
}

func NewJobController(store JobStore, publisher JobPublisher) *JobController {
	return &JobController{store: store, publisher: publisher}
}

func (c *JobController) RegisterJobRoutes(rg *gin.RouterGroup) {
	rg.POST("/jobs", c.handleCreateJob)
	rg.GET("/jobs/:id", c.handleGetJob)
	rg.POST("/jobs/:id/publish", c.handlePublishJob)
}

func (c *JobController) handleCreateJob(ctx *gin.Context) {
	var req struct {
		MasterAccountID string             `json:"master_account_id"`
		Trade           domain.MasterTrade `json:"trade"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.MasterAccountID == "" {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "master_account_id is required"})
		return
	}
	if req.Trade.Symbol == "" {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "trade.symbol is required"})
		return
	}
	req.Trade.Direction = strings.ToUpper(req.Trade.Direction)
	if req.Trade.Direction != "BUY" && req.Trade.Direction != "SELL" {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "trade.direction must be BUY or SELL"})
		return
	}
	if req.Trade.Volume <= 0 {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "trade.volume must be positive"})
		return
	}

	job := domain.ReplicationJob{
		ID:              uuid.NewString(),
		MasterAccountID: req.MasterAccountID,
		Trade:           req.Trade,
		Status:          domain.JobStatusPending,
		CreatedAt:       time.Now().UTC(),
	}

	reqCtx, cancel := context.WithTimeout(ctx.Request.Context(), 5*time.Second)
	defer cancel()
	if err := c.store.Create(reqCtx, job); err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if err := c.publisher.PublishJob(reqCtx, domain.JobEvent{
		JobID:           job.ID,
		MasterAccountID: job.MasterAccountID,
		Trade:           job.Trade,
	}); err != nil {
		// The job stays pending; POST /jobs/:id/publish re-sends the trigger.
		ctx.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "id": job.ID})
		return
	}

	ctx.JSON(http.StatusAccepted, job)
}

func (c *JobController) handleGetJob(ctx *gin.Context) {
	job, err := c.store.Get(ctx.Request.Context(), ctx.Param("id"))
	if errors.Is(err, domain.ErrJobNotFound) {
		ctx.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, job)
}

// handlePublishJob re-sends the trigger for a job that is still pending,
// e.g. after the publish in handleCreateJob failed.
func (c *JobController) handlePublishJob(ctx *gin.Context) {
	reqCtx, cancel := context.WithTimeout(ctx.Request.Context(), 5*time.Second)
	defer cancel()

	job, err := c.store.Get(reqCtx, ctx.Param("id"))
	if errors.Is(err, domain.ErrJobNotFound) {
		ctx.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if job.Status != domain.JobStatusPending {
		ctx.JSON(http.StatusConflict, gin.H{"error": "job is not pending", "status": job.Status})
		return
	}

	if err := c.publisher.PublishJob(reqCtx, domain.JobEvent{
		JobID:           job.ID,
		MasterAccountID: job.MasterAccountID,
		Trade:           job.Trade,
	}); err != nil {
		ctx.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "id": job.ID})
		return
	}
	ctx.JSON(http.StatusAccepted, job)
}
