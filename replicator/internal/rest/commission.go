package rest

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/0xRichardL/vibe-copy-trading/libs/go/commission"
	"github.com/gin-gonic/gin"
)

// CommissionController exposes the tier and commission calculators.
type CommissionController struct{}

func NewCommissionController() *CommissionController {
	return &CommissionController{}
}

func (c *CommissionController) RegisterCommissionRoutes(rg *gin.RouterGroup) {
	rg.GET("/commission/tier", c.handleTier)
	rg.POST("/commission/quote", c.handleQuote)
}

func (c *CommissionController) handleTier(ctx *gin.Context) {
	referrals, err := strconv.Atoi(ctx.Query("referrals"))
	if err != nil || referrals < 0 {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "referrals must be a non-negative integer"})
		return
	}
	tier := commission.TierForReferralCount(referrals)
	direct, _ := commission.PerLot(tier, commission.ClassDirect)
	institutional, _ := commission.PerLot(tier, commission.ClassInstitutional)

	ctx.JSON(http.StatusOK, gin.H{
		"referrals": referrals,
		"tier":      int(tier),
		"per_lot": gin.H{
			string(commission.ClassDirect):        direct.StringFixed(2),
			string(commission.ClassInstitutional): institutional.StringFixed(2),
		},
	})
}

func (c *CommissionController) handleQuote(ctx *gin.Context) {
	var req struct {
		Symbol       string  `json:"symbol"`
		Lots         float64 `json:"lots"`
		Volume       float64 `json:"volume"`
		Tier         int     `json:"tier"`
		AccountClass string  `json:"account_class"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	tier, err := commission.ParseTier(req.Tier)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	class, err := commission.ParseAccountClass(req.AccountClass)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	trade := commission.Trade{Symbol: req.Symbol, Lots: req.Lots, Volume: req.Volume}

	amount, err := commission.TradeCommission(trade, tier, class)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, commission.ErrInvalidTier) || errors.Is(err, commission.ErrInvalidAccountClass) {
			status = http.StatusBadRequest
		}
		ctx.JSON(status, gin.H{"error": err.Error()})
		return
	}
	perLot, _ := commission.PerLot(tier, class)

	ctx.JSON(http.StatusOK, gin.H{
		"symbol":        req.Symbol,
		"tier":          int(tier),
		"account_class": string(class),
		"eligible":      commission.IsEligibleInstrument(req.Symbol, class),
		"per_lot":       perLot.StringFixed(2),
		"commission":    amount.StringFixed(2),
	})
}
