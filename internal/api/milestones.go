package api

import (
	"errors"
	"net/http"
	"strconv"

	"UD_milestone_rewards/internal/model"
	"UD_milestone_rewards/internal/service"
	"UD_milestone_rewards/pkg/logger"
	"go.uber.org/zap"

	"github.com/gin-gonic/gin"
)

type milestoneRoutes struct {
	qs service.MilestoneQueryServiceI
}

func NewMilestoneRoutes(handler *gin.RouterGroup, qs service.MilestoneQueryServiceI) {
	r := &milestoneRoutes{qs: qs}

	u := handler.Group("/users")
	{
		u.GET("/:user_id/milestones", r.GetUserMilestones)
		u.GET("/:user_id/rewards", r.GetUserRewards)
		u.GET("/:user_id/wallet", r.GetUserWallet)
	}

	handler.GET("/runs/latest", r.GetLatestRun)
}

func parseUserID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("user_id"), 10, 64)
	if err != nil {
		logger.Logger().Error("failed to parse user_id", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user_id"})
		return 0, false
	}
	return id, true
}

func (r *milestoneRoutes) GetUserMilestones(c *gin.Context) {
	log := logger.Logger()

	userID, ok := parseUserID(c)
	if !ok {
		return
	}

	records, err := r.qs.GetUserProgress(c.Request.Context(), userID)
	if err != nil {
		log.Error("failed to get user progress", zap.Int64("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get milestones"})
		return
	}

	response := make([]gin.H, 0, len(records))
	for _, p := range records {
		response = append(response, progressResponse(p))
	}

	c.JSON(http.StatusOK, response)
}

func progressResponse(p model.ProgressRecord) gin.H {
	return gin.H{
		"id":                             p.ID,
		"milestone_definition_id":        p.MilestoneDefinitionID,
		"milestone_type":                 p.MilestoneType,
		"milestone_target_value":         p.MilestoneTargetValue,
		"reward_amount_value":            p.RewardAmountValue,
		"time_limit_days_value":          p.TimeLimitDaysValue,
		"tracking_period_start":          p.TrackingPeriodStart,
		"tracking_period_end":            p.TrackingPeriodEnd,
		"current_accumulated_value":      p.CurrentAccumulatedValue,
		"last_data_point_date_processed": p.LastDataPointDateProcessed,
		"status":                         p.Status,
		"completed_at":                   p.CompletedAt,
	}
}

func (r *milestoneRoutes) GetUserRewards(c *gin.Context) {
	log := logger.Logger()

	userID, ok := parseUserID(c)
	if !ok {
		return
	}

	entries, err := r.qs.GetUserRewards(c.Request.Context(), userID)
	if err != nil {
		log.Error("failed to get user rewards", zap.Int64("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get rewards"})
		return
	}

	response := make([]gin.H, 0, len(entries))
	for _, e := range entries {
		response = append(response, gin.H{
			"id":                      e.ID,
			"type":                    e.Type,
			"amount":                  e.Amount,
			"wallet_field":            e.WalletField,
			"milestone_definition_id": e.MilestoneDefinitionID,
			"progress_record_id":      e.ProgressRecordID,
			"milestone_value":         e.MilestoneValue,
			"created_at":              e.CreatedAt,
		})
	}

	c.JSON(http.StatusOK, response)
}

func (r *milestoneRoutes) GetUserWallet(c *gin.Context) {
	log := logger.Logger()

	userID, ok := parseUserID(c)
	if !ok {
		return
	}

	wallet, err := r.qs.GetWallet(c.Request.Context(), userID)
	if err != nil {
		log.Error("failed to get wallet", zap.Int64("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get wallet"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id":             wallet.UserID,
		"purchase_wallet":     wallet.Balance(model.PurchaseWallet),
		"withdrawable_wallet": wallet.Balance(model.WithdrawableWallet),
	})
}

func (r *milestoneRoutes) GetLatestRun(c *gin.Context) {
	log := logger.Logger()

	run, err := r.qs.GetLatestRun(c.Request.Context())
	if err != nil {
		if errors.Is(err, service.ErrRunNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no run recorded yet"})
			return
		}
		log.Error("failed to get latest run", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get latest run"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":                  run.ID,
		"started_at":          run.StartedAt,
		"finished_at":         run.FinishedAt,
		"users_evaluated":     run.UsersEvaluated,
		"records_opened":      run.RecordsOpened,
		"records_expired":     run.RecordsExpired,
		"credits":             run.Credits,
		"total_credited":      run.TotalCredited,
		"configuration_skips": run.ConfigurationSkips,
		"credits_by_type":     run.CreditsByType,
	})
}
