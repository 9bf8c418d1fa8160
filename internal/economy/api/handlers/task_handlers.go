package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/agoramesh/agora-backend/internal/economy/auction"
	"github.com/agoramesh/agora-backend/internal/economy/ledger"
	"github.com/agoramesh/agora-backend/internal/economy/metrics"
	"github.com/agoramesh/agora-backend/internal/economy/types"
)

type createTaskRequest struct {
	TaskID   string `json:"task_id" binding:"required"`
	WindowMs int64  `json:"window_ms"`
}

type submitBidRequest struct {
	BidderID            string `json:"bidder_id"`
	ConfidenceBps       int64  `json:"confidence_bps"`
	StakeAmount         int64  `json:"stake_amount"`
	ResourceOffer       int64  `json:"resource_offer"`
	EstimatedDurationMs int64  `json:"estimated_duration_ms"`
	ScoreCenti          int64  `json:"score_centi"`
	SignatureVerdict    string `json:"signature_verdict"`
}

type completeTaskRequest struct {
	Metrics types.PerformanceMetrics `json:"metrics"`
}

type failTaskRequest struct {
	Severity types.FailureSeverity `json:"severity" binding:"required"`
}

// CreateTask opens a bidding auction for an announced task.
func (h *Handler) CreateTask(c *gin.Context) {
	h.logger.Debugf("POST [CreateTask] Opening auction")
	var req createTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Errorf("Error decoding request body: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request format",
			"code":  "INVALID_REQUEST",
		})
		return
	}

	var window time.Duration
	if req.WindowMs > 0 {
		window = time.Duration(req.WindowMs) * time.Millisecond
	}

	if err := h.auctions.Open(req.TaskID, window); err != nil {
		if errors.Is(err, auction.ErrAuctionExists) {
			c.JSON(http.StatusConflict, gin.H{
				"error": "Auction already open for task",
				"code":  "AUCTION_EXISTS",
			})
			return
		}
		h.logger.Errorf("Error opening auction for task %s: %v", req.TaskID, err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to open auction",
			"code":  "AUCTION_OPEN_ERROR",
		})
		return
	}

	metrics.OpenAuctions.Inc()
	c.JSON(http.StatusCreated, gin.H{"task_id": req.TaskID})
}

// SubmitBid records a bid for an open auction. A bid from the local agent
// locks stake and is scored here; a peer bid arrives pre-scored.
func (h *Handler) SubmitBid(c *gin.Context) {
	taskID := c.Param("id")
	h.logger.Debugf("POST [SubmitBid] Bid for task %s", taskID)
	var req submitBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Errorf("Error decoding request body: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request format",
			"code":  "INVALID_REQUEST",
		})
		return
	}

	if req.BidderID == "" || req.BidderID == h.agentID {
		bid, err := h.auctions.SubmitLocalBid(taskID, req.ConfidenceBps, req.StakeAmount, req.ResourceOffer, req.EstimatedDurationMs)
		if err != nil {
			h.respondBidError(c, taskID, err)
			return
		}
		metrics.BidsSubmittedTotal.WithLabelValues("local").Inc()
		c.JSON(http.StatusCreated, bid)
		return
	}

	bid := types.Bid{
		TaskID:            taskID,
		BidderID:          req.BidderID,
		ConfidenceBps:     req.ConfidenceBps,
		StakeAmount:       req.StakeAmount,
		ResourceOffer:     req.ResourceOffer,
		EstimatedDuration: req.EstimatedDurationMs,
		ScoreCenti:        req.ScoreCenti,
		SignatureVerdict:  req.SignatureVerdict,
	}
	if err := h.auctions.ReceivePeerBid(bid); err != nil {
		h.respondBidError(c, taskID, err)
		return
	}
	metrics.BidsSubmittedTotal.WithLabelValues("peer").Inc()
	c.JSON(http.StatusCreated, gin.H{"task_id": taskID, "bidder_id": req.BidderID})
}

func (h *Handler) respondBidError(c *gin.Context, taskID string, err error) {
	switch {
	case errors.Is(err, auction.ErrAuctionNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error": "No auction for task",
			"code":  "AUCTION_NOT_FOUND",
		})
	case errors.Is(err, auction.ErrAuctionClosed):
		c.JSON(http.StatusConflict, gin.H{
			"error": "Auction no longer accepting bids",
			"code":  "AUCTION_CLOSED",
		})
	case errors.Is(err, ledger.ErrInsufficientBalance), errors.Is(err, ledger.ErrStakeOutOfRange):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error": err.Error(),
			"code":  "STAKE_REJECTED",
		})
	default:
		h.logger.Errorf("Error recording bid for task %s: %v", taskID, err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to record bid",
			"code":  "BID_ERROR",
		})
	}
}

// GetTask returns the auction state and winner, if selected.
func (h *Handler) GetTask(c *gin.Context) {
	taskID := c.Param("id")
	state, err := h.auctions.State(taskID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "No auction for task",
			"code":  "AUCTION_NOT_FOUND",
		})
		return
	}

	response := gin.H{"task_id": taskID, "state": state}
	if winner, err := h.auctions.Winner(taskID); err == nil {
		response["winner"] = winner
	}
	c.JSON(http.StatusOK, response)
}

// CompleteTask settles a successful delivery: releases the stake, pays the
// performance-weighted reward and awards reputation.
func (h *Handler) CompleteTask(c *gin.Context) {
	taskID := c.Param("id")
	h.logger.Debugf("POST [CompleteTask] Settling task %s", taskID)
	var req completeTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Errorf("Error decoding request body: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request format",
			"code":  "INVALID_REQUEST",
		})
		return
	}

	reward := h.outcomes.HandleCompletion(c.Request.Context(), taskID, req.Metrics)
	if err := h.auctions.MarkResolved(taskID, types.AuctionCompleted); err != nil && !errors.Is(err, auction.ErrAuctionNotFound) {
		h.logger.Warnf("Could not mark auction %s resolved: %v", taskID, err)
	}

	metrics.TaskOutcomesTotal.WithLabelValues("completed").Inc()
	metrics.RewardTokensTotal.Add(float64(reward))
	c.JSON(http.StatusOK, gin.H{
		"task_id": taskID,
		"reward":  reward,
		"balance": h.ledger.Balance(),
	})
}

// FailTask settles a failed delivery: slashes the stake by severity and
// applies the reputation penalty.
func (h *Handler) FailTask(c *gin.Context) {
	taskID := c.Param("id")
	h.logger.Debugf("POST [FailTask] Settling failed task %s", taskID)
	var req failTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Errorf("Error decoding request body: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request format",
			"code":  "INVALID_REQUEST",
		})
		return
	}
	switch req.Severity {
	case types.SeverityLow, types.SeverityMedium, types.SeverityHigh, types.SeverityCritical:
	default:
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Unknown failure severity",
			"code":  "INVALID_SEVERITY",
		})
		return
	}

	penalty := h.outcomes.HandleFailure(c.Request.Context(), taskID, req.Severity)
	if err := h.auctions.MarkResolved(taskID, types.AuctionFailed); err != nil && !errors.Is(err, auction.ErrAuctionNotFound) {
		h.logger.Warnf("Could not mark auction %s resolved: %v", taskID, err)
	}

	metrics.TaskOutcomesTotal.WithLabelValues("failed").Inc()
	metrics.PenaltyTokensTotal.Add(float64(penalty))
	c.JSON(http.StatusOK, gin.H{
		"task_id": taskID,
		"penalty": penalty,
		"balance": h.ledger.Balance(),
	})
}
