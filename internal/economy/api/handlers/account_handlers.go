package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetAccount returns the current account snapshot.
func (h *Handler) GetAccount(c *gin.Context) {
	snapshot := h.ledger.Snapshot()
	snapshot.ReputationMillirep = h.reputation.Score()
	c.JSON(http.StatusOK, snapshot)
}

// GetStatus is the liveness probe. It also reports the headline account
// numbers so operators can eyeball a node without a second request.
func (h *Handler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":              "healthy",
		"agent_id":            h.agentID,
		"balance":             h.ledger.Balance(),
		"locked_stake":        h.ledger.TotalLocked(),
		"reputation_millirep": h.reputation.Score(),
	})
}
