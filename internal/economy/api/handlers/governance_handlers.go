package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/agoramesh/agora-backend/internal/economy/governance"
	"github.com/agoramesh/agora-backend/internal/economy/metrics"
	"github.com/agoramesh/agora-backend/internal/economy/types"
)

type createProposalRequest struct {
	ProtocolName    string `json:"protocol_name" binding:"required"`
	ProposedVersion string `json:"proposed_version" binding:"required"`
	ChangePayload   string `json:"change_payload"`
	ProposerID      string `json:"proposer_id"`
}

type submitVoteRequest struct {
	VoterID            string           `json:"voter_id" binding:"required"`
	Choice             types.VoteChoice `json:"choice" binding:"required"`
	ReputationMillirep int64            `json:"reputation_millirep"`
}

// CreateProposal opens a protocol change proposal for voting.
func (h *Handler) CreateProposal(c *gin.Context) {
	h.logger.Debugf("POST [CreateProposal] Creating proposal")
	var req createProposalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Errorf("Error decoding request body: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request format",
			"code":  "INVALID_REQUEST",
		})
		return
	}

	proposerID := req.ProposerID
	proposerReputation := int64(0)
	if proposerID == "" || proposerID == h.agentID {
		proposerID = h.agentID
		proposerReputation = h.reputation.Score()
	}

	proposal, err := h.governance.Propose(req.ProtocolName, req.ProposedVersion, req.ChangePayload, proposerID, proposerReputation)
	if err != nil {
		switch {
		case errors.Is(err, governance.ErrProtocolNotFound):
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Unknown protocol",
				"code":  "PROTOCOL_NOT_FOUND",
			})
		case errors.Is(err, governance.ErrProtocolImmutable):
			c.JSON(http.StatusConflict, gin.H{
				"error": "Protocol is immutable",
				"code":  "PROTOCOL_IMMUTABLE",
			})
		case errors.Is(err, governance.ErrInsufficientReputation):
			c.JSON(http.StatusForbidden, gin.H{
				"error": "Proposer reputation below minimum",
				"code":  "INSUFFICIENT_REPUTATION",
			})
		default:
			h.logger.Errorf("Error creating proposal: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to create proposal",
				"code":  "PROPOSAL_CREATION_ERROR",
			})
		}
		return
	}

	c.JSON(http.StatusCreated, proposal)
}

// SubmitVote records a reputation-weighted vote on an active proposal. A
// repeat vote from the same voter replaces the earlier one.
func (h *Handler) SubmitVote(c *gin.Context) {
	proposalID := c.Param("id")
	h.logger.Debugf("POST [SubmitVote] Vote on proposal %s", proposalID)
	var req submitVoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Errorf("Error decoding request body: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request format",
			"code":  "INVALID_REQUEST",
		})
		return
	}
	if req.Choice != types.VoteApprove && req.Choice != types.VoteReject {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Unknown vote choice",
			"code":  "INVALID_CHOICE",
		})
		return
	}

	voterReputation := req.ReputationMillirep
	if req.VoterID == h.agentID {
		voterReputation = h.reputation.Score()
	}

	if err := h.governance.Vote(proposalID, req.VoterID, req.Choice, voterReputation); err != nil {
		switch {
		case errors.Is(err, governance.ErrProposalNotFound):
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Proposal not found",
				"code":  "PROPOSAL_NOT_FOUND",
			})
		case errors.Is(err, governance.ErrProposalExpired):
			c.JSON(http.StatusConflict, gin.H{
				"error": "Voting window has closed",
				"code":  "PROPOSAL_EXPIRED",
			})
		case errors.Is(err, governance.ErrInsufficientReputation):
			c.JSON(http.StatusForbidden, gin.H{
				"error": "Voter reputation below minimum",
				"code":  "INSUFFICIENT_REPUTATION",
			})
		default:
			h.logger.Errorf("Error recording vote on proposal %s: %v", proposalID, err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to record vote",
				"code":  "VOTE_ERROR",
			})
		}
		return
	}

	metrics.VotesRecordedTotal.WithLabelValues(string(req.Choice)).Inc()
	c.JSON(http.StatusCreated, gin.H{"proposal_id": proposalID, "voter_id": req.VoterID})
}

// GetProposal returns one proposal with its recorded votes.
func (h *Handler) GetProposal(c *gin.Context) {
	proposalID := c.Param("id")
	proposal, err := h.governance.Get(proposalID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Proposal not found",
			"code":  "PROPOSAL_NOT_FOUND",
		})
		return
	}
	c.JSON(http.StatusOK, proposal)
}

// ListProposals returns every known proposal.
func (h *Handler) ListProposals(c *gin.Context) {
	c.JSON(http.StatusOK, h.governance.List())
}

// ListProtocols returns the protocol registry.
func (h *Handler) ListProtocols(c *gin.Context) {
	c.JSON(http.StatusOK, h.registry.List())
}
