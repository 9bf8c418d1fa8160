package handlers

import (
	"github.com/agoramesh/agora-backend/pkg/logging"

	"github.com/agoramesh/agora-backend/internal/economy/auction"
	"github.com/agoramesh/agora-backend/internal/economy/governance"
	"github.com/agoramesh/agora-backend/internal/economy/ledger"
	"github.com/agoramesh/agora-backend/internal/economy/outcome"
	"github.com/agoramesh/agora-backend/internal/economy/reputation"
)

// Handler exposes the economy engines over HTTP.
type Handler struct {
	agentID    string
	ledger     *ledger.TokenLedger
	reputation *reputation.Tracker
	auctions   *auction.Engine
	outcomes   *outcome.Processor
	governance *governance.Engine
	registry   *governance.Registry
	logger     logging.Logger
}

func NewHandler(
	agentID string,
	tokenLedger *ledger.TokenLedger,
	tracker *reputation.Tracker,
	auctions *auction.Engine,
	outcomes *outcome.Processor,
	governanceEngine *governance.Engine,
	registry *governance.Registry,
	logger logging.Logger,
) *Handler {
	return &Handler{
		agentID:    agentID,
		ledger:     tokenLedger,
		reputation: tracker,
		auctions:   auctions,
		outcomes:   outcomes,
		governance: governanceEngine,
		registry:   registry,
		logger:     logger,
	}
}
