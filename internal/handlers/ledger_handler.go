package handlers

import (
	"context"
	"net/http"
	"time"

	"community-campaigns/internal/blockchain"

	"github.com/gin-gonic/gin"
)

const diagnosticsTimeout = 15 * time.Second

// LedgerDiagnostics reports on the ledger connection without sending
// transactions. *blockchain.CampaignRegistry satisfies it.
type LedgerDiagnostics interface {
	RunDiagnostics(ctx context.Context) *blockchain.DiagnosticResult
}

type LedgerHandler struct {
	ledger LedgerDiagnostics
}

func NewLedgerHandler(ledger LedgerDiagnostics) *LedgerHandler {
	return &LedgerHandler{ledger: ledger}
}

// Diagnostics checks RPC reachability, signer and contract
// GET /api/admin/ledger/diagnostics
func (h *LedgerHandler) Diagnostics(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), diagnosticsTimeout)
	defer cancel()

	result := h.ledger.RunDiagnostics(ctx)

	status := http.StatusOK
	if !result.ConfigValid || !result.RPCConnected {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, result)
}
