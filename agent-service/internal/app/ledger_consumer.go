package app

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/multimart/marketplace/agent-service/internal/store"
	"github.com/shopspring/decimal"
)

const ledgerUpdateTimeout = 10 * time.Second

// LedgerStore is the slice of the repository the ledger consumer writes to.
type LedgerStore interface {
	UpdateLedgerTotals(ctx context.Context, agentCode string, totalSales, totalCommission decimal.Decimal) error
}

// LedgerConsumer mirrors commission ledger totals onto approved applications.
type LedgerConsumer struct {
	store  LedgerStore
	logger *slog.Logger
}

// NewLedgerConsumer creates a consumer for commission.ledger.updated messages.
func NewLedgerConsumer(ledger LedgerStore, logger *slog.Logger) *LedgerConsumer {
	return &LedgerConsumer{store: ledger, logger: logger}
}

// HandleMessage processes one ledger update. It returns false only for
// failures worth retrying; malformed or unknown updates are dropped.
func (c *LedgerConsumer) HandleMessage(body []byte) bool {
	var update LedgerUpdate
	if err := json.Unmarshal(body, &update); err != nil {
		c.logger.Error("failed to unmarshal ledger update; dropping", "error", err)
		return true
	}

	update.AgentCode = strings.TrimSpace(update.AgentCode)
	if update.AgentCode == "" {
		c.logger.Warn("ledger update missing agent code; dropping")
		return true
	}
	if update.TotalSales.IsNegative() || update.TotalCommission.IsNegative() {
		c.logger.Warn("ledger update carries negative totals; dropping", "agent_code", update.AgentCode)
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), ledgerUpdateTimeout)
	defer cancel()

	err := c.store.UpdateLedgerTotals(ctx, update.AgentCode, update.TotalSales, update.TotalCommission)
	switch {
	case err == nil:
		c.logger.Info("ledger totals updated", "agent_code", update.AgentCode, "total_sales", update.TotalSales.String(), "total_commission", update.TotalCommission.String())
		return true
	case errors.Is(err, store.ErrUnknownAgentCode):
		c.logger.Warn("ledger update for unknown agent code; dropping", "agent_code", update.AgentCode)
		return true
	default:
		c.logger.Error("failed to update ledger totals", "agent_code", update.AgentCode, "error", err)
		return false
	}
}
