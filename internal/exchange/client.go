package exchange

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/fleetoms/fleet/pkg/types"
)

// OrderRequest carries the parameters for a new order.
type OrderRequest struct {
	Symbol   string
	Side     string // BUY or SELL
	Type     string // MARKET or LIMIT
	Quantity decimal.Decimal
	Price    decimal.Decimal
}

// OrderAck is the exchange's acknowledgement of a placed order.
type OrderAck struct {
	OrderID string
	Symbol  string
	Status  string
}

// Client is the per-account exchange API surface the orchestration layer
// depends on. Calls may fail independently per account and are safe to
// retry.
type Client interface {
	GetBalance(ctx context.Context) (*types.Balance, error)
	GetPositions(ctx context.Context) ([]*types.Position, error)
	PlaceOrder(ctx context.Context, req *OrderRequest) (*OrderAck, error)
	CancelOpenOrders(ctx context.Context, symbol string) error
}

// Factory builds a client session for one account from its resolved
// credentials.
type Factory func(account *types.Account, apiKey, apiSecret string) (Client, error)
