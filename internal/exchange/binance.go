package exchange

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/shopspring/decimal"

	"github.com/fleetoms/fleet/pkg/types"
)

// NewBinanceClient builds a spot or futures session depending on the
// account type. Master accounts trade spot.
func NewBinanceClient(account *types.Account, apiKey, apiSecret string) (Client, error) {
	switch account.Type {
	case types.AccountTypeSubFutures:
		return &binanceFutures{client: futures.NewClient(apiKey, apiSecret)}, nil
	case types.AccountTypeMaster, types.AccountTypeSubSpot:
		return &binanceSpot{client: binance.NewClient(apiKey, apiSecret)}, nil
	default:
		return nil, fmt.Errorf("unsupported account type: %s", account.Type)
	}
}

type binanceSpot struct {
	client *binance.Client
}

func (b *binanceSpot) GetBalance(ctx context.Context) (*types.Balance, error) {
	account, err := b.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get spot account: %w", err)
	}

	total := decimal.Zero
	available := decimal.Zero
	for _, asset := range account.Balances {
		if asset.Asset != "USDT" {
			continue
		}
		free := parseDecimal(asset.Free)
		locked := parseDecimal(asset.Locked)
		total = free.Add(locked)
		available = free
	}

	return &types.Balance{
		Total:     total,
		Available: available,
		UpdatedAt: time.Now(),
	}, nil
}

// Spot accounts have no positions in the futures sense; non-stable
// holdings are not tracked as exposure here.
func (b *binanceSpot) GetPositions(ctx context.Context) ([]*types.Position, error) {
	return nil, nil
}

func (b *binanceSpot) PlaceOrder(ctx context.Context, req *OrderRequest) (*OrderAck, error) {
	svc := b.client.NewCreateOrderService().
		Symbol(req.Symbol).
		Side(binance.SideType(req.Side)).
		Type(binance.OrderType(req.Type)).
		Quantity(req.Quantity.String())

	if req.Type == "LIMIT" {
		svc = svc.Price(req.Price.String()).TimeInForce(binance.TimeInForceTypeGTC)
	}

	res, err := svc.Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to place spot order: %w", err)
	}

	return &OrderAck{
		OrderID: strconv.FormatInt(res.OrderID, 10),
		Symbol:  res.Symbol,
		Status:  string(res.Status),
	}, nil
}

func (b *binanceSpot) CancelOpenOrders(ctx context.Context, symbol string) error {
	if _, err := b.client.NewCancelOpenOrdersService().Symbol(symbol).Do(ctx); err != nil {
		return fmt.Errorf("failed to cancel spot orders for %s: %w", symbol, err)
	}
	return nil
}

type binanceFutures struct {
	client *futures.Client
}

func (b *binanceFutures) GetBalance(ctx context.Context) (*types.Balance, error) {
	account, err := b.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get futures account: %w", err)
	}

	return &types.Balance{
		Total:         parseDecimal(account.TotalWalletBalance),
		Available:     parseDecimal(account.AvailableBalance),
		UnrealizedPnL: parseDecimal(account.TotalUnrealizedProfit),
		UpdatedAt:     time.Now(),
	}, nil
}

func (b *binanceFutures) GetPositions(ctx context.Context) ([]*types.Position, error) {
	risks, err := b.client.NewGetPositionRiskService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get positions: %w", err)
	}

	var positions []*types.Position
	for _, risk := range risks {
		amt := parseDecimal(risk.PositionAmt)
		if amt.IsZero() {
			continue
		}

		side := types.PositionSideLong
		if amt.IsNegative() {
			side = types.PositionSideShort
		}

		positions = append(positions, &types.Position{
			Symbol:     risk.Symbol,
			Side:       side,
			Size:       amt.Abs(),
			EntryPrice: parseDecimal(risk.EntryPrice),
			MarkPrice:  parseDecimal(risk.MarkPrice),
		})
	}

	return positions, nil
}

func (b *binanceFutures) PlaceOrder(ctx context.Context, req *OrderRequest) (*OrderAck, error) {
	svc := b.client.NewCreateOrderService().
		Symbol(req.Symbol).
		Side(futures.SideType(req.Side)).
		Type(futures.OrderType(req.Type)).
		Quantity(req.Quantity.String())

	if req.Type == "LIMIT" {
		svc = svc.Price(req.Price.String()).TimeInForce(futures.TimeInForceTypeGTC)
	}

	res, err := svc.Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to place futures order: %w", err)
	}

	return &OrderAck{
		OrderID: strconv.FormatInt(res.OrderID, 10),
		Symbol:  res.Symbol,
		Status:  string(res.Status),
	}, nil
}

func (b *binanceFutures) CancelOpenOrders(ctx context.Context, symbol string) error {
	if err := b.client.NewCancelAllOpenOrdersService().Symbol(symbol).Do(ctx); err != nil {
		return fmt.Errorf("failed to cancel futures orders for %s: %w", symbol, err)
	}
	return nil
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
