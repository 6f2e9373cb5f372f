// Package exchange provides exchange client implementations.
package exchange

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"github.com/Angleito/BluefinAIAgentTrader/internal/errors"
	"github.com/Angleito/BluefinAIAgentTrader/internal/models"
)

const (
	mainnetAPIURL = "https://dapi.api.sui-prod.bluefin.io"
	testnetAPIURL = "https://dapi.api.sui-staging.bluefin.io"

	// Bluefin quantities and prices are fixed-point integers scaled by 1e18.
	quoteScale = 1e18
)

// BluefinClient implements the Exchange interface against the Bluefin
// perpetuals REST API on Sui.
type BluefinClient struct {
	client     *resty.Client
	limiter    *rate.Limiter
	network    string
	privateKey string
	authToken  string
	mu         sync.RWMutex
}

// BluefinConfig holds configuration for the Bluefin client.
type BluefinConfig struct {
	Network    string // "mainnet" or "testnet"
	PrivateKey string
	APIURL     string // overrides the network default when set
}

// NewBluefinClient creates a new Bluefin exchange client.
func NewBluefinClient(cfg BluefinConfig) *BluefinClient {
	baseURL := cfg.APIURL
	if baseURL == "" {
		if cfg.Network == "testnet" {
			baseURL = testnetAPIURL
		} else {
			baseURL = mainnetAPIURL
		}
	}

	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(15 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetHeader("Content-Type", "application/json")

	return &BluefinClient{
		client:     client,
		limiter:    rate.NewLimiter(rate.Limit(10), 20),
		network:    cfg.Network,
		privateKey: cfg.PrivateKey,
	}
}

// wait blocks until the rate limiter admits another request.
func (b *BluefinClient) wait(ctx context.Context) error {
	if err := b.limiter.Wait(ctx); err != nil {
		return errors.Wrap(errors.ErrRateLimited, err.Error())
	}
	return nil
}

func (b *BluefinClient) authHeader() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return "Bearer " + b.authToken
}

// Authenticate exchanges the wallet key for an API session token.
func (b *BluefinClient) Authenticate(ctx context.Context) error {
	if b.privateKey == "" {
		return errors.NewConfigurationError("bluefin.private_key", "", "private key is required for live trading")
	}
	if err := b.wait(ctx); err != nil {
		return err
	}

	var result struct {
		Token string `json:"token"`
	}
	resp, err := b.client.R().
		SetContext(ctx).
		SetBody(map[string]string{
			"signature": b.privateKey,
			"timestamp": strconv.FormatInt(time.Now().UnixMilli(), 10),
		}).
		SetResult(&result).
		Post("/auth/token")
	if err != nil {
		return errors.NewExchangeError("AUTH_FAILED", "authentication request failed", err)
	}
	if resp.IsError() {
		return errors.NewExchangeError("AUTH_FAILED", fmt.Sprintf("authentication rejected: %s", resp.Status()), nil)
	}

	b.mu.Lock()
	b.authToken = result.Token
	b.mu.Unlock()
	return nil
}

type bluefinAccount struct {
	FreeCollateral  string `json:"freeCollateral"`
	AccountValue    string `json:"accountValue"`
	TotalMarginUsed string `json:"totalPositionMargin"`
}

// GetBalance fetches the account margin balances.
func (b *BluefinClient) GetBalance(ctx context.Context) (*models.Balance, error) {
	if err := b.wait(ctx); err != nil {
		return nil, err
	}

	var account bluefinAccount
	resp, err := b.client.R().
		SetContext(ctx).
		SetHeader("Authorization", b.authHeader()).
		SetResult(&account).
		Get("/account")
	if err != nil {
		return nil, errors.NewExchangeError("BALANCE_FAILED", "failed to fetch account", err)
	}
	if resp.IsError() {
		return nil, errors.NewExchangeError("BALANCE_FAILED", fmt.Sprintf("account request rejected: %s", resp.Status()), nil)
	}

	return &models.Balance{
		AvailableMargin: parseScaled(account.FreeCollateral),
		TotalEquity:     parseScaled(account.AccountValue),
		UsedMargin:      parseScaled(account.TotalMarginUsed),
	}, nil
}

type bluefinPosition struct {
	Symbol               string `json:"symbol"`
	Side                 string `json:"side"`
	Quantity             string `json:"quantity"`
	AvgEntryPrice        string `json:"avgEntryPrice"`
	Leverage             string `json:"leverage"`
	UnrealizedProfit     string `json:"unrealizedProfit"`
	UpdatedAtMillisecond int64  `json:"updatedAt"`
}

// GetPositions fetches all open positions.
func (b *BluefinClient) GetPositions(ctx context.Context) ([]models.Position, error) {
	if err := b.wait(ctx); err != nil {
		return nil, err
	}

	var raw []bluefinPosition
	resp, err := b.client.R().
		SetContext(ctx).
		SetHeader("Authorization", b.authHeader()).
		SetResult(&raw).
		Get("/userPosition")
	if err != nil {
		return nil, errors.NewExchangeError("POSITIONS_FAILED", "failed to fetch positions", err)
	}
	if resp.IsError() {
		return nil, errors.NewExchangeError("POSITIONS_FAILED", fmt.Sprintf("positions request rejected: %s", resp.Status()), nil)
	}

	positions := make([]models.Position, 0, len(raw))
	for _, p := range raw {
		size := parseScaled(p.Quantity)
		if size <= 0 {
			continue
		}
		direction := models.DirectionLong
		if strings.EqualFold(p.Side, "SELL") || strings.EqualFold(p.Side, "SHORT") {
			direction = models.DirectionShort
		}
		positions = append(positions, models.Position{
			Symbol:        p.Symbol,
			Direction:     direction,
			Size:          size,
			EntryPrice:    parseScaled(p.AvgEntryPrice),
			Leverage:      int(parseScaled(p.Leverage)),
			UnrealizedPnL: parseScaled(p.UnrealizedProfit),
			OpenedAt:      time.UnixMilli(p.UpdatedAtMillisecond),
		})
	}
	return positions, nil
}

// GetPosition fetches the open position for a symbol, or nil when flat.
func (b *BluefinClient) GetPosition(ctx context.Context, symbol string) (*models.Position, error) {
	positions, err := b.GetPositions(ctx)
	if err != nil {
		return nil, err
	}
	for i := range positions {
		if positions[i].Symbol == symbol {
			return &positions[i], nil
		}
	}
	return nil, nil
}

// GetMarkPrice fetches the current mark price for a symbol.
func (b *BluefinClient) GetMarkPrice(ctx context.Context, symbol string) (float64, error) {
	if err := b.wait(ctx); err != nil {
		return 0, err
	}

	var data struct {
		MarkPrice string `json:"markPrice"`
	}
	resp, err := b.client.R().
		SetContext(ctx).
		SetQueryParam("symbol", symbol).
		SetResult(&data).
		Get("/marketData")
	if err != nil {
		return 0, errors.NewExchangeError("PRICE_FAILED", "failed to fetch mark price", err)
	}
	if resp.IsError() {
		return 0, errors.NewExchangeError("PRICE_FAILED", fmt.Sprintf("market data request rejected: %s", resp.Status()), nil)
	}

	price := parseScaled(data.MarkPrice)
	if price <= 0 {
		return 0, errors.NewExchangeError("PRICE_FAILED", fmt.Sprintf("invalid mark price for %s", symbol), nil)
	}
	return price, nil
}

// SetLeverage updates the leverage for a symbol.
func (b *BluefinClient) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	if err := b.wait(ctx); err != nil {
		return err
	}

	resp, err := b.client.R().
		SetContext(ctx).
		SetHeader("Authorization", b.authHeader()).
		SetBody(map[string]interface{}{
			"symbol":   symbol,
			"leverage": formatScaled(float64(leverage)),
		}).
		Post("/account/adjustLeverage")
	if err != nil {
		return errors.NewExchangeError("LEVERAGE_FAILED", "failed to set leverage", err)
	}
	if resp.IsError() {
		return errors.NewExchangeError("LEVERAGE_FAILED", fmt.Sprintf("leverage request rejected: %s", resp.Status()), nil)
	}
	return nil
}

type bluefinOrderResponse struct {
	Hash         string `json:"hash"`
	OrderStatus  string `json:"orderStatus"`
	FilledQty    string `json:"filledQty"`
	AvgFillPrice string `json:"avgFillPrice"`
	Message      string `json:"message"`
}

// PlaceOrder submits an order to the exchange.
func (b *BluefinClient) PlaceOrder(ctx context.Context, order *models.Order) (*models.OrderResult, error) {
	if err := b.wait(ctx); err != nil {
		return nil, err
	}

	body := map[string]interface{}{
		"symbol":     order.Symbol,
		"side":       string(order.Side),
		"orderType":  string(order.Type),
		"quantity":   formatScaled(order.Size),
		"leverage":   formatScaled(float64(order.Leverage)),
		"reduceOnly": order.ReduceOnly,
	}
	if order.Type == models.OrderTypeLimit {
		body["price"] = formatScaled(order.Price)
	}
	if order.TriggerPrice > 0 {
		body["triggerPrice"] = formatScaled(order.TriggerPrice)
	}

	var result bluefinOrderResponse
	resp, err := b.client.R().
		SetContext(ctx).
		SetHeader("Authorization", b.authHeader()).
		SetBody(body).
		SetResult(&result).
		Post("/orders")
	if err != nil {
		return nil, errors.NewExecutionError("", order.Symbol, string(order.Side), "order submission failed", err)
	}
	if resp.StatusCode() == 429 {
		return nil, errors.Wrap(errors.ErrRateLimited, "order endpoint throttled")
	}
	if resp.IsError() {
		return nil, errors.NewExecutionError("", order.Symbol, string(order.Side),
			fmt.Sprintf("order rejected: %s %s", resp.Status(), result.Message), errors.ErrOrderRejected)
	}

	return &models.OrderResult{
		OrderID:      result.Hash,
		Status:       normalizeOrderStatus(result.OrderStatus),
		FilledSize:   parseScaled(result.FilledQty),
		AveragePrice: parseScaled(result.AvgFillPrice),
		Message:      result.Message,
	}, nil
}

// CancelOrder cancels a resting order.
func (b *BluefinClient) CancelOrder(ctx context.Context, symbol, orderID string) error {
	if err := b.wait(ctx); err != nil {
		return err
	}

	resp, err := b.client.R().
		SetContext(ctx).
		SetHeader("Authorization", b.authHeader()).
		SetBody(map[string]interface{}{
			"symbol":      symbol,
			"orderHashes": []string{orderID},
		}).
		Delete("/orders/hash")
	if err != nil {
		return errors.NewExchangeError("CANCEL_FAILED", "failed to cancel order", err)
	}
	if resp.IsError() {
		return errors.NewExchangeError("CANCEL_FAILED", fmt.Sprintf("cancel rejected: %s", resp.Status()), nil)
	}
	return nil
}

// IsSimulated returns false for the live client.
func (b *BluefinClient) IsSimulated() bool {
	return false
}

// normalizeOrderStatus maps Bluefin order statuses onto the statuses the
// rest of the pipeline understands.
func normalizeOrderStatus(status string) string {
	switch strings.ToUpper(status) {
	case "FILLED":
		return "FILLED"
	case "PARTIALLY_FILLED", "PARTIAL_FILLED":
		return "PARTIALLY_FILLED"
	case "OPEN", "PENDING", "STAND_BY", "STAND_BY_PENDING":
		return "NEW"
	case "CANCELLED", "CANCELLING":
		return "CANCELLED"
	default:
		return strings.ToUpper(status)
	}
}

// parseScaled converts a 1e18-scaled decimal string to a float64.
func parseScaled(s string) float64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v / quoteScale
}

// formatScaled converts a float64 to a 1e18-scaled integer string.
func formatScaled(v float64) string {
	return strconv.FormatFloat(v*quoteScale, 'f', 0, 64)
}

var _ Exchange = (*BluefinClient)(nil)
