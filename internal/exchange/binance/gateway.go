package binance

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2"

	"github.com/Alias1177/cryptobot/models"
)

// Gateway places live market orders through the authenticated spot API.
type Gateway struct {
	client *Client
}

// NewGateway wraps an authenticated client into an order gateway.
func NewGateway(client *Client) *Gateway {
	return &Gateway{client: client}
}

// MarketBuy spends quoteAmount of the quote currency at market.
func (g *Gateway) MarketBuy(ctx context.Context, market string, quoteAmount float64) (models.Fill, error) {
	if err := g.client.limiter.Wait(ctx); err != nil {
		return models.Fill{}, err
	}
	order, err := g.client.api.NewCreateOrderService().
		Symbol(Symbol(market)).
		Side(binance.SideTypeBuy).
		Type(binance.OrderTypeMarket).
		QuoteOrderQty(strconv.FormatFloat(quoteAmount, 'f', 8, 64)).
		Do(ctx)
	if err != nil {
		return models.Fill{}, fmt.Errorf("market buy %s for %v: %w", market, quoteAmount, err)
	}
	return fillFromOrder(order)
}

// MarketSell sells baseAmount of the base currency at market.
func (g *Gateway) MarketSell(ctx context.Context, market string, baseAmount float64) (models.Fill, error) {
	if err := g.client.limiter.Wait(ctx); err != nil {
		return models.Fill{}, err
	}
	order, err := g.client.api.NewCreateOrderService().
		Symbol(Symbol(market)).
		Side(binance.SideTypeSell).
		Type(binance.OrderTypeMarket).
		Quantity(strconv.FormatFloat(baseAmount, 'f', 8, 64)).
		Do(ctx)
	if err != nil {
		return models.Fill{}, fmt.Errorf("market sell %s of %v: %w", market, baseAmount, err)
	}
	return fillFromOrder(order)
}

// LastBuy returns the most recent filled buy order for the market, or
// nil when the order history holds none.
func (g *Gateway) LastBuy(ctx context.Context, market string) (*models.Fill, error) {
	if err := g.client.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	orders, err := g.client.api.NewListOrdersService().
		Symbol(Symbol(market)).
		Limit(20).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing %s orders: %w", market, err)
	}

	for i := len(orders) - 1; i >= 0; i-- {
		order := orders[i]
		if order.Status != binance.OrderStatusTypeFilled {
			continue
		}
		// The newest filled order decides: a sell means the position is
		// already closed.
		if order.Side == binance.SideTypeSell {
			return nil, nil
		}

		base, err := strconv.ParseFloat(order.ExecutedQuantity, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing order quantity %q: %w", order.ExecutedQuantity, err)
		}
		quote, err := strconv.ParseFloat(order.CummulativeQuoteQuantity, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing order quote %q: %w", order.CummulativeQuoteQuantity, err)
		}
		if base == 0 || quote == 0 {
			return nil, nil
		}
		return &models.Fill{
			Price:     quote / base,
			BaseSize:  base,
			QuoteSize: quote,
			Timestamp: time.UnixMilli(order.Time).UTC(),
		}, nil
	}
	return nil, nil
}

func fillFromOrder(order *binance.CreateOrderResponse) (models.Fill, error) {
	base, err := strconv.ParseFloat(order.ExecutedQuantity, 64)
	if err != nil {
		return models.Fill{}, fmt.Errorf("parsing executed quantity %q: %w", order.ExecutedQuantity, err)
	}
	quote, err := strconv.ParseFloat(order.CummulativeQuoteQuantity, 64)
	if err != nil {
		return models.Fill{}, fmt.Errorf("parsing quote quantity %q: %w", order.CummulativeQuoteQuantity, err)
	}

	var fee float64
	for _, f := range order.Fills {
		commission, err := strconv.ParseFloat(f.Commission, 64)
		if err != nil {
			return models.Fill{}, fmt.Errorf("parsing commission %q: %w", f.Commission, err)
		}
		fee += commission
	}

	fill := models.Fill{
		BaseSize:  base,
		QuoteSize: quote,
		Fee:       fee,
		Timestamp: time.UnixMilli(order.TransactTime).UTC(),
	}
	if base > 0 {
		fill.Price = quote / base
	}
	return fill, nil
}
