package clients

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/0xRichardL/vibe-copy-trading/libs/go/numbers"
	"github.com/0xRichardL/vibe-copy-trading/replicator/internal/domain"
)

// ErrOrderRejected is returned when the execution service answers 2xx but
// reports the order as not placed.
var ErrOrderRejected = errors.New("order rejected")

// ExecutionClient submits follower orders to the trade-execution service.
type ExecutionClient struct {
	restClient
}

func NewExecutionClient(baseURL, token string, timeout time.Duration) *ExecutionClient {
	return &ExecutionClient{restClient: newRESTClient(baseURL, token, timeout)}
}

type executeRequest struct {
	Login     string  `json:"login"`
	Symbol    string  `json:"symbol"`
	OrderType string  `json:"order_type"`
	Volume    float64 `json:"volume"`
	SL        float64 `json:"sl"`
	TP        float64 `json:"tp"`
	Comment   string  `json:"comment"`
}

type executeResponse struct {
	Success *bool  `json:"success"`
	Ticket  any    `json:"ticket"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ExecuteTrade posts the order to /trades/execute. An empty 2xx body counts as accepted.
func (c *ExecutionClient) ExecuteTrade(ctx context.Context, order domain.FollowerOrder) (domain.ExecutionReceipt, error) {
	req := executeRequest{
		Login:     order.FollowerID,
		Symbol:    order.Symbol,
		OrderType: strings.ToLower(order.Direction),
		Volume:    numbers.Round2(order.Volume),
		SL:        order.StopLoss,
		TP:        order.TakeProfit,
		Comment:   order.Comment,
	}

	resp, err := c.do(ctx, http.MethodPost, "/trades/execute", req)
	if err != nil {
		return domain.ExecutionReceipt{}, err
	}
	defer resp.Body.Close()

	var body executeResponse
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil {
		if errors.Is(err, io.EOF) {
			return domain.ExecutionReceipt{}, nil
		}
		return domain.ExecutionReceipt{}, fmt.Errorf("decode response: %w", err)
	}

	if body.Success != nil && !*body.Success {
		reason := body.Error
		if reason == "" {
			reason = body.Message
		}
		if reason == "" {
			return domain.ExecutionReceipt{}, ErrOrderRejected
		}
		return domain.ExecutionReceipt{}, fmt.Errorf("%w: %s", ErrOrderRejected, reason)
	}

	receipt := domain.ExecutionReceipt{}
	if body.Ticket != nil {
		receipt.Ticket = fmt.Sprint(body.Ticket)
	}
	return receipt, nil
}
