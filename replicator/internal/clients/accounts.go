package clients

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/0xRichardL/vibe-copy-trading/libs/go/numbers"
	"github.com/0xRichardL/vibe-copy-trading/replicator/internal/domain"
)

// AccountsClient reads balance snapshots from the accounts service.
type AccountsClient struct {
	restClient
}

func NewAccountsClient(baseURL, token string, timeout time.Duration) *AccountsClient {
	return &AccountsClient{restClient: newRESTClient(baseURL, token, timeout)}
}

// accountResponse keeps balance untyped: the accounts service sends it either
// as a JSON number or as a numeric string.
type accountResponse struct {
	ID      string `json:"id"`
	Balance any    `json:"balance"`
}

// GetAccount fetches GET /accounts/{id}.
func (c *AccountsClient) GetAccount(ctx context.Context, accountID string) (domain.AccountSnapshot, error) {
	if accountID == "" {
		return domain.AccountSnapshot{}, errors.New("account id is required")
	}

	resp, err := c.do(ctx, http.MethodGet, "/accounts/"+url.PathEscape(accountID), nil)
	if err != nil {
		return domain.AccountSnapshot{}, err
	}
	defer resp.Body.Close()

	var body accountResponse
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil {
		return domain.AccountSnapshot{}, fmt.Errorf("decode response: %w", err)
	}

	balance, err := numbers.ExtractFloat(body.Balance)
	if err != nil {
		return domain.AccountSnapshot{}, fmt.Errorf("account %s balance: %w", accountID, err)
	}
	return domain.AccountSnapshot{AccountID: accountID, Balance: balance}, nil
}
