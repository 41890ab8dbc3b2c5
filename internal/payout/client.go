package payout

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Client — HTTP клиент платёжного провайдера (Payouts API в стиле PayPal).
// Суммы передаются в минимальных единицах валюты.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient создаёт экземпляр клиента.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type payoutRequest struct {
	SenderItemID string `json:"sender_item_id"`
	Receiver     string `json:"receiver"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
}

type payoutResponse struct {
	BatchID string `json:"batch_id"`
	Status  string `json:"status"`
	Error   string `json:"error,omitempty"`
}

// Payout отправляет средства на счёт получателя и возвращает референс провайдера.
func (c *Client) Payout(ctx context.Context, account string, amount int64, currency string) (string, error) {
	if c.baseURL == "" {
		return "", fmt.Errorf("payout: baseURL не задан")
	}

	payload := payoutRequest{
		SenderItemID: uuid.NewString(),
		Receiver:     account,
		Amount:       amount,
		Currency:     currency,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	url := c.baseURL
	if !strings.HasSuffix(url, "/") {
		url += "/"
	}
	url += "v1/payouts"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var result payoutResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("payout: некорректный ответ провайдера: %w", err)
	}

	if resp.StatusCode >= 400 {
		if result.Error != "" {
			return "", fmt.Errorf("payout: провайдер вернул %d: %s", resp.StatusCode, result.Error)
		}
		return "", fmt.Errorf("payout: провайдер вернул %d", resp.StatusCode)
	}

	if result.BatchID == "" {
		return "", fmt.Errorf("payout: провайдер не вернул референс")
	}

	return result.BatchID, nil
}
