package purchase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"renderly/internal/domain"
	"renderly/internal/infra"
)

// Gateway charges buyers through an external checkout service. The catalog
// still owns plan metadata; the gateway only moves money.
type Gateway struct {
	catalog    *Catalog
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *infra.Logger
}

type GatewayOptions struct {
	Catalog    *Catalog
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	Logger     *infra.Logger
}

func NewGateway(opts GatewayOptions) (*Gateway, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("purchase: gateway base url required")
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Gateway{
		catalog:    opts.Catalog,
		baseURL:    baseURL,
		apiKey:     strings.TrimSpace(opts.APIKey),
		httpClient: httpClient,
		logger:     opts.Logger,
	}, nil
}

type gatewayChargeRequest struct {
	UserID   string `json:"user_id"`
	PlanID   string `json:"plan_id"`
	Currency string `json:"currency"`
	Amount   int    `json:"amount"`
}

type gatewayChargeResponse struct {
	Reference string `json:"reference"`
	Status    string `json:"status"`
	Error     struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (g *Gateway) Purchase(ctx context.Context, userID, planID, country string) (Receipt, error) {
	plan, err := g.catalog.Plan(planID)
	if err != nil {
		return Receipt{}, err
	}
	currency, amount := g.catalog.PriceFor(plan, country)

	payload := gatewayChargeRequest{UserID: userID, PlanID: plan.ID, Currency: currency, Amount: amount}
	body, err := json.Marshal(payload)
	if err != nil {
		return Receipt{}, fmt.Errorf("marshal charge: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/charges", bytes.NewReader(body))
	if err != nil {
		return Receipt{}, fmt.Errorf("create charge request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return Receipt{}, fmt.Errorf("invoke gateway: %w", err)
	}
	defer resp.Body.Close()

	var charge gatewayChargeResponse
	if resp.StatusCode >= http.StatusBadRequest {
		if err := json.NewDecoder(resp.Body).Decode(&charge); err == nil && charge.Error.Message != "" {
			return Receipt{}, fmt.Errorf("gateway status %d: %s", resp.StatusCode, charge.Error.Message)
		}
		data, _ := io.ReadAll(resp.Body)
		if len(data) > 0 {
			return Receipt{}, fmt.Errorf("gateway status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
		}
		return Receipt{}, fmt.Errorf("gateway status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&charge); err != nil {
		return Receipt{}, fmt.Errorf("decode charge response: %w", err)
	}
	if charge.Status != "" && charge.Status != "succeeded" {
		return Receipt{}, fmt.Errorf("%w: charge status %s", domain.ErrProviderFailure, charge.Status)
	}

	g.logger.Info().
		Str("user_id", userID).
		Str("plan_id", plan.ID).
		Str("reference", charge.Reference).
		Msg("purchase: gateway charge settled")

	return Receipt{
		PlanID:    plan.ID,
		Credits:   plan.Credits,
		Currency:  currency,
		Amount:    amount,
		Reference: charge.Reference,
	}, nil
}

var _ Processor = (*Gateway)(nil)
