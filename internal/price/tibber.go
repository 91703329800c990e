package price

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sweeney/dishwasher-scheduler/internal/logic"
)

// TibberQuery selects the total price per hour for today and tomorrow.
const TibberQuery = "{viewer{homes{currentSubscription{priceInfo{today{total}tomorrow{total}}}}}}"

// Tibber fetches prices from the Tibber GraphQL API for the first home on
// the account.
type Tibber struct {
	url    string
	apiKey string
	client *http.Client
}

// NewTibber creates a client for the given endpoint and personal access token.
func NewTibber(url, apiKey string, timeout time.Duration) *Tibber {
	return &Tibber{
		url:    url,
		apiKey: apiKey,
		client: &http.Client{Timeout: timeout},
	}
}

type tibberRequest struct {
	Query string `json:"query"`
}

type tibberPrice struct {
	Total float64 `json:"total"`
}

type tibberResponse struct {
	Data struct {
		Viewer struct {
			Homes []struct {
				CurrentSubscription *struct {
					PriceInfo struct {
						Today    []tibberPrice `json:"today"`
						Tomorrow []tibberPrice `json:"tomorrow"`
					} `json:"priceInfo"`
				} `json:"currentSubscription"`
			} `json:"homes"`
		} `json:"viewer"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// Fetch returns today's prices followed by tomorrow's (when already published).
func (t *Tibber) Fetch(ctx context.Context) (logic.PriceSeries, error) {
	body, err := json.Marshal(tibberRequest{Query: TibberQuery})
	if err != nil {
		return nil, fmt.Errorf("encode query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.apiKey)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode, snippet)
	}

	var tr tibberResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return tr.series()
}

func (r *tibberResponse) series() (logic.PriceSeries, error) {
	if len(r.Errors) > 0 {
		msgs := make([]string, 0, len(r.Errors))
		for _, e := range r.Errors {
			msgs = append(msgs, e.Message)
		}
		return nil, fmt.Errorf("tibber: %s", strings.Join(msgs, "; "))
	}
	homes := r.Data.Viewer.Homes
	if len(homes) == 0 || homes[0].CurrentSubscription == nil {
		return nil, fmt.Errorf("tibber: no home with an active subscription: %w", ErrNoPrices)
	}
	info := homes[0].CurrentSubscription.PriceInfo
	if len(info.Today) == 0 {
		return nil, ErrNoPrices
	}

	series := make(logic.PriceSeries, 0, len(info.Today)+len(info.Tomorrow))
	for _, p := range info.Today {
		series = append(series, p.Total)
	}
	for _, p := range info.Tomorrow {
		series = append(series, p.Total)
	}
	return series, nil
}
