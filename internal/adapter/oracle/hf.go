package oracle

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fairyhunter13/textgen-horde/internal/adapter/observability"
	"github.com/fairyhunter13/textgen-horde/internal/domain"
)

// DefaultHFBaseURL is the public Hugging Face hub.
const DefaultHFBaseURL = "https://huggingface.co"

// HFClient asks the Hugging Face hub for a model's parameter count. Models
// without weight metadata fall back to the size encoded in their id.
type HFClient struct {
	baseURL    string
	hc         *http.Client
	maxElapsed time.Duration
}

// NewHFClient builds a hub client. maxElapsed bounds the whole retry
// budget for one lookup; zero picks the 15 second default.
func NewHFClient(baseURL string, timeout, maxElapsed time.Duration) *HFClient {
	if baseURL == "" {
		baseURL = DefaultHFBaseURL
	}
	if maxElapsed <= 0 {
		maxElapsed = 15 * time.Second
	}
	return &HFClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		hc: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		maxElapsed: maxElapsed,
	}
}

type hfModelInfo struct {
	Safetensors struct {
		Total int64 `json:"total"`
	} `json:"safetensors"`
}

func (c *HFClient) ParametersBillions(ctx domain.Context, model string) (float64, error) {
	var info hfModelInfo
	op := func() error {
		// Recreate the request each attempt to avoid reusing consumed bodies.
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/models/"+model, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Accept", "application/json")
		resp, err := c.hc.Do(req)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()
		if resp.StatusCode == http.StatusNotFound {
			return backoff.Permanent(fmt.Errorf("%w: model %s not on the hub", domain.ErrNotFound, model))
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("hub status %d", resp.StatusCode)
		}
		if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
			return backoff.Permanent(fmt.Errorf("decode hub response: %w", err))
		}
		return nil
	}
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = 200 * time.Millisecond
	expo.MaxElapsedTime = c.maxElapsed
	start := time.Now()
	err := backoff.Retry(op, backoff.WithContext(expo, ctx))
	dur := time.Since(start)
	if err != nil {
		outcome := "error"
		if errors.Is(err, domain.ErrNotFound) {
			outcome = "not_found"
		}
		observability.RecordOracleLookup("hf_hub", outcome, dur)
		return 0, fmt.Errorf("hugging face lookup %s: %w", model, err)
	}
	if info.Safetensors.Total > 0 {
		observability.RecordOracleLookup("hf_hub", "ok", dur)
		return float64(info.Safetensors.Total) / 1e9, nil
	}
	if b, ok := SizeFromName(model); ok {
		observability.RecordOracleLookup("hf_hub", "ok", dur)
		return b, nil
	}
	observability.RecordOracleLookup("hf_hub", "not_found", dur)
	return 0, fmt.Errorf("%w: no parameter count for %s", domain.ErrNotFound, model)
}
