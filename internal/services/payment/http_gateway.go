package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/time/rate"
)

// HTTPGateway implements Gateway against a generic REST-style provider
// (Stripe and ICPay share this shape at the level this spec cares about:
// capture/refund/fetch-invoice). Provider-specific request/response
// bodies are out of core scope (§1); this is the minimal wire contract.
type HTTPGateway struct {
	Name       string
	BaseURL    string
	Client     *http.Client
	Limiter    *rate.Limiter
}

func NewHTTPGateway(name, baseURL string) *HTTPGateway {
	return &HTTPGateway{
		Name:    name,
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: DefaultTimeout},
		Limiter: rate.NewLimiter(rate.Limit(5), 10),
	}
}

func (g *HTTPGateway) Capture(ctx context.Context, paymentIntentID string, amountE9s int64) (CaptureResult, error) {
	var out CaptureResult
	err := g.call(ctx, "POST", "/capture", map[string]any{"payment_intent": paymentIntentID, "amount_e9s": amountE9s}, &out)
	return out, err
}

func (g *HTTPGateway) Refund(ctx context.Context, intentID string, amountE9s int64) (RefundResult, error) {
	var out RefundResult
	err := g.call(ctx, "POST", "/refund", map[string]any{"intent_id": intentID, "amount_e9s": amountE9s}, &out)
	return out, err
}

func (g *HTTPGateway) FetchInvoicePDF(ctx context.Context, invoiceID string) ([]byte, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	if err := g.Limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.BaseURL+"/invoices/"+invoiceID+"/pdf", nil)
	if err != nil {
		return nil, err
	}
	resp, err := g.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusAccepted {
		return nil, ErrNotReady
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: fetch invoice pdf: status %d", g.Name, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func (g *HTTPGateway) call(ctx context.Context, method, path string, body any, out any) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	if err := g.Limiter.Wait(ctx); err != nil {
		return err
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, method, g.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s: %s %s: status %d", g.Name, method, path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
