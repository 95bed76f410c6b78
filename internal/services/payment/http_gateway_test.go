package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func newTestHTTPGateway(t *testing.T, handler http.HandlerFunc) *HTTPGateway {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	gw := NewHTTPGateway("test", srv.URL)
	gw.Limiter = rate.NewLimiter(rate.Inf, 1)
	return gw
}

func TestHTTPGatewayCaptureSuccess(t *testing.T) {
	gw := newTestHTTPGateway(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/capture", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "intent-1", body["payment_intent"])
		json.NewEncoder(w).Encode(CaptureResult{Status: "succeeded", ID: "intent-1"})
	})

	res, err := gw.Capture(context.Background(), "intent-1", 1000)
	require.NoError(t, err)
	require.Equal(t, "succeeded", res.Status)
}

func TestHTTPGatewayCaptureErrorStatus(t *testing.T) {
	gw := newTestHTTPGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
	})

	_, err := gw.Capture(context.Background(), "intent-1", 1000)
	require.Error(t, err)
}

func TestHTTPGatewayFetchInvoicePDFNotReady(t *testing.T) {
	gw := newTestHTTPGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})

	_, err := gw.FetchInvoicePDF(context.Background(), "invoice-1")
	require.ErrorIs(t, err, ErrNotReady)
}

func TestHTTPGatewayFetchInvoicePDFSuccess(t *testing.T) {
	want := []byte("%PDF-1.4 fake invoice bytes")
	gw := newTestHTTPGateway(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/invoices/invoice-1/pdf", r.URL.Path)
		w.Write(want)
	})

	got, err := gw.FetchInvoicePDF(context.Background(), "invoice-1")
	require.NoError(t, err)
	require.Equal(t, want, got)
}
