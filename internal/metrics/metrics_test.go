package metrics

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegistryCountsAndGauges(t *testing.T) {
	m := NewRegistry()

	m.RecordCycle("AAPL", nil)
	m.RecordCycle("AAPL", errors.New("boom"))
	m.RecordOrderPlaced("AAPL", "SELL")
	m.RecordOrderPlaced("AAPL", "SELL")
	m.RecordOrderPlaced("AAPL", "BUY")
	m.RecordOrderCanceled("AAPL")
	m.RecordFullReplace("AAPL")
	m.SetOpenOrders("AAPL", 7)
	m.SetHeldShares("AAPL", 9)
	m.SetCircuitOpen("place order", true)

	if got := testutil.ToFloat64(m.Cycles.WithLabelValues("AAPL", "ok")); got != 1 {
		t.Fatalf("cycles ok = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Cycles.WithLabelValues("AAPL", "error")); got != 1 {
		t.Fatalf("cycles error = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.OrdersPlaced.WithLabelValues("AAPL", "SELL")); got != 2 {
		t.Fatalf("orders placed SELL = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.OpenOrders.WithLabelValues("AAPL")); got != 7 {
		t.Fatalf("open orders = %v, want 7", got)
	}
	if got := testutil.ToFloat64(m.HeldShares.WithLabelValues("AAPL")); got != 9 {
		t.Fatalf("held shares = %v, want 9", got)
	}
	if got := testutil.ToFloat64(m.CircuitOpen.WithLabelValues("place order")); got != 1 {
		t.Fatalf("circuit open = %v, want 1", got)
	}

	m.SetCircuitOpen("place order", false)
	if got := testutil.ToFloat64(m.CircuitOpen.WithLabelValues("place order")); got != 0 {
		t.Fatalf("circuit open after reset = %v, want 0", got)
	}
}

func TestRegistryHandlerServesExposition(t *testing.T) {
	m := NewRegistry()
	m.RecordCycle("MSFT", nil)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "laddertrader_cycles_total") {
		t.Fatalf("exposition missing cycle counter:\n%s", body)
	}
}
