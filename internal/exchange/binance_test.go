package exchange

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"ladder-mm/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// writeJSON answers a fake-venue request with a JSON body. The content type
// matters: the client only decodes JSON responses.
func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func testBinance(srvURL string) *Binance {
	return &Binance{
		spot:      newRESTClient(srvURL),
		perp:      newRESTClient(srvURL),
		apiKey:    "test-key",
		secretKey: "test-secret",
		symbols: map[string]types.Symbol{
			"SUIUSDT": {Base: "SUI", Quote: "USDT", TickDecimals: 4, StepDecimals: 1},
		},
		rl:     NewRateLimiter(),
		logger: testLogger(),
	}
}

func TestBatchPlaceLimitCollectsAcceptedIDs(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	nextID := int64(100)
	seenPrices := map[string]bool{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/order" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("X-MBX-APIKEY") != "test-key" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if r.URL.Query().Get("signature") == "" {
			http.Error(w, "unsigned", http.StatusBadRequest)
			return
		}
		if got := r.URL.Query().Get("type"); got != "LIMIT_MAKER" {
			http.Error(w, "expected post-only", http.StatusBadRequest)
			return
		}

		// Reject one specific price to exercise partial failure.
		price := r.URL.Query().Get("price")
		if price == "9.999" {
			http.Error(w, `{"code":-2010,"msg":"Order would immediately match"}`, http.StatusBadRequest)
			return
		}

		mu.Lock()
		nextID++
		id := nextID
		seenPrices[price] = true
		mu.Unlock()
		writeJSON(w, spotOrder{OrderID: id, Status: "NEW"})
	}))
	defer srv.Close()

	b := testBinance(srv.URL)
	orders := []types.OrderRequest{
		{Side: types.SELL, Size: 4, Price: 2.008},
		{Side: types.BUY, Size: 5, Price: 1.992},
		{Side: types.SELL, Size: 4, Price: 9.999}, // rejected
	}
	oids, err := b.BatchPlaceLimit(context.Background(), "SUIUSDT", orders, true)
	if err != nil {
		t.Fatalf("BatchPlaceLimit: %v", err)
	}
	if len(oids) != 2 {
		t.Fatalf("got %d oids, want 2 (one rejected)", len(oids))
	}
	mu.Lock()
	defer mu.Unlock()
	if !seenPrices["2.008"] || !seenPrices["1.992"] {
		t.Errorf("rounded prices not submitted: %v", seenPrices)
	}
}

func TestBatchQueryFillsFiltersUnfilled(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/allOrders" {
			http.NotFound(w, r)
			return
		}
		writeJSON(w, []spotOrder{
			{OrderID: 1, Side: "BUY", Status: "FILLED", ExecutedQty: "5", CumQuoteQty: "9.96"},
			{OrderID: 2, Side: "SELL", Status: "CANCELED", ExecutedQty: "0", CumQuoteQty: "0"},
			{OrderID: 3, Side: "SELL", Status: "PARTIALLY_FILLED", ExecutedQty: "1.5", CumQuoteQty: "3.01"},
			{OrderID: 9, Side: "BUY", Status: "FILLED", ExecutedQty: "2", CumQuoteQty: "4"}, // not ours
		})
	}))
	defer srv.Close()

	b := testBinance(srv.URL)
	fills, err := b.BatchQueryFills(context.Background(), "SUIUSDT", []string{"1", "2", "3"})
	if err != nil {
		t.Fatalf("BatchQueryFills: %v", err)
	}

	if len(fills) != 2 {
		t.Fatalf("got %d fills, want 2", len(fills))
	}
	if f := fills["1"]; f.Side != types.BUY || f.Size != 5 || f.QuoteSize != 9.96 {
		t.Errorf("fill 1 = %+v", f)
	}
	if f := fills["3"]; f.Side != types.SELL || f.Size != 1.5 || f.QuoteSize != 3.01 {
		t.Errorf("fill 3 = %+v", f)
	}
	if _, ok := fills["2"]; ok {
		t.Error("unfilled order must not appear in the fill map")
	}
}

func TestCancelAllVerifiesStatuses(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, []spotOrder{
			{OrderID: 1, Status: "CANCELED"},
			{OrderID: 2, Status: "CANCELED"},
		})
	}))
	defer srv.Close()

	b := testBinance(srv.URL)
	if err := b.CancelAll(context.Background(), "SUIUSDT"); err != nil {
		t.Fatalf("CancelAll: %v", err)
	}
}

func TestCancelAllRejectsLingeringOrder(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, []spotOrder{
			{OrderID: 1, Status: "CANCELED"},
			{OrderID: 2, Status: "NEW"},
		})
	}))
	defer srv.Close()

	b := testBinance(srv.URL)
	if err := b.CancelAll(context.Background(), "SUIUSDT"); err == nil {
		t.Fatal("expected error when an order survives cancel-all")
	}
}

// Cancel-all on an empty book: the venue answers with the unknown-order
// error code, which must read as success.
func TestCancelAllEmptyBookIsNoop(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"code":-2011,"msg":"Unknown order sent."}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	b := testBinance(srv.URL)
	if err := b.CancelAll(context.Background(), "SUIUSDT"); err != nil {
		t.Fatalf("empty-book cancel-all should be a no-op success, got %v", err)
	}
}

func TestBatchCancelIgnoresUnknownOrders(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("orderId") == "404" {
			http.Error(w, `{"code":-2011,"msg":"Unknown order sent."}`, http.StatusBadRequest)
			return
		}
		writeJSON(w, spotOrder{Status: "CANCELED"})
	}))
	defer srv.Close()

	b := testBinance(srv.URL)
	if err := b.BatchCancel(context.Background(), "SUIUSDT", []string{"1", "404", "2"}); err != nil {
		t.Fatalf("BatchCancel: %v", err)
	}
}

func TestPlacePerpMarketReportsAvgPrice(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/fapi/v1/order" && r.Method == http.MethodPost:
			writeJSON(w, perpOrder{OrderID: 55, Status: "NEW"})
		case r.URL.Path == "/fapi/v1/order" && r.Method == http.MethodGet:
			writeJSON(w, perpOrder{
				OrderID: 55, Status: "FILLED", Side: "SELL", ExecutedQty: "3", AvgPrice: "2.0015",
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	b := testBinance(srv.URL)
	avg, err := b.PlacePerpMarket(context.Background(), "SUIUSDT", types.SELL, 3)
	if err != nil {
		t.Fatalf("PlacePerpMarket: %v", err)
	}
	if avg != 2.0015 {
		t.Errorf("avg price = %v, want 2.0015", avg)
	}
}

func TestPlacePerpTriggerRoundsStopPrice(t *testing.T) {
	t.Parallel()

	var gotStop string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("type"); got != "STOP_MARKET" {
			http.Error(w, "wrong type", http.StatusBadRequest)
			return
		}
		gotStop = r.URL.Query().Get("stopPrice")
		writeJSON(w, perpOrder{OrderID: 77, Status: "NEW"})
	}))
	defer srv.Close()

	b := testBinance(srv.URL)
	oid, err := b.PlacePerpTrigger(context.Background(), "SUIUSDT", types.SELL, 5, 101.69399999)
	if err != nil {
		t.Fatalf("PlacePerpTrigger: %v", err)
	}
	if oid != "77" {
		t.Errorf("oid = %q, want 77", oid)
	}
	if gotStop != "101.694" {
		t.Errorf("stopPrice = %q, want 101.694", gotStop)
	}
}

// The GTX filler loop measures fills from the signed position delta and
// re-quotes the remainder until nothing is left.
func TestPlacePerpGTXFillsAcrossRounds(t *testing.T) {
	oldPlace, oldRetry := gtxPlaceWait, gtxRetryWait
	gtxPlaceWait, gtxRetryWait = time.Millisecond, time.Millisecond
	defer func() { gtxPlaceWait, gtxRetryWait = oldPlace, oldRetry }()

	var mu sync.Mutex
	posQueries := 0
	// Position advances as the resting orders partially fill: flat at the
	// start, 1.2 after round one, 2.0 after round two.
	positions := []string{"0", "1.2", "2.0"}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/fapi/v2/positionRisk":
			mu.Lock()
			idx := posQueries
			if idx >= len(positions) {
				idx = len(positions) - 1
			}
			posQueries++
			mu.Unlock()
			writeJSON(w, []map[string]string{
				{"symbol": "SUIUSDT", "positionAmt": positions[idx]},
			})
		case "/fapi/v1/depth":
			writeJSON(w, map[string][][]string{
				"bids": {{"1.9990", "100"}},
				"asks": {{"2.0010", "100"}},
			})
		case "/fapi/v1/order":
			switch r.Method {
			case http.MethodPost:
				if tif := r.URL.Query().Get("timeInForce"); tif != "GTX" {
					http.Error(w, "expected GTX", http.StatusBadRequest)
					return
				}
				writeJSON(w, perpOrder{OrderID: 1, Status: "NEW"})
			case http.MethodDelete:
				writeJSON(w, perpOrder{OrderID: 1, Status: "CANCELED"})
			}
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	b := testBinance(srv.URL)
	unfilled, err := b.PlacePerpGTX(context.Background(), "SUIUSDT", types.BUY, 2.0, 30)
	if err != nil {
		t.Fatalf("PlacePerpGTX: %v", err)
	}
	if unfilled != 0 {
		t.Errorf("unfilled = %v, want 0", unfilled)
	}
}

func TestPlacePerpGTXReportsRemainderOnExhaustion(t *testing.T) {
	oldPlace, oldRetry := gtxPlaceWait, gtxRetryWait
	gtxPlaceWait, gtxRetryWait = time.Millisecond, time.Millisecond
	defer func() { gtxPlaceWait, gtxRetryWait = oldPlace, oldRetry }()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/fapi/v2/positionRisk":
			// Position never moves: nothing fills.
			writeJSON(w, []map[string]string{
				{"symbol": "SUIUSDT", "positionAmt": "0"},
			})
		case "/fapi/v1/depth":
			writeJSON(w, map[string][][]string{
				"bids": {{"1.9990", "100"}},
				"asks": {{"2.0010", "100"}},
			})
		case "/fapi/v1/order":
			writeJSON(w, perpOrder{OrderID: 1, Status: "NEW"})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	b := testBinance(srv.URL)
	unfilled, err := b.PlacePerpGTX(context.Background(), "SUIUSDT", types.SELL, 2.0, 3)
	if err != nil {
		t.Fatalf("PlacePerpGTX: %v", err)
	}
	if unfilled != 2.0 {
		t.Errorf("unfilled = %v, want the full 2.0 target", unfilled)
	}
}

func TestSignParamsDeterministic(t *testing.T) {
	t.Parallel()
	sig := hmacSHA256("secret", "symbol=SUIUSDT&timestamp=1700000000000")
	if len(sig) != 64 {
		t.Errorf("signature length = %d, want 64 hex chars", len(sig))
	}
	if sig != hmacSHA256("secret", "symbol=SUIUSDT&timestamp=1700000000000") {
		t.Error("signature must be deterministic")
	}
	if sig == hmacSHA256("other", "symbol=SUIUSDT&timestamp=1700000000000") {
		t.Error("different secrets must produce different signatures")
	}
}

func TestPerpOrderConversion(t *testing.T) {
	t.Parallel()
	o := perpOrder{OrderID: 9, Status: "FILLED", Side: "BUY", ExecutedQty: "5", AvgPrice: "102"}
	got := o.toPerpOrder()
	want := types.PerpOrder{OrderID: "9", Status: "FILLED", Side: types.BUY, ExecutedQty: 5, AvgPrice: 102}
	if got != want {
		t.Errorf("toPerpOrder() = %+v, want %+v", got, want)
	}
}

func TestSymbolLookupFallsBackToFullPrecision(t *testing.T) {
	t.Parallel()
	b := &Binance{symbols: map[string]types.Symbol{}}
	s := b.symbol("UNKNOWN")
	if s.TickDecimals != 8 || s.StepDecimals != 8 {
		t.Errorf("fallback precision = %d/%d, want 8/8", s.TickDecimals, s.StepDecimals)
	}
}
