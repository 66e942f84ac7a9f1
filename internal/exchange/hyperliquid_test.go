package exchange

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"

	"ladder-mm/pkg/types"
)

// Well-known throwaway key for signing tests.
const testPrivKey = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func testHyperliquid(t *testing.T, srvURL string) *Hyperliquid {
	t.Helper()
	signer, err := newHypeSigner(testPrivKey)
	if err != nil {
		t.Fatalf("newHypeSigner: %v", err)
	}
	return &Hyperliquid{
		http:   newRESTClient(srvURL),
		signer: signer,
		symbols: map[string]types.Symbol{
			"SUI": {Base: "SUI", Quote: "USDT", TickDecimals: 4, StepDecimals: 1},
		},
		assetIDs: map[string]int{"SUI": 3},
		rl:       NewRateLimiter(),
		logger:   testLogger(),
	}
}

func TestHypeSignerAddressDerivation(t *testing.T) {
	t.Parallel()
	signer, err := newHypeSigner(testPrivKey)
	if err != nil {
		t.Fatalf("newHypeSigner: %v", err)
	}
	// Address for this key is fixed; a wrong derivation would break venue auth.
	if got := signer.address.Hex(); got != "0x2c7536E3605D9C16a7a3D7b1898e529396a65c23" {
		t.Errorf("derived address = %s", got)
	}

	if _, err := newHypeSigner("not-hex"); err == nil {
		t.Error("expected error for malformed key")
	}
}

func TestSignActionRecoversSigner(t *testing.T) {
	t.Parallel()
	signer, err := newHypeSigner(testPrivKey)
	if err != nil {
		t.Fatal(err)
	}

	action := map[string]any{"type": "cancel"}
	sig, err := signer.signAction(action, 1700000000000)
	if err != nil {
		t.Fatalf("signAction: %v", err)
	}
	if sig.V != 27 && sig.V != 28 {
		t.Errorf("v = %d, want 27 or 28", sig.V)
	}

	// Same action and nonce must hash identically; a different nonce must not.
	h1, err := signer.actionHash(action, 1700000000000)
	if err != nil {
		t.Fatal(err)
	}
	h2, _ := signer.actionHash(action, 1700000000000)
	h3, _ := signer.actionHash(action, 1700000000001)
	if h1 != h2 {
		t.Error("action hash must be deterministic")
	}
	if h1 == h3 {
		t.Error("nonce must alter the action hash")
	}
}

func TestHypeSignerRejectsBadCurveKey(t *testing.T) {
	t.Parallel()
	// Order of secp256k1 is not a valid private key.
	badKey := crypto.S256().Params().N.Text(16)
	if _, err := newHypeSigner(badKey); err == nil {
		t.Error("expected error for out-of-range key")
	}
}

func TestHyperliquidBatchPlaceLimit(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/exchange" {
			http.NotFound(w, r)
			return
		}
		var body struct {
			Action struct {
				Type   string `json:"type"`
				Orders []struct {
					A int    `json:"a"`
					B bool   `json:"b"`
					P string `json:"p"`
					S string `json:"s"`
					T struct {
						Limit struct {
							Tif string `json:"tif"`
						} `json:"limit"`
					} `json:"t"`
				} `json:"orders"`
			} `json:"action"`
			Nonce     uint64       `json:"nonce"`
			Signature rsvSignature `json:"signature"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if body.Action.Type != "order" || len(body.Action.Orders) != 2 {
			http.Error(w, "bad action", http.StatusBadRequest)
			return
		}
		if body.Action.Orders[0].T.Limit.Tif != "Alo" {
			http.Error(w, "expected post-only Alo", http.StatusBadRequest)
			return
		}
		if body.Signature.R == "" || body.Nonce == 0 {
			http.Error(w, "unsigned", http.StatusBadRequest)
			return
		}

		writeJSON(w, map[string]any{
			"status": "ok",
			"response": map[string]any{
				"data": map[string]any{
					"statuses": []map[string]any{
						{"resting": map[string]any{"oid": 111}},
						{"error": "Post only order would have immediately matched"},
					},
				},
			},
		})
	}))
	defer srv.Close()

	h := testHyperliquid(t, srv.URL)
	orders := []types.OrderRequest{
		{Side: types.SELL, Size: 4, Price: 2.008},
		{Side: types.BUY, Size: 5, Price: 1.992},
	}
	oids, err := h.BatchPlaceLimit(context.Background(), "SUI", orders, true)
	if err != nil {
		t.Fatalf("BatchPlaceLimit: %v", err)
	}
	if len(oids) != 1 || oids[0] != "111" {
		t.Errorf("oids = %v, want [111]", oids)
	}
}

func TestHyperliquidBatchCancel(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Action struct {
				Type    string `json:"type"`
				Cancels []struct {
					A int   `json:"a"`
					O int64 `json:"o"`
				} `json:"cancels"`
			} `json:"action"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		if body.Action.Type != "cancel" || len(body.Action.Cancels) != 2 {
			http.Error(w, "bad cancel action", http.StatusBadRequest)
			return
		}
		if body.Action.Cancels[0].O != 111 || body.Action.Cancels[0].A != 3 {
			http.Error(w, "bad cancel payload", http.StatusBadRequest)
			return
		}
		writeJSON(w, map[string]any{"status": "ok"})
	}))
	defer srv.Close()

	h := testHyperliquid(t, srv.URL)
	if err := h.BatchCancel(context.Background(), "SUI", []string{"111", "112"}); err != nil {
		t.Fatalf("BatchCancel: %v", err)
	}

	// Empty cancel set is a no-op.
	if err := h.BatchCancel(context.Background(), "SUI", nil); err != nil {
		t.Fatalf("empty BatchCancel: %v", err)
	}
}

func TestHyperliquidBatchQueryFillsNetsFees(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/info" {
			http.NotFound(w, r)
			return
		}
		var body struct {
			Type string `json:"type"`
			User string `json:"user"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		if body.Type != "userFillsByTime" || body.User == "" {
			http.Error(w, "bad info request", http.StatusBadRequest)
			return
		}
		writeJSON(w, []userFill{
			{Oid: 111, Px: "2.0", Sz: "5", Fee: "0.01", Side: "B"},
			{Oid: 222, Px: "2.1", Sz: "3", Fee: "0.006", Side: "A"},
			{Oid: 999, Px: "2.0", Sz: "1", Fee: "0", Side: "B"}, // not queried
		})
	}))
	defer srv.Close()

	h := testHyperliquid(t, srv.URL)
	fills, err := h.BatchQueryFills(context.Background(), "SUI", []string{"111", "222", "333"})
	if err != nil {
		t.Fatalf("BatchQueryFills: %v", err)
	}
	if len(fills) != 2 {
		t.Fatalf("got %d fills, want 2", len(fills))
	}
	if f := fills["111"]; f.Side != types.BUY || math.Abs(f.QuoteSize-(5*2.0-0.01)) > 1e-12 {
		t.Errorf("fill 111 = %+v", f)
	}
	if f := fills["222"]; f.Side != types.SELL || math.Abs(f.QuoteSize-(3*2.1-0.006)) > 1e-12 {
		t.Errorf("fill 222 = %+v", f)
	}
}
