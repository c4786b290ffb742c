package binance

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGetKlines(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/klines" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("symbol"); got != "BTCUSDT" {
			t.Errorf("symbol = %s", got)
		}
		if got := r.URL.Query().Get("limit"); got != "2" {
			t.Errorf("limit = %s", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			[1700000000000,"50000.0","50100.0","49900.0","50050.0","12.5",1700000059999,"0","0","0","0","0"],
			[1700000060000,"50050.0","50200.0","50000.0","50150.0","8.25",1700000119999,"0","0","0","0","0"]
		]`))
	}))
	defer srv.Close()

	client := NewClient(false)
	client.BaseURL = srv.URL

	klines, err := client.GetKlines(context.Background(), "BTCUSDT", "1m", 2, 0)
	if err != nil {
		t.Fatalf("GetKlines: %v", err)
	}
	if len(klines) != 2 {
		t.Fatalf("klines = %d, want 2", len(klines))
	}
	first := klines[0]
	if first.Symbol != "BTCUSDT" || first.OpenTime != 1700000000000 || first.CloseTime != 1700000059999 {
		t.Errorf("first kline identity wrong: %+v", first)
	}
	if first.Open != 50000 || first.High != 50100 || first.Low != 49900 || first.Close != 50050 || first.Volume != 12.5 {
		t.Errorf("first kline prices wrong: %+v", first)
	}
}

func TestGetKlinesBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	defer srv.Close()

	client := NewClient(false)
	client.BaseURL = srv.URL

	if _, err := client.GetKlines(context.Background(), "BTCUSDT", "1m", 1, 0); err == nil {
		t.Fatal("expected an error on non-200 status")
	}
}

func TestGetServerTime(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/time" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"serverTime":1700000000123}`))
	}))
	defer srv.Close()

	client := NewClient(false)
	client.BaseURL = srv.URL

	ts, err := client.GetServerTime(context.Background())
	if err != nil {
		t.Fatalf("GetServerTime: %v", err)
	}
	if ts != 1700000000123 {
		t.Errorf("server time = %d", ts)
	}
}

func TestParseKlineMessage(t *testing.T) {
	msg := []byte(`{"e":"kline","E":1700000001000,"s":"BTCUSDT",
		"k":{"t":1700000000000,"T":1700000059999,"s":"BTCUSDT","i":"1m",
		"o":"50000.0","c":"50050.0","h":"50100.0","l":"49900.0","v":"12.5","x":false}}`)

	k, err := parseKlineMessage(msg)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if k.Symbol != "BTCUSDT" || k.OpenTime != 1700000000000 || k.CloseTime != 1700000059999 {
		t.Errorf("kline identity wrong: %+v", k)
	}
	if k.Open != 50000 || k.Close != 50050 || k.High != 50100 || k.Low != 49900 || k.Volume != 12.5 {
		t.Errorf("kline prices wrong: %+v", k)
	}

	if _, err := parseKlineMessage([]byte("not json")); err == nil {
		t.Error("garbage must not parse")
	}
}
