package domain

import (
	"encoding/json"
	"testing"
	"time"
)

func TestTypesExist(t *testing.T) {
	coin := Coin{}
	if coin.ID != "" || coin.Symbol != "" {
		t.Error("expected empty ID/Symbol for zero-value Coin")
	}
	if coin.Change24h != nil {
		t.Error("expected nil Change24h for zero-value Coin")
	}

	item := NewsItem{}
	if item.Title != "" || item.Published != 0 {
		t.Error("expected empty Title/Published for zero-value NewsItem")
	}
}

func TestCoinDecodeNullChange(t *testing.T) {
	raw := `[
		{"id":"bitcoin","symbol":"btc","name":"Bitcoin","image":"x","current_price":65000.5,"market_cap":1.2e12,"price_change_percentage_24h":-1.25},
		{"id":"tether","symbol":"usdt","name":"Tether","image":"y","current_price":1,"market_cap":9e10,"price_change_percentage_24h":null}
	]`
	var coins []Coin
	if err := json.Unmarshal([]byte(raw), &coins); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(coins) != 2 {
		t.Fatalf("got %d coins, want 2", len(coins))
	}
	if coins[0].Change24h == nil || *coins[0].Change24h != -1.25 {
		t.Errorf("bitcoin change = %v, want -1.25", coins[0].Change24h)
	}
	if coins[1].Change24h != nil {
		t.Errorf("tether change = %v, want nil", *coins[1].Change24h)
	}
	ids := CoinIDs(coins)
	if len(ids) != 2 || ids[0] != "bitcoin" || ids[1] != "tether" {
		t.Errorf("CoinIDs = %v", ids)
	}
}

func TestChartDecode(t *testing.T) {
	raw := `{"prices":[[1700000000000,37000.5],[1700000060000,37010]]}`
	var c Chart
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(c.Prices) != 2 {
		t.Fatalf("got %d points, want 2", len(c.Prices))
	}
	want := time.UnixMilli(1700000000000).UTC()
	if !c.Prices[0].Time.Equal(want) {
		t.Errorf("first point time = %v, want %v", c.Prices[0].Time, want)
	}
	if c.Prices[1].Price != 37010 {
		t.Errorf("second point price = %v, want 37010", c.Prices[1].Price)
	}

	if err := json.Unmarshal([]byte(`{"prices":[[1,2,3]]}`), &c); err == nil {
		t.Error("expected error for malformed point")
	}
}

func TestParseChartRange(t *testing.T) {
	for _, days := range []int{1, 7, 30} {
		r, err := ParseChartRange(days)
		if err != nil {
			t.Errorf("ParseChartRange(%d): %v", days, err)
		}
		if int(r) != days {
			t.Errorf("ParseChartRange(%d) = %d", days, r)
		}
	}
	if _, err := ParseChartRange(14); err == nil {
		t.Error("expected error for 14 days")
	}
	if DefaultRange.String() != "7D" {
		t.Errorf("DefaultRange.String() = %q, want 7D", DefaultRange.String())
	}
}
