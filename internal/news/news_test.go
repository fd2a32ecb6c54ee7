package news

import (
	"strings"
	"testing"

	"coinboard/internal/domain"
)

func TestStripHTML(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"<p>Bitcoin &amp; Ether</p>", "Bitcoin & Ether"},
		{"plain", "plain"},
		{"<b>a</b><i>b</i>", "a b"},
		{"  spaced \n\t out  ", "spaced out"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := StripHTML(tt.in); got != tt.want {
			t.Errorf("StripHTML(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestExcerpt(t *testing.T) {
	if got := Excerpt("short", 240); got != "short" {
		t.Errorf("Excerpt short = %q", got)
	}
	if got := Excerpt("hello brave new world", 13); got != "hello brave…" {
		t.Errorf("Excerpt = %q, want %q", got, "hello brave…")
	}
	if got := Excerpt("abcdefghij", 4); got != "abcd…" {
		t.Errorf("Excerpt without spaces = %q", got)
	}

	long := strings.Repeat("word ", 100)
	got := Excerpt(long, SummaryLimit)
	if !strings.HasSuffix(got, "…") {
		t.Errorf("missing ellipsis: %q", got)
	}
	if n := len([]rune(got)); n > SummaryLimit+1 {
		t.Errorf("excerpt has %d runes", n)
	}
}

func TestPrepare(t *testing.T) {
	items := []domain.NewsItem{
		{Title: "Old", Link: "a", Published: 100},
		{Title: "<b>New</b>", Link: "b", Published: 300, Summary: "<p>x</p>"},
		{Title: "", Link: "c", Published: 200},
		{Title: "No link", Published: 250},
	}
	got := Prepare(items)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Title != "New" || got[0].Summary != "x" {
		t.Errorf("first = %+v", got[0])
	}
	if got[1].Title != "Old" {
		t.Errorf("second = %+v", got[1])
	}
}

func TestFilterByCoins(t *testing.T) {
	items := []domain.NewsItem{
		{Title: "Bitcoin hits new high"},
		{Title: "Solana outage"},
		{Title: "Markets calm"},
	}
	if got := FilterByCoins(items, nil); len(got) != 3 {
		t.Errorf("no filter len = %d", len(got))
	}
	got := FilterByCoins(items, []string{" BITCOIN", "solana"})
	if len(got) != 2 {
		t.Errorf("filtered len = %d, want 2", len(got))
	}
}

func TestPaging(t *testing.T) {
	items := make([]domain.NewsItem, 10)
	if got := Page(items, PageSize); len(got) != 8 {
		t.Errorf("Page = %d items", len(got))
	}
	if !HasMore(items, PageSize) {
		t.Error("HasMore(10, 8) should be true")
	}
	if got := Page(items, 2*PageSize); len(got) != 10 {
		t.Errorf("Page(16) = %d items", len(got))
	}
	if HasMore(items, 2*PageSize) {
		t.Error("HasMore(10, 16) should be false")
	}
	if got := Page(nil, PageSize); len(got) != 0 {
		t.Errorf("Page(nil) = %v", got)
	}
}
