package market

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/ZanzyTHEbar/agrisage-genkit/internal/cache"
)

func newTestLookup(t *testing.T, handler http.HandlerFunc) (*Lookup, *int32) {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	client := &Client{APIKey: "k", Endpoint: srv.URL, Doer: srv.Client()}
	dc := cache.New("market", cache.NewMemoryStore(), cache.MustFreshness(cache.MarketFreshness))
	return NewLookup(client, dc), &hits
}

const riceRecords = `{"records":[
	{"state":"West Bengal","district":"Paschim Medinipur","market":"Kharagpur","commodity":"Rice","modal_price":"3200","arrival_date":"01/06/2025"},
	{"state":"West Bengal","district":"Hooghly","commodity":"Rice","modal_price":3150}
]}`

func TestCanonicalKey_PermutationsCollide(t *testing.T) {
	var a, b map[string]any
	_ = json.Unmarshal([]byte(`{"commodity":"rice","state":"West Bengal","district":"Hooghly"}`), &a)
	_ = json.Unmarshal([]byte(`{"district":"Hooghly","state":"West Bengal","commodity":"rice"}`), &b)

	ka, err := CanonicalKey(a)
	if err != nil {
		t.Fatalf("CanonicalKey failed: %v", err)
	}
	kb, _ := CanonicalKey(b)
	if ka != kb {
		t.Errorf("expected keys to collide: %s vs %s", ka, kb)
	}
	if want := `[["commodity","rice"],["district","Hooghly"],["state","West Bengal"]]`; ka != want {
		t.Errorf("unexpected key %s", ka)
	}
}

func TestLookup_PermutationsShareOneFetch(t *testing.T) {
	l, hits := newTestLookup(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("filters[commodity]") != "rice" || q.Get("filters[state]") != "West Bengal" {
			t.Errorf("filters not forwarded: %s", r.URL.RawQuery)
		}
		if q.Get("limit") != "50" || q.Get("format") != "json" || q.Get("api-key") != "k" {
			t.Errorf("unexpected base params: %s", r.URL.RawQuery)
		}
		fmt.Fprint(w, riceRecords)
	})
	ctx := context.Background()

	first := l.Query(ctx, `{"commodity":"rice","state":"West Bengal"}`)
	second := l.Query(ctx, `{"state":"West Bengal","commodity":"rice"}`)
	if atomic.LoadInt32(hits) != 1 {
		t.Errorf("expected one provider call, got %d", atomic.LoadInt32(hits))
	}
	if first != second {
		t.Errorf("expected identical results")
	}

	var records []Record
	if err := json.Unmarshal([]byte(first), &records); err != nil {
		t.Fatalf("result is not a record list: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].Mandi != "Kharagpur" {
		t.Errorf("expected market projected to mandi, got %+v", records[0])
	}
	if records[1].Mandi != "N/A" || records[1].ArrivalDate != "N/A" || records[1].ModalPrice != "3150" {
		t.Errorf("unexpected projection %+v", records[1])
	}
}

func TestLookup_ZeroRecordsSentinelNotCached(t *testing.T) {
	l, hits := newTestLookup(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"records":[]}`)
	})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if got := l.Query(ctx, `{"commodity":"saffron"}`); got != NoDataMessage {
			t.Fatalf("expected sentinel, got %q", got)
		}
	}
	if atomic.LoadInt32(hits) != 2 {
		t.Errorf("sentinel must not be cached, got %d provider calls", atomic.LoadInt32(hits))
	}
}

func TestLookup_InvalidJSON(t *testing.T) {
	l, hits := newTestLookup(t, func(w http.ResponseWriter, r *http.Request) {})
	for _, in := range []string{"rice in West Bengal", "", "null"} {
		if got := l.Query(context.Background(), in); got != InvalidQueryMessage {
			t.Errorf("Query(%q) = %q", in, got)
		}
	}
	if atomic.LoadInt32(hits) != 0 {
		t.Errorf("expected no provider calls, got %d", atomic.LoadInt32(hits))
	}
}

func TestLookup_HTTPError(t *testing.T) {
	l, _ := newTestLookup(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	got := l.Query(context.Background(), `{"commodity":"rice"}`)
	if got != "Error: Could not retrieve market data. HTTP Error: 403" {
		t.Errorf("unexpected result %q", got)
	}
}

func TestCapability(t *testing.T) {
	l, _ := newTestLookup(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, riceRecords)
	})
	c := l.Capability()
	if c.Name() != CapabilityName || !strings.Contains(c.ArgumentHint(), "commodity") {
		t.Errorf("unexpected descriptor %s / %s", c.Name(), c.ArgumentHint())
	}
	if out := c.Invoke(context.Background(), `{"commodity":"rice"}`); !strings.Contains(out, "Kharagpur") {
		t.Errorf("unexpected invoke result %q", out)
	}
}
