package market

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	agrisage "github.com/ZanzyTHEbar/agrisage-genkit"
	"github.com/ZanzyTHEbar/agrisage-genkit/internal/adapters"
	"github.com/ZanzyTHEbar/agrisage-genkit/internal/cache"
	"github.com/rs/zerolog/log"
)

const (
	// CapabilityName is the tool name shown to the model.
	CapabilityName = "MarketInfo"

	// NoDataMessage is returned, and never cached, when nothing matches.
	NoDataMessage = "No market data found for the given criteria."
	// InvalidQueryMessage is returned when the argument is not a JSON object.
	InvalidQueryMessage = "Error: Invalid JSON query format. Please provide a JSON string."

	description  = "Useful for finding the latest market prices for agricultural commodities."
	argumentHint = `A JSON string with optional keys 'commodity', 'state' and 'district', for example {"commodity": "rice", "state": "West Bengal"}.`
)

var filterFields = []string{"commodity", "state", "district"}

// Record is one projected price row.
type Record struct {
	Commodity   string `json:"commodity"`
	Mandi       string `json:"mandi"`
	State       string `json:"state"`
	District    string `json:"district"`
	ModalPrice  string `json:"modal_price"`
	ArrivalDate string `json:"arrival_date"`
}

// Project maps a provider record to the fixed field set. Missing fields
// become "N/A".
func Project(raw map[string]any) Record {
	field := func(name string) string {
		v, ok := raw[name]
		if !ok || v == nil {
			return "N/A"
		}
		if s, ok := v.(string); ok {
			return s
		}
		return fmt.Sprint(v)
	}
	return Record{
		Commodity:   field("commodity"),
		Mandi:       field("market"),
		State:       field("state"),
		District:    field("district"),
		ModalPrice:  field("modal_price"),
		ArrivalDate: field("arrival_date"),
	}
}

// CanonicalKey is the JSON encoding of the query's [key, value] pairs
// sorted by key, so permutations of the same fields collide.
func CanonicalKey(params map[string]any) (string, error) {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([][2]any, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, [2]any{k, params[k]})
	}
	b, err := json.Marshal(pairs)
	if err != nil {
		return "", fmt.Errorf("failed to build market cache key: %w", err)
	}
	return string(b), nil
}

// Lookup answers market queries through the price cache.
type Lookup struct {
	client *Client
	cache  *cache.DataCache
}

// NewLookup creates a Lookup.
func NewLookup(client *Client, dc *cache.DataCache) *Lookup {
	return &Lookup{client: client, cache: dc}
}

// Query parses a JSON argument and returns projected records as indented
// JSON, or one of the fixed messages.
func (l *Lookup) Query(ctx context.Context, query string) string {
	var params map[string]any
	if err := json.Unmarshal([]byte(query), &params); err != nil || params == nil {
		return InvalidQueryMessage
	}
	key, err := CanonicalKey(params)
	if err != nil {
		return InvalidQueryMessage
	}

	filters := make(map[string]string)
	for _, field := range filterFields {
		if v, ok := params[field]; ok && v != nil {
			filters[field] = fmt.Sprint(v)
		}
	}

	payload, err := l.cache.GetOrFetch(ctx, key, func(ctx context.Context) (json.RawMessage, bool, error) {
		raw, err := l.client.Records(ctx, filters)
		if err != nil {
			return nil, false, err
		}
		if len(raw) == 0 {
			return json.RawMessage(`[]`), false, nil
		}
		records := make([]Record, 0, len(raw))
		for _, r := range raw {
			records = append(records, Project(r))
		}
		b, err := json.Marshal(records)
		if err != nil {
			return nil, false, err
		}
		return b, true, nil
	})
	if err != nil {
		var httpErr *HTTPError
		switch {
		case errors.As(err, &httpErr):
			log.Warn().Err(err).Str("key", key).Msg("market provider rejected request")
			return "Error: Could not retrieve market data. " + httpErr.Error()
		default:
			log.Warn().Err(err).Str("key", key).Msg("market lookup failed")
			return fmt.Sprintf("An unexpected error occurred: %v", err)
		}
	}

	if string(payload) == `[]` {
		return NoDataMessage
	}

	var out bytes.Buffer
	if err := json.Indent(&out, payload, "", "  "); err != nil {
		return fmt.Sprintf("An unexpected error occurred: %v", err)
	}
	return out.String()
}

// Capability exposes the lookup as the MarketInfo capability.
func (l *Lookup) Capability(opts ...adapters.CapabilityOption) *adapters.FuncCapability {
	opts = append([]adapters.CapabilityOption{
		adapters.WithDescription(description),
		adapters.WithArgumentHint(argumentHint),
	}, opts...)
	return adapters.NewCapability(CapabilityName, agrisage.KindMarket, func(ctx context.Context, argument string) (string, error) {
		return l.Query(ctx, argument), nil
	}, opts...)
}
