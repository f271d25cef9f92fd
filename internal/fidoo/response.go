package fidoo

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// recordKeys are the envelope fields that may hold the record list, in lookup order.
var recordKeys = []string{"root", "items", "Items", "data", "Data", "results", "Results", "Records", "records"}

// Page is one response of a paginated read.
type Page struct {
	Records []map[string]any

	// Complete is the API's explicit end-of-data flag.
	Complete bool

	// NextOffsetToken continues the read; empty when the API sent none.
	NextOffsetToken string
}

// parsePage decodes a read response. Numbers stay json.Number.
func parsePage(body []byte) (*Page, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("parsePage: decoding response: %w", err)
	}

	page := &Page{}
	switch v := raw.(type) {
	case nil:
		page.Complete = true
	case []any:
		page.Records = toRecords(v)
		page.Complete = true
	case map[string]any:
	keys:
		for _, key := range recordKeys {
			val, ok := v[key]
			if !ok || val == nil {
				continue
			}
			switch items := val.(type) {
			case []any:
				if len(items) == 0 {
					continue
				}
				page.Records = toRecords(items)
			case map[string]any:
				page.Records = []map[string]any{items}
			}
			break keys
		}
		page.Complete, _ = v["complete"].(bool)
		page.NextOffsetToken, _ = v["nextOffsetToken"].(string)
	default:
		return nil, fmt.Errorf("parsePage: unexpected response type %T", raw)
	}

	return page, nil
}

func toRecords(items []any) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		switch rec := item.(type) {
		case map[string]any:
			out = append(out, rec)
		case nil:
		default:
			out = append(out, map[string]any{"value": rec})
		}
	}
	return out
}
