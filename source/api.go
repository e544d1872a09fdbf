package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"

	"energyflow/dataset"
)

// FetchAPI GETs url and decodes a JSON array of flat objects into a dataset.
// Columns are the union of object keys, sorted by name. JSON null or an
// absent key is a missing value; strings go through the same kind inference
// as CSV cells.
func FetchAPI(ctx context.Context, client *http.Client, url string, headers map[string]string) (*dataset.Dataset, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch %s: unexpected status %s", url, resp.Status)
	}

	decoder := json.NewDecoder(resp.Body)
	decoder.UseNumber()
	var records []map[string]interface{}
	if err := decoder.Decode(&records); err != nil {
		return nil, fmt.Errorf("decode %s: %w", url, err)
	}
	return fromRecords(records)
}

func fromRecords(records []map[string]interface{}) (*dataset.Dataset, error) {
	keys := make(map[string]struct{})
	for _, rec := range records {
		for k := range rec {
			keys[k] = struct{}{}
		}
	}
	names := make([]string, 0, len(keys))
	for k := range keys {
		names = append(names, k)
	}
	sort.Strings(names)

	columns := make([]*dataset.Column, len(names))
	for c, name := range names {
		cells := make([]string, len(records))
		nulls := make([]bool, len(records))
		for r, rec := range records {
			switch v := rec[name].(type) {
			case nil:
				nulls[r] = true
			case json.Number:
				cells[r] = v.String()
			case string:
				cells[r] = v
			case bool:
				cells[r] = strconv.FormatBool(v)
			default:
				raw, err := json.Marshal(v)
				if err != nil {
					return nil, err
				}
				cells[r] = string(raw)
			}
		}
		col, err := buildColumn(name, cells, nulls, "", false)
		if err != nil {
			return nil, err
		}
		columns[c] = col
	}
	return dataset.New(columns...)
}
