// File: internal/targets/loader.go
package targets

import (
	"encoding/csv"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
)

// Target is a normalized origin URL to visit. Immutable once loaded.
type Target struct {
	// URL is the canonical form: https scheme, lowercased host, no trailing slash.
	URL string
	// UTMVariant is the UTM-decorated form, empty unless decoration was requested.
	UTMVariant string
}

// NavURL returns the URL the browser should actually visit.
func (t Target) NavURL() string {
	if t.UTMVariant != "" {
		return t.UTMVariant
	}
	return t.URL
}

// Normalize canonicalizes a raw domain or URL into a Target. utmParams, when
// non-empty, is a raw query string ("utm_source=x&utm_medium=y") appended as
// the decorated variant.
func Normalize(raw, utmParams string) (Target, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Target{}, fmt.Errorf("empty target")
	}
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return Target{}, fmt.Errorf("invalid target %q: %w", raw, err)
	}
	if u.Host == "" {
		return Target{}, fmt.Errorf("target %q has no host", raw)
	}
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	canonical := strings.TrimSuffix(u.String(), "/")

	t := Target{URL: canonical}
	if utmParams != "" {
		v := *u
		q := v.Query()
		extra, err := url.ParseQuery(utmParams)
		if err != nil {
			return Target{}, fmt.Errorf("invalid utm params %q: %w", utmParams, err)
		}
		for k, vals := range extra {
			for _, val := range vals {
				q.Add(k, val)
			}
		}
		v.RawQuery = q.Encode()
		t.UTMVariant = v.String()
	}
	return t, nil
}

// LoadTargets reads targets from a CSV file, one record per row, URL in the
// first column. A header row whose first cell looks like a column name is
// skipped. An empty resulting list is a configuration error.
func LoadTargets(path, utmParams string) ([]Target, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open target list: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	var out []Target
	seen := make(map[string]struct{})
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("malformed target list: %w", err)
		}
		if len(rec) == 0 || strings.TrimSpace(rec[0]) == "" {
			continue
		}
		cell := strings.TrimSpace(rec[0])
		if isHeaderCell(cell) {
			continue
		}
		t, err := Normalize(cell, utmParams)
		if err != nil {
			// A single garbage row should not sink a ten-thousand-row list.
			continue
		}
		if _, dup := seen[t.URL]; dup {
			continue
		}
		seen[t.URL] = struct{}{}
		out = append(out, t)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("target list %s contains no usable targets", path)
	}
	return out, nil
}

func isHeaderCell(cell string) bool {
	switch strings.ToLower(cell) {
	case "url", "domain", "target", "website", "site":
		return true
	}
	return false
}
