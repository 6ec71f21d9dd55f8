// File: internal/targets/credentials.go
package targets

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"
)

// Credential is one email address drawn from the rotating pool.
type Credential struct {
	Address string
}

// Rotation hands out credentials round-robin. Selection is stateless modulo
// a single incrementing index shared across the run.
type Rotation struct {
	creds []Credential
	next  atomic.Uint64
}

// NewRotation builds a rotation over a non-empty credential set.
func NewRotation(creds []Credential) (*Rotation, error) {
	if len(creds) == 0 {
		return nil, fmt.Errorf("credential pool is empty")
	}
	return &Rotation{creds: creds}, nil
}

// Next returns the next credential in round-robin order. Safe for concurrent use.
func (r *Rotation) Next() Credential {
	n := r.next.Add(1) - 1
	return r.creds[n%uint64(len(r.creds))]
}

// Size returns the pool size.
func (r *Rotation) Size() int { return len(r.creds) }

// LoadCredentials reads email addresses from a CSV file, one per row, address
// in the first column. Rows without an "@" are skipped.
func LoadCredentials(path string) ([]Credential, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open credential list: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	var out []Credential
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("malformed credential list: %w", err)
		}
		if len(rec) == 0 {
			continue
		}
		addr := strings.TrimSpace(rec[0])
		if addr == "" || !strings.Contains(addr, "@") {
			continue
		}
		out = append(out, Credential{Address: addr})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("credential list %s contains no usable addresses", path)
	}
	return out, nil
}
