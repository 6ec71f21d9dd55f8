// File: internal/targets/loader_test.go
package targets_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/optinreach/internal/targets"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare domain gets https", "example.com", "https://example.com"},
		{"host is lowercased", "HTTPS://Example.COM/Page", "https://example.com/Page"},
		{"trailing slash stripped", "https://example.com/", "https://example.com"},
		{"fragment stripped", "https://example.com/a#section", "https://example.com/a"},
		{"existing scheme kept", "http://example.com", "http://example.com"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := targets.Normalize(tt.in, "")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.URL)
			assert.Empty(t, got.UTMVariant)
			assert.Equal(t, tt.want, got.NavURL())
		})
	}
}

func TestNormalize_Rejects(t *testing.T) {
	for _, in := range []string{"", "   ", "https://"} {
		_, err := targets.Normalize(in, "")
		assert.Error(t, err, "input %q", in)
	}
}

func TestNormalize_UTMVariant(t *testing.T) {
	tgt, err := targets.Normalize("example.com/signup", "utm_source=partner&utm_medium=email")
	require.NoError(t, err)

	assert.Equal(t, "https://example.com/signup", tgt.URL)
	assert.Contains(t, tgt.UTMVariant, "utm_source=partner")
	assert.Contains(t, tgt.UTMVariant, "utm_medium=email")
	// Navigation prefers the decorated form when present.
	assert.Equal(t, tgt.UTMVariant, tgt.NavURL())
}

func TestNormalize_BadUTMParams(t *testing.T) {
	_, err := targets.Normalize("example.com", "utm_source=%zz")
	assert.Error(t, err)
}

func TestLoadTargets(t *testing.T) {
	path := writeTemp(t, "targets.csv", `url
example.com
https://example.com/
shop.example.org,Some Shop
not a url at all %%%
EXAMPLE.com
`)

	tgts, err := targets.LoadTargets(path, "")
	require.NoError(t, err)

	// Header skipped, duplicates collapse onto the canonical form, malformed
	// rows are dropped without failing the whole list.
	urls := make([]string, 0, len(tgts))
	for _, tgt := range tgts {
		urls = append(urls, tgt.URL)
	}
	assert.Equal(t, []string{"https://example.com", "https://shop.example.org"}, urls)
}

func TestLoadTargets_EmptyListIsError(t *testing.T) {
	path := writeTemp(t, "empty.csv", "url\n")
	_, err := targets.LoadTargets(path, "")
	assert.Error(t, err)
}

func TestLoadTargets_MissingFile(t *testing.T) {
	_, err := targets.LoadTargets(filepath.Join(t.TempDir(), "nope.csv"), "")
	assert.Error(t, err)
}
