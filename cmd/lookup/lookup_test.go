package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macrolens/productcheck/internal/domain"
	"github.com/macrolens/productcheck/internal/usecase"
)

const testSeed = `
products:
  - id: p-1
    name: Nutella
    manufacturer: Ferrero
    barcode: "3017620422003"
    status: approved
`

func writeTestConfig(t *testing.T) string {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v2/product/3017620422003.json" {
			fmt.Fprint(w, `{"code":"3017620422003","status":1,"product":{"code":"3017620422003","product_name":"Nutella","brands":"Ferrero"}}`)
			return
		}
		fmt.Fprint(w, `{"count":1,"products":[{"code":"8000500310427","product_name":"Nutella Biscuits","brands":"Ferrero"}]}`)
	}))
	t.Cleanup(server.Close)

	dir := t.TempDir()
	seedPath := filepath.Join(dir, "seed.yaml")
	require.NoError(t, os.WriteFile(seedPath, []byte(testSeed), 0o600))

	cfg := fmt.Sprintf(`
catalog:
  type: memory
  seed_file: %s
external:
  - id: off
    kind: openfoodfacts
    base_url: %s
    rate_per_second: 100
    burst: 10
`, seedPath, server.URL)
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o600))
	return path
}

// execute runs the root command with fresh flag state
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	outputJSON = false
	verifyMode = "combined"
	verifyBarcode = ""
	verifyUser = ""
	suggestFilters = domain.SearchFilters{}

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(new(bytes.Buffer))
	rootCmd.SetArgs(args)
	defer func() {
		rootCmd.SetArgs(nil)
		closeCore()
	}()

	err := rootCmd.Execute()
	return buf.String(), err
}

func TestSuggestCmd_RequiresExactlyOneArg(t *testing.T) {
	_, err := execute(t, "suggest")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg(s)")
}

func TestSuggestCmd_ListsCatalogThenExternal(t *testing.T) {
	path := writeTestConfig(t)

	out, err := execute(t, "--config", path, "suggest", "nutella")
	require.NoError(t, err)
	assert.Contains(t, out, "[1] Nutella\n")
	assert.Contains(t, out, "[2] Nutella Biscuits - Ferrero (off, ")
}

func TestSuggestCmd_JSON(t *testing.T) {
	path := writeTestConfig(t)

	out, err := execute(t, "--config", path, "--json", "suggest", "nutella")
	require.NoError(t, err)

	var set usecase.SuggestionSet
	require.NoError(t, json.Unmarshal([]byte(out), &set))
	assert.Equal(t, []string{"Nutella"}, set.Suggestions)
	require.Len(t, set.ExternalProducts, 1)
	assert.Equal(t, "off", set.ExternalProducts[0].Source)
}

func TestSuggestCmd_ShortQuery(t *testing.T) {
	path := writeTestConfig(t)

	_, err := execute(t, "--config", path, "suggest", "n")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least 2 characters")
}

func TestVerifyCmd_Internal(t *testing.T) {
	path := writeTestConfig(t)

	out, err := execute(t, "--config", path, "verify", "--mode", "internal", "nutella")
	require.NoError(t, err)
	assert.Contains(t, out, "State:      RESOLVED")
	assert.Contains(t, out, "verified (100%, internal)")
}

func TestVerifyCmd_RejectsBadInput(t *testing.T) {
	path := writeTestConfig(t)

	_, err := execute(t, "--config", path, "verify", "--mode", "psychic", "nutella")
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)

	_, err = execute(t, "--config", path, "verify")
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)

	_, err = execute(t, "--config", path, "verify", "--barcode", "3017620422004")
	assert.ErrorIs(t, err, domain.ErrInvalidBarcode)
}

func TestScanCmd(t *testing.T) {
	path := writeTestConfig(t)

	_, err := execute(t, "--config", path, "scan", "12345")
	assert.ErrorIs(t, err, domain.ErrInvalidBarcode)

	out, err := execute(t, "--config", path, "scan", "3017620422003")
	require.NoError(t, err)
	assert.Contains(t, out, "State:      RESOLVED")
	assert.Contains(t, out, "Product:    Nutella")
	assert.Contains(t, out, "off")
}
