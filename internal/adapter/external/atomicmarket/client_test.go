package atomicmarket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opportunity/internal/shared"
)

const salesBody = `{
  "success": true,
  "data": [
    {
      "sale_id": "98765",
      "price": {"amount": "123456789012", "token_symbol": "WAX", "token_precision": 8},
      "assets": [{"name": "Plot", "data": {"name": "Coprates 12-7", "rarity": "Rare"}}]
    },
    {
      "sale_id": "98766",
      "price": {"amount": "500000000000", "token_symbol": "WAX"},
      "assets": [{"name": "Coprates 3-3", "data": {}}]
    }
  ]
}`

func serve(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "land.plots", r.URL.Query().Get("schema_name"))
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestSales(t *testing.T) {
	srv := serve(t, http.StatusOK, salesBody)

	sales, err := New(nil).Sales(context.Background(), srv.URL+"/atomicmarket/v2/sales?schema_name=land.plots")
	require.NoError(t, err)
	require.Len(t, sales, 2)

	assert.Equal(t, Sale{ID: "98765", Name: "Coprates 12-7", Rarity: "Rare", Price: 1235, Symbol: "WAX"}, sales[0])
	assert.Equal(t, "https://wax.atomichub.io/market/sale/98765", sales[0].Link())
	assert.Equal(t, "Coprates 3-3", sales[1].Name, "имя берется из ассета, если в data его нет")
	assert.Equal(t, int64(5000), sales[1].Price)
}

func TestSales_Errors(t *testing.T) {
	cases := map[string]struct {
		status int
		body   string
		kind   shared.Kind
	}{
		"not found":    {http.StatusNotFound, "{}", shared.KindNotFound},
		"unsuccessful": {http.StatusOK, `{"success": false}`, shared.KindDependencyFailure},
		"bad amount":   {http.StatusOK, `{"success": true, "data": [{"sale_id": "1", "price": {"amount": "lots"}}]}`, shared.KindDependencyFailure},
		"bad json":     {http.StatusOK, `{`, shared.KindDependencyFailure},
	}
	for name, tc := range cases {
		tc := tc // per-iteration copy (Go 1.21 loop semantics)
		t.Run(name, func(t *testing.T) {
			srv := serve(t, tc.status, tc.body)
			_, err := New(nil).Sales(context.Background(), srv.URL+"?schema_name=land.plots")
			require.Error(t, err)
			assert.Equal(t, tc.kind, shared.KindOf(err))
		})
	}
}

func TestCheapest(t *testing.T) {
	sales := []Sale{{ID: "a", Price: 900}, {ID: "b", Price: 1100}}

	s, ok := Cheapest(sales, 1000)
	require.True(t, ok)
	assert.Equal(t, "a", s.ID)

	_, ok = Cheapest(sales, 800)
	assert.False(t, ok)
}

func TestSale_Land(t *testing.T) {
	assert.Equal(t, "Rare", Sale{Rarity: "Rare"}.Land())
	assert.Equal(t, BundleLand, Sale{Rarity: "Rare", Bundle: true}.Land())
}

func TestSales_Bundle(t *testing.T) {
	srv := serve(t, http.StatusOK, `{"success": true, "data": [{
		"sale_id": "5",
		"price": {"amount": "100000000", "token_symbol": "WAX"},
		"assets": [{"data": {"name": "A", "rarity": "Common"}}, {"data": {"name": "B", "rarity": "Epic"}}]
	}]}`)

	sales, err := New(nil).Sales(context.Background(), srv.URL+"?schema_name=land.plots")
	require.NoError(t, err)
	require.Len(t, sales, 1)
	assert.True(t, sales[0].Bundle)
	assert.Equal(t, "A", sales[0].Name)
	assert.Equal(t, BundleLand, sales[0].Land())
}

func TestBuildingSalesURL(t *testing.T) {
	raw := BuildingSalesURL("https://market.test/sales", "mining_rig-gen2_R4", 2, 1)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "/sales", u.Path)
	q := u.Query()
	assert.Equal(t, "2", q.Get("mutable_data.mining_rig-gen2_R4"))
	assert.Equal(t, "1", q.Get("page"))
	assert.Equal(t, "10", q.Get("limit"))
	assert.Equal(t, "onmars", q.Get("collection_name"))
	assert.Equal(t, "land.plots", q.Get("schema_name"))
	assert.Equal(t, "price", q.Get("sort"))
	assert.Equal(t, "asc", q.Get("order"))
	assert.Equal(t, "1", q.Get("state"))
}

func TestQuadrangleSalesURL(t *testing.T) {
	u, err := url.Parse(QuadrangleSalesURL("https://market.test/sales", "Coprates"))
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "Coprates", q.Get("immutable_data.quadrangle"))
	assert.Equal(t, "100", q.Get("limit"))
	assert.Empty(t, q.Get("mutable_data.solar_panel_C1"))
}

func TestSchemaAttributes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/schemas/onmars/land.plots", r.URL.Path)
		_, _ = w.Write([]byte(`{"success": true, "data": {"format": [
			{"name": "total_space", "type": "uint8"},
			{"name": "mining_rig_C1", "type": "uint8"},
			{"name": "cantina_A", "type": "uint8"}
		]}}`))
	}))
	t.Cleanup(srv.Close)

	names, err := New(nil).SchemaAttributes(context.Background(), srv.URL+"/schemas/onmars/land.plots")
	require.NoError(t, err)
	assert.Equal(t, []string{"total_space", "mining_rig_C1", "cantina_A"}, names)
}

func TestSchemaAttributes_Unsuccessful(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"success": false}`))
	}))
	t.Cleanup(srv.Close)

	_, err := New(nil).SchemaAttributes(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Equal(t, shared.KindDependencyFailure, shared.KindOf(err))
}
