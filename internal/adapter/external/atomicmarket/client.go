// Package atomicmarket reads sale listings from the AtomicMarket API.
package atomicmarket

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"strconv"

	"opportunity/internal/platform/httpclient"
	"opportunity/internal/shared"
)

// SaleURLBase prefixes a sale id to link to the AtomicHub market page.
const SaleURLBase = "https://wax.atomichub.io/market/sale/"

// defaultPrecision is the WAX token precision.
const defaultPrecision = 8

// BundleLand labels a sale that contains more than one plot.
const BundleLand = "Bundle"

// Sale is one active marketplace listing.
type Sale struct {
	ID     string
	Name   string
	Rarity string
	// Price in whole tokens, rounded.
	Price  int64
	Symbol string
	// Bundle is set when the sale contains several assets.
	Bundle bool
}

// Link returns the AtomicHub page of the sale.
func (s Sale) Link() string { return SaleURLBase + s.ID }

// Land describes the listed plot by rarity, or BundleLand.
func (s Sale) Land() string {
	if s.Bundle {
		return BundleLand
	}
	return s.Rarity
}

// BuildingSalesURL lists onmars land plots holding amount of building,
// cheapest first, ten per page.
func BuildingSalesURL(base, building string, amount, page int) string {
	q := plotQuery()
	q.Set("mutable_data."+building, strconv.Itoa(amount))
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", "10")
	return base + "?" + q.Encode()
}

// QuadrangleSalesURL lists onmars land plots in a quadrangle, cheapest first.
func QuadrangleSalesURL(base, quadrangle string) string {
	q := plotQuery()
	q.Set("immutable_data.quadrangle", quadrangle)
	q.Set("page", "1")
	q.Set("limit", "100")
	return base + "?" + q.Encode()
}

func plotQuery() url.Values {
	return url.Values{
		"state":           {"1"},
		"collection_name": {"onmars"},
		"schema_name":     {"land.plots"},
		"order":           {"asc"},
		"sort":            {"price"},
	}
}

// Client queries the sales endpoint through the shared HTTP client.
type Client struct {
	http *httpclient.Client
}

// New creates a Client. A nil hc uses httpclient defaults.
func New(hc *httpclient.Client) *Client {
	if hc == nil {
		hc = httpclient.New()
	}
	return &Client{http: hc}
}

type salesResponse struct {
	Success bool       `json:"success"`
	Data    []saleJSON `json:"data"`
}

type saleJSON struct {
	SaleID string `json:"sale_id"`
	Price  struct {
		Amount         string `json:"amount"`
		TokenSymbol    string `json:"token_symbol"`
		TokenPrecision int    `json:"token_precision"`
	} `json:"price"`
	Assets []struct {
		Name string `json:"name"`
		Data struct {
			Name   string `json:"name"`
			Rarity string `json:"rarity"`
		} `json:"data"`
	} `json:"assets"`
}

// Sales fetches listings from a fully built sales query URL, keeping
// the order returned by the API.
func (c *Client) Sales(ctx context.Context, salesURL string) ([]Sale, error) {
	var resp salesResponse
	if err := c.http.GetJSON(ctx, salesURL, nil, &resp); err != nil {
		return nil, fmt.Errorf("atomicmarket sales: %w", err)
	}
	if !resp.Success {
		return nil, shared.MarkKind(fmt.Errorf("atomicmarket sales: unsuccessful response"), shared.KindDependencyFailure)
	}

	sales := make([]Sale, 0, len(resp.Data))
	for _, d := range resp.Data {
		s, err := d.sale()
		if err != nil {
			return nil, shared.MarkKind(fmt.Errorf("atomicmarket sale %s: %w", d.SaleID, err), shared.KindDependencyFailure)
		}
		sales = append(sales, s)
	}
	return sales, nil
}

func (d saleJSON) sale() (Sale, error) {
	amount, err := strconv.ParseFloat(d.Price.Amount, 64)
	if err != nil {
		return Sale{}, fmt.Errorf("price amount %q: %w", d.Price.Amount, err)
	}
	precision := d.Price.TokenPrecision
	if precision == 0 {
		precision = defaultPrecision
	}
	s := Sale{
		ID:     d.SaleID,
		Price:  int64(math.Round(amount / math.Pow10(precision))),
		Symbol: d.Price.TokenSymbol,
	}
	if len(d.Assets) > 0 {
		a := d.Assets[0]
		s.Name = a.Data.Name
		if s.Name == "" {
			s.Name = a.Name
		}
		s.Rarity = a.Data.Rarity
	}
	s.Bundle = len(d.Assets) > 1
	return s, nil
}

type schemaResponse struct {
	Success bool `json:"success"`
	Data    struct {
		Format []struct {
			Name string `json:"name"`
			Type string `json:"type"`
		} `json:"format"`
	} `json:"data"`
}

// SchemaAttributes returns the attribute names of an AtomicAssets schema.
func (c *Client) SchemaAttributes(ctx context.Context, schemaURL string) ([]string, error) {
	var resp schemaResponse
	if err := c.http.GetJSON(ctx, schemaURL, nil, &resp); err != nil {
		return nil, fmt.Errorf("atomicassets schema: %w", err)
	}
	if !resp.Success {
		return nil, shared.MarkKind(fmt.Errorf("atomicassets schema: unsuccessful response"), shared.KindDependencyFailure)
	}
	names := make([]string, 0, len(resp.Data.Format))
	for _, f := range resp.Data.Format {
		names = append(names, f.Name)
	}
	return names, nil
}

// Cheapest returns the first sale priced at or below threshold.
// Listings are expected in ascending price order.
func Cheapest(sales []Sale, threshold int64) (Sale, bool) {
	for _, s := range sales {
		if s.Price <= threshold {
			return s, true
		}
	}
	return Sale{}, false
}
