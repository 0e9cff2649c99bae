// Package gamedata loads static Million on Mars game tables.
package gamedata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"opportunity/internal/platform/httpclient"
	"opportunity/internal/shared"
)

// Recipe is one craftable task.
type Recipe struct {
	Name            string  `json:"name"`
	DurationSeconds float64 `json:"durationSeconds"`
	Category        string  `json:"category,omitempty"`
}

// Duration returns how long the task takes to finish.
func (r Recipe) Duration() time.Duration {
	return time.Duration(r.DurationSeconds * float64(time.Second))
}

// Recipes maps a recipe key (for example "mining_rig_C1") to its recipe.
type Recipes map[string]Recipe

// Lookup finds a recipe by key. Keys are case-sensitive.
func (r Recipes) Lookup(key string) (Recipe, bool) {
	rec, ok := r[key]
	return rec, ok
}

// Parse decodes recipes.json and rejects entries without a name or with
// a non-positive duration.
func Parse(r io.Reader) (Recipes, error) {
	var out Recipes
	if err := json.NewDecoder(r).Decode(&out); err != nil {
		return nil, shared.MarkKind(fmt.Errorf("decode recipes: %w", err), shared.KindValidation)
	}
	return out, out.validate()
}

func (r Recipes) validate() error {
	for key, rec := range r {
		if rec.Name == "" || rec.DurationSeconds <= 0 {
			return shared.MarkKind(fmt.Errorf("recipe %q: name and positive durationSeconds required", key), shared.KindValidation)
		}
	}
	return nil
}

// LoadFile reads recipes from a local JSON file.
func LoadFile(path string) (Recipes, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open recipes: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Load reads recipes from src, which is either a file path or an
// http(s) URL fetched with client.
func Load(ctx context.Context, src string, client *httpclient.Client) (Recipes, error) {
	if !strings.HasPrefix(src, "http://") && !strings.HasPrefix(src, "https://") {
		return LoadFile(src)
	}
	if client == nil {
		client = httpclient.New()
	}
	var out Recipes
	if err := client.GetJSON(ctx, src, nil, &out); err != nil {
		return nil, fmt.Errorf("fetch recipes: %w", err)
	}
	return out, out.validate()
}
