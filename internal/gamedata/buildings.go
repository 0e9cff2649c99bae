package gamedata

import (
	"fmt"
	"slices"
	"strings"

	"github.com/cockroachdb/errors"

	"opportunity/internal/shared"
)

// Building groups as shown on AtomicHub.
var (
	CoreBuildings = []string{
		"Solar Panel", "Water Filter", "C.A.D.", "Greenhouse", "Sab Reactor",
		"Smelter", "Chem Lab", "Machine Shop", "3D Print Shop",
	}
	AdvancedBuildings = []string{
		"Metis Shield", "Habitat", "Shelter", "Rover Works", "Engineering Bay",
		"Thorium Reactor", "Composter", "Mining Rig", "Polar Workshop", "GrindnBrew",
	}
	SpecialBuildings = []string{
		"Bazaar", "Teashop", "Cantina", "Pirate Radio", "Library",
		"Training Hall", "Gallery",
	}
)

// Rarities of land plots, lowest first.
var Rarities = []string{"Common", "Uncommon", "Rare", "Epic", "Legendary", "Mythic", "Special"}

// MaxLevel is the highest building level.
const MaxLevel = 10

// Buildings with a "-22" suffix in their second generation.
var gen2Legacy = map[string]bool{
	"solar_panel":    true,
	"cad":            true,
	"water_filter":   true,
	"greenhouse":     true,
	"polar_workshop": true,
}

// Hyphenated building keys.
var hyphenated = map[string]bool{
	"thorium reactor": true,
	"ground control":  true,
}

// LookupBuilding finds a building by name, ignoring case.
func LookupBuilding(name string) (string, bool) {
	for _, group := range [][]string{CoreBuildings, AdvancedBuildings, SpecialBuildings} {
		for _, b := range group {
			if strings.EqualFold(b, name) {
				return b, true
			}
		}
	}
	return "", false
}

// LookupRarity finds a rarity by name, ignoring case.
func LookupRarity(name string) (string, bool) {
	for _, r := range Rarities {
		if strings.EqualFold(r, name) {
			return r, true
		}
	}
	return "", false
}

// BuildingKey returns the mutable data attribute that counts building
// on a plot, for example "mining_rig-gen2_R4".
func BuildingKey(generation, level int, rarity, building string) (string, error) {
	name, ok := LookupBuilding(building)
	if !ok {
		return "", validation("Unknown building %s.", building)
	}
	r, ok := LookupRarity(rarity)
	if !ok {
		return "", validation("Unknown rarity %s.", rarity)
	}
	if generation < 1 || generation > 3 {
		return "", validation("Generation must be 1, 2 or 3.")
	}
	if level < 1 || level > MaxLevel {
		return "", validation("Level must be between 1 and %d.", MaxLevel)
	}
	if r == "Special" && !slices.Contains(SpecialBuildings, name) {
		return "", validation("You must select a special building when using special rarity.")
	}

	key := strings.ReplaceAll(strings.ToLower(name), ".", "")
	if hyphenated[key] {
		key = strings.ReplaceAll(key, " ", "-")
	} else {
		key = strings.ReplaceAll(key, " ", "_")
	}
	switch {
	case generation == 2 && gen2Legacy[key]:
		key += "-22"
	case generation == 2:
		key += "-gen2"
	case generation == 3:
		key += "-gen3"
	}
	return fmt.Sprintf("%s_%c%d", key, r[0], level), nil
}

// Plot attributes that are not buildings.
var nonBuildings = map[string]bool{"total_space": true, "available_space": true}

// SplitBuildings turns land plot schema attributes into display names of
// factories and artifacts. Attributes ending in "_A" are artifacts; any
// other suffix is a factory level. Order of first appearance is kept.
func SplitBuildings(attrs []string) (factories, artifacts []string) {
	seen := make(map[string]bool)
	for _, a := range attrs {
		if nonBuildings[a] {
			continue
		}
		base, suffix := a, ""
		if i := strings.LastIndex(a, "_"); i >= 0 {
			base, suffix = a[:i], a[i+1:]
		}
		name := displayName(base)
		if suffix == "A" {
			artifacts = append(artifacts, name)
			continue
		}
		if !seen[name] {
			seen[name] = true
			factories = append(factories, name)
		}
	}
	return factories, artifacts
}

func displayName(key string) string {
	words := strings.Fields(strings.ReplaceAll(key, "_", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
	}
	return strings.Join(words, " ")
}

// validation errors are shown to the user verbatim.
func validation(format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	return errors.WithHint(shared.MarkKind(errors.New(msg), shared.KindValidation), msg)
}
