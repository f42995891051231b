package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/jwebster45206/weave-arena/pkg/combat"
	"github.com/jwebster45206/weave-arena/pkg/pattern"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s <data-dir>\n", os.Args[0])
		os.Exit(1)
	}

	dataDir := os.Args[1]
	validator := &CatalogValidator{seen: map[string]string{}}

	if err := validator.validateDir(dataDir); err != nil {
		fmt.Fprintf(os.Stderr, "Validation failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Catalog is valid!")
}

type CatalogValidator struct {
	errors []string
	// seen maps "kind:id" to the file that first declared it
	seen map[string]string
}

func (v *CatalogValidator) validateDir(dataDir string) error {
	checks := []struct {
		kind     string
		validate func(filename string, data []byte) error
	}{
		{"encounters", v.validateEncounters},
		{"eidolons", v.validateEidolons},
		{"players", v.validatePlayers},
	}

	for _, c := range checks {
		files, err := filepath.Glob(filepath.Join(dataDir, c.kind, "*.json"))
		if err != nil {
			return fmt.Errorf("failed to list %s: %w", c.kind, err)
		}
		for _, filename := range files {
			fmt.Printf("Validating %s...\n", filename)

			baseName := strings.TrimSuffix(filepath.Base(filename), ".json")
			if !isValidID(baseName) {
				v.addError(fmt.Sprintf("%s: filename should be lowercase kebab-case", filename))
			}

			data, err := os.ReadFile(filename)
			if err != nil {
				return fmt.Errorf("failed to read file %s: %w", filename, err)
			}
			if !json.Valid(data) {
				return fmt.Errorf("file %s contains invalid JSON", filename)
			}
			if err := c.validate(filename, data); err != nil {
				return err
			}
		}
	}

	if len(v.errors) > 0 {
		return fmt.Errorf("validation errors in %s:\n%s", dataDir, strings.Join(v.errors, "\n"))
	}
	return nil
}

func decodeStrict[T any](filename string, data []byte) ([]T, error) {
	var items []T
	decoder := json.NewDecoder(strings.NewReader(string(data)))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&items); err != nil {
		return nil, fmt.Errorf("file %s failed strict JSON unmarshaling: %w", filename, err)
	}
	return items, nil
}

func (v *CatalogValidator) validateEncounters(filename string, data []byte) error {
	encounters, err := decodeStrict[combat.Encounter](filename, data)
	if err != nil {
		return err
	}
	for _, e := range encounters {
		ctx := fmt.Sprintf("%s: encounter %q", filename, e.ID)
		v.validateIdentity("encounter", e.ID, filename)
		v.validateRarity(ctx, e.Rarity)
		if e.Name == "" {
			v.addError(ctx + " has no name")
		}
		if e.Difficulty < 1 {
			v.addError(fmt.Sprintf("%s difficulty %d must be at least 1", ctx, e.Difficulty))
		}
		v.validatePattern(ctx, e.WeaknessPattern)
		if e.WeaknessHint == "" {
			v.addError(ctx + " has no weakness hint")
		}
		if e.Reward.Currency < 0 || e.Reward.Experience < 0 {
			v.addError(ctx + " has a negative reward")
		}
		if e.Reward.ItemDropChance < 0 || e.Reward.ItemDropChance > 1 {
			v.addError(fmt.Sprintf("%s item_drop_chance %.2f must be within [0, 1]", ctx, e.Reward.ItemDropChance))
		}
		if e.Reward.ItemDropChance > 0 && len(e.Reward.ItemRefs) == 0 {
			v.addError(ctx + " has an item drop chance but no item_refs")
		}
		for _, ref := range e.Reward.ItemRefs {
			if !isValidID(ref) {
				v.addError(fmt.Sprintf("%s item ref '%s' should be lowercase kebab-case", ctx, ref))
			}
		}
	}
	return nil
}

func (v *CatalogValidator) validateEidolons(filename string, data []byte) error {
	eidolons, err := decodeStrict[combat.Eidolon](filename, data)
	if err != nil {
		return err
	}
	for _, e := range eidolons {
		ctx := fmt.Sprintf("%s: eidolon %q", filename, e.ID)
		v.validateIdentity("eidolon", e.ID, filename)
		v.validateRarity(ctx, e.Rarity)
		if e.Name == "" {
			v.addError(ctx + " has no name")
		}
		// Abilities are optional; duels fall back to a generic skill.
		for _, a := range e.Abilities {
			if strings.TrimSpace(a) == "" {
				v.addError(ctx + " has a blank ability")
			}
		}
	}
	return nil
}

func (v *CatalogValidator) validatePlayers(filename string, data []byte) error {
	players, err := decodeStrict[combat.Player](filename, data)
	if err != nil {
		return err
	}
	for _, p := range players {
		ctx := fmt.Sprintf("%s: player %q", filename, p.ID)
		v.validateIdentity("player", p.ID, filename)
		if p.Level < 1 {
			v.addError(fmt.Sprintf("%s level %d must be at least 1", ctx, p.Level))
		}
		if p.Currency < 0 || p.Experience < 0 {
			v.addError(ctx + " has a negative balance")
		}
	}
	return nil
}

func (v *CatalogValidator) validateIdentity(kind, id, filename string) {
	if id == "" {
		v.addError(fmt.Sprintf("%s: %s with empty id", filename, kind))
		return
	}
	if !isValidID(id) {
		v.addError(fmt.Sprintf("%s: %s id '%s' should be lowercase kebab-case", filename, kind, id))
	}
	key := kind + ":" + id
	if first, ok := v.seen[key]; ok {
		v.addError(fmt.Sprintf("%s: duplicate %s id '%s' (first declared in %s)", filename, kind, id, first))
		return
	}
	v.seen[key] = filename
}

func (v *CatalogValidator) validateRarity(ctx, rarity string) {
	if _, ok := combat.DefaultRarityWeights[rarity]; !ok {
		v.addError(fmt.Sprintf("%s has unknown rarity '%s'", ctx, rarity))
	}
}

// validatePattern rejects weakness patterns with dangling operators, which
// would make an empty operand match every attempt.
func (v *CatalogValidator) validatePattern(ctx, weakness string) {
	norm := pattern.Normalize(weakness)
	if norm == "" {
		v.addError(ctx + " has no weakness pattern")
		return
	}
	for _, op := range []string{"and", "or"} {
		words := strings.Fields(norm)
		if words[0] == op || words[len(words)-1] == op {
			v.addError(fmt.Sprintf("%s weakness pattern '%s' has a dangling %s", ctx, weakness, strings.ToUpper(op)))
		}
	}
	if norm == "not" {
		v.addError(fmt.Sprintf("%s weakness pattern '%s' has no NOT operand", ctx, weakness))
	}
}

func (v *CatalogValidator) addError(msg string) {
	v.errors = append(v.errors, "  - "+msg)
}

var validIDRegex = regexp.MustCompile(`^[a-z][a-z0-9-]*[a-z0-9]$|^[a-z]$`)

func isValidID(id string) bool {
	return validIDRegex.MatchString(id)
}
