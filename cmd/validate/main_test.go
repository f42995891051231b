package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeCatalogFile(t *testing.T, dir, kind, name, body string) {
	t.Helper()
	path := filepath.Join(dir, kind)
	if err := os.MkdirAll(path, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(path, name), []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestValidateDir_ShippedCatalog(t *testing.T) {
	v := &CatalogValidator{seen: map[string]string{}}
	if err := v.validateDir(filepath.Join("..", "..", "data")); err != nil {
		t.Fatalf("Expected shipped catalog to be valid, got: %v", err)
	}
}

func TestValidateDir_ReportsProblems(t *testing.T) {
	dir := t.TempDir()
	writeCatalogFile(t, dir, "encounters", "bad.json", `[
		{"id": "Bad_Id", "name": "X", "difficulty": 0, "rarity": "mythic",
		 "weakness_pattern": "Fire AND", "weakness_hint": "hot", "reward": {"currency": 1}},
		{"id": "dupe", "name": "Y", "difficulty": 1, "rarity": "common",
		 "weakness_pattern": "Ice", "weakness_hint": "cold", "reward": {"item_drop_chance": 0.5}},
		{"id": "dupe", "name": "Z", "difficulty": 1, "rarity": "common",
		 "weakness_pattern": "Ice", "weakness_hint": "cold", "reward": {}}
	]`)

	v := &CatalogValidator{seen: map[string]string{}}
	err := v.validateDir(dir)
	if err == nil {
		t.Fatal("Expected validation errors")
	}

	for _, want := range []string{
		"id 'Bad_Id' should be lowercase kebab-case",
		"difficulty 0 must be at least 1",
		"unknown rarity 'mythic'",
		"dangling AND",
		"item drop chance but no item_refs",
		"duplicate encounter id 'dupe'",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Expected error to mention %q, got:\n%v", want, err)
		}
	}
}

func TestValidateDir_RejectsUnknownFields(t *testing.T) {
	dir := t.TempDir()
	writeCatalogFile(t, dir, "eidolons", "core.json", `[{"id": "fox", "name": "Fox", "rarity": "common", "power": 9}]`)

	v := &CatalogValidator{seen: map[string]string{}}
	err := v.validateDir(dir)
	if err == nil || !strings.Contains(err.Error(), "strict JSON") {
		t.Fatalf("Expected strict decode failure, got %v", err)
	}
}
