package template

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/vinayprograms/zjj/internal/zerr"
)

func TestSaveGetRoundTrip(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "templates"))

	meta, err := s.Save("three-pane", "layout { pane; pane; pane; }", "a three pane dev layout")
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if meta.CreatedAt.IsZero() || meta.UpdatedAt.IsZero() {
		t.Fatalf("expected timestamps to be set")
	}

	got, err := s.Get("three-pane")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Layout != "layout { pane; pane; pane; }" {
		t.Fatalf("unexpected layout: %q", got.Layout)
	}
	if got.Metadata.Description != "a three pane dev layout" {
		t.Fatalf("unexpected description: %q", got.Metadata.Description)
	}
}

func TestSavePreservesCreatedAtAcrossUpdates(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "templates"))

	first, err := s.Save("dev", "layout {}", "")
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	second, err := s.Save("dev", "layout { pane; }", "updated")
	if err != nil {
		t.Fatalf("save again: %v", err)
	}
	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Fatalf("expected created_at to be preserved across updates: %v != %v", second.CreatedAt, first.CreatedAt)
	}
}

func TestSaveRejectsOversizedLayout(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "templates"))
	huge := strings.Repeat("x", MaxContentBytes+1)
	if _, err := s.Save("too-big", huge, ""); err == nil {
		t.Fatalf("expected an oversized layout to be rejected")
	}
}

func TestGetMissingTemplateIsNotFound(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "templates"))
	_, err := s.Get("nope")
	if !zerr.Is(err, zerr.NotFound) {
		t.Fatalf("expected a NotFound error, got %v", err)
	}
}

func TestListSortsByName(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "templates"))
	for _, name := range []string{"zulu", "alpha", "mike"} {
		if _, err := s.Save(name, "layout {}", ""); err != nil {
			t.Fatalf("save %s: %v", name, err)
		}
	}
	list, err := s.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 3 || list[0].Name != "alpha" || list[1].Name != "mike" || list[2].Name != "zulu" {
		t.Fatalf("unexpected order: %+v", list)
	}
}

func TestDeleteRemovesTemplate(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "templates"))
	if _, err := s.Save("gone-soon", "layout {}", ""); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.Delete("gone-soon"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Get("gone-soon"); !zerr.Is(err, zerr.NotFound) {
		t.Fatalf("expected NotFound after delete, got %v", err)
	}
}
