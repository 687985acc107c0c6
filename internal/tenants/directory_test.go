package tenants

import (
	"fmt"
	"testing"
)

func fixture() *Directory {
	return NewDirectory([]Tenant{
		{ID: 5, Name: "Recipes", Domain: "example.com", Path: "/recipes/"},
		{ID: 1, Name: "Main Blog", Domain: "example.com"},
		{ID: 7, Name: "Photos", Domain: "photos.example.org"},
	})
}

func TestDirectoryResolve(t *testing.T) {
	d := fixture()

	tests := []struct {
		host, path string
		wantID     int64
		wantOK     bool
	}{
		{"example.com", "/", 1, true},
		{"EXAMPLE.com:443", "/recipes/pie", 5, true},
		{"example.com", "/recipesx", 1, true},
		{"photos.example.org", "", 7, true},
		{"unknown.net", "/", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.host+tt.path, func(t *testing.T) {
			got, ok := d.Resolve(tt.host, tt.path)
			if ok != tt.wantOK || got.ID != tt.wantID {
				t.Errorf("Resolve(%q, %q) = (%d, %v), want (%d, %v)", tt.host, tt.path, got.ID, ok, tt.wantID, tt.wantOK)
			}
		})
	}
}

func TestDirectorySearch(t *testing.T) {
	d := fixture()

	got := d.Search("BLOG", 0)
	if len(got) != 1 || got[0].ID != 1 || got[0].Name != "Main Blog (example.com/)" {
		t.Errorf("Search(BLOG) = %+v", got)
	}

	got = d.Search("recipes", 0)
	if len(got) != 1 || got[0].Name != "Recipes (example.com/recipes/)" {
		t.Errorf("Search(recipes) = %+v", got)
	}

	got = d.Search("example", 0)
	if len(got) != 3 || got[0].ID != 1 || got[1].ID != 5 || got[2].ID != 7 {
		t.Errorf("Search(example) not ordered by id: %+v", got)
	}
}

func TestDirectorySearchLimit(t *testing.T) {
	var many []Tenant
	for i := 1; i <= 25; i++ {
		many = append(many, Tenant{ID: int64(i), Name: fmt.Sprintf("Site %d", i), Domain: fmt.Sprintf("s%d.example.com", i)})
	}
	d := NewDirectory(many)

	if got := d.Search("site", 0); len(got) != DefaultSearchLimit {
		t.Errorf("Search default limit = %d, want %d", len(got), DefaultSearchLimit)
	}
	if got := d.Search("site", 50); len(got) != DefaultSearchLimit {
		t.Errorf("Search limit is capped, got %d", len(got))
	}
	if got := d.Search("site", 3); len(got) != 3 {
		t.Errorf("Search(limit=3) = %d", len(got))
	}
}

func TestDirectoryReplace(t *testing.T) {
	d := fixture()
	d.Replace([]Tenant{{ID: 9, Name: "New", Domain: "new.example"}})

	if d.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", d.Len())
	}
	if _, ok := d.Get(1); ok {
		t.Error("old tenant still present after Replace")
	}
	if _, ok := d.Get(9); !ok {
		t.Error("new tenant missing after Replace")
	}
}
