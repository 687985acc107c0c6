package tenants

import (
	"sort"
	"strings"
	"sync"

	"github.com/MrSnakeDoc/onionroute/internal/domain"
)

// DefaultSearchLimit caps Search results.
const DefaultSearchLimit = 10

// Match is one search hit, ready for the admin picker.
type Match struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Directory is an in-memory, swappable view of the tenant list.
type Directory struct {
	mu       sync.RWMutex
	byID     map[int64]Tenant
	byDomain map[string][]Tenant // longest path first
	ordered  []Tenant            // by ID
}

// NewDirectory creates a directory holding tenants
func NewDirectory(tenants []Tenant) *Directory {
	d := &Directory{}
	d.Replace(tenants)
	return d
}

// Replace swaps the whole tenant list
func (d *Directory) Replace(tenants []Tenant) {
	byID := make(map[int64]Tenant, len(tenants))
	byDomain := make(map[string][]Tenant)
	ordered := make([]Tenant, 0, len(tenants))

	for _, t := range tenants {
		byID[t.ID] = t
		byDomain[t.Domain] = append(byDomain[t.Domain], t)
		ordered = append(ordered, t)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })
	for _, list := range byDomain {
		sort.SliceStable(list, func(i, j int) bool { return len(list[i].path()) > len(list[j].path()) })
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.byID = byID
	d.byDomain = byDomain
	d.ordered = ordered
}

// Len returns the number of tenants
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.ordered)
}

// Get returns a tenant by ID
func (d *Directory) Get(id int64) (Tenant, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	t, ok := d.byID[id]
	return t, ok
}

// Resolve finds the tenant serving host and path. Tenants sharing a domain
// are told apart by the longest matching path prefix.
func (d *Directory) Resolve(host, path string) (Tenant, bool) {
	host = domain.NormalizeHost(host)
	if path == "" {
		path = "/"
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, t := range d.byDomain[host] {
		if strings.HasPrefix(path, t.path()) {
			return t, true
		}
	}
	return Tenant{}, false
}

// Search returns tenants whose name, domain or path contains query
// (case-insensitive), ordered by ID. limit <= 0 means DefaultSearchLimit.
func (d *Directory) Search(query string, limit int) []Match {
	if limit <= 0 || limit > DefaultSearchLimit {
		limit = DefaultSearchLimit
	}
	q := strings.ToLower(strings.TrimSpace(query))

	d.mu.RLock()
	defer d.mu.RUnlock()

	matches := make([]Match, 0, limit)
	for _, t := range d.ordered {
		if len(matches) == limit {
			break
		}
		if q == "" || strings.Contains(strings.ToLower(t.Name), q) || strings.Contains(t.Domain+t.path(), q) {
			matches = append(matches, Match{ID: t.ID, Name: t.DisplayName()})
		}
	}
	return matches
}
