package programs

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/GriffinCanCode/AgentOS/exokernel/internal/abi"
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/infrastructure/config"
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/kernel"
)

// ErrUnknownProgram is returned for a name nothing is registered under.
var ErrUnknownProgram = errors.New("unknown program")

// Category groups programs in listings.
type Category string

const (
	CategoryDemo  Category = "demo"
	CategoryTest  Category = "test"
	CategoryFault Category = "fault"
)

// Program is a user program the kernel can boot.
type Program struct {
	Name        string
	Description string
	Category    Category
	Entry       kernel.Routine
}

// Registry is a catalog of bootable programs.
type Registry struct {
	programs sync.Map
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{}
}

// Default returns a registry holding every built-in program.
func Default() *Registry {
	r := NewRegistry()
	for _, p := range builtins() {
		if err := r.Register(p); err != nil {
			panic(err)
		}
	}
	return r
}

// Register adds a program, replacing one of the same name
func (r *Registry) Register(p Program) error {
	if p.Name == "" {
		return fmt.Errorf("program name cannot be empty")
	}
	if p.Entry == nil {
		return fmt.Errorf("program %s has no entry point", p.Name)
	}

	r.programs.Store(p.Name, p)
	return nil
}

// Unregister removes a program
func (r *Registry) Unregister(name string) {
	r.programs.Delete(name)
}

// Get retrieves a program by name
func (r *Registry) Get(name string) (Program, bool) {
	val, ok := r.programs.Load(name)
	if !ok {
		return Program{}, false
	}
	return val.(Program), true
}

// List returns the registered programs sorted by name, optionally only
// those in category.
func (r *Registry) List(category *Category) []Program {
	var out []Program
	r.programs.Range(func(_, value any) bool {
		p := value.(Program)
		if category == nil || p.Category == *category {
			out = append(out, p)
		}
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Discover ranks programs against a free-text query.
func (r *Registry) Discover(query string, limit int) []Program {
	type scored struct {
		program Program
		score   float64
	}

	q := strings.ToLower(query)
	var results []scored

	r.programs.Range(func(_, value any) bool {
		p := value.(Program)
		if s := relevance(q, p); s > 0 {
			results = append(results, scored{program: p, score: s})
		}
		return true
	})

	sort.Slice(results, func(i, j int) bool {
		if results[i].score != results[j].score {
			return results[i].score > results[j].score
		}
		return results[i].program.Name < results[j].program.Name
	})

	out := make([]Program, 0, limit)
	for i := 0; i < len(results) && i < limit; i++ {
		out = append(out, results[i].program)
	}
	return out
}

func relevance(query string, p Program) float64 {
	score := 0.0
	if strings.Contains(query, p.Name) {
		score += 10.0
	}
	for _, word := range strings.Fields(strings.ToLower(p.Description)) {
		if len(word) > 3 && strings.Contains(query, word) {
			score += 5.0
		}
	}
	if strings.Contains(query, string(p.Category)) {
		score += 2.0
	}
	return score
}

// Stats returns registry statistics
func (r *Registry) Stats() map[string]any {
	total := 0
	categories := make(map[string]int)
	r.programs.Range(func(_, value any) bool {
		total++
		categories[string(value.(Program).Category)]++
		return true
	})
	return map[string]any{
		"total_programs": total,
		"categories":     categories,
	}
}

// Resolve expands a manifest name into programs: a glob yields every
// match in name order, anything else the program of that name.
func (r *Registry) Resolve(name string) ([]Program, error) {
	if !strings.ContainsAny(name, "*?[{") {
		p, ok := r.Get(name)
		if !ok {
			return nil, fmt.Errorf("boot %q: %w", name, ErrUnknownProgram)
		}
		return []Program{p}, nil
	}
	if !doublestar.ValidatePattern(name) {
		return nil, fmt.Errorf("boot %q: %w", name, doublestar.ErrBadPattern)
	}
	var out []Program
	for _, p := range r.List(nil) {
		if ok, _ := doublestar.Match(name, p.Name); ok {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("boot %q: %w", name, ErrUnknownProgram)
	}
	return out, nil
}

// Boot spawns every instance a manifest asks for, in order. Nothing is
// spawned if a name resolves to no program.
func (r *Registry) Boot(k *kernel.Kernel, m *config.Manifest) ([]abi.EnvID, error) {
	progs := make([][]Program, len(m.Programs))
	for i, entry := range m.Programs {
		ps, err := r.Resolve(entry.Name)
		if err != nil {
			return nil, err
		}
		progs[i] = ps
	}

	var ids []abi.EnvID
	for i, entry := range m.Programs {
		for _, p := range progs[i] {
			for range entry.Instances() {
				id, err := k.Spawn(p.Entry, p.Name)
				if err != nil {
					return ids, fmt.Errorf("boot %q: %w", p.Name, err)
				}
				ids = append(ids, id)
			}
		}
	}
	return ids, nil
}
