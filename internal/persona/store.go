// Package persona manages the persona library: builtin archetypes and
// personas plus user-defined ones loaded from YAML files in the library
// directory. User definitions shadow builtins by ID.
package persona

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"quorum/internal/logging"
	"quorum/internal/types"
)

// Trait weights outside this range are a load error.
const (
	minTraitWeight = 1.0
	maxTraitWeight = 2.0
)

// libraryFile is the shape of a YAML file in the library directory. A file
// may define any mix of archetypes, personas and domains.
type libraryFile struct {
	Archetypes []types.Archetype   `yaml:"archetypes"`
	Personas   []types.PersonaSpec `yaml:"personas"`
	Domains    map[string][]string `yaml:"domains"`
}

// Store holds the merged persona library. Safe for concurrent use;
// Reload swaps the maps atomically under the lock.
type Store struct {
	mu         sync.RWMutex
	dir        string
	archetypes map[string]types.Archetype
	personas   map[string]types.PersonaSpec
	domains    map[string][]string
}

// NewStore creates a store backed by the given library directory and loads
// it. An empty or missing directory leaves just the builtins.
func NewStore(dir string) (*Store, error) {
	s := &Store{dir: dir}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload re-reads the library directory, replacing the current library.
// Builtins are always present; files shadow them by ID. Any invalid file
// fails the whole reload so a half-loaded library is never observed.
func (s *Store) Reload() error {
	archetypes := make(map[string]types.Archetype)
	personas := make(map[string]types.PersonaSpec)
	domains := make(map[string][]string)

	for _, a := range builtinArchetypes {
		archetypes[a.ID] = a
	}
	for _, p := range builtinPersonas {
		personas[p.ID] = p
	}
	for d, members := range builtinDomains {
		domains[d] = members
	}

	if s.dir != "" {
		entries, err := os.ReadDir(s.dir)
		if err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to read library dir: %w", err)
		}
		for _, entry := range entries {
			name := entry.Name()
			if entry.IsDir() || (!strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml")) {
				continue
			}
			path := filepath.Join(s.dir, name)
			if err := loadFile(path, archetypes, personas, domains); err != nil {
				return fmt.Errorf("library file %s: %w", name, err)
			}
		}
	}

	// Validate after all files are merged so cross-file references work.
	for id, p := range personas {
		if err := validatePersona(p, archetypes); err != nil {
			return fmt.Errorf("persona %q: %w", id, err)
		}
	}
	for d, members := range domains {
		for _, m := range members {
			if _, ok := personas[m]; !ok {
				return fmt.Errorf("domain %q references unknown persona %q", d, m)
			}
		}
	}

	s.mu.Lock()
	s.archetypes = archetypes
	s.personas = personas
	s.domains = domains
	s.mu.Unlock()

	logging.Persona("library loaded: %d archetypes, %d personas, %d domains",
		len(archetypes), len(personas), len(domains))
	return nil
}

func loadFile(path string, archetypes map[string]types.Archetype, personas map[string]types.PersonaSpec, domains map[string][]string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var lf libraryFile
	if err := yaml.Unmarshal(data, &lf); err != nil {
		return fmt.Errorf("failed to parse: %w", err)
	}
	for _, a := range lf.Archetypes {
		if a.ID == "" {
			return fmt.Errorf("archetype with empty id")
		}
		archetypes[a.ID] = a
	}
	for _, p := range lf.Personas {
		if p.ID == "" {
			return fmt.Errorf("persona with empty id")
		}
		personas[p.ID] = p
	}
	for d, members := range lf.Domains {
		domains[d] = members
	}
	return nil
}

func validatePersona(p types.PersonaSpec, archetypes map[string]types.Archetype) error {
	if p.Prompt == "" {
		return fmt.Errorf("missing prompt")
	}
	if p.Archetype != "" {
		if _, ok := archetypes[p.Archetype]; !ok {
			return fmt.Errorf("unknown archetype %q", p.Archetype)
		}
	}
	for _, t := range p.Traits {
		if t.Weight < minTraitWeight || t.Weight > maxTraitWeight {
			return fmt.Errorf("trait %q weight %.2f outside [%.1f, %.1f]",
				t.Name, t.Weight, minTraitWeight, maxTraitWeight)
		}
	}
	if p.ReasoningMode != "" && !p.ReasoningMode.IsValid() {
		return fmt.Errorf("unknown reasoning mode %q", p.ReasoningMode)
	}
	return nil
}

// Resolve returns the persona with archetype inheritance applied: archetype
// traits merged under persona traits (persona wins on name collisions) and
// archetype provider/model/temperature used where the persona leaves them
// unset.
func (s *Store) Resolve(id string) (types.PersonaSpec, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.personas[id]
	if !ok {
		return types.PersonaSpec{}, &types.NotFoundError{Kind: "persona", ID: id}
	}
	if p.Archetype == "" {
		return p, nil
	}
	a, ok := s.archetypes[p.Archetype]
	if !ok {
		return types.PersonaSpec{}, &types.NotFoundError{Kind: "archetype", ID: p.Archetype}
	}

	merged := p
	merged.Traits = mergeTraits(a.Traits, p.Traits)
	if merged.Provider == "" {
		merged.Provider = a.Provider
	}
	if merged.Model == "" {
		merged.Model = a.Model
	}
	if merged.Temperature == 0 {
		merged.Temperature = a.Temperature
	}
	return merged, nil
}

// mergeTraits overlays overrides on base, preserving base order and
// appending new trait names in override order.
func mergeTraits(base, overrides []types.Trait) []types.Trait {
	byName := make(map[string]int, len(base))
	out := make([]types.Trait, len(base))
	copy(out, base)
	for i, t := range out {
		byName[t.Name] = i
	}
	for _, t := range overrides {
		if i, ok := byName[t.Name]; ok {
			out[i] = t
		} else {
			out = append(out, t)
		}
	}
	return out
}

// Get returns the raw (unresolved) persona.
func (s *Store) Get(id string) (types.PersonaSpec, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.personas[id]
	if !ok {
		return types.PersonaSpec{}, &types.NotFoundError{Kind: "persona", ID: id}
	}
	return p, nil
}

// List returns all persona IDs sorted.
func (s *Store) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.personas))
	for id := range s.personas {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Archetype returns an archetype by ID.
func (s *Store) Archetype(id string) (types.Archetype, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.archetypes[id]
	if !ok {
		return types.Archetype{}, &types.NotFoundError{Kind: "archetype", ID: id}
	}
	return a, nil
}

// Archetypes returns all archetype IDs sorted.
func (s *Store) Archetypes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.archetypes))
	for id := range s.archetypes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// DomainMembers returns the member panel for a domain.
func (s *Store) DomainMembers(domain string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	members, ok := s.domains[domain]
	if !ok {
		return nil, &types.NotFoundError{Kind: "domain", ID: domain}
	}
	out := make([]string, len(members))
	copy(out, members)
	return out, nil
}

// Domains returns all domain names sorted.
func (s *Store) Domains() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.domains))
	for d := range s.domains {
		names = append(names, d)
	}
	sort.Strings(names)
	return names
}
