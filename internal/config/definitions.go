package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"commander/internal/domain"
)

// ErrNotFound is returned when no definition file exists for a name.
var ErrNotFound = errors.New("definition not found")

var definitionExts = []string{".yaml", ".yml", ".json"}

// DefinitionStore reads basket and strategy definitions from two directories.
// Files are read on every call, so edits take effect without a restart.
// Both YAML and JSON files are accepted.
type DefinitionStore struct {
	basketDir   string
	strategyDir string
}

// NewDefinitionStore returns a store over the given directories.
func NewDefinitionStore(basketDir, strategyDir string) *DefinitionStore {
	return &DefinitionStore{basketDir: basketDir, strategyDir: strategyDir}
}

// Basket loads the basket called name. The returned basket is not validated;
// callers check Validate before trading it.
func (s *DefinitionStore) Basket(name string) (*domain.Basket, error) {
	var b domain.Basket
	if err := readDefinition(s.basketDir, name, &b); err != nil {
		return nil, fmt.Errorf("basket %s: %w", name, err)
	}
	if b.Name == "" {
		b.Name = name
	}
	for i := range b.Legs {
		b.Legs[i].Symbol = strings.ToUpper(strings.TrimPrefix(b.Legs[i].Symbol, "."))
	}
	return &b, nil
}

// Baskets loads every basket, sorted by name. Files that fail to parse are
// returned in the error map instead.
func (s *DefinitionStore) Baskets() ([]*domain.Basket, map[string]error) {
	var out []*domain.Basket
	bad := make(map[string]error)
	for _, name := range listDefinitions(s.basketDir) {
		b, err := s.Basket(name)
		if err != nil {
			bad[name] = err
			continue
		}
		out = append(out, b)
	}
	return out, bad
}

// Strategy loads the strategy called name.
func (s *DefinitionStore) Strategy(name string) (*domain.Strategy, error) {
	var st domain.Strategy
	if err := readDefinition(s.strategyDir, name, &st); err != nil {
		return nil, fmt.Errorf("strategy %s: %w", name, err)
	}
	if st.Name == "" {
		st.Name = name
	}
	for i, sym := range st.Universe {
		st.Universe[i] = strings.ToUpper(strings.TrimPrefix(strings.TrimSpace(sym), "."))
	}
	return &st, nil
}

// Strategies lists the available strategy names.
func (s *DefinitionStore) Strategies() []string {
	return listDefinitions(s.strategyDir)
}

func readDefinition(dir, name string, out any) error {
	if name == "" || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return ErrNotFound
	}
	for _, ext := range definitionExts {
		data, err := os.ReadFile(filepath.Join(dir, name+ext))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return err
		}
		if err := yaml.Unmarshal(data, out); err != nil {
			return fmt.Errorf("parsing %s%s: %w", name, ext, err)
		}
		return nil
	}
	return ErrNotFound
}

func listDefinitions(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	seen := make(map[string]bool)
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		for _, want := range definitionExts {
			if ext != want {
				continue
			}
			name := strings.TrimSuffix(e.Name(), ext)
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	sort.Strings(names)
	return names
}
