package content

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Bank holds the roles of every loaded pack, keyed by role id.
type Bank struct {
	mu      sync.RWMutex
	packs   []*Pack
	roles   map[string]*Role
	sources []string
}

// NewBank creates an empty Bank.
func NewBank() *Bank {
	return &Bank{roles: make(map[string]*Role)}
}

// ParsePack decodes a pack. YAML input is converted to its JSON
// form first so both formats share one validator decoder.
func ParsePack(data []byte, format string) (*Pack, error) {
	switch format {
	case "json":
	case "yaml", "yml":
		var doc any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
		converted, err := json.Marshal(doc)
		if err != nil {
			return nil, err
		}
		data = converted
	default:
		return nil, fmt.Errorf("unsupported pack format %q", format)
	}

	var pack Pack
	if err := json.Unmarshal(data, &pack); err != nil {
		return nil, err
	}
	return &pack, nil
}

// LoadFile loads one .json, .yaml or .yml pack file.
func (b *Bank) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read pack file %s: %w", path, err)
	}

	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	pack, err := ParsePack(data, format)
	if err != nil {
		return fmt.Errorf("parse pack file %s: %w", path, err)
	}
	return b.add(pack, path)
}

// Add registers an already decoded pack under a source label.
func (b *Bank) Add(pack *Pack, source string) error {
	return b.add(pack, source)
}

func (b *Bank) add(pack *Pack, source string) error {
	for i := range pack.Roles {
		if pack.Roles[i].ID == "" {
			return fmt.Errorf(
				"role at index %d in %s has no id", i, source,
			)
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for i := range pack.Roles {
		role := &pack.Roles[i]
		if role.PhasesPerRun == 0 {
			role.PhasesPerRun = pack.Meta.PhasesPerRun
		}
		b.roles[role.ID] = role
	}
	b.packs = append(b.packs, pack)
	b.sources = append(b.sources, source)
	return nil
}

// LoadDir loads every pack file in dir.
func (b *Bank) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read pack directory %s: %w", dir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".json", ".yaml", ".yml":
		default:
			continue
		}
		if err := b.LoadFile(filepath.Join(dir, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}

// Load loads path as a directory or a single file.
func (b *Bank) Load(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat pack path %s: %w", path, err)
	}
	if info.IsDir() {
		return b.LoadDir(path)
	}
	return b.LoadFile(path)
}

// Role retrieves a role by id.
func (b *Bank) Role(id string) (*Role, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	role, ok := b.roles[id]
	return role, ok
}

// Roles returns all loaded roles sorted by id.
func (b *Bank) Roles() []*Role {
	b.mu.RLock()
	defer b.mu.RUnlock()
	result := make([]*Role, 0, len(b.roles))
	for _, role := range b.roles {
		result = append(result, role)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})
	return result
}

// Packs returns the loaded packs in load order.
func (b *Bank) Packs() []*Pack {
	b.mu.RLock()
	defer b.mu.RUnlock()
	result := make([]*Pack, len(b.packs))
	copy(result, b.packs)
	return result
}

// Count returns the number of loaded roles.
func (b *Bank) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.roles)
}

// Sources returns the list of loaded file paths.
func (b *Bank) Sources() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	result := make([]string, len(b.sources))
	copy(result, b.sources)
	return result
}
