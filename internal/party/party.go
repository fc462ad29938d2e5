// Package party holds the catalog of parties and the program document
// ingested for each of them.
package party

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"zweefhulp/internal/models"
)

//go:embed parties.yaml
var defaultCatalog []byte

// Entry is one party in the catalog.
type Entry struct {
	Name      string       `yaml:"name"`
	ShortName string       `yaml:"short_name"`
	Website   string       `yaml:"website"`
	Program   ProgramEntry `yaml:"program"`
}

// ProgramEntry names the program document of a party.
type ProgramEntry struct {
	FileName string `yaml:"file_name"`
	Year     int    `yaml:"year"`
}

// Party converts the entry to a storage model without an id.
func (e Entry) Party() models.Party {
	return models.Party{Name: e.Name, ShortName: e.ShortName, Website: e.Website}
}

// Catalog is an immutable, name-ordered list of parties.
type Catalog struct {
	entries []Entry
}

type catalogFile struct {
	Parties []Entry `yaml:"parties"`
}

// Default returns the built-in catalog.
func Default() *Catalog {
	c, err := Parse(bytes.NewReader(defaultCatalog))
	if err != nil {
		panic(fmt.Sprintf("party: built-in catalog: %v", err))
	}
	return c
}

// Load reads a catalog from a YAML file. An empty path returns Default.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open party catalog: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse decodes and validates a catalog. Names and program file names must
// be unique; entries are sorted by name.
func Parse(r io.Reader) (*Catalog, error) {
	var file catalogFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("decode party catalog: %w", err)
	}

	names := make(map[string]bool, len(file.Parties))
	files := make(map[string]bool, len(file.Parties))
	for i, e := range file.Parties {
		if e.Name == "" {
			return nil, fmt.Errorf("party %d: name is required", i+1)
		}
		if names[e.Name] {
			return nil, fmt.Errorf("party %s: duplicate name", e.Name)
		}
		names[e.Name] = true
		if e.Program.FileName != "" {
			if files[e.Program.FileName] {
				return nil, fmt.Errorf("party %s: program %s listed twice", e.Name, e.Program.FileName)
			}
			files[e.Program.FileName] = true
		}
	}

	entries := append([]Entry(nil), file.Parties...)
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return &Catalog{entries: entries}, nil
}

// All returns the entries ordered by name.
func (c *Catalog) All() []Entry {
	return append([]Entry(nil), c.entries...)
}

// Len is the number of parties.
func (c *Catalog) Len() int { return len(c.entries) }

// ByName finds a party by name or short name, ignoring case.
func (c *Catalog) ByName(name string) (Entry, bool) {
	for _, e := range c.entries {
		if strings.EqualFold(e.Name, name) || strings.EqualFold(e.ShortName, name) {
			return e, true
		}
	}
	return Entry{}, false
}

// ByFileName finds the party whose program is stored under fileName.
func (c *Catalog) ByFileName(fileName string) (Entry, bool) {
	for _, e := range c.entries {
		if e.Program.FileName == fileName {
			return e, true
		}
	}
	return Entry{}, false
}
