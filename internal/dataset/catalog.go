// Package dataset provides read-only access to the fixed set of allow-listed
// CSV datasets analysed by the assistant.
package dataset

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/leapstack-labs/leapinsight/internal/config"
)

// ErrNotAllowed is returned for any dataset reference outside the allow-list.
var ErrNotAllowed = errors.New("dataset not in allow-list")

// Column documents one dataset column.
type Column struct {
	Name        string
	Type        string
	Description string
}

// Dataset is one allow-listed table.
type Dataset struct {
	Name        string
	File        string
	Description string
	Columns     []Column
	JoinKeys    []string
}

// ColumnNames returns the documented column names in order.
func (d Dataset) ColumnNames() []string {
	names := make([]string, len(d.Columns))
	for i, c := range d.Columns {
		names[i] = c.Name
	}
	return names
}

// Catalog is the fixed allow-list of datasets rooted at one directory.
type Catalog struct {
	dir      string
	datasets []Dataset
	byName   map[string]int
}

// NewCatalog builds a catalog from dataset declarations.
func NewCatalog(dir string, decls []config.DatasetConfig) (*Catalog, error) {
	c := &Catalog{dir: dir, byName: make(map[string]int, len(decls))}
	for _, d := range decls {
		if d.Name == "" || d.File == "" {
			return nil, fmt.Errorf("dataset declaration needs a name and a file")
		}
		if filepath.IsAbs(d.File) || strings.Contains(d.File, "..") {
			return nil, fmt.Errorf("dataset %q: file must be relative to the data directory", d.Name)
		}
		if _, dup := c.byName[d.Name]; dup {
			return nil, fmt.Errorf("dataset %q declared twice", d.Name)
		}
		ds := Dataset{
			Name:        d.Name,
			File:        filepath.Clean(d.File),
			Description: d.Description,
			JoinKeys:    append([]string(nil), d.JoinKeys...),
		}
		for _, col := range d.Columns {
			ds.Columns = append(ds.Columns, Column{Name: col.Name, Type: col.Type, Description: col.Description})
		}
		c.byName[d.Name] = len(c.datasets)
		c.datasets = append(c.datasets, ds)
	}
	return c, nil
}

// Dir returns the data directory.
func (c *Catalog) Dir() string { return c.dir }

// Datasets returns every declared dataset in declaration order.
func (c *Catalog) Datasets() []Dataset { return append([]Dataset(nil), c.datasets...) }

// Names returns the allow-listed names.
func (c *Catalog) Names() []string {
	names := make([]string, len(c.datasets))
	for i, d := range c.datasets {
		names[i] = d.Name
	}
	return names
}

// Lookup resolves a reference such as "processed_data", "loans.csv" or
// "./ledger.csv" to an allow-listed dataset. The check is purely lexical:
// anything carrying a directory component, a parent reference or an absolute
// path is rejected before the filesystem is consulted.
func (c *Catalog) Lookup(ref string) (Dataset, error) {
	name := normalizeRef(ref)
	if name == "" || strings.ContainsAny(name, "/\\:\x00") || strings.Contains(name, "..") {
		return Dataset{}, fmt.Errorf("%w: %q", ErrNotAllowed, ref)
	}
	if i, ok := c.byName[name]; ok {
		return c.datasets[i], nil
	}
	base := strings.TrimSuffix(strings.TrimSuffix(name, ".csv"), ".CSV")
	if i, ok := c.byName[base]; ok {
		return c.datasets[i], nil
	}
	for _, d := range c.datasets {
		if d.File == name {
			return d, nil
		}
	}
	return Dataset{}, fmt.Errorf("%w: %q", ErrNotAllowed, ref)
}

func normalizeRef(ref string) string {
	s := strings.TrimSpace(ref)
	s = strings.Trim(s, `"'`)
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "./")
	return s
}

// Path returns the absolute location of a dataset's file.
func (c *Catalog) Path(d Dataset) string {
	return filepath.Join(c.dir, d.File)
}

// Relationship is a join key shared by two datasets.
type Relationship struct {
	Key   string
	Left  string
	Right string
}

// Relationships lists join keys shared between pairs of datasets.
func (c *Catalog) Relationships() []Relationship {
	var out []Relationship
	for i, a := range c.datasets {
		for _, b := range c.datasets[i+1:] {
			for _, k := range a.JoinKeys {
				for _, bk := range b.JoinKeys {
					if k == bk {
						out = append(out, Relationship{Key: k, Left: a.Name, Right: b.Name})
					}
				}
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Describe renders schema documentation for prompt construction. It is
// documentation only; nothing enforces these types at runtime.
func (c *Catalog) Describe() string {
	var b strings.Builder
	for _, d := range c.datasets {
		fmt.Fprintf(&b, "Dataset %s (pd.read_csv('%s'))", d.Name, d.File)
		if d.Description != "" {
			fmt.Fprintf(&b, ": %s", d.Description)
		}
		b.WriteString("\n")
		for _, col := range d.Columns {
			fmt.Fprintf(&b, "  - %s [%s]", col.Name, col.Type)
			if col.Description != "" {
				fmt.Fprintf(&b, " %s", col.Description)
			}
			b.WriteString("\n")
		}
	}
	if rels := c.Relationships(); len(rels) > 0 {
		b.WriteString("Relationships:\n")
		for _, r := range rels {
			fmt.Fprintf(&b, "  - %s.%s <-> %s.%s\n", r.Left, r.Key, r.Right, r.Key)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
