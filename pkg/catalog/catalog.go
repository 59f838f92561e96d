package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	errs "hazmate/pkg/errors"
)

// ExtraCategory is the pseudo-category holding terms declared outside any
// category block
const ExtraCategory = "extra"

// Category is one catalog entry: a marketplace category id, a human name and
// the ordered free-text query terms that approximate its coverage
type Category struct {
	ID    string   `yaml:"id"`
	Name  string   `yaml:"name"`
	Terms []string `yaml:"terms"`
}

// CategoryQuery is one (category, term) pair selected for a discovery call
type CategoryQuery struct {
	Category string
	Term     string
}

// Catalog is the static category->terms mapping driving discovery. Loaded
// once per run; never mutated afterwards.
type Catalog struct {
	categories []Category
	index      map[string]int
}

// catalogFile is the YAML layout of a catalog file
type catalogFile struct {
	Categories []Category `yaml:"categories"`
	ExtraTerms []string   `yaml:"extra_terms"`
}

// New builds a catalog from explicit categories plus optional extra terms.
// Extra terms become the pseudo-category "extra", appended last.
func New(categories []Category, extraTerms []string) (*Catalog, error) {
	cats := make([]Category, 0, len(categories)+1)
	cats = append(cats, categories...)

	if len(extraTerms) > 0 {
		cats = append(cats, Category{
			ID:    ExtraCategory,
			Name:  "Extra terms",
			Terms: extraTerms,
		})
	}

	if len(cats) == 0 {
		return nil, errs.New(errs.KindConfig, 0, "catalog has no categories")
	}

	index := make(map[string]int, len(cats))
	for i, cat := range cats {
		if cat.ID == "" {
			return nil, errs.Newf(errs.KindConfig, 0, "catalog category %d has no id", i)
		}
		if len(cat.Terms) == 0 {
			return nil, errs.Newf(errs.KindConfig, 0, "catalog category %q has no terms", cat.ID)
		}
		if _, dup := index[cat.ID]; dup {
			return nil, errs.Newf(errs.KindConfig, 0, "catalog category %q declared twice", cat.ID)
		}
		index[cat.ID] = i
	}

	return &Catalog{categories: cats, index: index}, nil
}

// Load reads a catalog from a YAML file
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Newf(errs.KindConfig, 0, "failed to read catalog file %s: %v", path, err)
	}

	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, errs.Newf(errs.KindConfig, 0, "failed to parse catalog file %s: %v", path, err)
	}

	return New(file.Categories, file.ExtraTerms)
}

// Categories returns the category ids in declaration order
func (c *Catalog) Categories() []string {
	ids := make([]string, len(c.categories))
	for i, cat := range c.categories {
		ids[i] = cat.ID
	}
	return ids
}

// Name returns the human-readable name for a category id
func (c *Catalog) Name(category string) string {
	if i, ok := c.index[category]; ok {
		return c.categories[i].Name
	}
	return ""
}

// Terms returns the ordered term list for a category. Nil for unknown ids.
func (c *Catalog) Terms(category string) []string {
	if i, ok := c.index[category]; ok {
		return c.categories[i].Terms
	}
	return nil
}

// NextUnexhausted returns the first term of the category the given predicate
// has not marked exhausted, in declaration order. Deterministic: the same
// exhaustion state always yields the same pair.
func (c *Catalog) NextUnexhausted(category string, isExhausted func(category, term string) bool) (CategoryQuery, bool) {
	i, ok := c.index[category]
	if !ok {
		return CategoryQuery{}, false
	}

	for _, term := range c.categories[i].Terms {
		if !isExhausted(category, term) {
			return CategoryQuery{Category: category, Term: term}, true
		}
	}
	return CategoryQuery{}, false
}

// Len returns the number of categories, pseudo-categories included
func (c *Catalog) Len() int {
	return len(c.categories)
}

// TermCount returns the total number of (category, term) pairs
func (c *Catalog) TermCount() int {
	n := 0
	for _, cat := range c.categories {
		n += len(cat.Terms)
	}
	return n
}

// Save writes the catalog back out as YAML, mainly for `config init`
func (c *Catalog) Save(path string) error {
	file := catalogFile{}
	for _, cat := range c.categories {
		if cat.ID == ExtraCategory {
			file.ExtraTerms = cat.Terms
			continue
		}
		file.Categories = append(file.Categories, cat)
	}

	data, err := yaml.Marshal(&file)
	if err != nil {
		return fmt.Errorf("failed to marshal catalog: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write catalog file: %w", err)
	}
	return nil
}
