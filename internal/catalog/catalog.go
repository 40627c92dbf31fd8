// Package catalog reads the YAML seed file tipbox-server loads its tip
// catalog from.
//
// A seed lists categories in display order, each with its tips:
//
//	categories:
//	  - id: c_git
//	    slug: git
//	    name: Git
//	    tips:
//	      - id: git-amend
//	        title: Amend the last commit
//	        body: |
//	          git commit --amend --no-edit
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/marcus/tipbox/internal/serverdb"
)

//go:embed default.yaml
var defaultSeed []byte

// Seed is a parsed seed file.
type Seed struct {
	Categories []Category `yaml:"categories"`
}

// Category is one seeded category and its tips.
type Category struct {
	ID   string `yaml:"id"`
	Slug string `yaml:"slug"`
	Name string `yaml:"name"`
	Tips []Tip  `yaml:"tips"`
}

// Tip is one seeded tip. Body is markdown.
type Tip struct {
	ID    string `yaml:"id"`
	Title string `yaml:"title"`
	Body  string `yaml:"body"`
}

var slugPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)

// Parse decodes and validates seed YAML.
func Parse(data []byte) (*Seed, error) {
	var s Seed
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse seed: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Load reads and parses a seed file.
func Load(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed: %w", err)
	}
	return Parse(data)
}

// Default returns the seed built into the binary.
func Default() *Seed {
	s, err := Parse(defaultSeed)
	if err != nil {
		panic("built-in seed: " + err.Error())
	}
	return s
}

// Validate reports every problem in the seed, joined.
func (s *Seed) Validate() error {
	var errs []error
	catIDs := map[string]bool{}
	slugs := map[string]bool{}
	tipIDs := map[string]bool{}

	if len(s.Categories) == 0 {
		errs = append(errs, errors.New("seed has no categories"))
	}
	for i, c := range s.Categories {
		where := fmt.Sprintf("categories[%d]", i)
		switch {
		case c.ID == "":
			errs = append(errs, fmt.Errorf("%s: id is required", where))
		case catIDs[c.ID]:
			errs = append(errs, fmt.Errorf("%s: duplicate category id %q", where, c.ID))
		}
		catIDs[c.ID] = true

		switch {
		case !slugPattern.MatchString(c.Slug):
			errs = append(errs, fmt.Errorf("%s: slug %q must be lowercase letters, digits and dashes", where, c.Slug))
		case slugs[c.Slug]:
			errs = append(errs, fmt.Errorf("%s: duplicate slug %q", where, c.Slug))
		}
		slugs[c.Slug] = true

		if strings.TrimSpace(c.Name) == "" {
			errs = append(errs, fmt.Errorf("%s: name is required", where))
		}

		for j, t := range c.Tips {
			twhere := fmt.Sprintf("%s.tips[%d]", where, j)
			switch {
			case t.ID == "":
				errs = append(errs, fmt.Errorf("%s: id is required", twhere))
			case tipIDs[t.ID]:
				errs = append(errs, fmt.Errorf("%s: duplicate tip id %q", twhere, t.ID))
			}
			tipIDs[t.ID] = true
			if strings.TrimSpace(t.Title) == "" {
				errs = append(errs, fmt.Errorf("%s: title is required", twhere))
			}
		}
	}
	return errors.Join(errs...)
}

// TipCount returns the number of tips across all categories.
func (s *Seed) TipCount() int {
	n := 0
	for _, c := range s.Categories {
		n += len(c.Tips)
	}
	return n
}

// Records converts the seed to database rows. Category position follows
// file order.
func (s *Seed) Records() ([]serverdb.Category, []serverdb.Tip) {
	cats := make([]serverdb.Category, 0, len(s.Categories))
	tips := make([]serverdb.Tip, 0, s.TipCount())
	for i, c := range s.Categories {
		cats = append(cats, serverdb.Category{ID: c.ID, Slug: c.Slug, Name: c.Name, Position: i})
		for _, t := range c.Tips {
			tips = append(tips, serverdb.Tip{
				ID:         t.ID,
				CategoryID: c.ID,
				Title:      strings.TrimSpace(t.Title),
				Body:       strings.TrimRight(t.Body, "\n"),
			})
		}
	}
	return cats, tips
}

// Apply writes the seed into db.
func (s *Seed) Apply(db *serverdb.ServerDB) (serverdb.SeedResult, error) {
	cats, tips := s.Records()
	return db.SeedCatalog(cats, tips)
}
