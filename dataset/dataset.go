// Package dataset loads an industry's demo data from a directory:
//
//	schema.yaml | schema.yml | schema.json   fact and engagement definitions
//	customers.json                           the customer population
//	sections.json                            editor sections (optional)
//	audiences.json                           saved audiences (optional)
package dataset

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/liamcoop/audiences/audience"
	"github.com/liamcoop/audiences/schema"
	"github.com/liamcoop/audiences/segment"
)

const (
	CustomersFile = "customers.json"
	SectionsFile  = "sections.json"
	AudiencesFile = "audiences.json"
)

var schemaFiles = []string{"schema.yaml", "schema.yml", "schema.json"}

// Dataset is the content of one industry directory.
type Dataset struct {
	Dir       string
	Schema    *schema.Schema
	Customers []segment.Customer
	Sections  []segment.Section
	Audiences []*audience.Audience
}

// Load reads every file of dir in parallel. The schema and customers are
// required; sections and audiences default to empty.
func Load(dir string) (*Dataset, error) {
	ds := &Dataset{Dir: dir}
	var g errgroup.Group

	g.Go(func() error {
		path, err := findSchema(dir)
		if err != nil {
			return err
		}
		s, err := schema.Load(path)
		if err != nil {
			return err
		}
		ds.Schema = s
		return nil
	})

	g.Go(func() error {
		customers, err := LoadCustomers(filepath.Join(dir, CustomersFile))
		if err != nil {
			return err
		}
		ds.Customers = customers
		return nil
	})

	g.Go(func() error {
		sections, err := LoadSections(filepath.Join(dir, SectionsFile))
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		if err != nil {
			return err
		}
		ds.Sections = sections
		return nil
	})

	g.Go(func() error {
		audiences, err := LoadAudiences(filepath.Join(dir, AudiencesFile))
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		if err != nil {
			return err
		}
		ds.Audiences = audiences
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to load dataset %s: %w", dir, err)
	}
	return ds, nil
}

func findSchema(dir string) (string, error) {
	for _, name := range schemaFiles {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("no schema file in %s (tried %v)", dir, schemaFiles)
}

// LoadCustomers reads a JSON array of customers.
func LoadCustomers(path string) ([]segment.Customer, error) {
	var customers []segment.Customer
	if err := readJSON(path, &customers); err != nil {
		return nil, err
	}
	for i, c := range customers {
		if c.ID == "" {
			return nil, fmt.Errorf("%s: customer %d has no id", path, i)
		}
	}
	return customers, nil
}

// LoadSections reads a JSON array of editor sections.
func LoadSections(path string) ([]segment.Section, error) {
	var sections []segment.Section
	if err := readJSON(path, &sections); err != nil {
		return nil, err
	}
	return sections, nil
}

// LoadAudiences reads a JSON array of saved audiences. Audiences without
// a status are drafts.
func LoadAudiences(path string) ([]*audience.Audience, error) {
	var audiences []*audience.Audience
	if err := readJSON(path, &audiences); err != nil {
		return nil, err
	}
	for _, a := range audiences {
		if a.Status == "" {
			a.Status = audience.StatusDraft
		}
	}
	return audiences, nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

// Engine returns an audience engine over in-memory copies of the dataset,
// evaluating relative windows against now. Saved audiences are added
// through the engine so their sizes reflect the current population.
func (ds *Dataset) Engine(ctx context.Context, opts audience.Options, now time.Time) (*audience.Engine, error) {
	en, err := audience.NewEngine(ds.Schema,
		audience.NewInMemoryAudienceStore(),
		audience.NewInMemoryCustomerStore(ds.Customers...),
		opts,
	)
	if err != nil {
		return nil, err
	}
	en.SetClock(func() time.Time { return now })

	for _, saved := range ds.Audiences {
		a := *saved
		if err := en.AddAudience(ctx, &a); err != nil {
			return nil, fmt.Errorf("failed to add audience %s: %w", saved.ID, err)
		}
	}
	return en, nil
}
