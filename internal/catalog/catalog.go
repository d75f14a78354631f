package catalog

import (
	"fmt"
	"os"
	"regexp"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// File is the administered list of brands and the products each one sells.
type File struct {
	Brands []Brand `yaml:"brands" validate:"dive"`
}

type Brand struct {
	Name       string    `yaml:"name" validate:"required"`
	Slug       string    `yaml:"slug" validate:"required,slug"`
	APIKeyHash string    `yaml:"api_key_hash" validate:"required,startswith=$argon2id$"`
	Products   []Product `yaml:"products" validate:"dive"`
}

// Product with a nil DefaultSeatLimit allows unlimited seats.
type Product struct {
	Name             string `yaml:"name" validate:"required"`
	Slug             string `yaml:"slug" validate:"required,slug"`
	DefaultSeatLimit *int   `yaml:"default_seat_limit" validate:"omitempty,gte=1"`
}

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("slug", func(fl validator.FieldLevel) bool {
		return slugPattern.MatchString(fl.Field().String())
	})
	return v
}

// Load reads and validates the catalog at path.
func Load(path string) (*File, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(raw)
}

// Parse decodes and validates a catalog. A file with any invalid entry is
// rejected as a whole.
func Parse(raw []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

func (f *File) Validate() error {
	if err := newValidator().Struct(f); err != nil {
		return fmt.Errorf("invalid catalog: %w", err)
	}
	brands := make(map[string]bool, len(f.Brands))
	for _, b := range f.Brands {
		if brands[b.Slug] {
			return fmt.Errorf("invalid catalog: duplicate brand slug %q", b.Slug)
		}
		brands[b.Slug] = true

		products := make(map[string]bool, len(b.Products))
		for _, p := range b.Products {
			if products[p.Slug] {
				return fmt.Errorf("invalid catalog: duplicate product slug %q in brand %q", p.Slug, b.Slug)
			}
			products[p.Slug] = true
		}
	}
	return nil
}
