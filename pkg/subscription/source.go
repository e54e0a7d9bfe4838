package subscription

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ProductSource defines how products are loaded into a Catalog.
type ProductSource interface {
	Load(ctx context.Context) (map[string]Product, error)
}

type inMemSource struct {
	products map[string]Product
}

// NewInMemSource serves a fixed product list.
func NewInMemSource(products ...Product) ProductSource {
	m := make(map[string]Product, len(products))
	for _, p := range products {
		m[p.ID] = p
	}
	return &inMemSource{products: m}
}

func (s *inMemSource) Load(context.Context) (map[string]Product, error) {
	return s.products, nil
}

type yamlSource struct {
	path string
}

// NewYAMLSource reads products from a YAML file on every Load:
//
//	products:
//	  - id: spotify-family
//	    name: Spotify Family
//	    category: music
//	    base_price_cents: 1000
//	    currency: USD
//	    purchasable: true
//	    terms:
//	      1: {discount_percent: 0}
//	      12: {discount_percent: 10}
func NewYAMLSource(path string) ProductSource {
	return &yamlSource{path: path}
}

func (s *yamlSource) Load(context.Context) (map[string]Product, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return DecodeCatalog(f)
}

type catalogFile struct {
	Products []Product `yaml:"products"`
}

// DecodeCatalog parses the YAML catalog format read by NewYAMLSource.
func DecodeCatalog(r io.Reader) (map[string]Product, error) {
	var file catalogFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	out := make(map[string]Product, len(file.Products))
	for _, p := range file.Products {
		if _, dup := out[p.ID]; dup {
			return nil, fmt.Errorf("duplicate product id %q", p.ID)
		}
		p.Currency = strings.ToUpper(p.Currency)
		out[p.ID] = p
	}
	return out, nil
}
