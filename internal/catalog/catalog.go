// Package catalog loads the read-only registry of purchasable products and
// the entitlements each one grants.
package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

var ErrLoad = errors.New("catalog load failed")

// LoadError reports why a catalog source could not be loaded. It wraps ErrLoad.
type LoadError struct {
	Source string
	Reason string
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%v: %s: %s", ErrLoad, e.Source, e.Reason)
}

func (e *LoadError) Unwrap() error { return ErrLoad }

type ProductType string

const (
	AutoRenewableSubscription ProductType = "auto_renewable_subscription"
	NonConsumable             ProductType = "non_consumable"
	Consumable                ProductType = "consumable"
)

type Product struct {
	ID           string      `json:"id"`
	Type         ProductType `json:"type"`
	DisplayName  string      `json:"displayName"`
	Description  string      `json:"description"`
	Duration     *string     `json:"duration"`
	Entitlements []string    `json:"entitlements"`
}

// Grants reports whether the product carries the given entitlement.
func (p Product) Grants(entitlement string) bool {
	for _, e := range p.Entitlements {
		if e == entitlement {
			return true
		}
	}
	return false
}

// Catalog is an ordered set of products with unique identifiers. It is
// immutable once loaded and safe for concurrent use.
type Catalog struct {
	products []Product
	index    map[string]int
}

type document struct {
	Products []Product `json:"products"`
}

// Load reads and validates a catalog from a JSON file.
func Load(
	path string,
) (
	*Catalog,
	error,
) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Source: path, Reason: fmt.Sprintf("couldn't read file: %v", err)}
	}
	return parse(path, data)
}

// Parse builds a catalog from an in-memory JSON document.
func Parse(data []byte) (*Catalog, error) {
	return parse("<memory>", data)
}

func parse(
	source string,
	data []byte,
) (
	*Catalog,
	error,
) {
	if err := validateDocument(data); err != nil {
		return nil, &LoadError{Source: source, Reason: err.Error()}
	}

	doc := document{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &LoadError{Source: source, Reason: fmt.Sprintf("malformed json: %v", err)}
	}

	return New(source, doc.Products)
}

// New builds a catalog from already-decoded products. Duplicate identifiers
// are rejected.
func New(
	source string,
	products []Product,
) (
	*Catalog,
	error,
) {
	c := &Catalog{
		products: make([]Product, 0, len(products)),
		index:    make(map[string]int, len(products)),
	}
	for _, p := range products {
		p.ID = strings.TrimSpace(p.ID)
		if p.ID == "" {
			return nil, &LoadError{Source: source, Reason: "product with empty id"}
		}
		if _, exists := c.index[p.ID]; exists {
			return nil, &LoadError{Source: source, Reason: fmt.Sprintf("duplicate product id '%s'", p.ID)}
		}
		p.Entitlements = dedupe(p.Entitlements)
		c.index[p.ID] = len(c.products)
		c.products = append(c.products, p)
	}
	return c, nil
}

func (c *Catalog) Products() []Product {
	out := make([]Product, len(c.products))
	copy(out, c.products)
	return out
}

func (c *Catalog) ProductIDs() []string {
	ids := make([]string, 0, len(c.products))
	for _, p := range c.products {
		ids = append(ids, p.ID)
	}
	return ids
}

func (c *Catalog) Find(id string) (Product, bool) {
	i, ok := c.index[id]
	if !ok {
		return Product{}, false
	}
	return c.products[i], true
}

// Require is Find for callers that treat an unknown product as an error.
func (c *Catalog) Require(id string) (Product, error) {
	p, ok := c.Find(id)
	if !ok {
		return Product{}, fmt.Errorf("product not found: %s", id)
	}
	return p, nil
}

// EntitlementsFor returns the entitlements granted by a product, or an empty
// slice when the product is unknown.
func (c *Catalog) EntitlementsFor(id string) []string {
	p, ok := c.Find(id)
	if !ok {
		return []string{}
	}
	out := make([]string, len(p.Entitlements))
	copy(out, p.Entitlements)
	return out
}

func (c *Catalog) SubscriptionProducts() []Product {
	var subs []Product
	for _, p := range c.products {
		if p.Type == AutoRenewableSubscription {
			subs = append(subs, p)
		}
	}
	return subs
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
