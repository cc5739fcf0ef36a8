package iap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ProductList is the configured set of product identifiers grouped by kind.
// Products optionally carries full definitions, which NewStaticCatalog can serve.
type ProductList struct {
	Consumables    []string  `yaml:"consumable"`
	NonConsumables []string  `yaml:"non_consumable"`
	AutoRenewables []string  `yaml:"auto_renewable"`
	NonRenewables  []string  `yaml:"non_renewable"`
	Products       []Product `yaml:"products"`
}

// ProductListSource defines how the product list is loaded into the service.
type ProductListSource interface {
	Load(ctx context.Context) (ProductList, error)
}

// Kinds maps every configured product ID to its kind.
func (l ProductList) Kinds() map[string]ProductKind {
	kinds := make(map[string]ProductKind)
	add := func(ids []string, k ProductKind) {
		for _, id := range ids {
			kinds[id] = k
		}
	}
	add(l.Consumables, KindConsumable)
	add(l.NonConsumables, KindNonConsumable)
	add(l.AutoRenewables, KindAutoRenewable)
	add(l.NonRenewables, KindNonRenewable)
	return kinds
}

// IDs returns all configured product IDs in sorted order.
func (l ProductList) IDs() []string {
	ids := slices.Concat(l.Consumables, l.NonConsumables, l.AutoRenewables, l.NonRenewables)
	slices.Sort(ids)
	return ids
}

// Validate rejects empty or duplicate IDs and inline definitions that
// contradict the grouped lists.
func (l ProductList) Validate() error {
	seen := make(map[string]struct{})
	for _, id := range slices.Concat(l.Consumables, l.NonConsumables, l.AutoRenewables, l.NonRenewables) {
		if id == "" {
			return errors.Join(ErrInvalidProductList, errors.New("empty product ID"))
		}
		if _, dup := seen[id]; dup {
			return errors.Join(ErrInvalidProductList, fmt.Errorf("product %s listed more than once", id))
		}
		seen[id] = struct{}{}
	}
	if len(seen) == 0 {
		return errors.Join(ErrInvalidProductList, errors.New("no products configured"))
	}

	kinds := l.Kinds()
	for _, p := range l.Products {
		kind, ok := kinds[p.ID]
		if !ok {
			return errors.Join(ErrInvalidProductList, fmt.Errorf("product %s is defined but not listed", p.ID))
		}
		if p.Kind != 0 && p.Kind != kind {
			return errors.Join(ErrInvalidProductList,
				fmt.Errorf("product %s is defined as %s but listed as %s", p.ID, p.Kind, kind))
		}
		if kind == KindAutoRenewable && (p.Subscription == nil || p.Subscription.GroupID == "") {
			return errors.Join(ErrInvalidProductList, fmt.Errorf("auto-renewable product %s has no subscription group", p.ID))
		}
	}
	return nil
}

func (l ProductList) clone() ProductList {
	products := make([]Product, len(l.Products))
	for i, p := range l.Products {
		if p.Subscription != nil {
			sub := *p.Subscription
			p.Subscription = &sub
		}
		products[i] = p
	}
	return ProductList{
		Consumables:    slices.Clone(l.Consumables),
		NonConsumables: slices.Clone(l.NonConsumables),
		AutoRenewables: slices.Clone(l.AutoRenewables),
		NonRenewables:  slices.Clone(l.NonRenewables),
		Products:       products,
	}
}

type inMemSource struct {
	list ProductList
}

// NewInMemSource returns a source serving a deep copy of list.
func NewInMemSource(list ProductList) ProductListSource {
	return &inMemSource{list: list.clone()}
}

func (s *inMemSource) Load(context.Context) (ProductList, error) {
	return s.list.clone(), nil
}

type yamlSource struct {
	path string
}

// NewYAMLSource reads the product list from a YAML file on every Load:
//
//	non_consumable: [com.example.lifetime]
//	auto_renewable: [com.example.gold, com.example.silver]
//	products:
//	  - id: com.example.gold
//	    display_name: Gold
//	    price_id: pri_01gold
//	    subscription: {group: vip, level: 1}
func NewYAMLSource(path string) ProductListSource {
	return &yamlSource{path: path}
}

func (s *yamlSource) Load(ctx context.Context) (ProductList, error) {
	if err := ctx.Err(); err != nil {
		return ProductList{}, err
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return ProductList{}, err
	}
	return ParseProductList(data)
}

// ParseProductList decodes a YAML product list. Inline products without a
// kind inherit the kind of the list they appear in.
func ParseProductList(data []byte) (ProductList, error) {
	var list ProductList
	if err := yaml.Unmarshal(data, &list); err != nil {
		return ProductList{}, errors.Join(ErrInvalidProductList, err)
	}
	kinds := list.Kinds()
	for i := range list.Products {
		if list.Products[i].Kind == 0 {
			list.Products[i].Kind = kinds[list.Products[i].ID]
		}
	}
	return list, nil
}

type staticCatalog struct {
	products map[string]Product
}

// NewStaticCatalog serves fixed product definitions. IDs without a
// definition are omitted from results.
func NewStaticCatalog(products ...Product) Catalog {
	m := make(map[string]Product, len(products))
	for _, p := range products {
		m[p.ID] = p
	}
	return &staticCatalog{products: m}
}

func (c *staticCatalog) Products(ctx context.Context, ids []string) ([]Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := c.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}
