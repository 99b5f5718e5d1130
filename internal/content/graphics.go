package content

import (
	"context"
	"fmt"
	"slices"
	"sort"
)

const graphicsPageSize = 100

// Graphics is the public portfolio listing consumed by the landing page
// and the preloader. Absent arrays decode as empty.
type Graphics struct {
	Clients      []Item `json:"clients"`
	Carousels    []Item `json:"carousels"`
	Copywriting  []Item `json:"copywriting"`
	PhotoEditing []Item `json:"photo_editing"`
}

// Items returns the slice for collection.
func (g Graphics) Items(collection Collection) []Item {
	switch collection {
	case CollectionClients:
		return g.Clients
	case CollectionCarousels:
		return g.Carousels
	case CollectionCopywriting:
		return g.Copywriting
	case CollectionPhotoEditing:
		return g.PhotoEditing
	}
	return nil
}

func (g *Graphics) set(collection Collection, items []Item) {
	switch collection {
	case CollectionClients:
		g.Clients = items
	case CollectionCarousels:
		g.Carousels = items
	case CollectionCopywriting:
		g.Copywriting = items
	case CollectionPhotoEditing:
		g.PhotoEditing = items
	}
}

// ImageURLs returns every image-bearing field in listing order.
// Duplicates are kept; callers decide how to deduplicate.
func (g Graphics) ImageURLs() []string {
	var out []string
	for _, collection := range Collections() {
		for _, item := range g.Items(collection) {
			out = append(out, item.ImageURLs()...)
		}
	}
	return out
}

// Normalized fills nil collections with empty slices so the listing
// always encodes every key as an array. The receiver's slices are left
// untouched.
func (g Graphics) Normalized() Graphics {
	for _, collection := range Collections() {
		items := slices.Clone(g.Items(collection))
		if items == nil {
			items = []Item{}
		}
		for i := range items {
			items[i].Collection = collection
		}
		g.set(collection, items)
	}
	return g
}

// LoadGraphics reads every collection from store, ordered by position.
func LoadGraphics(ctx context.Context, store Store) (Graphics, error) {
	var g Graphics
	for _, collection := range Collections() {
		items, err := listAll(ctx, store, collection)
		if err != nil {
			return Graphics{}, fmt.Errorf("load %s: %w", collection, err)
		}
		g.set(collection, items)
	}
	return g.Normalized(), nil
}

func listAll(ctx context.Context, store Store, collection Collection) ([]Item, error) {
	items := []Item{}
	token := ""
	for {
		page, err := store.List(ctx, collection, graphicsPageSize, token)
		if err != nil {
			return nil, err
		}
		items = append(items, page.Items...)
		if page.NextPageToken == "" {
			break
		}
		token = page.NextPageToken
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Position < items[j].Position
	})
	return items, nil
}
