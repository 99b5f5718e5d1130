package preload

import (
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/louisbranch/portfolio.studio/internal/content"
)

// DefaultCriticalAssets are the local images the landing page cannot be
// shown without. They are preloaded regardless of the listing.
var DefaultCriticalAssets = []string{
	"/static/img/hero.png",
	"/static/img/logo.png",
	"/static/img/portrait.png",
}

// assetSet is an insertion-ordered set of absolute asset URLs.
type assetSet struct {
	seen map[string]struct{}
	urls []string
}

func newAssetSet() *assetSet {
	return &assetSet{seen: map[string]struct{}{}}
}

// add resolves raw against base and keeps it when it is a new http(s) URL.
func (s *assetSet) add(base *url.URL, raw string) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasPrefix(strings.ToLower(raw), "data:") {
		return
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return
	}
	if base != nil {
		ref = base.ResolveReference(ref)
	}
	if ref.Scheme != "http" && ref.Scheme != "https" {
		return
	}
	ref.Fragment = ""
	key := ref.String()
	if _, ok := s.seen[key]; ok {
		return
	}
	s.seen[key] = struct{}{}
	s.urls = append(s.urls, key)
}

// DocumentImages returns the image sources of an HTML document in document
// order, resolved against base and deduplicated. Inline data URIs are
// skipped since they never touch the network.
func DocumentImages(r io.Reader, base *url.URL) ([]string, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	doc := goquery.NewDocumentFromNode(root)
	if href, ok := doc.Find("base[href]").First().Attr("href"); ok && base != nil {
		if ref, err := url.Parse(strings.TrimSpace(href)); err == nil {
			base = base.ResolveReference(ref)
		}
	}
	set := newAssetSet()
	doc.Find("img").Each(func(_ int, img *goquery.Selection) {
		src, _ := img.Attr("src")
		set.add(base, src)
	})
	return set.urls, nil
}

// RemoteAssets returns every image-bearing listing field resolved against
// base and deduplicated.
func RemoteAssets(g content.Graphics, base *url.URL) []string {
	set := newAssetSet()
	for _, raw := range g.ImageURLs() {
		set.add(base, raw)
	}
	return set.urls
}

// CriticalAssets resolves paths against base and deduplicates them.
func CriticalAssets(paths []string, base *url.URL) []string {
	set := newAssetSet()
	for _, raw := range paths {
		set.add(base, raw)
	}
	return set.urls
}
