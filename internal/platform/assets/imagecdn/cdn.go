// Package imagecdn resolves portfolio asset identifiers into delivery URLs
// for the image CDN configured for the studio site.
package imagecdn

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// ErrAssetIDRequired reports a request without an asset identifier.
var ErrAssetIDRequired = errors.New("asset id is required")

// Crop selects a source rectangle in pixels.
type Crop struct {
	X        int
	Y        int
	WidthPX  int
	HeightPX int
}

// Delivery describes the rendered variant.
type Delivery struct {
	WidthPX int
	// Quality is a 1-100 hint; zero lets the CDN decide.
	Quality int
}

// Request identifies one asset variant.
type Request struct {
	AssetID   string
	Extension string
	Crop      *Crop
	Delivery  *Delivery
}

type flavor int

const (
	flavorFlat flavor = iota
	flavorCloudinary
	flavorRender
)

const renderPathMarker = "/render/image/"

// CDN builds asset URLs under one base URL.
type CDN struct {
	base   string
	flavor flavor
}

// New returns a CDN for base. The transform dialect is inferred from the
// base URL: Cloudinary upload paths take path transforms, backend image
// render endpoints take query transforms and anything else is served flat.
func New(base string) CDN {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	c := CDN{base: base, flavor: flavorFlat}
	switch {
	case strings.Contains(base, "res.cloudinary.com"):
		c.flavor = flavorCloudinary
	case strings.Contains(base, renderPathMarker):
		c.flavor = flavorRender
	}
	return c
}

// Configured reports whether c was built with a base URL.
func (c CDN) Configured() bool { return c.base != "" }

// URL resolves req into an absolute or root-relative URL.
func (c CDN) URL(req Request) (string, error) {
	assetID := strings.Trim(strings.TrimSpace(req.AssetID), "/")
	if assetID == "" {
		return "", ErrAssetIDRequired
	}
	ext := strings.TrimSpace(req.Extension)
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	file := assetID + ext

	switch c.flavor {
	case flavorCloudinary:
		var parts []string
		if req.Crop != nil {
			parts = append(parts, fmt.Sprintf("c_crop,w_%d,h_%d,x_%d,y_%d",
				req.Crop.WidthPX, req.Crop.HeightPX, req.Crop.X, req.Crop.Y))
		}
		if req.Delivery != nil && req.Delivery.WidthPX > 0 {
			quality := "q_auto"
			if req.Delivery.Quality > 0 {
				quality = "q_" + strconv.Itoa(req.Delivery.Quality)
			}
			parts = append(parts, fmt.Sprintf("f_auto,%s,dpr_auto,c_limit,w_%d", quality, req.Delivery.WidthPX))
		}
		parts = append(parts, file)
		return c.base + "/" + strings.Join(parts, "/"), nil
	case flavorRender:
		u := c.base + "/" + file
		if req.Delivery == nil || req.Delivery.WidthPX <= 0 {
			return u, nil
		}
		query := url.Values{}
		query.Set("width", strconv.Itoa(req.Delivery.WidthPX))
		quality := req.Delivery.Quality
		if quality <= 0 {
			quality = 75
		}
		query.Set("quality", strconv.Itoa(quality))
		return u + "?" + query.Encode(), nil
	default:
		return c.base + "/" + file, nil
	}
}

// Srcset returns a srcset attribute value with one candidate per width.
// Flat CDNs yield a single candidate since every width resolves to the
// same URL.
func (c CDN) Srcset(assetID, extension string, widths []int) (string, error) {
	var candidates []string
	seen := make(map[string]struct{}, len(widths))
	for _, width := range widths {
		u, err := c.URL(Request{AssetID: assetID, Extension: extension, Delivery: &Delivery{WidthPX: width}})
		if err != nil {
			return "", err
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		candidates = append(candidates, u+" "+strconv.Itoa(width)+"w")
	}
	return strings.Join(candidates, ", "), nil
}
