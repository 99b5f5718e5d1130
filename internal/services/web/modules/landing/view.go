package landing

import (
	"context"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/a-h/templ"
)

type card struct {
	Title  string
	Body   string
	Src    string
	Srcset string
	Alt    string
	// Before and After are set for photo-editing comparisons.
	Before      string
	After       string
	BeforeLabel string
	AfterLabel  string
}

type section struct {
	ID      string
	Heading string
	Cards   []card
}

type page struct {
	Lang      string
	Title     string
	Tagline   string
	Loading   string
	Phrases   []string
	Ready     string
	Ceiling   time.Duration
	ExitDelay time.Duration
	AssetSoft time.Duration
	Critical  []string
	Listing   string
	Hero      string
	Logo      string
	Portrait  string
	Sections  []section
}

// htmlWriter accumulates the first write error.
type htmlWriter struct {
	w   io.Writer
	err error
}

func (h *htmlWriter) raw(s string) {
	if h.err != nil {
		return
	}
	_, h.err = io.WriteString(h.w, s)
}

func (h *htmlWriter) text(s string) { h.raw(templ.EscapeString(s)) }

func (h *htmlWriter) attr(name, value string) {
	h.raw(" " + name + `="` + templ.EscapeString(value) + `"`)
}

func (h *htmlWriter) urlAttr(name, value string) {
	h.attr(name, string(templ.URL(value)))
}

func (h *htmlWriter) img(src, srcset, alt string) {
	h.raw("<img")
	h.urlAttr("src", src)
	if srcset != "" {
		h.attr("srcset", srcset)
		h.attr("sizes", "(min-width: 1100px) 260px, 45vw")
	}
	h.attr("alt", alt)
	h.raw(` loading="eager" decoding="async">`)
}

func pageView(p page) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		phrases, err := templ.JSONString(p.Phrases)
		if err != nil {
			return err
		}
		critical, err := templ.JSONString(p.Critical)
		if err != nil {
			return err
		}
		h := &htmlWriter{w: w}
		h.raw("<!doctype html><html")
		h.attr("lang", p.Lang)
		h.raw(`><head><meta charset="utf-8"><meta name="viewport" content="width=device-width, initial-scale=1"><title>`)
		h.text(p.Title)
		h.raw(`</title><link rel="stylesheet" href="/static/site.css"><script src="/static/app.js" defer></script></head><body>`)

		h.raw(`<div id="preloader" role="progressbar" aria-valuemin="0" aria-valuemax="100"`)
		h.attr("aria-label", p.Loading)
		h.attr("data-phrases", phrases)
		h.attr("data-ready", p.Ready)
		h.attr("data-ceiling", strconv.FormatInt(p.Ceiling.Milliseconds(), 10))
		h.attr("data-exit-delay", strconv.FormatInt(p.ExitDelay.Milliseconds(), 10))
		h.attr("data-asset-timeout", strconv.FormatInt(p.AssetSoft.Milliseconds(), 10))
		h.attr("data-critical", critical)
		h.urlAttr("data-listing", p.Listing)
		h.raw(`><span class="percent">0%</span><span class="bar"><span></span></span><span class="label">`)
		if len(p.Phrases) > 0 {
			h.text(p.Phrases[0])
		}
		h.raw(`</span></div>`)

		h.raw(`<main><header>`)
		h.img(p.Logo, "", p.Title)
		h.raw(`<h1>`)
		h.text(p.Tagline)
		h.raw(`</h1>`)
		h.img(p.Hero, "", "")
		h.img(p.Portrait, "", "")
		h.raw(`</header>`)
		for _, s := range p.Sections {
			sectionView(h, s)
		}
		h.raw(`</main></body></html>`)
		return h.err
	})
}

func sectionView(h *htmlWriter, s section) {
	h.raw("<section")
	h.attr("id", s.ID)
	h.raw("><h2>")
	h.text(s.Heading)
	h.raw(`</h2><div class="grid">`)
	for _, c := range s.Cards {
		h.raw("<figure>")
		switch {
		case c.Before != "" || c.After != "":
			h.img(c.Before, "", c.BeforeLabel)
			h.img(c.After, "", c.AfterLabel)
		case c.Src != "":
			h.img(c.Src, c.Srcset, c.Alt)
		}
		if c.Title != "" || c.Body != "" {
			h.raw("<figcaption>")
			if c.Title != "" {
				h.raw("<strong>")
				h.text(c.Title)
				h.raw("</strong>")
			}
			for para := range strings.SplitSeq(c.Body, "\n\n") {
				if para = strings.TrimSpace(para); para != "" {
					h.raw("<p>")
					h.text(para)
					h.raw("</p>")
				}
			}
			h.raw("</figcaption>")
		}
		h.raw("</figure>")
	}
	h.raw("</div></section>")
}
