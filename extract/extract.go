// Package extract turns fetched page HTML into product records and patches.
//
// Everything here is a pure function of the document bytes plus an explicit
// Context: no browser handle, no captured state. The crawl engine decides
// what to fetch; this package only decides what a page means.
package extract

import (
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/html"

	"github.com/shelfmark/shelfmark/idgen"
)

// RawRecord is a full candidate product extracted from a listing page.
// SourceID is the natural key; repeated sightings of the same SourceID
// are merged downstream, not here.
type RawRecord struct {
	SourceID  string
	Title     string
	Price     string
	Image     string
	Category  string
	SourceURL string
}

// RawPatch is a partial field update keyed by the product page URL.
type RawPatch struct {
	SourceURL   string
	Description string
}

// Selectors configures the site-specific extraction strategy.
type Selectors struct {
	// ProductLink matches listing anchors carrying product data attributes.
	ProductLink string
	// DetailPanel matches the description container on a product page.
	DetailPanel string
	// NavItem / NavLink / NavSubLink match the site navigation menu.
	NavItem    string
	NavLink    string
	NavSubLink string
}

// DefaultSelectors are the World of Books selectors.
func DefaultSelectors() Selectors {
	return Selectors{
		ProductLink: "a[data-item_name]",
		DetailPanel: ".panel",
		NavItem:     ".site-nav__item",
		NavLink:     ".site-nav__link",
		NavSubLink:  ".site-nav__dropdown-link",
	}
}

func (s *Selectors) defaults() {
	d := DefaultSelectors()
	if s.ProductLink == "" {
		s.ProductLink = d.ProductLink
	}
	if s.DetailPanel == "" {
		s.DetailPanel = d.DetailPanel
	}
	if s.NavItem == "" {
		s.NavItem = d.NavItem
	}
	if s.NavLink == "" {
		s.NavLink = d.NavLink
	}
	if s.NavSubLink == "" {
		s.NavSubLink = d.NavSubLink
	}
}

// Context carries per-run extraction parameters, passed explicitly so the
// strategy holds no mutable state between pages.
type Context struct {
	// Category is stamped onto every record of the run.
	Category string
	// FallbackImage substitutes for records with no derivable image URL.
	FallbackImage string
}

// Strategy extracts records, patches, and links from page HTML.
type Strategy struct {
	sel       Selectors
	imageBase string
	newID     func() string
}

// Option configures a Strategy.
type Option func(*Strategy)

// WithImageBase sets the base URL for ISBN-derived cover images.
func WithImageBase(base string) Option {
	return func(s *Strategy) { s.imageBase = base }
}

// WithIDGenerator sets the fallback sourceId generator for anchors that
// carry no item id.
func WithIDGenerator(gen func() string) Option {
	return func(s *Strategy) { s.newID = gen }
}

// New creates a Strategy. Zero-value Selectors fields fall back to the
// World of Books defaults.
func New(sel Selectors, opts ...Option) *Strategy {
	sel.defaults()
	s := &Strategy{
		sel:       sel,
		imageBase: "https://image-server.worldofbooks.com/images/",
		newID:     idgen.NanoID(9),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// DetailSelector returns the selector the crawler should wait for on a
// product detail page.
func (s *Strategy) DetailSelector() string {
	return s.sel.DetailPanel
}

// Listing extracts zero or more RawRecords from a listing page, plus the
// product links to enqueue. A page matching nothing is not an error: it
// yields zero records.
func (s *Strategy) Listing(pageHTML []byte, pageURL string, ectx Context) ([]RawRecord, []string, error) {
	doc, err := html.Parse(strings.NewReader(string(pageHTML)))
	if err != nil {
		return nil, nil, fmt.Errorf("extract: parse listing: %w", err)
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, nil, fmt.Errorf("extract: page url: %w", err)
	}

	anchors := querySelectorAll(doc, s.sel.ProductLink)
	records := make([]RawRecord, 0, len(anchors))
	links := make([]string, 0, len(anchors))

	for _, a := range anchors {
		href := getAttr(a, "href")

		title := getAttr(a, "data-item_name")
		if title == "" {
			title = "Unknown"
		}
		id := getAttr(a, "data-item_id")
		if id == "" {
			id = s.newID()
		}
		price := getAttr(a, "data-price")
		if price == "" {
			price = "0.00"
		}

		image := ectx.FallbackImage
		if isbn := isbnFromHref(href); isbn != "" {
			image = s.imageBase + isbn + ".jpg"
		}

		sourceURL := href
		if resolved, err := base.Parse(href); err == nil {
			sourceURL = resolved.String()
		}

		records = append(records, RawRecord{
			SourceID:  id,
			Title:     title,
			Price:     "£" + price,
			Image:     image,
			Category:  ectx.Category,
			SourceURL: sourceURL,
		})
		if href != "" {
			links = append(links, sourceURL)
		}
	}

	return records, links, nil
}

// Detail extracts a description patch from a product detail page.
// Returns nil when the panel is absent — the caller treats that as
// "nothing to patch", not an error.
func (s *Strategy) Detail(pageHTML []byte, pageURL string) (*RawPatch, error) {
	doc, err := html.Parse(strings.NewReader(string(pageHTML)))
	if err != nil {
		return nil, fmt.Errorf("extract: parse detail: %w", err)
	}

	panels := querySelectorAll(doc, s.sel.DetailPanel)
	if len(panels) == 0 {
		return nil, nil
	}

	desc := describePanel(panels[0])
	if desc == "" {
		return nil, nil
	}

	return &RawPatch{SourceURL: pageURL, Description: desc}, nil
}

// isbnFromHref derives the ISBN from the trailing dash-segment of a
// product href, e.g. "/products/dune-frank-herbert-9780450011849".
func isbnFromHref(href string) string {
	if href == "" {
		return ""
	}
	// Strip query/fragment before splitting.
	if i := strings.IndexAny(href, "?#"); i >= 0 {
		href = href[:i]
	}
	// Only the final path segment carries the slug.
	if i := strings.LastIndexByte(href, '/'); i >= 0 {
		href = href[i+1:]
	}
	i := strings.LastIndexByte(href, '-')
	if i < 0 || i == len(href)-1 {
		return ""
	}
	return href[i+1:]
}
