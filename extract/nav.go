package extract

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// Menu is a top-level navigation heading with its sub-categories.
type Menu struct {
	Title      string
	Slug       string
	Categories []MenuEntry
}

// MenuEntry is one category link under a navigation heading.
type MenuEntry struct {
	Title string
	Slug  string
}

// Navigation extracts the site menu tree from the home page.
// Items missing a title or href are skipped; an empty page yields an
// empty slice, not an error.
func (s *Strategy) Navigation(pageHTML []byte) ([]Menu, error) {
	doc, err := html.Parse(strings.NewReader(string(pageHTML)))
	if err != nil {
		return nil, fmt.Errorf("extract: parse navigation: %w", err)
	}

	var menus []Menu
	for _, item := range querySelectorAll(doc, s.sel.NavItem) {
		links := querySelectorAll(item, s.sel.NavLink)
		if len(links) == 0 {
			continue
		}
		title := collectText(links[0])
		slug := getAttr(links[0], "href")
		if title == "" || slug == "" {
			continue
		}

		menu := Menu{Title: title, Slug: slug}
		for _, sub := range querySelectorAll(item, s.sel.NavSubLink) {
			subTitle := collectText(sub)
			subSlug := getAttr(sub, "href")
			if subTitle == "" || subSlug == "" {
				continue
			}
			menu.Categories = append(menu.Categories, MenuEntry{Title: subTitle, Slug: subSlug})
		}
		menus = append(menus, menu)
	}
	return menus, nil
}
