package scraper

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	dataFocusIDRe = regexp.MustCompile(`job-id-(\d+)`)
	trailingIDRe  = regexp.MustCompile(`/(\d+)/?$`)
)

// ExtractListings parses the search results page and returns the listings in
// document order, deduplicated by URL. Anchors without a resolvable internal
// id are dropped; a malformed tile never fails the whole page.
func ExtractListings(html, baseURL string) ([]Listing, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse search page: %w", err)
	}

	var listings []Listing
	doc.Find("a.jobTitle-link").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		if !strings.Contains(href, "/job/") {
			return
		}
		title := strings.TrimSpace(a.Text())
		if len(title) < 3 {
			return
		}

		internalID := ""
		if focus, ok := a.Attr("data-focus-tile"); ok {
			if m := dataFocusIDRe.FindStringSubmatch(focus); m != nil {
				internalID = m[1]
			}
		}
		if internalID == "" {
			if m := trailingIDRe.FindStringSubmatch(href); m != nil {
				internalID = m[1]
			}
		}
		if internalID == "" {
			return
		}

		processID := tileValue(doc, internalID, "customfield1")
		if processID == "" {
			processID = internalID
		}
		region := tileValue(doc, internalID, "customfield2")
		postal := tileValue(doc, internalID, "zip")

		listings = append(listings, Listing{
			ProcessID:  processID,
			Title:      title,
			URL:        resolveURL(baseURL, href),
			Date:       tileValue(doc, internalID, "date"),
			Region:     region,
			PostalCode: postal,
			Location:   composeLocation(region, postal),
			InternalID: internalID,
		})
	})

	return dedupByURL(listings), nil
}

// tileValue reads one of the listing's sibling detail divs, addressed by the
// site's id template.
func tileValue(doc *goquery.Document, internalID, field string) string {
	sel := fmt.Sprintf("div#job-%s-desktop-section-%s-value", internalID, field)
	return strings.TrimSpace(doc.Find(sel).First().Text())
}

func composeLocation(region, postal string) string {
	if region == "" && postal == "" {
		return ""
	}
	return strings.Trim(fmt.Sprintf("%s - %s", region, postal), " -")
}

func resolveURL(baseURL, href string) string {
	base, err := url.Parse(baseURL)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

func dedupByURL(listings []Listing) []Listing {
	seen := make(map[string]struct{}, len(listings))
	unique := listings[:0]
	for _, l := range listings {
		if _, ok := seen[l.URL]; ok {
			continue
		}
		seen[l.URL] = struct{}{}
		unique = append(unique, l)
	}
	return unique
}
