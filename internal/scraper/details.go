package scraper

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	// Selector hits shorter than this are boilerplate, not a description.
	minDescriptionLen = 100
	// The stripped-main fallback needs more text to be trustworthy.
	minFallbackLen = 200
	maxFallbackLen = 3000
)

// descriptionSelectors are tried in order; the first element with substantial
// text wins. The posting pages do not use stable ids, so this cascades from
// the most specific class patterns down to generic containers.
var descriptionSelectors = []string{
	`div[class*="job-description"]`,
	`div[class*="description"]`,
	`div[class*="content"]`,
	`section[class*="job"]`,
	`article`,
	`main .content`,
	`div.job-details`,
	`.job-posting`,
	`.position-details`,
}

var mainSelectors = []string{"main", "article", `div[role="main"]`, ".main-content"}

var requirementKeywords = []string{
	"requisitos", "requirements", "perfil", "competencias", "experiencia", "conocimientos",
}

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	scheduleRe   = regexp.MustCompile(`(?i)(?:horario|jornada|turno)[:\s]+([^.]+)`)
)

// ExtractDetails pulls the description, requirements and extra hints from an
// individual posting page. All fields are best-effort; an empty Details is a
// valid outcome.
func ExtractDetails(html string) Details {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return Details{}
	}

	return Details{
		Description:  extractDescription(doc),
		Requirements: extractRequirements(doc),
		ExtraInfo:    extractExtraInfo(doc),
	}
}

func extractDescription(doc *goquery.Document) string {
	for _, selector := range descriptionSelectors {
		var found string
		doc.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			text := collapseSpace(s.Text())
			if len(text) > minDescriptionLen {
				found = text
				return false
			}
			return true
		})
		if found != "" {
			return found
		}
	}
	return fallbackDescription(doc)
}

// fallbackDescription strips chrome elements out of the main content area and
// takes whatever text is left, capped to keep rows bounded. The cap counts
// runes, not bytes, so accented text is never cut mid-character.
func fallbackDescription(doc *goquery.Document) string {
	for _, selector := range mainSelectors {
		main := doc.Find(selector).First()
		if main.Length() == 0 {
			continue
		}
		main.Find("nav, header, footer, aside, .navigation, .menu, .breadcrumb, .sidebar").Remove()
		text := collapseSpace(main.Text())
		if len(text) > minFallbackLen {
			if runes := []rune(text); len(runes) > maxFallbackLen {
				text = string(runes[:maxFallbackLen])
			}
			return text
		}
	}
	return ""
}

func extractRequirements(doc *goquery.Document) string {
	headings := doc.Find("h1, h2, h3, h4, h5, h6, strong, b")
	for _, keyword := range requirementKeywords {
		var found string
		headings.EachWithBreak(func(_ int, h *goquery.Selection) bool {
			if !strings.Contains(strings.ToLower(h.Text()), keyword) {
				return true
			}
			var parts []string
			h.NextAll().EachWithBreak(func(_ int, sib *goquery.Selection) bool {
				if len(parts) >= 5 {
					return false
				}
				text := collapseSpace(sib.Text())
				if len(text) > 10 {
					parts = append(parts, text)
				}
				return true
			})
			if len(parts) > 0 {
				found = strings.Join(parts, " ")
				return false
			}
			return true
		})
		if found != "" {
			return found
		}
	}
	return ""
}

// extractExtraInfo scans the page text for work modality keywords and
// schedule phrases. The result is informational only.
func extractExtraInfo(doc *goquery.Document) string {
	text := strings.ToLower(doc.Text())
	var info []string

	switch {
	case strings.Contains(text, "remoto") || strings.Contains(text, "teletrabajo"):
		info = append(info, "Modalidad: Remoto/Teletrabajo")
	case strings.Contains(text, "presencial"):
		info = append(info, "Modalidad: Presencial")
	case strings.Contains(text, "híbrido") || strings.Contains(text, "hibrido"):
		info = append(info, "Modalidad: Híbrido")
	}

	if m := scheduleRe.FindStringSubmatch(text); m != nil {
		info = append(info, "Horario: "+strings.TrimSpace(m[1]))
	}

	return strings.Join(info, "; ")
}

func collapseSpace(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}
