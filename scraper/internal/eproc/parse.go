package eproc

import (
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

var (
	cnjPattern    = regexp.MustCompile(`\d{7}-\d{2}\.\d{4}\.\d\.\d{2}\.\d{4}`)
	brDatePattern = regexp.MustCompile(`\d{2}/\d{2}/\d{4}(?:\s+\d{2}:\d{2}(?::\d{2})?)?`)
	spacesPattern = regexp.MustCompile(`\s+`)
	brTimeLayouts = []string{"02/01/2006 15:04:05", "02/01/2006 15:04", "02/01/2006"}
	nbspReplacer  = strings.NewReplacer("\u00a0", " ", "\u200b", "")
)

// FindCNJ returns the first CNJ case number in text.
func FindCNJ(text string) string {
	return cnjPattern.FindString(text)
}

// ParseBRTime reads the first dd/mm/yyyy[ hh:mm[:ss]] in text as portal wall-clock time.
func ParseBRTime(text string, loc *time.Location) *time.Time {
	match := brDatePattern.FindString(text)
	if match == "" {
		return nil
	}
	match = spacesPattern.ReplaceAllString(match, " ")
	for _, layout := range brTimeLayouts {
		if t, err := time.ParseInLocation(layout, match, loc); err == nil {
			return &t
		}
	}
	return nil
}

// text returns the raw text of s with non-breaking spaces made plain.
func text(s *goquery.Selection) string {
	return nbspReplacer.Replace(s.Text())
}

// cleanText is text trimmed at both ends.
func cleanText(s *goquery.Selection) string {
	return strings.TrimSpace(text(s))
}

func collapseSpaces(s string) string {
	return strings.TrimSpace(spacesPattern.ReplaceAllString(nbspReplacer.Replace(s), " "))
}

// submatch returns capture group 1 of re in s, trimmed.
func submatch(re *regexp.Regexp, s string) string {
	m := re.FindStringSubmatch(s)
	if len(m) < 2 {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// cells returns the direct td children of a row.
func cells(row *goquery.Selection) []*goquery.Selection {
	var out []*goquery.Selection
	row.ChildrenFiltered("td").Each(func(_ int, td *goquery.Selection) {
		out = append(out, td)
	})
	return out
}

// isYellow reports whether a style or bgcolor value paints a yellow background.
func isYellow(style string) bool {
	s := strings.ToLower(strings.ReplaceAll(style, " ", ""))
	for _, marker := range []string{"yellow", "rgb(255,255,0", "rgb(255,255,1", "rgb(255,255,2", "#ffff00"} {
		if strings.Contains(s, marker) {
			return true
		}
	}
	return shortYellow.MatchString(s)
}

var shortYellow = regexp.MustCompile(`#ff0(?:[^0-9a-f]|$)`)

// background returns the inline background declarations of a node.
func background(s *goquery.Selection) string {
	return s.AttrOr("bgcolor", "") + ";" + s.AttrOr("style", "")
}
