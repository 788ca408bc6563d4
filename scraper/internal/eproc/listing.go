package eproc

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/bborgeswq/eproc-scraper-2.0/common/logging"
	"github.com/bborgeswq/eproc-scraper-2.0/scraper/internal/models"
)

const (
	listingLinkSelector = "a[href*='citacao_intimacao_prazo_aberto_listar']"
	caseLinkSelector    = "a[href*='processo_selecionar']"
)

var courtPattern = regexp.MustCompile(`Ju[ií]zo:\s*(.+?)(?:\n|Cadastrar)`)

// FetchOpenDeadlines follows the dashboard link to the open-deadline table and reads it.
func (c *Client) FetchOpenDeadlines(ctx context.Context) (*models.Listing, error) {
	if c.landing == "" {
		return nil, fmt.Errorf("%w: not logged in", ErrLoginFailed)
	}
	start := time.Now()

	home, _, err := c.getPage(ctx, c.landing)
	if err != nil {
		return nil, fmt.Errorf("open landing page: %w", err)
	}
	href, ok := home.Find(listingLinkSelector).First().Attr("href")
	if !ok || href == "" {
		return nil, ErrListingNotFound
	}

	page, _, err := c.getPage(ctx, c.resolve(href))
	if err != nil {
		return nil, fmt.Errorf("open deadline listing: %w", err)
	}

	listing, skipped := ParseListing(page, c.loc)
	for _, err := range skipped {
		c.logger.WarnContext(ctx, "Skipping listing row", logging.Error(err))
	}
	c.logger.InfoContext(ctx, "Open deadlines read",
		logging.Count(listing.Len()),
		logging.Duration(time.Since(start)))
	return listing, nil
}

// ParseListing reads the open-deadline table: the table.infraTable with the most rows.
// Rows hold [checkbox, case, class, subject, event and deadline, sent, start, end].
// Rows that fail validation are returned as errors and left out.
func ParseListing(doc *goquery.Document, loc *time.Location) (*models.Listing, []error) {
	listing := models.NewListing()

	var table *goquery.Selection
	maxRows := 0
	doc.Find("table.infraTable").Each(func(_ int, t *goquery.Selection) {
		if n := t.Find("tr").Length(); n > maxRows {
			maxRows, table = n, t
		}
	})
	if table == nil {
		return listing, nil
	}

	var skipped []error
	table.Find("tr").Each(func(i int, row *goquery.Selection) {
		tds := cells(row)
		if len(tds) < 5 {
			return
		}
		caseText := text(tds[1])
		id := FindCNJ(caseText)
		if id == "" {
			return
		}

		rec := models.DeadlineRecord{
			CaseID:  id,
			Class:   cleanText(tds[2]),
			Subject: cleanText(tds[3]),
			Court:   submatch(courtPattern, caseText),
			Deadline: models.Deadline{
				Description: cleanText(tds[4]),
			},
			Handle: tds[1].Find(caseLinkSelector).First().AttrOr("href", ""),
		}
		if len(tds) > 5 {
			rec.Deadline.SentAt = ParseBRTime(text(tds[5]), loc)
		}
		if len(tds) > 6 {
			rec.Deadline.Start = ParseBRTime(text(tds[6]), loc)
		}
		if len(tds) > 7 {
			rec.Deadline.End = ParseBRTime(text(tds[7]), loc)
		}

		if err := rec.Validate(); err != nil {
			skipped = append(skipped, fmt.Errorf("row %d: %w", i, err))
			return
		}
		listing.Add(rec)
	})
	return listing, skipped
}
