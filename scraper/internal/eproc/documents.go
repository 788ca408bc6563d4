package eproc

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"

	"github.com/bborgeswq/eproc-scraper-2.0/common/logging"
	"github.com/bborgeswq/eproc-scraper-2.0/scraper/internal/doctype"
	"github.com/bborgeswq/eproc-scraper-2.0/scraper/internal/models"
)

const (
	embeddedSelector = "embed[type='application/pdf'], embed[src], " +
		"iframe[src*='pdf'], iframe[src*='documento'], iframe[src*='acessar'], " +
		"object[type='application/pdf'], object[data]"
	downloadLinkSelector = "a[href*='download'], a[href*='.pdf'], a[href*='acessar_documento_implementacao']"
	// Portal chrome removed from pages kept as HTML documents.
	chromeSelector = "#divInfraBarraNavegacao, #divInfraBarraSistema, #divInfraBarraComandosSuperior, " +
		"#divInfraBarraLocalizacao, .infraBarraComandos, #divInfraAreaMenu, header, nav, " +
		"#fldAnexos, #divInfraBarraComandosInferior, script"
)

// FetchDocument downloads a document. A binary answer is returned as is. An
// HTML answer is searched for an embedded file, then for a download link;
// failing both, the page itself is kept as an HTML document.
func (c *Client) FetchDocument(ctx context.Context, ref string) (*models.FetchedDocument, error) {
	res, err := c.download(ctx, c.resolve(ref))
	if err != nil {
		return nil, err
	}
	if !doctype.IsHTML(res.Body()) {
		return fetched(res.Body()), nil
	}

	doc, err := parseHTML(res)
	if err != nil {
		return nil, err
	}

	embedded := doc.Find(embeddedSelector).First()
	if src := firstAttr(embedded, "src", "data"); src != "" {
		if found, ok := c.tryBinary(ctx, src); ok {
			return found, nil
		}
	}
	if href := doc.Find(downloadLinkSelector).First().AttrOr("href", ""); href != "" {
		if found, ok := c.tryBinary(ctx, href); ok {
			return found, nil
		}
	}

	doc.Find(chromeSelector).Remove()
	page, err := doc.Html()
	if err != nil {
		return nil, fmt.Errorf("render html document: %w", err)
	}
	return &models.FetchedDocument{
		Data:        []byte(page),
		Type:        models.DocumentHTML,
		Extension:   ".html",
		ContentType: "text/html; charset=utf-8",
	}, nil
}

// tryBinary downloads href and accepts it only when it is not another HTML page.
func (c *Client) tryBinary(ctx context.Context, href string) (*models.FetchedDocument, bool) {
	res, err := c.download(ctx, c.resolve(href))
	if err != nil {
		c.logger.DebugContext(ctx, "Linked document unavailable", logging.URL(href), logging.Error(err))
		return nil, false
	}
	if doctype.IsHTML(res.Body()) {
		return nil, false
	}
	return fetched(res.Body()), true
}

// download GETs target. 404 and empty bodies are not-found.
func (c *Client) download(ctx context.Context, target string) (*resty.Response, error) {
	res, err := c.get(ctx, target)
	if err != nil {
		return nil, err
	}
	if res.StatusCode() == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", models.ErrDocumentNotFound, target)
	}
	if res.IsError() {
		return nil, fmt.Errorf("GET %s: status %d", target, res.StatusCode())
	}
	if len(res.Body()) == 0 {
		return nil, fmt.Errorf("%w: empty body at %s", models.ErrDocumentNotFound, target)
	}
	return res, nil
}

func fetched(data []byte) *models.FetchedDocument {
	format := doctype.Detect(data)
	return &models.FetchedDocument{
		Data:        data,
		Type:        format.Type,
		Extension:   format.Extension,
		ContentType: doctype.ContentType(format.Extension),
	}
}

func firstAttr(s *goquery.Selection, names ...string) string {
	for _, name := range names {
		if v := strings.TrimSpace(s.AttrOr(name, "")); v != "" {
			return v
		}
	}
	return ""
}
