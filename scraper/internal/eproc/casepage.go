package eproc

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/bborgeswq/eproc-scraper-2.0/common/logging"
	"github.com/bborgeswq/eproc-scraper-2.0/scraper/internal/engine"
	"github.com/bborgeswq/eproc-scraper-2.0/scraper/internal/models"
)

const loadAllEventsText = "Carregar TODOS os eventos"

// OpenCase loads the case page behind a listing handle. When the page offers a
// navigable "load all events" link, the full page is fetched instead.
func (c *Client) OpenCase(ctx context.Context, handle string) (engine.CaseSession, error) {
	if strings.TrimSpace(handle) == "" {
		return nil, fmt.Errorf("open case: empty handle")
	}
	doc, _, err := c.getPage(ctx, c.resolve(handle))
	if err != nil {
		return nil, fmt.Errorf("open case page: %w", err)
	}

	if href := loadAllHref(doc); href != "" {
		full, _, err := c.getPage(ctx, c.resolve(href))
		if err != nil {
			c.logger.WarnContext(ctx, "Could not load all events, using first page",
				logging.URL(href), logging.Error(err))
		} else {
			doc = full
		}
	}
	return NewCasePage(doc, c.loc), nil
}

func loadAllHref(doc *goquery.Document) string {
	var href string
	doc.Find("a").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		if !strings.Contains(a.Text(), loadAllEventsText) {
			return true
		}
		h := strings.TrimSpace(a.AttrOr("href", ""))
		if h != "" && h != "#" && !strings.HasPrefix(strings.ToLower(h), "javascript:") {
			href = h
		}
		return false
	})
	return href
}

// CasePage is a parsed case page. It holds no network resources.
type CasePage struct {
	doc *goquery.Document
	loc *time.Location
}

// NewCasePage wraps an already fetched case page.
func NewCasePage(doc *goquery.Document, loc *time.Location) *CasePage {
	if loc == nil {
		loc = PortalLocation()
	}
	return &CasePage{doc: doc, loc: loc}
}

var (
	filedOnPattern     = regexp.MustCompile(`Data de autua[çc][aã]o:\s*(\d{2}/\d{2}/\d{4})`)
	situationPattern   = regexp.MustCompile(`Situa[çc][aã]o:?\s*(.+?)(?:\n|Ó)`)
	judgingBodyPattern = regexp.MustCompile(`[OÓ]rg[aã]o Julgador:\s*\n?\s*(.+?)(?:\n|Juiz)`)
	judgePattern       = regexp.MustCompile(`Juiz\(a\):\s*\n?\s*(.+?)(?:\n|Processos)`)
)

// Header reads the case cover.
func (p *CasePage) Header(context.Context) (*models.Header, error) {
	h := &models.Header{
		CaseID:       cleanText(p.doc.Find("#txtNumProcesso").First()),
		Class:        cleanText(p.doc.Find("#txtClasse").First()),
		Jurisdiction: cleanText(p.doc.Find("#txtCompetencia").First()),
		RelatedCases: []string{},
	}

	cover := text(p.doc.Find("#divCapaProcesso").First())
	if filed := submatch(filedOnPattern, cover); filed != "" {
		h.FiledOn = ParseBRTime(filed, p.loc)
	}
	h.Situation = submatch(situationPattern, cover)
	h.JudgingBody = submatch(judgingBodyPattern, cover)
	h.Judge = submatch(judgePattern, cover)

	if related := p.doc.Find("#tableRelacionado"); related.Length() > 0 {
		h.RelatedCases = append(h.RelatedCases, cnjPattern.FindAllString(text(related), -1)...)
	}
	return h, nil
}

// Subjects reads the subject table: code and description per row.
func (p *CasePage) Subjects(context.Context) ([]models.Subject, error) {
	subjects := []models.Subject{}
	p.doc.Find("table.infraTable.table-not-hover.mb-0").First().Find("tr").Each(func(_ int, row *goquery.Selection) {
		tds := cells(row)
		if len(tds) < 2 {
			return
		}
		code, desc := cleanText(tds[0]), cleanText(tds[1])
		if code != "" && desc != "" {
			subjects = append(subjects, models.Subject{Code: code, Description: desc})
		}
	})
	return subjects, nil
}

var (
	roleAliases = map[string]string{"REU": "RÉU", "A": "AUTOR", "R": "RÉU"}

	cpfPattern       = regexp.MustCompile(`\((\d{3}\.\d{3}\.\d{3}-\d{2})\)`)
	cnpjPattern      = regexp.MustCompile(`\((\d{2}\.\d{3}\.\d{3}/\d{4}-\d{2})\)`)
	qualifierPattern = regexp.MustCompile(`\(([\p{L}\p{N}_]+(?:\s+[\p{L}\p{N}_]+)?)\)\s*-\s*Pessoa`)

	// Upper-case name, two or more spaces, then a state/OAB or DPE registration.
	representativePattern = regexp.MustCompile(
		`([A-ZÀ-Ú][A-ZÀ-Ú\s.]+?)\s{2,}((?:RS|SC|PR|SP|RJ|MG|BA|PE|CE|GO|MT|MS|PA|AM|MA|PI|RN|PB|SE|AL|ES|RO|AC|AP|RR|TO|DF|OAB|DPE)-?\d+)`)
	representativeNoise = regexp.MustCompile(
		`(?i)^(?:Procurador\(es\):\s*|ADVOGADO\s*|ADVOGADA\s*|Pessoa\s+F[ií]sica\s*|Pessoa\s+Jur[ií]dica\s*)`)
)

// Parties reads the parties table. Representatives are the registrations found
// in the party's cell.
func (p *CasePage) Parties(context.Context) ([]models.Party, error) {
	parties := []models.Party{}
	p.doc.Find("#tblPartesERepresentantes").First().
		Find("a.infraNomeParte, a[data-parte]").
		Each(func(_ int, link *goquery.Selection) {
			name := cleanText(link)
			if name == "" {
				return
			}
			role := strings.ToUpper(strings.TrimSpace(link.AttrOr("data-parte", "")))
			if alias, ok := roleAliases[role]; ok {
				role = alias
			}

			party := models.Party{Role: role, Name: name, Representatives: []models.Representative{}}

			container := link.Closest("td")
			if container.Length() == 0 {
				container = link.Closest("div")
			}
			if container.Length() == 0 {
				parties = append(parties, party)
				return
			}
			cellText := text(container)

			container.Find("span[id^='spnCpfParte']").EachWithBreak(func(_ int, span *goquery.Selection) bool {
				party.DocumentID = cleanText(span)
				return party.DocumentID == ""
			})
			if party.DocumentID == "" {
				party.DocumentID = submatch(cpfPattern, cellText)
			}
			if party.DocumentID == "" {
				party.DocumentID = submatch(cnpjPattern, cellText)
			}

			if q := submatch(qualifierPattern, cellText); q != party.DocumentID {
				party.Qualifier = q
			}

			party.Representatives = parseRepresentatives(cellText, name)
			parties = append(parties, party)
		})
	return parties, nil
}

func parseRepresentatives(cellText, partyName string) []models.Representative {
	reps := []models.Representative{}
	for _, m := range representativePattern.FindAllStringSubmatch(cellText, -1) {
		name := strings.TrimSpace(representativeNoise.ReplaceAllString(strings.TrimSpace(m[1]), ""))
		registration := strings.TrimSpace(m[2])
		if name == "" || strings.EqualFold(name, partyName) {
			continue
		}
		kind := models.RepresentativeLawyer
		if strings.Contains(strings.ToUpper(registration), "DPE") {
			kind = models.RepresentativeDefender
		}
		reps = append(reps, models.Representative{Name: name, Registration: registration, Kind: kind})
	}
	return reps
}

var (
	eventNumberPattern    = regexp.MustCompile(`(\d+)`)
	deadlineDaysPattern   = regexp.MustCompile(`Prazo:\s*(\d+)\s*dias?`)
	deadlineStatusPattern = regexp.MustCompile(`Status:\s*([\p{L}\p{N}_]+)`)
	deadlineStartPattern  = regexp.MustCompile(`Data inicial[^:]*:\s*(\d{2}/\d{2}/\d{4}\s+\d{2}:\d{2}:\d{2})`)
	deadlineEndPattern    = regexp.MustCompile(`Data final:\s*(\d{2}/\d{2}/\d{4}\s+\d{2}:\d{2}:\d{2})`)
	refersToPattern       = regexp.MustCompile(`Refer\.\s*ao\s*Evento:?\s*(\d+)`)
)

// Events reads the events table in page order, newest first. Rows without a
// number or a timestamp are skipped.
func (p *CasePage) Events(context.Context) ([]models.EventRecord, error) {
	caseID := FindCNJ(cleanText(p.doc.Find("#txtNumProcesso").First()))
	events := []models.EventRecord{}

	p.doc.Find("#tblEventos").First().Find("tr").Each(func(_ int, row *goquery.Selection) {
		tds := cells(row)
		if len(tds) < 4 {
			return
		}
		num := submatch(eventNumberPattern, text(tds[0]))
		seq, err := strconv.Atoi(num)
		if err != nil {
			return
		}
		occurred := ParseBRTime(text(tds[1]), p.loc)
		if occurred == nil {
			return
		}

		desc := cleanText(tds[2])
		ev := models.EventRecord{
			Event: models.Event{
				CaseID:      caseID,
				Seq:         seq,
				OccurredAt:  *occurred,
				Description: desc,
				Actor:       cleanText(tds[3]),
				Urgent:      strings.Contains(desc, "URGENTE"),
			},
			Documents: []models.DocumentRef{},
		}

		// An open deadline paints only the description cell yellow; a fully
		// yellow row means something else.
		rowYellow := isYellow(background(row)) || isYellow(background(tds[0]))
		highlighted := isYellow(background(tds[2])) && !rowYellow

		textual := strings.Contains(desc, "Prazo:") && strings.Contains(desc, "Status:")
		ev.HasDeadline = textual || highlighted
		if textual {
			if days, err := strconv.Atoi(submatch(deadlineDaysPattern, desc)); err == nil {
				ev.DeadlineDays = &days
			}
			ev.DeadlineStatus = submatch(deadlineStatusPattern, desc)
			if s := submatch(deadlineStartPattern, desc); s != "" {
				ev.DeadlineStart = ParseBRTime(s, p.loc)
			}
			if s := submatch(deadlineEndPattern, desc); s != "" {
				ev.DeadlineEnd = ParseBRTime(s, p.loc)
			}
		}
		if ref, err := strconv.Atoi(submatch(refersToPattern, desc)); err == nil {
			ev.RefersTo = &ref
		}

		if len(tds) > 4 {
			tds[4].Find("a[href*='acessar_documento']").Each(func(_ int, a *goquery.Selection) {
				ref := models.DocumentRef{Name: cleanText(a), Ref: strings.TrimSpace(a.AttrOr("href", ""))}
				if ref.Validate() == nil {
					ev.Documents = append(ev.Documents, ref)
				}
			})
		}
		events = append(events, ev)
	})
	return events, nil
}

// Close is a no-op; the page is already in memory.
func (p *CasePage) Close() error { return nil }
