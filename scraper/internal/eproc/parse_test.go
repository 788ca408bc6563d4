package eproc

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bborgeswq/eproc-scraper-2.0/scraper/internal/models"
)

func loadPage(t *testing.T, name string) *goquery.Document {
	t.Helper()
	f, err := os.Open("testdata/" + name)
	require.NoError(t, err)
	defer f.Close()
	doc, err := goquery.NewDocumentFromReader(f)
	require.NoError(t, err)
	return doc
}

func at(year int, month time.Month, day, hour, min, sec int) *time.Time {
	t := time.Date(year, month, day, hour, min, sec, 0, testLoc)
	return &t
}

func intPtr(v int) *int { return &v }

func TestParseListing_SkipsRowsWithoutLink(t *testing.T) {
	listing, skipped := ParseListing(loadPage(t, "listing.html"), testLoc)
	assert.Equal(t, 2, listing.Len())
	require.Len(t, skipped, 1)
	assert.ErrorIs(t, skipped[0], models.ErrInvalidRecord)
	assert.False(t, listing.Has("5003333-33.2022.8.21.0001"))
}

func TestParseListing_NoTable(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader("<html><body></body></html>"))
	require.NoError(t, err)
	listing, skipped := ParseListing(doc, testLoc)
	assert.Equal(t, 0, listing.Len())
	assert.Empty(t, skipped)
}

func TestCasePage_Header(t *testing.T) {
	page := NewCasePage(loadPage(t, "case.html"), testLoc)
	got, err := page.Header(context.Background())
	require.NoError(t, err)

	want := &models.Header{
		CaseID:       "5001234-56.2024.8.21.0001",
		Class:        "PROCEDIMENTO COMUM CÍVEL",
		Jurisdiction: "Cível",
		FiledOn:      at(2024, time.March, 15, 0, 0, 0),
		Situation:    "MOVIMENTO",
		JudgingBody:  "1ª Vara Cível de Porto Alegre",
		Judge:        "FULANO DE TAL",
		RelatedCases: []string{"5009999-11.2023.8.21.0001", "5008888-22.2023.8.21.0001"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Header() mismatch (-want +got):\n%s", diff)
	}
}

func TestCasePage_HeaderMissingFields(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader("<html><body><div id='divCapaProcesso'></div></body></html>"))
	require.NoError(t, err)

	got, err := NewCasePage(doc, testLoc).Header(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got.CaseID)
	assert.Nil(t, got.FiledOn)
	assert.Equal(t, []string{}, got.RelatedCases)
}

func TestCasePage_Subjects(t *testing.T) {
	got, err := NewCasePage(loadPage(t, "case.html"), testLoc).Subjects(context.Background())
	require.NoError(t, err)

	want := []models.Subject{
		{Code: "10433", Description: "Indenização por Dano Moral"},
		{Code: "7780", Description: "Responsabilidade Civil"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Subjects() mismatch (-want +got):\n%s", diff)
	}
}

func TestCasePage_Parties(t *testing.T) {
	got, err := NewCasePage(loadPage(t, "case.html"), testLoc).Parties(context.Background())
	require.NoError(t, err)

	want := []models.Party{
		{
			Role:       "AUTOR",
			Name:       "MARIA DA SILVA",
			DocumentID: "123.456.789-00",
			Representatives: []models.Representative{
				{Name: "JAIME DARLAN MARTINS", Registration: "RS053253", Kind: models.RepresentativeLawyer},
			},
		},
		{
			Role:       "RÉU",
			Name:       "BANCO EXEMPLO S.A.",
			DocumentID: "12.345.678/0001-90",
			Representatives: []models.Representative{
				{Name: "DEFENSORIA PUBLICA", Registration: "DPE-4594967", Kind: models.RepresentativeDefender},
			},
		},
		{
			Role:      "AUTOR",
			Name:      "ESPÓLIO DE JOÃO",
			Qualifier: "Inventariante",
			Representatives: []models.Representative{
				{Name: "ANA PAULA SOUZA", Registration: "SC099999", Kind: models.RepresentativeLawyer},
			},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Parties() mismatch (-want +got):\n%s", diff)
	}
}

func TestCasePage_Events(t *testing.T) {
	got, err := NewCasePage(loadPage(t, "case.html"), testLoc).Events(context.Background())
	require.NoError(t, err)

	const id = "5001234-56.2024.8.21.0001"
	want := []models.EventRecord{
		{
			Event: models.Event{
				CaseID:         id,
				Seq:            4,
				OccurredAt:     *at(2026, time.February, 10, 14, 30, 0),
				Description:    "Intimação Eletrônica - Expedida/Certificada Prazo: 15 dias Status:ABERTO Data inicial da contagem do prazo: 11/02/2026 00:00:00 Data final: 03/03/2026 23:59:59 Refer. ao Evento: 3",
				Actor:          "JUIZ1",
				HasDeadline:    true,
				DeadlineDays:   intPtr(15),
				DeadlineStatus: "ABERTO",
				DeadlineStart:  at(2026, time.February, 11, 0, 0, 0),
				DeadlineEnd:    at(2026, time.March, 3, 23, 59, 59),
				RefersTo:       intPtr(3),
			},
			Documents: []models.DocumentRef{
				{Name: "INTIMACAO1", Ref: "controlador.php?acao=acessar_documento&doc=41"},
			},
		},
		{
			Event: models.Event{
				CaseID:      id,
				Seq:         3,
				OccurredAt:  *at(2026, time.February, 9, 10, 0, 0),
				Description: "Despacho URGENTE",
				Actor:       "MAGISTRADO",
				Urgent:      true,
			},
			Documents: []models.DocumentRef{
				{Name: "DESP1", Ref: "controlador.php?acao=acessar_documento&doc=31"},
				{Name: "CERT1", Ref: "controlador.php?acao=acessar_documento&doc=32"},
			},
		},
		{
			Event: models.Event{
				CaseID:      id,
				Seq:         2,
				OccurredAt:  *at(2026, time.February, 5, 8, 0, 0),
				Description: "Conclusos para decisão",
				Actor:       "SERVIDOR",
			},
			Documents: []models.DocumentRef{},
		},
		{
			Event: models.Event{
				CaseID:      id,
				Seq:         1,
				OccurredAt:  *at(2026, time.February, 1, 12, 0, 0),
				Description: "Distribuído por sorteio",
				Actor:       "SISTEMA",
			},
			Documents: []models.DocumentRef{},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Events() mismatch (-want +got):\n%s", diff)
	}
}

func TestParseBRTime(t *testing.T) {
	tests := []struct {
		in   string
		want *time.Time
	}{
		{"06/02/2026 09:09:00", at(2026, time.February, 6, 9, 9, 0)},
		{"  06/02/2026\n09:09:00 ", at(2026, time.February, 6, 9, 9, 0)},
		{"06/02/2026 09:09", at(2026, time.February, 6, 9, 9, 0)},
		{"06/02/2026", at(2026, time.February, 6, 0, 0, 0)},
		{"Final: 19/02/2026 23:59:59", at(2026, time.February, 19, 23, 59, 59)},
		{"", nil},
		{"31/02/2026", nil},
		{"amanhã", nil},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := ParseBRTime(tt.in, testLoc)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.True(t, tt.want.Equal(*got), "got %v", got)
		})
	}
}

func TestFindCNJ(t *testing.T) {
	assert.Equal(t, "5001234-56.2024.8.21.0001", FindCNJ("Processo 5001234-56.2024.8.21.0001 (RS)"))
	assert.Empty(t, FindCNJ("5001234-56.2024.821.0001"))
}

func TestIsYellow(t *testing.T) {
	tests := []struct {
		style string
		want  bool
	}{
		{"background-color: yellow", true},
		{"background-color: rgb(255, 255, 0)", true},
		{"background-color: rgb(255, 255, 153)", true},
		{"background: #FFFF00", true},
		{"background: #ff0;", true},
		{"#ff0", true},
		{"background: #ff0000", false},
		{"background-color: rgb(255, 0, 0)", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.style, func(t *testing.T) {
			assert.Equal(t, tt.want, isYellow(tt.style))
		})
	}
}

func TestCleanTOTPSecret(t *testing.T) {
	assert.Equal(t, "JBSWY3DPEHPK3PXP", CleanTOTPSecret(" jbsw y3dp-ehpk 3pxp\n"))
	assert.Equal(t, "ABC=", CleanTOTPSecret("a b-c=0189"))
}

func TestTOTPCode(t *testing.T) {
	code, err := TOTPCode("JBSW Y3DP EHPK 3PXP", time.Unix(0, 0))
	require.NoError(t, err)
	assert.Len(t, code, 6)
	again, err := TOTPCode("jbswy3dpehpk3pxp", time.Unix(0, 0))
	require.NoError(t, err)
	assert.Equal(t, code, again)
}

func TestParseRepresentatives_SkipsPartyName(t *testing.T) {
	reps := parseRepresentatives("MARIA DA SILVA   RS000001\nJOSE PEREIRA   OAB123", "maria da silva")
	require.Len(t, reps, 1)
	assert.Equal(t, "JOSE PEREIRA", reps[0].Name)
	assert.Equal(t, "OAB123", reps[0].Registration)
}
