package logging

import (
	"errors"
	"log/slog"
	"testing"
	"time"
)

func TestStringFields(t *testing.T) {
	tests := []struct {
		name string
		attr slog.Attr
		key  string
		want string
	}{
		{"service", Service("eproc-scraper"), FieldService, "eproc-scraper"},
		{"run id", RunID("run-1"), FieldRunID, "run-1"},
		{"case id", CaseID("5001234-56.2024.8.21.0001"), FieldCaseID, "5001234-56.2024.8.21.0001"},
		{"document", Document("INIC1"), FieldDocument, "INIC1"},
		{"phase", Phase("add"), FieldPhase, "add"},
		{"state", State("running"), FieldState, "running"},
		{"status", Status("partial"), FieldStatus, "partial"},
		{"url", URL("https://eproc1g.tjrs.jus.br"), FieldURL, "https://eproc1g.tjrs.jus.br"},
		{"error", Error(errors.New("boom")), FieldError, "boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.attr.Key != tt.key {
				t.Errorf("expected key %q, got %q", tt.key, tt.attr.Key)
			}
			if tt.attr.Value.String() != tt.want {
				t.Errorf("expected value %q, got %q", tt.want, tt.attr.Value.String())
			}
		})
	}
}

func TestNumericFields(t *testing.T) {
	if attr := EventSeq(42); attr.Key != FieldEventSeq || attr.Value.Int64() != 42 {
		t.Errorf("unexpected event_seq attr: %v", attr)
	}
	if attr := Count(7); attr.Key != FieldCount || attr.Value.Int64() != 7 {
		t.Errorf("unexpected count attr: %v", attr)
	}
	if attr := Duration(1500 * time.Millisecond); attr.Key != FieldDuration || attr.Value.Int64() != 1500 {
		t.Errorf("unexpected duration attr: %v", attr)
	}
}
