// Package models defines the records synchronized from eProc.
package models

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidRecord is wrapped by every boundary validation failure.
var ErrInvalidRecord = errors.New("invalid record")

// Side is which pole of the case the tracked advocate represents.
type Side string

const (
	SideActive  Side = "active"
	SidePassive Side = "passive"
	SideOther   Side = "other"
	SideUnknown Side = "unknown"
)

// Case is a tracked legal proceeding keyed by its CNJ number.
type Case struct {
	ID           string
	Side         Side
	AdvocateRole string

	Class        string
	Jurisdiction string
	FiledOn      *time.Time
	Situation    string
	JudgingBody  string
	Judge        string
	Court        string
	RelatedCases []string

	Subjects []Subject
	Parties  []Party
	Deadline Deadline

	CreatedAt    time.Time
	UpdatedAt    time.Time
	LastSyncedAt *time.Time
}

// Deadline holds the open-deadline fields shown in the advocate's dashboard.
type Deadline struct {
	Description string     `json:"description,omitempty"`
	SentAt      *time.Time `json:"sent_at,omitempty"`
	Start       *time.Time `json:"start,omitempty"`
	End         *time.Time `json:"end,omitempty"`
}

// Subject is one entry of the case's subject-matter table.
type Subject struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// Party is a litigant with its representatives.
type Party struct {
	Role            string           `json:"role"`
	Name            string           `json:"name"`
	DocumentID      string           `json:"document_id,omitempty"`
	Qualifier       string           `json:"qualifier,omitempty"`
	Representatives []Representative `json:"representatives"`
}

// Representative is an advocate or public defender acting for a party.
type Representative struct {
	Name         string `json:"name"`
	Registration string `json:"registration"`
	Kind         string `json:"kind"`
}

// Representative kinds.
const (
	RepresentativeLawyer   = "Advogado"
	RepresentativeDefender = "DPE"
)

// Header is the case page header as extracted from the portal.
type Header struct {
	CaseID       string
	Class        string
	Jurisdiction string
	FiledOn      *time.Time
	Situation    string
	JudgingBody  string
	Judge        string
	RelatedCases []string
}

// Validate rejects a case without its natural key.
func (c *Case) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("%w: case id is required", ErrInvalidRecord)
	}
	return nil
}
