package engine

import (
	"strings"
	"unicode"

	"github.com/bborgeswq/eproc-scraper-2.0/scraper/internal/models"
)

// Identity is the advocate whose side is derived per case.
type Identity struct {
	Name string
	// Registration is the bar registration, e.g. RS053253. When empty,
	// Name is also tried as a registration.
	Registration string
}

var (
	activeRoles = map[string]struct{}{
		"AUTOR": {}, "REQUERENTE": {}, "EXEQUENTE": {}, "IMPETRANTE": {},
		"EMBARGANTE": {}, "RECLAMANTE": {}, "APELANTE": {}, "AGRAVANTE": {},
	}
	passiveRoles = map[string]struct{}{
		"RÉU": {}, "REU": {}, "REQUERIDO": {}, "EXECUTADO": {}, "IMPETRADO": {},
		"EMBARGADO": {}, "RECLAMADO": {}, "APELADO": {}, "AGRAVADO": {},
	}
)

// NormalizeRegistration upper-cases a registration and keeps letters and digits only.
func NormalizeRegistration(s string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// SideForRole maps a party role to a representation side.
func SideForRole(role string) models.Side {
	role = strings.ToUpper(strings.TrimSpace(role))
	if role == "" {
		return models.SideUnknown
	}
	if _, ok := activeRoles[role]; ok {
		return models.SideActive
	}
	if _, ok := passiveRoles[role]; ok {
		return models.SidePassive
	}
	return models.SideOther
}

// DeriveSide finds the first party represented by id and returns its side and raw role.
// Per representative, registration equality is checked before name containment.
func DeriveSide(parties []models.Party, id Identity) (models.Side, string) {
	registration := NormalizeRegistration(id.Registration)
	if registration == "" {
		registration = NormalizeRegistration(id.Name)
	}
	name := strings.ToUpper(strings.TrimSpace(id.Name))
	if registration == "" && name == "" {
		return models.SideUnknown, ""
	}

	for _, p := range parties {
		for _, rep := range p.Representatives {
			if registration != "" && NormalizeRegistration(rep.Registration) == registration {
				return SideForRole(p.Role), p.Role
			}
			repName := strings.ToUpper(strings.TrimSpace(rep.Name))
			if name != "" && repName != "" && (strings.Contains(repName, name) || strings.Contains(name, repName)) {
				return SideForRole(p.Role), p.Role
			}
		}
	}
	return models.SideUnknown, ""
}
