// Package blobstore stores document bytes under {case}/evt_{NN}/{name}_{ref}{ext},
// where ref is a short digest of the document's portal reference.
package blobstore

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Extensions stripped from a document name before the detected one is applied.
var knownExtensions = []string{".pdf", ".png", ".jpg", ".mp4", ".mp3", ".zip", ".html", ".bin"}

var nameReplacer = strings.NewReplacer("/", "_", "\\", "_", " ", "_")

// SafeName folds accents to ASCII, drops remaining non-ASCII runes and replaces
// path separators and spaces with underscores.
func SafeName(name string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.Predicate(func(r rune) bool {
		return r > unicode.MaxASCII
	})))
	ascii, _, err := transform.String(t, name)
	if err != nil {
		ascii = name
	}
	return nameReplacer.Replace(ascii)
}

// refDigestLen is the number of hex digits of the reference digest kept in a path.
const refDigestLen = 10

// BuildPath returns the object path for a document of a case event. Two
// documents of one event only share a path when they share externalRef, so
// names that fold to the same ASCII string do not overwrite each other.
func BuildPath(caseID string, eventSeq int, name, externalRef, ext string) string {
	safe := SafeName(name)
	lower := strings.ToLower(safe)
	for _, known := range knownExtensions {
		if strings.HasSuffix(lower, known) {
			safe = safe[:len(safe)-len(known)]
			break
		}
	}
	if externalRef != "" {
		sum := sha256.Sum256([]byte(externalRef))
		suffix := hex.EncodeToString(sum[:])[:refDigestLen]
		if safe == "" {
			safe = suffix
		} else {
			safe += "_" + suffix
		}
	}
	if ext == "" {
		ext = ".pdf"
	}
	return fmt.Sprintf("%s/evt_%02d/%s%s", caseID, eventSeq, safe, ext)
}

// ContentHash returns the hex SHA-256 of data.
func ContentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func validCaseID(caseID string) error {
	if caseID == "" || strings.ContainsAny(caseID, "/\\") || strings.Contains(caseID, "..") {
		return fmt.Errorf("invalid case id %q for blob path", caseID)
	}
	return nil
}
