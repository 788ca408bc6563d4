// Package doctype identifies downloaded documents by their leading bytes.
package doctype

import (
	"bytes"
	"strings"

	"github.com/bborgeswq/eproc-scraper-2.0/scraper/internal/models"
)

// Format is a detected file format.
type Format struct {
	Extension string
	Type      models.DocumentType
}

type signature struct {
	magic []byte
	ext   string
	typ   models.DocumentType
}

// Checked in order; RIFF is resolved by its sub-format below.
var signatures = []signature{
	{[]byte("%PDF"), ".pdf", models.DocumentPDF},
	{[]byte("\x89PNG\r\n\x1a\n"), ".png", models.DocumentImage},
	{[]byte("\xff\xd8\xff"), ".jpg", models.DocumentImage},
	{[]byte("GIF87a"), ".gif", models.DocumentImage},
	{[]byte("GIF89a"), ".gif", models.DocumentImage},
	{[]byte("RIFF"), ".webp", models.DocumentImage},
	{[]byte("\x00\x00\x00\x1cftyp"), ".mp4", models.DocumentVideo},
	{[]byte("\x00\x00\x00\x18ftyp"), ".mp4", models.DocumentVideo},
	{[]byte("\x00\x00\x00\x20ftyp"), ".mp4", models.DocumentVideo},
	{[]byte("\x1aE\xdf\xa3"), ".webm", models.DocumentVideo},
	{[]byte("ID3"), ".mp3", models.DocumentAudio},
	{[]byte("\xff\xfb"), ".mp3", models.DocumentAudio},
	{[]byte("\xff\xf3"), ".mp3", models.DocumentAudio},
	{[]byte("OggS"), ".ogg", models.DocumentAudio},
	{[]byte("fLaC"), ".flac", models.DocumentAudio},
	{[]byte("PK\x03\x04"), ".zip", models.DocumentArchive},
}

// Detect returns the format of data. Unknown payloads are .bin/OUTRO.
func Detect(data []byte) Format {
	for _, sig := range signatures {
		if !bytes.HasPrefix(data, sig.magic) {
			continue
		}
		if string(sig.magic) == "RIFF" && len(data) >= 12 {
			switch string(data[8:12]) {
			case "WEBP":
				return Format{Extension: ".webp", Type: models.DocumentImage}
			case "WAVE":
				return Format{Extension: ".wav", Type: models.DocumentAudio}
			}
		}
		return Format{Extension: sig.ext, Type: sig.typ}
	}
	if bytes.HasPrefix(data, []byte("<")) {
		return Format{Extension: ".html", Type: models.DocumentHTML}
	}
	return Format{Extension: ".bin", Type: models.DocumentOther}
}

// IsHTML reports whether data looks like an HTML page, allowing leading whitespace and a BOM.
func IsHTML(data []byte) bool {
	trimmed := bytes.TrimLeft(bytes.TrimPrefix(data, []byte("\xef\xbb\xbf")), " \t\r\n")
	return bytes.HasPrefix(trimmed, []byte("<"))
}

var contentTypes = map[string]string{
	".pdf":  "application/pdf",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
	".mp4":  "video/mp4",
	".webm": "video/webm",
	".mp3":  "audio/mpeg",
	".ogg":  "audio/ogg",
	".flac": "audio/flac",
	".wav":  "audio/wav",
	".zip":  "application/zip",
	".html": "text/html",
}

// ContentType maps an extension to the MIME type used for upload.
func ContentType(ext string) string {
	if ct, ok := contentTypes[strings.ToLower(ext)]; ok {
		return ct
	}
	return "application/octet-stream"
}
