package storage

import (
	"path/filepath"
	"strings"
	"time"
	"unicode"
)

const attachmentDir = "anexos"

// AttachmentFileName derives a collision-resistant stored name for a ticket
// attachment, preserving the original extension:
// <ticketID>_<slug of requester name>_<YYYYMMDD_HHMMSS><ext>.
func AttachmentFileName(ticketID, requesterName, originalName string, at time.Time) string {
	ext := filepath.Ext(originalName)
	return ticketID + "_" + Slugify(requesterName) + "_" + at.Format("20060102_150405") + ext
}

// AttachmentPath returns the storage path for a derived attachment name.
func AttachmentPath(fileName string) string {
	return attachmentDir + "/" + fileName
}

// Slugify lowercases the input, strips diacritics common in Portuguese
// names and collapses everything that is not a letter or digit into single
// hyphens.
func Slugify(s string) string {
	var b strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(s) {
		r = stripAccent(r)
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastHyphen = false
		case !lastHyphen:
			b.WriteByte('-')
			lastHyphen = true
		}
	}
	return strings.TrimRight(b.String(), "-")
}

var accentFold = map[rune]rune{
	'á': 'a', 'à': 'a', 'ã': 'a', 'â': 'a', 'ä': 'a',
	'é': 'e', 'è': 'e', 'ê': 'e', 'ë': 'e',
	'í': 'i', 'ì': 'i', 'î': 'i', 'ï': 'i',
	'ó': 'o', 'ò': 'o', 'õ': 'o', 'ô': 'o', 'ö': 'o',
	'ú': 'u', 'ù': 'u', 'û': 'u', 'ü': 'u',
	'ç': 'c', 'ñ': 'n',
}

func stripAccent(r rune) rune {
	if folded, ok := accentFold[r]; ok {
		return folded
	}
	return r
}
