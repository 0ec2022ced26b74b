// Copyright 2026 The Depot Authors
// SPDX-License-Identifier: Apache-2.0

package textutils

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// dotless i has no decomposition, so it is folded by hand.
var extraFolding = strings.NewReplacer("ı", "i")

// LowerASCIIFolding normalizes a string by removing accents, lowercasing, and trimming spaces.
func LowerASCIIFolding(s string) string {
	s, _, _ = transform.String(
		transform.Chain(
			norm.NFD,
			runes.Remove(runes.In(unicode.Mn)),
			norm.NFC,
		),
		strings.TrimSpace(strings.ToLower(s)),
	)

	return extraFolding.Replace(s)
}

// NormalizeColumn turns a CSV header into a snake_case column name, so that
// "Daily Orders", "daily-orders" and " DAILY_ORDERS" all match daily_orders.
func NormalizeColumn(header string) string {
	s := LowerASCIIFolding(strings.TrimPrefix(header, "\uFEFF"))

	var b strings.Builder

	underscore := false

	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)

			underscore = false
		case b.Len() > 0 && !underscore:
			b.WriteByte('_')

			underscore = true
		}
	}

	return strings.TrimSuffix(b.String(), "_")
}
