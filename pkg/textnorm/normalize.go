// communicator - A contact list filtering and device notification core.
// Copyright (C) 2024 communicator contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package textnorm strips diacritics and apostrophes from display names so
// that searching is insensitive to accents.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var apostrophes = runes.Predicate(func(r rune) bool {
	switch r {
	case '\'', '’', 'ʼ', '‘':
		return true
	}
	return false
})

func newStripper() transform.Transformer {
	return transform.Chain(
		norm.NFD,
		runes.Remove(runes.In(unicode.Mn)),
		runes.Remove(apostrophes),
		norm.NFC,
	)
}

// Normalize decomposes accented characters, drops the combining marks and
// apostrophes, and recomposes the result. Normalize(Normalize(s)) == Normalize(s).
func Normalize(s string) string {
	if s == "" {
		return s
	}
	// transform.Chain keeps state, so every call needs its own chain.
	result, _, err := transform.String(newStripper(), s)
	if err != nil {
		return s
	}
	return result
}

// FoldForSort returns the normalized lower-case form used to order names.
func FoldForSort(s string) string {
	return strings.ToLower(Normalize(s))
}
