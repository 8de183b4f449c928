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

package contactfilter

import (
	"fmt"
	"regexp"
	"strings"

	"go.mau.fi/communicator/pkg/textnorm"
)

// Pattern is a compiled case-insensitive search pattern. A nil *Pattern
// matches everything.
type Pattern struct {
	re     *regexp.Regexp
	source string
	regex  bool
}

// CompilePattern builds a substring pattern from text typed by the user. The
// text is normalized the same way as display names, so "josé" and "jose" are
// equivalent. Blank text returns nil.
func CompilePattern(text string) *Pattern {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	return &Pattern{
		re:     regexp.MustCompile("(?i)" + regexp.QuoteMeta(textnorm.Normalize(text))),
		source: text,
	}
}

// CompileRegexPattern compiles a user-provided regular expression.
func CompileRegexPattern(expr string) (*Pattern, error) {
	if expr == "" {
		return nil, nil
	}
	re, err := regexp.Compile("(?i)" + expr)
	if err != nil {
		return nil, fmt.Errorf("failed to compile search pattern: %w", err)
	}
	return &Pattern{re: re, source: expr, regex: true}, nil
}

func (p *Pattern) MatchString(s string) bool {
	if p == nil {
		return true
	}
	return p.re.MatchString(s)
}

// IsRegex reports whether the pattern was compiled from a user regular
// expression rather than plain search text.
func (p *Pattern) IsRegex() bool {
	return p != nil && p.regex
}

func (p *Pattern) String() string {
	if p == nil {
		return ""
	}
	return p.source
}
