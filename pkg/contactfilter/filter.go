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

	"go.mau.fi/communicator/pkg/contactlist"
)

// ContactFilter decides which contacts and groups are shown.
type ContactFilter interface {
	IsMatching(mc contactlist.MetaContact) bool
	IsMatchingGroup(group contactlist.MetaContactGroup) bool
	// Kind is a short fixed name for the type of filter, usable as a metric label.
	Kind() string
	String() string
}

const (
	KindSearch   = "search"
	KindRegex    = "regex"
	KindPresence = "presence"
)

// SearchFilter matches contacts against a user search pattern.
type SearchFilter struct {
	Pattern *Pattern
	Options Options
}

var _ ContactFilter = (*SearchFilter)(nil)

func NewSearchFilter(text string, opts Options) *SearchFilter {
	return &SearchFilter{Pattern: CompilePattern(text), Options: opts}
}

func (sf *SearchFilter) IsMatching(mc contactlist.MetaContact) bool {
	return MatchContact(sf.Pattern, mc, sf.Options)
}

func (sf *SearchFilter) IsMatchingGroup(group contactlist.MetaContactGroup) bool {
	return MatchGroup(sf.Pattern, group, sf.Options)
}

func (sf *SearchFilter) Kind() string {
	if sf.Pattern.IsRegex() {
		return KindRegex
	}
	return KindSearch
}

func (sf *SearchFilter) String() string {
	return fmt.Sprintf("search(%q)", sf.Pattern.String())
}

// PresenceFilter is the default contact list view: offline contacts are only
// shown when ShowOffline is set.
type PresenceFilter struct {
	ShowOffline bool
}

var _ ContactFilter = (*PresenceFilter)(nil)

func (pf *PresenceFilter) IsMatching(mc contactlist.MetaContact) bool {
	if mc.Hidden() {
		return false
	}
	return pf.ShowOffline || mc.Presence() > contactlist.PresenceOffline
}

func (pf *PresenceFilter) IsMatchingGroup(group contactlist.MetaContactGroup) bool {
	if pf.ShowOffline {
		return true
	}
	for _, mc := range group.ChildContacts() {
		if pf.IsMatching(mc) {
			return true
		}
	}
	return false
}

func (pf *PresenceFilter) Kind() string {
	return KindPresence
}

func (pf *PresenceFilter) String() string {
	return fmt.Sprintf("presence(show_offline=%t)", pf.ShowOffline)
}
