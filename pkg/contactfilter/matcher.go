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
	"strings"

	"go.mau.fi/communicator/pkg/contactlist"
	"go.mau.fi/communicator/pkg/textnorm"
)

// Options are the configuration flags that decide which fields take part in
// matching.
type Options struct {
	// CallingEnabled lets phone number details match.
	CallingEnabled bool
	// QAMode matches every protocol address, even ones the presence feature
	// doesn't show to the user.
	QAMode bool
}

// MatchContact reports whether the meta contact matches the pattern. Hidden
// contacts never match.
func MatchContact(pattern *Pattern, mc contactlist.MetaContact, opts Options) bool {
	if mc.Hidden() {
		return false
	} else if pattern == nil {
		return true
	}
	if pattern.MatchString(textnorm.Normalize(mc.DisplayName())) {
		return true
	}
	for _, contact := range mc.Contacts() {
		if matchProtocolContact(pattern, &contact, opts) {
			return true
		}
	}
	return false
}

func matchProtocolContact(pattern *Pattern, contact *contactlist.Contact, opts Options) bool {
	if pattern.MatchString(textnorm.Normalize(contact.DisplayName)) {
		return true
	}
	if contact.AddressDisplayable || opts.QAMode {
		if pattern.MatchString(contact.DisplayName) || pattern.MatchString(contact.Address) {
			return true
		}
	}
	for _, detail := range contact.Details {
		value, ok := searchableDetailValue(detail, opts)
		if ok && pattern.MatchString(value) {
			return true
		}
	}
	return false
}

func searchableDetailValue(detail contactlist.Detail, opts Options) (string, bool) {
	switch detail.Category {
	case contactlist.DetailName:
		return detail.Value, true
	case contactlist.DetailPhone:
		return detail.Value, opts.CallingEnabled
	case contactlist.DetailEmail, contactlist.DetailIM:
		// Only the trailing domain is stripped, the local part may contain '@'.
		if idx := strings.LastIndexByte(detail.Value, '@'); idx >= 0 {
			return detail.Value[:idx], true
		}
		return detail.Value, true
	default:
		return "", false
	}
}

// MatchGroup reports whether any direct child of the group matches. Subgroups
// are not inspected.
func MatchGroup(pattern *Pattern, group contactlist.MetaContactGroup, opts Options) bool {
	for _, mc := range group.ChildContacts() {
		if MatchContact(pattern, mc, opts) {
			return true
		}
	}
	return false
}
