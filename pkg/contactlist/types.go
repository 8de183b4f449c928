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

package contactlist

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

type PresenceStatus int

const (
	PresenceOffline PresenceStatus = iota
	PresenceAway
	PresenceOnline
)

func (ps PresenceStatus) String() string {
	switch ps {
	case PresenceOffline:
		return "offline"
	case PresenceAway:
		return "away"
	case PresenceOnline:
		return "online"
	default:
		return "unknown"
	}
}

func ParsePresenceStatus(val string) PresenceStatus {
	switch strings.ToLower(val) {
	case "online":
		return PresenceOnline
	case "away":
		return PresenceAway
	default:
		return PresenceOffline
	}
}

type DetailCategory string

const (
	DetailName  DetailCategory = "name"
	DetailPhone DetailCategory = "phone"
	DetailEmail DetailCategory = "email"
	DetailIM    DetailCategory = "im"
	DetailOther DetailCategory = "other"
)

// Detail is a structured server-stored field attached to a protocol contact.
type Detail struct {
	Category DetailCategory `json:"category"`
	Value    string         `json:"value"`
}

// Contact is one protocol-specific identity of a meta contact.
type Contact struct {
	Address     string
	DisplayName string
	Protocol    string
	// AddressDisplayable is set when the account's presence feature shows the
	// address to the user.
	AddressDisplayable bool
	Presence           PresenceStatus
	Details            []Detail
}

// MetaContact groups the protocol contacts of one person.
type MetaContact interface {
	ID() uuid.UUID
	DisplayName() string
	Hidden() bool
	Contacts() []Contact
	// ParentGroup returns nil for entities that are no longer in any group.
	ParentGroup() MetaContactGroup
	Presence() PresenceStatus
}

type MetaContactGroup interface {
	ID() uuid.UUID
	Name() string
	// ParentGroup returns nil for the root group.
	ParentGroup() MetaContactGroup
	ChildContacts() []MetaContact
	Subgroups() []MetaContactGroup
}

// Service is the contact list as seen by the display layer.
type Service interface {
	Root() MetaContactGroup
	AddEventHandler(handler EventHandler) int
	RemoveEventHandler(handle int)
	RemoveMetaContact(ctx context.Context, mc MetaContact) error
}

// HighestPresence returns the best presence among the given contacts.
func HighestPresence(contacts []Contact) PresenceStatus {
	best := PresenceOffline
	for _, c := range contacts {
		if c.Presence > best {
			best = c.Presence
		}
	}
	return best
}
