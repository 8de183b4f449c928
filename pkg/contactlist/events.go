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

type Event interface {
	isContactListEvent()
	// EventType is a short name used for logging and metrics.
	EventType() string
}

type EventHandler func(evt Event)

type MetaContactAdded struct {
	MetaContact MetaContact
	Parent      MetaContactGroup
}

type MetaContactRemoved struct {
	MetaContact MetaContact
	OldParent   MetaContactGroup
}

type MetaContactMoved struct {
	MetaContact MetaContact
	OldParent   MetaContactGroup
	NewParent   MetaContactGroup
}

// MetaContactModified is sent when protocol contacts, details or the hidden
// flag of a meta contact change.
type MetaContactModified struct {
	MetaContact MetaContact
	Field       string
}

type MetaContactRenamed struct {
	MetaContact MetaContact
	OldName     string
	NewName     string
}

type PresenceChanged struct {
	MetaContact MetaContact
	Address     string
	OldStatus   PresenceStatus
	NewStatus   PresenceStatus
}

type GroupAdded struct {
	Group MetaContactGroup
}

type GroupRemoved struct {
	Group     MetaContactGroup
	OldParent MetaContactGroup
}

type GroupRenamed struct {
	Group   MetaContactGroup
	OldName string
}

func (*MetaContactAdded) isContactListEvent()    {}
func (*MetaContactRemoved) isContactListEvent()  {}
func (*MetaContactMoved) isContactListEvent()    {}
func (*MetaContactModified) isContactListEvent() {}
func (*MetaContactRenamed) isContactListEvent()  {}
func (*PresenceChanged) isContactListEvent()     {}
func (*GroupAdded) isContactListEvent()          {}
func (*GroupRemoved) isContactListEvent()        {}
func (*GroupRenamed) isContactListEvent()        {}

func (*MetaContactAdded) EventType() string    { return "contact_added" }
func (*MetaContactRemoved) EventType() string  { return "contact_removed" }
func (*MetaContactMoved) EventType() string    { return "contact_moved" }
func (*MetaContactModified) EventType() string { return "contact_modified" }
func (*MetaContactRenamed) EventType() string  { return "contact_renamed" }
func (*PresenceChanged) EventType() string     { return "presence_changed" }
func (*GroupAdded) EventType() string          { return "group_added" }
func (*GroupRemoved) EventType() string        { return "group_removed" }
func (*GroupRenamed) EventType() string        { return "group_renamed" }
