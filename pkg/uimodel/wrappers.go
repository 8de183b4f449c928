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

package uimodel

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/nyaruka/phonenumbers"
	"github.com/rs/zerolog"

	"go.mau.fi/communicator/pkg/contactlist"
)

// UIContact exposes a meta contact to the display tree.
type UIContact struct {
	metaContact contactlist.MetaContact

	// only accessed on the dispatcher goroutine
	node *Node
}

func (c *UIContact) MetaContact() contactlist.MetaContact {
	return c.metaContact
}

func (c *UIContact) DisplayName() string {
	return c.metaContact.DisplayName()
}

// Node returns the tree node of the contact, or nil if it isn't displayed.
// Must be called on the dispatcher goroutine.
func (c *UIContact) Node() *Node {
	return c.node
}

// DisplayDetails returns the details of all protocol contacts in the form
// they're shown in the contact tooltip. Phone numbers without a country code
// are read as numbers of phoneRegion.
func (c *UIContact) DisplayDetails(log zerolog.Logger, phoneRegion string) []string {
	var output []string
	for _, contact := range c.metaContact.Contacts() {
		for _, detail := range contact.Details {
			value := detail.Value
			if detail.Category == contactlist.DetailPhone {
				formatted, err := FormatPhoneNumber(value, phoneRegion)
				if err != nil {
					log.Warn().Err(err).
						Str("address", contact.Address).
						Str("phone_number", value).
						Msg("Failed to parse phone number, displaying raw value")
				} else {
					value = formatted
				}
			}
			output = append(output, fmt.Sprintf("%s: %s", detail.Category, value))
		}
	}
	return output
}

// UIGroup exposes a contact group to the display tree.
type UIGroup struct {
	group contactlist.MetaContactGroup

	// only accessed on the dispatcher goroutine
	node *Node
}

func (g *UIGroup) Group() contactlist.MetaContactGroup {
	return g.group
}

func (g *UIGroup) Name() string {
	return g.group.Name()
}

// Node must be called on the dispatcher goroutine.
func (g *UIGroup) Node() *Node {
	return g.node
}

var ErrInvalidPhoneNumber = errors.New("invalid phone number")

// FormatPhoneNumber formats a phone number in the international format.
// defaultRegion is a two-letter region code.
func FormatPhoneNumber(raw, defaultRegion string) (string, error) {
	num, err := phonenumbers.Parse(raw, defaultRegion)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidPhoneNumber, err)
	}
	return phonenumbers.Format(num, phonenumbers.INTERNATIONAL), nil
}

// entityLocks hands out one mutex per entity ID. Entries are dropped once no
// goroutine holds or waits for them.
type entityLocks struct {
	lock    sync.Mutex
	entries map[uuid.UUID]*entityLock
}

type entityLock struct {
	sync.Mutex
	refs int
}

func newEntityLocks() *entityLocks {
	return &entityLocks{entries: make(map[uuid.UUID]*entityLock)}
}

func (el *entityLocks) Lock(id uuid.UUID) (unlock func()) {
	el.lock.Lock()
	entry, ok := el.entries[id]
	if !ok {
		entry = &entityLock{}
		el.entries[id] = entry
	}
	entry.refs++
	el.lock.Unlock()

	entry.Lock()
	return func() {
		entry.Unlock()
		el.lock.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(el.entries, id)
		}
		el.lock.Unlock()
	}
}
