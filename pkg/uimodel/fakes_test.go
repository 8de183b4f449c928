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
	"context"
	"sync"

	"github.com/google/uuid"

	"go.mau.fi/communicator/pkg/contactlist"
)

type fakeGroup struct {
	id        uuid.UUID
	name      string
	parent    *fakeGroup
	contacts  []contactlist.MetaContact
	subgroups []*fakeGroup
}

func newFakeGroup(name string, parent *fakeGroup) *fakeGroup {
	grp := &fakeGroup{id: uuid.New(), name: name, parent: parent}
	if parent != nil {
		parent.subgroups = append(parent.subgroups, grp)
	}
	return grp
}

func (g *fakeGroup) ID() uuid.UUID { return g.id }
func (g *fakeGroup) Name() string  { return g.name }

func (g *fakeGroup) ParentGroup() contactlist.MetaContactGroup {
	if g.parent == nil {
		return nil
	}
	return g.parent
}

func (g *fakeGroup) ChildContacts() []contactlist.MetaContact {
	return g.contacts
}

func (g *fakeGroup) Subgroups() []contactlist.MetaContactGroup {
	out := make([]contactlist.MetaContactGroup, len(g.subgroups))
	for i, sub := range g.subgroups {
		out[i] = sub
	}
	return out
}

type fakeContact struct {
	id         uuid.UUID
	name       string
	presence   contactlist.PresenceStatus
	parent     *fakeGroup
	orphaned   bool
	panicOnUse bool
}

func (g *fakeGroup) addContact(name string) *fakeContact {
	mc := &fakeContact{id: uuid.New(), name: name, parent: g}
	g.contacts = append(g.contacts, mc)
	return mc
}

func (c *fakeContact) ID() uuid.UUID { return c.id }

func (c *fakeContact) DisplayName() string {
	if c.panicOnUse {
		panic("corrupt meta contact")
	}
	return c.name
}

func (c *fakeContact) Hidden() bool                         { return false }
func (c *fakeContact) Contacts() []contactlist.Contact      { return nil }
func (c *fakeContact) Presence() contactlist.PresenceStatus { return c.presence }

func (c *fakeContact) ParentGroup() contactlist.MetaContactGroup {
	if c.orphaned || c.parent == nil {
		return nil
	}
	return c.parent
}

type fakeService struct {
	root *fakeGroup

	lock    sync.Mutex
	removed []uuid.UUID
}

var _ contactlist.Service = (*fakeService)(nil)

func (fs *fakeService) Root() contactlist.MetaContactGroup            { return fs.root }
func (fs *fakeService) AddEventHandler(contactlist.EventHandler) int { return 0 }
func (fs *fakeService) RemoveEventHandler(int)                       {}

func (fs *fakeService) RemoveMetaContact(_ context.Context, mc contactlist.MetaContact) error {
	fs.lock.Lock()
	fs.removed = append(fs.removed, mc.ID())
	fs.lock.Unlock()
	return nil
}

func (fs *fakeService) Removed() []uuid.UUID {
	fs.lock.Lock()
	defer fs.lock.Unlock()
	return append([]uuid.UUID(nil), fs.removed...)
}

// matchAll shows every contact and no empty groups. If gate is set,
// IsMatching signals entered (when set) and blocks until gate is closed.
type matchAll struct {
	gate    chan struct{}
	entered chan struct{}
}

func (ma *matchAll) IsMatching(contactlist.MetaContact) bool {
	if ma.gate != nil {
		if ma.entered != nil {
			select {
			case ma.entered <- struct{}{}:
			default:
			}
		}
		<-ma.gate
	}
	return true
}

func (ma *matchAll) IsMatchingGroup(contactlist.MetaContactGroup) bool { return false }
func (ma *matchAll) Kind() string                                      { return "all" }
func (ma *matchAll) String() string                                    { return "all" }
