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

package contactlist_test

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.mau.fi/communicator/pkg/contactlist"
)

func TestListStructureAndEvents(t *testing.T) {
	list := contactlist.NewList(zerolog.Nop())
	var events []string
	list.AddEventHandler(func(evt contactlist.Event) {
		events = append(events, evt.EventType())
	})

	friends, err := list.AddGroup(nil, "Friends")
	require.NoError(t, err)
	work, err := list.AddGroup(nil, "Work")
	require.NoError(t, err)

	alice, err := list.AddMetaContact(friends, contactlist.NewMetaContact{
		DisplayName: "Alice",
		Contacts: []contactlist.Contact{
			{Address: "alice@jabber.example", Protocol: "jabber"},
		},
	})
	require.NoError(t, err)
	bob, err := list.AddMetaContact(nil, contactlist.NewMetaContact{
		Contacts: []contactlist.Contact{{Address: "sip:bob@example.com"}},
	})
	require.NoError(t, err)

	assert.Equal(t, "sip:bob@example.com", bob.DisplayName())
	assert.Equal(t, friends.ID(), alice.ParentGroup().ID())
	assert.Len(t, list.Root().Subgroups(), 2)
	assert.Len(t, list.Root().ChildContacts(), 1)

	require.NoError(t, list.MoveMetaContact(alice, work))
	assert.Equal(t, work.ID(), alice.ParentGroup().ID())
	assert.Empty(t, friends.ChildContacts())

	require.NoError(t, list.SetPresence(alice, "alice@jabber.example", contactlist.PresenceOnline))
	assert.Equal(t, contactlist.PresenceOnline, alice.Presence())
	assert.ErrorIs(t, list.SetPresence(alice, "nobody", contactlist.PresenceOnline), contactlist.ErrAddressNotFound)

	require.NoError(t, list.RenameMetaContact(alice, "Alice A."))
	assert.Equal(t, "Alice A.", alice.DisplayName())

	require.NoError(t, list.RemoveMetaContact(context.Background(), bob))
	assert.Nil(t, bob.ParentGroup())
	assert.ErrorIs(t, list.RemoveMetaContact(context.Background(), bob), contactlist.ErrContactNotFound)

	assert.Equal(t, []string{
		"group_added", "group_added",
		"contact_added", "contact_added",
		"contact_moved",
		"presence_changed",
		"contact_renamed",
		"contact_removed",
	}, events)
}

func TestListRemoveGroup(t *testing.T) {
	list := contactlist.NewList(zerolog.Nop())
	grp, err := list.AddGroup(nil, "Temp")
	require.NoError(t, err)
	sub, err := list.AddGroup(grp, "Nested")
	require.NoError(t, err)
	mc, err := list.AddMetaContact(sub, contactlist.NewMetaContact{DisplayName: "Carol"})
	require.NoError(t, err)

	assert.ErrorIs(t, list.RemoveGroup(list.Root()), contactlist.ErrRootGroup)
	require.NoError(t, list.RemoveGroup(grp))

	_, found := list.GetMetaContact(mc.ID())
	assert.False(t, found)
	_, found = list.GetGroup(sub.ID())
	assert.False(t, found)
	assert.Empty(t, list.AllMetaContacts())
}

func TestListContactsAreCopies(t *testing.T) {
	list := contactlist.NewList(zerolog.Nop())
	mc, err := list.AddMetaContact(nil, contactlist.NewMetaContact{
		DisplayName: "Dave",
		Contacts: []contactlist.Contact{{
			Address: "dave@example.org",
			Details: []contactlist.Detail{{Category: contactlist.DetailEmail, Value: "dave@example.org"}},
		}},
	})
	require.NoError(t, err)

	contacts := mc.Contacts()
	contacts[0].Details[0].Value = "changed"
	assert.Equal(t, "dave@example.org", mc.Contacts()[0].Details[0].Value)

	found, ok := list.FindByAddress("dave@example.org")
	require.True(t, ok)
	assert.Equal(t, mc.ID(), found.ID())
}

func TestRemoveEventHandler(t *testing.T) {
	list := contactlist.NewList(zerolog.Nop())
	calls := 0
	handle := list.AddEventHandler(func(evt contactlist.Event) { calls++ })
	_, _ = list.AddGroup(nil, "A")
	list.RemoveEventHandler(handle)
	_, _ = list.AddGroup(nil, "B")
	assert.Equal(t, 1, calls)
}

func TestListRejectsDuplicateAddress(t *testing.T) {
	list := contactlist.NewList(zerolog.Nop())
	_, err := list.AddMetaContact(nil, contactlist.NewMetaContact{
		DisplayName: "Erin",
		Contacts: []contactlist.Contact{
			{Address: "erin@jabber.example", Protocol: "jabber"},
			{Address: "erin@jabber.example", Protocol: "jabber"},
		},
	})
	assert.ErrorIs(t, err, contactlist.ErrDuplicateAddress)
	assert.Empty(t, list.AllMetaContacts())

	erin, err := list.AddMetaContact(nil, contactlist.NewMetaContact{
		DisplayName: "Erin",
		Contacts:    []contactlist.Contact{{Address: "erin@jabber.example", Protocol: "jabber"}},
	})
	require.NoError(t, err)
	err = list.AddContact(erin, contactlist.Contact{Address: "erin@jabber.example", Protocol: "jabber"})
	assert.ErrorIs(t, err, contactlist.ErrDuplicateAddress)
	require.NoError(t, list.AddContact(erin, contactlist.Contact{Address: "sip:erin@voip.example", Protocol: "sip"}))
	assert.Len(t, erin.Contacts(), 2)

	// Presence updates by address reach the one protocol contact.
	require.NoError(t, list.SetPresence(erin, "erin@jabber.example", contactlist.PresenceAway))
	assert.Equal(t, contactlist.PresenceAway, erin.Presence())
}
