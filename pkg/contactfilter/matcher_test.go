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

package contactfilter_test

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.mau.fi/communicator/pkg/contactfilter"
	"go.mau.fi/communicator/pkg/contactlist"
)

func addContact(t *testing.T, list *contactlist.List, parent contactlist.MetaContactGroup, info contactlist.NewMetaContact) contactlist.MetaContact {
	t.Helper()
	mc, err := list.AddMetaContact(parent, info)
	require.NoError(t, err)
	return mc
}

func TestMatchDisplayNameIgnoresDiacritics(t *testing.T) {
	list := contactlist.NewList(zerolog.Nop())
	jose := addContact(t, list, nil, contactlist.NewMetaContact{DisplayName: "José O'Brien"})

	assert.True(t, contactfilter.MatchContact(contactfilter.CompilePattern("jose obrien"), jose, contactfilter.Options{}))
	assert.True(t, contactfilter.MatchContact(contactfilter.CompilePattern("JOSÉ"), jose, contactfilter.Options{}))
	assert.True(t, contactfilter.MatchContact(contactfilter.CompilePattern("o'brien"), jose, contactfilter.Options{}))
	assert.False(t, contactfilter.MatchContact(contactfilter.CompilePattern("maria"), jose, contactfilter.Options{}))
}

func TestMatchHiddenNeverMatches(t *testing.T) {
	list := contactlist.NewList(zerolog.Nop())
	hidden := addContact(t, list, nil, contactlist.NewMetaContact{DisplayName: "Secret Agent", Hidden: true})
	visible := addContact(t, list, nil, contactlist.NewMetaContact{DisplayName: "Public Person"})

	for _, pattern := range []*contactfilter.Pattern{nil, contactfilter.CompilePattern("secret"), contactfilter.CompilePattern("")} {
		assert.False(t, contactfilter.MatchContact(pattern, hidden, contactfilter.Options{QAMode: true, CallingEnabled: true}))
	}
	assert.True(t, contactfilter.MatchContact(nil, visible, contactfilter.Options{}))
}

func TestMatchProtocolContactFields(t *testing.T) {
	list := contactlist.NewList(zerolog.Nop())
	mc := addContact(t, list, nil, contactlist.NewMetaContact{
		DisplayName: "Team Lead",
		Contacts: []contactlist.Contact{{
			Address:            "sip:4711@pbx.example.com",
			DisplayName:        "Zoë Kraus",
			AddressDisplayable: false,
			Details: []contactlist.Detail{
				{Category: contactlist.DetailPhone, Value: "+49 30 123456"},
				{Category: contactlist.DetailEmail, Value: "zkraus@corp.example"},
				{Category: contactlist.DetailIM, Value: "zoe.k@jabber.example"},
				{Category: contactlist.DetailIM, Value: "kraus@pbx.example@gateway.example"},
				{Category: contactlist.DetailOther, Value: "Building 7"},
			},
		}},
	})
	opts := contactfilter.Options{}
	match := func(text string, opts contactfilter.Options) bool {
		return contactfilter.MatchContact(contactfilter.CompilePattern(text), mc, opts)
	}

	assert.True(t, match("zoe", opts), "normalized protocol display name")
	assert.False(t, match("4711", opts), "address is hidden by the presence feature")
	assert.True(t, match("4711", contactfilter.Options{QAMode: true}), "QA mode matches hidden addresses")
	assert.False(t, match("123456", opts), "phone is excluded when calling is disabled")
	assert.True(t, match("123456", contactfilter.Options{CallingEnabled: true}))
	assert.True(t, match("zkraus", opts))
	assert.False(t, match("corp.example", opts), "email domain is stripped")
	assert.True(t, match("zoe.k", opts))
	assert.False(t, match("jabber.example", opts), "IM domain is stripped")
	assert.True(t, match("pbx.example", opts), "only the trailing domain is stripped")
	assert.False(t, match("gateway", opts))
	assert.False(t, match("building", opts), "other details are not searchable")
}

func TestMatchDisplayableAddress(t *testing.T) {
	list := contactlist.NewList(zerolog.Nop())
	mc := addContact(t, list, nil, contactlist.NewMetaContact{
		DisplayName: "Frank",
		Contacts: []contactlist.Contact{{
			Address:            "frank@xmpp.example",
			DisplayName:        "Frankie",
			AddressDisplayable: true,
		}},
	})
	assert.True(t, contactfilter.MatchContact(contactfilter.CompilePattern("xmpp.example"), mc, contactfilter.Options{}))
}

func TestMatchGroup(t *testing.T) {
	list := contactlist.NewList(zerolog.Nop())
	mixed, err := list.AddGroup(nil, "Mixed")
	require.NoError(t, err)
	none, err := list.AddGroup(nil, "None")
	require.NoError(t, err)
	nested, err := list.AddGroup(none, "Nested")
	require.NoError(t, err)

	addContact(t, list, mixed, contactlist.NewMetaContact{DisplayName: "Anna"})
	addContact(t, list, mixed, contactlist.NewMetaContact{DisplayName: "Boris"})
	addContact(t, list, none, contactlist.NewMetaContact{DisplayName: "Boris"})
	addContact(t, list, nested, contactlist.NewMetaContact{DisplayName: "Anna"})

	pattern := contactfilter.CompilePattern("anna")
	assert.True(t, contactfilter.MatchGroup(pattern, mixed, contactfilter.Options{}))
	assert.False(t, contactfilter.MatchGroup(pattern, none, contactfilter.Options{}), "subgroups are not inspected")
	assert.True(t, contactfilter.MatchGroup(pattern, nested, contactfilter.Options{}))
}

func TestCompileRegexPattern(t *testing.T) {
	pattern, err := contactfilter.CompileRegexPattern("^a.*n$")
	require.NoError(t, err)
	assert.True(t, pattern.MatchString("ALAN"))
	assert.False(t, pattern.MatchString("alana"))

	_, err = contactfilter.CompileRegexPattern("(")
	assert.Error(t, err)

	pattern, err = contactfilter.CompileRegexPattern("")
	require.NoError(t, err)
	assert.Nil(t, pattern)
	assert.True(t, pattern.MatchString("anything"))
}

func TestPresenceFilter(t *testing.T) {
	list := contactlist.NewList(zerolog.Nop())
	grp, err := list.AddGroup(nil, "Group")
	require.NoError(t, err)
	online := addContact(t, list, grp, contactlist.NewMetaContact{
		DisplayName: "Online",
		Contacts:    []contactlist.Contact{{Address: "on", Presence: contactlist.PresenceOnline}},
	})
	offline := addContact(t, list, nil, contactlist.NewMetaContact{
		DisplayName: "Offline",
		Contacts:    []contactlist.Contact{{Address: "off"}},
	})

	filter := &contactfilter.PresenceFilter{}
	assert.True(t, filter.IsMatching(online))
	assert.False(t, filter.IsMatching(offline))
	assert.True(t, filter.IsMatchingGroup(grp))

	filter.ShowOffline = true
	assert.True(t, filter.IsMatching(offline))

	require.NoError(t, list.SetHidden(online, true))
	assert.False(t, filter.IsMatching(online))
}

func TestFilterKind(t *testing.T) {
	assert.Equal(t, contactfilter.KindSearch, contactfilter.NewSearchFilter("alic", contactfilter.Options{}).Kind())
	pattern, err := contactfilter.CompileRegexPattern("^al")
	require.NoError(t, err)
	assert.Equal(t, contactfilter.KindRegex, (&contactfilter.SearchFilter{Pattern: pattern}).Kind())
	assert.Equal(t, contactfilter.KindPresence, (&contactfilter.PresenceFilter{}).Kind())
}
