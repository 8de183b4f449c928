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

package database_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mau.fi/util/dbutil"

	"go.mau.fi/communicator/database"
	"go.mau.fi/communicator/pkg/contactlist"
)

func openTestDB(t *testing.T) *database.Database {
	t.Helper()
	db, err := database.Open(dbutil.Config{PoolConfig: dbutil.PoolConfig{
		Type:         "sqlite3",
		URI:          "file:" + filepath.Join(t.TempDir(), "test.db") + "?_txlock=immediate",
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	}}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})
	require.NoError(t, db.Upgrade(context.Background()))
	return db
}

func TestSaveAndLoadList(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	list := contactlist.NewList(zerolog.Nop())
	friends, err := list.AddGroup(nil, "Friends")
	require.NoError(t, err)
	closeFriends, err := list.AddGroup(friends, "Close")
	require.NoError(t, err)
	alice, err := list.AddMetaContact(closeFriends, contactlist.NewMetaContact{
		DisplayName: "Alice",
		Contacts: []contactlist.Contact{{
			Address:            "alice@jabber.example",
			DisplayName:        "alice",
			Protocol:           "jabber",
			AddressDisplayable: true,
			Details:            []contactlist.Detail{{Category: contactlist.DetailPhone, Value: "+15550100"}},
		}, {
			Address:  "sip:alice@voip.example",
			Protocol: "sip",
			Details:  []contactlist.Detail{{Category: contactlist.DetailName, Value: "Alice"}},
		}},
	})
	require.NoError(t, err)
	bob, err := list.AddMetaContact(nil, contactlist.NewMetaContact{
		DisplayName: "Bob",
		Hidden:      true,
		Contacts:    []contactlist.Contact{{Address: "bob@example.com", Protocol: "email"}},
	})
	require.NoError(t, err)

	require.NoError(t, db.SaveList(ctx, list))
	// Saving twice replaces the previous snapshot.
	require.NoError(t, db.SaveList(ctx, list))

	restored := contactlist.NewList(zerolog.Nop())
	require.NoError(t, db.LoadList(ctx, restored))

	restoredAlice, ok := restored.GetMetaContact(alice.ID())
	require.True(t, ok)
	assert.Equal(t, "Alice", restoredAlice.DisplayName())
	assert.Equal(t, closeFriends.ID(), restoredAlice.ParentGroup().ID())
	assert.Equal(t, friends.ID(), restoredAlice.ParentGroup().ParentGroup().ID())
	assert.Equal(t, alice.Contacts(), restoredAlice.Contacts())

	restoredBob, ok := restored.GetMetaContact(bob.ID())
	require.True(t, ok)
	assert.True(t, restoredBob.Hidden())
	assert.Equal(t, restored.Root().ID(), restoredBob.ParentGroup().ID())
	assert.Len(t, restored.AllMetaContacts(), 2)
}

func TestLoadEmpty(t *testing.T) {
	db := openTestDB(t)
	list := contactlist.NewList(zerolog.Nop())
	require.NoError(t, db.LoadList(context.Background(), list))
	assert.Empty(t, list.AllMetaContacts())
}

func TestSaveKeepsUnnamedContactUnnamed(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	list := contactlist.NewList(zerolog.Nop())
	unnamed, err := list.AddMetaContact(nil, contactlist.NewMetaContact{
		Contacts: []contactlist.Contact{{Address: "carol@jabber.example", Protocol: "jabber"}},
	})
	require.NoError(t, err)
	require.NoError(t, db.SaveList(ctx, list))

	restored := contactlist.NewList(zerolog.Nop())
	require.NoError(t, db.LoadList(ctx, restored))
	restoredUnnamed, ok := restored.GetMetaContact(unnamed.ID())
	require.True(t, ok)
	name, err := restored.StoredDisplayName(restoredUnnamed)
	require.NoError(t, err)
	assert.Empty(t, name)

	// A later rename of the protocol contact still shows through.
	require.NoError(t, restored.RemoveContact(restoredUnnamed, "carol@jabber.example"))
	require.NoError(t, restored.AddContact(restoredUnnamed, contactlist.Contact{
		Address:     "carol@jabber.example",
		DisplayName: "Carol",
		Protocol:    "jabber",
	}))
	assert.Equal(t, "Carol", restoredUnnamed.DisplayName())
}
