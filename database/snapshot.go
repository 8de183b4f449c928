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

package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"go.mau.fi/communicator/pkg/contactlist"
)

func parentID(grp contactlist.MetaContactGroup) uuid.NullUUID {
	if grp == nil || grp.ParentGroup() == nil {
		// The root group isn't stored.
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: grp.ID(), Valid: true}
}

// SaveList replaces the stored contact list with the contents of list.
// Presence is runtime state and isn't stored.
func (db *Database) SaveList(ctx context.Context, list *contactlist.List) error {
	return db.db.DoTxn(ctx, nil, func(ctx context.Context) error {
		if err := db.MetaContact.DeleteAll(ctx); err != nil {
			return fmt.Errorf("failed to clear meta contacts: %w", err)
		}
		if err := db.Group.DeleteAll(ctx); err != nil {
			return fmt.Errorf("failed to clear groups: %w", err)
		}
		position := 0
		var saveGroup func(grp contactlist.MetaContactGroup) error
		saveGroup = func(grp contactlist.MetaContactGroup) error {
			for _, mc := range grp.ChildContacts() {
				position++
				displayName, err := list.StoredDisplayName(mc)
				if err != nil {
					return fmt.Errorf("failed to read meta contact %s: %w", mc.ID(), err)
				}
				err = db.MetaContact.Insert(ctx, &MetaContact{
					ID:          mc.ID(),
					GroupID:     parentID(grp),
					DisplayName: displayName,
					Hidden:      mc.Hidden(),
					Position:    position,
					Contacts:    mc.Contacts(),
				})
				if err != nil {
					return fmt.Errorf("failed to save meta contact %s: %w", mc.ID(), err)
				}
			}
			for _, sub := range grp.Subgroups() {
				position++
				err := db.Group.Insert(ctx, &Group{
					ID:       sub.ID(),
					ParentID: parentID(grp),
					Name:     sub.Name(),
					Position: position,
				})
				if err != nil {
					return fmt.Errorf("failed to save group %s: %w", sub.ID(), err)
				}
				if err = saveGroup(sub); err != nil {
					return err
				}
			}
			return nil
		}
		return saveGroup(list.Root())
	})
}

// LoadList adds the stored groups and meta contacts to list.
func (db *Database) LoadList(ctx context.Context, list *contactlist.List) error {
	log := zerolog.Ctx(ctx)
	groups, err := db.Group.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load groups: %w", err)
	}
	loadedGroups := make(map[uuid.UUID]contactlist.MetaContactGroup, len(groups))
	resolve := func(id uuid.NullUUID) (contactlist.MetaContactGroup, bool) {
		if !id.Valid {
			return list.Root(), true
		}
		grp, ok := loadedGroups[id.UUID]
		return grp, ok
	}
	for _, dbGroup := range groups {
		parent, ok := resolve(dbGroup.ParentID)
		if !ok {
			log.Warn().
				Stringer("group_id", dbGroup.ID).
				Stringer("parent_id", dbGroup.ParentID.UUID).
				Msg("Skipping stored group with unknown parent")
			continue
		}
		grp, err := list.AddGroupWithID(parent, dbGroup.ID, dbGroup.Name)
		if err != nil {
			return fmt.Errorf("failed to restore group %s: %w", dbGroup.ID, err)
		}
		loadedGroups[dbGroup.ID] = grp
	}

	metaContacts, err := db.MetaContact.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load meta contacts: %w", err)
	}
	for _, dbContact := range metaContacts {
		parent, ok := resolve(dbContact.GroupID)
		if !ok {
			log.Warn().Stringer("meta_contact_id", dbContact.ID).Msg("Skipping stored meta contact with unknown group")
			continue
		}
		_, err = list.AddMetaContact(parent, contactlist.NewMetaContact{
			ID:          dbContact.ID,
			DisplayName: dbContact.DisplayName,
			Hidden:      dbContact.Hidden,
			Contacts:    dbContact.Contacts,
		})
		if err != nil {
			return fmt.Errorf("failed to restore meta contact %s: %w", dbContact.ID, err)
		}
	}
	log.Debug().Int("group_count", len(loadedGroups)).Int("meta_contact_count", len(metaContacts)).Msg("Loaded contact list")
	return nil
}
