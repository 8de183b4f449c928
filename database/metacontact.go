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
	"go.mau.fi/util/dbutil"

	"go.mau.fi/communicator/pkg/contactlist"
)

type MetaContactQuery struct {
	db *dbutil.Database
}

type MetaContact struct {
	ID          uuid.UUID
	GroupID     uuid.NullUUID
	DisplayName string
	Hidden      bool
	Position    int

	Contacts []contactlist.Contact
}

const (
	getAllMetaContactsQuery = `
		SELECT id, group_id, display_name, hidden, position FROM meta_contact ORDER BY position
	`
	getAllProtocolContactsQuery = `
		SELECT meta_contact_id, address, display_name, protocol, address_displayable, details
		FROM protocol_contact
		ORDER BY meta_contact_id, position
	`
	insertMetaContactQuery = `
		INSERT INTO meta_contact (id, group_id, display_name, hidden, position) VALUES ($1, $2, $3, $4, $5)
	`
	insertProtocolContactQuery = `
		INSERT INTO protocol_contact (meta_contact_id, address, display_name, protocol, address_displayable, details, position)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	deleteAllMetaContactsQuery     = `DELETE FROM meta_contact`
	deleteAllProtocolContactsQuery = `DELETE FROM protocol_contact`
)

func scanMetaContact(row dbutil.Scannable) (*MetaContact, error) {
	var mc MetaContact
	err := row.Scan(&mc.ID, &mc.GroupID, &mc.DisplayName, &mc.Hidden, &mc.Position)
	if err != nil {
		return nil, err
	}
	return &mc, nil
}

type protocolContactRow struct {
	metaContactID uuid.UUID
	contact       contactlist.Contact
}

func scanProtocolContact(row dbutil.Scannable) (*protocolContactRow, error) {
	var pc protocolContactRow
	err := row.Scan(
		&pc.metaContactID,
		&pc.contact.Address,
		&pc.contact.DisplayName,
		&pc.contact.Protocol,
		&pc.contact.AddressDisplayable,
		&dbutil.JSON{Data: &pc.contact.Details},
	)
	if err != nil {
		return nil, err
	}
	return &pc, nil
}

func (mcq *MetaContactQuery) GetAll(ctx context.Context) ([]*MetaContact, error) {
	rows, err := mcq.db.Query(ctx, getAllMetaContactsQuery)
	if err != nil {
		return nil, err
	}
	metaContacts, err := dbutil.NewRowIter(rows, scanMetaContact).AsList()
	if err != nil {
		return nil, fmt.Errorf("failed to scan meta contacts: %w", err)
	}
	byID := make(map[uuid.UUID]*MetaContact, len(metaContacts))
	for _, mc := range metaContacts {
		byID[mc.ID] = mc
	}

	rows, err = mcq.db.Query(ctx, getAllProtocolContactsQuery)
	if err != nil {
		return nil, err
	}
	protocolContacts, err := dbutil.NewRowIter(rows, scanProtocolContact).AsList()
	if err != nil {
		return nil, fmt.Errorf("failed to scan protocol contacts: %w", err)
	}
	for _, pc := range protocolContacts {
		if mc, ok := byID[pc.metaContactID]; ok {
			mc.Contacts = append(mc.Contacts, pc.contact)
		}
	}
	return metaContacts, nil
}

func (mcq *MetaContactQuery) Insert(ctx context.Context, mc *MetaContact) error {
	_, err := mcq.db.Exec(ctx, insertMetaContactQuery, mc.ID, mc.GroupID, mc.DisplayName, mc.Hidden, mc.Position)
	if err != nil {
		return err
	}
	for i, contact := range mc.Contacts {
		details := contact.Details
		if details == nil {
			details = []contactlist.Detail{}
		}
		_, err = mcq.db.Exec(
			ctx, insertProtocolContactQuery,
			mc.ID, contact.Address, contact.DisplayName, contact.Protocol, contact.AddressDisplayable,
			&dbutil.JSON{Data: details}, i,
		)
		if err != nil {
			return fmt.Errorf("failed to insert protocol contact %s: %w", contact.Address, err)
		}
	}
	return nil
}

func (mcq *MetaContactQuery) DeleteAll(ctx context.Context) error {
	_, err := mcq.db.Exec(ctx, deleteAllProtocolContactsQuery)
	if err != nil {
		return err
	}
	_, err = mcq.db.Exec(ctx, deleteAllMetaContactsQuery)
	return err
}
