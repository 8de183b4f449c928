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

	"github.com/google/uuid"
	"go.mau.fi/util/dbutil"
)

type GroupQuery struct {
	db *dbutil.Database
}

// Group is a stored contact group. A nil ParentID means the group is a
// direct child of the root group.
type Group struct {
	ID       uuid.UUID
	ParentID uuid.NullUUID
	Name     string
	Position int
}

const (
	getAllGroupsQuery = `
		SELECT id, parent_id, name, position FROM contact_group ORDER BY position
	`
	insertGroupQuery = `
		INSERT INTO contact_group (id, parent_id, name, position) VALUES ($1, $2, $3, $4)
	`
	deleteAllGroupsQuery = `DELETE FROM contact_group`
)

func scanGroup(row dbutil.Scannable) (*Group, error) {
	var grp Group
	err := row.Scan(&grp.ID, &grp.ParentID, &grp.Name, &grp.Position)
	if err != nil {
		return nil, err
	}
	return &grp, nil
}

// GetAll returns all groups ordered so that parents come before their
// children.
func (gq *GroupQuery) GetAll(ctx context.Context) ([]*Group, error) {
	rows, err := gq.db.Query(ctx, getAllGroupsQuery)
	if err != nil {
		return nil, err
	}
	return dbutil.NewRowIter(rows, scanGroup).AsList()
}

func (gq *GroupQuery) Insert(ctx context.Context, grp *Group) error {
	_, err := gq.db.Exec(ctx, insertGroupQuery, grp.ID, grp.ParentID, grp.Name, grp.Position)
	return err
}

func (gq *GroupQuery) DeleteAll(ctx context.Context) error {
	_, err := gq.db.Exec(ctx, deleteAllGroupsQuery)
	return err
}
