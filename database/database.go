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

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"go.mau.fi/util/dbutil"

	"go.mau.fi/communicator/database/upgrades"
)

// Database stores snapshots of the reference contact list.
type Database struct {
	db *dbutil.Database

	Group       *GroupQuery
	MetaContact *MetaContactQuery
}

func New(baseDB *dbutil.Database, log zerolog.Logger) *Database {
	db := &Database{
		db: baseDB.Child("communicator_version", upgrades.Table, dbutil.ZeroLogger(log)),
	}
	db.Group = &GroupQuery{db: db.db}
	db.MetaContact = &MetaContactQuery{db: db.db}
	return db
}

// Open connects to the database described by cfg.
func Open(cfg dbutil.Config, log zerolog.Logger) (*Database, error) {
	baseDB, err := dbutil.NewFromConfig("communicator", cfg, dbutil.ZeroLogger(log))
	if err != nil {
		return nil, err
	}
	return New(baseDB, log), nil
}

func (db *Database) Upgrade(ctx context.Context) error {
	return db.db.Upgrade(ctx)
}

func (db *Database) Close() error {
	return db.db.Close()
}
