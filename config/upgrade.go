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

package config

import (
	up "go.mau.fi/util/configupgrade"
	"go.mau.fi/util/random"
)

func DoUpgrade(helper *up.Helper) {
	helper.Copy(up.Str, "database", "type")
	helper.Copy(up.Str, "database", "uri")
	helper.Copy(up.Int, "database", "max_open_conns")
	helper.Copy(up.Int, "database", "max_idle_conns")
	helper.Copy(up.Str|up.Null, "database", "max_conn_idle_time")
	helper.Copy(up.Str|up.Null, "database", "max_conn_lifetime")

	helper.Copy(up.Bool, "contact_list", "calling_enabled")
	helper.Copy(up.Bool, "contact_list", "qa_mode")
	helper.Copy(up.Bool, "contact_list", "show_offline")
	helper.Copy(up.Int, "contact_list", "direct_insert_limit")
	helper.Copy(up.Str, "contact_list", "phone_region")

	helper.Copy(up.Str, "notifications", "backend")
	helper.Copy(up.Str, "notifications", "window")
	helper.Copy(up.Int, "notifications", "max_repeats")
	helper.Copy(up.Str, "notifications", "mqtt", "broker")
	helper.Copy(up.Str|up.Null, "notifications", "mqtt", "client_id")
	helper.Copy(up.Str, "notifications", "mqtt", "topic")
	helper.Copy(up.Str|up.Null, "notifications", "mqtt", "username")
	helper.Copy(up.Str|up.Null, "notifications", "mqtt", "password")
	helper.Copy(up.Bool, "notifications", "mqtt", "use_tls")
	helper.Copy(up.Int, "notifications", "mqtt", "qos")

	helper.Copy(up.Str|up.Null, "devices", "inventory_file")

	helper.Copy(up.Str|up.Null, "api", "listen")
	if secret, ok := helper.Get(up.Str, "api", "shared_secret"); !ok || secret == "generate" {
		helper.Set(up.Str, random.String(64), "api", "shared_secret")
	} else {
		helper.Copy(up.Str, "api", "shared_secret")
	}
	helper.Copy(up.Bool, "api", "public_metrics")

	helper.Copy(up.Map, "logging")
}

var SpacedBlocks = [][]string{
	{"contact_list"},
	{"notifications"},
	{"devices"},
	{"api"},
	{"logging"},
}

var Upgrader = &up.StructUpgrader{
	SimpleUpgrader: up.SimpleUpgrader(DoUpgrade),
	Blocks:         SpacedBlocks,
	Base:           ExampleConfig,
}
