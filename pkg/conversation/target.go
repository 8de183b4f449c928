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

// Package conversation resolves the things a conversation can be opened with.
package conversation

import (
	"errors"
	"fmt"
	"strings"

	"go.mau.fi/communicator/pkg/contactlist"
)

var ErrUnsupportedTarget = errors.New("unsupported conversation target")

type Kind int

const (
	KindMetaContact Kind = iota + 1
	KindChatRoom
	KindAddress
)

func (k Kind) String() string {
	switch k {
	case KindMetaContact:
		return "meta_contact"
	case KindChatRoom:
		return "chat_room"
	case KindAddress:
		return "address"
	default:
		return "unknown"
	}
}

// ChatRoom is a multi-user chat the local account is a member of.
type ChatRoom struct {
	ID       string
	Name     string
	Protocol string
}

// Target is the peer of a conversation. Exactly one of MetaContact, ChatRoom
// and Address is set, as indicated by Kind.
type Target struct {
	Kind        Kind
	MetaContact contactlist.MetaContact
	ChatRoom    *ChatRoom
	Address     string
}

// NewTarget resolves the source object of a history record or contact row.
func NewTarget(source any) (Target, error) {
	switch typed := source.(type) {
	case contactlist.MetaContact:
		if typed == nil {
			break
		}
		return Target{Kind: KindMetaContact, MetaContact: typed}, nil
	case *ChatRoom:
		if typed == nil {
			break
		}
		return Target{Kind: KindChatRoom, ChatRoom: typed}, nil
	case ChatRoom:
		return Target{Kind: KindChatRoom, ChatRoom: &typed}, nil
	case string:
		address := strings.TrimSpace(typed)
		if address == "" {
			break
		}
		return Target{Kind: KindAddress, Address: address}, nil
	}
	return Target{}, fmt.Errorf("%w: %T", ErrUnsupportedTarget, source)
}

func (t Target) DisplayName() string {
	switch t.Kind {
	case KindMetaContact:
		return t.MetaContact.DisplayName()
	case KindChatRoom:
		if t.ChatRoom.Name != "" {
			return t.ChatRoom.Name
		}
		return t.ChatRoom.ID
	case KindAddress:
		return t.Address
	default:
		return ""
	}
}

// Key identifies the target across history records, e.g. for de-duplicating
// recent conversations.
func (t Target) Key() string {
	switch t.Kind {
	case KindMetaContact:
		return "meta_contact:" + t.MetaContact.ID().String()
	case KindChatRoom:
		return "chat_room:" + t.ChatRoom.Protocol + ":" + t.ChatRoom.ID
	case KindAddress:
		return "address:" + t.Address
	default:
		return ""
	}
}

func (t Target) String() string {
	return fmt.Sprintf("%s(%s)", t.Kind, t.DisplayName())
}
