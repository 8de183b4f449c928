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

// Package vcardimport fills a contact list from vCard files.
package vcardimport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-vcard"
	"github.com/rs/zerolog"

	"go.mau.fi/communicator/pkg/contactlist"
)

type Result struct {
	Imported   int `json:"imported"`
	Duplicates int `json:"duplicates"`
	Skipped    int `json:"skipped"`
}

// Import adds one meta contact per card. Every IMPP value becomes a protocol
// contact; cards without one fall back to their first email address. Cards
// whose addresses are all in the list already are counted as duplicates.
func Import(ctx context.Context, list *contactlist.List, r io.Reader) (Result, error) {
	log := zerolog.Ctx(ctx)
	var res Result
	dec := vcard.NewDecoder(r)
	for i := 0; ; i++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		card, err := dec.Decode()
		if errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			return res, fmt.Errorf("failed to decode card #%d: %w", i+1, err)
		}
		info := cardToMetaContact(card)
		if len(info.Contacts) == 0 {
			log.Debug().Int("card_index", i).Str("name", info.DisplayName).Msg("Skipping card without any address")
			res.Skipped++
			continue
		}
		info.Contacts = removeKnownAddresses(list, info.Contacts)
		if len(info.Contacts) == 0 {
			res.Duplicates++
			continue
		}
		parent, err := findOrCreateGroup(list, firstCategory(card))
		if err != nil {
			return res, err
		}
		if _, err = list.AddMetaContact(parent, info); err != nil {
			return res, fmt.Errorf("failed to add %q: %w", info.DisplayName, err)
		}
		res.Imported++
	}
	log.Info().
		Int("imported", res.Imported).
		Int("duplicates", res.Duplicates).
		Int("skipped", res.Skipped).
		Msg("Imported vCards")
	return res, nil
}

func cardDisplayName(card vcard.Card) string {
	if fn := strings.TrimSpace(card.PreferredValue(vcard.FieldFormattedName)); fn != "" {
		return fn
	}
	if name := card.Name(); name != nil {
		return strings.TrimSpace(strings.Join([]string{name.GivenName, name.FamilyName}, " "))
	}
	return ""
}

func splitIMPP(value string) (protocol, address string) {
	scheme, rest, found := strings.Cut(value, ":")
	if !found {
		return "", value
	}
	switch strings.ToLower(scheme) {
	case "sip", "sips":
		// SIP addresses keep their scheme.
		return "sip", value
	case "xmpp":
		return "jabber", rest
	default:
		return strings.ToLower(scheme), rest
	}
}

func cardToMetaContact(card vcard.Card) contactlist.NewMetaContact {
	info := contactlist.NewMetaContact{DisplayName: cardDisplayName(card)}
	var details []contactlist.Detail
	if info.DisplayName != "" {
		details = append(details, contactlist.Detail{Category: contactlist.DetailName, Value: info.DisplayName})
	}
	for _, tel := range card.Values(vcard.FieldTelephone) {
		details = append(details, contactlist.Detail{Category: contactlist.DetailPhone, Value: strings.TrimPrefix(tel, "tel:")})
	}
	emails := card.Values(vcard.FieldEmail)
	for _, email := range emails {
		details = append(details, contactlist.Detail{Category: contactlist.DetailEmail, Value: email})
	}
	seen := make(map[string]struct{})
	for _, impp := range card.Values(vcard.FieldIMPP) {
		protocol, address := splitIMPP(impp)
		if _, dup := seen[address]; dup {
			continue
		}
		seen[address] = struct{}{}
		details = append(details, contactlist.Detail{Category: contactlist.DetailIM, Value: address})
		info.Contacts = append(info.Contacts, contactlist.Contact{
			Address:            address,
			DisplayName:        info.DisplayName,
			Protocol:           protocol,
			AddressDisplayable: true,
		})
	}
	if len(info.Contacts) == 0 && len(emails) > 0 {
		info.Contacts = append(info.Contacts, contactlist.Contact{
			Address:     emails[0],
			DisplayName: info.DisplayName,
			Protocol:    "email",
		})
	}
	for i := range info.Contacts {
		info.Contacts[i].Details = append([]contactlist.Detail(nil), details...)
	}
	return info
}

func removeKnownAddresses(list *contactlist.List, contacts []contactlist.Contact) []contactlist.Contact {
	filtered := contacts[:0]
	for _, contact := range contacts {
		if _, found := list.FindByAddress(contact.Address); !found {
			filtered = append(filtered, contact)
		}
	}
	return filtered
}

func firstCategory(card vcard.Card) string {
	for _, value := range card.Values(vcard.FieldCategories) {
		for _, category := range strings.Split(value, ",") {
			if category = strings.TrimSpace(category); category != "" {
				return category
			}
		}
	}
	return ""
}

// findOrCreateGroup returns the top-level group with the given name, or the
// root group if name is empty.
func findOrCreateGroup(list *contactlist.List, name string) (contactlist.MetaContactGroup, error) {
	if name == "" {
		return list.Root(), nil
	}
	for _, group := range list.Root().Subgroups() {
		if strings.EqualFold(group.Name(), name) {
			return group, nil
		}
	}
	group, err := list.AddGroup(nil, name)
	if err != nil {
		return nil, fmt.Errorf("failed to create group %q: %w", name, err)
	}
	return group, nil
}
