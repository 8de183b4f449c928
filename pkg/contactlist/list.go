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

package contactlist

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/exp/slices"
)

var (
	ErrGroupNotFound    = errors.New("group not found")
	ErrContactNotFound  = errors.New("meta contact not found")
	ErrRootGroup        = errors.New("operation not permitted on the root group")
	ErrNotInList        = errors.New("entity does not belong to this contact list")
	ErrAddressNotFound  = errors.New("no protocol contact with that address")
	ErrDuplicateAddress = errors.New("meta contact already has a protocol contact with that address")
)

// List is an in-memory contact list service.
type List struct {
	log zerolog.Logger

	lock     sync.RWMutex
	root     *group
	groups   map[uuid.UUID]*group
	contacts map[uuid.UUID]*metaContact

	handlersLock sync.RWMutex
	handlers     map[int]EventHandler
	handlerOrder []int
	nextHandle   int
}

var _ Service = (*List)(nil)

type group struct {
	list      *List
	id        uuid.UUID
	name      string
	parent    *group
	contacts  []*metaContact
	subgroups []*group
}

type metaContact struct {
	list        *List
	id          uuid.UUID
	displayName string
	hidden      bool
	contacts    []Contact
	parent      *group
}

// NewMetaContact describes a meta contact to add to a List.
type NewMetaContact struct {
	// ID is generated when left empty.
	ID          uuid.UUID
	DisplayName string
	Hidden      bool
	Contacts    []Contact
}

func NewList(log zerolog.Logger) *List {
	l := &List{
		log:      log,
		groups:   make(map[uuid.UUID]*group),
		contacts: make(map[uuid.UUID]*metaContact),
		handlers: make(map[int]EventHandler),
	}
	l.root = &group{list: l, id: uuid.Nil, name: "Contacts"}
	l.groups[l.root.id] = l.root
	return l
}

func (l *List) Root() MetaContactGroup {
	return l.root
}

func (l *List) AddEventHandler(handler EventHandler) int {
	l.handlersLock.Lock()
	defer l.handlersLock.Unlock()
	l.nextHandle++
	l.handlers[l.nextHandle] = handler
	l.handlerOrder = append(l.handlerOrder, l.nextHandle)
	return l.nextHandle
}

func (l *List) RemoveEventHandler(handle int) {
	l.handlersLock.Lock()
	defer l.handlersLock.Unlock()
	delete(l.handlers, handle)
	l.handlerOrder = slices.DeleteFunc(l.handlerOrder, func(h int) bool { return h == handle })
}

func (l *List) dispatch(evt Event) {
	l.handlersLock.RLock()
	handlers := make([]EventHandler, 0, len(l.handlerOrder))
	for _, handle := range l.handlerOrder {
		handlers = append(handlers, l.handlers[handle])
	}
	l.handlersLock.RUnlock()
	l.log.Trace().Str("event_type", evt.EventType()).Int("handler_count", len(handlers)).Msg("Dispatching contact list event")
	for _, handler := range handlers {
		handler(evt)
	}
}

func (l *List) resolveGroup(g MetaContactGroup) (*group, error) {
	if g == nil {
		return l.root, nil
	}
	grp, ok := g.(*group)
	if !ok || grp.list != l {
		return nil, ErrNotInList
	} else if _, exists := l.groups[grp.id]; !exists {
		return nil, ErrGroupNotFound
	}
	return grp, nil
}

func (l *List) resolveContact(mc MetaContact) (*metaContact, error) {
	if mc == nil {
		return nil, ErrContactNotFound
	}
	contact, ok := mc.(*metaContact)
	if !ok || contact.list != l {
		return nil, ErrNotInList
	} else if _, exists := l.contacts[contact.id]; !exists {
		return nil, ErrContactNotFound
	}
	return contact, nil
}

// AddGroup creates a subgroup. A nil parent means the root group.
func (l *List) AddGroup(parent MetaContactGroup, name string) (MetaContactGroup, error) {
	return l.AddGroupWithID(parent, uuid.New(), name)
}

func (l *List) AddGroupWithID(parent MetaContactGroup, id uuid.UUID, name string) (MetaContactGroup, error) {
	l.lock.Lock()
	parentGroup, err := l.resolveGroup(parent)
	if err != nil {
		l.lock.Unlock()
		return nil, err
	} else if _, exists := l.groups[id]; exists {
		l.lock.Unlock()
		return nil, fmt.Errorf("group %s already exists", id)
	}
	grp := &group{list: l, id: id, name: name, parent: parentGroup}
	parentGroup.subgroups = append(parentGroup.subgroups, grp)
	l.groups[id] = grp
	l.lock.Unlock()

	l.dispatch(&GroupAdded{Group: grp})
	return grp, nil
}

// AddMetaContact creates a meta contact in the given group. A nil parent means
// the root group.
func (l *List) AddMetaContact(parent MetaContactGroup, info NewMetaContact) (MetaContact, error) {
	if info.ID == uuid.Nil {
		info.ID = uuid.New()
	}
	l.lock.Lock()
	parentGroup, err := l.resolveGroup(parent)
	if err != nil {
		l.lock.Unlock()
		return nil, err
	} else if _, exists := l.contacts[info.ID]; exists {
		l.lock.Unlock()
		return nil, fmt.Errorf("meta contact %s already exists", info.ID)
	} else if addr := firstDuplicateAddress(info.Contacts); addr != "" {
		l.lock.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrDuplicateAddress, addr)
	}
	contact := &metaContact{
		list:        l,
		id:          info.ID,
		displayName: info.DisplayName,
		hidden:      info.Hidden,
		contacts:    slices.Clone(info.Contacts),
		parent:      parentGroup,
	}
	parentGroup.contacts = append(parentGroup.contacts, contact)
	l.contacts[contact.id] = contact
	l.lock.Unlock()

	l.dispatch(&MetaContactAdded{MetaContact: contact, Parent: parentGroup})
	return contact, nil
}

// RemoveMetaContact detaches the meta contact from its group and forgets it.
func (l *List) RemoveMetaContact(ctx context.Context, mc MetaContact) error {
	l.lock.Lock()
	contact, err := l.resolveContact(mc)
	if err != nil {
		l.lock.Unlock()
		return err
	}
	oldParent := contact.parent
	if oldParent != nil {
		oldParent.contacts = slices.DeleteFunc(oldParent.contacts, func(c *metaContact) bool { return c == contact })
	}
	contact.parent = nil
	delete(l.contacts, contact.id)
	l.lock.Unlock()

	zerolog.Ctx(ctx).Debug().Stringer("meta_contact_id", contact.id).Msg("Removed meta contact from list")
	evt := &MetaContactRemoved{MetaContact: contact}
	if oldParent != nil {
		evt.OldParent = oldParent
	}
	l.dispatch(evt)
	return nil
}

// RemoveGroup removes a group together with everything it contains.
func (l *List) RemoveGroup(g MetaContactGroup) error {
	l.lock.Lock()
	grp, err := l.resolveGroup(g)
	if err != nil {
		l.lock.Unlock()
		return err
	} else if grp == l.root {
		l.lock.Unlock()
		return ErrRootGroup
	}
	oldParent := grp.parent
	oldParent.subgroups = slices.DeleteFunc(oldParent.subgroups, func(sub *group) bool { return sub == grp })
	l.forgetGroupLocked(grp)
	grp.parent = nil
	l.lock.Unlock()

	l.dispatch(&GroupRemoved{Group: grp, OldParent: oldParent})
	return nil
}

func (l *List) forgetGroupLocked(grp *group) {
	delete(l.groups, grp.id)
	for _, contact := range grp.contacts {
		delete(l.contacts, contact.id)
	}
	for _, sub := range grp.subgroups {
		l.forgetGroupLocked(sub)
	}
}

func (l *List) MoveMetaContact(mc MetaContact, newParent MetaContactGroup) error {
	l.lock.Lock()
	contact, err := l.resolveContact(mc)
	if err != nil {
		l.lock.Unlock()
		return err
	}
	target, err := l.resolveGroup(newParent)
	if err != nil {
		l.lock.Unlock()
		return err
	}
	oldParent := contact.parent
	if oldParent == target {
		l.lock.Unlock()
		return nil
	}
	if oldParent != nil {
		oldParent.contacts = slices.DeleteFunc(oldParent.contacts, func(c *metaContact) bool { return c == contact })
	}
	target.contacts = append(target.contacts, contact)
	contact.parent = target
	l.lock.Unlock()

	evt := &MetaContactMoved{MetaContact: contact, NewParent: target}
	if oldParent != nil {
		evt.OldParent = oldParent
	}
	l.dispatch(evt)
	return nil
}

func (l *List) RenameMetaContact(mc MetaContact, name string) error {
	l.lock.Lock()
	contact, err := l.resolveContact(mc)
	if err != nil {
		l.lock.Unlock()
		return err
	}
	oldName := contact.displayName
	contact.displayName = name
	l.lock.Unlock()

	l.dispatch(&MetaContactRenamed{MetaContact: contact, OldName: oldName, NewName: name})
	return nil
}

func (l *List) RenameGroup(g MetaContactGroup, name string) error {
	l.lock.Lock()
	grp, err := l.resolveGroup(g)
	if err != nil {
		l.lock.Unlock()
		return err
	}
	oldName := grp.name
	grp.name = name
	l.lock.Unlock()

	l.dispatch(&GroupRenamed{Group: grp, OldName: oldName})
	return nil
}

func (l *List) SetHidden(mc MetaContact, hidden bool) error {
	return l.modify(mc, "hidden", func(contact *metaContact) error {
		contact.hidden = hidden
		return nil
	})
}

func firstDuplicateAddress(contacts []Contact) string {
	seen := make(map[string]struct{}, len(contacts))
	for _, c := range contacts {
		if _, ok := seen[c.Address]; ok {
			return c.Address
		}
		seen[c.Address] = struct{}{}
	}
	return ""
}

// AddContact attaches a protocol contact to the meta contact. Addresses are
// unique within a meta contact, since they key presence and detail updates.
func (l *List) AddContact(mc MetaContact, protoContact Contact) error {
	return l.modify(mc, "contacts", func(contact *metaContact) error {
		if slices.ContainsFunc(contact.contacts, func(c Contact) bool { return c.Address == protoContact.Address }) {
			return fmt.Errorf("%w: %s", ErrDuplicateAddress, protoContact.Address)
		}
		contact.contacts = append(contact.contacts, protoContact)
		return nil
	})
}

func (l *List) RemoveContact(mc MetaContact, address string) error {
	return l.modify(mc, "contacts", func(contact *metaContact) error {
		idx := slices.IndexFunc(contact.contacts, func(c Contact) bool { return c.Address == address })
		if idx < 0 {
			return ErrAddressNotFound
		}
		contact.contacts = slices.Delete(contact.contacts, idx, idx+1)
		return nil
	})
}

// SetDetails replaces the server-stored details of one protocol contact.
func (l *List) SetDetails(mc MetaContact, address string, details []Detail) error {
	return l.modify(mc, "details", func(contact *metaContact) error {
		idx := slices.IndexFunc(contact.contacts, func(c Contact) bool { return c.Address == address })
		if idx < 0 {
			return ErrAddressNotFound
		}
		contact.contacts[idx].Details = slices.Clone(details)
		return nil
	})
}

func (l *List) modify(mc MetaContact, field string, fn func(contact *metaContact) error) error {
	l.lock.Lock()
	contact, err := l.resolveContact(mc)
	if err == nil {
		err = fn(contact)
	}
	l.lock.Unlock()
	if err != nil {
		return err
	}
	l.dispatch(&MetaContactModified{MetaContact: contact, Field: field})
	return nil
}

func (l *List) SetPresence(mc MetaContact, address string, status PresenceStatus) error {
	l.lock.Lock()
	contact, err := l.resolveContact(mc)
	if err != nil {
		l.lock.Unlock()
		return err
	}
	idx := slices.IndexFunc(contact.contacts, func(c Contact) bool { return c.Address == address })
	if idx < 0 {
		l.lock.Unlock()
		return ErrAddressNotFound
	}
	oldStatus := contact.contacts[idx].Presence
	contact.contacts[idx].Presence = status
	l.lock.Unlock()

	if oldStatus != status {
		l.dispatch(&PresenceChanged{MetaContact: contact, Address: address, OldStatus: oldStatus, NewStatus: status})
	}
	return nil
}

// StoredDisplayName returns the name set on the meta contact itself, without
// the fallback to protocol contact names that DisplayName applies.
func (l *List) StoredDisplayName(mc MetaContact) (string, error) {
	l.lock.RLock()
	defer l.lock.RUnlock()
	contact, err := l.resolveContact(mc)
	if err != nil {
		return "", err
	}
	return contact.displayName, nil
}

func (l *List) GetMetaContact(id uuid.UUID) (MetaContact, bool) {
	l.lock.RLock()
	defer l.lock.RUnlock()
	contact, ok := l.contacts[id]
	if !ok {
		return nil, false
	}
	return contact, true
}

func (l *List) GetGroup(id uuid.UUID) (MetaContactGroup, bool) {
	l.lock.RLock()
	defer l.lock.RUnlock()
	grp, ok := l.groups[id]
	if !ok {
		return nil, false
	}
	return grp, true
}

// FindByAddress returns the first meta contact that has a protocol contact
// with the given address.
func (l *List) FindByAddress(address string) (MetaContact, bool) {
	for _, mc := range l.AllMetaContacts() {
		for _, c := range mc.Contacts() {
			if c.Address == address {
				return mc, true
			}
		}
	}
	return nil, false
}

// AllMetaContacts lists every meta contact depth-first, contacts before
// subgroups.
func (l *List) AllMetaContacts() []MetaContact {
	l.lock.RLock()
	defer l.lock.RUnlock()
	var output []MetaContact
	var walk func(grp *group)
	walk = func(grp *group) {
		for _, contact := range grp.contacts {
			output = append(output, contact)
		}
		for _, sub := range grp.subgroups {
			walk(sub)
		}
	}
	walk(l.root)
	return output
}

func (g *group) ID() uuid.UUID {
	return g.id
}

func (g *group) Name() string {
	g.list.lock.RLock()
	defer g.list.lock.RUnlock()
	return g.name
}

func (g *group) ParentGroup() MetaContactGroup {
	g.list.lock.RLock()
	defer g.list.lock.RUnlock()
	if g.parent == nil {
		return nil
	}
	return g.parent
}

func (g *group) ChildContacts() []MetaContact {
	g.list.lock.RLock()
	defer g.list.lock.RUnlock()
	output := make([]MetaContact, len(g.contacts))
	for i, contact := range g.contacts {
		output[i] = contact
	}
	return output
}

func (g *group) Subgroups() []MetaContactGroup {
	g.list.lock.RLock()
	defer g.list.lock.RUnlock()
	output := make([]MetaContactGroup, len(g.subgroups))
	for i, sub := range g.subgroups {
		output[i] = sub
	}
	return output
}

func (mc *metaContact) ID() uuid.UUID {
	return mc.id
}

// DisplayName falls back to the first protocol contact's name or address.
func (mc *metaContact) DisplayName() string {
	mc.list.lock.RLock()
	defer mc.list.lock.RUnlock()
	if mc.displayName != "" {
		return mc.displayName
	}
	for _, c := range mc.contacts {
		if c.DisplayName != "" {
			return c.DisplayName
		} else if c.Address != "" {
			return c.Address
		}
	}
	return ""
}

func (mc *metaContact) Hidden() bool {
	mc.list.lock.RLock()
	defer mc.list.lock.RUnlock()
	return mc.hidden
}

func (mc *metaContact) Contacts() []Contact {
	mc.list.lock.RLock()
	defer mc.list.lock.RUnlock()
	output := make([]Contact, len(mc.contacts))
	for i, c := range mc.contacts {
		output[i] = c
		output[i].Details = slices.Clone(c.Details)
	}
	return output
}

func (mc *metaContact) ParentGroup() MetaContactGroup {
	mc.list.lock.RLock()
	defer mc.list.lock.RUnlock()
	if mc.parent == nil {
		return nil
	}
	return mc.parent
}

func (mc *metaContact) Presence() PresenceStatus {
	mc.list.lock.RLock()
	defer mc.list.lock.RUnlock()
	return HighestPresence(mc.contacts)
}
