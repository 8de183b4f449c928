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

package uimodel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"go.mau.fi/communicator/pkg/contactfilter"
	"go.mau.fi/communicator/pkg/contactlist"
	"go.mau.fi/communicator/pkg/contactquery"
	"go.mau.fi/communicator/pkg/metrics"
)

var (
	ErrOrphanedContact = errors.New("meta contact has no parent group")
	ErrOrphanedGroup   = errors.New("group is detached from the contact list")
)

// DefaultDirectInsertLimit is the number of query matches inserted
// synchronously before the rest is paged in through result events.
const DefaultDirectInsertLimit = 10

// Source keeps the display tree in sync with a contact list service.
//
// Wrappers are created lazily, at most one per entity, under a per-entity
// lock. Lock order is always entity before parent: a contact lock may be held
// while taking its group's lock, and a group lock while taking its parent's,
// never the other way around. No entity lock is held while waiting for the
// dispatcher.
type Source struct {
	log        zerolog.Logger
	service    contactlist.Service
	dispatcher *Dispatcher
	tree       *Tree
	metrics    *metrics.Metrics

	DirectInsertLimit int

	root         *UIGroup
	contacts     sync.Map
	groups       sync.Map
	contactLocks *entityLocks
	groupLocks   *entityLocks

	filterLock sync.RWMutex
	filter     contactfilter.ContactFilter

	generation   atomic.Uint64
	currentQuery atomic.Pointer[contactquery.Query]

	handlerHandle int
}

func NewSource(log zerolog.Logger, service contactlist.Service, dispatcher *Dispatcher, filter contactfilter.ContactFilter, m *metrics.Metrics) *Source {
	root := &UIGroup{group: service.Root()}
	s := &Source{
		log:               log,
		service:           service,
		dispatcher:        dispatcher,
		tree:              NewTree(root),
		metrics:           m,
		DirectInsertLimit: DefaultDirectInsertLimit,
		root:              root,
		contactLocks:      newEntityLocks(),
		groupLocks:        newEntityLocks(),
		filter:            filter,
	}
	s.groups.Store(root.group.ID(), root)
	return s
}

// Start subscribes to contact list events.
func (s *Source) Start() {
	s.handlerHandle = s.service.AddEventHandler(s.HandleEvent)
}

func (s *Source) Stop() {
	if prev := s.currentQuery.Swap(nil); prev != nil {
		prev.Cancel()
	}
	s.service.RemoveEventHandler(s.handlerHandle)
}

// Tree must only be used on the dispatcher goroutine.
func (s *Source) Tree() *Tree {
	return s.tree
}

func (s *Source) Dispatcher() *Dispatcher {
	return s.dispatcher
}

func (s *Source) Filter() contactfilter.ContactFilter {
	s.filterLock.RLock()
	defer s.filterLock.RUnlock()
	return s.filter
}

// SetFilter changes the filter used for incoming events without re-running
// it over the existing tree. Use ApplyFilter for that.
func (s *Source) SetFilter(filter contactfilter.ContactFilter) {
	s.filterLock.Lock()
	s.filter = filter
	s.filterLock.Unlock()
}

// UIContact returns the existing wrapper of the meta contact, or nil.
func (s *Source) UIContact(mc contactlist.MetaContact) *UIContact {
	val, ok := s.contacts.Load(mc.ID())
	if !ok {
		return nil
	}
	return val.(*UIContact)
}

// CreateUIContact returns the wrapper of the meta contact, creating it and
// the wrapper of its parent group if necessary.
func (s *Source) CreateUIContact(mc contactlist.MetaContact) *UIContact {
	if existing := s.UIContact(mc); existing != nil {
		return existing
	}
	unlock := s.contactLocks.Lock(mc.ID())
	defer unlock()
	if existing := s.UIContact(mc); existing != nil {
		return existing
	}
	if parent := mc.ParentGroup(); parent != nil {
		s.CreateUIGroup(parent)
	}
	wrapper := &UIContact{metaContact: mc}
	s.contacts.Store(mc.ID(), wrapper)
	s.metrics.TrackWrapper("contact", 1)
	return wrapper
}

// ReleaseUIContact drops the wrapper of the meta contact. The caller is
// responsible for removing it from the tree first.
func (s *Source) ReleaseUIContact(mc contactlist.MetaContact) {
	unlock := s.contactLocks.Lock(mc.ID())
	defer unlock()
	if _, loaded := s.contacts.LoadAndDelete(mc.ID()); loaded {
		s.metrics.TrackWrapper("contact", -1)
	}
}

func (s *Source) UIGroup(group contactlist.MetaContactGroup) *UIGroup {
	val, ok := s.groups.Load(group.ID())
	if !ok {
		return nil
	}
	return val.(*UIGroup)
}

// CreateUIGroup returns the wrapper of the group, creating it and the wrappers
// of its ancestors if necessary.
func (s *Source) CreateUIGroup(group contactlist.MetaContactGroup) *UIGroup {
	if existing := s.UIGroup(group); existing != nil {
		return existing
	}
	unlock := s.groupLocks.Lock(group.ID())
	defer unlock()
	if existing := s.UIGroup(group); existing != nil {
		return existing
	}
	if parent := group.ParentGroup(); parent != nil {
		s.CreateUIGroup(parent)
	}
	wrapper := &UIGroup{group: group}
	s.groups.Store(group.ID(), wrapper)
	s.metrics.TrackWrapper("group", 1)
	return wrapper
}

// ReleaseUIGroup drops the wrapper of the group. The root wrapper is never
// released.
func (s *Source) ReleaseUIGroup(group contactlist.MetaContactGroup) {
	if group.ID() == s.root.group.ID() {
		return
	}
	unlock := s.groupLocks.Lock(group.ID())
	defer unlock()
	if _, loaded := s.groups.LoadAndDelete(group.ID()); loaded {
		s.metrics.TrackWrapper("group", -1)
	}
}

func (s *Source) isRoot(group contactlist.MetaContactGroup) bool {
	return group.ID() == s.root.group.ID()
}

// Snapshot returns the rows currently displayed.
func (s *Source) Snapshot(ctx context.Context) ([]Row, error) {
	var rows []Row
	err := s.dispatcher.InvokeAndWait(ctx, func() error {
		rows = s.tree.Rows()
		return nil
	})
	return rows, err
}

// Sync waits until everything queued on the dispatcher so far has run.
func (s *Source) Sync(ctx context.Context) error {
	return s.dispatcher.InvokeAndWait(ctx, func() error { return nil })
}

// HandleEvent is the contact list event handler. Filters are evaluated on the
// calling goroutine, the tree is updated on the dispatcher. Updates computed
// against a filter that has been replaced in the meantime are dropped, the
// query started by the new filter rebuilds the tree instead.
func (s *Source) HandleEvent(evt contactlist.Event) {
	s.metrics.TrackContactListEvent(evt.EventType())
	gen := s.generation.Load()
	filter := s.Filter()
	switch typedEvt := evt.(type) {
	case *contactlist.MetaContactAdded:
		s.contactChanged(gen, typedEvt.MetaContact, filter, nil)
	case *contactlist.MetaContactMoved:
		s.contactChanged(gen, typedEvt.MetaContact, filter, typedEvt.OldParent)
	case *contactlist.MetaContactModified:
		s.contactChanged(gen, typedEvt.MetaContact, filter, nil)
	case *contactlist.MetaContactRenamed:
		s.contactChanged(gen, typedEvt.MetaContact, filter, nil)
	case *contactlist.PresenceChanged:
		s.contactChanged(gen, typedEvt.MetaContact, filter, nil)
	case *contactlist.MetaContactRemoved:
		mc := typedEvt.MetaContact
		s.dispatcher.Invoke(func() {
			s.removeContact(mc, s.Filter())
		})
	case *contactlist.GroupAdded:
		group := typedEvt.Group
		if filter.IsMatchingGroup(group) {
			s.dispatcher.Invoke(func() {
				if s.generation.Load() != gen {
					return
				}
				if _, err := s.ensureGroupNode(group); err != nil {
					s.log.Warn().Err(err).Stringer("group_id", group.ID()).Msg("Failed to display added group")
				}
			})
		}
	case *contactlist.GroupRemoved:
		group := typedEvt.Group
		s.dispatcher.Invoke(func() {
			s.removeGroup(group)
		})
	case *contactlist.GroupRenamed:
		group := typedEvt.Group
		s.dispatcher.Invoke(func() {
			if wrapper := s.UIGroup(group); wrapper != nil && wrapper.node != nil {
				s.tree.NodeChanged(wrapper.node)
			}
		})
	default:
		s.log.Debug().Type("event_type", evt).Msg("Ignoring unknown contact list event")
	}
}

func (s *Source) contactChanged(gen uint64, mc contactlist.MetaContact, filter contactfilter.ContactFilter, oldParent contactlist.MetaContactGroup) {
	matches, err := isMatching(filter, mc)
	if err != nil {
		s.log.Warn().Err(err).Stringer("meta_contact_id", mc.ID()).Msg("Failed to evaluate filter for changed meta contact")
	}
	s.dispatcher.Invoke(func() {
		if s.generation.Load() != gen {
			return
		}
		s.reconcileContact(mc, matches, filter)
		if oldParent != nil {
			s.pruneGroup(oldParent, filter)
		}
	})
}

// reconcileContact applies one filter result to the tree. Must run on the
// dispatcher goroutine.
func (s *Source) reconcileContact(mc contactlist.MetaContact, matches bool, filter contactfilter.ContactFilter) {
	log := s.log.With().Stringer("meta_contact_id", mc.ID()).Logger()
	existing := s.UIContact(mc)
	present := existing != nil && existing.node != nil
	switch {
	case matches:
		err := s.insertContact(mc)
		if errors.Is(err, ErrOrphanedContact) && present {
			s.removeContact(mc, filter)
		} else if err != nil {
			log.Warn().Err(err).Msg("Failed to display matching meta contact")
		} else if present {
			s.tree.NodeChanged(existing.node)
		}
	case present:
		s.removeContact(mc, filter)
	case existing != nil:
		s.ReleaseUIContact(mc)
	}
}

// insertContact adds the meta contact under its parent group, creating the
// group nodes on demand. An already displayed contact is moved if its parent
// changed. Must run on the dispatcher goroutine.
func (s *Source) insertContact(mc contactlist.MetaContact) error {
	parent := mc.ParentGroup()
	if parent == nil {
		return fmt.Errorf("%w: %s", ErrOrphanedContact, mc.ID())
	}
	groupWrapper, err := s.ensureGroupNode(parent)
	if err != nil {
		return err
	}
	contactWrapper := s.CreateUIContact(mc)
	var oldParent *Node
	if contactWrapper.node != nil {
		oldParent = contactWrapper.node.parent
	}
	_, err = s.tree.AddContact(groupWrapper, contactWrapper)
	if err == nil && oldParent != nil && oldParent != groupWrapper.node {
		s.pruneNode(oldParent, s.Filter())
	}
	return err
}

func (s *Source) ensureGroupNode(group contactlist.MetaContactGroup) (*UIGroup, error) {
	if s.isRoot(group) {
		return s.root, nil
	}
	wrapper := s.CreateUIGroup(group)
	if wrapper.node != nil {
		return wrapper, nil
	}
	parent := group.ParentGroup()
	if parent == nil {
		return nil, fmt.Errorf("%w: %s", ErrOrphanedGroup, group.ID())
	}
	parentWrapper, err := s.ensureGroupNode(parent)
	if err != nil {
		return nil, err
	}
	_, err = s.tree.AddGroup(parentWrapper, wrapper)
	return wrapper, err
}

func (s *Source) removeContact(mc contactlist.MetaContact, filter contactfilter.ContactFilter) {
	wrapper := s.UIContact(mc)
	if wrapper == nil {
		return
	}
	parent := s.tree.RemoveContact(wrapper)
	s.ReleaseUIContact(mc)
	if parent != nil {
		s.pruneNode(parent, filter)
	}
}

func (s *Source) pruneGroup(group contactlist.MetaContactGroup, filter contactfilter.ContactFilter) {
	if wrapper := s.UIGroup(group); wrapper != nil && wrapper.node != nil {
		s.pruneNode(wrapper.node, filter)
	}
}

// pruneNode removes empty group nodes that no longer match the filter,
// walking up towards the root.
func (s *Source) pruneNode(node *Node, filter contactfilter.ContactFilter) {
	for node != nil && node != s.tree.root && node.Kind == NodeGroup && len(node.children) == 0 {
		if filter.IsMatchingGroup(node.Group.group) {
			return
		}
		parent := node.parent
		s.removeGroup(node.Group.group)
		node = parent
	}
}

func (s *Source) removeGroup(group contactlist.MetaContactGroup) {
	wrapper := s.UIGroup(group)
	if wrapper == nil {
		return
	}
	contacts, groups := s.tree.RemoveGroup(wrapper)
	for _, contact := range contacts {
		s.ReleaseUIContact(contact.metaContact)
	}
	for _, sub := range groups {
		s.ReleaseUIGroup(sub.group)
	}
	s.ReleaseUIGroup(group)
}

func (s *Source) clearTree() {
	contacts, groups := s.tree.Clear()
	for _, contact := range contacts {
		s.ReleaseUIContact(contact.metaContact)
	}
	for _, group := range groups {
		s.ReleaseUIGroup(group.group)
	}
	// Wrappers that were created but never displayed.
	s.contacts.Range(func(key, value any) bool {
		s.ReleaseUIContact(value.(*UIContact).metaContact)
		return true
	})
}
