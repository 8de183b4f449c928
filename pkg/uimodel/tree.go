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
	"errors"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/exp/slices"

	"go.mau.fi/communicator/pkg/contactlist"
	"go.mau.fi/communicator/pkg/textnorm"
)

var ErrParentNotDisplayed = errors.New("parent group is not in the tree")

type NodeKind int

const (
	NodeGroup NodeKind = iota
	NodeContact
)

func (nk NodeKind) String() string {
	if nk == NodeContact {
		return "contact"
	}
	return "group"
}

type Node struct {
	Kind    NodeKind
	Contact *UIContact
	Group   *UIGroup

	parent   *Node
	children []*Node

	sortName string
	presence contactlist.PresenceStatus
	// Changes counts how many times the node was marked changed.
	Changes int
}

func (n *Node) Parent() *Node {
	return n.parent
}

func (n *Node) Children() []*Node {
	return slices.Clone(n.children)
}

func (n *Node) ID() uuid.UUID {
	if n.Kind == NodeContact {
		return n.Contact.metaContact.ID()
	}
	return n.Group.group.ID()
}

func (n *Node) Name() string {
	if n.Kind == NodeContact {
		return n.Contact.DisplayName()
	}
	return n.Group.Name()
}

func (n *Node) refreshSortKey() {
	if n.Kind == NodeContact {
		n.sortName = textnorm.FoldForSort(n.Contact.DisplayName())
		n.presence = n.Contact.metaContact.Presence()
	} else {
		n.sortName = textnorm.FoldForSort(n.Group.Name())
	}
}

// compareNodes orders contacts before groups, contacts by presence (best
// first) and name, groups by name.
func compareNodes(a, b *Node) int {
	if a.Kind != b.Kind {
		if a.Kind == NodeContact {
			return -1
		}
		return 1
	}
	if a.Kind == NodeContact && a.presence != b.presence {
		if a.presence > b.presence {
			return -1
		}
		return 1
	}
	if cmp := strings.Compare(a.sortName, b.sortName); cmp != 0 {
		return cmp
	}
	return strings.Compare(a.ID().String(), b.ID().String())
}

type TreeListener interface {
	NodeInserted(parent, node *Node, index int)
	NodeRemoved(parent, node *Node, index int)
	NodeChanged(node *Node)
}

// Tree is the ordered display model. It is not safe for concurrent use; all
// calls must happen on the dispatcher goroutine.
type Tree struct {
	root         *Node
	listeners    []TreeListener
	contactCount int
}

func NewTree(root *UIGroup) *Tree {
	node := &Node{Kind: NodeGroup, Group: root}
	root.node = node
	return &Tree{root: node}
}

func (t *Tree) Root() *Node {
	return t.root
}

func (t *Tree) AddListener(listener TreeListener) {
	t.listeners = append(t.listeners, listener)
}

func (t *Tree) ContactCount() int {
	return t.contactCount
}

func (t *Tree) attach(parent, node *Node) {
	node.refreshSortKey()
	idx, _ := slices.BinarySearchFunc(parent.children, node, compareNodes)
	parent.children = slices.Insert(parent.children, idx, node)
	node.parent = parent
	for _, listener := range t.listeners {
		listener.NodeInserted(parent, node, idx)
	}
}

func (t *Tree) detach(node *Node) {
	parent := node.parent
	if parent == nil {
		return
	}
	idx := slices.Index(parent.children, node)
	if idx >= 0 {
		parent.children = slices.Delete(parent.children, idx, idx+1)
	}
	node.parent = nil
	for _, listener := range t.listeners {
		listener.NodeRemoved(parent, node, idx)
	}
}

// AddGroup inserts the group under parent, or moves it there if it's already
// displayed elsewhere.
func (t *Tree) AddGroup(parent, group *UIGroup) (*Node, error) {
	if parent.node == nil {
		return nil, ErrParentNotDisplayed
	}
	node := group.node
	if node != nil {
		if node.parent == parent.node {
			return node, nil
		}
		t.detach(node)
	} else {
		node = &Node{Kind: NodeGroup, Group: group}
		node.refreshSortKey()
		group.node = node
	}
	t.attach(parent.node, node)
	return node, nil
}

// AddContact inserts the contact under parent, or moves it there if it's
// already displayed elsewhere.
func (t *Tree) AddContact(parent *UIGroup, contact *UIContact) (*Node, error) {
	if parent.node == nil {
		return nil, ErrParentNotDisplayed
	}
	node := contact.node
	if node != nil {
		if node.parent == parent.node {
			return node, nil
		}
		t.detach(node)
	} else {
		node = &Node{Kind: NodeContact, Contact: contact}
		node.refreshSortKey()
		contact.node = node
		t.contactCount++
	}
	t.attach(parent.node, node)
	return node, nil
}

// RemoveContact removes the contact node and returns its former parent.
func (t *Tree) RemoveContact(contact *UIContact) *Node {
	node := contact.node
	if node == nil {
		return nil
	}
	parent := node.parent
	t.detach(node)
	contact.node = nil
	t.contactCount--
	return parent
}

// RemoveGroup removes the group with all its descendants and returns the
// wrappers that are no longer displayed.
func (t *Tree) RemoveGroup(group *UIGroup) (contacts []*UIContact, groups []*UIGroup) {
	node := group.node
	if node == nil || node == t.root {
		return nil, nil
	}
	t.detach(node)
	return t.forget(node, nil, nil)
}

func (t *Tree) forget(node *Node, contacts []*UIContact, groups []*UIGroup) ([]*UIContact, []*UIGroup) {
	for _, child := range node.children {
		contacts, groups = t.forget(child, contacts, groups)
	}
	node.children = nil
	node.parent = nil
	if node.Kind == NodeContact {
		node.Contact.node = nil
		t.contactCount--
		contacts = append(contacts, node.Contact)
	} else {
		node.Group.node = nil
		groups = append(groups, node.Group)
	}
	return contacts, groups
}

// Clear removes everything below the root.
func (t *Tree) Clear() (contacts []*UIContact, groups []*UIGroup) {
	for _, child := range slices.Clone(t.root.children) {
		t.detach(child)
		contacts, groups = t.forget(child, contacts, groups)
	}
	return contacts, groups
}

// NodeChanged refreshes the node's position and notifies listeners so the
// node gets repainted.
func (t *Tree) NodeChanged(node *Node) {
	if node == nil {
		return
	}
	node.Changes++
	if parent := node.parent; parent != nil && slices.Contains(parent.children, node) {
		idx := slices.Index(parent.children, node)
		node.refreshSortKey()
		sorted := (idx <= 0 || compareNodes(parent.children[idx-1], node) < 0) &&
			(idx >= len(parent.children)-1 || compareNodes(node, parent.children[idx+1]) < 0)
		if !sorted {
			parent.children = slices.Delete(parent.children, idx, idx+1)
			newIdx, _ := slices.BinarySearchFunc(parent.children, node, compareNodes)
			parent.children = slices.Insert(parent.children, newIdx, node)
		}
	}
	for _, listener := range t.listeners {
		listener.NodeChanged(node)
	}
}

type Row struct {
	Depth    int       `json:"depth"`
	Kind     string    `json:"kind"`
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	Presence string    `json:"presence,omitempty"`
}

// Rows flattens the tree depth-first, excluding the root.
func (t *Tree) Rows() []Row {
	var rows []Row
	var walk func(node *Node, depth int)
	walk = func(node *Node, depth int) {
		for _, child := range node.children {
			row := Row{Depth: depth, Kind: child.Kind.String(), ID: child.ID(), Name: child.Name()}
			if child.Kind == NodeContact {
				row.Presence = child.presence.String()
			}
			rows = append(rows, row)
			walk(child, depth+1)
		}
	}
	walk(t.root, 0)
	return rows
}
