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

	"github.com/rs/zerolog"

	"go.mau.fi/communicator/pkg/contactfilter"
	"go.mau.fi/communicator/pkg/contactlist"
	"go.mau.fi/communicator/pkg/contactquery"
)

// ApplyFilter makes filter the active filter and starts a query that rebuilds
// the tree with it. A previously running query is canceled.
//
// The first DirectInsertLimit matches are inserted before the worker moves on,
// later matches are reported as result events and inserted asynchronously.
func (s *Source) ApplyFilter(ctx context.Context, filter contactfilter.ContactFilter) *contactquery.Query {
	query := contactquery.New(ctx, filter.String())
	if prev := s.currentQuery.Swap(query); prev != nil {
		prev.Cancel()
	}
	// The filter is swapped before the generation is bumped, so event handlers
	// that load the generation first never pair a new generation with the old
	// filter.
	s.SetFilter(filter)
	gen := s.generation.Add(1)

	log := s.log.With().
		Str("action", "apply filter").
		Stringer("query_id", query.ID).
		Str("filter", query.Name).
		Logger()
	query.AddEventHandler(func(evt contactquery.Event) {
		if evt.Type != contactquery.EventResultAvailable {
			return
		}
		mc := evt.Result
		s.dispatcher.Invoke(func() {
			if err := s.insertMatched(gen, mc); err != nil {
				s.handleInsertFailure(log, mc, err, true)
			}
		})
	})
	go s.runQuery(log.WithContext(query.Context()), query, gen, filter)
	return query
}

// CurrentQuery returns the most recently started query.
func (s *Source) CurrentQuery() *contactquery.Query {
	return s.currentQuery.Load()
}

func (s *Source) runQuery(ctx context.Context, query *contactquery.Query, gen uint64, filter contactfilter.ContactFilter) {
	log := zerolog.Ctx(ctx)
	done := s.metrics.TrackQuery(filter.Kind())
	defer func() {
		query.Finish()
		log.Debug().
			Stringer("status", query.Status()).
			Int("results", query.ResultCount()).
			Msg("Filter query finished")
		done(query.Status().String(), query.ResultCount())
	}()

	err := s.dispatcher.InvokeAndWait(ctx, func() error {
		if s.generation.Load() == gen {
			s.clearTree()
		}
		return nil
	})
	if err != nil {
		log.Debug().Err(err).Msg("Query stopped before clearing the tree")
		return
	}
	s.traverse(ctx, query, gen, filter, s.service.Root())
}

// traverse walks the group depth-first: direct contacts first, then subgroups.
// Cancellation is checked once per candidate.
func (s *Source) traverse(ctx context.Context, query *contactquery.Query, gen uint64, filter contactfilter.ContactFilter, group contactlist.MetaContactGroup) {
	log := zerolog.Ctx(ctx)
	if !s.isRoot(group) && filter.IsMatchingGroup(group) {
		err := s.dispatcher.InvokeAndWait(ctx, func() error {
			if s.generation.Load() != gen {
				return nil
			}
			_, err := s.ensureGroupNode(group)
			return err
		})
		if err != nil && ctx.Err() == nil {
			log.Warn().Err(err).Stringer("group_id", group.ID()).Msg("Failed to display matching group")
		}
	}
	for _, mc := range group.ChildContacts() {
		if query.Canceled() {
			return
		}
		matches, err := isMatching(filter, mc)
		if err != nil {
			s.handleInsertFailure(*log, mc, err, false)
			continue
		} else if !matches {
			continue
		}
		if query.IncrementResultCount() > s.DirectInsertLimit {
			query.FireResultAvailable(mc)
			continue
		}
		err = s.dispatcher.InvokeAndWait(ctx, func() error {
			return s.insertMatched(gen, mc)
		})
		if err != nil && ctx.Err() == nil {
			s.handleInsertFailure(*log, mc, err, false)
		}
	}
	for _, sub := range group.Subgroups() {
		if query.Canceled() {
			return
		}
		s.traverse(ctx, query, gen, filter, sub)
	}
}

// isMatching evaluates the filter, converting a panic inside the entity's
// accessors into ErrPanic.
func isMatching(filter contactfilter.ContactFilter, mc contactlist.MetaContact) (matches bool, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			matches, err = false, fmt.Errorf("%w: %v", ErrPanic, recovered)
		}
	}()
	return filter.IsMatching(mc), nil
}

// insertMatched adds a query match to the tree unless a newer query has
// started since. Must run on the dispatcher goroutine.
func (s *Source) insertMatched(gen uint64, mc contactlist.MetaContact) (err error) {
	if s.generation.Load() != gen {
		return nil
	}
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("%w: %v", ErrPanic, recovered)
		}
		if err != nil {
			if wrapper := s.UIContact(mc); wrapper != nil && wrapper.node == nil {
				s.ReleaseUIContact(mc)
			}
		}
	}()
	return s.insertContact(mc)
}

// handleInsertFailure logs a failed insertion and evicts the entity from the
// contact list if it has no parent group. Eviction is best effort.
func (s *Source) handleInsertFailure(log zerolog.Logger, mc contactlist.MetaContact, err error, onDispatcher bool) {
	s.metrics.TrackInsertFailure()
	log = log.With().Stringer("meta_contact_id", mc.ID()).Logger()
	log.Err(err).Msg("Failed to insert matching meta contact")

	var orphaned bool
	func() {
		defer func() {
			if recovered := recover(); recovered != nil {
				log.Warn().Interface(zerolog.ErrorFieldName, recovered).Msg("Failed to read parent group of broken meta contact")
				orphaned = true
			}
		}()
		orphaned = mc.ParentGroup() == nil
	}()
	if !orphaned && !errors.Is(err, ErrOrphanedContact) {
		return
	}
	evict := func() {
		if removeErr := s.service.RemoveMetaContact(context.Background(), mc); removeErr != nil {
			log.Warn().Err(removeErr).Msg("Failed to evict broken meta contact")
		} else {
			log.Info().Msg("Evicted broken meta contact")
		}
	}
	if onDispatcher {
		// The removal event is dispatched synchronously and would queue more
		// work behind the current function.
		go evict()
	} else {
		evict()
	}
}
