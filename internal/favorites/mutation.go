package favorites

import (
	"context"
	"slices"
)

type mutationOp int

const (
	opAdd mutationOp = iota
	opRemove
)

func (o mutationOp) String() string {
	if o == opAdd {
		return "add"
	}
	return "remove"
}

// mutationRecord is what a mutation needs to undo itself.
type mutationRecord struct {
	id         string
	had        bool
	refreshGen uint64
}

// Add saves id as a favorite. Under an anonymous session at the cap it fails
// with ErrLimitExceeded before anything changes. Any other failure rolls the
// set back and is returned as an *Error.
func (s *State) Add(ctx context.Context, id string) error {
	return s.mutate(ctx, opAdd, id)
}

// Remove drops id from the favorites. Removing an absent id is a no-op.
func (s *State) Remove(ctx context.Context, id string) error {
	return s.mutate(ctx, opRemove, id)
}

// Toggle adds id when absent and removes it otherwise. It returns whether id
// is a favorite after the call.
func (s *State) Toggle(ctx context.Context, id string) (bool, error) {
	if s.IsFavorite(id) {
		if err := s.Remove(ctx, id); err != nil {
			return true, err
		}
		return false, nil
	}
	if err := s.Add(ctx, id); err != nil {
		return false, err
	}
	return true, nil
}

func (s *State) mutate(ctx context.Context, op mutationOp, id string) error {
	if id == "" {
		return classify(op.String(), id, ErrEmptyID)
	}

	release, err := s.acquire(ctx, id)
	if err != nil {
		return classify(op.String(), id, err)
	}
	defer release()

	token := s.identity.Token()
	mode := ModeOf(token)

	// The device record is shared with other processes and may have filled
	// since the last refresh, so the cap is checked against it too.
	var record []string
	checkCap := op == opAdd && mode == Anonymous
	if checkCap && s.local != nil {
		record = s.local.Get()
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return classify(op.String(), id, ErrClosed)
	}
	_, had := s.set[id]
	if checkCap && !had && !slices.Contains(record, id) && max(len(s.set), len(record)) >= s.limit {
		snap, synced := s.adoptRecordLocked(record)
		s.mu.Unlock()
		if synced {
			s.notify(snap)
		}
		ferr := LimitExceeded(s.limit)
		ferr.Op, ferr.ID = op.String(), id
		return ferr
	}
	rec := mutationRecord{
		id:         id,
		had:        had,
		refreshGen: s.refreshGen,
	}
	if op == opAdd {
		s.set[id] = struct{}{}
	} else {
		delete(s.set, id)
	}
	s.pending++
	snap := s.commitLocked()
	s.mu.Unlock()
	s.notify(snap)

	err = s.dispatch(ctx, op, id, mode, token)

	s.mu.Lock()
	s.pending--
	if s.closed {
		s.mu.Unlock()
		if err != nil {
			return classify(op.String(), id, err)
		}
		return nil
	}
	var ferr *Error
	if err != nil {
		ferr = classify(op.String(), id, err)
		s.rollbackLocked(rec)
		s.lastErr = ferr
		s.log.Debug("favorites mutation rolled back", "op", op.String(), "id", id, "mode", mode, "kind", ferr.Kind.String())
	}
	snap = s.commitLocked()
	s.mu.Unlock()
	s.notify(snap)

	if ferr != nil {
		return ferr
	}
	return nil
}

// adoptRecordLocked replaces the set with the device record read by a
// rejected add when the two differ and nothing is in flight. It counts as a
// refresh.
func (s *State) adoptRecordLocked(record []string) (Snapshot, bool) {
	if s.local == nil || s.pending > 0 || len(record) == len(s.set) && containsAll(s.set, record) {
		return Snapshot{}, false
	}
	s.set = make(map[string]struct{}, len(record))
	for _, id := range record {
		s.set[id] = struct{}{}
	}
	s.refreshGen++
	return s.commitLocked(), true
}

func containsAll(set map[string]struct{}, ids []string) bool {
	for _, id := range ids {
		if _, ok := set[id]; !ok {
			return false
		}
	}
	return true
}

// rollbackLocked restores the membership id had when the mutation started.
// Only id is touched, so the set is exactly its pre-mutation value unless
// another id changed meanwhile. A refresh that completed in the meantime is
// authoritative and is not undone.
func (s *State) rollbackLocked(rec mutationRecord) {
	if s.refreshGen != rec.refreshGen {
		return
	}
	if rec.had {
		s.set[rec.id] = struct{}{}
	} else {
		delete(s.set, rec.id)
	}
}

func (s *State) dispatch(ctx context.Context, op mutationOp, id string, mode Mode, token string) error {
	if mode == Anonymous {
		if s.local == nil {
			return ErrUnknown
		}
		if op == opAdd {
			return s.local.Add(id)
		}
		return s.local.Remove(id)
	}
	if s.remote == nil {
		return ErrNetworkFailure
	}
	if op == opAdd {
		return s.remote.Add(ctx, id, token)
	}
	return s.remote.Remove(ctx, id, token)
}

// acquire waits until no other mutation on id is in flight and marks id busy.
// Mutations on the same id are thereby queued instead of racing.
func (s *State) acquire(ctx context.Context, id string) (release func(), err error) {
	for {
		s.mu.Lock()
		busy, ok := s.inflight[id]
		if !ok {
			done := make(chan struct{})
			s.inflight[id] = done
			s.mu.Unlock()
			return func() {
				s.mu.Lock()
				delete(s.inflight, id)
				s.mu.Unlock()
				close(done)
			}, nil
		}
		s.mu.Unlock()

		select {
		case <-busy:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
