package memstore

import (
	"context"
	"slices"
	"time"

	"spray_ledger/internal/domain"

	"github.com/shopspring/decimal"
)

type eventRepo struct{ repos }

func (r *eventRepo) Insert(_ context.Context, e *domain.Event) error {
	if _, err := r.inject("events.insert"); err != nil {
		return err
	}
	return r.with(func(st *state) error {
		if _, ok := st.events[e.Code]; ok {
			return domain.ErrDuplicateKey
		}
		st.events[e.Code] = copyEvent(*e)
		return nil
	})
}

func (r *eventRepo) FindByCode(_ context.Context, code string) (domain.Event, bool, error) {
	var (
		event domain.Event
		found bool
	)
	err := r.with(func(st *state) error {
		var e domain.Event
		if e, found = st.events[code]; found {
			event = copyEvent(e)
		}
		return nil
	})
	return event, found, err
}

func (r *eventRepo) List(_ context.Context, f domain.EventFilter) ([]domain.Event, error) {
	var out []domain.Event
	err := r.with(func(st *state) error {
		for _, e := range st.events {
			if f.Matches(e) {
				out = append(out, copyEvent(e))
			}
		}
		slices.SortFunc(out, func(a, b domain.Event) int {
			if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
				return c
			}
			if a.Code < b.Code {
				return -1
			}
			if a.Code > b.Code {
				return 1
			}
			return 0
		})
		out = paginate(out, f.Offset, f.Limit)
		return nil
	})
	return out, err
}

func (r *eventRepo) IncrementAmount(_ context.Context, code string, delta decimal.Decimal) (bool, error) {
	noMatch, err := r.inject("events.increment_amount")
	if err != nil || noMatch {
		return false, err
	}
	var applied bool
	err = r.with(func(st *state) error {
		e, ok := st.events[code]
		if !ok || e.Status != domain.EventActive {
			return nil
		}
		e.Amount = e.Amount.Add(delta)
		e.UpdatedAt = time.Now().UTC()
		st.events[code] = e
		applied = true
		return nil
	})
	return applied, err
}

func (r *eventRepo) UpdateStatus(_ context.Context, code string, from, to domain.EventStatus, at time.Time) (bool, error) {
	noMatch, err := r.inject("events.update_status")
	if err != nil || noMatch {
		return false, err
	}
	var applied bool
	err = r.with(func(st *state) error {
		e, ok := st.events[code]
		if !ok || e.Status != from {
			return nil
		}
		e.Status = to
		switch {
		case to == domain.EventActive:
			e.StartedAt = &at
		case to.Terminal():
			e.FinishTime = &at
		}
		e.UpdatedAt = at
		st.events[code] = e
		applied = true
		return nil
	})
	return applied, err
}

func (r *eventRepo) UpdateDetails(_ context.Context, e *domain.Event) (bool, error) {
	noMatch, err := r.inject("events.update_details")
	if err != nil || noMatch {
		return false, err
	}
	var applied bool
	err = r.with(func(st *state) error {
		cur, ok := st.events[e.Code]
		if !ok || cur.Status != e.Status {
			return nil
		}
		cur.Name = e.Name
		cur.Description = e.Description
		cur.Visibility = e.Visibility
		cur.IsScheduled = e.IsScheduled
		cur.StartDate = e.StartDate
		cur.UpdatedAt = e.UpdatedAt
		st.events[e.Code] = cur
		applied = true
		return nil
	})
	return applied, err
}

func (r *eventRepo) Settle(_ context.Context, code string, expected decimal.Decimal, at time.Time) (bool, error) {
	noMatch, err := r.inject("events.settle")
	if err != nil || noMatch {
		return false, err
	}
	var applied bool
	err = r.with(func(st *state) error {
		e, ok := st.events[code]
		if !ok || e.Status.Terminal() || !e.Amount.Equal(expected) {
			return nil
		}
		e.Amount = decimal.Zero
		e.Status = domain.EventCompleted
		e.FinishTime = &at
		e.UpdatedAt = at
		st.events[code] = e
		applied = true
		return nil
	})
	return applied, err
}

func (r *eventRepo) SaveParticipant(_ context.Context, code string, p domain.Participant) error {
	if _, err := r.inject("events.save_participant"); err != nil {
		return err
	}
	return r.with(func(st *state) error {
		e, ok := st.events[code]
		if !ok {
			return domain.Errorf(domain.ErrNotFound, "event %s not found", code)
		}
		idx := slices.IndexFunc(e.Participants, func(x domain.Participant) bool { return x.UserID == p.UserID })
		if idx >= 0 {
			e.Participants[idx] = p
		} else {
			e.Participants = append(e.Participants, p)
		}
		st.events[code] = e
		return nil
	})
}
