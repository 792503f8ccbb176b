package memory

import (
	"context"
	"sort"

	"github.com/garyjia/tutor-matching/internal/application/port"
	"github.com/garyjia/tutor-matching/internal/domain/entity"
)

type requirementRepo struct{ s *Store }

func (r *requirementRepo) Create(ctx context.Context, req *entity.Requirement) error {
	return r.s.write(ctx, func() (func(), error) {
		if _, ok := r.s.requirements[req.ID]; ok {
			return nil, uniqueErr("requirement %s", req.ID)
		}
		req.Version = 1
		r.s.requirements[req.ID] = req.Clone()
		return restore(r.s.requirements, req.ID, nil, false), nil
	})
}

func (r *requirementRepo) GetByID(ctx context.Context, id string) (*entity.Requirement, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	req, ok := r.s.requirements[id]
	if !ok {
		return nil, port.ErrNotFound
	}
	return req.Clone(), nil
}

func (r *requirementRepo) List(ctx context.Context, filter port.RequirementFilter) ([]*entity.Requirement, error) {
	r.s.mu.RLock()
	var out []*entity.Requirement
	for _, req := range r.s.requirements {
		if filter.ParentID != "" && req.ParentID != filter.ParentID {
			continue
		}
		if filter.Status != "" && req.Status != filter.Status {
			continue
		}
		out = append(out, req.Clone())
	}
	r.s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].PostedAt.Equal(out[j].PostedAt) {
			return out[i].PostedAt.After(out[j].PostedAt)
		}
		return out[i].ID < out[j].ID
	})
	return page(out, filter.Limit, filter.Offset), nil
}

func (r *requirementRepo) Update(ctx context.Context, req *entity.Requirement) error {
	next := req.Clone()
	next.Version = req.Version + 1
	err := r.s.write(ctx, func() (func(), error) {
		return swap(r.s.requirements, req.ID, req.Version, func(x *entity.Requirement) int64 { return x.Version }, next)
	})
	if err == nil {
		req.Version++
	}
	return err
}

func (r *requirementRepo) Delete(ctx context.Context, id string, expectedVersion int64) error {
	return r.s.write(ctx, func() (func(), error) {
		prev, ok := r.s.requirements[id]
		if !ok {
			return nil, port.ErrNotFound
		}
		if prev.Version != expectedVersion {
			return nil, port.ErrVersionConflict
		}
		delete(r.s.requirements, id)
		return restore(r.s.requirements, id, prev, true), nil
	})
}

type associationRepo struct{ s *Store }

// checkAssociation enforces one row per pair and one ASSIGNED row per requirement
func (r *associationRepo) checkAssociation(a *entity.TutorAssociation) error {
	for id, other := range r.s.associations {
		if id == a.ID || other.RequirementID != a.RequirementID {
			continue
		}
		if other.TutorID == a.TutorID {
			return uniqueErr("association for requirement %s tutor %s", a.RequirementID, a.TutorID)
		}
		if a.Status == entity.AssociationStatusAssigned && other.Status == entity.AssociationStatusAssigned {
			return uniqueErr("requirement %s already has an assigned tutor", a.RequirementID)
		}
	}
	return nil
}

func (r *associationRepo) Create(ctx context.Context, a *entity.TutorAssociation) error {
	return r.s.write(ctx, func() (func(), error) {
		if _, ok := r.s.associations[a.ID]; ok {
			return nil, uniqueErr("association %s", a.ID)
		}
		if err := r.checkAssociation(a); err != nil {
			return nil, err
		}
		a.Version = 1
		r.s.associations[a.ID] = a.Clone()
		return restore(r.s.associations, a.ID, nil, false), nil
	})
}

func (r *associationRepo) GetByID(ctx context.Context, id string) (*entity.TutorAssociation, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	a, ok := r.s.associations[id]
	if !ok {
		return nil, port.ErrNotFound
	}
	return a.Clone(), nil
}

func (r *associationRepo) GetByPair(ctx context.Context, requirementID, tutorID string) (*entity.TutorAssociation, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, a := range r.s.associations {
		if a.RequirementID == requirementID && a.TutorID == tutorID {
			return a.Clone(), nil
		}
	}
	return nil, port.ErrNotFound
}

func (r *associationRepo) filter(keep func(*entity.TutorAssociation) bool) []*entity.TutorAssociation {
	r.s.mu.RLock()
	var out []*entity.TutorAssociation
	for _, a := range r.s.associations {
		if keep(a) {
			out = append(out, a.Clone())
		}
	}
	r.s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (r *associationRepo) ListByRequirement(ctx context.Context, requirementID string) ([]*entity.TutorAssociation, error) {
	return r.filter(func(a *entity.TutorAssociation) bool { return a.RequirementID == requirementID }), nil
}

func (r *associationRepo) ListByTutor(ctx context.Context, tutorID string) ([]*entity.TutorAssociation, error) {
	return r.filter(func(a *entity.TutorAssociation) bool { return a.TutorID == tutorID }), nil
}

func (r *associationRepo) Update(ctx context.Context, a *entity.TutorAssociation) error {
	next := a.Clone()
	next.Version = a.Version + 1
	err := r.s.write(ctx, func() (func(), error) {
		if err := r.checkAssociation(a); err != nil {
			return nil, err
		}
		return swap(r.s.associations, a.ID, a.Version, func(x *entity.TutorAssociation) int64 { return x.Version }, next)
	})
	if err == nil {
		a.Version++
	}
	return err
}

func (r *associationRepo) DeleteByRequirement(ctx context.Context, requirementID string) error {
	return r.s.write(ctx, func() (func(), error) {
		var undo []func()
		for id, a := range r.s.associations {
			if a.RequirementID == requirementID {
				undo = append(undo, restore(r.s.associations, id, a, true))
				delete(r.s.associations, id)
			}
		}
		return chain(undo), nil
	})
}

type demoRepo struct{ s *Store }

// checkActive enforces one Requested or Scheduled demo per pair
func (r *demoRepo) checkActive(d *entity.DemoSession) error {
	if !d.IsActive() {
		return nil
	}
	for id, other := range r.s.demos {
		if id != d.ID && other.RequirementID == d.RequirementID && other.TutorID == d.TutorID && other.IsActive() {
			return uniqueErr("active demo for requirement %s tutor %s", d.RequirementID, d.TutorID)
		}
	}
	return nil
}

func (r *demoRepo) Create(ctx context.Context, d *entity.DemoSession) error {
	return r.s.write(ctx, func() (func(), error) {
		if _, ok := r.s.demos[d.ID]; ok {
			return nil, uniqueErr("demo %s", d.ID)
		}
		if err := r.checkActive(d); err != nil {
			return nil, err
		}
		d.Version = 1
		r.s.demos[d.ID] = d.Clone()
		return restore(r.s.demos, d.ID, nil, false), nil
	})
}

func (r *demoRepo) GetByID(ctx context.Context, id string) (*entity.DemoSession, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	d, ok := r.s.demos[id]
	if !ok {
		return nil, port.ErrNotFound
	}
	return d.Clone(), nil
}

func (r *demoRepo) ListByRequirement(ctx context.Context, requirementID string) ([]*entity.DemoSession, error) {
	r.s.mu.RLock()
	var out []*entity.DemoSession
	for _, d := range r.s.demos {
		if d.RequirementID == requirementID {
			out = append(out, d.Clone())
		}
	}
	r.s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Slot.StartAt.Equal(out[j].Slot.StartAt) {
			return out[i].Slot.StartAt.Before(out[j].Slot.StartAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *demoRepo) FindActive(ctx context.Context, requirementID, tutorID string) (*entity.DemoSession, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, d := range r.s.demos {
		if d.RequirementID == requirementID && d.TutorID == tutorID && d.IsActive() {
			return d.Clone(), nil
		}
	}
	return nil, port.ErrNotFound
}

func (r *demoRepo) Update(ctx context.Context, d *entity.DemoSession) error {
	next := d.Clone()
	next.Version = d.Version + 1
	err := r.s.write(ctx, func() (func(), error) {
		if err := r.checkActive(d); err != nil {
			return nil, err
		}
		return swap(r.s.demos, d.ID, d.Version, func(x *entity.DemoSession) int64 { return x.Version }, next)
	})
	if err == nil {
		d.Version++
	}
	return err
}

func (r *demoRepo) DeleteByRequirement(ctx context.Context, requirementID string) error {
	return r.s.write(ctx, func() (func(), error) {
		var undo []func()
		for id, d := range r.s.demos {
			if d.RequirementID == requirementID {
				undo = append(undo, restore(r.s.demos, id, d, true))
				delete(r.s.demos, id)
			}
		}
		return chain(undo), nil
	})
}

type classRepo struct{ s *Store }

// checkLive enforces one non-cancelled class per pair
func (r *classRepo) checkLive(c *entity.Class) error {
	if c.Status == entity.ClassStatusCancelled {
		return nil
	}
	for id, other := range r.s.classes {
		if id != c.ID && other.RequirementID == c.RequirementID && other.TutorID == c.TutorID &&
			other.Status != entity.ClassStatusCancelled {
			return uniqueErr("live class for requirement %s tutor %s", c.RequirementID, c.TutorID)
		}
	}
	return nil
}

func (r *classRepo) Create(ctx context.Context, c *entity.Class) error {
	return r.s.write(ctx, func() (func(), error) {
		if _, ok := r.s.classes[c.ID]; ok {
			return nil, uniqueErr("class %s", c.ID)
		}
		if err := r.checkLive(c); err != nil {
			return nil, err
		}
		c.Version = 1
		r.s.classes[c.ID] = c.Clone()
		return restore(r.s.classes, c.ID, nil, false), nil
	})
}

func (r *classRepo) GetByID(ctx context.Context, id string) (*entity.Class, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	c, ok := r.s.classes[id]
	if !ok {
		return nil, port.ErrNotFound
	}
	return c.Clone(), nil
}

func (r *classRepo) collect(keep func(*entity.Class) bool) []*entity.Class {
	r.s.mu.RLock()
	var out []*entity.Class
	for _, c := range r.s.classes {
		if keep(c) {
			out = append(out, c.Clone())
		}
	}
	r.s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartDate.Equal(out[j].StartDate) {
			return out[i].StartDate.Before(out[j].StartDate)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (r *classRepo) ListByRequirement(ctx context.Context, requirementID string) ([]*entity.Class, error) {
	return r.collect(func(c *entity.Class) bool { return c.RequirementID == requirementID }), nil
}

func (r *classRepo) ListByStatus(ctx context.Context, statuses []string, limit int) ([]*entity.Class, error) {
	want := make(map[string]bool, len(statuses))
	for _, s := range statuses {
		want[s] = true
	}
	out := r.collect(func(c *entity.Class) bool { return want[c.Status] })
	return page(out, limit, 0), nil
}

func (r *classRepo) Update(ctx context.Context, c *entity.Class) error {
	next := c.Clone()
	next.Version = c.Version + 1
	err := r.s.write(ctx, func() (func(), error) {
		if err := r.checkLive(c); err != nil {
			return nil, err
		}
		return swap(r.s.classes, c.ID, c.Version, func(x *entity.Class) int64 { return x.Version }, next)
	})
	if err == nil {
		c.Version++
	}
	return err
}

func chain(undo []func()) func() {
	return func() {
		for i := len(undo) - 1; i >= 0; i-- {
			undo[i]()
		}
	}
}

func page[T any](items []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
