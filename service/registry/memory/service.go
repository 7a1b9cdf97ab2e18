// Package memory provides an in-process Registry. Writes are visible to every
// reader as soon as the call returns.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/viant/buildfarm/internal/clock"
	"github.com/viant/buildfarm/model/builder"
	"github.com/viant/buildfarm/model/queue"
	"github.com/viant/buildfarm/service/dao"
	"github.com/viant/buildfarm/service/dao/criteria"
	"github.com/viant/buildfarm/service/dao/store"
	"github.com/viant/buildfarm/service/registry"
)

// Service implements registry.Registry on top of two memory stores.
type Service struct {
	builders *store.MemoryStore[string, builder.Builder]
	items    *store.MemoryStore[string, queue.Item]
	// mux serialises writes spanning both stores.
	mux sync.Mutex
}

var _ registry.Registry = (*Service)(nil)

// New creates an empty registry.
func New() *Service {
	return &Service{
		builders: store.NewMemoryStore[string, builder.Builder](
			func(b *builder.Builder) string { return b.Name },
			(*builder.Builder).Clone,
			nil),
		items: store.NewMemoryStore[string, queue.Item](
			func(i *queue.Item) string { return i.ID },
			(*queue.Item).Clone,
			matchItem),
	}
}

func matchItem(item *queue.Item, parameters []*dao.Parameter) bool {
	return criteria.Match(func(name string) (string, bool) {
		switch name {
		case "Status":
			return string(item.Status), true
		case "Builder":
			return item.Builder, true
		case "Kind":
			return string(item.Kind), true
		}
		return "", false
	}, parameters)
}

func (s *Service) Builder(ctx context.Context, name string) (*builder.Builder, error) {
	b, err := s.builders.Load(ctx, name)
	if errors.Is(err, dao.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", registry.ErrBuilderNotFound, name)
	}
	return b, err
}

func (s *Service) Builders(ctx context.Context) ([]*builder.Builder, error) {
	ret, err := s.builders.List(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].Name < ret[j].Name })
	return ret, nil
}

func (s *Service) SaveBuilder(ctx context.Context, b *builder.Builder) error {
	if b != nil && b.CleanStatus == "" {
		b = b.Clone()
		b.CleanStatus = builder.CleanStatusDirty
	}
	return s.builders.Save(ctx, b)
}

func (s *Service) updateBuilder(ctx context.Context, name string, fn func(*builder.Builder) error) error {
	err := s.builders.Update(ctx, name, fn)
	if errors.Is(err, dao.ErrNotFound) {
		return fmt.Errorf("%w: %s", registry.ErrBuilderNotFound, name)
	}
	return err
}

func (s *Service) updateItem(ctx context.Context, id string, fn func(*queue.Item) error) error {
	err := s.items.Update(ctx, id, fn)
	if errors.Is(err, dao.ErrNotFound) {
		return fmt.Errorf("%w: %s", registry.ErrItemNotFound, id)
	}
	return err
}

func (s *Service) SetCleanStatus(ctx context.Context, name string, status builder.CleanStatus) (*builder.Transition, error) {
	transition := &builder.Transition{Builder: name, To: status, At: clock.Now()}
	err := s.updateBuilder(ctx, name, func(b *builder.Builder) error {
		transition.From = b.CleanStatus
		b.CleanStatus = status
		b.DateCleanStatusChanged = transition.At
		return nil
	})
	if err != nil {
		return nil, err
	}
	return transition, nil
}

func (s *Service) FailBuilder(ctx context.Context, name, reason string) error {
	return s.updateBuilder(ctx, name, func(b *builder.Builder) error {
		b.BuilderOK = false
		b.FailNotes = reason
		return nil
	})
}

func (s *Service) RecordFailure(ctx context.Context, name string) (int, error) {
	var count int
	err := s.updateBuilder(ctx, name, func(b *builder.Builder) error {
		b.FailureCount++
		count = b.FailureCount
		return nil
	})
	return count, err
}

func (s *Service) ResetFailures(ctx context.Context, name string) error {
	return s.updateBuilder(ctx, name, func(b *builder.Builder) error {
		b.FailureCount = 0
		return nil
	})
}

func (s *Service) SaveItem(ctx context.Context, item *queue.Item) error {
	if item != nil && item.Status == "" {
		item = item.Clone()
		item.Status = queue.StatusNeedsBuild
	}
	if item != nil && item.DateCreated.IsZero() {
		item = item.Clone()
		item.DateCreated = clock.Now()
	}
	return s.items.Save(ctx, item)
}

func (s *Service) Item(ctx context.Context, id string) (*queue.Item, error) {
	item, err := s.items.Load(ctx, id)
	if errors.Is(err, dao.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", registry.ErrItemNotFound, id)
	}
	return item, err
}

func (s *Service) NextCandidate(ctx context.Context, vitals builder.Vitals) (*queue.Item, error) {
	waiting, err := s.items.List(ctx, dao.NewParameter("Status", string(queue.StatusNeedsBuild)))
	if err != nil {
		return nil, err
	}
	candidates := waiting[:0]
	for _, item := range waiting {
		if registry.Eligible(item, vitals) {
			candidates = append(candidates, item)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	registry.SortCandidates(candidates)
	return candidates[0], nil
}

func (s *Service) MarkBuilding(ctx context.Context, itemID, builderName string) error {
	s.mux.Lock()
	defer s.mux.Unlock()
	if _, err := s.Builder(ctx, builderName); err != nil {
		return err
	}
	now := clock.Now()
	err := s.updateItem(ctx, itemID, func(item *queue.Item) error {
		if item.Status != queue.StatusNeedsBuild || item.Builder != "" {
			return fmt.Errorf("%w: %s", registry.ErrItemNotAvailable, itemID)
		}
		item.Status = queue.StatusBuilding
		item.Builder = builderName
		item.DateStarted = now
		item.Logtail = ""
		return nil
	})
	if err != nil {
		return err
	}
	return s.updateBuilder(ctx, builderName, func(b *builder.Builder) error {
		b.CurrentItemID = itemID
		return nil
	})
}

func (s *Service) UpdateProgress(ctx context.Context, itemID string, progress queue.Progress) error {
	return s.updateItem(ctx, itemID, func(item *queue.Item) error {
		item.Logtail = progress.Logtail
		return nil
	})
}

func (s *Service) CompleteBuild(ctx context.Context, itemID string, outcome queue.Outcome) error {
	s.mux.Lock()
	defer s.mux.Unlock()
	var builderName string
	err := s.updateItem(ctx, itemID, func(item *queue.Item) error {
		builderName = item.Builder
		item.Status = outcome.Status
		item.Dependencies = outcome.Dependencies
		item.Results = outcome.Results
		item.DateFinished = outcome.FinishedAt
		if item.DateFinished.IsZero() {
			item.DateFinished = clock.Now()
		}
		return nil
	})
	if err != nil {
		return err
	}
	return s.releaseBuilder(ctx, builderName, itemID)
}

func (s *Service) ResetItem(ctx context.Context, itemID string) error {
	s.mux.Lock()
	defer s.mux.Unlock()
	var builderName string
	err := s.updateItem(ctx, itemID, func(item *queue.Item) error {
		builderName = item.Builder
		item.Status = queue.StatusNeedsBuild
		item.Builder = ""
		item.Logtail = ""
		item.DateStarted = time.Time{}
		return nil
	})
	if err != nil {
		return err
	}
	return s.releaseBuilder(ctx, builderName, itemID)
}

func (s *Service) releaseBuilder(ctx context.Context, name, itemID string) error {
	if name == "" {
		return nil
	}
	return s.updateBuilder(ctx, name, func(b *builder.Builder) error {
		if b.CurrentItemID == itemID {
			b.CurrentItemID = ""
		}
		return nil
	})
}
