package fetcher

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/crimson-sun/vidstat/internal/connector"
	"github.com/crimson-sun/vidstat/internal/connector/paginator"
	"github.com/crimson-sun/vidstat/internal/model"
	"github.com/crimson-sun/vidstat/internal/sink"
)

// Snapshot fetches the full current state of a snapshot entity for each of
// a fixed set of ids.
type Snapshot struct {
	common
	client paginator.Getter
	entity connector.Entity
	ids    []string
}

// NewSnapshot creates a Snapshot fetcher for entity and ids.
func NewSnapshot(client paginator.Getter, s sink.Sink, entity connector.Entity, ids []string, opts ...Option) *Snapshot {
	return &Snapshot{
		common: newCommon(s, opts),
		client: client,
		entity: entity,
		ids:    ids,
	}
}

// Fetch requests every id once and stores each body verbatim under
// {prefix}/{entity}/{id}/{run key time}.json. A failing id does not stop
// the others; its error is recorded on its result.
func (s *Snapshot) Fetch(ctx context.Context, run model.Run) []model.EntityResult {
	results := make([]model.EntityResult, 0, len(s.ids))
	for _, id := range s.ids {
		results = append(results, s.FetchID(ctx, id, run))
	}
	return results
}

// IDs returns the configured ids in fetch order.
func (s *Snapshot) IDs() []string { return s.ids }

// FetchID fetches and stores one id.
func (s *Snapshot) FetchID(ctx context.Context, id string, run model.Run) model.EntityResult {
	res := model.EntityResult{Entity: s.entity.Name, Key: id}
	if err := ctx.Err(); err != nil {
		res.Fail(err)
		return res
	}
	if err := s.fetchOne(ctx, id, run); err != nil {
		slog.Error("snapshot fetch failed", "entity", s.entity.Name, "id", id, "error", err)
		s.metrics.Failure(s.entity.Name)
		res.Fail(err)
		return res
	}
	res.Pages, res.Blobs = 1, 1
	s.metrics.Pages(s.entity.Name, 1)
	return res
}

func (s *Snapshot) fetchOne(ctx context.Context, id string, run model.Run) error {
	body, err := s.client.GetRaw(ctx, s.entity.ItemPath(id), nil)
	if err != nil {
		return fmt.Errorf("%s %s: %w", s.entity.Name, id, err)
	}
	key := s.key(s.entity.Name, id, run.KeyTime+".json")
	if err := s.put(ctx, s.entity.Name, key, body); err != nil {
		return fmt.Errorf("%s %s: %w", s.entity.Name, id, err)
	}
	return nil
}
