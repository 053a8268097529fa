package test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/url"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/suite"
	"golang.org/x/sync/errgroup"

	"github.com/relabs-tech/wedcards/core"
	"github.com/relabs-tech/wedcards/core/api"
	"github.com/relabs-tech/wedcards/core/notify"
	"github.com/relabs-tech/wedcards/core/ordering"
)

type OrderingTestSuite struct {
	IntegrationTestSuite
}

func TestOrderingTestSuite(t *testing.T) {
	suite.Run(t, &OrderingTestSuite{})
}

// requireDense checks that the group's positions are exactly 1..N
func (s *OrderingTestSuite) requireDense(ctx context.Context, group uuid.UUID) []ordering.Item {
	items, err := s.contents.GetGroup(ctx, group)
	s.Require().NoError(err)
	for i, it := range items {
		s.Require().Equal(i+1, it.Position, "positions of group %s: %v", group, positions(items))
	}
	report, err := s.contents.Validate(ctx, group)
	s.Require().NoError(err)
	s.Require().True(report.IsValid)
	return items
}

func (s *OrderingTestSuite) TestAppendIsMonotonic() {
	ctx := context.Background()
	group := uuid.New()
	for i := 1; i <= 5; i++ {
		item, err := s.contents.Append(ctx, group, fmt.Sprintf("item %d", i))
		s.Require().NoError(err)
		s.Equal(i, item.Position)
	}
	s.requireDense(ctx, group)
}

func (s *OrderingTestSuite) TestConcurrentAppends() {
	ctx := context.Background()
	group := uuid.New()

	var g errgroup.Group
	for i := 0; i < 2; i++ {
		g.Go(func() error {
			_, err := s.contents.Append(ctx, group, "concurrent")
			return err
		})
	}
	s.Require().NoError(g.Wait())
	s.Equal([]int{1, 2}, positions(s.requireDense(ctx, group)))

	g = errgroup.Group{}
	for i := 0; i < 20; i++ {
		g.Go(func() error {
			_, err := s.contents.Append(ctx, group, "burst")
			return err
		})
	}
	s.Require().NoError(g.Wait())
	s.Len(s.requireDense(ctx, group), 22)
}

func (s *OrderingTestSuite) TestInsertBoundaries() {
	ctx := context.Background()
	group := uuid.New()
	_, err := s.contents.BulkAppend(ctx, group, []string{"a", "b", "c"})
	s.Require().NoError(err)

	for _, position := range []int{0, -1, 5} {
		_, err = s.contents.InsertAt(ctx, group, position, "x")
		s.True(errors.Is(err, ordering.ErrInvalidPosition), "position %d: %v", position, err)
	}

	item, err := s.contents.InsertAt(ctx, group, 4, "tail")
	s.Require().NoError(err)
	s.Equal(4, item.Position)
	item, err = s.contents.InsertAt(ctx, group, 1, "head")
	s.Require().NoError(err)
	s.Equal(1, item.Position)

	items := s.requireDense(ctx, group)
	var payloads []string
	for _, it := range items {
		payloads = append(payloads, it.Payload)
	}
	s.Equal([]string{"head", "a", "b", "c", "tail"}, payloads)
}

func (s *OrderingTestSuite) TestDeleteCompacts() {
	ctx := context.Background()
	group := uuid.New()
	items, err := s.contents.BulkAppend(ctx, group, []string{"a", "b", "c", "d"})
	s.Require().NoError(err)

	s.Require().NoError(s.contents.Delete(ctx, group, items[1].ID))
	after := s.requireDense(ctx, group)
	s.Require().Len(after, 3)
	s.Equal(items[2].ID, after[1].ID)
	s.Equal(items[3].ID, after[2].ID)

	err = s.contents.Delete(ctx, group, items[1].ID)
	s.True(errors.Is(err, ordering.ErrNotFound))
}

func (s *OrderingTestSuite) TestReorder() {
	ctx := context.Background()
	group := uuid.New()
	items, err := s.contents.BulkAppend(ctx, group, []string{"a", "b", "c"})
	s.Require().NoError(err)

	err = s.contents.Reorder(ctx, group, []ordering.Placement{
		{ItemID: items[0].ID, Position: 3},
		{ItemID: items[1].ID, Position: 1},
		{ItemID: items[2].ID, Position: 2},
	})
	s.Require().NoError(err)
	after := s.requireDense(ctx, group)
	s.Equal([]uuid.UUID{items[1].ID, items[2].ID, items[0].ID}, []uuid.UUID{after[0].ID, after[1].ID, after[2].ID})

	invalid := [][]ordering.Placement{
		{{ItemID: items[0].ID, Position: 1}, {ItemID: items[1].ID, Position: 1}, {ItemID: items[2].ID, Position: 2}},
		{{ItemID: items[0].ID, Position: 1}, {ItemID: items[1].ID, Position: 2}, {ItemID: items[2].ID, Position: 4}},
		{{ItemID: items[0].ID, Position: 1}, {ItemID: items[1].ID, Position: 2}},
	}
	for _, placements := range invalid {
		err = s.contents.Reorder(ctx, group, placements)
		s.True(errors.Is(err, ordering.ErrInvalidOrder), "%v: %v", placements, err)
	}
	s.Equal(after, s.requireDense(ctx, group), "rejected reorders change nothing")
}

func (s *OrderingTestSuite) TestDensityUnderRandomOperations() {
	ctx := context.Background()
	group := uuid.New()
	rnd := rand.New(rand.NewSource(42))

	for i := 0; i < 60; i++ {
		items, err := s.contents.GetGroup(ctx, group)
		s.Require().NoError(err)
		n := len(items)
		switch op := rnd.Intn(5); {
		case op == 0 || n == 0:
			_, err = s.contents.Append(ctx, group, "appended")
		case op == 1:
			_, err = s.contents.InsertAt(ctx, group, 1+rnd.Intn(n+1), "inserted")
		case op == 2:
			err = s.contents.Delete(ctx, group, items[rnd.Intn(n)].ID)
		case op == 3:
			err = s.contents.Move(ctx, group, items[rnd.Intn(n)].ID, 1+rnd.Intn(n))
		default:
			placements := make([]ordering.Placement, n)
			for j, p := range rnd.Perm(n) {
				placements[j] = ordering.Placement{ItemID: items[j].ID, Position: p + 1}
			}
			err = s.contents.Reorder(ctx, group, placements)
		}
		s.Require().NoError(err)
		s.requireDense(ctx, group)
	}
}

func (s *OrderingTestSuite) TestFixIsIdempotent() {
	ctx := context.Background()
	group := uuid.New()
	items, err := s.contents.BulkAppend(ctx, group, []string{"a", "b", "c"})
	s.Require().NoError(err)

	// open gaps behind the ordering's back
	s.Require().NoError(s.contents.Store().UpdatePosition(ctx, group, items[2].ID, 10))
	s.Require().NoError(s.contents.Store().UpdatePosition(ctx, group, items[1].ID, 7))

	report, err := s.contents.Validate(ctx, group)
	s.Require().NoError(err)
	s.True(report.HasGaps)
	s.Equal([]int{1, 7, 10}, report.Actual)

	changed, err := s.contents.Fix(ctx, group)
	s.Require().NoError(err)
	s.True(changed)
	fixed := s.requireDense(ctx, group)

	changed, err = s.contents.Fix(ctx, group)
	s.Require().NoError(err)
	s.False(changed)
	if diff := cmp.Diff(fixed, s.requireDense(ctx, group)); diff != "" {
		s.Fail("second fix changed the group", diff)
	}
}

func (s *OrderingTestSuite) TestCloneAndClear() {
	ctx := context.Background()
	source, destination := uuid.New(), uuid.New()
	_, err := s.contents.BulkAppend(ctx, source, []string{"a", "b"})
	s.Require().NoError(err)
	_, err = s.contents.Append(ctx, destination, "existing")
	s.Require().NoError(err)

	copied, err := s.contents.Clone(ctx, source, destination)
	s.Require().NoError(err)
	s.Equal(2, copied)
	s.Len(s.requireDense(ctx, destination), 3)

	stats, err := s.contents.Stats(ctx, destination)
	s.Require().NoError(err)
	s.Equal(3, stats.Total)
	s.Equal(3, stats.MaxPosition)

	deleted, err := s.contents.Clear(ctx, destination)
	s.Require().NoError(err)
	s.Equal(3, deleted)
	items, err := s.contents.GetGroup(ctx, destination)
	s.Require().NoError(err)
	s.Empty(items)
}

func (s *OrderingTestSuite) TestNotifications() {
	ctx := context.Background()
	group := uuid.New()
	item, err := s.contents.Append(ctx, group, "a")
	s.Require().NoError(err)
	_, err = s.contents.Append(ctx, group, "b")
	s.Require().NoError(err)
	s.Require().NoError(s.contents.Delete(ctx, group, item.ID))

	s.Equal([]core.Operation{core.OperationCreate, core.OperationCreate, core.OperationDelete},
		s.recorder.operations("content"))

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  []string{s.kafkaAddr},
		Topic:    eventsTopic,
		MaxWait:  100 * time.Millisecond,
		MinBytes: 1,
		MaxBytes: 1 << 20,
	})
	defer reader.Close()
	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	// the topic carries the events of earlier tests as well
	for {
		msg, err := reader.ReadMessage(readCtx)
		s.Require().NoError(err)
		if string(msg.Key) != "content" {
			continue
		}
		var operation string
		for _, h := range msg.Headers {
			if h.Key == notify.HeaderOperation {
				operation = string(h.Value)
			}
		}
		if operation == string(core.OperationDelete) && bytes.Contains(msg.Value, []byte(group.String())) {
			return
		}
	}
}

func (s *OrderingTestSuite) TestTemplateCatalog() {
	catalog := s.client.Templates()
	for _, payload := range []string{"rustic", "classic", "garden"} {
		_, err := catalog.Create(payload)
		s.Require().NoError(err)
	}
	all, res, err := catalog.List(nil)
	s.Require().NoError(err)
	s.Require().Len(all, 3)
	s.Equal("3", res.Header.Get("Pagination-Total-Count"))

	moved, err := catalog.Move(all[2].ID, 1)
	s.Require().NoError(err)
	s.Equal([]string{"garden", "rustic", "classic"}, []string{moved[0].Payload, moved[1].Payload, moved[2].Payload})

	report, err := s.templates.Validate(context.Background(), api.CatalogGroup)
	s.Require().NoError(err)
	s.True(report.IsValid)

	found, _, err := catalog.List(url.Values{"search": {"class"}})
	s.Require().NoError(err)
	s.Require().Len(found, 1)
	s.Equal(2, found[0].Position)

	s.Equal([]core.Operation{core.OperationCreate, core.OperationCreate, core.OperationCreate},
		s.recorder.operations("template")[:3])
}
