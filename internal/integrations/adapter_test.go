package integrations

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tripplanner/internal/model"
	"tripplanner/internal/places"
)

type pagedFeed struct {
	pages   [][]places.RawPlace
	cursors []string
	calls   []string
	err     error
}

func (f *pagedFeed) Name() string { return "paged" }

func (f *pagedFeed) FetchPlaces(_ context.Context, cursor string) (PlaceBatch, error) {
	f.calls = append(f.calls, cursor)
	if f.err != nil {
		return PlaceBatch{}, f.err
	}
	i := len(f.calls) - 1
	return PlaceBatch{Places: f.pages[i], Cursor: f.cursors[i]}, nil
}

type recordingSink struct {
	got []model.Place
	err error
}

func (s *recordingSink) UpsertPlaces(_ context.Context, ps []model.Place) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	s.got = append(s.got, ps...)
	return len(ps), nil
}

func TestImport_FollowsCursor(t *testing.T) {
	feed := &pagedFeed{
		pages: [][]places.RawPlace{
			{{ID: "a", Name: "Alfama"}, {ID: "b", Name: " "}},
			{{ID: "c", Name: "Chiado"}},
		},
		cursors: []string{"p2", ""},
	}
	sink := &recordingSink{}

	res, err := Import(context.Background(), feed, sink)
	require.NoError(t, err)
	assert.Equal(t, []string{"", "p2"}, feed.calls)
	assert.Equal(t, 2, res.Batches)
	assert.Equal(t, 2, res.Upserted)
	assert.Len(t, res.Rejected, 1)
	require.Len(t, sink.got, 2)
	assert.Equal(t, "Chiado", sink.got[1].Name)
}

func TestImport_StopsOnRepeatedCursor(t *testing.T) {
	feed := &pagedFeed{
		pages:   [][]places.RawPlace{{{ID: "a", Name: "A"}}, {{ID: "a", Name: "A"}}},
		cursors: []string{"same", "same"},
	}
	res, err := Import(context.Background(), feed, &recordingSink{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Batches)
}

func TestImport_Errors(t *testing.T) {
	boom := errors.New("boom")

	_, err := Import(context.Background(), &pagedFeed{err: boom}, &recordingSink{})
	assert.ErrorIs(t, err, boom)
	assert.ErrorContains(t, err, "paged: fetch")

	feed := &pagedFeed{pages: [][]places.RawPlace{{{ID: "a", Name: "A"}}}, cursors: []string{""}}
	_, err = Import(context.Background(), feed, &recordingSink{err: boom})
	assert.ErrorIs(t, err, boom)
	assert.ErrorContains(t, err, "paged: upsert")
}
