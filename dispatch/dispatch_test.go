package dispatch_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"planet/dispatch"
	"planet/models"

	"github.com/stretchr/testify/assert"
)

type fakeStore struct {
	stories []models.Story
	marked  []string
}

func (s *fakeStore) GetUnannounced(ctx context.Context, limit int) ([]models.Story, error) {
	var pending []models.Story
	for _, story := range s.stories {
		if story.Announced {
			continue
		}
		pending = append(pending, story)
		if len(pending) == limit {
			break
		}
	}
	return pending, nil
}

func (s *fakeStore) MarkAnnounced(ctx context.Context, id string) error {
	for i := range s.stories {
		if s.stories[i].Id == id {
			s.stories[i].Announced = true
		}
	}
	s.marked = append(s.marked, id)
	return nil
}

type fakeAnnouncer struct {
	messages []string
	err      error
}

func (a *fakeAnnouncer) Announce(ctx context.Context, text string) error {
	a.messages = append(a.messages, text)
	return a.err
}

func story(id string) models.Story {
	return models.Story{
		Id:    id,
		Title: "Title for " + id,
		Link:  id,
	}
}

func TestTickAnnouncesOneStory(t *testing.T) {
	store := &fakeStore{stories: []models.Story{story("https://example.com/a")}}
	announcer := &fakeAnnouncer{}

	id, err := dispatch.NewLoop(store, announcer).Tick(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, "https://example.com/a", id)
	assert.Equal(t, []string{"https://example.com/a"}, store.marked)
	assert.Len(t, announcer.messages, 1)
	assert.Equal(t, "Title for https://example.com/a https://example.com/a", announcer.messages[0])
}

func TestTickNothingPending(t *testing.T) {
	store := &fakeStore{}
	announcer := &fakeAnnouncer{}

	id, err := dispatch.NewLoop(store, announcer).Tick(context.Background())
	assert.NoError(t, err)
	assert.Empty(t, id)
	assert.Empty(t, announcer.messages)
	assert.Empty(t, store.marked)
}

func TestTickMarksStoryOnAnnounceFailure(t *testing.T) {
	store := &fakeStore{stories: []models.Story{story("https://example.com/a")}}
	announcer := &fakeAnnouncer{err: errors.New("channel down")}

	// The attempt fails but the bookkeeping moves forward anyway.
	id, err := dispatch.NewLoop(store, announcer).Tick(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, "https://example.com/a", id)
	assert.Equal(t, []string{"https://example.com/a"}, store.marked)
	assert.True(t, store.stories[0].Announced)
}

func TestTickHandlesOneStoryAtATime(t *testing.T) {
	store := &fakeStore{stories: []models.Story{
		story("https://example.com/a"),
		story("https://example.com/b"),
	}}
	announcer := &fakeAnnouncer{}
	loop := dispatch.NewLoop(store, announcer)

	_, err := loop.Tick(context.Background())
	assert.NoError(t, err)
	assert.Len(t, store.marked, 1)

	_, err = loop.Tick(context.Background())
	assert.NoError(t, err)
	assert.Len(t, store.marked, 2)

	// Everything announced, further ticks are noops
	id, err := loop.Tick(context.Background())
	assert.NoError(t, err)
	assert.Empty(t, id)
}

func TestMessageTruncatesLongTitles(t *testing.T) {
	long := story("https://example.com/long")
	long.Title = strings.Repeat("ø", 150)

	message := dispatch.Message(long)
	assert.Equal(t, strings.Repeat("ø", 120)+" https://example.com/long", message)

	short := story("https://example.com/short")
	assert.Equal(t, "Title for https://example.com/short https://example.com/short", dispatch.Message(short))
}
