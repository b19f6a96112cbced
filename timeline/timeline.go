package timeline

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"planet/config"
	"planet/db"
	"planet/models"

	log "github.com/sirupsen/logrus"
)

// ErrUnknownAuthor is returned when a page is requested for an author id
// that is not in the configured roster.
var ErrUnknownAuthor = errors.New("unknown author")

// Store is the slice of the store the pager needs.
type Store interface {
	GetTimeline(ctx context.Context, authorId string, before *db.StoryKey, limit int) ([]models.Story, error)
}

// Pager produces cursor-delimited pages over the story timeline, newest
// first. Cursors are forward only; there is no previous-page support.
type Pager struct {
	store  Store
	config *config.Config
}

func NewPager(store Store, cfg *config.Config) *Pager {
	return &Pager{store: store, config: cfg}
}

// Page returns one page of stories. An empty authorId means all authors,
// an empty cursor starts from the newest story. The response cursor is
// only set when more stories remain.
func (p *Pager) Page(ctx context.Context, authorId string, cursor string, limit int) (*models.TimelineResponse, error) {
	if authorId != "" {
		if _, ok := p.config.Author(authorId); !ok {
			return nil, ErrUnknownAuthor
		}
	}

	before := safeParseCursor(cursor)

	// Fetch one extra story to know whether another page exists.
	stories, err := p.store.GetTimeline(ctx, authorId, before, limit+1)
	if err != nil {
		log.Error("Error getting timeline", err)
		return nil, err
	}

	if stories == nil {
		stories = []models.Story{}
	}

	var nextCursor *string
	more := false

	if len(stories) > limit {
		// Remove the extra story we fetched to check for more results
		stories = stories[:limit]
		more = true
		last := stories[len(stories)-1]
		token := encodeCursor(db.StoryKey{PublishedAt: last.PublishedAt, Id: last.Id})
		nextCursor = &token
	}

	return &models.TimelineResponse{
		Stories: stories,
		Cursor:  nextCursor,
		More:    more,
	}, nil
}

// encodeCursor packs the resume position into an opaque token. Encoding
// the (published_at, id) pair instead of an offset keeps already-seen
// pages stable when new stories land between page fetches.
func encodeCursor(key db.StoryKey) string {
	raw := fmt.Sprintf("%d|%s", key.PublishedAt, key.Id)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// safeParseCursor decodes a cursor token back into a resume position.
// Anything unparseable means the first page.
func safeParseCursor(cursor string) *db.StoryKey {
	if cursor == "" {
		return nil
	}

	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return nil
	}

	parts := strings.SplitN(string(raw), "|", 2)
	if len(parts) != 2 || parts[1] == "" {
		return nil
	}

	publishedAt, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return nil
	}

	return &db.StoryKey{PublishedAt: publishedAt, Id: parts[1]}
}
