package models

// Story model with the persisted fields of one aggregated blog post.
// The canonical link is the identity, so it appears twice on purpose:
// once as the key and once as the display field.
type Story struct {
	Id          string `json:"id"`
	AuthorId    string `json:"authorId"`
	AuthorName  string `json:"authorName"`
	PublishedAt int64  `json:"publishedAt"`
	Title       string `json:"title"`
	Summary     string `json:"summary"`
	Link        string `json:"link"`
	Announced   bool   `json:"-"`
}

// StoryDraft is a normalized feed entry before it is attributed to an
// author and persisted.
type StoryDraft struct {
	Title       string
	Summary     string
	Link        string
	PublishedAt int64
}

// CreateStoryEvent fired when a previously unseen story is ingested
type CreateStoryEvent struct {
	Story Story
}

type TimelineResponse struct {
	Stories []Story `json:"stories"`
	Cursor  *string `json:"cursor"`
	More    bool    `json:"more"`
}
