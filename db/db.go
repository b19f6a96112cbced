package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"planet/models"

	sqlbuilder "github.com/huandu/go-sqlbuilder"
	log "github.com/sirupsen/logrus"
	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// ErrDuplicateStory is returned by SaveStory when a story with the same
// identity already exists. Callers that pre-check with StoryExists will
// normally never see it, but two overlapping ingestion runs can both pass
// the pre-check and race to the insert; the primary key resolves it.
var ErrDuplicateStory = errors.New("story already exists")

// StoryKey is the resume position in the timeline ordering: newest first
// by published_at, ties broken by id so the ordering is total.
type StoryKey struct {
	PublishedAt int64
	Id          string
}

// DB handles all database operations with a shared connection pool
type DB struct {
	db *sql.DB
}

func NewDB(database string) (*DB, error) {
	db, err := connection(database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}
	return &DB{db: db}, nil
}

func (db *DB) Close() error {
	return db.db.Close()
}

// Write operations

func (db *DB) SaveStory(ctx context.Context, story models.Story) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	log.WithFields(log.Fields{
		"id":           story.Id,
		"author":       story.AuthorId,
		"published_at": time.Unix(story.PublishedAt, 0).Format(time.RFC3339),
	}).Info("Saving story")

	insertStory := sqlbuilder.NewInsertBuilder()
	query, args := insertStory.InsertInto("stories").
		Cols("id", "author_id", "author_name", "published_at", "title", "summary", "link", "announced").
		Values(story.Id, story.AuthorId, story.AuthorName, story.PublishedAt, story.Title, story.Summary, story.Link, story.Announced).
		Build()

	if _, err := db.db.ExecContext(ctx, query, args...); err != nil {
		if isConstraintErr(err) {
			return ErrDuplicateStory
		}
		return fmt.Errorf("insert error: %w", err)
	}

	return nil
}

// MarkAnnounced flips the announced flag for one story. The flag only
// moves in one direction; nothing in this package ever clears it.
func (db *DB) MarkAnnounced(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	updateStory := sqlbuilder.NewUpdateBuilder()
	query, args := updateStory.Update("stories").
		Set(updateStory.Assign("announced", 1)).
		Where(updateStory.Equal("id", id)).
		Build()

	if _, err := db.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update error: %w", err)
	}
	return nil
}

// Read operations

func (db *DB) StoryExists(ctx context.Context, id string) (bool, error) {
	var one int
	err := db.db.QueryRowContext(ctx, "SELECT 1 FROM stories WHERE id = ?", id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query error: %w", err)
	}
	return true, nil
}

// GetTimeline returns up to limit stories ordered newest first. A non-nil
// before key restricts the result to stories strictly older than that
// position under the (published_at, id) ordering. An empty authorId means
// all authors.
func (db *DB) GetTimeline(ctx context.Context, authorId string, before *StoryKey, limit int) ([]models.Story, error) {
	sb := sqlbuilder.NewSelectBuilder()
	sb.Select("id", "author_id", "author_name", "published_at", "title", "summary", "link", "announced").
		From("stories")

	if authorId != "" {
		sb.Where(sb.Equal("author_id", authorId))
	}

	if before != nil {
		sb.Where(sb.Or(
			sb.LessThan("published_at", before.PublishedAt),
			sb.And(
				sb.Equal("published_at", before.PublishedAt),
				sb.LessThan("id", before.Id),
			),
		))
	}

	sb.OrderBy("published_at DESC", "id DESC")
	sb.Limit(limit)

	query, args := sb.BuildWithFlavor(sqlbuilder.SQLite)
	return db.queryStories(ctx, query, args)
}

// GetUnannounced returns up to limit stories that have not been announced
// yet. The order is whatever SQLite hands back; the dispatcher only takes
// one at a time anyway.
func (db *DB) GetUnannounced(ctx context.Context, limit int) ([]models.Story, error) {
	sb := sqlbuilder.NewSelectBuilder()
	sb.Select("id", "author_id", "author_name", "published_at", "title", "summary", "link", "announced").
		From("stories").
		Where(sb.Equal("announced", 0)).
		Limit(limit)

	query, args := sb.BuildWithFlavor(sqlbuilder.SQLite)
	return db.queryStories(ctx, query, args)
}

func (db *DB) queryStories(ctx context.Context, query string, args []interface{}) ([]models.Story, error) {
	rows, err := db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query error: %w", err)
	}
	defer rows.Close()

	var stories []models.Story
	for rows.Next() {
		var story models.Story
		if err := rows.Scan(
			&story.Id,
			&story.AuthorId,
			&story.AuthorName,
			&story.PublishedAt,
			&story.Title,
			&story.Summary,
			&story.Link,
			&story.Announced,
		); err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		stories = append(stories, story)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return stories, nil
}

func isConstraintErr(err error) bool {
	var serr *sqlite.Error
	if !errors.As(err, &serr) {
		return false
	}
	switch serr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
		return true
	}
	return false
}
