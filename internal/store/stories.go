package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

// Story is one entry in the story library.
type Story struct {
	// Name is the story script file name, resolved under the story script
	// directory.
	Name       string   `yaml:"name" json:"name"`
	Level      int      `yaml:"level" json:"level"`
	Scenes     []string `yaml:"scenes" json:"scenes"`
	InOrder    bool     `yaml:"in_order" json:"in_order"`
	NumAnswers int      `yaml:"num_answers" json:"num_answers"`
}

// normalizeName trims and NFC-normalizes a story or participant name.
func normalizeName(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// Validate checks a story before it is stored.
func (st Story) Validate() error {
	if normalizeName(st.Name) == "" {
		return errors.New("story name is required")
	}
	if st.Level < 1 {
		return fmt.Errorf("story %s: level must be at least 1, got %d", st.Name, st.Level)
	}
	if len(st.Scenes) == 0 {
		return fmt.Errorf("story %s: at least one scene is required", st.Name)
	}
	if st.NumAnswers < 0 {
		return fmt.Errorf("story %s: num_answers must not be negative", st.Name)
	}
	return nil
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// UpsertStory adds a story to the library or replaces an existing story
// with the same name. A replaced story keeps its library position.
func (s *Store) UpsertStory(ctx context.Context, st Story) error {
	return upsertStory(ctx, s.db, st)
}

// ImportStories upserts every story in one transaction. Either all stories
// are stored or none are.
func (s *Store) ImportStories(ctx context.Context, stories []Story) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, st := range stories {
			if err := upsertStory(ctx, tx, st); err != nil {
				return err
			}
		}
		return nil
	})
}

func upsertStory(ctx context.Context, ex execer, st Story) error {
	if err := st.Validate(); err != nil {
		return fmt.Errorf("upsert story: %w", err)
	}
	scenes := make([]string, len(st.Scenes))
	for i, scene := range st.Scenes {
		scenes[i] = norm.NFC.String(scene)
	}
	scenesJSON, err := json.Marshal(scenes)
	if err != nil {
		return fmt.Errorf("upsert story %s: marshal scenes: %w", st.Name, err)
	}

	_, err = ex.ExecContext(ctx, `
		INSERT INTO stories (name, level, scenes, in_order, num_answers)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			level = excluded.level,
			scenes = excluded.scenes,
			in_order = excluded.in_order,
			num_answers = excluded.num_answers
	`,
		normalizeName(st.Name),
		st.Level,
		string(scenesJSON),
		st.InOrder,
		st.NumAnswers,
	)
	if err != nil {
		return fmt.Errorf("upsert story %s: %w", st.Name, err)
	}
	return nil
}

// ListStories returns the library ordered by level, then insertion order.
func (s *Store) ListStories(ctx context.Context) ([]Story, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, level, scenes, in_order, num_answers
		FROM stories
		ORDER BY level ASC, rowid ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list stories: %w", err)
	}
	defer rows.Close()

	var stories []Story
	for rows.Next() {
		st, err := scanStory(rows)
		if err != nil {
			return nil, fmt.Errorf("list stories: %w", err)
		}
		stories = append(stories, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list stories: %w", err)
	}
	return stories, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStory(r rowScanner) (Story, error) {
	var (
		st         Story
		scenesJSON string
	)
	if err := r.Scan(&st.Name, &st.Level, &scenesJSON, &st.InOrder, &st.NumAnswers); err != nil {
		return Story{}, err
	}
	if err := json.Unmarshal([]byte(scenesJSON), &st.Scenes); err != nil {
		return Story{}, fmt.Errorf("story %s: decode scenes: %w", st.Name, err)
	}
	return st, nil
}

// libraryFile is the YAML layout accepted by ReadLibrary.
type libraryFile struct {
	Stories []Story `yaml:"stories"`
}

// ReadLibrary parses a YAML story library:
//
//	stories:
//	  - name: story-lost-dog.txt
//	    level: 1
//	    scenes: [dog-1, dog-2, dog-3]
//	    in_order: false
//	    num_answers: 1
//
// Unknown keys are rejected so typos surface at import time.
func ReadLibrary(r io.Reader) ([]Story, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var lib libraryFile
	if err := dec.Decode(&lib); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("parse story library: %w", err)
	}

	seen := make(map[string]bool, len(lib.Stories))
	for i := range lib.Stories {
		st := &lib.Stories[i]
		if st.Level == 0 {
			st.Level = 1
		}
		if err := st.Validate(); err != nil {
			return nil, fmt.Errorf("story library entry %d: %w", i+1, err)
		}
		name := normalizeName(st.Name)
		if seen[name] {
			return nil, fmt.Errorf("story library entry %d: duplicate story %s", i+1, name)
		}
		seen[name] = true
	}
	return lib.Stories, nil
}
