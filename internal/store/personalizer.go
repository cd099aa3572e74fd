package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/socialstories/internal/protocol"
)

// DefaultLevelThreshold is the fraction of correct answers needed to level up.
const DefaultLevelThreshold = 0.75

// Personalizer chooses stories for one participant's session and keeps
// their performance record. It satisfies engine.Personalizer.
type Personalizer struct {
	store       *Store
	participant string
	session     int
	sessionID   string
	threshold   float64
	ids         IDGenerator
}

// PersonalizerOption configures a Personalizer.
type PersonalizerOption func(*Personalizer)

// WithIDGenerator sets how session ids are generated.
func WithIDGenerator(g IDGenerator) PersonalizerOption {
	return func(p *Personalizer) { p.ids = g }
}

// WithLevelThreshold sets the fraction of correct answers needed to level
// up at the end of the session.
func WithLevelThreshold(f float64) PersonalizerOption {
	return func(p *Personalizer) { p.threshold = f }
}

// NewPersonalizer registers the participant if needed and opens a session
// record.
func NewPersonalizer(ctx context.Context, st *Store, participant string, session int, opts ...PersonalizerOption) (*Personalizer, error) {
	participant = normalizeName(participant)
	if participant == "" {
		return nil, errors.New("participant id is required")
	}

	p := &Personalizer{
		store:       st,
		participant: participant,
		session:     session,
		threshold:   DefaultLevelThreshold,
		ids:         UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(p)
	}
	p.sessionID = p.ids.Generate()

	err := st.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO participants (id) VALUES (?)
			ON CONFLICT(id) DO NOTHING
		`, participant); err != nil {
			return fmt.Errorf("register participant: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO sessions (id, participant_id, session) VALUES (?, ?, ?)
		`, p.sessionID, participant, session); err != nil {
			return fmt.Errorf("open session record: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("session record opened",
		"participant", participant,
		"session", session,
		"session_id", p.sessionID,
	)
	return p, nil
}

// SessionID returns the generated id of this session's record.
func (p *Personalizer) SessionID() string { return p.sessionID }

// Level returns the participant's current level.
func (p *Personalizer) Level(ctx context.Context) (int, error) {
	return p.store.ParticipantLevel(ctx, p.participant)
}

// NextStory picks the next story and records it as told.
//
// Stories at the participant's level are preferred, falling back to the
// highest lower level. Within a level, stories never told to the
// participant come first in library order, then the least recently told.
// It returns protocol.ErrNoStories when nothing qualifies.
func (p *Personalizer) NextStory(ctx context.Context) (protocol.StorySelection, error) {
	level, err := p.Level(ctx)
	if err != nil {
		return protocol.StorySelection{}, fmt.Errorf("next story: %w", err)
	}

	row := p.store.db.QueryRowContext(ctx, `
		SELECT s.name, s.level, s.scenes, s.in_order, s.num_answers
		FROM stories s
		LEFT JOIN (
			SELECT story, MAX(id) AS last_told
			FROM story_history
			WHERE participant_id = ?
			GROUP BY story
		) h ON h.story = s.name
		WHERE s.level <= ?
		ORDER BY s.level DESC,
		         h.last_told IS NOT NULL ASC,
		         h.last_told ASC,
		         s.rowid ASC
		LIMIT 1
	`, p.participant, level)

	st, err := scanStory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return protocol.StorySelection{}, fmt.Errorf("participant %s at level %d: %w",
			p.participant, level, protocol.ErrNoStories)
	}
	if err != nil {
		return protocol.StorySelection{}, fmt.Errorf("next story: %w", err)
	}

	if _, err := p.store.db.ExecContext(ctx, `
		INSERT INTO story_history (participant_id, session_id, story) VALUES (?, ?, ?)
	`, p.participant, p.sessionID, st.Name); err != nil {
		return protocol.StorySelection{}, fmt.Errorf("record story %s: %w", st.Name, err)
	}

	slog.Debug("story chosen",
		"participant", p.participant,
		"level", level,
		"story", st.Name,
	)
	return protocol.StorySelection{
		Script:     st.Name,
		Scenes:     st.Scenes,
		InOrder:    st.InOrder,
		NumAnswers: st.NumAnswers,
	}, nil
}

// RecordResponse appends a classified response to the session's log.
func (p *Personalizer) RecordResponse(ctx context.Context, story string, kind protocol.ResponseKind, resp protocol.Response) error {
	_, err := p.store.db.ExecContext(ctx, `
		INSERT INTO responses (session_id, story, kind, response) VALUES (?, ?, ?, ?)
	`, p.sessionID, normalizeName(story), string(kind), string(resp))
	if err != nil {
		return fmt.Errorf("record response: %w", err)
	}
	return nil
}

// EndSession closes the session record and returns its summary.
//
// Only answers to story questions (CORRECT-kind waits) are scored; a
// timeout counts as incorrect. If the fraction correct reaches the
// threshold the participant moves up one level. A session with no scored
// answers never levels up.
func (p *Personalizer) EndSession(ctx context.Context) (protocol.Performance, error) {
	perf := protocol.Performance{
		Participant: p.participant,
		Session:     p.session,
		SessionID:   p.sessionID,
	}

	err := p.store.withTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `
			SELECT
				COALESCE(SUM(CASE WHEN response = ? THEN 1 ELSE 0 END), 0),
				COALESCE(SUM(CASE WHEN response <> ? THEN 1 ELSE 0 END), 0)
			FROM responses
			WHERE session_id = ? AND kind = ?
		`, string(protocol.ResponseCorrect), string(protocol.ResponseCorrect),
			p.sessionID, string(protocol.KindCorrect)).Scan(&perf.Correct, &perf.Incorrect)
		if err != nil {
			return fmt.Errorf("score session: %w", err)
		}

		if err := tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM story_history WHERE session_id = ?
		`, p.sessionID).Scan(&perf.StoriesTold); err != nil {
			return fmt.Errorf("count stories: %w", err)
		}

		if err := tx.QueryRowContext(ctx, `
			SELECT level FROM participants WHERE id = ?
		`, p.participant).Scan(&perf.Level); err != nil {
			return fmt.Errorf("read level: %w", err)
		}

		if total := perf.Correct + perf.Incorrect; total > 0 {
			perf.PercentCorrect = float64(perf.Correct) / float64(total)
			if perf.PercentCorrect >= p.threshold {
				perf.Level++
				perf.LeveledUp = true
				if _, err := tx.ExecContext(ctx, `
					UPDATE participants SET level = ? WHERE id = ?
				`, perf.Level, p.participant); err != nil {
					return fmt.Errorf("level up: %w", err)
				}
			}
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE sessions SET
				ended_at = CURRENT_TIMESTAMP,
				correct = ?,
				incorrect = ?,
				percent_correct = ?,
				level = ?,
				leveled_up = ?
			WHERE id = ?
		`, perf.Correct, perf.Incorrect, perf.PercentCorrect, perf.Level, perf.LeveledUp, p.sessionID)
		if err != nil {
			return fmt.Errorf("close session record: %w", err)
		}
		return nil
	})
	if err != nil {
		return protocol.Performance{}, fmt.Errorf("end session: %w", err)
	}

	slog.Info("session record closed",
		"participant", p.participant,
		"session_id", p.sessionID,
		"percent_correct", perf.PercentCorrect,
		"level", perf.Level,
		"leveled_up", perf.LeveledUp,
	)
	return perf, nil
}

// ParticipantLevel returns a participant's level. Unknown participants are
// at level 1.
func (s *Store) ParticipantLevel(ctx context.Context, participant string) (int, error) {
	var level int
	err := s.db.QueryRowContext(ctx, `
		SELECT level FROM participants WHERE id = ?
	`, normalizeName(participant)).Scan(&level)
	if errors.Is(err, sql.ErrNoRows) {
		return 1, nil
	}
	if err != nil {
		return 0, fmt.Errorf("participant level: %w", err)
	}
	return level, nil
}

// SetParticipantLevel sets a participant's level, registering them if needed.
func (s *Store) SetParticipantLevel(ctx context.Context, participant string, level int) error {
	if level < 1 {
		return fmt.Errorf("level must be at least 1, got %d", level)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO participants (id, level) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET level = excluded.level
	`, normalizeName(participant), level)
	if err != nil {
		return fmt.Errorf("set participant level: %w", err)
	}
	return nil
}
