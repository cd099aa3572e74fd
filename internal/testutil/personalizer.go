package testutil

import (
	"context"
	"sync"

	"github.com/roach88/socialstories/internal/protocol"
)

// RecordedResponse is one response passed to StaticPersonalizer.
type RecordedResponse struct {
	Story    string
	Kind     protocol.ResponseKind
	Response protocol.Response
}

// StaticPersonalizer hands out a fixed list of stories in rotation and
// keeps recorded responses in memory.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type StaticPersonalizer struct {
	mu        sync.Mutex
	stories   []protocol.StorySelection
	next      int
	responses []RecordedResponse

	// Participant and Session label the performance summary.
	Participant string
	Session     int
	// NextErr, when set, is returned from NextStory.
	NextErr error
}

// NewStaticPersonalizer creates a personalizer cycling through stories.
// With no stories, NextStory returns protocol.ErrNoStories.
func NewStaticPersonalizer(stories ...protocol.StorySelection) *StaticPersonalizer {
	return &StaticPersonalizer{stories: stories}
}

// NextStory returns the next story in rotation.
func (p *StaticPersonalizer) NextStory(ctx context.Context) (protocol.StorySelection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.NextErr != nil {
		return protocol.StorySelection{}, p.NextErr
	}
	if len(p.stories) == 0 {
		return protocol.StorySelection{}, protocol.ErrNoStories
	}
	s := p.stories[p.next%len(p.stories)]
	p.next++
	return s, nil
}

// RecordResponse keeps the response.
func (p *StaticPersonalizer) RecordResponse(ctx context.Context, story string, kind protocol.ResponseKind, resp protocol.Response) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.responses = append(p.responses, RecordedResponse{Story: story, Kind: kind, Response: resp})
	return nil
}

// EndSession summarizes the CORRECT-kind responses recorded so far.
func (p *StaticPersonalizer) EndSession(ctx context.Context) (protocol.Performance, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	perf := protocol.Performance{Participant: p.Participant, Session: p.Session}
	for _, r := range p.responses {
		if r.Kind != protocol.KindCorrect {
			continue
		}
		if r.Response == protocol.ResponseCorrect {
			perf.Correct++
		} else {
			perf.Incorrect++
		}
	}
	if total := perf.Correct + perf.Incorrect; total > 0 {
		perf.PercentCorrect = float64(perf.Correct) / float64(total)
	}
	return perf, nil
}

// Responses returns a copy of every recorded response.
func (p *StaticPersonalizer) Responses() []RecordedResponse {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]RecordedResponse(nil), p.responses...)
}

// Served returns how many stories NextStory has handed out.
func (p *StaticPersonalizer) Served() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.next
}
