package engine

import (
	"context"
	"io/fs"
	"time"

	"github.com/roach88/socialstories/internal/protocol"
)

// Transport delivers commands to the robot and tablet and collects
// participant responses.
//
// WaitForResponse blocks until a response of the requested kind arrives,
// the timeout elapses (ResponseTimeout, nil error), or ctx is cancelled.
type Transport interface {
	SendRobotCommand(ctx context.Context, action, payload string) error
	SendRobotCommandAndWait(ctx context.Context, action, payload, until string, timeout time.Duration) error
	SendOpalCommand(ctx context.Context, action, payload string) error
	SendGameState(ctx context.Context, state protocol.GameState, extra string) error
	WaitForResponse(ctx context.Context, kind protocol.ResponseKind, timeout time.Duration) (protocol.Response, error)
}

// Personalizer chooses stories for the participant and keeps their
// performance record.
type Personalizer interface {
	// NextStory returns protocol.ErrNoStories when nothing can be told.
	NextStory(ctx context.Context) (protocol.StorySelection, error)
	RecordResponse(ctx context.Context, story string, kind protocol.ResponseKind, resp protocol.Response) error
	EndSession(ctx context.Context) (protocol.Performance, error)
}

// Scripts locates the three families of script files.
//
// Session holds main session scripts, Story holds story scripts, and Shared
// holds repeat scripts, response pools, and object lists.
type Scripts struct {
	Session fs.FS
	Story   fs.FS
	Shared  fs.FS
}
