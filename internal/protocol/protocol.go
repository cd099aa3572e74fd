package protocol

import (
	"errors"
	"strings"
)

// ResponseKind is the kind of participant response a WAIT line asks for.
type ResponseKind string

const (
	// KindCorrect waits for the participant to answer a story question.
	KindCorrect ResponseKind = "CORRECT"
	// KindYesNo waits for a yes/no answer (e.g. "are you ready to play?").
	KindYesNo ResponseKind = "YES_NO"
)

// Accepts reports whether a tablet response is relevant to this kind.
// TIMEOUT is always accepted.
func (k ResponseKind) Accepts(r Response) bool {
	switch k {
	case KindCorrect:
		return r == ResponseCorrect || r == ResponseIncorrect || r == ResponseTimeout
	case KindYesNo:
		return r == ResponseYes || r == ResponseNo || r == ResponseTimeout
	default:
		return r == ResponseTimeout
	}
}

// Response is a classified participant response.
type Response string

const (
	ResponseCorrect   Response = "CORRECT"
	ResponseIncorrect Response = "INCORRECT"
	ResponseYes       Response = "YES"
	ResponseNo        Response = "NO"
	ResponseTimeout   Response = "TIMEOUT"
)

// ParseResponse classifies a raw response string. Matching is exact after
// trimming and upper-casing, so "INCORRECT" is never read as "CORRECT".
func ParseResponse(raw string) (Response, bool) {
	switch r := Response(strings.ToUpper(strings.TrimSpace(raw))); r {
	case ResponseCorrect, ResponseIncorrect, ResponseYes, ResponseNo, ResponseTimeout:
		return r, true
	default:
		return "", false
	}
}

// GameState is announced to the tablet and session manager.
type GameState string

const (
	StateStart      GameState = "START"
	StateInProgress GameState = "IN_PROGRESS"
	StatePause      GameState = "PAUSE"
	StateEnd        GameState = "END"
)

// Control signals accepted from the external queue. Matching against queued
// payloads is by containment.
const (
	ControlStart    = "START"
	ControlPause    = "PAUSE"
	ControlContinue = "CONTINUE"
	ControlEnd      = "END"
)

// Robot command actions and states.
const (
	RobotDo          = "DO"
	RobotNotSpeaking = "ROBOT_NOT_SPEAKING"
)

// Tablet (Opal) command actions.
const (
	OpalLoadObject      = "LOAD_OBJECT"
	OpalSetupStoryScene = "SETUP_STORY_SCENE"
	OpalShowCorrect     = "SHOW_CORRECT"
	OpalHideCorrect     = "HIDE_CORRECT"
)

// ErrNoStories is returned by a personalizer that has nothing to tell.
var ErrNoStories = errors.New("no stories available")

// StorySelection is the personalizer's choice of the next story.
type StorySelection struct {
	Script     string
	Scenes     []string
	InOrder    bool
	NumAnswers int
}

// SceneSetup is the SETUP_STORY_SCENE payload.
type SceneSetup struct {
	NumScenes     int  `json:"numScenes"`
	ScenesInOrder bool `json:"scenesInOrder"`
	NumAnswers    int  `json:"numAnswers"`
}

// LoadObject is the LOAD_OBJECT payload for one story scene. CorrectSlot is
// only present when scenes are shown out of order.
type LoadObject struct {
	Name         string `json:"name"`
	Tag          string `json:"tag"`
	Slot         int    `json:"slot"`
	CorrectSlot  *int   `json:"correctSlot,omitempty"`
	Draggable    bool   `json:"draggable"`
	IsAnswerSlot bool   `json:"isAnswerSlot"`
}

// Performance summarizes one session. It is sent with the END game state.
type Performance struct {
	Participant    string  `json:"participant"`
	Session        int     `json:"session"`
	SessionID      string  `json:"session_id,omitempty"`
	StoriesTold    int     `json:"stories_told"`
	Correct        int     `json:"correct"`
	Incorrect      int     `json:"incorrect"`
	PercentCorrect float64 `json:"percent_correct"`
	Level          int     `json:"level"`
	LeveledUp      bool    `json:"leveled_up"`
}
