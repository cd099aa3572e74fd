package rosbridge

import "encoding/json"

// Topics used by the game node.
const (
	TopicRobotCommand = "/robot_command"
	TopicOpalCommand  = "/opal_command"
	TopicGameState    = "/game_state"
	TopicGameCommand  = "/game_command"
	TopicOpalAction   = "/opal_action"
	TopicRobotState   = "/robot_state"
)

// Message types advertised and subscribed on each topic.
var topicTypes = map[string]string{
	TopicRobotCommand: "social_stories_msgs/RobotCommand",
	TopicOpalCommand:  "social_stories_msgs/OpalCommand",
	TopicGameState:    "social_stories_msgs/GameState",
	TopicGameCommand:  "social_stories_msgs/GameCommand",
	TopicOpalAction:   "social_stories_msgs/OpalAction",
	TopicRobotState:   "social_stories_msgs/RobotState",
}

var (
	publishTopics   = []string{TopicRobotCommand, TopicOpalCommand, TopicGameState}
	subscribeTopics = []string{TopicGameCommand, TopicOpalAction, TopicRobotState}
)

// frame is a rosbridge protocol message.
type frame struct {
	Op    string          `json:"op"`
	Topic string          `json:"topic"`
	Type  string          `json:"type,omitempty"`
	Msg   json.RawMessage `json:"msg,omitempty"`
}

// commandMsg is the body of /robot_command and /opal_command.
type commandMsg struct {
	Command    string `json:"command"`
	Properties string `json:"properties,omitempty"`
}

// gameStateMsg is the body of /game_state.
type gameStateMsg struct {
	State       string `json:"state"`
	Performance string `json:"performance,omitempty"`
}

// gameCommandMsg is the body of /game_command.
type gameCommandMsg struct {
	Command string `json:"command"`
	Data    string `json:"data"`
}

// opalActionMsg is the body of /opal_action.
type opalActionMsg struct {
	Action  string `json:"action"`
	Message string `json:"message"`
}

// robotStateMsg is the body of /robot_state.
type robotStateMsg struct {
	State string `json:"state"`
}
