// Package rosbridge connects the engine to the robot and tablet through a
// rosbridge websocket server.
//
// Outgoing commands are published as rosbridge JSON frames:
//
//	{"op":"publish","topic":"/robot_command","msg":{"command":"DO","properties":"..."}}
//
// The client subscribes to three topics:
//   - /game_command: session manager controls (START, PAUSE, CONTINUE, END),
//     delivered on Controls()
//   - /opal_action: participant responses from the tablet, consumed by
//     WaitForResponse
//   - /robot_state: robot speaking state, consumed by SendRobotCommandAndWait
package rosbridge
