// Package harness plays scripted sessions end to end for conformance tests.
//
// A scenario bundles a session script with every file it reads, a story
// library, and the participant's responses. The harness plays it through
// the real engine, driver and SQLite personalizer, with a fake transport
// standing in for the robot and tablet.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	main: session-1.txt
//	scripts:
//	  session-1.txt: |
//	    ADD	CORRECT_RESPONSES	correct.txt
//	    STORY
//	  correct.txt: |
//	    Great job!
//	  story-a.txt: |
//	    WAIT	CORRECT	10
//	stories:
//	  - name: story-a.txt
//	    scenes: [a1, a2]
//	    in_order: true
//	    num_answers: 1
//	responses: [CORRECT]
//	controls:
//	  - step: 3
//	    message: PAUSE
//	settings:
//	  max_stories: 1
//	assertions:
//	  - type: trace_contains
//	    channel: robot
//	    action: DO
//	    payload: Great job!
//	  - type: final_state
//	    table: sessions
//	    where: { id: harness-session }
//	    expect: { correct: 1 }
//
// # Assertion Types
//
//   - trace_contains: a command with the given channel, action and payload appears
//   - trace_order: actions first appear in the given order
//   - trace_count: a command appears exactly N times
//   - final_state: queries a store table and verifies expected values
//
// # Deterministic Testing
//
// Every scenario runs with a ManualClock that only moves when a wait times
// out, a fixed random seed for response pools, a fixed session id, and a
// fresh in-memory database, so traces are byte-identical across runs and can
// be compared against golden files.
package harness
