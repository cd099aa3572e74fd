package script

import "fmt"

// Session script names.
const (
	DemoScript    = "demo.txt"
	GeneralScript = "session-general.txt"
)

// firstGeneralSession is the first session that uses the generic script.
// Earlier sessions carry extra instructions for new participants.
const firstGeneralSession = 3

// SessionScript returns the main script name for a session number.
// Session numbers below 1 select the demo script.
func SessionScript(session int) string {
	switch {
	case session <= 0:
		return DemoScript
	case session < firstGeneralSession:
		return fmt.Sprintf("session-%d.txt", session)
	default:
		return GeneralScript
	}
}
