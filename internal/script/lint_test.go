package script

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLint_CleanScript(t *testing.T) {
	fsys := fstest.MapFS{
		"session-1.txt": {Data: []byte("ADD\tCORRECT_RESPONSES\tcorrect.txt\n\nSET\tMAX_STORIES\t2\nOPAL\tLOAD_ALL\tobjects.txt\nWAIT\tYES_NO\t10\nREPEAT\tMAX_STORIES\tstory-loop.txt\nROBOT\tDO\thello\n")},
		"correct.txt":    {Data: []byte("Great job!\n")},
		"objects.txt":    {Data: []byte("{}\n")},
		"story-loop.txt": {Data: []byte("STORY\n")},
	}

	problems, err := Lint(fsys, "session-1.txt", fsys, MatchContains)
	require.NoError(t, err)
	assert.Empty(t, problems)
}

func TestLint_ReportsProblemsWithLineNumbers(t *testing.T) {
	fsys := fstest.MapFS{
		"bad.txt": {Data: []byte(
			"DANCE\tnow\n" + // 1 unknown opcode
				"ADD\tCORRECT_RESPONSES\n" + // 2 missing args
				"\n" + // 3 blank
				"SET\tMAX_GAME_TIME\tsoon\n" + // 4 bad value
				"SET\tVOLUME\t3\n" + // 5 unknown setting
				"WAIT\tMAYBE\t10\n" + // 6 bad kind
				"WAIT\tCORRECT\t0\n" + // 7 bad timeout
				"REPEAT\tlots\tloop.txt\n" + // 8 bad count and missing file
				"ADD\tNO_RESPONSES\tno.txt\n"), // 9 missing file
		},
	}

	problems, err := Lint(fsys, "bad.txt", fsys, MatchContains)
	require.NoError(t, err)

	type found struct {
		line int
		code string
	}
	var got []found
	for _, p := range problems {
		assert.Equal(t, "bad.txt", p.Script)
		got = append(got, found{p.Line, p.Code})
	}
	assert.Equal(t, []found{
		{1, CodeUnknownOpcode},
		{2, CodeMissingArgs},
		{4, CodeBadArgument},
		{5, CodeBadArgument},
		{6, CodeBadArgument},
		{7, CodeBadArgument},
		{8, CodeBadArgument},
		{8, CodeMissingFile},
		{9, CodeMissingFile},
	}, got)
}

func TestLint_NonFiniteSeconds(t *testing.T) {
	fsys := fstest.MapFS{
		"s.txt": {Data: []byte("SET\tMAX_GAME_TIME\tInf\nWAIT\tCORRECT\tNaN\nWAIT\tYES_NO\t5\n")},
	}

	problems, err := Lint(fsys, "s.txt", fsys, MatchContains)
	require.NoError(t, err)
	require.Len(t, problems, 2)
	assert.Equal(t, 1, problems[0].Line)
	assert.Equal(t, CodeBadArgument, problems[0].Code)
	assert.Equal(t, 2, problems[1].Line)
	assert.Equal(t, CodeBadArgument, problems[1].Code)
}

func TestLint_SharedDirectoryIsSeparate(t *testing.T) {
	session := fstest.MapFS{"s.txt": {Data: []byte("ADD\tYES_RESPONSES\tyes.txt\n")}}
	shared := fstest.MapFS{"yes.txt": {Data: []byte("Yes!\n")}}

	problems, err := Lint(session, "s.txt", shared, MatchContains)
	require.NoError(t, err)
	assert.Empty(t, problems)

	problems, err = Lint(session, "s.txt", session, MatchContains)
	require.NoError(t, err)
	require.Len(t, problems, 1)
	assert.Equal(t, CodeMissingFile, problems[0].Code)
}

func TestLint_MissingScript(t *testing.T) {
	_, err := Lint(fstest.MapFS{}, "nope.txt", fstest.MapFS{}, MatchContains)
	assert.Error(t, err)
}

func TestProblem_String(t *testing.T) {
	p := Problem{Script: "a.txt", Line: 3, Code: CodeMissingFile, Message: "gone"}
	assert.Equal(t, "a.txt:3: [L004] gone", p.String())
}
