package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/socialstories/internal/store"
)

const testLibrary = `stories:
  - name: story-lost-dog.txt
    level: 2
    scenes: [dog-1, dog-2, dog-3]
    in_order: true
    num_answers: 1
  - name: story-park.txt
    scenes: [park-1, park-2]
    num_answers: 2
`

func executeStories(format string, args ...string) (string, error) {
	buf := &bytes.Buffer{}
	cmd := NewStoriesCommand(&RootOptions{Format: format})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestStoriesImportAndList(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"library.yaml": testLibrary})
	dbPath := filepath.Join(dir, "state.db")

	out, err := executeStories("text", "import", "--db", dbPath, filepath.Join(dir, "library.yaml"))
	require.NoError(t, err)
	assert.Contains(t, out, "Imported 2 stories")

	out, err = executeStories("text", "list", "--db", dbPath)
	require.NoError(t, err)
	lines := bytes.Split(bytes.TrimSpace([]byte(out)), []byte("\n"))
	require.Len(t, lines, 2)
	// Ordered by level: the park story defaults to level 1.
	assert.Equal(t, "story-park.txt\tlevel 1\t2 answer(s)\tany order\tpark-1,park-2", string(lines[0]))
	assert.Equal(t, "story-lost-dog.txt\tlevel 2\t1 answer(s)\tin order\tdog-1,dog-2,dog-3", string(lines[1]))
}

func TestStoriesImportReplacesExisting(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "state.db")
	writeFiles(t, dir, map[string]string{
		"v1.yaml": "stories:\n  - name: a.txt\n    level: 1\n    scenes: [x]\n",
		"v2.yaml": "stories:\n  - name: a.txt\n    level: 3\n    scenes: [y]\n",
	})

	_, err := executeStories("text", "import", "--db", dbPath, filepath.Join(dir, "v1.yaml"))
	require.NoError(t, err)
	_, err = executeStories("text", "import", "--db", dbPath, filepath.Join(dir, "v2.yaml"))
	require.NoError(t, err)

	out, err := executeStories("json", "list", "--db", dbPath)
	require.NoError(t, err)

	var resp struct {
		Status string        `json:"status"`
		Data   []store.Story `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data, 1)
	assert.Equal(t, 3, resp.Data[0].Level)
	assert.Equal(t, []string{"y"}, resp.Data[0].Scenes)
}

func TestStoriesImportJSON(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"library.yaml": testLibrary})

	out, err := executeStories("json", "import", "--db", filepath.Join(dir, "state.db"), filepath.Join(dir, "library.yaml"))
	require.NoError(t, err)

	var resp struct {
		Status string              `json:"status"`
		Data   StoriesImportResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, 2, resp.Data.Imported)
}

func TestStoriesListEmpty(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "state.db")

	out, err := executeStories("text", "list", "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "No stories.")

	out, err = executeStories("json", "list", "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, `"data":[]`)
}

func TestStoriesImportErrors(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"typo.yaml":      "stories:\n  - name: a.txt\n    scens: [x]\n",
		"duplicate.yaml": "stories:\n  - name: a.txt\n    scenes: [x]\n  - name: a.txt\n    scenes: [y]\n",
	})
	dbPath := filepath.Join(dir, "state.db")

	tests := []struct {
		name string
		file string
		want string
	}{
		{"missing file", "nope.yaml", "failed to open story library"},
		{"unknown key", "typo.yaml", "invalid story library"},
		{"duplicate story", "duplicate.yaml", "duplicate story"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := executeStories("text", "import", "--db", dbPath, filepath.Join(dir, tt.file))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
		})
	}
}

func TestStoriesRequiresDB(t *testing.T) {
	_, err := executeStories("text", "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
	assert.Contains(t, err.Error(), "db")
}
