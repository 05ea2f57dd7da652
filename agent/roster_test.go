package agent

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultRoster(t *testing.T) {
	roster, err := DefaultRoster()
	require.NoError(t, err)

	require.Equal(t, "SEO", roster.Start)
	require.Equal(t, "SDR", roster.Terminal)

	registry, err := roster.Registry()
	require.NoError(t, err)
	require.Equal(t, []string{"SEO", "SEM", "CSR", "SDR"}, registry.Names())

	for _, p := range registry.All() {
		require.NotEmpty(t, p.Instructions, p.Name)
	}
}

func TestParseRosterDefaultsStartAndTerminal(t *testing.T) {
	roster, err := ParseRoster([]byte(`
participants:
  - name: Writer
    instructions: write
  - name: Editor
    instructions: edit
  - name: Publisher
    instructions: publish
`))
	require.NoError(t, err)
	require.Equal(t, "Writer", roster.Start)
	require.Equal(t, "Publisher", roster.Terminal)
	require.NoError(t, roster.Validate())
}

func TestRosterRegistryRejectsUnknownStartOrTerminal(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "unknown start",
			yaml: `
start: CFO
participants:
  - name: SEO
    instructions: x
  - name: SDR
    instructions: y
`,
		},
		{
			name: "unknown terminal",
			yaml: `
terminal: CFO
participants:
  - name: SEO
    instructions: x
  - name: SDR
    instructions: y
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			roster, err := ParseRoster([]byte(tt.yaml))
			require.NoError(t, err)

			_, err = roster.Registry()
			require.ErrorIs(t, err, ErrParticipantNotFound)
		})
	}
}

func TestParseRosterInvalidYAML(t *testing.T) {
	_, err := ParseRoster([]byte("participants: [unterminated"))
	require.Error(t, err)
}

func TestLoadRoster(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roster.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
start: A
terminal: B
participants:
  - name: A
    instructions: first
  - name: B
    instructions: second
`), 0o644))

	roster, err := LoadRoster(path)
	require.NoError(t, err)
	require.Len(t, roster.Participants, 2)

	_, err = LoadRoster(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
