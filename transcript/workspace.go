// Package transcript exports conversations and token usage to a workspace directory.
package transcript

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"marketing-groupchat/agent"
	"marketing-groupchat/client"
)

const (
	DefaultDir    = "workspace"
	UsageFilename = "token_usage.json"
)

var ErrInvalidFilename = errors.New("invalid workspace filename")

// Workspace writes export files into a single directory. Files are only
// written, never read back: conversations do not survive a restart.
type Workspace struct {
	dir string
}

func NewWorkspace(dir string) *Workspace {
	if dir == "" {
		dir = DefaultDir
	}
	return &Workspace{dir: dir}
}

func (w *Workspace) Dir() string {
	return w.dir
}

// WriteFile writes a .md or .json file directly inside the workspace and
// returns its path. The directory is created on first write.
func (w *Workspace) WriteFile(filename string, content []byte) (string, error) {
	if err := validateFilename(filename); err != nil {
		return "", err
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create workspace directory: %w", err)
	}

	path := filepath.Join(w.dir, filename)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", filename, err)
	}
	return path, nil
}

func validateFilename(filename string) error {
	if !strings.HasSuffix(filename, ".md") && !strings.HasSuffix(filename, ".json") {
		return fmt.Errorf("%w: only .md and .json files are allowed: %s", ErrInvalidFilename, filename)
	}
	if strings.Contains(filename, "..") || strings.ContainsAny(filename, `/\`) {
		return fmt.Errorf("%w: %s", ErrInvalidFilename, filename)
	}
	return nil
}

// SaveTranscript writes the conversation as markdown to transcript-<id>.md.
func (w *Workspace) SaveTranscript(conversationID string, messages []agent.Message) (string, error) {
	return w.WriteFile(fmt.Sprintf("transcript-%s.md", conversationID), []byte(Markdown(conversationID, messages)))
}

// SaveUsage writes a usage snapshot to token_usage.json.
func (w *Workspace) SaveUsage(usage client.UsageSnapshot) (string, error) {
	data, err := json.MarshalIndent(usage, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal token usage: %w", err)
	}
	return w.WriteFile(UsageFilename, data)
}

// Markdown renders messages in the console's "# NAME:" layout.
func Markdown(conversationID string, messages []agent.Message) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Conversation %s\n", conversationID)

	for _, m := range messages {
		fmt.Fprintf(&b, "\n## %s (#%d, %s)\n\n%s\n",
			strings.ToUpper(m.Author),
			m.Ordinal,
			m.At.Format("2006-01-02 15:04:05"),
			strings.TrimSpace(m.Content),
		)
	}
	return b.String()
}
