// Package repl is the line-oriented console for the group chat.
package repl

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"marketing-groupchat/agent"
	"marketing-groupchat/client"
	"marketing-groupchat/groupchat"
	"marketing-groupchat/transcript"
)

const Prompt = "User > "

// Conversation is the part of groupchat.Loop the console drives.
type Conversation interface {
	Handle(ctx context.Context, line string, emit func(agent.Message)) groupchat.Outcome
	History() []agent.Message
	ConversationID() string
}

type Options struct {
	In        io.Reader
	Out       io.Writer
	Markdown  bool
	Workspace *transcript.Workspace
	Usage     *client.UsageTracker
}

type REPL struct {
	conv      Conversation
	scanner   *bufio.Scanner
	out       io.Writer
	printer   *Printer
	workspace *transcript.Workspace
	usage     *client.UsageTracker
}

func New(conv Conversation, opts Options) (*REPL, error) {
	if opts.In == nil {
		opts.In = os.Stdin
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Workspace == nil {
		opts.Workspace = transcript.NewWorkspace("")
	}
	if opts.Usage == nil {
		opts.Usage = client.NewUsageTracker()
	}

	printer, err := NewPrinter(opts.Out, opts.Markdown)
	if err != nil {
		return nil, err
	}

	scanner := bufio.NewScanner(opts.In)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	return &REPL{
		conv:      conv,
		scanner:   scanner,
		out:       opts.Out,
		printer:   printer,
		workspace: opts.Workspace,
		usage:     opts.Usage,
	}, nil
}

// Run reads lines until exit, end of input or cancellation.
func (r *REPL) Run(ctx context.Context) error {
	fmt.Fprintln(r.out, "Ready! Type your input, or 'exit' to quit, 'reset' to restart the conversation. "+
		"You may pass in a file path using @<path_to_file>. Type 'help' for more commands.")

	// Scan blocks until a full line arrives, so it runs on its own goroutine
	// and a cancelled context is noticed while waiting at the prompt.
	readCtx, stopReading := context.WithCancel(ctx)
	defer stopReading()
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go r.readLines(readCtx, lines, scanErr)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		fmt.Fprint(r.out, "\n"+Prompt)
		var line string
		select {
		case <-ctx.Done():
			return ctx.Err()
		case l, ok := <-lines:
			if !ok {
				return <-scanErr
			}
			line = l
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		switch strings.ToLower(input) {
		case "help":
			r.showHelp()
			continue
		case "history":
			r.printer.History(r.conv.History())
			continue
		case "usage":
			r.printer.Usage(r.usage.Snapshot())
			continue
		case "save":
			r.save()
			continue
		}

		if strings.HasPrefix(input, "@") {
			content, err := readInputFile(strings.TrimPrefix(input, "@"))
			if err != nil {
				r.printer.Error("Error reading file: %v", err)
				continue
			}
			input = content
		}

		outcome := r.conv.Handle(ctx, input, r.printer.Reply)
		switch outcome.Kind {
		case groupchat.OutcomeShutdown:
			fmt.Fprintln(r.out, "Goodbye! 👋")
			return nil
		case groupchat.OutcomeReset:
			r.printer.Note("[Conversation has been reset]")
		case groupchat.OutcomeErrored:
			r.printer.Error("Error during chat invocation: %v", outcome.Err)
		case groupchat.OutcomeCompleted:
			if outcome.Reason != groupchat.ReasonSatisfied {
				r.printer.Note("[Stopped after %d turns and %d cycles: %s]", outcome.Turns, outcome.Cycles, outcome.Reason)
			}
		}
	}
}

// readLines feeds scanned lines to Run until end of input or cancellation.
// Exactly one error, nil at EOF, is sent before lines is closed.
func (r *REPL) readLines(ctx context.Context, lines chan<- string, scanErr chan<- error) {
	defer close(lines)
	for r.scanner.Scan() {
		select {
		case lines <- r.scanner.Text():
		case <-ctx.Done():
			scanErr <- ctx.Err()
			return
		}
	}
	scanErr <- r.scanner.Err()
}

func (r *REPL) save() {
	id := r.conv.ConversationID()
	path, err := r.workspace.SaveTranscript(id, r.conv.History())
	if err != nil {
		r.printer.Error("Error saving transcript: %v", err)
		return
	}
	usagePath, err := r.workspace.SaveUsage(r.usage.Snapshot())
	if err != nil {
		r.printer.Error("Error saving token usage: %v", err)
		return
	}
	r.printer.Note("Saved %s and %s", path, usagePath)
}

func (r *REPL) showHelp() {
	fmt.Fprintln(r.out, "Available commands:")
	fmt.Fprintln(r.out, "  <your message>  - Start a round with the participants")
	fmt.Fprintln(r.out, "  @<path>         - Use the contents of a file as your message")
	fmt.Fprintln(r.out, "  history         - Show the conversation so far")
	fmt.Fprintln(r.out, "  usage           - Show token usage and expected cost")
	fmt.Fprintln(r.out, "  save            - Write the transcript and usage to the workspace")
	fmt.Fprintln(r.out, "  reset           - Clear the conversation")
	fmt.Fprintln(r.out, "  help            - Show this help message")
	fmt.Fprintln(r.out, "  exit            - Quit")
}

func readInputFile(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", fmt.Errorf("no file path given")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	content := strings.TrimSpace(string(data))
	if content == "" {
		return "", fmt.Errorf("%s is empty", path)
	}
	return content, nil
}
