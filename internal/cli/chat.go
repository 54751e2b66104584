// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/peterh/liner"

	"github.com/notewell/notewell-cli/internal/chat"
	"github.com/notewell/notewell-cli/internal/config"
	"github.com/notewell/notewell-cli/internal/model"
	"github.com/notewell/notewell-cli/internal/search"
	"github.com/notewell/notewell-cli/internal/session"
)

// =============================================================================
// LINE READER
// =============================================================================

// LineReader wraps liner with persistent history.
type LineReader struct {
	line        *liner.State
	historyFile string
}

// NewLineReader creates the line editor and loads prior input history.
func NewLineReader(historyFile string) *LineReader {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	r := &LineReader{line: line, historyFile: historyFile}
	r.loadHistory()
	return r
}

func (r *LineReader) loadHistory() {
	if r.historyFile == "" {
		return
	}
	f, err := os.Open(r.historyFile)
	if err != nil {
		return
	}
	defer f.Close()
	r.line.ReadHistory(f)
}

// SaveHistory persists the input history to disk.
func (r *LineReader) SaveHistory() error {
	if r.historyFile == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(r.historyFile), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(r.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = r.line.WriteHistory(f)
	return err
}

// ReadInput prompts for a line and records non-empty input in history.
func (r *LineReader) ReadInput(prompt string) (string, error) {
	input, err := r.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	input = strings.TrimSpace(input)
	if input != "" {
		r.line.AppendHistory(input)
	}
	return input, nil
}

// Close restores the terminal and saves history.
func (r *LineReader) Close() {
	if err := r.SaveHistory(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not save history: %v\n", err)
	}
	r.line.Close()
}

// =============================================================================
// REPL
// =============================================================================

// REPL is the interactive chat loop.
type REPL struct {
	cfg        *config.Config
	store      *session.Store
	tracker    *search.Tracker
	transcript *model.Transcript
	controller *chat.Controller

	reader *LineReader
	turns  int

	// sourceIDs is read by the loop and written by the config watcher.
	sourceMu  sync.Mutex
	sourceIDs []int64
}

// NewREPL wires the chat loop to an assembled controller stack.
func NewREPL(cfg *config.Config, store *session.Store, tracker *search.Tracker, transcript *model.Transcript, controller *chat.Controller) *REPL {
	r := &REPL{
		cfg:        cfg,
		store:      store,
		tracker:    tracker,
		transcript: transcript,
		controller: controller,
		reader:     NewLineReader(cfg.Chat.HistoryFile),
		sourceIDs:  append([]int64(nil), cfg.Project.DefaultSourceIDs...),
	}

	controller.SetTextCallback(func(text string) {
		fmt.Print(text)
	})
	controller.SetErrorCallback(func(err error) {
		fmt.Fprintf(os.Stderr, "\nError: %v\n", err)
	})
	store.SetErrorCallback(func(err error) {
		fmt.Fprintf(os.Stderr, "\nError: %v\n", err)
	})
	tracker.SetChangeCallback(func(s search.Status) {
		switch {
		case s.Searching:
			fmt.Printf("\n[Searching notes: %s]\n", s.Query)
		case len(s.Chunks) > 0:
			fmt.Printf("[Found %d relevant passages]\n", len(s.Chunks))
		}
	})

	return r
}

// SetSourceIDs replaces the source filter applied to new messages.
// Called from the config watcher when the file changes on disk.
func (r *REPL) SetSourceIDs(ids []int64) {
	r.sourceMu.Lock()
	r.sourceIDs = append([]int64(nil), ids...)
	r.sourceMu.Unlock()
	if len(ids) > 0 {
		fmt.Printf("\n[Source filter updated: %v]\n", ids)
	}
}

func (r *REPL) currentSourceIDs() []int64 {
	r.sourceMu.Lock()
	defer r.sourceMu.Unlock()
	return append([]int64(nil), r.sourceIDs...)
}

// Run drives the REPL until the user quits or input is exhausted.
func (r *REPL) Run(ctx context.Context) error {
	defer r.reader.Close()

	// Ctrl+C during a stream aborts the turn in place. At the prompt,
	// liner surfaces it as ErrPromptAborted instead.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		for range sigChan {
			r.controller.Abort()
		}
	}()

	if err := r.store.Load(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Could not reach the server; check /status and your configuration")
	}

	r.printWelcome()

	for {
		input, err := r.reader.ReadInput("notewell> ")
		if err == liner.ErrPromptAborted {
			fmt.Println("(Ctrl+C again at the prompt exits; use /quit to leave)")
			continue
		}
		if err != nil {
			// EOF or a closed terminal ends the loop cleanly.
			fmt.Println()
			r.printExitSummary()
			return nil
		}
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") || input == "quit" || input == "exit" {
			if done := r.handleCommand(ctx, input); done {
				r.printExitSummary()
				return nil
			}
			continue
		}

		r.sendMessage(ctx, input, chat.SendOptions{SourceIDs: r.currentSourceIDs()})
	}
}

// sendMessage runs a single turn and prints the title notice if the server
// renamed the session during the stream.
func (r *REPL) sendMessage(ctx context.Context, message string, opts chat.SendOptions) {
	if err := r.controller.Send(ctx, message, opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return
	}
	fmt.Println()
	r.turns++

	if sig := r.store.ConsumeTitleSignal(); sig != nil {
		fmt.Printf("[Session renamed: %s]\n", sig.Title)
	}
}

// =============================================================================
// COMMANDS
// =============================================================================

// handleCommand dispatches a slash command. Returns true when the REPL
// should exit.
func (r *REPL) handleCommand(ctx context.Context, input string) bool {
	fields := strings.Fields(input)
	command := fields[0]
	args := fields[1:]

	switch command {
	case "/quit", "/exit", "quit", "exit":
		return true

	case "/help":
		r.printHelp()

	case "/sessions":
		r.printSessions(ctx)

	case "/new":
		if sess := r.store.Create(ctx, strings.Join(args, " ")); sess != nil {
			fmt.Printf("Started session %d\n", sess.ID)
		}

	case "/select":
		r.selectSession(ctx, args)

	case "/delete":
		r.deleteSession(ctx, args)

	case "/history":
		r.printHistory()

	case "/sources":
		r.setSources(args)

	case "/explain":
		r.quickAction(ctx, "explain", args)

	case "/summarize":
		r.quickAction(ctx, "summarize", args)

	case "/status":
		r.printStatus()

	default:
		fmt.Printf("Unknown command %s (try /help)\n", command)
	}
	return false
}

func (r *REPL) selectSession(ctx context.Context, args []string) {
	if len(args) == 0 {
		fmt.Println("Usage: /select <session-id> (0 to deselect)")
		return
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		fmt.Printf("Invalid session id %q\n", args[0])
		return
	}
	if err := r.store.Select(ctx, id); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return
	}
	if id == 0 {
		fmt.Println("Deselected; the next message starts a fresh session")
		return
	}
	fmt.Printf("Switched to session %d (%d messages)\n", id, r.transcript.Len())
}

func (r *REPL) deleteSession(ctx context.Context, args []string) {
	if len(args) == 0 {
		fmt.Println("Usage: /delete <session-id>")
		return
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		fmt.Printf("Invalid session id %q\n", args[0])
		return
	}
	if err := r.store.Delete(ctx, id); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return
	}
	fmt.Printf("Deleted session %d\n", id)
}

func (r *REPL) setSources(args []string) {
	if len(args) == 0 {
		r.sourceMu.Lock()
		r.sourceIDs = nil
		r.sourceMu.Unlock()
		fmt.Println("Source filter cleared; answers draw on the whole project")
		return
	}
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			fmt.Printf("Invalid source id %q\n", arg)
			return
		}
		ids = append(ids, id)
	}
	r.sourceMu.Lock()
	r.sourceIDs = ids
	r.sourceMu.Unlock()
	fmt.Printf("Source filter set: %v\n", ids)
}

// quickAction sends a canned instruction over a selected passage, mirroring
// the editor's right-click actions.
func (r *REPL) quickAction(ctx context.Context, action string, args []string) {
	if len(args) == 0 {
		fmt.Printf("Usage: /%s <text>\n", action)
		return
	}
	selected := strings.Join(args, " ")
	var message string
	switch action {
	case "explain":
		message = "Explain this passage"
	case "summarize":
		message = "Summarize this passage"
	}
	r.sendMessage(ctx, message, chat.SendOptions{
		Action:       action,
		SelectedText: selected,
		SourceIDs:    r.currentSourceIDs(),
	})
}

// =============================================================================
// OUTPUT
// =============================================================================

func (r *REPL) printWelcome() {
	fmt.Println("Notewell chat")
	fmt.Printf("Server: %s\n", r.cfg.Server.URL)
	fmt.Printf("Project: %d\n", r.cfg.Project.ID)
	if n := len(r.store.Sessions()); n > 0 {
		fmt.Printf("Sessions: %d (use /sessions to list, /select <id> to resume)\n", n)
	}
	fmt.Println("Type a message to chat, /help for commands, Ctrl+C to stop a reply.")
	fmt.Println()
}

func (r *REPL) printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  /sessions          List chat sessions")
	fmt.Println("  /new [title]       Start a new session")
	fmt.Println("  /select <id>       Resume a session (0 deselects)")
	fmt.Println("  /delete <id>       Delete a session")
	fmt.Println("  /history           Show the current conversation")
	fmt.Println("  /sources [id...]   Restrict answers to the given sources")
	fmt.Println("  /explain <text>    Explain a passage from your notes")
	fmt.Println("  /summarize <text>  Summarize a passage from your notes")
	fmt.Println("  /status            Show connection and session state")
	fmt.Println("  /quit              Exit")
}

func (r *REPL) printSessions(ctx context.Context) {
	if err := r.store.Load(ctx); err != nil {
		return
	}
	sessions := r.store.Sessions()
	if len(sessions) == 0 {
		fmt.Println("No sessions yet; send a message to start one")
		return
	}
	currentID := r.store.CurrentID()
	for _, sess := range sessions {
		marker := " "
		if sess.ID == currentID {
			marker = "*"
		}
		fmt.Printf("%s %4d  %-40s  %d messages\n", marker, sess.ID, sess.DisplayTitle(), sess.MessageCount)
	}
}

func (r *REPL) printHistory() {
	messages := r.transcript.Messages()
	if len(messages) == 0 {
		fmt.Println("No messages in the current session")
		return
	}
	for _, msg := range messages {
		switch msg.Role {
		case model.RoleUser:
			fmt.Printf("you> %s\n", msg.Content)
		case model.RoleAssistant:
			fmt.Printf("notewell> %s\n", msg.Content)
		}
	}
}

func (r *REPL) printStatus() {
	fmt.Printf("Server:  %s\n", r.cfg.Server.URL)
	fmt.Printf("Project: %d\n", r.cfg.Project.ID)
	if id := r.store.CurrentID(); id != 0 {
		fmt.Printf("Session: %d\n", id)
	} else {
		fmt.Println("Session: none (the next message starts one)")
	}
	fmt.Printf("State:   %s\n", r.controller.State())
	if ids := r.currentSourceIDs(); len(ids) > 0 {
		fmt.Printf("Sources: %v\n", ids)
	}
}

func (r *REPL) printExitSummary() {
	if r.turns > 0 {
		fmt.Printf("Goodbye. %d turns this session.\n", r.turns)
	} else {
		fmt.Println("Goodbye.")
	}
}
