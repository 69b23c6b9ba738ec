package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/ajitpratap0/lia/internal/knowledge"
	"github.com/ajitpratap0/lia/internal/models"
)

// clipboardPause lets clipboard managers record each copy separately.
const clipboardPause = 200 * time.Millisecond

func askCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "ask [question...]",
		Short: "Ask a question to the knowledge base",
		Long: `Ranks the record headings of the topics named in the question, plus the
undefined topic, by semantic similarity and prints the best record.

Without a question, lia prompts until you type quit or exit.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(cmd, args, asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the answer as JSON")
	return cmd
}

func runAsk(cmd *cobra.Command, args []string, asJSON bool) error {
	logger := newLogger()
	ctx := cmd.Context()

	client := newWorkerClient(logger)
	if err := startScorer(ctx, client); err != nil {
		return err
	}

	session := &askSession{
		engine:  knowledge.NewEngine(newRecordStore(logger), client, logger),
		prompt:  newPrompter(cmd.InOrStdin(), cmd.OutOrStdout()),
		out:     cmd.OutOrStdout(),
		history: newHistory(cfg.HistoryPath()),
		copy:    clipboard.WriteAll,
		pause:   clipboardPause,
		logger:  logger,
	}

	if len(args) == 0 {
		return session.loop(ctx)
	}

	query := strings.Join(args, " ")
	if asJSON {
		answer, err := session.engine.Ask(ctx, query)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(answer)
	}

	interactive := isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd())
	_, err := session.ask(ctx, query, interactive)
	return err
}

type nextStep int

const (
	stepNewAsk nextStep = iota
	stepQuit
)

// askSession drives the interactive question/answer flow.
type askSession struct {
	engine  *knowledge.Engine
	prompt  *prompter
	out     io.Writer
	history *history
	copy    func(string) error
	pause   time.Duration
	logger  *slog.Logger
}

// loop prompts for questions until the user quits or input ends.
func (s *askSession) loop(ctx context.Context) error {
	for {
		query, err := s.prompt.prompt(infoColor.Sprint("?") + bold.Sprint(" Ask:"))
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if query == "" {
			continue
		}
		if isQuit(query) {
			return nil
		}

		step, err := s.ask(ctx, query, true)
		if err != nil {
			return err
		}
		if step == stepQuit {
			return nil
		}
	}
}

// ask answers query and, when interactive, offers the follow-up actions.
// Choosing an alternative asks again with its heading text.
func (s *askSession) ask(ctx context.Context, query string, interactive bool) (nextStep, error) {
	if err := s.history.Append(query); err != nil {
		s.logger.Warn("recording history failed", "error", err)
	}

	for {
		answer, err := s.engine.Ask(ctx, query)
		if err != nil {
			return stepQuit, err
		}
		printAnswer(s.out, answer)

		best, ok := answer.Best()
		if !ok || !interactive {
			return stepNewAsk, nil
		}

		alts := alternatives(answer)
		choice, err := s.chooseAction(best.Heading, len(alts))
		if err != nil {
			if errors.Is(err, io.EOF) {
				return stepQuit, nil
			}
			return stepQuit, err
		}

		switch {
		case choice == "q":
			return stepQuit, nil
		case choice == "n":
			return stepNewAsk, nil
		case choice == "c":
			if err := s.copyExtracted(ctx, best.Heading); err != nil {
				return stepQuit, err
			}
			return stepNewAsk, nil
		default:
			n, _ := strconv.Atoi(choice)
			query = alts[n-1].Heading.Text
		}
	}
}

// chooseAction prompts until the user picks a valid action: an alternative
// number, n, c (when the best heading is tagged) or q.
func (s *askSession) chooseAction(best models.RecordHeading, altCount int) (string, error) {
	canCopy := best.HasCommandTag() || best.HasScriptTag()

	var b strings.Builder
	b.WriteString(bold.Sprint("What would you like to do?") + "\n")
	if altCount > 0 {
		fmt.Fprintf(&b, "  - View an alternative result [1-%d]\n", altCount)
	}
	b.WriteString("  - New ask (n)\n")
	if canCopy {
		if best.HasCommandTag() {
			b.WriteString("  - Copy command(s) to clipboard (c)\n")
		} else {
			b.WriteString("  - Copy script(s) to clipboard (c)\n")
		}
	}
	b.WriteString("  - Quit (q)\n")
	b.WriteString(bold.Sprint("Your choice:"))
	label := b.String()

	for {
		input, err := s.prompt.prompt(label)
		if err != nil {
			return "", err
		}
		input = strings.ToLower(input)
		switch {
		case isQuit(input):
			return "q", nil
		case input == "n":
			return "n", nil
		case input == "c" && canCopy:
			return "c", nil
		}
		if n, err := strconv.Atoi(input); err == nil {
			if n >= 1 && n <= altCount {
				return input, nil
			}
			fmt.Fprintln(s.out, "\nInvalid choice. Please enter a number in the valid range.")
			continue
		}
		fmt.Fprintln(s.out, "\nInvalid input. Please enter a valid number or action.")
	}
}

// copyExtracted copies the commands or scripts of heading's record.
func (s *askSession) copyExtracted(ctx context.Context, heading models.RecordHeading) error {
	items, err := s.engine.Extract(ctx, heading)
	if errors.Is(err, knowledge.ErrAmbiguousTags) {
		fmt.Fprintln(s.out, "Cannot copy: the record is tagged both command and script.")
		return nil
	}
	if err != nil {
		return fmt.Errorf("extracting content: %w", err)
	}
	if len(items) == 0 {
		fmt.Fprintln(s.out, "Nothing to copy.")
		return nil
	}
	if err := copyAll(items, s.copy, s.pause); err != nil {
		return err
	}
	fmt.Fprintln(s.out, "Copied to clipboard")
	return nil
}

// copyAll writes items to the clipboard last first, so the first item ends
// up on top of the clipboard history.
func copyAll(items []string, write func(string) error, pause time.Duration) error {
	for i := len(items) - 1; i >= 0; i-- {
		if err := write(items[i]); err != nil {
			return fmt.Errorf("copying to clipboard: %w", err)
		}
		time.Sleep(pause)
	}
	return nil
}
