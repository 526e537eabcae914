package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/TarikBugraAy/mental-palace-chatbot/internal/app"
	"github.com/TarikBugraAy/mental-palace-chatbot/internal/chat"
	"github.com/TarikBugraAy/mental-palace-chatbot/internal/config"
	"github.com/TarikBugraAy/mental-palace-chatbot/internal/logger"
	"github.com/TarikBugraAy/mental-palace-chatbot/internal/session"
)

type chatOptions struct {
	userID    string
	personaID string
	sessionID string
}

func newChatCmd() *cobra.Command {
	var opts chatOptions
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to a persona in the terminal",
		Long:  `Starts (or resumes with --session) a conversation and reads messages from stdin. Type "exit" to quit.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			// Logs go to stderr so they do not interleave with the conversation.
			log := logger.NewWithWriter(os.Stderr, "mentalpalace", cfg.LogLevel, "console")
			built, err := app.Build(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer built.Cleanup()
			return runChat(cmd.Context(), built.Orchestrator, opts, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&opts.userID, "user", "u", "local", "User ID the conversation belongs to")
	cmd.Flags().StringVarP(&opts.personaID, "persona", "p", "", "Persona id or name (default: the session's persona)")
	cmd.Flags().StringVarP(&opts.sessionID, "session", "s", "", "Resume an existing session instead of starting one")
	return cmd
}

func runChat(ctx context.Context, orch *chat.Orchestrator, opts chatOptions, in io.Reader, out io.Writer) error {
	sessionID := strings.TrimSpace(opts.sessionID)
	if sessionID == "" {
		sess, err := orch.CreateSession(ctx, opts.userID, session.CreateRequest{PersonaID: opts.personaID})
		if err != nil {
			return err
		}
		sessionID = sess.ID
	}
	personaID := strings.TrimSpace(opts.personaID)
	if personaID == "" {
		var err error
		if personaID, err = orch.SessionPersona(ctx, opts.userID, sessionID); err != nil {
			return err
		}
	}

	fmt.Fprintf(out, "Session %s. Type \"exit\" to quit.\n", sessionID)
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "You: ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.EqualFold(line, "exit") {
			fmt.Fprintln(out, "Goodbye. Take care of yourself.")
			return nil
		}

		res, err := orch.SubmitTurn(ctx, chat.TurnRequest{
			UserID:      opts.userID,
			SessionID:   sessionID,
			PersonaName: personaID,
			Message:     line,
		})
		switch {
		case errors.Is(err, chat.ErrModelUnavailable):
			fmt.Fprintln(out, "(the model did not answer, please try again)")
			continue
		case err != nil && !errors.Is(err, chat.ErrPersistenceDegraded):
			return err
		}
		fmt.Fprintf(out, "%s: %s\n", res.PersonaName, res.AIResponse)
	}
}
