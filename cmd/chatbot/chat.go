package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Siddharthpatni/UI-Chatbot/pkg/conversation"
	"github.com/Siddharthpatni/UI-Chatbot/pkg/events"
	"github.com/Siddharthpatni/UI-Chatbot/pkg/helpers"
	"github.com/Siddharthpatni/UI-Chatbot/pkg/scheduler"
)

const chatTopic = "chat"

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interactive chat with simulated assistant replies",
	RunE: func(cmd *cobra.Command, args []string) error {
		delay, _ := cmd.Flags().GetDuration("delay")
		loadPath, _ := cmd.Flags().GetString("load")
		savePath, _ := cmd.Flags().GetString("save")
		out := cmd.OutOrStdout()

		router, err := events.NewEventRouter(events.WithLogger(helpers.NewWatermill(log.Logger)))
		if err != nil {
			return err
		}

		publisher := events.NewPublisherManager()
		publisher.SubscribePublisher(chatTopic, router.Publisher)

		var store *conversation.Store
		if loadPath != "" {
			store, err = conversation.LoadStoreFromFile(loadPath, conversation.WithPublisher(publisher))
			if err != nil {
				return err
			}
		} else {
			store = conversation.NewStore(conversation.WithPublisher(publisher))
		}

		sched := scheduler.NewScheduler(store,
			&scheduler.SimulatedResponder{Delay: delay},
			scheduler.WithPublisher(publisher))

		router.RegisterChatEventHandler(chatTopic, &replPrinter{out: out})

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		eg, ctx := errgroup.WithContext(ctx)
		eg.Go(func() error {
			return router.Run(ctx)
		})

		eg.Go(func() error {
			defer cancel()
			<-router.Running()

			if _, ok := store.ActiveSession(); !ok {
				store.CreateSession("")
			}

			fmt.Fprintln(out, "Type a message and press enter. /help lists commands.")
			scanner := bufio.NewScanner(os.Stdin)
			for scanner.Scan() {
				line := strings.TrimSpace(scanner.Text())
				if line == "" {
					continue
				}
				if strings.HasPrefix(line, "/") {
					if quit := runReplCommand(out, store, sched, line); quit {
						break
					}
					continue
				}

				active, ok := store.ActiveSession()
				if !ok {
					active = store.CreateSession("")
				}
				if _, err := sched.Send(ctx, active, line); err != nil {
					fmt.Fprintf(out, "error: %s\n", err)
				}
			}

			sched.Close()
			if savePath != "" {
				if err := store.SaveToFile(savePath); err != nil {
					return err
				}
				log.Info().Str("path", savePath).Msg("saved session snapshot")
			}
			return scanner.Err()
		})

		err = eg.Wait()
		_ = router.Close()
		return err
	},
}

func runReplCommand(out io.Writer, store *conversation.Store, sched *scheduler.Scheduler, line string) bool {
	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]

	active, hasActive := store.ActiveSession()

	switch cmd {
	case "/help":
		fmt.Fprintln(out, `/new [name]       create a session and switch to it
/list             list sessions
/select <id>      switch the active session
/rename <id> <n>  rename a session
/attach <file>    attach a PDF to the active session
/detach           remove the active session's attachment
/clear            clear the active session's history
/export           print the active session's transcript
/quit             exit`)
	case "/new":
		id := store.CreateSession(strings.Join(args, " "))
		fmt.Fprintf(out, "switched to session %d\n", id)
	case "/list":
		for _, summary := range store.ListSessions() {
			marker := " "
			if hasActive && summary.ID == active {
				marker = "*"
			}
			fmt.Fprintf(out, "%s %d  %s  (%d messages)\n", marker, summary.ID, summary.Name, summary.Messages)
		}
	case "/select":
		if len(args) != 1 {
			fmt.Fprintln(out, "usage: /select <id>")
			return false
		}
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			fmt.Fprintf(out, "error: %s\n", err)
			return false
		}
		if err := store.SelectSession(conversation.SessionID(id)); err != nil {
			fmt.Fprintf(out, "error: %s\n", err)
		}
	case "/rename":
		if len(args) < 2 {
			fmt.Fprintln(out, "usage: /rename <id> <name>")
			return false
		}
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			fmt.Fprintf(out, "error: %s\n", err)
			return false
		}
		if err := store.RenameSession(conversation.SessionID(id), strings.Join(args[1:], " ")); err != nil {
			fmt.Fprintf(out, "error: %s\n", err)
		}
	case "/attach":
		if len(args) != 1 {
			fmt.Fprintln(out, "usage: /attach <file>")
			return false
		}
		attachment, err := conversation.NewAttachmentFromFile(args[0])
		if err != nil {
			fmt.Fprintf(out, "error: %s\n", err)
			return false
		}
		if err := store.Attach(active, attachment); err != nil {
			fmt.Fprintf(out, "error: %s\n", err)
		}
	case "/detach":
		if err := store.Detach(active); err != nil {
			fmt.Fprintf(out, "error: %s\n", err)
		}
	case "/clear":
		sched.CancelSession(active)
		if err := store.ClearMessages(active); err != nil {
			fmt.Fprintf(out, "error: %s\n", err)
		}
	case "/export":
		transcript, err := store.ExportText(active)
		if err != nil {
			fmt.Fprintf(out, "error: %s\n", err)
			return false
		}
		fmt.Fprint(out, transcript)
	case "/quit", "/exit":
		return true
	default:
		fmt.Fprintf(out, "unknown command: %s\n", cmd)
	}

	return false
}

// replPrinter renders store changes for the terminal. It is wired through the
// event router, the same subscription mechanism a graphical front-end would use.
type replPrinter struct {
	out io.Writer
}

func (p *replPrinter) HandleSessionCreated(_ context.Context, e *events.EventSessionCreated) error {
	fmt.Fprintf(p.out, "-- session %d created: %s\n", e.Metadata().SessionID, e.Name)
	return nil
}

func (p *replPrinter) HandleSessionRenamed(_ context.Context, e *events.EventSessionRenamed) error {
	fmt.Fprintf(p.out, "-- session %d renamed to %s\n", e.Metadata().SessionID, e.Name)
	return nil
}

func (p *replPrinter) HandleMessageAppended(_ context.Context, e *events.EventMessageAppended) error {
	// the user's own line is already on screen
	if conversation.Role(e.Role) == conversation.RoleUser {
		return nil
	}
	fmt.Fprintf(p.out, "[%s]: %s\n", e.Role, e.Text)
	return nil
}

func (p *replPrinter) HandleHistoryCleared(_ context.Context, e *events.EventHistoryCleared) error {
	fmt.Fprintf(p.out, "-- session %d history cleared\n", e.Metadata().SessionID)
	return nil
}

func (p *replPrinter) HandleAttachmentChanged(_ context.Context, e *events.EventAttachmentChanged) error {
	if e.Attached {
		fmt.Fprintf(p.out, "-- session %d attachment: %s\n", e.Metadata().SessionID, e.MimeType)
	} else {
		fmt.Fprintf(p.out, "-- session %d attachment removed\n", e.Metadata().SessionID)
	}
	return nil
}

func (p *replPrinter) HandleReplyError(_ context.Context, e *events.EventReplyError) error {
	fmt.Fprintf(p.out, "-- reply failed for session %d: %s\n", e.Metadata().SessionID, e.ErrorString)
	return nil
}

var _ events.ChatEventHandler = &replPrinter{}

func init() {
	chatCmd.Flags().Duration("delay", 1*time.Second, "Simulated reply delay")
	chatCmd.Flags().String("load", "", "Load a session snapshot on start")
	chatCmd.Flags().String("save", "", "Save a session snapshot on exit")
}
