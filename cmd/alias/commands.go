package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/krishhh001/A.L.I.A.S.---Advanced-Logical-Interface-and-Assistant-System/internal/config"
	"github.com/krishhh001/A.L.I.A.S.---Advanced-Logical-Interface-and-Assistant-System/internal/dispatch"
	"github.com/krishhh001/A.L.I.A.S.---Advanced-Logical-Interface-and-Assistant-System/internal/server"
)

// ═══════════════════════════════════════════════════════════════════════════════
// ASK / ANALYZE
// ═══════════════════════════════════════════════════════════════════════════════

func askCmd() *cobra.Command {
	var (
		session string
		speak   bool
	)
	cmd := &cobra.Command{
		Use:   "ask <utterance...>",
		Short: "Send one command and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, false)
			if err != nil {
				return err
			}
			defer a.Close()

			var failure string
			task, err := a.dispatcher.DispatchWith(strings.Join(args, " "), session, dispatch.Sink{
				OnError: func(msg string) { failure = msg },
			}, dispatch.Options{Speak: &speak})
			if err != nil {
				return err
			}

			select {
			case <-task.Done():
			case <-ctx.Done():
				return ctx.Err()
			}
			if failure != "" {
				return errors.New(failure)
			}

			text, label := task.Result()
			if verbose {
				fmt.Println(mutedStyle.Render("[" + label.String() + "]"))
			}
			fmt.Println(text)

			if speak {
				waitForSpeech(ctx, a)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&session, "session", "", "conversation session id")
	cmd.Flags().BoolVar(&speak, "speak", false, "also speak the reply")
	return cmd
}

func analyzeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "analyze <file>",
		Short: "Summarize a .txt, .pdf, .docx or .xlsx document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, false)
			if err != nil {
				return err
			}
			defer a.Close()

			var failure string
			task, err := a.dispatcher.AnalyzeFile(args[0], dispatch.Sink{
				OnProgress: func(p int) { fmt.Fprintf(os.Stderr, "\ranalyzing... %3d%%", p) },
				OnError:    func(msg string) { failure = msg },
			})
			if err != nil {
				return err
			}
			select {
			case <-task.Done():
			case <-ctx.Done():
				return ctx.Err()
			}
			fmt.Fprintln(os.Stderr)
			if failure != "" {
				return errors.New(failure)
			}
			text, _ := task.Result()
			fmt.Println(text)
			return nil
		},
	}
}

func waitForSpeech(ctx context.Context, a *app) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for a.speaker.Speaking() {
		select {
		case <-ctx.Done():
			a.speaker.Stop()
			return
		case <-ticker.C:
		}
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// SERVE
// ═══════════════════════════════════════════════════════════════════════════════

func serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the websocket bridge for graphical front ends",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, true)
			if err != nil {
				return err
			}
			defer a.Close()

			if addr == "" {
				addr = a.cfg.Server.Addr
			}
			srv := server.New(server.Config{
				Dispatcher: a.dispatcher,
				Settings:   a.settings,
				Speech:     a.speaker,
				Bus:        a.events,
				Logger:     log,

				DocumentsDir: a.cfg.Server.DocumentsDir,
			})
			fmt.Printf("%s listening on ws://%s/ws (events on /events)\n", titleStyle.Render("ALIAS"), addr)
			return srv.ListenAndServe(ctx, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	return cmd
}

// ═══════════════════════════════════════════════════════════════════════════════
// MEMORY INSPECTION
// ═══════════════════════════════════════════════════════════════════════════════

func historyCmd() *cobra.Command {
	var (
		session string
		limit   int
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent conversation turns",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			turns, err := store.RecentTurns(cmd.Context(), session, limit)
			if err != nil {
				return err
			}
			fmt.Print(renderMarkdown(historyMarkdown(session, turns)))
			return nil
		},
	}
	cmd.Flags().StringVar(&session, "session", "default", "conversation session id")
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "number of turns")
	return cmd
}

func memoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memory",
		Short: "Inspect learned queries",
	}

	var limit int
	similar := &cobra.Command{
		Use:   "similar <query...>",
		Short: "List remembered queries similar to a query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			q := strings.Join(args, " ")
			rows, err := store.LookupSimilar(cmd.Context(), q, limit)
			if err != nil {
				return err
			}
			fmt.Print(renderMarkdown(similarMarkdown(q, rows)))
			return nil
		},
	}
	similar.Flags().IntVarP(&limit, "limit", "n", 5, "maximum results")
	cmd.AddCommand(similar)
	return cmd
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show conversation statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			stats, err := store.Statistics(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Print(renderMarkdown(statsMarkdown(stats)))
			return nil
		},
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// CONFIG
// ═══════════════════════════════════════════════════════════════════════════════

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets redacted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			out, err := yaml.Marshal(redacted(cfg))
			if err != nil {
				return err
			}
			fmt.Print(string(out))
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the configuration file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfgPath != "" {
				fmt.Println(cfgPath)
				return nil
			}
			p, err := config.DefaultPath()
			if err != nil {
				return err
			}
			fmt.Println(p)
			return nil
		},
	})
	return cmd
}

func redacted(cfg *config.Config) *config.Config {
	c := *cfg
	for _, s := range []*string{&c.LLM.APIKey, &c.News.APIKey, &c.Email.Password, &c.MySQL.Password} {
		if *s != "" {
			*s = "********"
		}
	}
	return &c
}
