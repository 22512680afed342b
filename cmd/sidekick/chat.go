package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/charmbracelet/glamour"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/cassowary-ai/sidekick/pkg/chat"
	"github.com/cassowary-ai/sidekick/pkg/compute"
	"github.com/cassowary-ai/sidekick/pkg/config"
	"github.com/cassowary-ai/sidekick/pkg/scrape"
	"github.com/cassowary-ai/sidekick/pkg/search"
	"github.com/cassowary-ai/sidekick/pkg/transport"
)

func newChatCmd() *cobra.Command {
	var mode string
	var level string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive terminal chat",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if mode != "" {
				cfg.Mode = mode
			}
			if level != "" {
				cfg.ComputeLevel = level
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runChat(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "", "chat mode override (chat, web, page)")
	cmd.Flags().StringVar(&level, "level", "", "compute level override (medium, high)")
	return cmd
}

func buildSession(cfg config.Config, convID string) *chat.Session {
	logger := log.Logger
	sse := transport.NewSSEClient(logger)
	caller := &compute.TransportCaller{Transport: sse, Endpoint: cfg.Endpoints[cfg.Backend]}

	sess := chat.NewSession(convID, cfg.ChatOptions(), chat.Collaborators{
		Scraper:   scrape.NewHTTPScraper(logger),
		Optimizer: compute.NewCallerOptimizer(caller, cfg.Model, logger),
		Searcher:  search.NewHTTPSearcher(cfg.SearchURL, logger),
		Pages:     scrape.NewCachedPageReader(nil),
		Transport: sse,
		Medium:    compute.NewMedium(caller, logger),
		High:      compute.NewHigh(caller, logger),
	}, logger)
	sess.SetEndpoints(cfg.Endpoints)
	return sess
}

func runChat(ctx context.Context, cfg config.Config) error {
	sess := buildSession(cfg, "cli")
	printer := newPrinter()
	sess.SetSink(printer)

	// Ctrl-C stops the in-flight send; a second one while idle exits.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		for range sigCh {
			if !sess.Stop() {
				fmt.Println()
				os.Exit(0)
			}
		}
	}()

	fmt.Printf("sidekick (%s mode) - /help for commands\n", cfg.Mode)
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if done := handleCommand(sess, line); done {
				return nil
			}
			continue
		}

		handle, err := sess.Send(ctx, line)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			continue
		}
		if err := handle.Wait(ctx); err != nil {
			return err
		}
		printer.renderFinal()
	}
}

func handleCommand(sess *chat.Session, line string) (exit bool) {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/exit":
		return true
	case "/stop":
		if !sess.Stop() {
			fmt.Println("nothing to stop")
		}
	case "/mode":
		if len(fields) != 2 {
			fmt.Println("usage: /mode chat|web|page")
			return false
		}
		opts := sess.Options()
		opts.Mode = chat.ChatMode(fields[1])
		sess.SetOptions(opts)
		fmt.Println("mode set to", fields[1])
	case "/level":
		if len(fields) != 2 {
			fmt.Println("usage: /level default|medium|high")
			return false
		}
		opts := sess.Options()
		if fields[1] == "default" {
			opts.ComputeLevel = chat.ComputeDefault
		} else {
			opts.ComputeLevel = chat.ComputeLevel(fields[1])
		}
		sess.SetOptions(opts)
		fmt.Println("compute level set to", fields[1])
	case "/help":
		fmt.Println("/mode chat|web|page   switch chat mode")
		fmt.Println("/level default|medium|high   switch compute level")
		fmt.Println("/stop   cancel the in-flight reply")
		fmt.Println("/quit   exit")
	default:
		fmt.Println("unknown command", fields[0])
	}
	return false
}

// printer renders assistant updates incrementally: streamed text is
// printed as deltas, and on a TTY the finished reply is re-rendered
// through glamour.
type printer struct {
	mu         sync.Mutex
	lastTurnID string
	printedLen int
	lastTurn   string
	isTTY      bool
	mdRenderer *glamour.TermRenderer
}

func newPrinter() *printer {
	p := &printer{isTTY: isatty.IsTerminal(os.Stdout.Fd())}
	if p.isTTY {
		r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
		if err == nil {
			p.mdRenderer = r
		}
	}
	return p
}

func (p *printer) Publish(ev chat.UpdateEvent) error {
	if ev.Role != chat.RoleAssistant {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if ev.TurnID != p.lastTurnID {
		p.lastTurnID = ev.TurnID
		p.printedLen = 0
	}
	switch ev.Status {
	case chat.StatusStreaming:
		if len(ev.Content) > p.printedLen {
			fmt.Print(ev.Content[p.printedLen:])
			p.printedLen = len(ev.Content)
		}
	case chat.StatusComplete, chat.StatusError, chat.StatusCancelled:
		if len(ev.Content) > p.printedLen {
			fmt.Print(ev.Content[p.printedLen:])
		}
		p.printedLen = len(ev.Content)
		p.lastTurn = ev.Content
		fmt.Println()
		if ev.Auxiliary != "" {
			fmt.Println("(" + ev.Auxiliary + ")")
		}
	}
	return nil
}

func (p *printer) Close() error { return nil }

// renderFinal pretty-prints the last completed assistant reply when stdout
// is a terminal; raw streamed output already scrolled by for pipes.
func (p *printer) renderFinal() {
	p.mu.Lock()
	content := p.lastTurn
	renderer := p.mdRenderer
	p.mu.Unlock()
	if renderer == nil || content == "" {
		return
	}
	if out, err := renderer.Render(content); err == nil {
		fmt.Print(out)
	}
}
