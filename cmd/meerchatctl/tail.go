package main

import (
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"meerchat/pkg/feed"
	"meerchat/pkg/models"
)

// termView is a viewport that is always scrolled to the bottom. Every
// scroll request becomes a redraw nudge.
type termView struct {
	redraw chan struct{}
}

func newTermView() *termView { return &termView{redraw: make(chan struct{}, 1)} }

func (v *termView) ScrollToBottom(bool) {
	select {
	case v.redraw <- struct{}{}:
	default:
	}
}

func (v *termView) ScrollBy(float64) {}
func (v *termView) SetAlert(bool)    {}

// printer writes each message once, in the order it is handed over.
type printer struct {
	out  io.Writer
	seen map[string]struct{}
}

func newPrinter(out io.Writer) *printer {
	return &printer{out: out, seen: make(map[string]struct{})}
}

func (p *printer) flush(msgs []models.Message) int {
	n := 0
	for _, m := range msgs {
		if _, ok := p.seen[m.ID]; ok {
			continue
		}
		p.seen[m.ID] = struct{}{}
		fmt.Fprintln(p.out, formatLine(m))
		n++
	}
	return n
}

func formatLine(m models.Message) string {
	who := m.UID
	if m.IsAIResponse {
		who = "meerchat"
	}
	return fmt.Sprintf("[%s] %s: %s", m.CreatedAt.Local().Format("15:04:05"), who, m.Body)
}

func newTailCmd(g *globalOpts) *cobra.Command {
	var opts struct {
		PageSize    int
		Pages       int
		NoAssistant bool
	}
	cmd := &cobra.Command{
		Use:   "tail <channel>",
		Short: "Print a channel's history and follow new messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := g.client()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			view := newTermView()
			syncOpts := []feed.Option{feed.WithPageSize(opts.PageSize)}
			if opts.NoAssistant {
				syncOpts = append(syncOpts, feed.WithFilter(feed.HideAssistantReplies))
			}
			s := feed.New(c, c, view, syncOpts...)
			defer s.Close()

			if err := s.Open(ctx, args[0]); err != nil {
				return g.checkAuth(err)
			}
			for i := 1; i < opts.Pages && s.Snapshot().HasMore; i++ {
				if _, err := s.LoadOlder(ctx); err != nil {
					return g.checkAuth(err)
				}
			}

			out := cmd.OutOrStdout()
			st := s.Snapshot()
			if len(st.Messages) > 0 {
				fmt.Fprintf(out, "#%s: %d messages since %s\n", st.Channel, len(st.Messages), humanize.Time(st.Messages[0].CreatedAt))
			} else {
				fmt.Fprintf(out, "#%s: no messages yet\n", st.Channel)
			}
			pr := newPrinter(out)
			pr.flush(st.Messages)

			for {
				select {
				case <-ctx.Done():
					return nil
				case <-view.redraw:
					pr.flush(s.Snapshot().Messages)
				}
			}
		},
	}
	cmd.Flags().IntVarP(&opts.PageSize, "page-size", "n", 50, "messages per history page")
	cmd.Flags().IntVar(&opts.Pages, "pages", 1, "history pages to load before following")
	cmd.Flags().BoolVar(&opts.NoAssistant, "no-assistant", false, "hide assistant replies")
	return cmd
}
