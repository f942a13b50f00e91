// Package cli implements the interactive console for agentlink: status
// tables, chat, movement and block commands, and journal queries.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/voxel-agent/agentlink/internal/connector"
	"github.com/voxel-agent/agentlink/internal/db"
	"github.com/voxel-agent/agentlink/internal/events"
)

// Journal is the part of the session journal the console reads.
type Journal interface {
	RecentChat(limit int) ([]db.ChatRecord, error)
	Sessions(limit int) ([]db.Session, error)
}

// CLI provides an interactive command-line interface.
type CLI struct {
	commander connector.Commander
	journal   Journal
	eventBus  *events.EventBus
	out       io.Writer
	logger    zerolog.Logger
}

// NewCLI creates a new CLI handler. journal and eventBus may be nil.
func NewCLI(commander connector.Commander, journal Journal, eventBus *events.EventBus, out io.Writer) *CLI {
	return &CLI{
		commander: commander,
		journal:   journal,
		eventBus:  eventBus,
		out:       out,
		logger:    log.With().Str("component", "cli").Logger(),
	}
}

// Start reads commands from in until EOF, "quit", or ctx is cancelled.
func (c *CLI) Start(ctx context.Context, in io.Reader) {
	fmt.Fprintln(c.out, "\nagentlink console ready. Type 'help' for available commands.")
	fmt.Fprintln(c.out, "─────────────────────────────────────────────────────")

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		fmt.Fprint(c.out, "agentlink> ")
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			parts := strings.Fields(line)
			if len(parts) == 0 {
				continue
			}
			quit, err := c.execute(ctx, strings.ToLower(parts[0]), parts[1:])
			if err != nil {
				fmt.Fprintf(c.out, "Error: %v\n", err)
			}
			if quit {
				return
			}
		}
	}
}

// execute processes a single command. It reports whether the console should exit.
func (c *CLI) execute(ctx context.Context, cmd string, args []string) (bool, error) {
	c.logger.Debug().Str("command", cmd).Int("args", len(args)).Msg("console command")

	switch cmd {
	case "help", "h", "?":
		c.printHelp()
	case "status", "s":
		c.printStatus()
	case "say", "chat":
		return false, c.cmdSay(args)
	case "move":
		return false, c.cmdMove(args)
	case "dig":
		return false, c.cmdDig(args)
	case "place":
		return false, c.cmdPlace(args)
	case "history":
		return false, c.cmdHistory(args)
	case "sessions":
		return false, c.cmdSessions(args)
	case "disconnect":
		if err := c.commander.Disconnect(); err != nil {
			return false, err
		}
		fmt.Fprintln(c.out, "Disconnected")
	case "quit", "exit", "q":
		fmt.Fprintln(c.out, "Shutting down agentlink...")
		if c.eventBus != nil {
			c.eventBus.Emit(ctx, events.Event{
				Type:    events.EventShutdown,
				Source:  "cli",
				Payload: events.ShutdownPayload{Reason: "console quit"},
			})
		}
		return true, nil
	default:
		fmt.Fprintf(c.out, "Unknown command: '%s'. Type 'help' for available commands.\n", cmd)
	}
	return false, nil
}

// printHelp displays available commands.
func (c *CLI) printHelp() {
	fmt.Fprintln(c.out, "\n╔══════════════════════════════════════════════════════════════╗")
	fmt.Fprintln(c.out, "║                   agentlink console commands                 ║")
	fmt.Fprintln(c.out, "╠══════════════════════════════════════════════════════════════╣")
	fmt.Fprintln(c.out, "║  status                  Show connection status              ║")
	fmt.Fprintln(c.out, "║  say <text>              Send a chat message                 ║")
	fmt.Fprintln(c.out, "║  move x y z [pitch yaw]  Move the player                     ║")
	fmt.Fprintln(c.out, "║  dig x y z               Dig the block at a position         ║")
	fmt.Fprintln(c.out, "║  place x y z item        Place an item at a position         ║")
	fmt.Fprintln(c.out, "║  history [n]             Show recent chat                    ║")
	fmt.Fprintln(c.out, "║  sessions [n]            Show recent sessions                ║")
	fmt.Fprintln(c.out, "║  disconnect              End the session                     ║")
	fmt.Fprintln(c.out, "║  quit                    Shut down agentlink                 ║")
	fmt.Fprintln(c.out, "║  help                    Show this help message              ║")
	fmt.Fprintln(c.out, "╚══════════════════════════════════════════════════════════════╝")
	fmt.Fprintln(c.out)
}

// printStatus displays the connection status in a formatted table.
func (c *CLI) printStatus() {
	st := c.commander.Status()

	fmt.Fprintln(c.out)
	tw := tablewriter.NewWriter(c.out)
	tw.SetHeader([]string{"Field", "Value"})
	tw.SetBorder(true)
	tw.SetAutoWrapText(false)

	uptime := "-"
	if st.State != connector.Disconnected && !st.ConnectedAt.IsZero() {
		uptime = time.Since(st.ConnectedAt).Truncate(time.Second).String()
	}

	rows := [][]string{
		{"Server", st.Server},
		{"State", st.State.String()},
		{"Peer ID", strconv.Itoa(int(st.PeerID))},
		{"Authenticated", strconv.FormatBool(st.Authenticated)},
		{"Lenient", strconv.FormatBool(st.Lenient)},
		{"Position", fmt.Sprintf("%.2f %.2f %.2f", st.Player.Pos[0], st.Player.Pos[1], st.Player.Pos[2])},
		{"Look", fmt.Sprintf("pitch %.1f yaw %.1f", st.Player.Pitch, st.Player.Yaw)},
		{"Uptime", uptime},
		{"Datagrams in/out", fmt.Sprintf("%d / %d", st.Transport.DatagramsIn, st.Transport.DatagramsOut)},
		{"Reliable fresh/dup", fmt.Sprintf("%d / %d", st.Transport.Tracker.Fresh, st.Transport.Tracker.Duplicates)},
		{"Malformed", strconv.FormatUint(st.Transport.Malformed, 10)},
	}
	if st.Denial != "" {
		rows = append(rows, []string{"Denied", st.Denial})
	}
	if st.Reason != "" {
		rows = append(rows, []string{"Last reason", st.Reason})
	}
	tw.AppendBulk(rows)
	tw.Render()
	fmt.Fprintln(c.out)
}

func (c *CLI) cmdSay(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: say <text>")
	}
	text := strings.Join(args, " ")
	if err := c.commander.SendChatMessage(text); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Sent: %s\n", text)
	return nil
}

func (c *CLI) cmdMove(args []string) error {
	if len(args) != 3 && len(args) != 5 {
		return fmt.Errorf("usage: move x y z [pitch yaw]")
	}
	nums, err := parseFloats(args)
	if err != nil {
		return err
	}

	var opts []connector.LookOption
	if len(nums) == 5 {
		opts = append(opts, connector.WithPitch(nums[3]), connector.WithYaw(nums[4]))
	}
	if err := c.commander.MoveTo(nums[0], nums[1], nums[2], opts...); err != nil {
		return err
	}
	p := c.commander.Player()
	fmt.Fprintf(c.out, "Moved to %.2f %.2f %.2f\n", p.Pos[0], p.Pos[1], p.Pos[2])
	return nil
}

func (c *CLI) cmdDig(args []string) error {
	if len(args) != 3 {
		return fmt.Errorf("usage: dig x y z")
	}
	pos, err := parseInts(args)
	if err != nil {
		return err
	}
	if err := c.commander.DigBlock(pos[0], pos[1], pos[2]); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Dig sent at %d %d %d\n", pos[0], pos[1], pos[2])
	return nil
}

func (c *CLI) cmdPlace(args []string) error {
	if len(args) != 4 {
		return fmt.Errorf("usage: place x y z item")
	}
	pos, err := parseInts(args[:3])
	if err != nil {
		return err
	}
	item, err := strconv.ParseUint(args[3], 10, 16)
	if err != nil {
		return fmt.Errorf("invalid item: %s", args[3])
	}
	if err := c.commander.PlaceBlock(pos[0], pos[1], pos[2], uint16(item)); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Place sent at %d %d %d\n", pos[0], pos[1], pos[2])
	return nil
}

func (c *CLI) cmdHistory(args []string) error {
	if c.journal == nil {
		return fmt.Errorf("journal is disabled")
	}
	limit, err := parseLimit(args, 20)
	if err != nil {
		return err
	}
	records, err := c.journal.RecentChat(limit)
	if err != nil {
		return err
	}

	tw := tablewriter.NewWriter(c.out)
	tw.SetHeader([]string{"Time", "Dir", "Sender", "Message"})
	tw.SetAutoWrapText(false)
	// Oldest first reads naturally in a console.
	for i := len(records) - 1; i >= 0; i-- {
		r := records[i]
		tw.Append([]string{r.CreatedAt.Format("15:04:05"), string(r.Direction), r.Sender, r.Message})
	}
	tw.Render()
	return nil
}

func (c *CLI) cmdSessions(args []string) error {
	if c.journal == nil {
		return fmt.Errorf("journal is disabled")
	}
	limit, err := parseLimit(args, 10)
	if err != nil {
		return err
	}
	sessions, err := c.journal.Sessions(limit)
	if err != nil {
		return err
	}

	tw := tablewriter.NewWriter(c.out)
	tw.SetHeader([]string{"ID", "Server", "Started", "Ended", "Peer", "Auth", "End"})
	tw.SetAutoWrapText(false)
	for _, s := range sessions {
		ended := "-"
		if !s.Open() {
			ended = s.EndedAt.Format(time.DateTime)
		}
		tw.Append([]string{
			strconv.FormatInt(s.ID, 10),
			s.Server,
			s.StartedAt.Format(time.DateTime),
			ended,
			strconv.Itoa(int(s.PeerID)),
			strconv.FormatBool(s.Authenticated),
			strings.TrimSpace(s.EndTrigger + " " + s.EndReason),
		})
	}
	tw.Render()
	return nil
}

func parseFloats(args []string) ([]float32, error) {
	out := make([]float32, len(args))
	for i, a := range args {
		v, err := strconv.ParseFloat(a, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid number: %s", a)
		}
		out[i] = float32(v)
	}
	return out, nil
}

func parseInts(args []string) ([]int32, error) {
	out := make([]int32, len(args))
	for i, a := range args {
		v, err := strconv.ParseInt(a, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid coordinate: %s", a)
		}
		out[i] = int32(v)
	}
	return out, nil
}

func parseLimit(args []string, def int) (int, error) {
	if len(args) == 0 {
		return def, nil
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid count: %s", args[0])
	}
	return n, nil
}
