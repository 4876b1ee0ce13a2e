package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/sharetube/watchparty/internal/client"
	"github.com/sharetube/watchparty/internal/domain"
	"github.com/spf13/cobra"
)

const leaveTimeout = 5 * time.Second

const joinHelp = `Type a line to chat. Commands:
  /load <url>  load a video for everyone
  /users       list users in the room
  /quit        leave the room`

func newJoinCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "join <roomId>",
		Short: "Join a room, creating it when it does not exist",
		Long:  "Join a room, creating it when it does not exist.\n\n" + joinHelp,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJoin(cmd, o, args[0])
		},
	}
}

func runJoin(cmd *cobra.Command, o *options, roomId string) error {
	ctx := cmd.Context()
	server := o.v.GetString(serverKey)
	logger := o.logger()

	bc, err := client.NewWSBroadcaster(server, logger)
	if err != nil {
		return err
	}

	p := &printer{out: o.out, printed: make(map[string]struct{})}
	r := client.NewReconciler(
		client.NewHTTPRoomAPI(server, nil),
		bc,
		client.Identity{UserId: o.v.GetString(userIdKey), Username: o.v.GetString(nameKey)},
		&client.Config{Random: o.random(), OnChange: p.update},
		logger,
	)

	if err := r.Connect(ctx, roomId); err != nil {
		return fmt.Errorf("failed to join room %s: %w", roomId, err)
	}
	defer func() {
		leaveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), leaveTimeout)
		defer cancel()

		if err := r.Disconnect(leaveCtx); err != nil {
			logger.Debug("failed to disconnect", "error", err)
		}
		p.printf("left room %s\n", roomId)
	}()

	id := r.Identity()
	p.printf("joined room %s as %s (%s)\n%s\n", roomId, id.Username, id.UserId, joinHelp)

	lines := readLines(o.in)
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := handleLine(ctx, r, p, line); quit {
				return nil
			}
		}
	}
}

func readLines(in io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)

		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	return lines
}

func handleLine(ctx context.Context, r *client.Reconciler, p *printer, line string) bool {
	line = strings.TrimSpace(line)

	switch {
	case line == "":
	case line == "/quit":
		return true
	case line == "/users":
		p.printf("users: %s\n", strings.Join(r.Snapshot().Users, ", "))
	case line == "/load" || strings.HasPrefix(line, "/load "):
		url := strings.TrimSpace(strings.TrimPrefix(line, "/load"))
		if url == "" {
			p.printf("usage: /load <url>\n")
			return false
		}
		if err := r.LoadVideo(ctx, url); err != nil {
			p.printf("error: %v\n", err)
		}
	case strings.HasPrefix(line, "/"):
		p.printf("unknown command %s\n", strings.Fields(line)[0])
	default:
		if _, err := r.SendMessage(ctx, line); err != nil {
			p.printf("error: %v\n", err)
		}
	}

	return false
}

// printer writes what changed between two snapshots.
type printer struct {
	out      io.Writer
	mu       sync.Mutex
	printed  map[string]struct{}
	users    string
	videoUrl string
}

func (p *printer) printf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.out, format, args...)
}

func (p *printer) update(s client.Snapshot) {
	if s.State != client.StateConnected {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if users := strings.Join(s.Users, ", "); users != p.users {
		p.users = users
		fmt.Fprintf(p.out, "users: %s\n", users)
	}

	if s.VideoUrl != nil && *s.VideoUrl != p.videoUrl {
		p.videoUrl = *s.VideoUrl
		fmt.Fprintf(p.out, "now playing: %s\n", p.videoUrl)
	}

	for _, msg := range s.Messages {
		key := messageKey(msg)
		if _, ok := p.printed[key]; ok {
			continue
		}
		p.printed[key] = struct{}{}
		fmt.Fprintf(p.out, "[%s] %s: %s\n", time.UnixMilli(msg.Timestamp).Format("15:04:05"), msg.Username, msg.Text)
	}
}

func messageKey(msg domain.ChatMessage) string {
	return fmt.Sprintf("%d/%s", msg.Timestamp, msg.UserId)
}
