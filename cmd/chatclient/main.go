package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"chatconnect/internal/client"
	"chatconnect/internal/config"
	"chatconnect/pkg/types"
)

const usage = `commands:
  /join <room>           switch rooms
  /create <room>         create a room
  /pm <user> <text>      private message
  /react <id> <emoji>    add a reaction (/unreact removes it)
  /read <id>             mark one message read
  /readall               mark the room read
  /more                  load older messages
  /rooms, /who, /history, /quit`

func main() {
	configPath := flag.String("config", os.Getenv("CHATCONNECT_CONFIG_FILE"), "path to a JSON config file")
	server := flag.String("server", "", "server address host:port (defaults to the configured HTTP port on localhost)")
	username := flag.String("user", "", "display name")
	room := flag.String("room", types.DefaultRoom, "room to join")
	flag.Parse()

	if *username == "" {
		log.Fatal("-user is required")
	}

	cfg, err := config.LoadConfigWithPrecedence(*configPath)
	if err != nil && cfg == nil {
		log.Fatal(err)
	}
	addr := *server
	if addr == "" {
		addr = fmt.Sprintf("localhost:%d", cfg.HTTP.Port)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	transport := client.NewWSTransport("ws://"+addr+"/ws", 2*time.Second)
	fetcher := client.NewHTTPFetcher("http://" + addr)

	var state *client.State
	state = client.NewState(transport, client.Options{
		WindowSize:     cfg.Chat.WindowSize,
		TypingDebounce: cfg.Chat.TypingDebounce,
		OnChange:       func(event string) { render(state, event) },
	})
	if err := state.Connect(*username, *room); err != nil {
		log.Fatal(err)
	}

	go func() {
		if err := transport.Run(ctx, state); err != nil && ctx.Err() == nil {
			log.Printf("transport stopped: %v", err)
		}
	}()

	fmt.Println(usage)
	readInput(ctx, state, fetcher)
	state.Close()
}

func readInput(ctx context.Context, state *client.State, fetcher client.PageFetcher) {
	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if quit := handleLine(ctx, state, fetcher, strings.TrimSpace(line)); quit {
				return
			}
		}
	}
}

func handleLine(ctx context.Context, state *client.State, fetcher client.PageFetcher, line string) bool {
	if line == "" {
		return false
	}
	if !strings.HasPrefix(line, "/") {
		_ = state.Keystroke()
		report(state.SendMessage(line))
		return false
	}

	fields := strings.Fields(line)
	arg := func(i int) string {
		if i < len(fields) {
			return fields[i]
		}
		return ""
	}

	switch fields[0] {
	case "/quit":
		return true
	case "/join":
		report(state.ChangeRoom(arg(1)))
	case "/create":
		report(state.CreateRoom(arg(1)))
	case "/pm":
		text := strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(line, "/pm"), " "+arg(1)))
		report(state.SendPrivate(arg(1), text))
	case "/react", "/unreact":
		report(state.React(arg(1), arg(2), fields[0] == "/unreact"))
	case "/read":
		report(state.MarkRead(arg(1)))
	case "/readall":
		report(state.MarkAllRead())
	case "/more":
		added, err := state.LoadMore(ctx, fetcher)
		report(err)
		if err == nil {
			fmt.Printf("* loaded %d older messages\n", added)
		}
	case "/rooms":
		fmt.Printf("* rooms: %s\n", strings.Join(state.Rooms(), ", "))
	case "/who":
		room := state.CurrentRoom()
		fmt.Printf("* in %s: %s\n", room, strings.Join(state.UsersIn(room), ", "))
	case "/history":
		for _, message := range state.Visible() {
			printMessage(message)
		}
	default:
		fmt.Println(usage)
	}
	return false
}

func render(state *client.State, event string) {
	switch event {
	case client.StatusEvent:
		fmt.Printf("* %s\n", state.Status())
	case types.EventReceiveMessage:
		if visible := state.Visible(); len(visible) > 0 {
			printMessage(visible[len(visible)-1])
		}
	case types.EventPrivateMessage:
		if private := state.PrivateMessages(); len(private) > 0 {
			pm := private[len(private)-1]
			fmt.Printf("[dm %s → %s] %s\n", pm.From, pm.To, pm.Text)
		}
	case types.EventRoomChanged:
		fmt.Printf("* now in %s\n", state.CurrentRoom())
	case types.EventTypingUsers:
		if typing := state.TypingIn(state.CurrentRoom()); len(typing) > 0 {
			fmt.Printf("* typing: %s\n", strings.Join(typing, ", "))
		}
	case types.EventPrivateMessageError, types.EventRoomError, types.EventReactionError,
		types.EventMessageError, types.EventSessionReplaced:
		fmt.Printf("! %v\n", state.LastError())
	}
}

func printMessage(message types.Message) {
	stamp := message.Timestamp.Local().Format("15:04")
	switch {
	case message.System:
		fmt.Printf("%s * %s\n", stamp, message.Text)
	case message.File != nil:
		fmt.Printf("%s <%s> [file %s, %d bytes] (%s)\n", stamp, message.Sender, message.File.Name, message.File.Size, message.ID)
	default:
		fmt.Printf("%s <%s> %s (%s)\n", stamp, message.Sender, message.Text, message.ID)
	}
}

func report(err error) {
	if err != nil {
		fmt.Printf("! %v\n", err)
	}
}
