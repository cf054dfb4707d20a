package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

// envelope mirrors the server's {"event", "data"} frame.
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func send(c *websocket.Conn, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return c.WriteJSON(envelope{Event: event, Data: data})
}

func main() {
	if err := newClientCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newClientCmd() *cobra.Command {
	var (
		host     string
		username string
		gameID   string
	)
	cmd := &cobra.Command{
		Use:          "client",
		Short:        "Interactive tic-tac-toe test client",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if username == "" || gameID == "" {
				return fmt.Errorf("--user and --game are required")
			}
			return play(host, username, gameID, cmd.InOrStdin())
		},
	}
	cmd.Flags().StringVar(&host, "host", "localhost:8080", "server address")
	cmd.Flags().StringVar(&username, "user", "", "player name")
	cmd.Flags().StringVar(&gameID, "game", "", "room id to join")
	return cmd
}

func play(host, username, gameID string, in io.Reader) error {
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	u := url.URL{Scheme: "ws", Host: host, Path: "/ws"}
	log.Printf("Connecting to %s", u.String())

	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer c.Close()

	done := make(chan struct{})

	// Read loop
	go func() {
		defer close(done)
		for {
			var msg envelope
			if err := c.ReadJSON(&msg); err != nil {
				log.Println("Read error:", err)
				return
			}
			log.Printf("<- %s %s", msg.Event, string(msg.Data))
		}
	}()

	if err := send(c, "join", map[string]string{"username": username, "game_id": gameID}); err != nil {
		return err
	}
	log.Println("Commands: move <0-8> | rematch | accept | decline | end | quit")

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- strings.TrimSpace(scanner.Text())
		}
		close(lines)
	}()

	game := map[string]string{"game_id": gameID}
	for {
		select {
		case <-done:
			return nil
		case <-interrupt:
			log.Println("Interrupt received, closing connection.")
			err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			if err != nil {
				log.Println("Write close error:", err)
			}
			select {
			case <-done:
			case <-time.After(time.Second):
			}
			return nil
		case text, ok := <-lines:
			if !ok || text == "quit" {
				return nil
			}
			fields := strings.Fields(text)
			if len(fields) == 0 {
				continue
			}

			var err error
			switch fields[0] {
			case "move":
				if len(fields) != 2 {
					log.Println("usage: move <0-8>")
					continue
				}
				pos, convErr := strconv.Atoi(fields[1])
				if convErr != nil {
					log.Println("position must be a number")
					continue
				}
				err = send(c, "make_move", map[string]any{"game_id": gameID, "position": pos, "player": username})
			case "rematch":
				err = send(c, "request_rematch", map[string]string{"game_id": gameID, "player": username})
			case "accept":
				err = send(c, "accept_rematch", game)
			case "decline":
				err = send(c, "decline_rematch", game)
			case "end":
				err = send(c, "end_game", game)
			default:
				log.Printf("unknown command %q", fields[0])
				continue
			}
			if err != nil {
				log.Println("Write error:", err)
				return err
			}
		}
	}
}
