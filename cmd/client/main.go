// A terminal parley endpoint: logs in over REST, opens the socket session
// and drives the call state machine from stdin commands.
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mkoval/parley/internal/call"
	"github.com/mkoval/parley/internal/client"
	"github.com/mkoval/parley/internal/core"
	"github.com/mkoval/parley/internal/domain"
	"github.com/mkoval/parley/internal/rtc"
)

func main() {
	server := flag.String("server", "http://localhost:8080", "parley server base URL")
	name := flag.String("name", "", "display name to log in with")
	flag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.WarnLevel)

	if *name == "" {
		fmt.Fprintln(os.Stderr, "usage: client -name <you> [-server url]")
		os.Exit(2)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	self, err := login(ctx, *server, *name)
	if err != nil {
		log.Fatal().Err(err).Msg("login failed")
	}
	fmt.Printf("logged in as %s (%s)\n", self.Name, self.ID)

	conn := client.New(*server, core.PeerRef{ID: self.ID, Name: self.Name})

	capture := rtc.NewSampleCapture()
	newPeer := func(initiator bool) (call.Peer, error) {
		return rtc.NewPeer(rtc.DefaultConfig(nil), initiator, capture.Tracks()...)
	}
	machine := call.NewMachine(newPeer, capture, conn, 0)
	machine.OnStateChange(func(s call.State) {
		if s == call.Ringing {
			id, callerName := machine.Remote()
			fmt.Printf("** incoming call from %s (%s): answer or decline\n", callerName, id)
			return
		}
		fmt.Printf("** call: %s\n", s)
	})

	conn.OnMessage(func(m domain.Message) {
		body := m.Text
		if body == "" {
			body = "[audio message]"
		}
		fmt.Printf("[%s] %s: %s\n", m.ConversationID, m.SenderID, body)
	})
	conn.BindCalls(machine)

	if err := conn.Connect(ctx); err != nil {
		log.Fatal().Err(err).Msg("connect failed")
	}
	defer conn.Close()

	repl(ctx, *server, self, conn, machine)
}

func repl(ctx context.Context, server string, self *domain.User, conn *client.Conn, machine *call.Machine) {
	fmt.Println("commands: msg <chatId> <text> | call <userId> <name> | answer | decline | hangup | mute | unmute | reconnect | quit")
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "msg":
			if len(fields) < 3 {
				fmt.Println("usage: msg <chatId> <text>")
				continue
			}
			if err := postMessage(ctx, server, fields[1], self.ID, strings.Join(fields[2:], " ")); err != nil {
				fmt.Println("send failed:", err)
			}
		case "call":
			if len(fields) < 3 {
				fmt.Println("usage: call <userId> <name>")
				continue
			}
			machine.Reset()
			if err := machine.Dial(ctx, domain.UserID(fields[1]), fields[2]); err != nil {
				fmt.Println("call failed:", err)
			}
		case "answer":
			if err := machine.Answer(ctx); err != nil {
				fmt.Println("answer failed:", err)
			}
		case "decline":
			machine.Decline()
			machine.Reset()
		case "hangup":
			machine.HangUp()
			machine.Reset()
		case "mute":
			machine.SetAudio(false)
		case "unmute":
			machine.SetAudio(true)
		case "reconnect":
			if err := conn.Reconnect(ctx); err != nil {
				fmt.Println("reconnect failed:", err)
			}
		case "quit":
			return
		default:
			fmt.Println("unknown command:", fields[0])
		}
	}
}

func login(ctx context.Context, server, name string) (*domain.User, error) {
	body, _ := json.Marshal(map[string]string{"name": name})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, server+"/api/login", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("login: unexpected status %d", resp.StatusCode)
	}
	var u domain.User
	if err := json.NewDecoder(resp.Body).Decode(&u); err != nil {
		return nil, err
	}
	return &u, nil
}

func postMessage(ctx context.Context, server, chatID string, sender domain.UserID, text string) error {
	body, _ := json.Marshal(map[string]string{
		"chatId":   chatID,
		"senderId": string(sender),
		"text":     text,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, server+"/api/messages", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
