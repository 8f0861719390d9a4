package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chzyer/readline"
	"github.com/mbocsi/blockyspot/client"
	"github.com/mbocsi/blockyspot/proto"
)

type session struct {
	c       *client.Client
	rl      *readline.Instance
	timeout time.Duration

	mu      sync.Mutex
	current string
	devices []string

	audioBytes atomic.Int64
}

func main() {
	addr := flag.String("addr", "", "gateway address (host:port or ws:// URL); discovered via mDNS when empty")
	token := flag.String("token", "", "create a device with this token on startup")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	client.SetupLogger(level)

	target := *addr
	if target == "" {
		fmt.Println("Looking for a gateway on the local network...")
		service, err := client.DiscoverGateway(5 * time.Second)
		if err != nil {
			fmt.Fprintln(os.Stderr, "discovery failed:", err)
			os.Exit(1)
		}
		target = service.URL()
	}

	c := client.NewClient(client.NewWebSocketTransport())
	if err := c.Start(target); err != nil {
		fmt.Fprintln(os.Stderr, "connect failed:", err)
		os.Exit(1)
	}
	defer c.Close()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "blockyspot> ",
		AutoComplete:    completer(),
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "readline:", err)
		os.Exit(1)
	}
	defer rl.Close()

	s := &session{c: c, rl: rl, timeout: 10 * time.Second}
	s.watch()
	fmt.Fprintf(rl.Stdout(), "Connected to %s (protocol %s). Type help for commands.\n", target, c.ProtocolVersion)

	if *token != "" {
		s.create([]string{*token})
	}

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if err == io.EOF {
			return
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, "read error:", err)
			return
		}

		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if !s.run(fields) {
			return
		}
		if !c.Connected() {
			fmt.Fprintln(rl.Stderr(), "connection lost:", c.Err())
			return
		}
	}
}

// run executes one line and reports whether the loop should continue.
func (s *session) run(fields []string) bool {
	out := s.rl.Stdout()

	switch strings.ToLower(fields[0]) {
	case "quit", "exit":
		return false
	case "help":
		fmt.Fprintln(out, usage)
	case "create":
		s.create(fields[1:])
	case "use":
		if len(fields) != 2 {
			fmt.Fprintln(out, "usage: use <device_id>")
			break
		}
		s.selectDevice(fields[1])
	case "devices":
		s.mu.Lock()
		for _, id := range s.devices {
			marker := " "
			if id == s.current {
				marker = "*"
			}
			fmt.Fprintf(out, "%s %s\n", marker, id)
		}
		s.mu.Unlock()
		fmt.Fprintf(out, "audio received: %d bytes\n", s.audioBytes.Load())
	default:
		cmd, err := parseCommand(fields)
		if err != nil {
			fmt.Fprintln(out, err)
			break
		}
		s.send(cmd)
	}
	return true
}

func (s *session) create(args []string) {
	if len(args) == 0 || len(args) > 2 {
		fmt.Fprintln(s.rl.Stdout(), "usage: create <token> [name]")
		return
	}
	name := ""
	if len(args) == 2 {
		name = args[1]
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	id, err := s.c.CreateDevice(ctx, args[0], name)
	if err != nil {
		fmt.Fprintln(s.rl.Stdout(), "create failed:", err)
		return
	}
	s.mu.Lock()
	s.devices = append(s.devices, id)
	s.mu.Unlock()
	s.selectDevice(id)
}

func (s *session) selectDevice(id string) {
	s.mu.Lock()
	s.current = id
	s.mu.Unlock()
	s.rl.SetPrompt(fmt.Sprintf("blockyspot[%s]> ", shortID(id)))
}

func (s *session) send(cmd proto.Command) {
	s.mu.Lock()
	id := s.current
	s.mu.Unlock()
	if id == "" {
		fmt.Fprintln(s.rl.Stdout(), "no device selected (create or use one first)")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	resp, err := s.c.Do(ctx, id, cmd)
	if err != nil {
		fmt.Fprintln(s.rl.Stdout(), "error:", err)
		return
	}
	fmt.Fprintln(s.rl.Stdout(), resp.Message)

	switch cmd.(type) {
	case proto.Shutdown, proto.Disconnect:
		s.forget(id)
	}
}

func (s *session) forget(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, d := range s.devices {
		if d == id {
			s.devices = append(s.devices[:i], s.devices[i+1:]...)
			break
		}
	}
	if s.current == id {
		s.current = ""
		s.rl.SetPrompt("blockyspot> ")
	}
}

// watch prints unsolicited gateway messages above the prompt.
func (s *session) watch() {
	out := s.rl.Stdout()
	s.c.OnPlayerEvent(func(msg proto.PlayerEventMessage) {
		fmt.Fprintln(out, describeEvent(msg))
	})
	s.c.OnSinkEvent(func(msg proto.SinkEventMessage) {
		fmt.Fprintf(out, "[%s] sink %s\n", msg.DeviceID, msg.Data.Status)
	})
	s.c.OnAudioFormat(func(msg proto.AudioFormatMessage) {
		f := msg.Data
		fmt.Fprintf(out, "[%s] audio %d Hz, %d ch, %d-bit %s\n", msg.DeviceID, f.SampleRate, f.Channels, f.BitDepth, f.Format)
	})
	s.c.OnAudio(func(a client.Audio) {
		s.audioBytes.Add(int64(len(a.Data)))
	})
	s.c.OnStreamStopped(func(deviceID string) {
		fmt.Fprintf(out, "[%s] audio stream stopped\n", deviceID)
	})
}

func completer() *readline.PrefixCompleter {
	items := []readline.PrefixCompleterInterface{
		readline.PcItem("create"),
		readline.PcItem("use"),
		readline.PcItem("devices"),
		readline.PcItem("volume"),
		readline.PcItem("seek"),
		readline.PcItem("disconnect", readline.PcItem("pause")),
		readline.PcItem("help"),
		readline.PcItem("quit"),
	}
	for word := range simple {
		items = append(items, readline.PcItem(word))
	}
	for word := range toggles {
		items = append(items, readline.PcItem(word, readline.PcItem("on"), readline.PcItem("off")))
	}
	return readline.NewPrefixCompleter(items...)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
