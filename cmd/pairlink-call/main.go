// pairlink-call is a terminal demo of the full exchange: two invocations pair
// through a relay, negotiate a WebRTC data channel, and bridge stdin/stdout
// over it.
//
//	pairlink-call -relay http://localhost:8080 host
//	pairlink-call -relay http://localhost:8080 join <join-link-or-token>
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/pion/webrtc/v4"

	"github.com/pairlink/pairlink/internal/negotiation"
	"github.com/pairlink/pairlink/internal/peer"
)

func main() {
	relayURL := flag.String("relay", "http://localhost:8080", "relay base URL")
	stun := flag.String("stun", "stun:stun.l.google.com:19302", "STUN server URL, empty to disable")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if err := run(*relayURL, *stun, flag.Args(), logger); err != nil {
		logger.Error("call failed", "err", err)
		os.Exit(1)
	}
}

func run(relayURL, stun string, args []string, logger *slog.Logger) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: pairlink-call [flags] host | join <link-or-token>")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var iceServers []webrtc.ICEServer
	if stun != "" {
		iceServers = []webrtc.ICEServer{{URLs: []string{stun}}}
	}

	api, err := peer.NewAPI(peer.Options{ICEServers: iceServers})
	if err != nil {
		return err
	}
	sess, err := peer.NewSession(api, iceServers, logger)
	if err != nil {
		return err
	}
	defer sess.Close()

	sess.OnMessage(func(data []byte) {
		fmt.Printf("peer> %s\n", data)
	})

	client := &negotiation.Client{BaseURL: relayURL, Log: logger}

	switch args[0] {
	case "host":
		err = negotiation.RunInitiator(ctx, client, sess, logger, func(r negotiation.Room) {
			fmt.Printf("share this link (valid for %s):\n  %s\n", r.TTL, r.JoinReference)
		})
	case "join":
		if len(args) < 2 {
			return fmt.Errorf("usage: pairlink-call join <link-or-token>")
		}
		token := args[1]
		if strings.Contains(token, "/join/") {
			if token, err = negotiation.TokenFromJoinReference(token); err != nil {
				return err
			}
		}
		err = negotiation.RunResponder(ctx, client, token, sess, logger)
	default:
		return fmt.Errorf("unknown command %q (expected host or join)", args[0])
	}
	if err != nil {
		return err
	}

	if err := sess.WaitReady(ctx); err != nil {
		return fmt.Errorf("data channel never opened: %w", err)
	}
	fmt.Println("connected; type messages, ctrl-d to quit")

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		if err := sess.Send([]byte(line)); err != nil {
			return fmt.Errorf("send: %w", err)
		}
	}
	return scanner.Err()
}
