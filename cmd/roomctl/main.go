package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gookit/color"

	"github.com/cwrk-planet/feed-service/internal/client"
	"github.com/cwrk-planet/feed-service/internal/domain"
)

func main() {
	addr := flag.String("addr", "ws://localhost:8080", "feed-service base url")
	room := flag.String("room", "general", "room to join")
	user := flag.String("user", os.Getenv("USER"), "username")
	flag.Parse()

	if *user == "" {
		fmt.Fprintln(os.Stderr, "roomctl: -user is required")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *addr, *room, *user); err != nil {
		color.Red.Println("roomctl:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, addr, room, user string) error {
	c, err := client.Dial(ctx, addr, room, user)
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	runErr := make(chan error, 1)
	go func() { runErr <- c.Run(ctx) }()

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	color.Cyan.Printf("joined %s as %s, /help for commands\n", room, user)

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-runErr:
			return err
		case u, ok := <-c.Updates():
			if !ok {
				return <-runErr
			}
			if u.Err != nil {
				color.Red.Printf("error (%s): %s\n", u.Err.Command, u.Err.Message)
				continue
			}
			renderFeed(os.Stdout, c.Feed(), user)
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			quit, err := execute(c, line)
			if err != nil && !errors.Is(err, errEmpty) {
				color.Yellow.Println(err)
			}
			if quit {
				return nil
			}
		}
	}
}

func execute(c *client.Client, line string) (quit bool, err error) {
	cmd, err := parseLine(line)
	if err != nil {
		return false, err
	}

	events := c.Feed().Events()

	switch cmd.kind {
	case cmdSend:
		return false, c.Send(cmd.text)
	case cmdEdit:
		id, err := resolveID(events, domain.KindChat, cmd.id)
		if err != nil {
			return false, err
		}
		return false, c.Edit(id, cmd.text)
	case cmdDelete:
		id, err := resolveID(events, domain.KindChat, cmd.id)
		if err != nil {
			return false, err
		}
		return false, c.Delete(id)
	case cmdPoll:
		return false, c.CreatePoll(cmd.text, cmd.options)
	case cmdVote:
		id, err := resolveID(events, domain.KindPoll, cmd.id)
		if err != nil {
			return false, err
		}
		return false, c.Vote(id, cmd.text)
	case cmdSeen:
		return false, c.MarkSeen()
	case cmdLeave:
		return true, c.Leave()
	case cmdHelp:
		fmt.Println(usage)
		return false, nil
	case cmdQuit:
		return true, nil
	}
	return false, nil
}
