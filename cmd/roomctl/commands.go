package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/samber/lo"

	"github.com/cwrk-planet/feed-service/internal/domain"
)

type commandKind int

const (
	cmdSend commandKind = iota
	cmdEdit
	cmdDelete
	cmdPoll
	cmdVote
	cmdSeen
	cmdLeave
	cmdHelp
	cmdQuit
)

type command struct {
	kind    commandKind
	id      string // id или его префикс
	text    string
	options []string
}

var errEmpty = errors.New("empty input")

const usage = `commands:
  <text>                          send a message
  /edit <id> <new text>           edit your message
  /delete <id>                    delete your message
  /poll <question> | <a> | <b>    create a poll
  /vote <poll id> <option>        vote in a poll
  /seen                           mark the room as seen
  /leave                          leave the room
  /help, /quit`

func parseLine(line string) (command, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return command{}, errEmpty
	}
	if !strings.HasPrefix(line, "/") {
		return command{kind: cmdSend, text: line}, nil
	}

	name, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	switch name {
	case "/edit":
		id, text, ok := strings.Cut(rest, " ")
		if !ok || strings.TrimSpace(text) == "" {
			return command{}, errors.New("usage: /edit <id> <new text>")
		}
		return command{kind: cmdEdit, id: id, text: strings.TrimSpace(text)}, nil
	case "/delete":
		if rest == "" {
			return command{}, errors.New("usage: /delete <id>")
		}
		return command{kind: cmdDelete, id: rest}, nil
	case "/poll":
		parts := lo.Map(strings.Split(rest, "|"), func(s string, _ int) string {
			return strings.TrimSpace(s)
		})
		if len(parts) < 3 || parts[0] == "" {
			return command{}, errors.New("usage: /poll <question> | <a> | <b>")
		}
		return command{kind: cmdPoll, text: parts[0], options: parts[1:]}, nil
	case "/vote":
		id, option, ok := strings.Cut(rest, " ")
		if !ok || strings.TrimSpace(option) == "" {
			return command{}, errors.New("usage: /vote <poll id> <option>")
		}
		return command{kind: cmdVote, id: id, text: strings.TrimSpace(option)}, nil
	case "/seen":
		return command{kind: cmdSeen}, nil
	case "/leave":
		return command{kind: cmdLeave}, nil
	case "/help":
		return command{kind: cmdHelp}, nil
	case "/quit", "/exit":
		return command{kind: cmdQuit}, nil
	default:
		return command{}, fmt.Errorf("unknown command %s", name)
	}
}

// resolveID раскрывает короткий префикс из таблицы в полный id.
func resolveID(events []domain.Event, kind domain.EventKind, prefix string) (string, error) {
	matches := lo.FilterMap(events, func(ev domain.Event, _ int) (string, bool) {
		return ev.ID(), ev.Kind == kind && strings.HasPrefix(ev.ID(), prefix)
	})
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("no %s with id %q", kind, prefix)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("id %q is ambiguous", prefix)
	}
}
