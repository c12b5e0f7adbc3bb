package main

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"

	"github.com/cwrk-planet/feed-service/internal/domain"
	"github.com/cwrk-planet/feed-service/internal/feed"
)

const shortID = 8

func short(id string) string {
	if len(id) <= shortID {
		return id
	}
	return id[:shortID]
}

func renderFeed(w io.Writer, f *feed.Feed, me string) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"ID", "Time", "Who", "Content", "Seen"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("  ")

	for _, ev := range f.Events() {
		switch ev.Kind {
		case domain.KindChat:
			table.Append(messageRow(*ev.Message, me))
		case domain.KindPoll:
			pending, _ := f.PendingVote(ev.Poll.ID)
			table.Append(pollRow(*ev.Poll, me, pending))
		}
	}
	table.Render()
}

func messageRow(m domain.Message, me string) []string {
	who := m.Username
	if who == me {
		who = color.Green.Sprint(who)
	}
	return []string{short(m.ID), m.Timestamp, who, m.Text, fmt.Sprint(len(m.SeenBy))}
}

func pollRow(p domain.Poll, me, pending string) []string {
	opts := make([]string, 0, len(p.Options))
	for _, o := range p.Options {
		label := fmt.Sprintf("%s (%d)", o.Option, o.Votes)
		switch {
		case slices.Contains(o.VotedBy, me):
			label = color.Green.Sprint(label + " *")
		case pending == o.Option:
			label = color.Yellow.Sprint(label + " ...")
		}
		opts = append(opts, label)
	}
	content := color.Cyan.Sprint("? "+p.Question) + "  " + strings.Join(opts, " | ")
	return []string{short(p.ID), p.CreatedAt.Local().Format(domain.DisplayTimeLayout), "poll", content, ""}
}
