package domain

import (
	"slices"
	"time"
)

type PollOption struct {
	Option  string   `json:"option" db:"label"`
	Votes   int      `json:"votes" db:"votes"`
	VotedBy []string `json:"votedBy" db:"voted_by"`
}

type Poll struct {
	ID        string       `json:"id" db:"id"`
	Room      string       `json:"room" db:"room"`
	Question  string       `json:"question" db:"question"`
	Options   []PollOption `json:"options"`
	CreatedAt time.Time    `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time    `json:"updatedAt" db:"updated_at"`
}

// NewPollOptions - варианты с нулём голосов.
func NewPollOptions(labels []string) []PollOption {
	out := make([]PollOption, 0, len(labels))
	for _, l := range labels {
		out = append(out, PollOption{Option: l, VotedBy: []string{}})
	}
	return out
}

// HasVoted проверяет все варианты, а не только один.
func (p Poll) HasVoted(username string) bool {
	for _, o := range p.Options {
		if slices.Contains(o.VotedBy, username) {
			return true
		}
	}
	return false
}

func (p Poll) Option(label string) (int, bool) {
	for i, o := range p.Options {
		if o.Option == label {
			return i, true
		}
	}
	return -1, false
}

func (p Poll) TotalVotes() int {
	total := 0
	for _, o := range p.Options {
		total += o.Votes
	}
	return total
}

// ApplyVote проверяет инварианты и меняет счётчик вместе с votedBy.
// Вызывающий отвечает за эксклюзивный доступ к опросу.
func (p *Poll) ApplyVote(username, label string, now time.Time) error {
	if p.HasVoted(username) {
		return ErrVoteConflict
	}
	i, ok := p.Option(label)
	if !ok {
		return ErrOptionNotFound
	}
	p.Options[i].Votes++
	p.Options[i].VotedBy = append(p.Options[i].VotedBy, username)
	p.UpdatedAt = now
	return nil
}

func (p Poll) Clone() Poll {
	opts := make([]PollOption, len(p.Options))
	for i, o := range p.Options {
		o.VotedBy = append(make([]string, 0, len(o.VotedBy)), o.VotedBy...)
		opts[i] = o
	}
	p.Options = opts
	return p
}
