package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/cwrk-planet/feed-service/internal/domain"
	"github.com/cwrk-planet/feed-service/internal/repository"

	"github.com/samber/lo"
)

type PollService struct {
	store  repository.EventStore
	limits Limits
}

func NewPollService(store repository.EventStore, limits Limits) *PollService {
	return &PollService{store: store, limits: limits.withDefaults()}
}

type createPollInput struct {
	Room     string   `json:"room" validate:"required"`
	Question string   `json:"question" validate:"required"`
	Options  []string `json:"options" validate:"min=2"`
}

type voteInput struct {
	PollID   string `json:"pollId" validate:"required"`
	Username string `json:"username" validate:"required"`
	Option   string `json:"option" validate:"required"`
}

// Create - пустые варианты отбрасываются, нужно минимум два уникальных.
func (s *PollService) Create(ctx context.Context, room, question string, options []string) (*domain.Poll, error) {
	labels := lo.Filter(
		lo.Map(options, func(o string, _ int) string { return strings.TrimSpace(o) }),
		func(o string, _ int) bool { return o != "" },
	)
	in := createPollInput{
		Room:     strings.TrimSpace(room),
		Question: strings.TrimSpace(question),
		Options:  labels,
	}
	if err := check(in); err != nil {
		return nil, err
	}
	if len(labels) > s.limits.MaxPollOptions {
		return nil, domain.Invalid(fmt.Sprintf("options must be at most %d", s.limits.MaxPollOptions))
	}
	if dups := lo.FindDuplicates(labels); len(dups) > 0 {
		return nil, domain.Invalid(fmt.Sprintf("duplicate option %q", dups[0]))
	}

	poll, err := s.store.CreatePoll(ctx, in.Room, in.Question, labels)
	if err != nil {
		return nil, storeErr("create poll", err)
	}
	return poll, nil
}

// Vote - один голос на опрос, по любому варианту.
func (s *PollService) Vote(ctx context.Context, pollID, author, option string) (*domain.Poll, error) {
	in := voteInput{
		PollID:   strings.TrimSpace(pollID),
		Username: strings.TrimSpace(author),
		Option:   strings.TrimSpace(option),
	}
	if err := check(in); err != nil {
		return nil, err
	}

	poll, err := s.store.Vote(ctx, in.PollID, in.Username, in.Option)
	if err != nil {
		return nil, storeErr("vote", err)
	}
	return poll, nil
}

func (s *PollService) List(ctx context.Context, room string) ([]domain.Poll, error) {
	polls, err := s.store.ListPolls(ctx, strings.TrimSpace(room))
	if err != nil {
		return nil, storeErr("list polls", err)
	}
	return polls, nil
}
