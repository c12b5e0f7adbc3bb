package grpcx

import (
	"context"
	"errors"
	"strings"

	"github.com/cwrk-planet/feed-service/internal/domain"
	"github.com/cwrk-planet/feed-service/internal/protocol"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type ChatSvc interface {
	Send(ctx context.Context, room, author, text string) (*domain.Message, error)
	History(ctx context.Context, room string) ([]domain.Event, error)
}

type Publisher interface {
	Publish(room string, msg protocol.Message) int
	LockRoom(room string) (unlock func())
}

type Server struct {
	chatSvc   ChatSvc
	publisher Publisher
}

var _ FeedServiceServer = (*Server)(nil)

func NewServer(chatSvc ChatSvc, publisher Publisher) *Server {
	return &Server{
		chatSvc:   chatSvc,
		publisher: publisher,
	}
}

func Register(grpcServer *grpc.Server, s *Server) {
	grpcServer.RegisterService(&FeedServiceDesc, s)
}

// NewGRPCServer - grpc.Server с логированием, recovery и трассировкой.
func NewGRPCServer(opts ...grpc.ServerOption) *grpc.Server {
	base := []grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(UnaryServerInterceptor()),
		grpc.ChainStreamInterceptor(StreamServerInterceptor()),
	}
	return grpc.NewServer(append(base, opts...)...)
}

// -------- helpers --------

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, domain.ErrValidation):
		return status.Error(codes.InvalidArgument, domain.Reason(err))
	case errors.Is(err, domain.ErrUnauthorized):
		return status.Error(codes.PermissionDenied, domain.Reason(err))
	case domain.IsNotFound(err):
		return status.Error(codes.NotFound, domain.Reason(err))
	case errors.Is(err, domain.ErrVoteConflict):
		return status.Error(codes.AlreadyExists, domain.Reason(err))
	default:
		return status.Error(codes.Internal, domain.Reason(err))
	}
}

// -------- methods --------

func (s *Server) GetHistory(ctx context.Context, in *GetHistoryRequest) (*GetHistoryResponse, error) {
	events, err := s.chatSvc.History(ctx, in.Room)
	if err != nil {
		return nil, mapErr(err)
	}
	if events == nil {
		events = []domain.Event{}
	}

	return &GetHistoryResponse{Events: events}, nil
}

func (s *Server) PostMessage(ctx context.Context, in *PostMessageRequest) (*PostMessageResponse, error) {
	if s.publisher != nil {
		unlock := s.publisher.LockRoom(strings.TrimSpace(in.Room))
		defer unlock()
	}

	msg, err := s.chatSvc.Send(ctx, in.Room, in.Username, in.Text)
	if err != nil {
		return nil, mapErr(err)
	}
	if s.publisher != nil {
		s.publisher.Publish(msg.Room, protocol.ReceiveMessage(*msg))
	}

	return &PostMessageResponse{Message: msg}, nil
}
