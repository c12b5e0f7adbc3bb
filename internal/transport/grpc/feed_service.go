package grpcx

import (
	"context"

	"github.com/cwrk-planet/feed-service/internal/domain"

	"google.golang.org/grpc"
)

const (
	FeedServiceName   = "feed.v1.FeedService"
	methodGetHistory  = "/" + FeedServiceName + "/GetHistory"
	methodPostMessage = "/" + FeedServiceName + "/PostMessage"
)

type GetHistoryRequest struct {
	Room string `json:"room"`
}

type GetHistoryResponse struct {
	Events []domain.Event `json:"events"`
}

type PostMessageRequest struct {
	Room     string `json:"room"`
	Username string `json:"username"`
	Text     string `json:"text"`
}

type PostMessageResponse struct {
	Message *domain.Message `json:"message"`
}

type FeedServiceServer interface {
	GetHistory(context.Context, *GetHistoryRequest) (*GetHistoryResponse, error)
	PostMessage(context.Context, *PostMessageRequest) (*PostMessageResponse, error)
}

var FeedServiceDesc = grpc.ServiceDesc{
	ServiceName: FeedServiceName,
	HandlerType: (*FeedServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetHistory", Handler: getHistoryHandler},
		{MethodName: "PostMessage", Handler: postMessageHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "feed/v1/feed",
}

func getHistoryHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(GetHistoryRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(FeedServiceServer).GetHistory(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodGetHistory}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(FeedServiceServer).GetHistory(ctx, req.(*GetHistoryRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func postMessageHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(PostMessageRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(FeedServiceServer).PostMessage(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodPostMessage}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(FeedServiceServer).PostMessage(ctx, req.(*PostMessageRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// FeedClient - клиент FeedService поверх JSON-кодека.
type FeedClient struct {
	cc grpc.ClientConnInterface
}

func NewFeedClient(cc grpc.ClientConnInterface) *FeedClient {
	return &FeedClient{cc: cc}
}

func (c *FeedClient) GetHistory(ctx context.Context, in *GetHistoryRequest, opts ...grpc.CallOption) (*GetHistoryResponse, error) {
	out := new(GetHistoryResponse)
	if err := c.cc.Invoke(ctx, methodGetHistory, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *FeedClient) PostMessage(ctx context.Context, in *PostMessageRequest, opts ...grpc.CallOption) (*PostMessageResponse, error) {
	out := new(PostMessageResponse)
	if err := c.cc.Invoke(ctx, methodPostMessage, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func withCodec(opts []grpc.CallOption) []grpc.CallOption {
	return append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
}
