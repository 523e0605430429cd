// Package grpcfeed is the gRPC transport: a single server-streaming RPC
// that republishes every snapshot as a StringValue. It deliberately carries
// no dedicated .proto schema — the payload is already a self-describing
// JSON string, so the well-known wrapperspb/emptypb types are enough, and
// the service is registered by hand against grpc.ServiceDesc the way
// grpc-go's own generated code would, without a codegen step.
package grpcfeed

import (
	"sync"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// subscriberBuffer bounds how many unread snapshots a single gRPC client may
// lag behind before new ones are dropped for it.
const subscriberBuffer = 8

// FeedServer is implemented by Sink; it is the hand-written equivalent of a
// protoc-gen-go-grpc server interface.
type FeedServer interface {
	Subscribe(*emptypb.Empty, Feed_SubscribeServer) error
}

// Feed_SubscribeServer is the server side of the Subscribe stream.
type Feed_SubscribeServer interface {
	Send(*wrapperspb.StringValue) error
	grpc.ServerStream
}

type feedSubscribeServer struct{ grpc.ServerStream }

func (x *feedSubscribeServer) Send(m *wrapperspb.StringValue) error {
	return x.ServerStream.SendMsg(m)
}

func feedSubscribeHandler(srv any, stream grpc.ServerStream) error {
	req := new(emptypb.Empty)
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	return srv.(FeedServer).Subscribe(req, &feedSubscribeServer{stream})
}

// ServiceDesc is the hand-registered equivalent of a generated
// _Feed_serviceDesc.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: "bdswatch.Feed",
	HandlerType: (*FeedServer)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Subscribe",
			Handler:       feedSubscribeHandler,
			ServerStreams: true,
		},
	},
	Metadata: "bdswatch/feed.proto",
}

// RegisterFeedServer registers srv against s the way a generated
// RegisterFeedServer function would.
func RegisterFeedServer(s *grpc.Server, srv FeedServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// Sink fans every published payload out to connected gRPC subscribers,
// dropping a payload for any subscriber whose buffer is full.
type Sink struct {
	log logrus.FieldLogger

	mu          sync.Mutex
	subscribers map[chan string]struct{}
}

// New returns an empty Sink.
func New(log logrus.FieldLogger) *Sink {
	return &Sink{log: log, subscribers: make(map[chan string]struct{})}
}

// Publish fans payload out to every connected subscriber.
func (s *Sink) Publish(payload string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.subscribers {
		select {
		case ch <- payload:
		default:
			s.log.Debug("dropping snapshot for slow gRPC subscriber")
		}
	}
}

// Subscribe implements FeedServer: it streams every published payload to
// the caller until the stream's context is done.
func (s *Sink) Subscribe(_ *emptypb.Empty, stream Feed_SubscribeServer) error {
	ch := make(chan string, subscriberBuffer)
	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.subscribers, ch)
		s.mu.Unlock()
	}()

	for {
		select {
		case payload := <-ch:
			if err := stream.Send(wrapperspb.String(payload)); err != nil {
				return err
			}
		case <-stream.Context().Done():
			return stream.Context().Err()
		}
	}
}
