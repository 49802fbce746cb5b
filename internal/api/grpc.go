package api

import (
	"context"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"commander/internal/notify"
	"commander/internal/session"
	"commander/pkg/commander"
)

// ConsoleServer is the server API of the Console gRPC service.
type ConsoleServer interface {
	HandleLine(ctx context.Context, req *structpb.Struct) (*wrapperspb.StringValue, error)
	Subscribe(req *emptypb.Empty, stream grpc.ServerStream) error
}

var consoleServiceDesc = grpc.ServiceDesc{
	ServiceName: commander.ServiceName,
	HandlerType: (*ConsoleServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "HandleLine", Handler: handleLineHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: commander.SubscribeStream.StreamName, Handler: subscribeHandler, ServerStreams: true},
	},
	Metadata: "commander/console",
}

func handleLineHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ConsoleServer).HandleLine(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: commander.HandleLineMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ConsoleServer).HandleLine(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func subscribeHandler(srv any, stream grpc.ServerStream) error {
	in := new(emptypb.Empty)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(ConsoleServer).Subscribe(in, stream)
}

// ConsoleService implements the Console gRPC service over a session manager.
type ConsoleService struct {
	sessions *session.Manager
	hub      *notify.Hub
	log      *slog.Logger
}

// NewConsoleService creates a ConsoleService. hub may be nil, in which case
// Subscribe ends immediately.
func NewConsoleService(sessions *session.Manager, hub *notify.Hub, log *slog.Logger) *ConsoleService {
	if log == nil {
		log = slog.Default()
	}
	return &ConsoleService{sessions: sessions, hub: hub, log: log.With("component", "grpc")}
}

// RegisterGRPC registers the service on the given gRPC server instance.
func (s *ConsoleService) RegisterGRPC(gs *grpc.Server) {
	gs.RegisterService(&consoleServiceDesc, s)
}

// HandleLine runs one console line for the request's connection.
func (s *ConsoleService) HandleLine(ctx context.Context, req *structpb.Struct) (*wrapperspb.StringValue, error) {
	connID, text, err := commander.ParseLineRequest(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	return wrapperspb.String(s.sessions.HandleLine(ctx, connID, text)), nil
}

// Subscribe sends the retained notifications, then streams new ones until
// the client disconnects.
func (s *ConsoleService) Subscribe(_ *emptypb.Empty, stream grpc.ServerStream) error {
	if s.hub == nil {
		return nil
	}
	subID, ch := s.hub.Subscribe(64)
	defer s.hub.Unsubscribe(subID)

	for _, m := range s.hub.Recent() {
		if err := sendNotification(stream, m); err != nil {
			return err
		}
	}
	s.log.Info("grpc client subscribed", "subID", subID)

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			s.log.Info("grpc client disconnected", "subID", subID)
			return nil
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			if err := sendNotification(stream, m); err != nil {
				return err
			}
		}
	}
}

func sendNotification(stream grpc.ServerStream, m notify.Message) error {
	msg, err := commander.EncodeNotification(commander.Notification{Time: m.Time, Source: m.Source, Text: m.Text})
	if err != nil {
		return err
	}
	return stream.SendMsg(msg)
}
