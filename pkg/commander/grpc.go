package commander

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Wire contract of the Console service. Requests and notifications travel as
// google.protobuf.Struct; replies as google.protobuf.StringValue.
const (
	ServiceName      = "commander.Console"
	HandleLineMethod = "/" + ServiceName + "/HandleLine"
	SubscribeMethod  = "/" + ServiceName + "/Subscribe"
)

// SubscribeStream describes the server-streaming Subscribe RPC.
var SubscribeStream = grpc.StreamDesc{StreamName: "Subscribe", ServerStreams: true}

// NewLineRequest encodes a console line for HandleLine.
func NewLineRequest(connID, text string) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{"connection_id": connID, "text": text})
}

// ParseLineRequest decodes a HandleLine request.
func ParseLineRequest(req *structpb.Struct) (connID, text string, err error) {
	f := req.GetFields()
	connID = f["connection_id"].GetStringValue()
	if connID == "" {
		return "", "", errors.New("connection_id is required")
	}
	return connID, f["text"].GetStringValue(), nil
}

// EncodeNotification encodes n for the Subscribe stream.
func EncodeNotification(n Notification) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"time":   n.Time.Format(time.RFC3339Nano),
		"source": n.Source,
		"text":   n.Text,
	})
}

// DecodeNotification decodes a Subscribe stream message.
func DecodeNotification(s *structpb.Struct) Notification {
	f := s.GetFields()
	ts, _ := time.Parse(time.RFC3339Nano, f["time"].GetStringValue())
	return Notification{Time: ts, Source: f["source"].GetStringValue(), Text: f["text"].GetStringValue()}
}

// GRPCClient calls the Console service.
type GRPCClient struct {
	conn *grpc.ClientConn
}

// DialGRPC connects to the Console service at addr without TLS.
func DialGRPC(addr string, opts ...grpc.DialOption) (*GRPCClient, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", addr, err)
	}
	return &GRPCClient{conn: conn}, nil
}

// Close releases the connection.
func (c *GRPCClient) Close() error { return c.conn.Close() }

// HandleLine sends one console line for connID and returns the reply.
func (c *GRPCClient) HandleLine(ctx context.Context, connID, text string) (string, error) {
	req, err := NewLineRequest(connID, text)
	if err != nil {
		return "", err
	}
	out := new(wrapperspb.StringValue)
	if err := c.conn.Invoke(ctx, HandleLineMethod, req, out); err != nil {
		return "", err
	}
	return out.GetValue(), nil
}

// Subscribe streams server notifications to fn until ctx is cancelled or the
// stream ends.
func (c *GRPCClient) Subscribe(ctx context.Context, fn func(Notification)) error {
	stream, err := c.conn.NewStream(ctx, &SubscribeStream, SubscribeMethod)
	if err != nil {
		return fmt.Errorf("starting stream: %w", err)
	}
	if err := stream.SendMsg(&emptypb.Empty{}); err != nil {
		return err
	}
	if err := stream.CloseSend(); err != nil {
		return err
	}
	for {
		msg := new(structpb.Struct)
		err := stream.RecvMsg(msg)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("receiving notification: %w", err)
		}
		fn(DecodeNotification(msg))
	}
}
