package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Dial connects to a daemon socket with the JSON codec as default.
func Dial(socketPath string) (*grpc.ClientConn, error) {
	return grpc.NewClient(
		"unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(CallOption()),
	)
}

func invoke[Res any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Res, error) {
	out := new(Res)
	opts = append([]grpc.CallOption{CallOption()}, opts...)
	if err := cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// SessionClient calls qchat.v1.SessionService.
type SessionClient struct {
	cc grpc.ClientConnInterface
}

func NewSessionClient(cc grpc.ClientConnInterface) *SessionClient {
	return &SessionClient{cc: cc}
}

func sessionMethod(name string) string { return "/" + SessionServiceName + "/" + name }

func (c *SessionClient) OpenTab(ctx context.Context, in *OpenTabRequest, opts ...grpc.CallOption) (*OpenTabResponse, error) {
	return invoke[OpenTabResponse](ctx, c.cc, sessionMethod("OpenTab"), in, opts)
}

func (c *SessionClient) CloseTab(ctx context.Context, in *CloseTabRequest, opts ...grpc.CallOption) (*CloseTabResponse, error) {
	return invoke[CloseTabResponse](ctx, c.cc, sessionMethod("CloseTab"), in, opts)
}

func (c *SessionClient) GetStatus(ctx context.Context, in *GetStatusRequest, opts ...grpc.CallOption) (*Status, error) {
	return invoke[Status](ctx, c.cc, sessionMethod("GetStatus"), in, opts)
}

func (c *SessionClient) SendCode(ctx context.Context, in *SendCodeRequest, opts ...grpc.CallOption) (*SendCodeResponse, error) {
	return invoke[SendCodeResponse](ctx, c.cc, sessionMethod("SendCode"), in, opts)
}

func (c *SessionClient) Verify(ctx context.Context, in *VerifyRequest, opts ...grpc.CallOption) (*VerifyResponse, error) {
	return invoke[VerifyResponse](ctx, c.cc, sessionMethod("Verify"), in, opts)
}

func (c *SessionClient) CancelLogin(ctx context.Context, in *CancelLoginRequest, opts ...grpc.CallOption) (*CancelLoginResponse, error) {
	return invoke[CancelLoginResponse](ctx, c.cc, sessionMethod("CancelLogin"), in, opts)
}

func (c *SessionClient) Logout(ctx context.Context, in *LogoutRequest, opts ...grpc.CallOption) (*LogoutResponse, error) {
	return invoke[LogoutResponse](ctx, c.cc, sessionMethod("Logout"), in, opts)
}

func (c *SessionClient) SetFocus(ctx context.Context, in *SetFocusRequest, opts ...grpc.CallOption) (*SetFocusResponse, error) {
	return invoke[SetFocusResponse](ctx, c.cc, sessionMethod("SetFocus"), in, opts)
}

func (c *SessionClient) ListPresence(ctx context.Context, in *ListPresenceRequest, opts ...grpc.CallOption) (*ListPresenceResponse, error) {
	return invoke[ListPresenceResponse](ctx, c.cc, sessionMethod("ListPresence"), in, opts)
}

// WatchEvents streams the tab's notifications until ctx ends.
func (c *SessionClient) WatchEvents(ctx context.Context, in *WatchEventsRequest, opts ...grpc.CallOption) (grpc.ServerStreamingClient[Event], error) {
	opts = append([]grpc.CallOption{CallOption()}, opts...)
	stream, err := c.cc.NewStream(ctx, &SessionServiceDesc.Streams[0], sessionMethod("WatchEvents"), opts...)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[WatchEventsRequest, Event]{ClientStream: stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

// MessageClient calls qchat.v1.MessageService.
type MessageClient struct {
	cc grpc.ClientConnInterface
}

func NewMessageClient(cc grpc.ClientConnInterface) *MessageClient {
	return &MessageClient{cc: cc}
}

func messageMethod(name string) string { return "/" + MessageServiceName + "/" + name }

func (c *MessageClient) ListMessages(ctx context.Context, in *ListMessagesRequest, opts ...grpc.CallOption) (*ListMessagesResponse, error) {
	return invoke[ListMessagesResponse](ctx, c.cc, messageMethod("ListMessages"), in, opts)
}

func (c *MessageClient) SendMessage(ctx context.Context, in *SendMessageRequest, opts ...grpc.CallOption) (*SendMessageResponse, error) {
	return invoke[SendMessageResponse](ctx, c.cc, messageMethod("SendMessage"), in, opts)
}

func (c *MessageClient) GetAttachment(ctx context.Context, in *GetAttachmentRequest, opts ...grpc.CallOption) (*GetAttachmentResponse, error) {
	return invoke[GetAttachmentResponse](ctx, c.cc, messageMethod("GetAttachment"), in, opts)
}

// ChartClient calls qchat.v1.ChartService.
type ChartClient struct {
	cc grpc.ClientConnInterface
}

func NewChartClient(cc grpc.ClientConnInterface) *ChartClient {
	return &ChartClient{cc: cc}
}

func chartMethod(name string) string { return "/" + ChartServiceName + "/" + name }

func (c *ChartClient) ListCharts(ctx context.Context, in *ListChartsRequest, opts ...grpc.CallOption) (*ListChartsResponse, error) {
	return invoke[ListChartsResponse](ctx, c.cc, chartMethod("ListCharts"), in, opts)
}

func (c *ChartClient) CreateChart(ctx context.Context, in *CreateChartRequest, opts ...grpc.CallOption) (*CreateChartResponse, error) {
	return invoke[CreateChartResponse](ctx, c.cc, chartMethod("CreateChart"), in, opts)
}

func (c *ChartClient) DeleteChart(ctx context.Context, in *DeleteChartRequest, opts ...grpc.CallOption) (*DeleteChartResponse, error) {
	return invoke[DeleteChartResponse](ctx, c.cc, chartMethod("DeleteChart"), in, opts)
}

func (c *ChartClient) ExportChart(ctx context.Context, in *ExportChartRequest, opts ...grpc.CallOption) (*ExportChartResponse, error) {
	return invoke[ExportChartResponse](ctx, c.cc, chartMethod("ExportChart"), in, opts)
}

// WatchCharts streams chart list snapshots until ctx ends.
func (c *ChartClient) WatchCharts(ctx context.Context, in *WatchChartsRequest, opts ...grpc.CallOption) (grpc.ServerStreamingClient[ListChartsResponse], error) {
	opts = append([]grpc.CallOption{CallOption()}, opts...)
	stream, err := c.cc.NewStream(ctx, &ChartServiceDesc.Streams[0], chartMethod("WatchCharts"), opts...)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[WatchChartsRequest, ListChartsResponse]{ClientStream: stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}
