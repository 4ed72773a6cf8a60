package rpc

import (
	"context"

	"google.golang.org/grpc"
)

const (
	SessionServiceName = "qchat.v1.SessionService"
	MessageServiceName = "qchat.v1.MessageService"
	ChartServiceName   = "qchat.v1.ChartService"
)

// SessionServer manages tabs, sign-in and presence.
type SessionServer interface {
	OpenTab(context.Context, *OpenTabRequest) (*OpenTabResponse, error)
	CloseTab(context.Context, *CloseTabRequest) (*CloseTabResponse, error)
	GetStatus(context.Context, *GetStatusRequest) (*Status, error)
	SendCode(context.Context, *SendCodeRequest) (*SendCodeResponse, error)
	Verify(context.Context, *VerifyRequest) (*VerifyResponse, error)
	CancelLogin(context.Context, *CancelLoginRequest) (*CancelLoginResponse, error)
	Logout(context.Context, *LogoutRequest) (*LogoutResponse, error)
	SetFocus(context.Context, *SetFocusRequest) (*SetFocusResponse, error)
	ListPresence(context.Context, *ListPresenceRequest) (*ListPresenceResponse, error)
	WatchEvents(*WatchEventsRequest, grpc.ServerStreamingServer[Event]) error
}

// MessageServer reads and writes a tab's message log.
type MessageServer interface {
	ListMessages(context.Context, *ListMessagesRequest) (*ListMessagesResponse, error)
	SendMessage(context.Context, *SendMessageRequest) (*SendMessageResponse, error)
	GetAttachment(context.Context, *GetAttachmentRequest) (*GetAttachmentResponse, error)
}

// ChartServer manages shared charts.
type ChartServer interface {
	ListCharts(context.Context, *ListChartsRequest) (*ListChartsResponse, error)
	CreateChart(context.Context, *CreateChartRequest) (*CreateChartResponse, error)
	DeleteChart(context.Context, *DeleteChartRequest) (*DeleteChartResponse, error)
	ExportChart(context.Context, *ExportChartRequest) (*ExportChartResponse, error)
	WatchCharts(*WatchChartsRequest, grpc.ServerStreamingServer[ListChartsResponse]) error
}

// unary adapts a typed server method to a grpc.MethodDesc.
func unary[S, Req, Res any](service, name string, call func(S, context.Context, *Req) (*Res, error)) grpc.MethodDesc {
	fullMethod := "/" + service + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(S), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(S), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

func watchEventsHandler(srv any, stream grpc.ServerStream) error {
	in := new(WatchEventsRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(SessionServer).WatchEvents(in, &grpc.GenericServerStream[WatchEventsRequest, Event]{ServerStream: stream})
}

func watchChartsHandler(srv any, stream grpc.ServerStream) error {
	in := new(WatchChartsRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(ChartServer).WatchCharts(in, &grpc.GenericServerStream[WatchChartsRequest, ListChartsResponse]{ServerStream: stream})
}

var SessionServiceDesc = grpc.ServiceDesc{
	ServiceName: SessionServiceName,
	HandlerType: (*SessionServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(SessionServiceName, "OpenTab", SessionServer.OpenTab),
		unary(SessionServiceName, "CloseTab", SessionServer.CloseTab),
		unary(SessionServiceName, "GetStatus", SessionServer.GetStatus),
		unary(SessionServiceName, "SendCode", SessionServer.SendCode),
		unary(SessionServiceName, "Verify", SessionServer.Verify),
		unary(SessionServiceName, "CancelLogin", SessionServer.CancelLogin),
		unary(SessionServiceName, "Logout", SessionServer.Logout),
		unary(SessionServiceName, "SetFocus", SessionServer.SetFocus),
		unary(SessionServiceName, "ListPresence", SessionServer.ListPresence),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "WatchEvents",
			Handler:       watchEventsHandler,
			ServerStreams: true,
		},
	},
	Metadata: "qchat/v1/session",
}

var MessageServiceDesc = grpc.ServiceDesc{
	ServiceName: MessageServiceName,
	HandlerType: (*MessageServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(MessageServiceName, "ListMessages", MessageServer.ListMessages),
		unary(MessageServiceName, "SendMessage", MessageServer.SendMessage),
		unary(MessageServiceName, "GetAttachment", MessageServer.GetAttachment),
	},
	Metadata: "qchat/v1/message",
}

var ChartServiceDesc = grpc.ServiceDesc{
	ServiceName: ChartServiceName,
	HandlerType: (*ChartServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(ChartServiceName, "ListCharts", ChartServer.ListCharts),
		unary(ChartServiceName, "CreateChart", ChartServer.CreateChart),
		unary(ChartServiceName, "DeleteChart", ChartServer.DeleteChart),
		unary(ChartServiceName, "ExportChart", ChartServer.ExportChart),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "WatchCharts",
			Handler:       watchChartsHandler,
			ServerStreams: true,
		},
	},
	Metadata: "qchat/v1/chart",
}

func RegisterSessionServer(s grpc.ServiceRegistrar, srv SessionServer) {
	s.RegisterService(&SessionServiceDesc, srv)
}

func RegisterMessageServer(s grpc.ServiceRegistrar, srv MessageServer) {
	s.RegisterService(&MessageServiceDesc, srv)
}

func RegisterChartServer(s grpc.ServiceRegistrar, srv ChartServer) {
	s.RegisterService(&ChartServiceDesc, srv)
}
