package api

import (
	"context"

	"google.golang.org/grpc"

	"github.com/matheus3301/qchat/internal/chart"
	"github.com/matheus3301/qchat/internal/rpc"
	"github.com/matheus3301/qchat/internal/session"
)

var _ rpc.ChartServer = (*ChartService)(nil)

// ChartService implements qchat.v1.ChartService.
type ChartService struct {
	manager *session.Manager
}

// NewChartService creates a new chart service.
func NewChartService(m *session.Manager) *ChartService {
	return &ChartService{manager: m}
}

func (s *ChartService) ListCharts(ctx context.Context, req *rpc.ListChartsRequest) (*rpc.ListChartsResponse, error) {
	t, err := s.manager.Get(tabID(req.Tab))
	if err != nil {
		return nil, toStatus(err)
	}
	charts, err := t.Charts(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	if charts == nil {
		charts = []chart.Chart{}
	}
	return &rpc.ListChartsResponse{Charts: charts}, nil
}

func (s *ChartService) CreateChart(ctx context.Context, req *rpc.CreateChartRequest) (*rpc.CreateChartResponse, error) {
	t, err := s.manager.Get(tabID(req.Tab))
	if err != nil {
		return nil, toStatus(err)
	}
	c, err := t.CreateChart(ctx, req.Title, req.Type, req.CSV)
	if err != nil {
		return nil, toStatus(err)
	}
	return &rpc.CreateChartResponse{Chart: c}, nil
}

func (s *ChartService) DeleteChart(ctx context.Context, req *rpc.DeleteChartRequest) (*rpc.DeleteChartResponse, error) {
	t, err := s.manager.Get(tabID(req.Tab))
	if err != nil {
		return nil, toStatus(err)
	}
	if err := t.DeleteChart(ctx, req.ID); err != nil {
		return nil, toStatus(err)
	}
	return &rpc.DeleteChartResponse{}, nil
}

func (s *ChartService) ExportChart(ctx context.Context, req *rpc.ExportChartRequest) (*rpc.ExportChartResponse, error) {
	t, err := s.manager.Get(tabID(req.Tab))
	if err != nil {
		return nil, toStatus(err)
	}
	name, data, err := t.ExportChart(ctx, req.ID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &rpc.ExportChartResponse{FileName: name, PNG: data}, nil
}

func (s *ChartService) WatchCharts(req *rpc.WatchChartsRequest, stream grpc.ServerStreamingServer[rpc.ListChartsResponse]) error {
	t, err := s.manager.Get(tabID(req.Tab))
	if err != nil {
		return toStatus(err)
	}
	snaps, err := t.WatchCharts(stream.Context())
	if err != nil {
		return toStatus(err)
	}
	for charts := range snaps {
		if charts == nil {
			charts = []chart.Chart{}
		}
		if err := stream.Send(&rpc.ListChartsResponse{Charts: charts}); err != nil {
			return err
		}
	}
	return nil
}
