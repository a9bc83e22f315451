package grpcserver

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"matchd/domain/balance"
	"matchd/domain/events"
	"matchd/service"
	"matchd/snapshot"
)

type Submitter interface {
	Submit(ctx context.Context, req *service.Request) (service.Response, error)
}

type BalanceReader interface {
	Balance(clientID, assetID string) balance.Balance
	ClientBalances(clientID string) map[string]balance.Balance
}

// Server adapts the processor and the read models to gRPC.
type Server struct {
	submit   Submitter
	books    *snapshot.Reader
	balances BalanceReader
	log      *zap.Logger
}

func NewServer(submit Submitter, books *snapshot.Reader, balances BalanceReader, log *zap.Logger) *Server {
	return &Server{submit: submit, books: books, balances: balances, log: log.Named("grpc")}
}

// -------------------- Commands --------------------

func (s *Server) PlaceLimitOrder(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	body := &service.LimitOrderRequest{}
	return s.command(ctx, in, body, &service.Request{Type: events.MessageLimitOrder, Limit: body})
}

func (s *Server) PlaceMarketOrder(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	body := &service.MarketOrderRequest{}
	return s.command(ctx, in, body, &service.Request{Type: events.MessageMarketOrder, Market: body})
}

func (s *Server) PlaceStopOrder(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	body := &service.StopOrderRequest{}
	return s.command(ctx, in, body, &service.Request{Type: events.MessageStopOrder, Stop: body})
}

func (s *Server) CancelOrders(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	body := &service.CancelRequest{}
	return s.command(ctx, in, body, &service.Request{Type: events.MessageCancelOrders, Cancel: body})
}

// command decodes in into body, submits req and returns the response.
// Business rejections are answers, not gRPC errors.
func (s *Server) command(ctx context.Context, in *structpb.Struct, body any, req *service.Request) (*structpb.Struct, error) {
	if err := service.FromStruct(in, body); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if v, ok := in.GetFields()["request_id"]; ok {
		req.RequestID = v.GetStringValue()
	}

	resp, err := s.submit.Submit(ctx, req)
	if err != nil {
		s.log.Warn("submit", zap.Stringer("type", req.Type), zap.Error(err))
		return nil, toStatus(err)
	}
	out, err := service.ToStruct(resp)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

// -------------------- Queries --------------------

type orderBookQuery struct {
	AssetPairID string `json:"asset_pair_id"`
	Depth       int    `json:"depth"`
}

// GetOrderBook returns the depth of one instrument, or of all of them
// when asset_pair_id is empty.
func (s *Server) GetOrderBook(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var q orderBookQuery
	if err := service.FromStruct(in, &q); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	var v any
	if q.AssetPairID == "" {
		v = map[string]any{"books": s.books.All(q.Depth)}
	} else {
		v = s.books.Book(q.AssetPairID, q.Depth)
	}
	out, err := service.ToStruct(v)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

type balanceQuery struct {
	ClientID string `json:"client_id"`
	AssetID  string `json:"asset_id"`
}

type balanceView struct {
	ClientID string                     `json:"client_id"`
	Balances map[string]balance.Balance `json:"balances"`
}

func (s *Server) GetBalance(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var q balanceQuery
	if err := service.FromStruct(in, &q); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if q.ClientID == "" {
		return nil, status.Error(codes.InvalidArgument, "client_id is required")
	}

	view := balanceView{ClientID: q.ClientID}
	if q.AssetID != "" {
		view.Balances = map[string]balance.Balance{q.AssetID: s.balances.Balance(q.ClientID, q.AssetID)}
	} else {
		view.Balances = s.balances.ClientBalances(q.ClientID)
	}
	out, err := service.ToStruct(view)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

// -------------------- Errors --------------------

func toStatus(err error) error {
	switch {
	case errors.Is(err, service.ErrBadRequest):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, service.ErrProcessorStopped):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	}
	return status.Error(codes.Internal, err.Error())
}

// LoggingInterceptor logs every call with its duration and status code.
func LoggingInterceptor(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		fields := []zap.Field{
			zap.String("method", info.FullMethod),
			zap.Duration("duration", time.Since(start)),
			zap.String("code", status.Code(err).String()),
		}
		if err != nil {
			log.Warn("grpc call failed", append(fields, zap.Error(err))...)
			return resp, err
		}
		log.Debug("grpc call", fields...)
		return resp, nil
	}
}
