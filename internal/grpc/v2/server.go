// Package v2 gRPC-интерфейс сервиса коротких ссылок.
//
// Сообщения описаны well-known типами protobuf (Struct, ListValue, StringValue),
// поэтому сервис не требует сгенерированного кода.
package v2

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/Totarae/shortlink/internal/model"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName полное имя gRPC-сервиса.
const ServiceName = "shortener.v2.LinkService"

// LinkService операции, которые gRPC-слой делегирует сервису ссылок.
type LinkService interface {
	Shorten(ctx context.Context, req model.ShortenRequest) (*model.ShortenResponse, error)
	Resolve(ctx context.Context, code string) (model.Resolution, error)
	List(ctx context.Context, search string) ([]*model.LinkRecord, error)
}

// LinkServiceServer серверная часть shortener.v2.LinkService.
type LinkServiceServer interface {
	Shorten(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Resolve(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error)
	List(ctx context.Context, req *wrapperspb.StringValue) (*structpb.ListValue, error)
}

type GRPCServer struct {
	service LinkService
	logger  *zap.Logger
}

func NewGRPCServer(service LinkService, logger *zap.Logger) *GRPCServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GRPCServer{service: service, logger: logger}
}

// NewServer создаёт grpc.Server с зарегистрированными LinkService и health.
func NewServer(service LinkService, logger *zap.Logger, opts ...grpc.ServerOption) *grpc.Server {
	s := NewGRPCServer(service, logger)

	opts = append([]grpc.ServerOption{grpc.ChainUnaryInterceptor(LoggingInterceptor(s.logger))}, opts...)
	srv := grpc.NewServer(opts...)
	RegisterLinkServiceServer(srv, s)

	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)
	return srv
}

// Shorten ожидает {"original_url": string, "ttl_hours": number?}.
func (s *GRPCServer) Shorten(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()

	in := model.ShortenRequest{OriginalURL: fields["original_url"].GetStringValue()}
	if v, ok := fields["ttl_hours"]; ok {
		if _, isNull := v.GetKind().(*structpb.Value_NullValue); !isNull {
			hours, err := ttlFromValue(v)
			if err != nil {
				return nil, err
			}
			in.TTLHours = &hours
		}
	}

	resp, err := s.service.Shorten(ctx, in)
	if err != nil {
		return nil, toStatus(err)
	}

	out := map[string]any{
		"code":      resp.Code,
		"short_url": resp.ShortURL,
	}
	if resp.ExpiresAt != nil {
		out["expires_at"] = resp.ExpiresAt.UTC().Format(time.RFC3339Nano)
	}
	return structpb.NewStruct(out)
}

// ttlFromValue проверяет диапазон до преобразования: перевод float64 вне
// диапазона int в Go не определён.
func ttlFromValue(v *structpb.Value) (int, error) {
	n := v.GetNumberValue()
	if _, isNum := v.GetKind().(*structpb.Value_NumberValue); !isNum || n != math.Trunc(n) {
		return 0, status.Error(codes.InvalidArgument, "ttl_hours: must be a positive number of hours")
	}
	if n <= 0 {
		return 0, status.Error(codes.InvalidArgument, "ttl_hours: must be a positive number of hours")
	}
	if n > model.MaxTTLHours {
		return 0, status.Errorf(codes.InvalidArgument, "ttl_hours: must not exceed %d hours", model.MaxTTLHours)
	}
	return int(n), nil
}

// Resolve по коду возвращает {"target_url", "visit_count"} и учитывает переход.
func (s *GRPCServer) Resolve(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	res, err := s.service.Resolve(ctx, req.GetValue())
	if err != nil {
		return nil, toStatus(err)
	}

	switch res.Outcome {
	case model.OutcomeResolved:
		return structpb.NewStruct(map[string]any{
			"code":        res.Record.Code,
			"target_url":  res.Record.TargetURL,
			"visit_count": res.Record.VisitCount,
		})
	case model.OutcomeExpired:
		return nil, status.Error(codes.FailedPrecondition, "This link has expired")
	default:
		return nil, status.Error(codes.NotFound, "URL not found")
	}
}

// List аналог административного списка; пустое значение отдаёт все ссылки.
func (s *GRPCServer) List(ctx context.Context, req *wrapperspb.StringValue) (*structpb.ListValue, error) {
	recs, err := s.service.List(ctx, req.GetValue())
	if err != nil {
		return nil, toStatus(err)
	}

	items := make([]any, 0, len(recs))
	for _, rec := range recs {
		items = append(items, map[string]any{
			"code":        rec.Code,
			"target_url":  rec.TargetURL,
			"visit_count": rec.VisitCount,
			"created_at":  rec.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
	}
	return structpb.NewList(items)
}

func toStatus(err error) error {
	var verr *model.ValidationError
	switch {
	case errors.As(err, &verr):
		return status.Error(codes.InvalidArgument, verr.Error())
	case errors.Is(err, model.ErrNotFound):
		return status.Error(codes.NotFound, "URL not found")
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, "internal error")
	}
}

// LoggingInterceptor пишет одну строку лога на вызов.
func LoggingInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logger.Info("gRPC Request",
			zap.String("method", info.FullMethod),
			zap.String("code", status.Code(err).String()),
			zap.Duration("duration", time.Since(start)),
		)
		return resp, err
	}
}
