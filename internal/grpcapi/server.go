package grpcapi

import (
	"context"
	"errors"
	"net"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/BrandonDHaskell/checkin/internal/auth"
	"github.com/BrandonDHaskell/checkin/internal/checkin/metrics"
	"github.com/BrandonDHaskell/checkin/internal/checkin/service"
	"github.com/BrandonDHaskell/checkin/internal/checkin/types"
	"github.com/BrandonDHaskell/checkin/internal/ratelimit"
)

type Dependencies struct {
	Logger           logrus.FieldLogger
	CheckIn          *service.CheckInService
	Verifier         *auth.Verifier
	RequireStaffAuth bool
	Limiter          *ratelimit.Limiter
	Metrics          *metrics.Metrics
}

type scanServer struct {
	checkIn *service.CheckInService
	logger  logrus.FieldLogger
}

// NewServer builds a grpc.Server with ScanService and the standard health
// service registered. The caller owns Serve and GracefulStop.
func NewServer(d Dependencies) *grpc.Server {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(
		staffInterceptor(d.Verifier, d.RequireStaffAuth),
		rateLimitInterceptor(d.Limiter, d.Metrics),
	))

	RegisterScanServer(srv, &scanServer{checkIn: d.CheckIn, logger: d.Logger})

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)

	return srv
}

func (s *scanServer) GetPending(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req struct {
		EventID int64  `json:"event_id"`
		Token   string `json:"token"`
	}
	if err := types.FromStruct(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, "invalid request body")
	}

	resp, err := s.checkIn.GetPendingItems(ctx, req.EventID, req.Token)
	if err != nil {
		return nil, s.toStatus("GetPending", err)
	}
	return types.ToStruct(resp)
}

func (s *scanServer) CompleteItem(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req types.CompleteRequest
	if err := types.FromStruct(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, "invalid request body")
	}
	if req.DeviceInfo == "" {
		req.DeviceInfo = firstMetadata(ctx, "x-device-id")
	}

	resp, err := s.checkIn.CompleteItem(ctx, req, auth.StaffIDFromContext(ctx))
	if err != nil {
		return nil, s.toStatus("CompleteItem", err)
	}
	return types.ToStruct(resp)
}

func (s *scanServer) toStatus(op string, err error) error {
	switch {
	case errors.Is(err, service.ErrValidation):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, service.ErrParticipantNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, service.ErrConflict):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		s.logger.WithField("op", op).WithError(err).Error("grpc request failed")
		return status.Error(codes.Internal, "internal server error")
	}
}

// ── Interceptors ─────────────────────────────────────────────────────────────

func staffInterceptor(v *auth.Verifier, required bool) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if !strings.HasPrefix(info.FullMethod, "/"+ServiceName+"/") {
			return handler(ctx, req)
		}
		tok := auth.BearerToken(firstMetadata(ctx, "authorization"))
		if tok == "" || v == nil {
			if required {
				return nil, status.Error(codes.Unauthenticated, auth.ErrMissingToken.Error())
			}
			return handler(ctx, req)
		}
		staff, err := v.Verify(tok)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, err.Error())
		}
		return handler(auth.ContextWithStaff(ctx, staff), req)
	}
}

func rateLimitInterceptor(l *ratelimit.Limiter, m *metrics.Metrics) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if !strings.HasPrefix(info.FullMethod, "/"+ServiceName+"/") {
			return handler(ctx, req)
		}
		if !l.Allow(deviceKey(ctx)) {
			m.IncRateLimited("grpc")
			return nil, status.Error(codes.ResourceExhausted, "rate limit exceeded")
		}
		return handler(ctx, req)
	}
}

// deviceKey picks the rate-limit bucket: staff id, then x-device-id, then
// peer address.
func deviceKey(ctx context.Context) string {
	if s, ok := auth.StaffFromContext(ctx); ok {
		return "staff:" + strconv.FormatInt(s.ID, 10)
	}
	if d := firstMetadata(ctx, "x-device-id"); d != "" {
		return "device:" + d
	}
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		if host, _, err := net.SplitHostPort(p.Addr.String()); err == nil {
			return "ip:" + host
		}
		return "ip:" + p.Addr.String()
	}
	return ""
}

func firstMetadata(ctx context.Context, key string) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if vals := md.Get(key); len(vals) > 0 {
		return strings.TrimSpace(vals[0])
	}
	return ""
}
