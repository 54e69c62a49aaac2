package grpcapi_test

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/BrandonDHaskell/checkin/internal/auth"
	"github.com/BrandonDHaskell/checkin/internal/checkin/metrics"
	"github.com/BrandonDHaskell/checkin/internal/checkin/service"
	"github.com/BrandonDHaskell/checkin/internal/checkin/store/memory"
	"github.com/BrandonDHaskell/checkin/internal/checkin/types"
	"github.com/BrandonDHaskell/checkin/internal/fixture"
	"github.com/BrandonDHaskell/checkin/internal/grpcapi"
	"github.com/BrandonDHaskell/checkin/internal/ratelimit"
)

const testSecret = "grpc-test-secret"

type env struct {
	conn     *grpc.ClientConn
	client   *grpcapi.ScanClient
	logs     *memory.CompletionLogStore
	verifier *auth.Verifier
}

type options struct {
	requireAuth bool
	limiter     *ratelimit.Limiter
}

func startBufGRPC(t *testing.T, opt options) *env {
	t.Helper()

	fx, err := fixture.Parse([]byte(`
events:
  - id: 1
    items:
      - {id: 101, code: WK, name: Welcome Kit}
      - {id: 102, code: BF, name: Breakfast}
participants:
  - {id: 1, name: Asha, phone: "9876543210", scan_token: tok-asha, events: [1]}
  - {id: 2, name: Ravi, phone: "9123456780", scan_token: tok-ravi, events: []}
`))
	require.NoError(t, err)

	participants := memory.NewParticipantStore()
	allocations := memory.NewAllocationStore(participants)
	logs := memory.NewCompletionLogStore()
	require.NoError(t, memory.Seed(fx, participants, allocations))

	logger, _ := test.NewNullLogger()
	m := metrics.New(prometheus.NewRegistry())
	verifier, err := auth.NewVerifier(testSecret)
	require.NoError(t, err)

	svc := service.NewCheckInService(
		service.NewResolver(participants, m),
		allocations,
		service.NewAuditLog(logs, time.Second, logger, m),
		logger,
		m,
	)

	srv := grpcapi.NewServer(grpcapi.Dependencies{
		Logger:           logger,
		CheckIn:          svc,
		Verifier:         verifier,
		RequireStaffAuth: opt.requireAuth,
		Limiter:          opt.limiter,
		Metrics:          m,
	})

	lis := bufconn.Listen(1024 * 1024)
	go func() {
		if err := srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			t.Logf("grpc serve: %v", err)
		}
	}()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		conn.Close()
		srv.GracefulStop()
		lis.Close()
	})

	return &env{conn: conn, client: grpcapi.NewScanClient(conn), logs: logs, verifier: verifier}
}

func mustStruct(t *testing.T, v map[string]any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(v)
	require.NoError(t, err)
	return s
}

func withStaff(t *testing.T, ctx context.Context, v *auth.Verifier, staffID int64) context.Context {
	t.Helper()
	tok, err := v.Issue(staffID, "", time.Hour)
	require.NoError(t, err)
	return metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+tok)
}

func TestCompleteItem_SuccessThenAlreadyExists(t *testing.T) {
	e := startBufGRPC(t, options{})
	ctx := metadata.AppendToOutgoingContext(context.Background(), "x-device-id", "gate-3")
	ctx = withStaff(t, ctx, e.verifier, 42)

	in := mustStruct(t, map[string]any{"token": "tok-asha", "event_id": 1, "item_id": 101})
	out, err := e.client.CompleteItem(ctx, in)
	require.NoError(t, err)

	var resp types.CompleteResponse
	require.NoError(t, types.FromStruct(out, &resp))
	assert.True(t, resp.OK)
	assert.Equal(t, int64(1), resp.ParticipantID)
	assert.Equal(t, int64(101), resp.ItemID)
	assert.NotEmpty(t, resp.EntryID)

	entries := e.logs.Entries()
	require.Len(t, entries, 1)
	require.NotNil(t, entries[0].StaffID)
	assert.Equal(t, int64(42), *entries[0].StaffID)
	require.NotNil(t, entries[0].DeviceInfo)
	assert.Equal(t, "gate-3", *entries[0].DeviceInfo)

	_, err = e.client.CompleteItem(ctx, in)
	assert.Equal(t, codes.AlreadyExists, status.Code(err))
	assert.Len(t, e.logs.Entries(), 1)
}

func TestCompleteItem_StatusCodes(t *testing.T) {
	e := startBufGRPC(t, options{})

	cases := []struct {
		name string
		in   map[string]any
		want codes.Code
	}{
		{"unknown participant", map[string]any{"token": "ghost", "event_id": 1, "item_id": 101}, codes.NotFound},
		{"not allocated", map[string]any{"token": "tok-ravi", "event_id": 1, "item_id": 101}, codes.AlreadyExists},
		{"missing item", map[string]any{"token": "tok-asha", "event_id": 1}, codes.InvalidArgument},
		{"blank token", map[string]any{"token": "  ", "event_id": 1, "item_id": 101}, codes.InvalidArgument},
		{"wrong type", map[string]any{"token": "tok-asha", "event_id": "one", "item_id": 101}, codes.InvalidArgument},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := e.client.CompleteItem(context.Background(), mustStruct(t, tc.in))
			assert.Equal(t, tc.want, status.Code(err))
		})
	}
}

func TestGetPending(t *testing.T) {
	e := startBufGRPC(t, options{})

	out, err := e.client.GetPending(context.Background(),
		mustStruct(t, map[string]any{"token": "9876543210", "event_id": 1}))
	require.NoError(t, err)

	var resp types.PendingItemsResponse
	require.NoError(t, types.FromStruct(out, &resp))
	assert.Equal(t, int64(1), resp.Participant.ID)
	assert.Len(t, resp.Allocations, 2)
	assert.Len(t, resp.Pending, 2)
	assert.Empty(t, e.logs.Entries())
}

func TestStaffInterceptor(t *testing.T) {
	e := startBufGRPC(t, options{requireAuth: true})
	in := mustStruct(t, map[string]any{"token": "tok-asha", "event_id": 1})

	_, err := e.client.GetPending(context.Background(), in)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	bad := metadata.AppendToOutgoingContext(context.Background(), "authorization", "Bearer nope")
	_, err = e.client.GetPending(bad, in)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	_, err = e.client.GetPending(withStaff(t, context.Background(), e.verifier, 7), in)
	assert.NoError(t, err)
}

func TestRateLimitInterceptor_PerDevice(t *testing.T) {
	e := startBufGRPC(t, options{limiter: ratelimit.New(0.001, 2)})
	in := mustStruct(t, map[string]any{"token": "tok-asha", "event_id": 1})

	gate := metadata.AppendToOutgoingContext(context.Background(), "x-device-id", "gate-1")
	for i := 0; i < 2; i++ {
		_, err := e.client.GetPending(gate, in)
		require.NoError(t, err)
	}
	_, err := e.client.GetPending(gate, in)
	assert.Equal(t, codes.ResourceExhausted, status.Code(err))

	other := metadata.AppendToOutgoingContext(context.Background(), "x-device-id", "gate-2")
	_, err = e.client.GetPending(other, in)
	assert.NoError(t, err)
}

func TestRateLimitInterceptor_StaffBucketIgnoresDeviceHeader(t *testing.T) {
	e := startBufGRPC(t, options{limiter: ratelimit.New(0.001, 2)})
	in := mustStruct(t, map[string]any{"token": "tok-asha", "event_id": 1})

	for _, gate := range []string{"gate-1", "gate-2"} {
		ctx := metadata.AppendToOutgoingContext(context.Background(), "x-device-id", gate)
		_, err := e.client.GetPending(withStaff(t, ctx, e.verifier, 42), in)
		require.NoError(t, err)
	}
	ctx := metadata.AppendToOutgoingContext(context.Background(), "x-device-id", "gate-rotated")
	_, err := e.client.GetPending(withStaff(t, ctx, e.verifier, 42), in)
	assert.Equal(t, codes.ResourceExhausted, status.Code(err))

	_, err = e.client.GetPending(withStaff(t, context.Background(), e.verifier, 43), in)
	assert.NoError(t, err)
}

func TestHealthServing(t *testing.T) {
	e := startBufGRPC(t, options{requireAuth: true})

	resp, err := healthpb.NewHealthClient(e.conn).Check(context.Background(),
		&healthpb.HealthCheckRequest{Service: grpcapi.ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}
