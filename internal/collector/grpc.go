package collector

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/Be-Wagile-India/pypss/internal/model"
)

// pushTracesMethod is the full method name the remote collector service
// exposes. The request is a BytesValue carrying a JSON-encoded trace batch;
// the response is Empty. Keeping the payload opaque bytes means the remote
// side needs no generated schema to evolve with the trace model.
const pushTracesMethod = "/pypss.v1.Collector/PushTraces"

// GRPCSink forwards trace batches to a remote collector endpoint over gRPC.
type GRPCSink struct {
	conn *grpc.ClientConn
}

// GRPCSinkOptions configures the sink's connection.
type GRPCSinkOptions struct {
	// Target is the gRPC dial target, e.g. "collector.internal:4317".
	Target string
	// TransportCredentials overrides the default insecure transport.
	TransportCredentials grpc.DialOption
}

// NewGRPCSink creates a sink for the given target. gRPC connects lazily, so
// construction succeeds without a reachable server; write errors surface on
// flush and are handled by the queued collector's discard policy.
func NewGRPCSink(opts GRPCSinkOptions) (*GRPCSink, error) {
	if opts.Target == "" {
		return nil, fmt.Errorf("collector: grpc target is required")
	}

	creds := opts.TransportCredentials
	if creds == nil {
		creds = grpc.WithTransportCredentials(insecure.NewCredentials())
	}
	conn, err := grpc.NewClient(opts.Target, creds)
	if err != nil {
		return nil, fmt.Errorf("collector: grpc dial %s: %w", opts.Target, err)
	}
	return &GRPCSink{conn: conn}, nil
}

// Write sends the batch as one PushTraces call.
func (s *GRPCSink) Write(ctx context.Context, batch []model.Trace) error {
	payload, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("collector: marshal batch: %w", err)
	}

	in := wrapperspb.Bytes(payload)
	out := &emptypb.Empty{}
	if err := s.conn.Invoke(ctx, pushTracesMethod, in, out); err != nil {
		return fmt.Errorf("collector: push traces: %w", err)
	}
	return nil
}

// Close tears down the client connection.
func (s *GRPCSink) Close() error {
	return s.conn.Close()
}
