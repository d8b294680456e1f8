package grpcledger

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"qsb.qbck.io/did/ledger"
)

// Client implements ledger.Gateway over the Gateway gRPC service.
type Client struct {
	cc     *grpc.ClientConn
	client GatewayClient

	// Timeout applies per RPC when non-zero.
	Timeout time.Duration
}

var _ ledger.Gateway = (*Client)(nil)

type DialOptions struct {
	// Timeout applies to the initial dial when non-zero.
	Timeout time.Duration

	// MaxMsgBytes sets both send/recv max sizes when non-zero. Submissions
	// carry ML-DSA public keys and signatures, so the default 4 MiB is
	// normally plenty; raise it for bulk tooling.
	MaxMsgBytes int
}

// Dial connects to a Gateway service. Connections use insecure transport
// credentials and are meant for local or demo gateways; production targets
// need their own credential wiring.
func Dial(target string, opts DialOptions) (*Client, error) {
	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}
	if opts.MaxMsgBytes > 0 {
		dialOpts = append(dialOpts,
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(opts.MaxMsgBytes),
				grpc.MaxCallSendMsgSize(opts.MaxMsgBytes),
			),
		)
	}

	ctx := context.Background()
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	cc, err := grpc.DialContext(ctx, target, dialOpts...)
	if err != nil {
		return nil, err
	}
	return &Client{cc: cc, client: NewGatewayClient(cc)}, nil
}

func (c *Client) Close() error {
	if c == nil || c.cc == nil {
		return nil
	}
	return c.cc.Close()
}

func (c *Client) GenesisHash(ctx context.Context) ([]byte, error) {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()
	reply, err := c.client.GenesisHash(ctx, &emptypb.Empty{})
	if err != nil {
		return nil, err
	}
	return reply.GetValue(), nil
}

func (c *Client) FreeBalance(ctx context.Context, account string) (uint64, error) {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()
	reply, err := c.client.FreeBalance(ctx, wrapperspb.String(account))
	if err != nil {
		return 0, mapRPC(err)
	}
	return reply.GetValue(), nil
}

func (c *Client) Submit(ctx context.Context, call ledger.Call) (ledger.Receipt, error) {
	req, err := callToStruct(call)
	if err != nil {
		return ledger.Receipt{}, err
	}
	ctx, cancel := c.callCtx(ctx)
	defer cancel()
	reply, err := c.client.Submit(ctx, req)
	if err != nil {
		return ledger.Receipt{}, mapRPC(err)
	}
	return receiptFromStruct(reply), nil
}

func (c *Client) Resolve(ctx context.Context, did string) (map[string]any, error) {
	ctx, cancel := c.callCtx(ctx)
	defer cancel()
	reply, err := c.client.Resolve(ctx, wrapperspb.String(did))
	if err != nil {
		return nil, mapRPC(err)
	}
	return reply.AsMap(), nil
}

func (c *Client) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.Timeout > 0 {
		return context.WithTimeout(ctx, c.Timeout)
	}
	return context.WithCancel(ctx)
}

func mapRPC(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	if st.Code() == codes.NotFound {
		return ledger.ErrNotFound
	}
	return err
}
