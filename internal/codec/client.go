package codec

import (
	"context"
	"fmt"

	"github.com/danielpatrickdp/adaptive-dbn/internal/dbn"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

// #region client-struct
// Client talks to a dbn.v1.Network server.
type Client struct {
	conn *grpc.ClientConn
	cc   grpc.ClientConnInterface
}

// #endregion client-struct

// #region constructor
// NewClient connects to the network server at addr.
func NewClient(addr string) (*Client, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &Client{conn: conn, cc: conn}, nil
}

// NewClientWithConn creates a Client over an existing connection. The caller
// keeps ownership of cc.
func NewClientWithConn(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// #endregion constructor

// #region close
// Close shuts down the gRPC connection if the client opened it.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// #endregion close

// #region infer
// Infer asks the server for P(variable_t | parents) under ev.
func (c *Client) Infer(ctx context.Context, variable string, t int, ev dbn.Evidence) (dbn.Distribution, error) {
	req, err := EncodeInferRequest(InferRequest{Variable: variable, Time: t, Evidence: ev})
	if err != nil {
		return nil, fmt.Errorf("encode infer: %w", err)
	}
	resp := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, MethodInfer, req, resp); err != nil {
		return nil, fmt.Errorf("infer rpc: %w", err)
	}
	return DecodeDistribution(resp)
}

// #endregion infer

// #region update
// Update streams one observation to the server's learner.
func (c *Client) Update(ctx context.Context, r UpdateRequest) (UpdateReply, error) {
	req, err := EncodeUpdateRequest(r)
	if err != nil {
		return UpdateReply{}, fmt.Errorf("encode update: %w", err)
	}
	resp := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, MethodUpdate, req, resp); err != nil {
		return UpdateReply{}, fmt.Errorf("update rpc: %w", err)
	}
	return DecodeUpdateReply(resp)
}

// #endregion update

// #region parents
// Parents returns the positional parent list of variable.
func (c *Client) Parents(ctx context.Context, variable string) ([]dbn.Parent, error) {
	req, err := EncodeParentsRequest(variable)
	if err != nil {
		return nil, fmt.Errorf("encode parents: %w", err)
	}
	resp := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, MethodParents, req, resp); err != nil {
		return nil, fmt.Errorf("parents rpc: %w", err)
	}
	return DecodeParents(resp)
}

// #endregion parents

// #region unroll
// Unroll returns the node ids of the network unrolled over slices time steps.
func (c *Client) Unroll(ctx context.Context, slices int) ([][]dbn.TimeKey, error) {
	req, err := EncodeUnrollRequest(slices)
	if err != nil {
		return nil, fmt.Errorf("encode unroll: %w", err)
	}
	resp := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, MethodUnroll, req, resp); err != nil {
		return nil, fmt.Errorf("unroll rpc: %w", err)
	}
	return DecodeUnroll(resp)
}

// #endregion unroll
