package service

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client calls chunksort.SortService.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps an established connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Sort runs a sort job remotely.
func (c *Client) Sort(ctx context.Context, req SortRequest, opts ...grpc.CallOption) (SortResponse, error) {
	in, err := req.toStruct()
	if err != nil {
		return SortResponse{}, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, SortMethod, in, out, opts...); err != nil {
		return SortResponse{}, err
	}
	return sortResponseFromStruct(out), nil
}

// Verify compares two files remotely.
func (c *Client) Verify(ctx context.Context, req VerifyRequest, opts ...grpc.CallOption) (VerifyResponse, error) {
	in, err := req.toStruct()
	if err != nil {
		return VerifyResponse{}, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, VerifyMethod, in, out, opts...); err != nil {
		return VerifyResponse{}, err
	}
	return verifyResponseFromStruct(out), nil
}

// Stats fetches the server's statistics as a plain map.
func (c *Client) Stats(ctx context.Context, opts ...grpc.CallOption) (map[string]any, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, StatsMethod, &structpb.Struct{}, out, opts...); err != nil {
		return nil, err
	}
	return out.AsMap(), nil
}
