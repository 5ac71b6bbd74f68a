package main

import (
	"context"
	"fmt"
	"net"

	"github.com/platformlayer/openstack-jenkins/proto"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
)

const defaultPort = "25373"

// remoteError is a failed call, reduced to what cloudd said.
type remoteError struct {
	Code    codes.Code
	Message string
}

func (e *remoteError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server answered %s", e.Code)
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Code)
}

func (e *remoteError) GRPCStatus() *status.Status {
	return status.New(e.Code, e.Message)
}

// fromStatus turns the status of a failed call into a *remoteError.
func fromStatus(err error) error {
	if err == nil {
		return nil
	}
	if s, ok := status.FromError(err); ok {
		return &remoteError{Code: s.Code(), Message: s.Message()}
	}
	return err
}

// target completes a remote address with the default port.
func target(remote string) (string, error) {
	if remote == "" {
		return "", fmt.Errorf("missing remote address")
	}
	if _, _, err := net.SplitHostPort(remote); err == nil {
		return remote, nil
	}
	return net.JoinHostPort(remote, defaultPort), nil
}

func dial(remote string) (*grpc.ClientConn, error) {
	address, err := target(remote)
	if err != nil {
		return nil, err
	}

	conn, err := grpc.NewClient(
		address,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithChainUnaryInterceptor(traceCalls),
		grpc.WithChainStreamInterceptor(traceStreams),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to dial gRPC: %w", err)
	}
	return conn, nil
}

func traceCalls(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
	if verbose {
		rootCmd.PrintErrf("%s %s\n", cc.Target(), method)
	}
	return fromStatus(invoker(ctx, method, req, reply, cc, opts...))
}

func traceStreams(ctx context.Context, desc *grpc.StreamDesc, cc *grpc.ClientConn, method string, streamer grpc.Streamer, opts ...grpc.CallOption) (grpc.ClientStream, error) {
	if verbose {
		rootCmd.PrintErrf("%s %s (stream)\n", cc.Target(), method)
	}
	stream, err := streamer(ctx, desc, cc, method, opts...)
	return stream, fromStatus(err)
}

// connect opens the connection used by every command.
func connect(remote string) (err error) {
	if clientConn, err = dial(remote); err != nil {
		return err
	}
	client = proto.NewCloudClient(clientConn)
	return nil
}
