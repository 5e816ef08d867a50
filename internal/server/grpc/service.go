package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// The lookup service is described by hand on top of protobuf well-known
// types, so no generated code is needed:
//
//	service ReferralLookup {
//	  rpc ResolveCode(google.protobuf.StringValue) returns (google.protobuf.Struct);
//	  rpc ListReferrals(google.protobuf.StringValue) returns (google.protobuf.ListValue);
//	}
const (
	LookupServiceName   = "referrals.v1.ReferralLookup"
	resolveCodeMethod   = "/" + LookupServiceName + "/ResolveCode"
	listReferralsMethod = "/" + LookupServiceName + "/ListReferrals"
)

// LookupServer answers service-to-service questions about referrals.
type LookupServer interface {
	// ResolveCode returns {"user_id", "username"} of the owner of an active code.
	ResolveCode(ctx context.Context, code *wrapperspb.StringValue) (*structpb.Struct, error)
	// ListReferrals returns [{"id", "username"}] of the users referred by a user id.
	ListReferrals(ctx context.Context, userID *wrapperspb.StringValue) (*structpb.ListValue, error)
}

var lookupServiceDesc = grpc.ServiceDesc{
	ServiceName: LookupServiceName,
	HandlerType: (*LookupServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ResolveCode", Handler: resolveCodeHandler},
		{MethodName: "ListReferrals", Handler: listReferralsHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "referrals/v1/lookup.proto",
}

func RegisterLookupServer(s grpc.ServiceRegistrar, srv LookupServer) {
	s.RegisterService(&lookupServiceDesc, srv)
}

func resolveCodeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LookupServer).ResolveCode(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: resolveCodeMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(LookupServer).ResolveCode(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func listReferralsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LookupServer).ListReferrals(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: listReferralsMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(LookupServer).ListReferrals(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

// LookupClient is the caller side of LookupServer.
type LookupClient struct {
	cc grpc.ClientConnInterface
}

func NewLookupClient(cc grpc.ClientConnInterface) *LookupClient {
	return &LookupClient{cc: cc}
}

func (c *LookupClient) ResolveCode(ctx context.Context, code string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, resolveCodeMethod, wrapperspb.String(code), out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *LookupClient) ListReferrals(ctx context.Context, userID string, opts ...grpc.CallOption) (*structpb.ListValue, error) {
	out := new(structpb.ListValue)
	if err := c.cc.Invoke(ctx, listReferralsMethod, wrapperspb.String(userID), out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
