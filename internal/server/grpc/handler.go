package grpc

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/dmitrijs2005/refkeeper/internal/common"
)

func (s *GRPCServer) ResolveCode(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	code := strings.TrimSpace(req.GetValue())
	if code == "" {
		return nil, status.Error(codes.InvalidArgument, "code is required")
	}

	owner, err := s.codes.ResolveActive(ctx, code)
	if err != nil {
		return nil, s.toStatus(ctx, err, "referral code not found")
	}

	return structpb.NewStruct(map[string]any{
		"user_id":  owner.ID,
		"username": owner.UserName,
	})
}

func (s *GRPCServer) ListReferrals(ctx context.Context, req *wrapperspb.StringValue) (*structpb.ListValue, error) {
	userID := strings.TrimSpace(req.GetValue())
	if userID == "" {
		return nil, status.Error(codes.InvalidArgument, "user id is required")
	}

	users, err := s.registration.ListReferrals(ctx, userID)
	if err != nil {
		return nil, s.toStatus(ctx, err, "user not found")
	}

	out := &structpb.ListValue{Values: make([]*structpb.Value, 0, len(users))}
	for _, u := range users {
		out.Values = append(out.Values, structpb.NewStructValue(&structpb.Struct{
			Fields: map[string]*structpb.Value{
				"id":       structpb.NewStringValue(u.ID),
				"username": structpb.NewStringValue(u.UserName),
			},
		}))
	}
	return out, nil
}

func (s *GRPCServer) toStatus(ctx context.Context, err error, notFound string) error {
	switch {
	case errors.Is(err, common.ErrCodeExpired):
		return status.Error(codes.NotFound, "referral code expired")
	case errors.Is(err, common.ErrorNotFound):
		return status.Error(codes.NotFound, notFound)
	}
	s.logger.Error(ctx, "lookup failed", "err", err)
	return status.Error(codes.Internal, "internal error")
}
