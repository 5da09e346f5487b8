package grpc

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/server/auth"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

func (s *GRPCServer) SignIn(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	identifier := stringField(req, "identifier")
	password := stringField(req, "password")
	if identifier == "" || password == "" {
		return nil, status.Error(codes.InvalidArgument, "identifier and password are required")
	}

	b, err := s.sessions.SignIn(ctx, identifier, password)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	fields := summaryFields(b.Identity)
	fields["accessToken"] = b.AccessToken
	fields["refreshToken"] = b.RefreshToken
	fields["tokenType"] = common.BearerScheme
	return newStruct(fields)
}

func (s *GRPCServer) Refresh(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	token := stringField(req, "refreshToken")
	if token == "" {
		return nil, status.Error(codes.InvalidArgument, "refreshToken is required")
	}

	b, err := s.sessions.Refresh(ctx, token)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	return newStruct(map[string]any{
		"accessToken":  b.AccessToken,
		"refreshToken": b.RefreshToken,
		"tokenType":    common.BearerScheme,
	})
}

// Me is protected by the access token interceptor.
func (s *GRPCServer) Me(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	id, ok := auth.IdentityFrom(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "unauthorized")
	}
	summary := id.Summary()
	return newStruct(summaryFields(&summary))
}

func (s *GRPCServer) toStatus(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, common.ErrInvalidCredentials):
		return status.Error(codes.Unauthenticated, "invalid credentials")
	case errors.Is(err, common.ErrTokenMalformed),
		errors.Is(err, common.ErrTokenBadSignature),
		errors.Is(err, common.ErrTokenExpired):
		return status.Error(codes.Unauthenticated, "invalid access token")
	case errors.Is(err, common.ErrRefreshTokenNotFound):
		return status.Error(codes.PermissionDenied, "refresh token is not recognized")
	case errors.Is(err, common.ErrRefreshTokenExpired):
		return status.Error(codes.PermissionDenied, "refresh token expired, sign in again")
	case errors.Is(err, common.ErrStoreUnavailable):
		s.logger.Error(ctx, "store unavailable", "error", err)
		return status.Error(codes.Unavailable, "service temporarily unavailable")
	default:
		s.logger.Error(ctx, "request failed", "error", err)
		return status.Error(codes.Internal, "internal error")
	}
}

func stringField(req *structpb.Struct, name string) string {
	if req == nil {
		return ""
	}
	return req.GetFields()[name].GetStringValue()
}

func summaryFields(sum *models.IdentitySummary) map[string]any {
	if sum == nil {
		return map[string]any{}
	}
	roles := make([]any, len(sum.Roles))
	for i, r := range sum.Roles {
		roles[i] = r
	}
	return map[string]any{
		"id":         sum.ID,
		"identifier": sum.Username,
		"email":      sum.Email,
		"roles":      roles,
	}
}

func newStruct(fields map[string]any) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, status.Error(codes.Internal, "internal error")
	}
	return out, nil
}
