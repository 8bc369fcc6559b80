package biz

import (
	"context"
	"errors"
	"strings"

	"github.com/lk2023060901/chatbot-rag/internal/auth"
	apperrors "github.com/lk2023060901/chatbot-rag/internal/pkg/errors"
	"go.uber.org/zap"
)

// CreateAPIToken 为用户签发 API token，明文只在此处返回一次
func (uc *UserUseCase) CreateAPIToken(ctx context.Context, userID int64, name string) (string, error) {
	token, err := auth.GenerateAPIToken()
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrInternalServer)
	}

	rec := &APIToken{
		UserID:    userID,
		TokenHash: auth.HashAPIToken(token),
		Prefix:    auth.APITokenPrefix(token),
		Name:      name,
		CreatedAt: uc.now(),
	}
	if err := uc.repo.CreateAPIToken(ctx, rec); err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrInternalServer, "save api token")
	}

	uc.logger.WithContext(ctx).Info("api token issued",
		zap.Int64("user_id", userID),
		zap.String("prefix", rec.Prefix),
		zap.String("name", name))
	return token, nil
}

// AuthenticateAPIToken 校验 API token，吊销的 token 无效；成功时刷新 last_used_at
func (uc *UserUseCase) AuthenticateAPIToken(ctx context.Context, token string) (auth.Principal, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return auth.Principal{}, apperrors.New(apperrors.ErrAuthMissingCredentials)
	}

	rec, user, err := uc.repo.FindActiveAPIToken(ctx, auth.HashAPIToken(token))
	if errors.Is(err, ErrNotFound) {
		return auth.Principal{}, apperrors.New(apperrors.ErrAuthInvalidToken)
	}
	if err != nil {
		return auth.Principal{}, apperrors.Wrap(err, apperrors.ErrInternalServer, "load api token")
	}

	if err := uc.repo.TouchAPIToken(ctx, rec.ID, uc.now()); err != nil {
		uc.logger.WithContext(ctx).Warn("failed to update api token last_used_at",
			zap.Int64("token_id", rec.ID), zap.Error(err))
	}
	return user.Principal(), nil
}

// ListAPITokens 用户的全部 token，含已吊销的
func (uc *UserUseCase) ListAPITokens(ctx context.Context, userID int64) ([]*APIToken, error) {
	tokens, err := uc.repo.ListAPITokens(ctx, userID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrInternalServer, "list api tokens")
	}
	return tokens, nil
}

// RevokeAPIToken 吊销用户自己的 token
func (uc *UserUseCase) RevokeAPIToken(ctx context.Context, userID, tokenID int64) error {
	err := uc.repo.RevokeAPIToken(ctx, userID, tokenID, uc.now())
	if errors.Is(err, ErrNotFound) {
		return apperrors.New(apperrors.ErrNotFound, "api token")
	}
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrInternalServer, "revoke api token")
	}
	return nil
}
