package data

import (
	"context"
	"testing"

	"github.com/lk2023060901/chatbot-rag/internal/pkg/database/dbtest"
	apperrors "github.com/lk2023060901/chatbot-rag/internal/pkg/errors"
	"github.com/lk2023060901/chatbot-rag/internal/pkg/logger"
	"github.com/lk2023060901/chatbot-rag/internal/user/biz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newUseCase(t *testing.T) (*biz.UserUseCase, *UserRepo) {
	t.Helper()
	db := dbtest.New(t, Models()...)
	repo := NewUserRepo(db).(*UserRepo)
	return biz.NewUserUseCase(repo, logger.NewNop()), repo
}

func TestCreateUser(t *testing.T) {
	uc, _ := newUseCase(t)
	ctx := context.Background()

	has, err := uc.HasAnyUsers(ctx)
	require.NoError(t, err)
	assert.False(t, has)

	u, err := uc.CreateUser(ctx, biz.CreateUserInput{Username: "  alice ", Password: "password1", IsAdmin: true})
	require.NoError(t, err)
	assert.NotZero(t, u.ID)
	assert.Equal(t, "alice", u.Username)
	assert.Equal(t, biz.DefaultDepartment, u.DepartmentName)
	assert.True(t, u.IsAdmin)

	has, err = uc.HasAnyUsers(ctx)
	require.NoError(t, err)
	assert.True(t, has)

	mem, err := uc.GetMemory(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "", mem)

	tests := []struct {
		name string
		in   biz.CreateUserInput
		code int
	}{
		{"用户名为空", biz.CreateUserInput{Username: "  ", Password: "password1"}, apperrors.ErrUserInvalidInput},
		{"密码过短", biz.CreateUserInput{Username: "bob", Password: "short"}, apperrors.ErrAuthWeakPassword},
		{"用户名重复", biz.CreateUserInput{Username: "alice", Password: "password2"}, apperrors.ErrUserExists},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := uc.CreateUser(ctx, tt.in)
			require.Error(t, err)
			assert.True(t, apperrors.Is(err, tt.code), err.Error())
		})
	}
}

func TestDepartments(t *testing.T) {
	uc, _ := newUseCase(t)
	ctx := context.Background()

	a, err := uc.CreateUser(ctx, biz.CreateUserInput{Username: "a", Password: "password1", Department: "研发"})
	require.NoError(t, err)
	b, err := uc.CreateUser(ctx, biz.CreateUserInput{Username: "b", Password: "password1", Department: "研发"})
	require.NoError(t, err)
	_, err = uc.CreateUser(ctx, biz.CreateUserInput{Username: "c", Password: "password1"})
	require.NoError(t, err)

	assert.Equal(t, a.DepartmentID, b.DepartmentID)

	depts, err := uc.ListDepartments(ctx)
	require.NoError(t, err)
	require.Len(t, depts, 2)
	assert.Equal(t, "default", depts[0].Name)
	assert.Equal(t, "研发", depts[1].Name)

	users, err := uc.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{users[0].Username, users[1].Username, users[2].Username})
	assert.Equal(t, "研发", users[0].DepartmentName)
}

func TestAuthenticate(t *testing.T) {
	uc, _ := newUseCase(t)
	ctx := context.Background()

	_, err := uc.CreateUser(ctx, biz.CreateUserInput{Username: "alice", Password: "password1"})
	require.NoError(t, err)

	u, err := uc.Authenticate(ctx, " alice ", "password1")
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Username)

	for _, tc := range []struct{ name, user, pass string }{
		{"密码错误", "alice", "password2"},
		{"用户不存在", "nobody", "password1"},
		{"空密码", "alice", ""},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := uc.Authenticate(ctx, tc.user, tc.pass)
			assert.True(t, apperrors.Is(err, apperrors.ErrAuthInvalidCredentials))
		})
	}
}

func TestMemory(t *testing.T) {
	uc, _ := newUseCase(t)
	ctx := context.Background()

	u, err := uc.CreateUser(ctx, biz.CreateUserInput{Username: "alice", Password: "password1"})
	require.NoError(t, err)

	require.NoError(t, uc.SetMemory(ctx, u.ID, "喜欢简洁的回答"))
	mem, err := uc.GetMemory(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "喜欢简洁的回答", mem)

	require.NoError(t, uc.SetMemory(ctx, u.ID, ""))
	mem, err = uc.GetMemory(ctx, u.ID)
	require.NoError(t, err)
	assert.Empty(t, mem)
}

func TestAPIToken(t *testing.T) {
	uc, repo := newUseCase(t)
	ctx := context.Background()

	u, err := uc.CreateUser(ctx, biz.CreateUserInput{Username: "alice", Password: "password1", Department: "ops"})
	require.NoError(t, err)

	token, err := uc.CreateAPIToken(ctx, u.ID, "langgraph")
	require.NoError(t, err)
	assert.Len(t, token, 43)

	var stored APITokenPO
	require.NoError(t, repo.db.First(&stored).Error)
	assert.Equal(t, token[:8], stored.Prefix)
	assert.NotContains(t, string(stored.TokenHash), token)
	assert.Nil(t, stored.LastUsedAt)

	p, err := uc.AuthenticateAPIToken(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, u.ID, p.UserID)
	assert.Equal(t, "ops", p.Department)

	require.NoError(t, repo.db.First(&stored).Error)
	assert.NotNil(t, stored.LastUsedAt)

	_, err = uc.AuthenticateAPIToken(ctx, "bogus")
	assert.True(t, apperrors.Is(err, apperrors.ErrAuthInvalidToken))

	require.NoError(t, uc.RevokeAPIToken(ctx, u.ID, stored.ID))
	_, err = uc.AuthenticateAPIToken(ctx, token)
	assert.True(t, apperrors.Is(err, apperrors.ErrAuthInvalidToken))

	err = uc.RevokeAPIToken(ctx, u.ID, stored.ID)
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
}
