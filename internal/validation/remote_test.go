package validation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"

	"sharedauth/internal/auth/models"
	"sharedauth/internal/provider"
	"sharedauth/internal/validation/mocks"
)

func newRemote(t *testing.T) (*RemoteValidator, *mocks.MockRemoteChecker) {
	ctrl := gomock.NewController(t)
	checker := mocks.NewMockRemoteChecker(ctrl)
	return NewRemote(checker,
		WithRemoteTimeout(50*time.Millisecond),
		WithRemoteLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	), checker
}

func TestRemoteValidator(t *testing.T) {
	tok := &models.EnrichedToken{SubjectID: "u1", AccessToken: "at"}

	t.Run("valid", func(t *testing.T) {
		remote, checker := newRemote(t)
		checker.EXPECT().Validate(gomock.Any(), "at", models.AppAdmin).
			Return(&provider.ValidateResult{Valid: true, User: &provider.RemoteUser{ID: "u1"}}, nil)

		res := remote.Validate(context.Background(), tok, models.AppAdmin)
		assert.True(t, res.IsValid)
		assert.Equal(t, models.SourceRemote, res.Source)
	})

	t.Run("rejected", func(t *testing.T) {
		remote, checker := newRemote(t)
		checker.EXPECT().Validate(gomock.Any(), "at", models.AppAdmin).
			Return(&provider.ValidateResult{Valid: false}, nil)

		res := remote.Validate(context.Background(), tok, models.AppAdmin)
		assert.False(t, res.IsValid)
		assert.Equal(t, ReasonRemoteRejected, res.Reason)
	})

	t.Run("timeout fails closed", func(t *testing.T) {
		remote, checker := newRemote(t)
		checker.EXPECT().Validate(gomock.Any(), "at", models.AppAdmin).DoAndReturn(
			func(ctx context.Context, _ string, _ models.AppType) (*provider.ValidateResult, error) {
				<-ctx.Done()
				return nil, &provider.Error{Kind: provider.ErrorTimeout, Err: ctx.Err()}
			})

		res := remote.Validate(context.Background(), tok, models.AppAdmin)
		assert.False(t, res.IsValid)
		assert.Equal(t, "Remote validation timeout", res.Reason)
		assert.Equal(t, models.ErrorValidationTimeout, res.ErrorKind)
		assert.Equal(t, models.SourceRemote, res.Source)
	})

	t.Run("other failures fail closed", func(t *testing.T) {
		remote, checker := newRemote(t)
		checker.EXPECT().Validate(gomock.Any(), "at", models.AppAdmin).Return(nil, errors.New("connection reset"))

		res := remote.Validate(context.Background(), tok, models.AppAdmin)
		assert.False(t, res.IsValid)
		assert.Equal(t, ReasonRemoteFailed, res.Reason)
	})

	t.Run("remote user mismatch", func(t *testing.T) {
		remote, checker := newRemote(t)
		checker.EXPECT().Validate(gomock.Any(), "at", models.AppAdmin).
			Return(&provider.ValidateResult{Valid: true, User: &provider.RemoteUser{ID: "u2"}}, nil)

		res := remote.Validate(context.Background(), tok, models.AppAdmin)
		assert.False(t, res.IsValid)
		assert.Equal(t, models.ErrorIdentityMismatch, res.ErrorKind)
	})

	t.Run("missing token makes no call", func(t *testing.T) {
		remote, _ := newRemote(t)

		res := remote.Validate(context.Background(), nil, models.AppAdmin)
		assert.False(t, res.IsValid)
		assert.Equal(t, ReasonMissing, res.Reason)
	})
}
