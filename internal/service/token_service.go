// Package service holds the token issuance protocol and the background
// work around it: ledger sweeping and auth event publishing.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/auth-service/internal/model"
	"github.com/iliyamo/auth-service/internal/utils"
)

// TokenSigner is the part of utils.Signer the issuance protocol needs.
type TokenSigner interface {
	IssueAccessToken(p utils.TokenPayload) (string, error)
	IssueRefreshToken(p utils.TokenPayload) (string, error)
}

// Ledger is the part of repository.TokenRepo the issuance protocol needs.
type Ledger interface {
	Persist(ctx context.Context, userID uint64) (model.RefreshToken, error)
	Delete(ctx context.Context, id uint64) error
	Consume(ctx context.Context, id, userID uint64) (bool, error)
	DeleteAllForUser(ctx context.Context, userID uint64) (int64, error)
	ListByUser(ctx context.Context, userID uint64) ([]model.RefreshToken, error)
}

// ErrRecordRevoked is returned by Rotate when the presented record is gone,
// expired, owned by someone else or was claimed by a concurrent rotation.
var ErrRecordRevoked = errors.New("refresh record revoked")

// TokenPair is what a successful issuance hands back to the transport
// layer.  RecordID is the ledger row bound to RefreshToken.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	RecordID     uint64
	AccessTTL    time.Duration
	RefreshTTL   time.Duration
}

// TokenService runs the issuance protocol: access token, ledger record,
// refresh token, always in that order.
type TokenService struct {
	signer TokenSigner
	ledger Ledger
}

func NewTokenService(signer TokenSigner, ledger Ledger) *TokenService {
	return &TokenService{signer: signer, ledger: ledger}
}

// IssuePair signs an access token for u, records a ledger row and signs a
// refresh token bound to that row.
//
// A signing failure for the access token aborts before anything is
// written.  A ledger failure aborts before the refresh token is signed.
// A failure signing the refresh token leaves the row behind; it is never
// handed out and the sweeper removes it once it expires.
func (s *TokenService) IssuePair(ctx context.Context, u model.User) (TokenPair, error) {
	payload := utils.TokenPayload{SubjectID: u.ID, Role: u.Role}

	access, err := s.signer.IssueAccessToken(payload)
	if err != nil {
		return TokenPair{}, fmt.Errorf("issue access token: %w", err)
	}

	rec, err := s.ledger.Persist(ctx, u.ID)
	if err != nil {
		return TokenPair{}, fmt.Errorf("persist refresh record: %w", err)
	}

	payload.RecordID = rec.ID
	refresh, err := s.signer.IssueRefreshToken(payload)
	if err != nil {
		return TokenPair{}, fmt.Errorf("issue refresh token: %w", err)
	}

	return TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		RecordID:     rec.ID,
		AccessTTL:    utils.AccessTokenTTL,
		RefreshTTL:   utils.RefreshTokenTTL,
	}, nil
}

// Rotate claims oldRecordID for u and only then issues a fresh pair, so a
// refresh token is exchanged at most once even under concurrent use.  If
// issuance fails after the claim the caller has to log in again.
func (s *TokenService) Rotate(ctx context.Context, u model.User, oldRecordID uint64) (TokenPair, error) {
	ok, err := s.ledger.Consume(ctx, oldRecordID, u.ID)
	if err != nil {
		return TokenPair{}, fmt.Errorf("consume refresh record: %w", err)
	}
	if !ok {
		return TokenPair{}, ErrRecordRevoked
	}
	return s.IssuePair(ctx, u)
}

// Revoke deletes one ledger record.  Revoking a missing record succeeds.
func (s *TokenService) Revoke(ctx context.Context, recordID uint64) error {
	return s.ledger.Delete(ctx, recordID)
}

// RevokeAll deletes every ledger record of userID and returns the count.
func (s *TokenService) RevokeAll(ctx context.Context, userID uint64) (int64, error) {
	return s.ledger.DeleteAllForUser(ctx, userID)
}

// ListSessions returns userID's active ledger records.
func (s *TokenService) ListSessions(ctx context.Context, userID uint64) ([]model.RefreshToken, error) {
	return s.ledger.ListByUser(ctx, userID)
}
