package service

import (
	"context"
	"errors"
	"testing"

	"github.com/iliyamo/auth-service/internal/model"
	"github.com/iliyamo/auth-service/internal/utils"
)

// fakeSigner records calls so tests can assert the issuance order.
type fakeSigner struct {
	calls      *[]string
	accessErr  error
	refreshErr error
	lastRecord uint64
}

func (f *fakeSigner) IssueAccessToken(p utils.TokenPayload) (string, error) {
	*f.calls = append(*f.calls, "access")
	if f.accessErr != nil {
		return "", f.accessErr
	}
	return "access-token", nil
}

func (f *fakeSigner) IssueRefreshToken(p utils.TokenPayload) (string, error) {
	*f.calls = append(*f.calls, "refresh")
	f.lastRecord = p.RecordID
	if f.refreshErr != nil {
		return "", f.refreshErr
	}
	return "refresh-token", nil
}

type fakeLedger struct {
	calls      *[]string
	nextID     uint64
	rows       map[uint64]uint64 // record id -> user id
	persistErr error
	deleteErr  map[uint64]error
	consumeErr error
}

func newFakeLedger(calls *[]string) *fakeLedger {
	return &fakeLedger{calls: calls, rows: map[uint64]uint64{}, deleteErr: map[uint64]error{}}
}

func (f *fakeLedger) Persist(_ context.Context, userID uint64) (model.RefreshToken, error) {
	*f.calls = append(*f.calls, "persist")
	if f.persistErr != nil {
		return model.RefreshToken{}, f.persistErr
	}
	f.nextID++
	f.rows[f.nextID] = userID
	return model.RefreshToken{ID: f.nextID, UserID: userID}, nil
}

func (f *fakeLedger) Delete(_ context.Context, id uint64) error {
	if err := f.deleteErr[id]; err != nil {
		return err
	}
	delete(f.rows, id)
	return nil
}

func (f *fakeLedger) Consume(_ context.Context, id, userID uint64) (bool, error) {
	*f.calls = append(*f.calls, "consume")
	if f.consumeErr != nil {
		return false, f.consumeErr
	}
	if uid, ok := f.rows[id]; !ok || uid != userID {
		return false, nil
	}
	delete(f.rows, id)
	return true, nil
}

func (f *fakeLedger) DeleteAllForUser(_ context.Context, userID uint64) (int64, error) {
	var n int64
	for id, uid := range f.rows {
		if uid == userID {
			delete(f.rows, id)
			n++
		}
	}
	return n, nil
}

func (f *fakeLedger) ListByUser(_ context.Context, userID uint64) ([]model.RefreshToken, error) {
	var out []model.RefreshToken
	for id, uid := range f.rows {
		if uid == userID {
			out = append(out, model.RefreshToken{ID: id, UserID: uid})
		}
	}
	return out, nil
}

func setup() (*TokenService, *fakeSigner, *fakeLedger, *[]string) {
	calls := &[]string{}
	signer := &fakeSigner{calls: calls}
	ledger := newFakeLedger(calls)
	return NewTokenService(signer, ledger), signer, ledger, calls
}

var alice = model.User{ID: 1, Email: "a@b.com", Role: model.RoleCustomer}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestIssuePairOrderAndBinding(t *testing.T) {
	svc, signer, ledger, calls := setup()

	pair, err := svc.IssuePair(context.Background(), alice)
	if err != nil {
		t.Fatalf("IssuePair() error = %v", err)
	}
	if want := []string{"access", "persist", "refresh"}; !equal(*calls, want) {
		t.Errorf("calls = %v, want %v", *calls, want)
	}
	if pair.RecordID != 1 || signer.lastRecord != 1 {
		t.Errorf("record id = %d, signed with %d", pair.RecordID, signer.lastRecord)
	}
	if pair.AccessTTL != utils.AccessTokenTTL || pair.RefreshTTL != utils.RefreshTokenTTL {
		t.Errorf("ttls = %v, %v", pair.AccessTTL, pair.RefreshTTL)
	}
	if len(ledger.rows) != 1 {
		t.Errorf("ledger rows = %d, want 1", len(ledger.rows))
	}
}

func TestIssuePairAccessFailureWritesNothing(t *testing.T) {
	svc, signer, ledger, calls := setup()
	signer.accessErr = utils.ErrKeyUnavailable

	_, err := svc.IssuePair(context.Background(), alice)
	if !errors.Is(err, utils.ErrKeyUnavailable) {
		t.Fatalf("error = %v, want ErrKeyUnavailable", err)
	}
	if want := []string{"access"}; !equal(*calls, want) {
		t.Errorf("calls = %v, want %v", *calls, want)
	}
	if len(ledger.rows) != 0 {
		t.Errorf("ledger rows = %d, want 0", len(ledger.rows))
	}
}

func TestIssuePairPersistFailureSkipsRefresh(t *testing.T) {
	svc, _, ledger, calls := setup()
	boom := errors.New("db down")
	ledger.persistErr = boom

	if _, err := svc.IssuePair(context.Background(), alice); !errors.Is(err, boom) {
		t.Fatalf("error = %v, want db down", err)
	}
	if want := []string{"access", "persist"}; !equal(*calls, want) {
		t.Errorf("calls = %v, want %v", *calls, want)
	}
}

func TestIssuePairRefreshFailureLeavesOrphan(t *testing.T) {
	svc, signer, ledger, _ := setup()
	signer.refreshErr = utils.ErrKeyUnavailable

	pair, err := svc.IssuePair(context.Background(), alice)
	if !errors.Is(err, utils.ErrKeyUnavailable) {
		t.Fatalf("error = %v, want ErrKeyUnavailable", err)
	}
	if pair.AccessToken != "" || pair.RefreshToken != "" {
		t.Errorf("tokens returned on failure: %+v", pair)
	}
	if len(ledger.rows) != 1 {
		t.Errorf("ledger rows = %d, want the orphan", len(ledger.rows))
	}
}

func TestRotate(t *testing.T) {
	svc, _, ledger, _ := setup()
	ctx := context.Background()

	first, _ := svc.IssuePair(ctx, alice)
	second, err := svc.Rotate(ctx, alice, first.RecordID)
	if err != nil {
		t.Fatalf("Rotate() error = %v", err)
	}
	if _, ok := ledger.rows[first.RecordID]; ok {
		t.Error("old record survived rotation")
	}
	if _, ok := ledger.rows[second.RecordID]; !ok {
		t.Error("new record missing")
	}
}

func TestRotateClaimsBeforeIssuing(t *testing.T) {
	svc, _, _, calls := setup()
	ctx := context.Background()

	first, _ := svc.IssuePair(ctx, alice)
	*calls = nil
	if _, err := svc.Rotate(ctx, alice, first.RecordID); err != nil {
		t.Fatalf("Rotate() error = %v", err)
	}
	want := []string{"consume", "access", "persist", "refresh"}
	if !equal(*calls, want) {
		t.Errorf("calls = %v, want %v", *calls, want)
	}
}

func TestRotateRejectsSpentRecord(t *testing.T) {
	svc, _, ledger, calls := setup()
	ctx := context.Background()

	first, _ := svc.IssuePair(ctx, alice)
	if _, err := svc.Rotate(ctx, alice, first.RecordID); err != nil {
		t.Fatalf("Rotate() error = %v", err)
	}
	*calls = nil
	if _, err := svc.Rotate(ctx, alice, first.RecordID); !errors.Is(err, ErrRecordRevoked) {
		t.Fatalf("second Rotate() error = %v, want ErrRecordRevoked", err)
	}
	if len(*calls) != 1 {
		t.Errorf("calls = %v, want only the claim", *calls)
	}
	if len(ledger.rows) != 1 {
		t.Errorf("ledger rows = %d, want 1", len(ledger.rows))
	}
}

func TestRotateRejectsForeignRecord(t *testing.T) {
	svc, _, _, _ := setup()
	ctx := context.Background()

	first, _ := svc.IssuePair(ctx, alice)
	bob := model.User{ID: 2, Role: model.RoleCustomer}
	if _, err := svc.Rotate(ctx, bob, first.RecordID); !errors.Is(err, ErrRecordRevoked) {
		t.Fatalf("Rotate() error = %v, want ErrRecordRevoked", err)
	}
}

func TestRotateClaimFailureIssuesNothing(t *testing.T) {
	svc, _, ledger, calls := setup()
	ctx := context.Background()

	first, _ := svc.IssuePair(ctx, alice)
	boom := errors.New("db down")
	ledger.consumeErr = boom
	*calls = nil

	if _, err := svc.Rotate(ctx, alice, first.RecordID); !errors.Is(err, boom) {
		t.Fatalf("error = %v, want db down", err)
	}
	if len(*calls) != 1 {
		t.Errorf("calls = %v, want only the claim", *calls)
	}
}

func TestRevokeAndSessions(t *testing.T) {
	svc, _, _, _ := setup()
	ctx := context.Background()

	a, _ := svc.IssuePair(ctx, alice)
	_, _ = svc.IssuePair(ctx, alice)
	_, _ = svc.IssuePair(ctx, model.User{ID: 2, Role: model.RoleAdmin})

	if err := svc.Revoke(ctx, a.RecordID); err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}
	if err := svc.Revoke(ctx, a.RecordID); err != nil {
		t.Fatalf("second Revoke() error = %v", err)
	}
	sessions, _ := svc.ListSessions(ctx, alice.ID)
	if len(sessions) != 1 {
		t.Errorf("sessions = %d, want 1", len(sessions))
	}
	n, err := svc.RevokeAll(ctx, alice.ID)
	if err != nil || n != 1 {
		t.Errorf("RevokeAll() = %d, %v", n, err)
	}
	if rest, _ := svc.ListSessions(ctx, 2); len(rest) != 1 {
		t.Errorf("other user's sessions = %d, want 1", len(rest))
	}
}
