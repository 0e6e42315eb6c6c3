// Package memory implementa repository.Store en memoria. Se usa en tests y
// en sandbox (storage.driver=memory); respeta las mismas garantías de
// unicidad y versionado que el store de Postgres.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dropDatabas3/phonepass/internal/domain/repository"
	"github.com/dropDatabas3/phonepass/internal/domain/types"
)

var _ repository.Store = (*Store)(nil)

// Store guarda todo detrás de un único mutex.
type Store struct {
	mu sync.Mutex

	identities map[string]*repository.Identity
	identByFp  map[string]string

	apps         map[string]*repository.App
	creds        map[string]*repository.AppCredential
	credByClient map[string]string

	appUsers     map[string]*repository.AppUser
	appUserByKey map[string]string // app_id|identity_id
	appUserByExt map[string]string

	sessions    map[string]*repository.OtpSession
	sessionByFp map[string]string
	otps        map[string][]repository.Otp

	exchanges map[string]*repository.ExchangeSession
	exByExt   map[string]string

	sms []repository.SmsTransaction
}

// New crea un store vacío.
func New() *Store {
	return &Store{
		identities:   map[string]*repository.Identity{},
		identByFp:    map[string]string{},
		apps:         map[string]*repository.App{},
		creds:        map[string]*repository.AppCredential{},
		credByClient: map[string]string{},
		appUsers:     map[string]*repository.AppUser{},
		appUserByKey: map[string]string{},
		appUserByExt: map[string]string{},
		sessions:     map[string]*repository.OtpSession{},
		sessionByFp:  map[string]string{},
		otps:         map[string][]repository.Otp{},
		exchanges:    map[string]*repository.ExchangeSession{},
		exByExt:      map[string]string{},
	}
}

func (s *Store) Ping(context.Context) error { return nil }
func (s *Store) Close()                     {}

// ─── Seed (lo administra la consola en producción) ───

// PutApp crea o reemplaza una app.
func (s *Store) PutApp(a repository.App) *repository.App {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Status == "" {
		a.Status = types.AppActive
	}
	s.apps[a.ID] = &a
	cp := a
	return &cp
}

// PutCredential crea una credencial. ErrConflict si el client_id ya existe.
func (s *Store) PutCredential(c repository.AppCredential) (*repository.AppCredential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.credByClient[c.ClientID]; dup {
		return nil, repository.ErrConflict
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Status == "" {
		c.Status = types.CredentialActive
	}
	s.creds[c.ID] = &c
	s.credByClient[c.ClientID] = c.ID
	cp := c
	return &cp, nil
}

// SmsTransactions devuelve una copia de los registros SMS.
func (s *Store) SmsTransactions() []repository.SmsTransaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]repository.SmsTransaction(nil), s.sms...)
}

// ExchangeSessionCount devuelve cuántas sesiones de exchange hay vivas en el store.
func (s *Store) ExchangeSessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.exchanges)
}

// ─── Identity ───

func (s *Store) GetIdentity(_ context.Context, id string) (*repository.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.identities[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *i
	return &cp, nil
}

func (s *Store) GetIdentityByFingerprint(ctx context.Context, fp string) (*repository.Identity, error) {
	s.mu.Lock()
	id, ok := s.identByFp[fp]
	s.mu.Unlock()
	if !ok {
		return nil, repository.ErrNotFound
	}
	return s.GetIdentity(ctx, id)
}

func (s *Store) UpsertVerifiedIdentity(_ context.Context, in repository.VerifiedIdentityInput) (*repository.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	at := in.VerifiedAt
	if id, ok := s.identByFp[in.Fingerprint]; ok {
		i := s.identities[id]
		i.LastVerifiedAt = &at
		if i.Status != types.IdentitySuspended {
			i.Status = types.IdentityVerified
		}
		if in.CountryCode != "" {
			i.CountryCode = in.CountryCode
		}
		cp := *i
		return &cp, nil
	}
	i := &repository.Identity{
		ID:                 uuid.NewString(),
		Fingerprint:        in.Fingerprint,
		FingerprintVersion: in.FingerprintVersion,
		CountryCode:        in.CountryCode,
		Status:             types.IdentityVerified,
		LastVerifiedAt:     &at,
		CreatedAt:          at,
	}
	s.identities[i.ID] = i
	s.identByFp[i.Fingerprint] = i.ID
	cp := *i
	return &cp, nil
}

func (s *Store) SetIdentityStatus(_ context.Context, id string, status types.IdentityStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.identities[id]
	if !ok {
		return repository.ErrNotFound
	}
	i.Status = status
	return nil
}

// ─── App / AppCredential ───

func (s *Store) GetApp(_ context.Context, id string) (*repository.App, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.apps[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *Store) GetCredential(_ context.Context, id string) (*repository.AppCredential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.creds[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *Store) GetCredentialByClientID(ctx context.Context, clientID string) (*repository.AppCredential, error) {
	s.mu.Lock()
	id, ok := s.credByClient[clientID]
	s.mu.Unlock()
	if !ok {
		return nil, repository.ErrNotFound
	}
	return s.GetCredential(ctx, id)
}

func (s *Store) RotateCredentialSecret(_ context.Context, clientID, newSecret string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.credByClient[clientID]
	if !ok {
		return repository.ErrNotFound
	}
	s.creds[id].ClientSecret = newSecret
	return nil
}

func (s *Store) SetCredentialStatus(_ context.Context, clientID string, status types.CredentialStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.credByClient[clientID]
	if !ok {
		return repository.ErrNotFound
	}
	s.creds[id].Status = status
	return nil
}

// ─── AppUser ───

func (s *Store) GetAppUser(_ context.Context, id string) (*repository.AppUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.appUsers[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *Store) FindOrCreateAppUser(_ context.Context, in repository.FindOrCreateAppUserInput) (*repository.AppUser, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := in.AppID + "|" + in.IdentityID
	if id, ok := s.appUserByKey[key]; ok {
		cp := *s.appUsers[id]
		return &cp, false, nil
	}
	if _, dup := s.appUserByExt[in.ExternalID]; dup {
		return nil, false, repository.ErrConflict
	}
	u := &repository.AppUser{
		ID:           uuid.NewString(),
		AppID:        in.AppID,
		IdentityID:   in.IdentityID,
		ExternalID:   in.ExternalID,
		AccessStatus: types.AccessGranted,
		CreatedAt:    in.Now,
		UpdatedAt:    in.Now,
	}
	s.appUsers[u.ID] = u
	s.appUserByKey[key] = u.ID
	s.appUserByExt[u.ExternalID] = u.ID
	cp := *u
	return &cp, true, nil
}

func (s *Store) MarkAppUserReset(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.appUsers[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.MarkReset = true
	return nil
}

func (s *Store) SetAppUserAccess(_ context.Context, id string, status types.AccessStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.appUsers[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.AccessStatus = status
	return nil
}

func (s *Store) RotateAppUserExternalID(_ context.Context, in repository.RotateExternalIDInput) (*repository.AppUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.appUsers[in.AppUserID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if !u.MarkReset || u.ExternalID != in.OldExternalID {
		return nil, repository.ErrConflict
	}
	if _, dup := s.appUserByExt[in.NewExternalID]; dup {
		return nil, repository.ErrConflict
	}
	delete(s.appUserByExt, u.ExternalID)
	u.ExternalID = in.NewExternalID
	u.MarkReset = false
	u.UpdatedAt = in.Now
	s.appUserByExt[u.ExternalID] = u.ID
	if i, ok := s.identities[u.IdentityID]; ok {
		at := in.Now
		i.LastVerifiedAt = &at
	}
	cp := *u
	return &cp, nil
}

// ─── OTP ───

func (s *Store) newSessionLocked(in repository.NewOtpSessionInput) *repository.OtpSession {
	sess := &repository.OtpSession{
		ID:          in.ID,
		Fingerprint: in.Fingerprint,
		RequestID:   in.RequestID,
		Rule:        in.Rule,
		ExpiredAt:   in.ExpiredAt,
		CreatedAt:   in.Now,
	}
	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	s.sessions[sess.ID] = sess
	s.sessionByFp[sess.Fingerprint] = sess.ID
	return sess
}

func (s *Store) deleteSessionLocked(id string) bool {
	sess, ok := s.sessions[id]
	if !ok {
		return false
	}
	delete(s.sessions, id)
	delete(s.otps, id)
	if s.sessionByFp[sess.Fingerprint] == id {
		delete(s.sessionByFp, sess.Fingerprint)
	}
	return true
}

func (s *Store) FindOrCreateOtpSession(_ context.Context, in repository.NewOtpSessionInput) (*repository.OtpSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.sessionByFp[in.Fingerprint]; ok {
		cp := *s.sessions[id]
		return &cp, nil
	}
	cp := *s.newSessionLocked(in)
	return &cp, nil
}

func (s *Store) ReplaceOtpSession(_ context.Context, oldID string, in repository.NewOtpSessionInput) (*repository.OtpSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteSessionLocked(oldID)
	if id, ok := s.sessionByFp[in.Fingerprint]; ok {
		// otro request ya la recreó
		cp := *s.sessions[id]
		return &cp, nil
	}
	cp := *s.newSessionLocked(in)
	return &cp, nil
}

func (s *Store) GetOtpSession(_ context.Context, fp string) (*repository.OtpSession, []repository.Otp, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.sessionByFp[fp]
	if !ok {
		return nil, nil, repository.ErrNotFound
	}
	cp := *s.sessions[id]
	otps := append([]repository.Otp(nil), s.otps[id]...)
	sort.Slice(otps, func(i, j int) bool { return otps[i].SequenceNo > otps[j].SequenceNo })
	return &cp, otps, nil
}

func (s *Store) IssueOtp(_ context.Context, in repository.IssueOtpInput) (*repository.OtpSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[in.SessionID]
	if !ok || sess.Version != in.ExpectedVersion {
		return nil, repository.ErrStaleVersion
	}
	o := in.Otp
	o.SessionID = sess.ID
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	s.otps[sess.ID] = append(s.otps[sess.ID], o)
	next := in.NextResendAt
	sess.OtpCount++
	sess.NextResendAt = &next
	sess.Version++
	cp := *sess
	return &cp, nil
}

func (s *Store) RecordOtpFailure(_ context.Context, sessionID string, expectedVersion int) (*repository.OtpSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok || sess.Version != expectedVersion {
		return nil, repository.ErrStaleVersion
	}
	sess.FailAttemptCount++
	sess.Version++
	cp := *sess
	return &cp, nil
}

func (s *Store) DeleteOtpSession(_ context.Context, sessionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteSessionLocked(sessionID), nil
}

// ─── Exchange ───

func (s *Store) CreateExchangeSession(_ context.Context, e *repository.ExchangeSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.exByExt[e.ExternalID]; dup {
		return repository.ErrConflict
	}
	cp := *e
	if cp.ID == "" {
		cp.ID = uuid.NewString()
		e.ID = cp.ID
	}
	cp.IV = append([]byte(nil), e.IV...)
	s.exchanges[cp.ID] = &cp
	s.exByExt[cp.ExternalID] = cp.ID
	return nil
}

func (s *Store) GetExchangeSessionByExternalID(_ context.Context, externalID string) (*repository.ExchangeSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.exByExt[externalID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *s.exchanges[id]
	cp.IV = append([]byte(nil), cp.IV...)
	return &cp, nil
}

func (s *Store) DeleteExchangeSession(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.exchanges[id]
	if !ok {
		return false, nil
	}
	delete(s.exchanges, id)
	delete(s.exByExt, e.ExternalID)
	return true, nil
}

func (s *Store) DeleteExpiredExchangeSessions(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, e := range s.exchanges {
		if !now.Before(e.ExpiredAt) {
			delete(s.exchanges, id)
			delete(s.exByExt, e.ExternalID)
			n++
		}
	}
	return n, nil
}

// ─── SMS ───

func (s *Store) RecordSmsTransaction(_ context.Context, tx repository.SmsTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	s.sms = append(s.sms, tx)
	return nil
}
