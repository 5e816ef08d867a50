package services

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/refkeeper/internal/common"
	"github.com/dmitrijs2005/refkeeper/internal/dbx"
	"github.com/dmitrijs2005/refkeeper/internal/logging"
	"github.com/dmitrijs2005/refkeeper/internal/server/archive"
	"github.com/dmitrijs2005/refkeeper/internal/server/config"
	"github.com/dmitrijs2005/refkeeper/internal/server/models"
	referralcodesrepo "github.com/dmitrijs2005/refkeeper/internal/server/repositories/referralcodes"
	refreshtokensrepo "github.com/dmitrijs2005/refkeeper/internal/server/repositories/refreshtokens"
	usersrepo "github.com/dmitrijs2005/refkeeper/internal/server/repositories/users"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"
)

var errBoom = errors.New("boom")

// newTxDB returns a real database used only to open and close transactions;
// the data itself lives in memStore.
func newTxDB(t *testing.T) *sql.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := sql.Open("sqlite", "file:"+name+"?mode=memory&cache=shared")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func testConfig() *config.Config {
	return &config.Config{
		SecretKey:                    "k",
		AccessTokenValidityDuration:  time.Hour,
		RefreshTokenValidityDuration: 2 * time.Hour,
		ReferralCodeValidity:         30 * 24 * time.Hour,
		BcryptCost:                   bcrypt.MinCost,
	}
}

// memStore is an in-memory stand-in for the three tables. It enforces the
// same unique constraints the schema does.
type memStore struct {
	mu     sync.Mutex
	users  map[string]models.User
	codes  map[string]models.ReferralCode // by user id
	tokens map[string]models.RefreshToken

	fail          map[string]error
	codeConflicts int
}

func newMemStore() *memStore {
	return &memStore{
		users:  map[string]models.User{},
		codes:  map[string]models.ReferralCode{},
		tokens: map[string]models.RefreshToken{},
		fail:   map[string]error{},
	}
}

func (s *memStore) failing(op string) error { return s.fail[op] }

func (s *memStore) addUser(u models.User) { s.users[u.ID] = u }

func (s *memStore) addCode(c models.ReferralCode) { s.codes[c.UserID] = c }

type memManager struct{ s *memStore }

func (m *memManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *memManager) Users(dbx.DBTX) usersrepo.Repository          { return &memUsers{m.s} }
func (m *memManager) ReferralCodes(dbx.DBTX) referralcodesrepo.Repository {
	return &memCodes{m.s}
}
func (m *memManager) RefreshTokens(dbx.DBTX) refreshtokensrepo.Repository {
	return &memTokens{m.s}
}

type memUsers struct{ s *memStore }

func (r *memUsers) Create(_ context.Context, u *models.User) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failing("users.Create"); err != nil {
		return nil, err
	}
	for _, existing := range r.s.users {
		if existing.UserName == u.UserName || (u.Email != "" && existing.Email == u.Email) {
			return nil, common.ErrorConflict
		}
	}
	u.CreatedAt = time.Now()
	r.s.users[u.ID] = *u
	return u, nil
}

func (r *memUsers) find(match func(models.User) bool) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if match(u) {
			u := u
			return &u, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *memUsers) GetByID(_ context.Context, id string) (*models.User, error) {
	if err := r.s.failing("users.GetByID"); err != nil {
		return nil, err
	}
	return r.find(func(u models.User) bool { return u.ID == id })
}

func (r *memUsers) GetByUsername(_ context.Context, name string) (*models.User, error) {
	if err := r.s.failing("users.GetByUsername"); err != nil {
		return nil, err
	}
	return r.find(func(u models.User) bool { return u.UserName == name })
}

func (r *memUsers) GetByEmail(_ context.Context, email string) (*models.User, error) {
	return r.find(func(u models.User) bool { return u.Email == email })
}

func (r *memUsers) ExistsByUsername(ctx context.Context, name string) (bool, error) {
	if err := r.s.failing("users.ExistsByUsername"); err != nil {
		return false, err
	}
	_, err := r.GetByUsername(ctx, name)
	return err == nil, nil
}

func (r *memUsers) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	_, err := r.GetByEmail(ctx, email)
	return err == nil, nil
}

func (r *memUsers) ListReferrals(_ context.Context, referrerID string) ([]models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []models.User{}
	for _, u := range r.s.users {
		if u.ReferrerID != nil && *u.ReferrerID == referrerID {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserName < out[j].UserName })
	return out, nil
}

func (r *memUsers) UpdateLastLogin(_ context.Context, id string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failing("users.UpdateLastLogin"); err != nil {
		return err
	}
	u, ok := r.s.users[id]
	if !ok {
		return common.ErrorNotFound
	}
	u.LastLogin = &at
	r.s.users[id] = u
	return nil
}

type memCodes struct{ s *memStore }

func (r *memCodes) Create(_ context.Context, c *models.ReferralCode) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.codeConflicts > 0 {
		r.s.codeConflicts--
		return common.ErrorConflict
	}
	if err := r.s.failing("codes.Create"); err != nil {
		return err
	}
	if _, ok := r.s.codes[c.UserID]; ok {
		return common.ErrorConflict
	}
	for _, existing := range r.s.codes {
		if existing.Code == c.Code {
			return common.ErrorConflict
		}
	}
	c.CreatedAt = time.Now()
	r.s.codes[c.UserID] = *c
	return nil
}

func (r *memCodes) find(match func(models.ReferralCode) bool) (*models.ReferralCode, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, c := range r.s.codes {
		if match(c) {
			c := c
			return &c, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *memCodes) FindByUser(_ context.Context, userID string) (*models.ReferralCode, error) {
	return r.find(func(c models.ReferralCode) bool { return c.UserID == userID })
}

func (r *memCodes) FindByCode(_ context.Context, code string) (*models.ReferralCode, error) {
	if err := r.s.failing("codes.FindByCode"); err != nil {
		return nil, err
	}
	return r.find(func(c models.ReferralCode) bool { return c.Code == code })
}

func (r *memCodes) FindByOwnerEmail(_ context.Context, email string) (*models.ReferralCode, error) {
	r.s.mu.Lock()
	var ownerID string
	for _, u := range r.s.users {
		if u.Email == email {
			ownerID = u.ID
		}
	}
	r.s.mu.Unlock()
	if ownerID == "" {
		return nil, common.ErrorNotFound
	}
	return r.find(func(c models.ReferralCode) bool { return c.UserID == ownerID })
}

func (r *memCodes) DeleteByUser(_ context.Context, userID string) (*models.ReferralCode, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failing("codes.DeleteByUser"); err != nil {
		return nil, err
	}
	c, ok := r.s.codes[userID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	delete(r.s.codes, userID)
	return &c, nil
}

type memTokens struct{ s *memStore }

func (r *memTokens) Create(_ context.Context, userID, token string, expires time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failing("tokens.Create"); err != nil {
		return err
	}
	r.s.tokens[token] = models.RefreshToken{UserID: userID, Token: token, Expires: expires, CreatedAt: time.Now()}
	return nil
}

func (r *memTokens) Find(_ context.Context, token string) (*models.RefreshToken, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failing("tokens.Find"); err != nil {
		return nil, err
	}
	t, ok := r.s.tokens[token]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &t, nil
}

func (r *memTokens) Delete(_ context.Context, token string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failing("tokens.Delete"); err != nil {
		return err
	}
	if _, ok := r.s.tokens[token]; !ok {
		return common.ErrorNotFound
	}
	delete(r.s.tokens, token)
	return nil
}

func (r *memTokens) DeleteByUser(_ context.Context, userID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for k, t := range r.s.tokens {
		if t.UserID == userID {
			delete(r.s.tokens, k)
		}
	}
	return nil
}

type recordingArchiver struct {
	mu      sync.Mutex
	records []archive.Record
	err     error
}

func (a *recordingArchiver) Archive(_ context.Context, rec archive.Record) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, rec)
	return a.err
}

type fixedClock struct{ t time.Time }

func (c *fixedClock) now() time.Time { return c.t }

func newCodeService(t *testing.T, db *sql.DB, s *memStore, a archive.Archiver, clock *fixedClock) *ReferralCodeService {
	t.Helper()
	svc := NewReferralCodeService(db, &memManager{s}, a, testConfig(), logging.Nop{})
	svc.now = clock.now
	return svc
}
