package user

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/ovaphlow/pitchfork/service-credits-go/internal/user/entity"
	userrepo "github.com/ovaphlow/pitchfork/service-credits-go/internal/user/repo"
)

// KeyHasher hashes and verifies shared API keys (abstract so we can swap to argon2 later).
type KeyHasher interface {
	Hash(key string) (string, error)
	Verify(hash, key string) bool
}

// BcryptHasher implementation.
type BcryptHasher struct{ Cost int }

func (b BcryptHasher) Hash(key string) (string, error) {
	cost := b.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	h, err := bcrypt.GenerateFromPassword([]byte(key), cost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

func (b BcryptHasher) Verify(hash, key string) bool {
	if hash == "" || key == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)) == nil
}

// AccountEnsurer creates the ledger row of a new user.
type AccountEnsurer interface {
	EnsureAccount(ctx context.Context, userID string) error
}

type Config struct {
	// APIKeyHash is the bcrypt hash of the key the identity provider sends
	// in X-API-Key.
	APIKeyHash string
}

func ConfigFromEnv() Config {
	return Config{APIKeyHash: strings.TrimSpace(os.Getenv("PROVISION_API_KEY_HASH"))}
}

var (
	ErrUserNotFound = errors.New("user not found")
	ErrInvalidUser  = errors.New("missing userId")
)

// UserService provisions accounts created by the identity provider.
type UserService struct {
	repo     *userrepo.UserRepo
	accounts AccountEnsurer
	clock    clockwork.Clock
	logger   *zap.SugaredLogger
}

func NewUserService(db *sqlx.DB, accounts AccountEnsurer, clock clockwork.Clock, logger *zap.SugaredLogger) *UserService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &UserService{repo: userrepo.NewUserRepo(db), accounts: accounts, clock: clock, logger: logger}
}

// Provision records the user and its zero balance. Replays are harmless.
func (s *UserService) Provision(ctx context.Context, id, email string) (bool, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return false, ErrInvalidUser
	}
	now := s.clock.Now().UnixMilli()
	created, err := s.repo.Create(ctx, &entity.User{
		ID:        id,
		Email:     strings.ToLower(strings.TrimSpace(email)),
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return false, err
	}
	if err := s.accounts.EnsureAccount(ctx, id); err != nil {
		return created, err
	}
	if created {
		s.logger.Infow("user provisioned", "user_id", id)
	}
	return created, nil
}

// Get returns a provisioned user.
func (s *UserService) Get(ctx context.Context, id string) (*entity.User, error) {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return u, nil
}

// EnsureTable creates the users table.
func (s *UserService) EnsureTable(ctx context.Context) error {
	return s.repo.EnsureTable(ctx)
}
