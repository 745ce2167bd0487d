package usecase

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"

	"github.com/fairyhunter13/ai-mock-interviewer/internal/domain"
)

// Argon2Params defines parameters for Argon2id password hashing
type Argon2Params struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLen     uint32
	KeyLen      uint32
}

// DefaultArgon2Params are used for new hashes.
var DefaultArgon2Params = Argon2Params{
	Memory:      64 * 1024, // 64 MB
	Iterations:  3,
	Parallelism: 2,
	SaltLen:     16,
	KeyLen:      32,
}

// HashPassword creates an Argon2id hash of the password
func HashPassword(password string, params Argon2Params) (string, error) {
	salt := make([]byte, params.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	hash := argon2.IDKey([]byte(password), salt, params.Iterations, params.Memory, params.Parallelism, params.KeyLen)

	// Format: argon2id$iterations$memory$parallelism$salt$hash (base64 encoded)
	return fmt.Sprintf("argon2id$%d$%d$%d$%s$%s",
		params.Iterations,
		params.Memory,
		params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

// VerifyPassword verifies a password against its Argon2id hash
func VerifyPassword(password, encodedHash string) bool {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 || parts[0] != "argon2id" {
		return false
	}
	iters, err1 := parseUint32(parts[1])
	mem, err2 := parseUint32(parts[2])
	par64, err3 := parseUint32(parts[3])
	if err1 != nil || err2 != nil || err3 != nil {
		return false
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false
	}
	expected, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(expected) == 0 {
		return false
	}
	par := uint8(math.MaxUint8)
	if par64 < math.MaxUint8 {
		par = uint8(par64)
	}
	actual := argon2.IDKey([]byte(password), salt, iters, mem, par, uint32(len(expected))) //nolint:gosec // bounded by decoded hash length
	return subtle.ConstantTimeCompare(actual, expected) == 1
}

func parseUint32(s string) (uint32, error) {
	x, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("parse")
	}
	return uint32(x), nil
}

// AuthService registers and authenticates users.
type AuthService struct {
	Users  domain.UserRepository
	Params Argon2Params
}

// NewAuthService constructs an AuthService with the default hashing parameters.
func NewAuthService(users domain.UserRepository) AuthService {
	return AuthService{Users: users, Params: DefaultArgon2Params}
}

// Register creates a user. An empty role becomes domain.DefaultRole; a taken
// username is domain.ErrConflict.
func (s AuthService) Register(ctx context.Context, username, password, role string) (domain.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return domain.User{}, fmt.Errorf("%w: username and password required", domain.ErrInvalidArgument)
	}
	if role == "" {
		role = domain.DefaultRole
	}
	if !domain.ValidRole(role) {
		return domain.User{}, fmt.Errorf("%w: unsupported role %q", domain.ErrInvalidArgument, role)
	}
	hash, err := HashPassword(password, s.Params)
	if err != nil {
		return domain.User{}, fmt.Errorf("op=auth.register: %w", err)
	}
	u := domain.User{Username: username, PasswordHash: hash, CurrentRole: role}
	id, err := s.Users.Create(ctx, u)
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return domain.User{}, fmt.Errorf("%w: username already exists", domain.ErrConflict)
		}
		return domain.User{}, fmt.Errorf("op=auth.register: %w", err)
	}
	u.ID = id
	u.PasswordHash = ""
	return u, nil
}

// Login checks credentials. Unknown users and wrong passwords are both
// domain.ErrUnauthorized.
func (s AuthService) Login(ctx context.Context, username, password string) (domain.User, error) {
	u, err := s.Users.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.User{}, fmt.Errorf("%w: invalid username or password", domain.ErrUnauthorized)
		}
		return domain.User{}, fmt.Errorf("op=auth.login: %w", err)
	}
	if !VerifyPassword(password, u.PasswordHash) {
		return domain.User{}, fmt.Errorf("%w: invalid username or password", domain.ErrUnauthorized)
	}
	u.PasswordHash = ""
	return u, nil
}

// Lookup returns a user without credentials.
func (s AuthService) Lookup(ctx context.Context, username string) (domain.User, error) {
	u, err := s.Users.GetByUsername(ctx, username)
	if err != nil {
		return domain.User{}, err
	}
	u.PasswordHash = ""
	return u, nil
}
