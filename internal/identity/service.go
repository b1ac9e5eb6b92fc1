package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/hearwell/clinic-backend/internal/apperr"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUserInactive       = errors.New("user account is inactive")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrInvalidRole        = fmt.Errorf("unknown role: %w", apperr.ErrInvalid)
)

// Claims carried inside a session token.
type Claims struct {
	UserID   uuid.UUID
	Name     string
	Role     Role
	ClinicID *uuid.UUID
}

type Service struct {
	repo      Repository
	jwtSecret []byte
	tokenTTL  time.Duration
}

func NewService(repo Repository, jwtSecret string, tokenTTL time.Duration) *Service {
	return &Service{
		repo:      repo,
		jwtSecret: []byte(jwtSecret),
		tokenTTL:  tokenTTL,
	}
}

// Login verifies credentials and returns a signed session token.
func (s *Service) Login(ctx context.Context, email, password string) (string, *User, error) {
	user, err := s.repo.GetUserByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, fmt.Errorf("load user: %w", err)
	}

	if !user.IsActive {
		return "", nil, ErrUserInactive
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", nil, ErrInvalidCredentials
	}

	token, err := s.issueToken(user)
	if err != nil {
		return "", nil, fmt.Errorf("issue token: %w", err)
	}

	return token, user, nil
}

func (s *Service) issueToken(u *User) (string, error) {
	now := time.Now()

	claims := jwt.MapClaims{
		"sub":  u.ID.String(),
		"name": u.Name,
		"role": string(u.Role),
		"iat":  now.Unix(),
		"exp":  now.Add(s.tokenTTL).Unix(),
	}
	if u.ClinicID != nil {
		claims["clinic_id"] = u.ClinicID.String()
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString(s.jwtSecret)
}

// VerifyToken parses and validates a session token.
func (s *Service) VerifyToken(tokenStr string) (*Claims, error) {
	tok, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil || !tok.Valid {
		return nil, ErrInvalidToken
	}

	mc, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	sub, _ := mc["sub"].(string)
	userID, err := uuid.Parse(sub)
	if err != nil {
		return nil, ErrInvalidToken
	}

	roleStr, _ := mc["role"].(string)
	role := Role(roleStr)
	if !role.Valid() {
		return nil, ErrInvalidToken
	}

	claims := &Claims{
		UserID: userID,
		Role:   role,
	}
	if name, ok := mc["name"].(string); ok {
		claims.Name = name
	}
	if cid, ok := mc["clinic_id"].(string); ok {
		if parsed, err := uuid.Parse(cid); err == nil {
			claims.ClinicID = &parsed
		}
	}

	return claims, nil
}

type CreateUserParams struct {
	ClinicID *uuid.UUID
	Name     string
	Email    string
	Password string
	Role     Role
}

func (s *Service) CreateUser(ctx context.Context, p CreateUserParams) (*User, error) {
	if !p.Role.Valid() {
		return nil, ErrInvalidRole
	}

	if _, err := s.repo.GetUserByEmail(ctx, p.Email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, ErrUserNotFound) {
		return nil, fmt.Errorf("check email: %w", err)
	}

	if p.ClinicID != nil {
		if _, err := s.repo.GetClinicByID(ctx, *p.ClinicID); err != nil {
			return nil, err
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(p.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &User{
		ID:           uuid.New(),
		ClinicID:     p.ClinicID,
		Name:         p.Name,
		Email:        strings.ToLower(strings.TrimSpace(p.Email)),
		PasswordHash: string(hash),
		Role:         p.Role,
		IsActive:     true,
	}

	if err := s.repo.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	return user, nil
}

func (s *Service) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.repo.GetUserByID(ctx, id)
}

func (s *Service) ListUsers(ctx context.Context, clinicID *uuid.UUID) ([]User, error) {
	return s.repo.ListUsers(ctx, clinicID)
}

func (s *Service) ListClinics(ctx context.Context) ([]Clinic, error) {
	return s.repo.ListClinics(ctx)
}
