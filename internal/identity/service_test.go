package identity

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/hearwell/clinic-backend/internal/apperr"
)

type memIdentity struct {
	users   map[string]*User // keyed by email
	clinics map[uuid.UUID]*Clinic
}

func newMemIdentity() *memIdentity {
	return &memIdentity{
		users:   make(map[string]*User),
		clinics: make(map[uuid.UUID]*Clinic),
	}
}

func (m *memIdentity) addUser(email, password string, role Role, active bool) *User {
	hash, _ := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	u := &User{
		ID:           uuid.New(),
		Name:         "Test Staff",
		Email:        email,
		PasswordHash: string(hash),
		Role:         role,
		IsActive:     active,
	}
	m.users[email] = u
	return u
}

func (m *memIdentity) GetUserByID(ctx context.Context, id uuid.UUID) (*User, error) {
	for _, u := range m.users {
		if u.ID == id {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrUserNotFound
}

func (m *memIdentity) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	u, ok := m.users[strings.ToLower(email)]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memIdentity) CreateUser(ctx context.Context, u *User) error {
	cp := *u
	m.users[u.Email] = &cp
	return nil
}

func (m *memIdentity) ListUsers(ctx context.Context, clinicID *uuid.UUID) ([]User, error) {
	var out []User
	for _, u := range m.users {
		out = append(out, *u)
	}
	return out, nil
}

func (m *memIdentity) GetClinicByID(ctx context.Context, id uuid.UUID) (*Clinic, error) {
	c, ok := m.clinics[id]
	if !ok {
		return nil, ErrClinicNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memIdentity) ListClinics(ctx context.Context) ([]Clinic, error) {
	var out []Clinic
	for _, c := range m.clinics {
		out = append(out, *c)
	}
	return out, nil
}

func TestLoginAndVerifyToken(t *testing.T) {
	repo := newMemIdentity()
	clinicID := uuid.New()
	user := repo.addUser("audio@hearwell.in", "secret123", RoleAudiologist, true)
	user.ClinicID = &clinicID

	svc := NewService(repo, "test-secret", time.Hour)

	token, got, err := svc.Login(context.Background(), "audio@hearwell.in", "secret123")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if got.ID != user.ID {
		t.Fatal("login returned the wrong user")
	}
	if token == "" {
		t.Fatal("login returned an empty token")
	}

	claims, err := svc.VerifyToken(token)
	if err != nil {
		t.Fatalf("VerifyToken: %v", err)
	}
	if claims.UserID != user.ID {
		t.Fatalf("claims user = %s, want %s", claims.UserID, user.ID)
	}
	if claims.Role != RoleAudiologist {
		t.Fatalf("claims role = %q, want audiologist", claims.Role)
	}
	if claims.ClinicID == nil || *claims.ClinicID != clinicID {
		t.Fatal("claims should carry the user's clinic")
	}
}

func TestLoginFailures(t *testing.T) {
	repo := newMemIdentity()
	repo.addUser("active@hearwell.in", "secret123", RoleReceptionist, true)
	repo.addUser("gone@hearwell.in", "secret123", RoleReceptionist, false)

	svc := NewService(repo, "test-secret", time.Hour)

	_, _, err := svc.Login(context.Background(), "active@hearwell.in", "wrong")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password error = %v, want ErrInvalidCredentials", err)
	}

	_, _, err = svc.Login(context.Background(), "nobody@hearwell.in", "secret123")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown email error = %v, want ErrInvalidCredentials", err)
	}

	_, _, err = svc.Login(context.Background(), "gone@hearwell.in", "secret123")
	if !errors.Is(err, ErrUserInactive) {
		t.Fatalf("inactive user error = %v, want ErrUserInactive", err)
	}
}

func TestVerifyTokenRejectsTampering(t *testing.T) {
	repo := newMemIdentity()
	repo.addUser("audio@hearwell.in", "secret123", RoleAudiologist, true)

	svc := NewService(repo, "test-secret", time.Hour)
	other := NewService(repo, "another-secret", time.Hour)

	token, _, err := svc.Login(context.Background(), "audio@hearwell.in", "secret123")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	if _, err := other.VerifyToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("wrong secret error = %v, want ErrInvalidToken", err)
	}
	if _, err := svc.VerifyToken(token + "x"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("mangled token error = %v, want ErrInvalidToken", err)
	}
	if _, err := svc.VerifyToken(""); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("empty token error = %v, want ErrInvalidToken", err)
	}
}

func TestVerifyTokenRejectsExpired(t *testing.T) {
	repo := newMemIdentity()
	repo.addUser("audio@hearwell.in", "secret123", RoleAudiologist, true)

	svc := NewService(repo, "test-secret", -time.Minute)

	token, _, err := svc.Login(context.Background(), "audio@hearwell.in", "secret123")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if _, err := svc.VerifyToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expired token error = %v, want ErrInvalidToken", err)
	}
}

func TestCreateUser(t *testing.T) {
	repo := newMemIdentity()
	clinicID := uuid.New()
	repo.clinics[clinicID] = &Clinic{ID: clinicID, Name: "HearWell Indiranagar"}

	svc := NewService(repo, "test-secret", time.Hour)

	user, err := svc.CreateUser(context.Background(), CreateUserParams{
		ClinicID: &clinicID,
		Name:     "New Audiologist",
		Email:    "  New.Audio@HearWell.in ",
		Password: "secret123",
		Role:     RoleAudiologist,
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if user.Email != "new.audio@hearwell.in" {
		t.Fatalf("email = %q, want normalized lowercase", user.Email)
	}
	if !user.IsActive {
		t.Fatal("new users should start active")
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("secret123")) != nil {
		t.Fatal("stored hash does not match the password")
	}

	_, err = svc.CreateUser(context.Background(), CreateUserParams{
		Name: "Dup", Email: "new.audio@hearwell.in", Password: "x", Role: RoleReceptionist,
	})
	if !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("duplicate email error = %v, want ErrEmailTaken", err)
	}

	_, err = svc.CreateUser(context.Background(), CreateUserParams{
		Name: "Bad", Email: "bad@hearwell.in", Password: "x", Role: Role("superuser"),
	})
	if !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("unknown role error = %v, want ErrInvalidRole", err)
	}

	missing := uuid.New()
	_, err = svc.CreateUser(context.Background(), CreateUserParams{
		ClinicID: &missing, Name: "Lost", Email: "lost@hearwell.in", Password: "x", Role: RoleAuditor,
	})
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("unknown clinic error = %v, want not found", err)
	}
}

func TestRoleCapabilities(t *testing.T) {
	cases := []struct {
		role Role
		cap  Capability
		want bool
	}{
		{RoleAdmin, CapManageStaff, true},
		{RoleAdmin, CapTransferStock, true},
		{RoleClinicManager, CapTransferStock, true},
		{RoleClinicManager, CapManageStaff, false},
		{RoleAudiologist, CapRunTrials, true},
		{RoleAudiologist, CapManageInventory, false},
		{RoleReceptionist, CapManagePatients, true},
		{RoleReceptionist, CapRunTrials, false},
		{RoleAuditor, CapViewBills, true},
		{RoleAuditor, CapManagePatients, false},
	}

	for _, tc := range cases {
		if got := tc.role.Can(tc.cap); got != tc.want {
			t.Errorf("%s.Can(%s) = %v, want %v", tc.role, tc.cap, got, tc.want)
		}
	}

	if Role("superuser").Valid() {
		t.Error("unknown role should not be valid")
	}
	if Role("superuser").Can(CapViewBills) {
		t.Error("unknown role should have no capabilities")
	}
}
