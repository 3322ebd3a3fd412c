package identity

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/hackgods/clinic-appointments/internal/db"
	"github.com/hackgods/clinic-appointments/internal/postal"
)

type stubLookup struct {
	addr  postal.Address
	err   error
	calls int
}

func (s *stubLookup) Lookup(ctx context.Context, cep string) (postal.Address, error) {
	s.calls++
	if s.err != nil {
		return postal.Address{}, s.err
	}
	return s.addr, nil
}

func newTestService(t *testing.T, lookup AddressLookup) (*Service, *SQLiteStore) {
	t.Helper()
	ctx := context.Background()
	conn, err := db.OpenSQLite(ctx, filepath.Join(t.TempDir(), "identity.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, db.MigrateSQLite(ctx, conn))

	store := NewSQLiteStore(conn)
	svc := NewService(store, lookup, NewTokens("test-secret", 0))
	svc.hashCost = bcrypt.MinCost
	return svc, store
}

func TestRegisterWithCEP(t *testing.T) {
	lookup := &stubLookup{addr: postal.Address{
		CEP: "01001-000", Street: "Praca da Se", Neighborhood: "Se", City: "Sao Paulo", State: "SP",
	}}
	svc, _ := newTestService(t, lookup)

	sess, err := svc.Register(context.Background(), RegisterInput{
		Name: " Ana Souza ", Email: " Ana@Example.com ", Password: "secret1", CEP: "01001-000",
	})
	require.NoError(t, err)
	assert.Equal(t, "Ana Souza", sess.User.Name)
	assert.Equal(t, "ana@example.com", sess.User.Email)
	assert.Equal(t, RolePatient, sess.User.Role)
	require.NotNil(t, sess.User.CEP)
	assert.Equal(t, "01001-000", *sess.User.CEP)
	require.NotNil(t, sess.User.Address)
	assert.Equal(t, "Sao Paulo", sess.User.Address.City)
	assert.NotEqual(t, "secret1", sess.User.PasswordHash)

	principal, err := svc.Authenticate(sess.Token)
	require.NoError(t, err)
	assert.Equal(t, sess.User.ID, principal.UserID)
	assert.Equal(t, RolePatient, principal.Role)

	addr, err := svc.PatientAddress(context.Background(), sess.User.ID)
	require.NoError(t, err)
	require.NotNil(t, addr)
	assert.Equal(t, "SP", addr.State)
}

func TestRegisterWithoutCEPSkipsLookup(t *testing.T) {
	lookup := &stubLookup{}
	svc, _ := newTestService(t, lookup)

	sess, err := svc.Register(context.Background(), RegisterInput{Name: "Bob", Email: "bob@example.com", Password: "secret1"})
	require.NoError(t, err)
	assert.Nil(t, sess.User.Address)
	assert.Nil(t, sess.User.CEP)
	assert.Zero(t, lookup.calls)

	addr, err := svc.PatientAddress(context.Background(), sess.User.ID)
	require.NoError(t, err)
	assert.Nil(t, addr)
}

func TestRegisterValidation(t *testing.T) {
	svc, _ := newTestService(t, &stubLookup{})

	cases := map[string]RegisterInput{
		"missing name":   {Email: "a@example.com", Password: "secret1"},
		"bad email":      {Name: "A", Email: "not-an-email", Password: "secret1"},
		"short password": {Name: "A", Email: "a@example.com", Password: "12345"},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Register(context.Background(), in)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestRegisterPropagatesCEPErrors(t *testing.T) {
	svc, _ := newTestService(t, &stubLookup{err: postal.ErrCEPNotFound})

	_, err := svc.Register(context.Background(), RegisterInput{
		Name: "Ana", Email: "ana@example.com", Password: "secret1", CEP: "99999999",
	})
	assert.ErrorIs(t, err, postal.ErrCEPNotFound)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc, _ := newTestService(t, &stubLookup{})
	in := RegisterInput{Name: "Ana", Email: "ana@example.com", Password: "secret1"}

	_, err := svc.Register(context.Background(), in)
	require.NoError(t, err)

	in.Email = "ANA@example.com"
	_, err = svc.Register(context.Background(), in)
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestStoreCreateDuplicateEmail(t *testing.T) {
	_, store := newTestService(t, nil)
	u := User{Name: "Ana", Email: "ana@example.com", PasswordHash: "x", Role: RolePatient}

	_, err := store.Create(context.Background(), u)
	require.NoError(t, err)
	_, err = store.Create(context.Background(), u)
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestLogin(t *testing.T) {
	svc, _ := newTestService(t, &stubLookup{})
	reg, err := svc.Register(context.Background(), RegisterInput{Name: "Ana", Email: "ana@example.com", Password: "secret1"})
	require.NoError(t, err)

	sess, err := svc.Login(context.Background(), "Ana@Example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, reg.User.ID, sess.User.ID)
	assert.NotEmpty(t, sess.Token)

	_, err = svc.Login(context.Background(), "ana@example.com", "wrong-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Login(context.Background(), "nobody@example.com", "secret1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestMe(t *testing.T) {
	svc, _ := newTestService(t, &stubLookup{})
	reg, err := svc.Register(context.Background(), RegisterInput{Name: "Ana", Email: "ana@example.com", Password: "secret1"})
	require.NoError(t, err)

	me, err := svc.Me(context.Background(), reg.User.ID)
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", me.Email)

	_, err = svc.Me(context.Background(), uuid.New())
	assert.True(t, errors.Is(err, ErrUserNotFound))
}

func TestCreateStaff(t *testing.T) {
	svc, _ := newTestService(t, nil)

	staff, err := svc.CreateStaff(context.Background(), "Front Desk", "desk@clinic.test", "secret1", RoleSecretary)
	require.NoError(t, err)
	assert.Equal(t, RoleSecretary, staff.Role)

	sess, err := svc.Login(context.Background(), "desk@clinic.test", "secret1")
	require.NoError(t, err)
	principal, err := svc.Authenticate(sess.Token)
	require.NoError(t, err)
	assert.True(t, principal.Role.IsStaff())

	_, err = svc.CreateStaff(context.Background(), "Nope", "p@clinic.test", "secret1", RolePatient)
	assert.ErrorIs(t, err, ErrValidation)
}
