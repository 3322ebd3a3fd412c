package appointment

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-appointments/internal/db"
	"github.com/hackgods/clinic-appointments/internal/schedule"
)

var saoPaulo = mustLocation("America/Sao_Paulo")

func mustLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.FixedZone("BRT", -3*60*60)
	}
	return loc
}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()
	conn, err := db.OpenSQLite(ctx, filepath.Join(t.TempDir(), "clinic.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, db.MigrateSQLite(ctx, conn))
	return conn
}

func insertUser(t *testing.T, conn *sql.DB, email string) uuid.UUID {
	t.Helper()
	id := uuid.New()
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := conn.Exec(`
		INSERT INTO users (id, name, email, password_hash, role, cep, street, neighborhood, city, state, created_at, updated_at)
		VALUES (?, ?, ?, 'x', 'PATIENT', '01001000', 'Praca da Se', 'Se', 'Sao Paulo', 'SP', ?, ?)`,
		id.String(), "Patient "+email, email, now, now)
	require.NoError(t, err)
	return id
}

type stubAddresses struct {
	addr *Address
	err  error
}

func (s stubAddresses) PatientAddress(context.Context, uuid.UUID) (*Address, error) {
	return s.addr, s.err
}

type stubEnricher struct {
	alert   bool
	summary string
	err     error
	block   chan struct{}
	calls   int
	mu      sync.Mutex
}

func (s *stubEnricher) Enrich(ctx context.Context, city, state, date string) (bool, *string, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.block != nil {
		<-s.block
	}
	if s.err != nil {
		return false, nil, s.err
	}
	summary := s.summary
	return s.alert, &summary, nil
}

// thursday 2026-02-19 12:00 in the clinic zone, the day before the booking day
func fixedNow() time.Time {
	return time.Date(2026, 2, 19, 12, 0, 0, 0, saoPaulo)
}

type fixture struct {
	conn *sql.DB
	repo *SQLiteRepository
	svc  *Service
}

func newFixture(t *testing.T, enricher Enricher) fixture {
	t.Helper()
	conn := openTestDB(t)
	repo := NewSQLiteRepository(conn)
	addresses := stubAddresses{addr: &Address{City: "Sao Paulo", State: "SP"}}
	svc := NewService(repo, addresses, enricher, nil, Options{
		Location:          saoPaulo,
		EnrichmentTimeout: 200 * time.Millisecond,
		Now:               fixedNow,
	})
	return fixture{conn: conn, repo: repo, svc: svc}
}

func TestAvailableSlotsFullCatalogWhenEmpty(t *testing.T) {
	f := newFixture(t, nil)

	slots, err := f.svc.AvailableSlots(context.Background(), "2026-02-20")
	require.NoError(t, err)
	assert.Equal(t, schedule.Slots(), slots)
	assert.Len(t, slots, 9)
}

func TestAvailableSlotsWeekendIsEmpty(t *testing.T) {
	f := newFixture(t, nil)

	for _, date := range []string{"2026-02-21", "2026-02-22"} {
		slots, err := f.svc.AvailableSlots(context.Background(), date)
		require.NoError(t, err)
		assert.Empty(t, slots, date)
		assert.NotNil(t, slots)
	}
}

func TestAvailableSlotsRejectsMalformedDate(t *testing.T) {
	f := newFixture(t, nil)

	for _, date := range []string{"", "2026-2-20", "2026-02-30", "20-02-2026"} {
		_, err := f.svc.AvailableSlots(context.Background(), date)
		assert.ErrorIs(t, err, ErrValidation, date)
	}
}

func TestBookingScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &stubEnricher{alert: true, summary: "Rain chance: 80% | Expected precipitation: 3.2 mm"})
	patient := insertUser(t, f.conn, "p@example.com")
	other := insertUser(t, f.conn, "q@example.com")

	appt, err := f.svc.CreateAppointment(ctx, patient, "2026-02-20", "15:00")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, appt.Status)
	assert.Equal(t, patient, appt.PatientID)
	assert.True(t, appt.RainAlert)
	require.NotNil(t, appt.WeatherSummary)
	assert.Contains(t, *appt.WeatherSummary, "Rain chance: 80%")

	_, err = f.svc.CreateAppointment(ctx, other, "2026-02-20", "15:00")
	assert.ErrorIs(t, err, ErrSlotTaken)

	slots, err := f.svc.AvailableSlots(ctx, "2026-02-20")
	require.NoError(t, err)
	assert.NotContains(t, slots, "15:00")
	assert.Len(t, slots, 8)

	canceled, err := f.svc.CancelByPatient(ctx, appt.ID, patient)
	require.NoError(t, err)
	assert.Equal(t, StatusCanceled, canceled.Status)

	slots, err = f.svc.AvailableSlots(ctx, "2026-02-20")
	require.NoError(t, err)
	assert.Contains(t, slots, "15:00")

	rebooked, err := f.svc.CreateAppointment(ctx, other, "2026-02-20", "15:00")
	require.NoError(t, err)
	assert.NotEqual(t, appt.ID, rebooked.ID)
}

func TestCreateAppointmentConcurrentExclusivity(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	const workers = 12
	patients := make([]uuid.UUID, workers)
	for i := range patients {
		patients[i] = insertUser(t, f.conn, uuid.NewString()+"@example.com")
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
		others    []error
	)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(patient uuid.UUID) {
			defer wg.Done()
			<-start
			_, err := f.svc.CreateAppointment(ctx, patient, "2026-02-20", "10:00")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, ErrSlotTaken):
				conflicts++
			default:
				others = append(others, err)
			}
		}(patients[i])
	}
	close(start)
	wg.Wait()

	assert.Empty(t, others)
	assert.Equal(t, 1, successes)
	assert.Equal(t, workers-1, conflicts)

	times, err := f.repo.ListActiveTimes(ctx, "2026-02-20")
	require.NoError(t, err)
	assert.Equal(t, []string{"10:00"}, times)
}

func TestCreateAppointmentValidatesBeforeLedger(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	patient := insertUser(t, f.conn, "p@example.com")

	cases := []struct {
		name, date, time string
	}{
		{"bad date", "2026/02/20", "10:00"},
		{"impossible date", "2026-02-31", "10:00"},
		{"weekend", "2026-02-21", "10:00"},
		{"off catalog", "2026-02-20", "18:00"},
		{"half hour", "2026-02-20", "10:30"},
		{"bad shape", "2026-02-20", "10h"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.CreateAppointment(ctx, patient, tc.date, tc.time)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}

	mine, err := f.svc.ListMine(ctx, patient)
	require.NoError(t, err)
	assert.Empty(t, mine)
}

func TestCreateAppointmentSurvivesEnrichmentFailure(t *testing.T) {
	ctx := context.Background()
	enricher := &stubEnricher{err: errors.New("forecast service down")}
	f := newFixture(t, enricher)
	patient := insertUser(t, f.conn, "p@example.com")

	appt, err := f.svc.CreateAppointment(ctx, patient, "2026-02-20", "09:00")
	require.NoError(t, err)
	assert.False(t, appt.RainAlert)
	assert.Nil(t, appt.WeatherSummary)
	assert.Equal(t, 1, enricher.calls)
}

func TestCreateAppointmentSurvivesEnrichmentTimeout(t *testing.T) {
	ctx := context.Background()
	enricher := &stubEnricher{alert: true, summary: "late", block: make(chan struct{})}
	defer close(enricher.block)
	f := newFixture(t, enricher)
	patient := insertUser(t, f.conn, "p@example.com")

	started := time.Now()
	appt, err := f.svc.CreateAppointment(ctx, patient, "2026-02-20", "11:00")
	require.NoError(t, err)
	assert.False(t, appt.RainAlert)
	assert.Nil(t, appt.WeatherSummary)
	assert.Less(t, time.Since(started), 2*time.Second)
}

func TestCreateAppointmentSkipsEnrichmentWithoutAddress(t *testing.T) {
	ctx := context.Background()
	conn := openTestDB(t)
	enricher := &stubEnricher{alert: true, summary: "unused"}
	svc := NewService(NewSQLiteRepository(conn), stubAddresses{err: errors.New("no such user")}, enricher, nil, Options{Now: fixedNow})
	patient := insertUser(t, conn, "p@example.com")

	appt, err := svc.CreateAppointment(ctx, patient, "2026-02-20", "12:00")
	require.NoError(t, err)
	assert.False(t, appt.RainAlert)
	assert.Zero(t, enricher.calls)
}

func TestCancelByPatientIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	patient := insertUser(t, f.conn, "p@example.com")

	appt, err := f.svc.CreateAppointment(ctx, patient, "2026-02-20", "13:00")
	require.NoError(t, err)

	first, err := f.svc.CancelByPatient(ctx, appt.ID, patient)
	require.NoError(t, err)
	second, err := f.svc.CancelByPatient(ctx, appt.ID, patient)
	require.NoError(t, err)

	assert.Equal(t, StatusCanceled, first.Status)
	assert.Equal(t, StatusCanceled, second.Status)
	assert.Equal(t, first.UpdatedAt, second.UpdatedAt)
}

func TestCancelByPatientChecksOwnershipAndExistence(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	owner := insertUser(t, f.conn, "owner@example.com")
	intruder := insertUser(t, f.conn, "intruder@example.com")

	appt, err := f.svc.CreateAppointment(ctx, owner, "2026-02-20", "14:00")
	require.NoError(t, err)

	_, err = f.svc.CancelByPatient(ctx, appt.ID, intruder)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.CancelByPatient(ctx, uuid.New(), owner)
	assert.ErrorIs(t, err, ErrAppointmentNotFound)

	still, err := f.repo.GetByID(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, still.Status)
}

func TestCancelByPatientRejectsPastAppointment(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	patient := insertUser(t, f.conn, "p@example.com")

	past, err := f.svc.CreateAppointment(ctx, patient, "2026-02-18", "10:00")
	require.NoError(t, err)

	_, err = f.svc.CancelByPatient(ctx, past.ID, patient)
	assert.ErrorIs(t, err, ErrPastAppointment)

	// 11:00 today already started at the fixed clock of 12:00
	earlier, err := f.svc.CreateAppointment(ctx, patient, "2026-02-19", "11:00")
	require.NoError(t, err)
	_, err = f.svc.CancelByPatient(ctx, earlier.ID, patient)
	assert.ErrorIs(t, err, ErrPastAppointment)

	later, err := f.svc.CreateAppointment(ctx, patient, "2026-02-19", "13:00")
	require.NoError(t, err)
	_, err = f.svc.CancelByPatient(ctx, later.ID, patient)
	assert.NoError(t, err)
}

func TestCancelByPatientIdempotenceBeatsTemporalGuard(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	patient := insertUser(t, f.conn, "p@example.com")

	past, err := f.svc.CreateAppointment(ctx, patient, "2026-02-18", "16:00")
	require.NoError(t, err)
	_, err = f.repo.UpdateStatus(ctx, past.ID, StatusPending, StatusCanceled)
	require.NoError(t, err)

	got, err := f.svc.CancelByPatient(ctx, past.ID, patient)
	require.NoError(t, err)
	assert.Equal(t, StatusCanceled, got.Status)
}

func TestListMineOrdersByDateAndTime(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	patient := insertUser(t, f.conn, "p@example.com")
	other := insertUser(t, f.conn, "q@example.com")

	for _, slot := range [][2]string{{"2026-02-24", "09:00"}, {"2026-02-20", "16:00"}, {"2026-02-20", "09:00"}} {
		_, err := f.svc.CreateAppointment(ctx, patient, slot[0], slot[1])
		require.NoError(t, err)
	}
	_, err := f.svc.CreateAppointment(ctx, other, "2026-02-20", "10:00")
	require.NoError(t, err)

	mine, err := f.svc.ListMine(ctx, patient)
	require.NoError(t, err)
	require.Len(t, mine, 3)
	assert.Equal(t, "2026-02-20", mine[0].Date)
	assert.Equal(t, "09:00", mine[0].Time)
	assert.Equal(t, "16:00", mine[1].Time)
	assert.Equal(t, "2026-02-24", mine[2].Date)
}

func TestListAllFiltersAndAttachesOwner(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	patient := insertUser(t, f.conn, "p@example.com")

	a, err := f.svc.CreateAppointment(ctx, patient, "2026-02-20", "09:00")
	require.NoError(t, err)
	_, err = f.svc.CreateAppointment(ctx, patient, "2026-02-23", "09:00")
	require.NoError(t, err)
	_, err = f.svc.UpdateStatus(ctx, a.ID, StatusConfirmed)
	require.NoError(t, err)

	all, err := f.svc.ListAll(ctx, ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.NotNil(t, all[0].Patient)
	assert.Equal(t, "p@example.com", all[0].Patient.Email)
	require.NotNil(t, all[0].Patient.Address)
	assert.Equal(t, "Sao Paulo", all[0].Patient.Address.City)

	date := "2026-02-23"
	byDate, err := f.svc.ListAll(ctx, ListFilter{Date: &date})
	require.NoError(t, err)
	require.Len(t, byDate, 1)
	assert.Equal(t, date, byDate[0].Date)

	confirmed := StatusConfirmed
	byStatus, err := f.svc.ListAll(ctx, ListFilter{Status: &confirmed})
	require.NoError(t, err)
	require.Len(t, byStatus, 1)
	assert.Equal(t, a.ID, byStatus[0].ID)

	bogus := AppointmentStatus("DONE")
	_, err = f.svc.ListAll(ctx, ListFilter{Status: &bogus})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestUpdateStatus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	patient := insertUser(t, f.conn, "p@example.com")

	appt, err := f.svc.CreateAppointment(ctx, patient, "2026-02-20", "17:00")
	require.NoError(t, err)

	detail, err := f.svc.UpdateStatus(ctx, appt.ID, StatusConfirmed)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, detail.Status)
	require.NotNil(t, detail.Patient)
	assert.Equal(t, patient, detail.Patient.ID)

	_, err = f.svc.UpdateStatus(ctx, appt.ID, "ARCHIVED")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.UpdateStatus(ctx, uuid.New(), StatusCanceled)
	assert.ErrorIs(t, err, ErrAppointmentNotFound)

	same, err := f.svc.UpdateStatus(ctx, appt.ID, StatusConfirmed)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, same.Status)
}

func TestUpdateStatusReopenRespectsExclusivity(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	patient := insertUser(t, f.conn, "p@example.com")
	other := insertUser(t, f.conn, "q@example.com")

	first, err := f.svc.CreateAppointment(ctx, patient, "2026-02-20", "12:00")
	require.NoError(t, err)
	_, err = f.svc.UpdateStatus(ctx, first.ID, StatusCanceled)
	require.NoError(t, err)

	reopened, err := f.svc.UpdateStatus(ctx, first.ID, StatusPending)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, reopened.Status)

	_, err = f.svc.UpdateStatus(ctx, first.ID, StatusCanceled)
	require.NoError(t, err)
	_, err = f.svc.CreateAppointment(ctx, other, "2026-02-20", "12:00")
	require.NoError(t, err)

	_, err = f.svc.UpdateStatus(ctx, first.ID, StatusConfirmed)
	assert.ErrorIs(t, err, ErrSlotTaken)
}

func TestGetAppointment(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	patient := insertUser(t, f.conn, "p@example.com")

	appt, err := f.svc.CreateAppointment(ctx, patient, "2026-02-20", "15:00")
	require.NoError(t, err)

	detail, err := f.svc.GetAppointment(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, appt.ID, detail.ID)
	require.NotNil(t, detail.Patient)
	require.NotNil(t, detail.Patient.CEP)
	assert.Equal(t, "01001000", *detail.Patient.CEP)

	_, err = f.svc.GetAppointment(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
}

// conditional writes only apply from the observed status
func TestRepositoryUpdateStatusIsConditional(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	patient := insertUser(t, f.conn, "p@example.com")

	appt, err := f.svc.CreateAppointment(ctx, patient, "2026-02-20", "16:00")
	require.NoError(t, err)

	_, err = f.repo.UpdateStatus(ctx, appt.ID, StatusConfirmed, StatusCanceled)
	assert.ErrorIs(t, err, ErrAppointmentNotFound)

	updated, err := f.repo.UpdateStatus(ctx, appt.ID, StatusPending, StatusConfirmed)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, updated.Status)
	assert.False(t, updated.UpdatedAt.Before(appt.UpdatedAt))
}
