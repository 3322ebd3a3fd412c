package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointments/internal/schedule"
)

type SimConfig struct {
	APIBaseURL  string
	Duration    time.Duration
	Workers     int
	Patients    int
	Days        int
	BookRatio   float64
	CancelRatio float64
	ReadRatio   float64
}

type patient struct {
	id    uuid.UUID
	token string

	mu           sync.Mutex
	appointments []uuid.UUID
}

func (p *patient) add(id uuid.UUID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.appointments = append(p.appointments, id)
}

func (p *patient) pick(rng *rand.Rand) (uuid.UUID, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.appointments) == 0 {
		return uuid.Nil, false
	}
	return p.appointments[rng.Intn(len(p.appointments))], true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, success bool, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	if success {
		atomic.AddInt64(&om.Success, 1)
	} else if conflict {
		atomic.AddInt64(&om.Conflict, 1)
	} else {
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]
	p50 = latencies[percentileIndex(len(latencies), 50)]
	p95 = latencies[percentileIndex(len(latencies), 95)]
	return avg, min, max, p50, p95
}

func percentileIndex(n, pct int) int {
	idx := n * pct / 100
	if idx >= n {
		idx = n - 1
	}
	return idx
}

type Metrics struct {
	Booking     OperationMetrics
	Cancel      OperationMetrics
	Available   OperationMetrics
	ListMine    OperationMetrics
	Enrichments int64
}

type Simulator struct {
	config   SimConfig
	client   *http.Client
	patients []*patient
	dates    []string
	metrics  Metrics
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("simulator starting")

	cfg := loadConfig()
	if err := validateConfig(cfg); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	log.Printf("config: duration=%s workers=%d patients=%d days=%d book=%.2f cancel=%.2f read=%.2f",
		cfg.Duration, cfg.Workers, cfg.Patients, cfg.Days, cfg.BookRatio, cfg.CancelRatio, cfg.ReadRatio)

	sim := &Simulator{
		config: cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		dates:  upcomingWeekdays(time.Now(), cfg.Days),
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	if err := sim.registerPatients(ctx); err != nil {
		cancel()
		log.Fatalf("register patients: %v", err)
	}
	cancel()

	log.Printf("registered %d patients, booking across %s", len(sim.patients), strings.Join(sim.dates, ", "))

	sim.Run()
	sim.PrintReport()

	if err := sim.VerifyExclusivity(context.Background()); err != nil {
		log.Fatalf("exclusivity check failed: %v", err)
	}
}

func loadConfig() SimConfig {
	cfg := SimConfig{
		APIBaseURL:  strings.TrimRight(getEnv("SIM_API_BASE_URL", "http://localhost:8080"), "/"),
		Duration:    getDuration("SIM_DURATION", 30*time.Second),
		Workers:     getInt("SIM_WORKERS", 10),
		Patients:    getInt("SIM_PATIENTS", 20),
		Days:        getInt("SIM_DAYS", 3),
		BookRatio:   getFloat("SIM_BOOK_RATIO", 0.5),
		CancelRatio: getFloat("SIM_CANCEL_RATIO", 0.2),
		ReadRatio:   getFloat("SIM_READ_RATIO", 0.3),
	}

	total := cfg.BookRatio + cfg.CancelRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookRatio /= total
		cfg.CancelRatio /= total
		cfg.ReadRatio /= total
	}

	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	if cfg.Patients <= 0 {
		return fmt.Errorf("SIM_PATIENTS must be > 0")
	}
	if cfg.Days <= 0 {
		return fmt.Errorf("SIM_DAYS must be > 0")
	}
	return nil
}

// upcomingWeekdays returns the next n bookable dates after from.
func upcomingWeekdays(from time.Time, n int) []string {
	dates := make([]string, 0, n)
	for d := from.AddDate(0, 0, 1); len(dates) < n; d = d.AddDate(0, 0, 1) {
		if schedule.IsWeekend(d) {
			continue
		}
		dates = append(dates, d.Format(schedule.DateLayout))
	}
	return dates
}

func (s *Simulator) registerPatients(ctx context.Context) error {
	runID := uuid.NewString()[:8]
	for i := 0; i < s.config.Patients; i++ {
		body := map[string]string{
			"name":     gofakeit.Name(),
			"email":    fmt.Sprintf("sim-%s-%03d@example.com", runID, i),
			"password": "simulate123",
		}

		var resp struct {
			User  struct{ ID uuid.UUID } `json:"user"`
			Token string                 `json:"token"`
		}
		code, err := s.call(ctx, http.MethodPost, "/auth/register", "", body, &resp)
		if err != nil {
			return err
		}
		if code != http.StatusCreated {
			return fmt.Errorf("register returned %d", code)
		}
		s.patients = append(s.patients, &patient{id: resp.User.ID, token: resp.Token})
	}
	return nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	log.Printf("starting simulation for %s with %d workers", s.config.Duration, s.config.Workers)

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	log.Println("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for {
		select {
		case <-ctx.Done():
			return
		default:
			p := s.patients[rng.Intn(len(s.patients))]
			r := rng.Float64()
			switch {
			case r < s.config.BookRatio:
				s.doBooking(ctx, rng, p)
			case r < s.config.BookRatio+s.config.CancelRatio:
				s.doCancel(ctx, rng, p)
			case rng.Intn(2) == 0:
				s.doAvailable(ctx, rng)
			default:
				s.doListMine(ctx, p)
			}
		}
	}
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand, p *patient) {
	slots := schedule.Slots()
	body := map[string]string{
		"date": s.dates[rng.Intn(len(s.dates))],
		"time": slots[rng.Intn(len(slots))],
	}

	var resp struct {
		Appointment struct {
			ID        uuid.UUID `json:"id"`
			RainAlert bool      `json:"rainAlert"`
		} `json:"appointment"`
	}

	start := time.Now()
	code, err := s.call(ctx, http.MethodPost, "/appointments", p.token, body, &resp)
	latency := time.Since(start)
	if ctx.Err() != nil {
		return
	}

	success := err == nil && code == http.StatusCreated
	if success {
		p.add(resp.Appointment.ID)
		if resp.Appointment.RainAlert {
			atomic.AddInt64(&s.metrics.Enrichments, 1)
		}
	}
	s.metrics.Booking.Record(latency, success, err == nil && code == http.StatusConflict)
}

func (s *Simulator) doCancel(ctx context.Context, rng *rand.Rand, p *patient) {
	id, ok := p.pick(rng)
	if !ok {
		return
	}

	start := time.Now()
	code, err := s.call(ctx, http.MethodPatch, "/appointments/"+id.String()+"/cancel", p.token, nil, nil)
	latency := time.Since(start)
	if ctx.Err() != nil {
		return
	}

	s.metrics.Cancel.Record(latency, err == nil && code == http.StatusOK, err == nil && code == http.StatusConflict)
}

func (s *Simulator) doAvailable(ctx context.Context, rng *rand.Rand) {
	date := s.dates[rng.Intn(len(s.dates))]

	start := time.Now()
	code, err := s.call(ctx, http.MethodGet, "/appointments/available?date="+date, "", nil, nil)
	latency := time.Since(start)
	if ctx.Err() != nil {
		return
	}

	s.metrics.Available.Record(latency, err == nil && code == http.StatusOK, false)
}

func (s *Simulator) doListMine(ctx context.Context, p *patient) {
	start := time.Now()
	code, err := s.call(ctx, http.MethodGet, "/appointments/me", p.token, nil, nil)
	latency := time.Since(start)
	if ctx.Err() != nil {
		return
	}

	s.metrics.ListMine.Record(latency, err == nil && code == http.StatusOK, false)
}

// VerifyExclusivity collects every patient's bookings and fails when a
// (date, time) pair is held by more than one live appointment.
func (s *Simulator) VerifyExclusivity(ctx context.Context) error {
	held := make(map[string]int)
	for _, p := range s.patients {
		var resp struct {
			Appointments []struct {
				Date   string `json:"date"`
				Time   string `json:"time"`
				Status string `json:"status"`
			} `json:"appointments"`
		}
		code, err := s.call(ctx, http.MethodGet, "/appointments/me", p.token, nil, &resp)
		if err != nil {
			return err
		}
		if code != http.StatusOK {
			return fmt.Errorf("list appointments returned %d", code)
		}
		for _, a := range resp.Appointments {
			if a.Status != "CANCELED" {
				held[a.Date+" "+a.Time]++
			}
		}
	}

	var violations []string
	for slot, n := range held {
		if n > 1 {
			violations = append(violations, fmt.Sprintf("%s held %d times", slot, n))
		}
	}
	if len(violations) > 0 {
		sort.Strings(violations)
		return fmt.Errorf("%d double-booked slots: %s", len(violations), strings.Join(violations, "; "))
	}

	fmt.Printf("Exclusivity: OK (%d live bookings, no slot held twice)\n", len(held))
	return nil
}

func (s *Simulator) call(ctx context.Context, method, path, token string, body, dst any) (int, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return 0, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, &buf)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if dst != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
			return resp.StatusCode, fmt.Errorf("decode %s %s: %w", method, path, err)
		}
	}
	return resp.StatusCode, nil
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Printf("Bookings with rain alert: %d\n", atomic.LoadInt64(&s.metrics.Enrichments))
	fmt.Println()

	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Cancel", &s.metrics.Cancel)
	printOperationReport("Available slots", &s.metrics.Available)
	printOperationReport("List mine", &s.metrics.ListMine)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)

	avg, min, max, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), min.Round(time.Millisecond), max.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
