package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
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

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hearwell/clinic-backend/internal/config"
	"github.com/hearwell/clinic-backend/internal/db"
)

// Load generator for the trial engine. Workers deliberately race StartTrial
// over a shared pool of serial numbers, so a healthy run shows a high
// conflict rate with every serial reserved at most once.

type SimConfig struct {
	APIBaseURL  string
	Email       string
	Password    string
	Duration    time.Duration
	Workers     int
	StartRatio  float64
	DecideRatio float64
	ReadRatio   float64
	VisitLimit  int
	SerialLimit int
	PostgresDSN string
}

type DataPool struct {
	Visits  []uuid.UUID
	Serials []string

	mu     sync.RWMutex
	trials []uuid.UUID
}

func (dp *DataPool) AddTrial(id uuid.UUID) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.trials = append(dp.trials, id)
}

func (dp *DataPool) RandomTrial() (uuid.UUID, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.trials) == 0 {
		return uuid.Nil, false
	}
	return dp.trials[rand.Intn(len(dp.trials))], true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, success, conflict bool) {
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

	p50Idx := len(latencies) * 50 / 100
	if p50Idx >= len(latencies) {
		p50Idx = len(latencies) - 1
	}
	p50 = latencies[p50Idx]

	p95Idx := len(latencies) * 95 / 100
	if p95Idx >= len(latencies) {
		p95Idx = len(latencies) - 1
	}
	p95 = latencies[p95Idx]

	return avg, min, max, p50, p95
}

type Metrics struct {
	StartTrial    OperationMetrics
	CompleteTrial OperationMetrics
	ReadTrial     OperationMetrics
	ListAwaiting  OperationMetrics
	ListItems     OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	token   string
	metrics Metrics
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("simulator starting")

	cfg := loadConfig()
	if err := validateConfig(cfg); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	log.Printf("config: duration=%s workers=%d start=%.2f decide=%.2f read=%.2f",
		cfg.Duration, cfg.Workers, cfg.StartRatio, cfg.DecideRatio, cfg.ReadRatio)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		log.Fatalf("load data pool: %v", err)
	}
	log.Printf("loaded: %d open visits, %d in-stock trial serials",
		len(dataPool.Visits), len(dataPool.Serials))

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{Timeout: 10 * time.Second},
	}

	if err := sim.login(ctx); err != nil {
		log.Fatalf("login: %v", err)
	}
	log.Println("authenticated")

	sim.Run()
	sim.PrintReport()
}

func loadConfig() SimConfig {
	baseCfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load base config: %v", err)
	}

	cfg := SimConfig{
		APIBaseURL:  getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Email:       getEnv("SIM_EMAIL", ""),
		Password:    getEnv("SIM_PASSWORD", ""),
		Duration:    getDuration("SIM_DURATION", 30*time.Second),
		Workers:     getInt("SIM_WORKERS", 10),
		StartRatio:  getFloat("SIM_START_RATIO", 0.5),
		DecideRatio: getFloat("SIM_DECIDE_RATIO", 0.2),
		ReadRatio:   getFloat("SIM_READ_RATIO", 0.3),
		VisitLimit:  getInt("SIM_VISIT_LIMIT", 2000),
		SerialLimit: getInt("SIM_SERIAL_LIMIT", 100),
		PostgresDSN: baseCfg.PostgresDSN,
	}

	total := cfg.StartRatio + cfg.DecideRatio + cfg.ReadRatio
	if total > 0 {
		cfg.StartRatio /= total
		cfg.DecideRatio /= total
		cfg.ReadRatio /= total
	}

	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required (set in .env or environment)")
	}
	if cfg.Email == "" || cfg.Password == "" {
		return fmt.Errorf("SIM_EMAIL and SIM_PASSWORD are required")
	}
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	return nil
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	dataPool := &DataPool{}

	rows, err := pool.Query(ctx, `
		SELECT id FROM visits
		WHERE status IN ('Test Pending', 'Decision Pending', 'Follow Up')
		LIMIT $1
	`, cfg.VisitLimit)
	if err != nil {
		return nil, fmt.Errorf("load visits: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		dataPool.Visits = append(dataPool.Visits, id)
	}

	rows, err = pool.Query(ctx, `
		SELECT s.serial_number
		FROM inventory_serials s
		JOIN inventory_items i ON i.id = s.item_id
		WHERE s.status = 'In Stock' AND i.use_in_trial = true
		LIMIT $1
	`, cfg.SerialLimit)
	if err != nil {
		return nil, fmt.Errorf("load serials: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var sn string
		if err := rows.Scan(&sn); err != nil {
			return nil, err
		}
		dataPool.Serials = append(dataPool.Serials, sn)
	}

	if len(dataPool.Visits) == 0 {
		return nil, fmt.Errorf("no open visits loaded, run the seeder first")
	}
	if len(dataPool.Serials) == 0 {
		return nil, fmt.Errorf("no in-stock trial serials loaded")
	}

	return dataPool, nil
}

func (s *Simulator) login(ctx context.Context) error {
	body, _ := json.Marshal(map[string]string{
		"email":    s.config.Email,
		"password": s.config.Password,
	})

	req, err := http.NewRequestWithContext(ctx, "POST", s.config.APIBaseURL+"/auth/login", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("login returned %d: %s", resp.StatusCode, string(b))
	}

	var loginResp struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&loginResp); err != nil {
		return err
	}
	if loginResp.Token == "" {
		return fmt.Errorf("login response had no token")
	}

	s.token = loginResp.Token
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
			r := rng.Float64()
			if r < s.config.StartRatio {
				s.doStartTrial(ctx, rng)
			} else if r < s.config.StartRatio+s.config.DecideRatio {
				s.doCompleteTrial(ctx, rng)
			} else {
				switch rng.Intn(3) {
				case 0:
					s.doReadTrial(ctx, rng)
				case 1:
					s.doListAwaiting(ctx)
				case 2:
					s.doListItems(ctx)
				}
			}
		}
	}
}

func (s *Simulator) do(ctx context.Context, method, path string, payload any) (*http.Response, time.Duration, error) {
	var body io.Reader
	if payload != nil {
		b, _ := json.Marshal(payload)
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, body)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	return resp, time.Since(start), err
}

func (s *Simulator) doStartTrial(ctx context.Context, rng *rand.Rand) {
	visitID := s.pool.Visits[rng.Intn(len(s.pool.Visits))]
	// Serials are intentionally shared between workers to provoke contention.
	serial := s.pool.Serials[rng.Intn(len(s.pool.Serials))]

	resp, latency, err := s.do(ctx, "POST", "/trials", map[string]string{
		"visit_id":      visitID.String(),
		"serial_number": serial,
	})

	success := false
	conflict := false
	if err == nil {
		defer resp.Body.Close()
		switch resp.StatusCode {
		case http.StatusCreated, http.StatusOK:
			success = true
			var trialResp struct {
				ID uuid.UUID `json:"id"`
			}
			if b, _ := io.ReadAll(resp.Body); len(b) > 0 {
				_ = json.Unmarshal(b, &trialResp)
				if trialResp.ID != uuid.Nil {
					s.pool.AddTrial(trialResp.ID)
				}
			}
		case http.StatusConflict, http.StatusNotFound:
			// Lost the race for the serial, or the visit already closed.
			conflict = true
		}
	}

	s.metrics.StartTrial.Record(latency, success, conflict)
}

func (s *Simulator) doCompleteTrial(ctx context.Context, rng *rand.Rand) {
	trialID, ok := s.pool.RandomTrial()
	if !ok {
		return
	}

	decisions := []string{"FOLLOWUP", "DECLINE"}
	payload := map[string]any{
		"decision": decisions[rng.Intn(len(decisions))],
	}

	resp, latency, err := s.do(ctx, "POST", fmt.Sprintf("/trials/%s/complete", trialID), payload)

	success := false
	conflict := false
	if err == nil {
		defer resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			success = true
		} else if resp.StatusCode == http.StatusConflict {
			conflict = true
		}
	}

	s.metrics.CompleteTrial.Record(latency, success, conflict)
}

func (s *Simulator) doReadTrial(ctx context.Context, rng *rand.Rand) {
	trialID, ok := s.pool.RandomTrial()
	if !ok {
		return
	}

	resp, latency, err := s.do(ctx, "GET", fmt.Sprintf("/trials/%s", trialID), nil)

	success := false
	if err == nil {
		defer resp.Body.Close()
		success = resp.StatusCode == http.StatusOK
	}

	s.metrics.ReadTrial.Record(latency, success, false)
}

func (s *Simulator) doListAwaiting(ctx context.Context) {
	resp, latency, err := s.do(ctx, "GET", "/trials/awaiting-stock?limit=20", nil)

	success := false
	if err == nil {
		defer resp.Body.Close()
		success = resp.StatusCode == http.StatusOK
	}

	s.metrics.ListAwaiting.Record(latency, success, false)
}

func (s *Simulator) doListItems(ctx context.Context) {
	resp, latency, err := s.do(ctx, "GET", "/inventory/items?trial_devices=true", nil)

	success := false
	if err == nil {
		defer resp.Body.Close()
		success = resp.StatusCode == http.StatusOK
	}

	s.metrics.ListItems.Record(latency, success, false)
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Printf("Serial pool: %d\n", len(s.pool.Serials))
	fmt.Println()

	printOperationReport("Start Trial", &s.metrics.StartTrial)
	printOperationReport("Complete Trial", &s.metrics.CompleteTrial)
	printOperationReport("Read Trial", &s.metrics.ReadTrial)
	printOperationReport("List Awaiting Stock", &s.metrics.ListAwaiting)
	printOperationReport("List Trial Devices", &s.metrics.ListItems)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	errCount := atomic.LoadInt64(&om.Error)

	avg, min, max, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if errCount > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", errCount, float64(errCount)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), min.Round(time.Millisecond), max.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}

// Helper functions

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
