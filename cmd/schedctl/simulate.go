package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/hackgods/clinic-appointment-scheduling/internal/appointment"
	"github.com/hackgods/clinic-appointment-scheduling/internal/auth"
	"github.com/hackgods/clinic-appointment-scheduling/internal/config"
)

type simConfig struct {
	BaseURL    string
	DoctorID   uuid.UUID
	Date       string
	Start      string
	Slots      int
	Contenders int
	Timeout    time.Duration
	JWTSecret  string
}

type operationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	mu        sync.Mutex
	latencies []time.Duration
}

func (om *operationMetrics) Record(latency time.Duration, status int, err error) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case err == nil && (status == http.StatusCreated || status == http.StatusOK):
		atomic.AddInt64(&om.Success, 1)
	case err == nil && status == http.StatusConflict:
		atomic.AddInt64(&om.Conflict, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.latencies = append(om.latencies, latency)
	om.mu.Unlock()
}

func (om *operationMetrics) Stats() (avg, p50, p95, max time.Duration) {
	om.mu.Lock()
	latencies := slices.Clone(om.latencies)
	om.mu.Unlock()

	if len(latencies) == 0 {
		return 0, 0, 0, 0
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	pick := func(pct int) time.Duration {
		idx := len(latencies) * pct / 100
		if idx >= len(latencies) {
			idx = len(latencies) - 1
		}
		return latencies[idx]
	}
	return sum / time.Duration(len(latencies)), pick(50), pick(95), latencies[len(latencies)-1]
}

type simulator struct {
	cfg    simConfig
	client *http.Client

	booking   operationMetrics
	slotReads operationMetrics

	// winners per slot time; more than one is a double booking
	winners map[string]int
	stale   []string
}

func simulateCmd() *cobra.Command {
	var (
		sc       simConfig
		doctorID string
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Race concurrent patients for the same slots and report the outcome",
		Long: "For each slot, --contenders patients POST the same booking at once. Exactly one " +
			"request per slot should get 201 and the rest 409.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			sc.JWTSecret = cfg.JWTSecret

			if sc.DoctorID, err = uuid.Parse(doctorID); err != nil {
				return fmt.Errorf("--doctor must be a UUID: %w", err)
			}
			if sc.Date == "" {
				sc.Date = time.Now().AddDate(0, 0, 7).Format(appointment.DateLayout)
			}
			if sc.Slots <= 0 || sc.Contenders <= 0 {
				return fmt.Errorf("--slots and --contenders must be > 0")
			}

			sim := &simulator{
				cfg:     sc,
				client:  &http.Client{Timeout: sc.Timeout},
				winners: make(map[string]int),
			}
			if err := sim.Run(cmd.Context()); err != nil {
				return err
			}
			return sim.PrintReport()
		},
	}

	cmd.Flags().StringVar(&sc.BaseURL, "base-url", "http://localhost:8080", "API base URL")
	cmd.Flags().StringVar(&doctorID, "doctor", "", "doctor id to book against (required)")
	cmd.Flags().StringVar(&sc.Date, "date", "", "YYYY-MM-DD, defaults to one week from today")
	cmd.Flags().StringVar(&sc.Start, "start", "09:00", "first slot time")
	cmd.Flags().IntVar(&sc.Slots, "slots", 8, "number of consecutive 30 minute slots to race for")
	cmd.Flags().IntVar(&sc.Contenders, "contenders", 20, "concurrent patients per slot")
	cmd.Flags().DurationVar(&sc.Timeout, "timeout", 10*time.Second, "per request timeout")
	_ = cmd.MarkFlagRequired("doctor")
	return cmd
}

func (s *simulator) Run(ctx context.Context) error {
	start, err := appointment.ParseTimeOfDay(s.cfg.Start)
	if err != nil {
		return err
	}
	var h, m int
	if _, err := fmt.Sscanf(start, "%d:%d", &h, &m); err != nil {
		return err
	}

	for i := 0; i < s.cfg.Slots; i++ {
		minutes := h*60 + m + i*appointment.SlotStep
		if minutes >= 24*60 {
			break
		}
		slot := fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
		if err := s.race(ctx, slot); err != nil {
			return err
		}
		s.checkSlotGone(ctx, slot)
	}
	return nil
}

func (s *simulator) race(ctx context.Context, slot string) error {
	tokens := make([]string, s.cfg.Contenders)
	for i := range tokens {
		tok, err := auth.IssueToken(s.cfg.JWTSecret, appointment.Actor{ID: uuid.New(), Role: appointment.RolePatient}, time.Hour)
		if err != nil {
			return err
		}
		tokens[i] = tok
	}

	body, _ := json.Marshal(map[string]string{
		"doctor":          s.cfg.DoctorID.String(),
		"appointmentDate": s.cfg.Date,
		"appointmentTime": slot,
		"reason":          "Load simulation booking",
	})

	var (
		wg   sync.WaitGroup
		won  atomic.Int32
		gate = make(chan struct{})
	)
	for _, tok := range tokens {
		wg.Add(1)
		go func(tok string) {
			defer wg.Done()
			<-gate

			req, _ := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.BaseURL+"/appointments", bytes.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Authorization", "Bearer "+tok)

			begin := time.Now()
			resp, err := s.client.Do(req)
			status := 0
			if err == nil {
				status = resp.StatusCode
				resp.Body.Close()
			}
			s.booking.Record(time.Since(begin), status, err)
			if status == http.StatusCreated {
				won.Add(1)
			}
		}(tok)
	}
	close(gate)
	wg.Wait()

	s.winners[slot] = int(won.Load())
	return nil
}

// checkSlotGone reads the public slot list and records slots still offered after being won.
func (s *simulator) checkSlotGone(ctx context.Context, slot string) {
	if s.winners[slot] == 0 {
		return
	}
	url := fmt.Sprintf("%s/doctors/%s/slots?date=%s", s.cfg.BaseURL, s.cfg.DoctorID, s.cfg.Date)
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)

	begin := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		s.slotReads.Record(time.Since(begin), 0, err)
		return
	}
	defer resp.Body.Close()
	s.slotReads.Record(time.Since(begin), resp.StatusCode, nil)

	var out struct {
		AvailableSlots []string `json:"availableSlots"`
	}
	if resp.StatusCode == http.StatusOK && json.NewDecoder(resp.Body).Decode(&out) == nil {
		if slices.Contains(out.AvailableSlots, slot) {
			s.stale = append(s.stale, slot)
		}
	}
}

func (s *simulator) PrintReport() error {
	fmt.Println("\n" + strings.Repeat("=", 60))
	fmt.Println("SLOT CONTENTION REPORT")
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("Doctor: %s  Date: %s  Contenders/slot: %d\n\n", s.cfg.DoctorID, s.cfg.Date, s.cfg.Contenders)

	printOperationReport("Booking", &s.booking)
	printOperationReport("Slot reads", &s.slotReads)

	slots := make([]string, 0, len(s.winners))
	for slot := range s.winners {
		slots = append(slots, slot)
	}
	sort.Strings(slots)

	var doubled []string
	for _, slot := range slots {
		n := s.winners[slot]
		fmt.Printf("  %s  winners=%d\n", slot, n)
		if n > 1 {
			doubled = append(doubled, slot)
		}
	}

	if len(s.stale) > 0 {
		fmt.Printf("\nslots still offered after booking: %s\n", strings.Join(s.stale, ", "))
	}
	if len(doubled) > 0 {
		return fmt.Errorf("double booking detected in slots %s", strings.Join(doubled, ", "))
	}
	return nil
}

func printOperationReport(name string, om *operationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)
	avg, p50, p95, max := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s p50=%s p95=%s max=%s\n\n",
		avg.Round(time.Millisecond), p50.Round(time.Millisecond),
		p95.Round(time.Millisecond), max.Round(time.Millisecond))
}
