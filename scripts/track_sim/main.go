// Command track_sim emulates a student device walking through a classroom
// geofence. It replays a scripted accelerometer trace through the PDR and
// fusion pipeline, runs the heartbeat scheduler against a live API, and
// prints each verdict so geofence tuning can be checked end to end.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/presence-api/internal/fusion"
	"github.com/noah-isme/presence-api/internal/models"
	"github.com/noah-isme/presence-api/internal/pdr"
	"github.com/noah-isme/presence-api/internal/sensor"
	"github.com/noah-isme/presence-api/internal/tracking"
	"github.com/noah-isme/presence-api/pkg/config"
)

const gravity = 9.81

func main() {
	var (
		baseURL      string
		token        string
		attendanceID string
		sessionID    string
		mode         string
		duration     time.Duration
		interval     time.Duration
		lat          float64
		lng          float64
		accuracy     float64
		gpsEvery     time.Duration
		timeout      time.Duration
	)

	flag.StringVar(&baseURL, "base", "http://localhost:8080", "API base URL")
	flag.StringVar(&token, "token", "", "Bearer token for the student account")
	flag.StringVar(&attendanceID, "attendance", "", "Attendance record ID")
	flag.StringVar(&sessionID, "session", "", "Session ID")
	flag.StringVar(&mode, "mode", "foreground", "Tracking mode: foreground, background or hidden")
	flag.DurationVar(&duration, "duration", 5*time.Minute, "How long to keep tracking")
	flag.DurationVar(&interval, "heartbeat-interval", 0, "Foreground heartbeat cadence (overrides TRACKING_FOREGROUND_INTERVAL)")
	flag.Float64Var(&lat, "lat", 37.4607, "Starting latitude")
	flag.Float64Var(&lng, "lng", 126.9524, "Starting longitude")
	flag.Float64Var(&accuracy, "accuracy", 12, "Simulated GPS accuracy in meters")
	flag.DurationVar(&gpsEvery, "gps-every", 45*time.Second, "Cadence of simulated GPS re-anchor fixes")
	flag.DurationVar(&timeout, "timeout", 10*time.Second, "HTTP client timeout")
	flag.Parse()

	if token == "" || attendanceID == "" || sessionID == "" {
		log.Fatalf("usage: track_sim -token <jwt> -attendance <id> -session <id> [flags]")
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	// The client stack reads the same TRACKING_* and FUSION_* settings the
	// server documents; a missing .env falls back to package defaults.
	cfg, err := config.Load()
	if err != nil {
		log.Printf("configuration not loaded, using defaults: %v", err)
		cfg = &config.Config{}
	}

	trackCfg := tracking.Config{
		ForegroundInterval: cfg.Tracking.ForegroundInterval,
		BackgroundInterval: cfg.Tracking.BackgroundInterval,
	}
	if interval > 0 {
		trackCfg = tracking.Config{ForegroundInterval: interval, BackgroundInterval: 2 * interval}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	frequencyHz := cfg.Fusion.SensorFrequencyHz
	if frequencyHz <= 0 {
		frequencyHz = 10
	}
	provider := sensor.NewScriptedProvider("sim-accelerometer", sensor.Features{Accelerometer: true}, walkingTrace(60*frequencyHz, frequencyHz))
	manager := sensor.NewManager([]sensor.Provider{provider}, frequencyHz, logger)
	if err := manager.Initialize(ctx); err != nil {
		log.Fatalf("failed to initialize sensors: %v", err)
	}

	engine := fusion.NewEngine(
		fusion.Config{MinGPSAccuracyMeters: cfg.Fusion.MinGPSAccuracyMeters},
		pdr.NewProcessor(pdr.Config{UserHeightCm: cfg.Fusion.UserHeightCm}),
		logger,
	)
	engine.Start(&models.Position{
		Latitude:       lat,
		Longitude:      lng,
		AccuracyMeters: accuracy,
		Timestamp:      time.Now().UTC(),
		Source:         models.PositionSourceGPS,
	})
	defer engine.Stop()

	if err := manager.StartTracking(engine.OnSensorSample, func(err error) {
		logger.Warn("sensor reading failed", zap.Error(err))
	}); err != nil {
		log.Fatalf("failed to start sensor stream: %v", err)
	}
	defer manager.StopTracking()

	sender := &heartbeatSender{
		client:       &http.Client{Timeout: timeout},
		baseURL:      baseURL,
		token:        token,
		attendanceID: attendanceID,
		sessionID:    sessionID,
		done:         stop,
	}

	scheduler := tracking.NewScheduler(trackCfg, sender, engine, noopWakeLock{}, logger)

	runCtx, cancel := context.WithTimeout(ctx, duration)
	defer cancel()

	scheduler.Start(runCtx, tracking.Mode(mode))

	// Drift back toward the anchor on a fixed cadence so the fused track
	// stays inside the fence despite PDR drift.
	ticker := time.NewTicker(gpsEvery)
	defer ticker.Stop()

	for {
		select {
		case <-runCtx.Done():
			scheduler.Stop()
			fmt.Printf("sent %d heartbeats (%d rejected)\n", sender.sent, sender.rejected)
			if sender.rejected > 0 {
				os.Exit(1)
			}
			return
		case now := <-ticker.C:
			engine.OnGPSFix(models.Position{
				Latitude:       lat,
				Longitude:      lng,
				AccuracyMeters: accuracy,
				Timestamp:      now.UTC(),
				Source:         models.PositionSourceGPS,
			})
		}
	}
}

// walkingTrace synthesizes a steady 2 Hz gait: the vertical acceleration
// completes one stride every half second regardless of sample rate.
func walkingTrace(n, frequencyHz int) []models.SensorSample {
	samplesPerStride := frequencyHz / 2
	if samplesPerStride < 2 {
		samplesPerStride = 2
	}
	samples := make([]models.SensorSample, 0, n)
	for i := 0; i < n; i++ {
		phase := 2 * math.Pi * float64(i) / float64(samplesPerStride)
		samples = append(samples, models.SensorSample{
			Acceleration: models.Vector3{
				X: 0.3 * math.Sin(phase/2),
				Y: 0.2 * math.Cos(phase/3),
				Z: gravity + 2.0*math.Sin(phase),
			},
		})
	}
	return samples
}

type heartbeatRequest struct {
	AttendanceID string    `json:"attendanceId"`
	SessionID    string    `json:"sessionId"`
	Latitude     float64   `json:"latitude"`
	Longitude    float64   `json:"longitude"`
	Accuracy     float64   `json:"accuracy"`
	Timestamp    time.Time `json:"timestamp"`
	IsBackground bool      `json:"isBackground"`
	Source       string    `json:"source"`
	Confidence   *float64  `json:"confidence,omitempty"`
	GPSWeight    *float64  `json:"gpsWeight,omitempty"`
	PDRWeight    *float64  `json:"pdrWeight,omitempty"`
}

type heartbeatVerdict struct {
	Success       bool     `json:"success"`
	LocationValid *bool    `json:"locationValid"`
	Distance      *float64 `json:"distance"`
	SessionEnded  bool     `json:"sessionEnded"`
	LowAccuracy   *bool    `json:"lowAccuracy"`
	NewStatus     *string  `json:"newStatus"`
}

type heartbeatEnvelope struct {
	Data heartbeatVerdict `json:"data"`
}

// heartbeatSender posts fused positions to the attendance heartbeat
// endpoint and logs each verdict.
type heartbeatSender struct {
	client       *http.Client
	baseURL      string
	token        string
	attendanceID string
	sessionID    string
	done         func()

	sent     int
	rejected int
}

func (s *heartbeatSender) Send(ctx context.Context, pos models.FusedPosition, background bool) error {
	payload := heartbeatRequest{
		AttendanceID: s.attendanceID,
		SessionID:    s.sessionID,
		Latitude:     pos.Latitude,
		Longitude:    pos.Longitude,
		Accuracy:     pos.AccuracyMeters,
		Timestamp:    pos.Timestamp,
		IsBackground: background,
		Source:       string(pos.Source),
		Confidence:   &pos.Confidence,
		GPSWeight:    &pos.GPSWeight,
		PDRWeight:    &pos.PDRWeight,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal heartbeat: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/api/v1/attendance/heartbeat", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.token)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post heartbeat: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	s.sent++
	if resp.StatusCode != http.StatusOK {
		s.rejected++
		log.Printf("heartbeat rejected: status=%d body=%s", resp.StatusCode, raw)
		return fmt.Errorf("heartbeat status %d", resp.StatusCode)
	}

	var env heartbeatEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	v := env.Data
	switch {
	case v.SessionEnded:
		log.Printf("session ended, stopping")
		s.done()
	case v.LowAccuracy != nil && *v.LowAccuracy:
		log.Printf("heartbeat skipped: accuracy %.0fm too low", pos.AccuracyMeters)
	case v.LocationValid != nil:
		dist := 0.0
		if v.Distance != nil {
			dist = *v.Distance
		}
		status := ""
		if v.NewStatus != nil {
			status = " status=" + *v.NewStatus
		}
		log.Printf("heartbeat ok: valid=%t distance=%.1fm background=%t%s", *v.LocationValid, dist, background, status)
		if v.NewStatus != nil && *v.NewStatus == "left_early" {
			s.done()
		}
	default:
		log.Printf("heartbeat acknowledged")
	}

	return nil
}

// noopWakeLock stands in for the platform wake lock; a CLI process has no
// screen to keep awake.
type noopWakeLock struct{}

func (noopWakeLock) Acquire() error { return nil }

func (noopWakeLock) Release() {}
