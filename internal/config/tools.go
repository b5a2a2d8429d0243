package config

import (
	"errors"
	"time"

	"github.com/joho/godotenv"
)

// SeedConfig drives cmd/seed.
type SeedConfig struct {
	PostgresDSN  string
	Companies    int
	Providers    int // per company
	Rooms        int // per company
	Patients     int // per company
	Timezone     string
	FakerSeed    uint64 // 0 seeds from the clock
	ReportEvery  time.Duration
	ReportTarget string // recipient of the seeded weekly report, empty skips it
}

func LoadSeed() (SeedConfig, error) {
	_ = godotenv.Load()

	cfg := SeedConfig{
		PostgresDSN:  getEnv("POSTGRES_DSN", ""),
		Companies:    getInt("SEED_COMPANIES", 1),
		Providers:    getInt("SEED_PROVIDERS", 8),
		Rooms:        getInt("SEED_ROOMS", 3),
		Patients:     getInt("SEED_PATIENTS", 2000),
		Timezone:     getEnv("PRACTICE_TIMEZONE", "UTC"),
		FakerSeed:    uint64(getInt("SEED_FAKER_SEED", 0)),
		ReportEvery:  getDuration("SEED_REPORT_EVERY", 7*24*time.Hour),
		ReportTarget: getEnv("SEED_REPORT_RECIPIENT", "practice-manager@example.com"),
	}
	if cfg.PostgresDSN == "" {
		return SeedConfig{}, errors.New("POSTGRES_DSN is required")
	}
	if cfg.Companies <= 0 || cfg.Providers <= 0 {
		return SeedConfig{}, errors.New("SEED_COMPANIES and SEED_PROVIDERS must be > 0")
	}
	if cfg.Rooms < 0 || cfg.Patients < 0 {
		return SeedConfig{}, errors.New("SEED_ROOMS and SEED_PATIENTS must not be negative")
	}
	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		return SeedConfig{}, err
	}
	return cfg, nil
}

// SimConfig drives cmd/simulate. Operation ratios are normalised to sum to 1.
type SimConfig struct {
	APIBaseURL     string
	PostgresDSN    string
	CompanyID      string // empty picks the company with the most providers
	Duration       time.Duration
	Workers        int
	Days           int // availability horizon starting tomorrow
	HotSlots       int // bookings draw from the first N open slots to force contention
	BookingRatio   float64
	CancelRatio    float64
	ReadRatio      float64
	PatientLimit   int
	RequestTimeout time.Duration
}

func LoadSim() (SimConfig, error) {
	_ = godotenv.Load()

	cfg := SimConfig{
		APIBaseURL:     getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		PostgresDSN:    getEnv("POSTGRES_DSN", ""),
		CompanyID:      getEnv("SIM_COMPANY_ID", ""),
		Duration:       getDuration("SIM_DURATION", 30*time.Second),
		Workers:        getInt("SIM_WORKERS", 10),
		Days:           getInt("SIM_DAYS", 5),
		HotSlots:       getInt("SIM_HOT_SLOTS", 20),
		BookingRatio:   getFloat("SIM_BOOKING_RATIO", 0.5),
		CancelRatio:    getFloat("SIM_CANCEL_RATIO", 0.1),
		ReadRatio:      getFloat("SIM_READ_RATIO", 0.4),
		PatientLimit:   getInt("SIM_PATIENT_LIMIT", 4000),
		RequestTimeout: getDuration("SIM_REQUEST_TIMEOUT", 10*time.Second),
	}

	if cfg.PostgresDSN == "" {
		return SimConfig{}, errors.New("POSTGRES_DSN is required")
	}
	if cfg.Workers <= 0 {
		return SimConfig{}, errors.New("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return SimConfig{}, errors.New("SIM_DURATION must be > 0")
	}
	if cfg.Days <= 0 || cfg.HotSlots <= 0 {
		return SimConfig{}, errors.New("SIM_DAYS and SIM_HOT_SLOTS must be > 0")
	}

	total := cfg.BookingRatio + cfg.CancelRatio + cfg.ReadRatio
	if total <= 0 {
		return SimConfig{}, errors.New("at least one SIM_*_RATIO must be > 0")
	}
	cfg.BookingRatio /= total
	cfg.CancelRatio /= total
	cfg.ReadRatio /= total

	return cfg, nil
}
