package config

import (
	"strings"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("BIDRIDE_AUTH_JWT_SECRET", "dev-secret")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTP.Addr != ":8080" {
		t.Errorf("HTTP.Addr = %q", cfg.HTTP.Addr)
	}
	if cfg.Matching.RadiusKm != 8 || cfg.Matching.TickSeconds != 5 {
		t.Errorf("matching defaults = %+v", cfg.Matching)
	}
	if cfg.Matching.Source != SourceScan {
		t.Errorf("Matching.Source = %q", cfg.Matching.Source)
	}
	if cfg.Driver.DepositRequired != 3000 {
		t.Errorf("DepositRequired = %d", cfg.Driver.DepositRequired)
	}
	if cfg.Pricing.Currency != "RS" || cfg.Pricing.AvgSpeedKmH != 30 {
		t.Errorf("pricing defaults = %+v", cfg.Pricing)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("BIDRIDE_AUTH_JWT_SECRET", "dev-secret")
	t.Setenv("BIDRIDE_MATCH_RADIUS_KM", "5")
	t.Setenv("BIDRIDE_MATCH_SOURCE", "REDIS")
	t.Setenv("BIDRIDE_EVENTS_BROKER", "kafka")
	t.Setenv("BIDRIDE_EVENTS_KAFKA_BROKERS", "k1:9092,k2:9092")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Matching.RadiusKm != 5 {
		t.Errorf("RadiusKm = %v", cfg.Matching.RadiusKm)
	}
	if cfg.Matching.Source != SourceRedis {
		t.Errorf("Source = %q", cfg.Matching.Source)
	}
	if len(cfg.Events.KafkaBrokers) != 2 {
		t.Errorf("KafkaBrokers = %v", cfg.Events.KafkaBrokers)
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	var cfg Config
	cfg.Matching.Source = "bogus"
	cfg.Events.Broker = "smtp"
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"MATCH_TICK", "RADIUS_KM", "MATCH_SOURCE", "AVG_SPEED", "EVENTS_BROKER", "JWT_SECRET"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}
