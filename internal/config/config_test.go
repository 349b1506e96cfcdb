package config

import "testing"

func validConfig() *Config {
	return &Config{
		Addr:             "0.0.0.0:8080",
		AdminAddr:        "0.0.0.0:8081",
		TickInterval:     1,
		MaxFrameBytes:    1024,
		MaxConnections:   10,
		DefaultBindGroup: "group-test",
		DefaultBindTopic: "topic-test",
		LogLevel:         "info",
		LogFormat:        "json",
	}
}

func TestValidateAccepts(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestValidateRejectsEmptyAddr(t *testing.T) {
	c := validConfig()
	c.Addr = ""
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for empty Addr")
	}
}

func TestValidateRejectsBadLogLevel(t *testing.T) {
	c := validConfig()
	c.LogLevel = "verbose"
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for invalid log level")
	}
}

func TestValidateRejectsNonPositiveTick(t *testing.T) {
	c := validConfig()
	c.TickInterval = 0
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for zero tick interval")
	}
}

func TestValidateRejectsNegativeAcceptLimits(t *testing.T) {
	c := validConfig()
	c.AcceptsPerSecond = -1
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for negative AcceptsPerSecond")
	}
}
