package util

import (
	"testing"
	"time"
)

func TestParseBoolEnv(t *testing.T) {
	t.Setenv("QR_TEST_BOOL", "yes")
	if !ParseBoolEnv("QR_TEST_BOOL", false) {
		t.Error("yes should parse as true")
	}
	t.Setenv("QR_TEST_BOOL", "off")
	if ParseBoolEnv("QR_TEST_BOOL", true) {
		t.Error("off should parse as false")
	}
	t.Setenv("QR_TEST_BOOL", "maybe")
	if !ParseBoolEnv("QR_TEST_BOOL", true) {
		t.Error("invalid value should fall back to default")
	}
	if ParseBoolEnv("QR_TEST_UNSET", false) {
		t.Error("unset should fall back to default")
	}
}

func TestParseDurationEnv(t *testing.T) {
	t.Setenv("QR_TEST_DUR", "90s")
	if got := ParseDurationEnv("QR_TEST_DUR", time.Minute); got != 90*time.Second {
		t.Errorf("ParseDurationEnv = %v, want 90s", got)
	}
	t.Setenv("QR_TEST_DUR", "soon")
	if got := ParseDurationEnv("QR_TEST_DUR", time.Minute); got != time.Minute {
		t.Errorf("invalid duration should fall back to default, got %v", got)
	}
}
