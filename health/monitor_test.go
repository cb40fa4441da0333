package health

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

func TestNewMonitor(t *testing.T) {
	monitor := NewMonitor("bridge")

	if n := len(monitor.Components()); n != 0 {
		t.Errorf("New monitor should have 0 components, got %d", n)
	}
	if got := monitor.AggregateHealth(); !got.IsHealthy() {
		t.Errorf("empty monitor should be healthy, got %s", got.Status)
	}
}

func TestMonitor_Update(t *testing.T) {
	monitor := NewMonitor("bridge")

	monitor.Update("input.mqtt", Status{Component: "wrong", Status: LevelHealthy})

	got, ok := monitor.Get("input.mqtt")
	if !ok {
		t.Fatal("component should exist after update")
	}
	if got.Component != "input.mqtt" {
		t.Errorf("Update should override component name, got %s", got.Component)
	}
	if got.Timestamp.IsZero() {
		t.Error("Update should set timestamp if not provided")
	}
}

func TestMonitor_ConvenienceMethodsSanitize(t *testing.T) {
	monitor := NewMonitor("bridge")

	monitor.UpdateHealthy("a", "ok")
	monitor.UpdateDegraded("b", "ping http://influx:8086 failed")
	monitor.UpdateUnhealthy("c", "token=secret123 rejected")

	if s, _ := monitor.Get("a"); !s.IsHealthy() {
		t.Errorf("a should be healthy, got %s", s.Status)
	}
	if s, _ := monitor.Get("b"); !s.IsDegraded() || strings.Contains(s.Message, "influx:8086") {
		t.Errorf("b should be degraded and sanitized, got %s %q", s.Status, s.Message)
	}
	if s, _ := monitor.Get("c"); !s.IsUnhealthy() || strings.Contains(s.Message, "secret123") {
		t.Errorf("c should be unhealthy and sanitized, got %s %q", s.Status, s.Message)
	}
}

func TestMonitor_RemoveAndList(t *testing.T) {
	monitor := NewMonitor("bridge")
	monitor.UpdateHealthy("sink.influxdb", "")
	monitor.UpdateHealthy("input.mqtt", "")

	if got := monitor.Components(); fmt.Sprint(got) != "[input.mqtt sink.influxdb]" {
		t.Errorf("Components() = %v", got)
	}

	monitor.Remove("input.mqtt")
	if _, ok := monitor.Get("input.mqtt"); ok {
		t.Error("removed component still present")
	}
	if n := len(monitor.Components()); n != 1 {
		t.Errorf("Components() should hold 1 component, got %d", n)
	}
}

func TestMonitor_ConnectionReporter(t *testing.T) {
	monitor := NewMonitor("bridge")
	report := monitor.ConnectionReporter("natsclient")

	report(true)
	if s, ok := monitor.Get("natsclient"); !ok || !s.IsHealthy() || s.Message != "connected" {
		t.Errorf("after connect got %+v", s)
	}

	report(false)
	if s, _ := monitor.Get("natsclient"); !s.IsUnhealthy() || s.Message != "disconnected" {
		t.Errorf("after disconnect got %+v", s)
	}
	if !monitor.AggregateHealth().IsUnhealthy() {
		t.Error("a lost connection should make the aggregate unhealthy")
	}
}

func TestMonitor_ServeHTTP(t *testing.T) {
	monitor := NewMonitor("mqtt2influxdb")
	monitor.UpdateHealthy("input.mqtt", "connected")

	rec := httptest.NewRecorder()
	monitor.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("healthy status code = %d, want 200", rec.Code)
	}

	var body Status
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Component != "mqtt2influxdb" || len(body.SubStatuses) != 1 {
		t.Errorf("unexpected body: %+v", body)
	}

	monitor.UpdateDegraded("sink.influxdb", "slow")
	rec = httptest.NewRecorder()
	monitor.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("degraded status code = %d, want 200", rec.Code)
	}

	monitor.UpdateUnhealthy("input.mqtt", "connection lost")
	rec = httptest.NewRecorder()
	monitor.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("unhealthy status code = %d, want 503", rec.Code)
	}
}

func TestMonitor_ConcurrentAccess(t *testing.T) {
	monitor := NewMonitor("bridge")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				monitor.UpdateHealthy(fmt.Sprintf("c%d", i), "ok")
			}
		}(i)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = monitor.AggregateHealth()
				_ = monitor.Components()
			}
		}()
	}
	wg.Wait()

	if n := len(monitor.Components()); n != 10 {
		t.Errorf("Components() = %d, want 10", n)
	}
}
