package service

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"github.com/dushixiang/gleam/internal/alert"
	"github.com/dushixiang/gleam/internal/config"
)

type failingNotifier struct{ err error }

func (f failingNotifier) Notify(context.Context, alert.Alert) error { return f.err }

func testAlert() alert.Alert {
	return alert.Alert{
		Type:      alert.Type{Kind: alert.KindGPUTemperature, GPUID: 1},
		Level:     alert.LevelCritical,
		Value:     91,
		Threshold: 75,
		Message:   "GPU 1 temperature at 91.0°C (threshold: 75.0°C)",
		Timestamp: 1_700_000_000,
	}
}

func TestEmailNotifier(t *testing.T) {
	cfg := config.EmailConfig{
		Enabled:  true,
		Host:     "smtp.example.com",
		Port:     587,
		Username: "monitor@example.com",
		To:       []string{"ops@example.com", "oncall@example.com"},
	}
	n := NewEmailNotifier(cfg)
	var sent *gomail.Message
	n.send = func(m *gomail.Message) error {
		sent = m
		return nil
	}

	if err := n.Notify(context.Background(), testAlert()); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if sent == nil {
		t.Fatal("no message sent")
	}
	if got := sent.GetHeader("Subject"); len(got) != 1 || got[0] != "[gleam] critical alert: gpu_1_temp" {
		t.Errorf("subject = %v", got)
	}
	if got := sent.GetHeader("From"); len(got) != 1 || got[0] != "monitor@example.com" {
		t.Errorf("from = %v", got)
	}
	if got := sent.GetHeader("To"); len(got) != 2 {
		t.Errorf("to = %v", got)
	}

	var body bytes.Buffer
	if _, err := sent.WriteTo(&body); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(body.String(), "Threshold: 75.0") {
		t.Errorf("body missing threshold:\n%s", body.String())
	}
}

func TestEmailNotifier_SendError(t *testing.T) {
	n := NewEmailNotifier(config.EmailConfig{Host: "smtp.example.com", To: []string{"ops@example.com"}})
	n.send = func(*gomail.Message) error { return errors.New("connection refused") }
	if err := n.Notify(context.Background(), testAlert()); err == nil || !strings.Contains(err.Error(), "connection refused") {
		t.Errorf("err = %v", err)
	}
}

func TestMultiNotifier(t *testing.T) {
	errA, errB := errors.New("a"), errors.New("b")
	capture := &captureNotifier{}
	m := MultiNotifier{failingNotifier{errA}, capture, failingNotifier{errB}}

	err := m.Notify(context.Background(), testAlert())
	if !errors.Is(err, errA) || !errors.Is(err, errB) {
		t.Errorf("err = %v, want both errors joined", err)
	}
	if len(capture.keys()) != 1 {
		t.Error("a failing notifier stopped delivery to the others")
	}
}

func TestNotifierFor(t *testing.T) {
	cfg := config.Default().Alerts
	if n := NotifierFor(zap.NewNop(), cfg).(MultiNotifier); len(n) != 1 {
		t.Errorf("notifiers = %d, want log only", len(n))
	}
	cfg.Email = config.EmailConfig{Enabled: true, Host: "smtp.example.com", Port: 25, To: []string{"ops@example.com"}}
	if n := NotifierFor(zap.NewNop(), cfg).(MultiNotifier); len(n) != 2 {
		t.Errorf("notifiers = %d, want log and email", len(n))
	}
}
