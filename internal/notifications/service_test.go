package notifications_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"planproc/internal/config"
	"planproc/internal/notifications"
)

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.NotifyPlanCompleted(context.Background(), "p1", 4, 3); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	tests := []struct {
		name           string
		notify         func(svc notifications.Service) error
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
	}{
		{
			name: "plan completed",
			notify: func(svc notifications.Service) error {
				return svc.NotifyPlanCompleted(context.Background(), "plan-42", 12, 10)
			},
			expectTitle:   "PlanProc - Plan Complete",
			expectMessage: "Plan processed: plan-42 (10 of 12 sheets valid)",
			expectTags:    "planproc,plan,completed",
		},
		{
			name: "plan failed",
			notify: func(svc notifications.Service) error {
				return svc.NotifyPlanFailed(context.Background(), "plan-42", "timeout")
			},
			expectTitle:    "PlanProc - Plan Failed",
			expectMessage:  "Plan failed: plan-42\nReason: timeout",
			expectTags:     "planproc,plan,failed",
			expectPriority: "high",
		},
		{
			name: "error",
			notify: func(svc notifications.Service) error {
				return svc.NotifyError(context.Background(), errors.New("sqlite locked"), "plan store")
			},
			expectTitle:    "PlanProc - Error",
			expectMessage:  "Error with plan store: sqlite locked",
			expectTags:     "planproc,error,alert",
			expectPriority: "high",
		},
		{
			name: "test notification",
			notify: func(svc notifications.Service) error {
				return svc.TestNotification(context.Background())
			},
			expectTitle:    "PlanProc - Test",
			expectMessage:  "Notification system test",
			expectTags:     "planproc,test",
			expectPriority: "low",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var captured struct {
				title    string
				tags     string
				priority string
				body     string
			}

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Fatalf("unexpected method: %s", r.Method)
				}
				captured.title = r.Header.Get("Title")
				captured.tags = r.Header.Get("Tags")
				captured.priority = r.Header.Get("Priority")
				body, err := io.ReadAll(r.Body)
				if err != nil {
					t.Fatalf("read body: %v", err)
				}
				captured.body = string(body)
				_ = r.Body.Close()
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			cfg := config.Default()
			cfg.Notifications.NtfyTopic = server.URL
			cfg.Notifications.RequestTimeout = 5
			cfg.Notifications.Completion = true
			cfg.Notifications.Failure = true

			svc := notifications.NewService(&cfg)
			if err := tc.notify(svc); err != nil {
				t.Fatalf("notification returned error: %v", err)
			}

			if captured.title != tc.expectTitle {
				t.Fatalf("expected title %q, got %q", tc.expectTitle, captured.title)
			}
			if captured.body != tc.expectMessage {
				t.Fatalf("expected message %q, got %q", tc.expectMessage, captured.body)
			}
			if captured.tags != tc.expectTags {
				t.Fatalf("expected tags %q, got %q", tc.expectTags, captured.tags)
			}
			if captured.priority != tc.expectPriority {
				t.Fatalf("expected priority %q, got %q", tc.expectPriority, captured.priority)
			}
		})
	}
}

func TestNtfyServiceHonorsSuppressionToggles(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("unexpected call for suppressed notification: %s", r.URL.String())
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.Completion = false
	cfg.Notifications.Failure = false

	svc := notifications.NewService(&cfg)
	if err := svc.NotifyPlanCompleted(context.Background(), "p1", 3, 3); err != nil {
		t.Fatalf("suppressed completion returned error: %v", err)
	}
	if err := svc.NotifyPlanFailed(context.Background(), "p1", "timeout"); err != nil {
		t.Fatalf("suppressed failure returned error: %v", err)
	}
}

func TestNtfyServiceRateLimitsErrors(t *testing.T) {
	var requests atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		_, _ = io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.ErrorsPerMinute = 1
	cfg.Notifications.ErrorBurst = 2

	svc := notifications.NewService(&cfg)
	for i := 0; i < 10; i++ {
		if err := svc.NotifyError(context.Background(), errors.New("worker lost"), "dispatch"); err != nil {
			t.Fatalf("NotifyError returned error: %v", err)
		}
	}
	if got := requests.Load(); got != 2 {
		t.Fatalf("expected burst of 2 requests, got %d", got)
	}
}
