package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/abelzeko/river-alert/internal/detector"
	"github.com/abelzeko/river-alert/internal/entities"
	"github.com/google/go-cmp/cmp"
)

func TestPushNotifierSend(t *testing.T) {
	var got pushRequest
	var auth, contentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		contentType = r.Header.Get("Content-Type")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("failed to decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, "{}")
	}))
	defer server.Close()

	n, err := NewPushNotifier(server.URL, "secret", "U123")
	if err != nil {
		t.Fatalf("NewPushNotifier failed: %v", err)
	}
	if err := n.Send(context.Background(), "น้ำขึ้น"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	want := pushRequest{To: "U123", Messages: []pushMessage{{Type: "text", Text: "น้ำขึ้น"}}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("unexpected payload (-want +got):\n%s", diff)
	}
	if auth != "Bearer secret" {
		t.Errorf("unexpected Authorization header %q", auth)
	}
	if contentType != "application/json" {
		t.Errorf("unexpected Content-Type %q", contentType)
	}
}

func TestPushNotifierRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"message":"Authentication failed"}`)
	}))
	defer server.Close()

	n, _ := NewPushNotifier(server.URL, "bad", "U123")
	err := n.Send(context.Background(), "hello")

	var ne *NotifyError
	if !errors.As(err, &ne) {
		t.Fatalf("expected *NotifyError, got %v", err)
	}
	if ne.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected status 401, got %d", ne.StatusCode)
	}
	if !strings.Contains(ne.Body, "Authentication failed") {
		t.Errorf("expected body to be carried, got %q", ne.Body)
	}
}

func TestPushNotifierUnreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	endpoint := server.URL
	server.Close()

	n, _ := NewPushNotifier(endpoint, "secret", "U123")
	err := n.Send(context.Background(), "hello")
	var ne *NotifyError
	if !errors.As(err, &ne) {
		t.Fatalf("expected *NotifyError, got %v", err)
	}
	if ne.StatusCode != 0 || ne.Err == nil {
		t.Errorf("expected transport error without status, got %+v", ne)
	}
}

func TestNewPushNotifierRequiresCredentials(t *testing.T) {
	if _, err := NewPushNotifier("", "", "U123"); err == nil {
		t.Error("expected error for missing token")
	}
	if _, err := NewPushNotifier("", "secret", ""); err == nil {
		t.Error("expected error for missing recipient")
	}
	n, err := NewPushNotifier("", "secret", "U123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.endpoint != DefaultPushEndpoint {
		t.Errorf("expected default endpoint, got %q", n.endpoint)
	}
}

func telegramServer(t *testing.T, sendOK bool) (*httptest.Server, *string) {
	t.Helper()
	var sentText string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/getMe"):
			io.WriteString(w, `{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"river","username":"river_bot"}}`)
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			body, _ := io.ReadAll(r.Body)
			values, _ := url.ParseQuery(string(body))
			sentText = values.Get("text")
			if !sendOK {
				io.WriteString(w, `{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`)
				return
			}
			io.WriteString(w, `{"ok":true,"result":{"message_id":7,"date":0,"chat":{"id":42,"type":"private"}}}`)
		default:
			http.NotFound(w, r)
		}
	}))
	return server, &sentText
}

func TestTelegramNotifierSend(t *testing.T) {
	server, sent := telegramServer(t, true)
	defer server.Close()

	n, err := NewTelegramNotifier(server.URL+"/bot%s/%s", "token", "42")
	if err != nil {
		t.Fatalf("NewTelegramNotifier failed: %v", err)
	}
	if err := n.Send(context.Background(), "ระดับน้ำ 12.34 ม."); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if *sent != "ระดับน้ำ 12.34 ม." {
		t.Errorf("unexpected message text %q", *sent)
	}
}

func TestTelegramNotifierRejected(t *testing.T) {
	server, _ := telegramServer(t, false)
	defer server.Close()

	n, _ := NewTelegramNotifier(server.URL+"/bot%s/%s", "token", "42")
	err := n.Send(context.Background(), "hello")
	var ne *NotifyError
	if !errors.As(err, &ne) {
		t.Fatalf("expected *NotifyError, got %v", err)
	}
	if ne.StatusCode != 400 || !strings.Contains(ne.Body, "chat not found") {
		t.Errorf("unexpected error %+v", ne)
	}
}

func TestNewTelegramNotifierRejectsBadChatID(t *testing.T) {
	if _, err := NewTelegramNotifier("", "token", "@channel"); err == nil {
		t.Error("expected error for non-numeric chat id")
	}
}

func fp(v float64) *float64 { return &v }

func TestFormat(t *testing.T) {
	loc := time.FixedZone("ICT", 7*60*60)
	reading, err := entities.NewReading("inburi", "อินทร์บุรี", 12.65, fp(13.00), "เฝ้าระวัง",
		entities.StatusWarning, time.Date(2024, 10, 15, 7, 0, 0, 0, loc), entities.KindStaticHTML)
	if err != nil {
		t.Fatalf("NewReading failed: %v", err)
	}
	decision := detector.Decision{Alert: true, Reasons: []string{"magnitude change +0.25m", "near bank (0.35m)"}}

	want := "🌊 สถานี อินทร์บุรี\n" +
		"• ระดับน้ำ: 12.65 ม.\n" +
		"• ระดับตลิ่ง: 13.00 ม.\n" +
		"• สถานะ: เฝ้าระวัง (WARNING)\n" +
		"• ห่างจากตลิ่ง: 0.35 ม.\n" +
		"🕒 รายงานเวลา: 15/10/2024 07:00\n" +
		"📌 magnitude change +0.25m, near bank (0.35m)"
	if got := Format(reading, decision); got != want {
		t.Errorf("unexpected message:\n%s", cmp.Diff(want, got))
	}
}

func TestFormatAboveBankWithoutStatus(t *testing.T) {
	reading, _ := entities.NewReading("inburi", "", 13.05, fp(13.00), "",
		entities.StatusUnknown, time.Date(2024, 10, 15, 7, 0, 0, 0, time.UTC), entities.KindAPI)

	got := Format(reading, detector.Decision{})
	for _, want := range []string{"สถานี inburi", "• สถานะ: UNKNOWN", "สูงกว่าตลิ่ง: 0.05 ม."} {
		if !strings.Contains(got, want) {
			t.Errorf("expected %q in message:\n%s", want, got)
		}
	}
	if strings.Contains(got, "📌") {
		t.Errorf("expected no reasons line:\n%s", got)
	}
}

func TestFormatWithoutBank(t *testing.T) {
	reading, _ := entities.NewReading("inburi", "อินทร์บุรี", 5.5, nil, "ปกติ",
		entities.StatusNormal, time.Date(2024, 10, 15, 7, 0, 0, 0, time.UTC), entities.KindAPI)

	got := Format(reading, detector.Decision{Reasons: []string{"first observation"}})
	if !strings.Contains(got, "ระดับตลิ่ง: ไม่มีข้อมูล") {
		t.Errorf("expected missing bank line:\n%s", got)
	}
	if strings.Contains(got, "ห่างจากตลิ่ง") {
		t.Errorf("distance must be omitted without a bank level:\n%s", got)
	}
}
