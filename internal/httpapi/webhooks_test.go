package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"

	sqsqueue "auditflow/internal/queue/sqs"
	"auditflow/internal/store"
)

type fakeWebhookStore struct {
	records   []map[string]any
	charge    store.Charge
	found     bool
	completed []string
	purchased []string
	booked    []string
}

func (f *fakeWebhookStore) InsertWebhookRecord(_ context.Context, payload map[string]any, _ time.Time) (int64, error) {
	f.records = append(f.records, payload)
	return int64(len(f.records)), nil
}

func (f *fakeWebhookStore) CompleteChargeByCorrelationID(_ context.Context, correlationID string, _ time.Time) (store.Charge, bool, bool, error) {
	if !f.found {
		return store.Charge{}, false, false, nil
	}
	updated := f.charge.Status == "pending"
	f.charge.Status = "completed"
	f.completed = append(f.completed, correlationID)
	return f.charge, updated, true, nil
}

func (f *fakeWebhookStore) MarkLeadPurchased(_ context.Context, phone string, _ time.Time) error {
	f.purchased = append(f.purchased, phone)
	return nil
}

func (f *fakeWebhookStore) MarkLeadBooked(_ context.Context, phone string, _ time.Time) error {
	f.booked = append(f.booked, phone)
	return nil
}

type fakeProducer struct {
	tasks []sqsqueue.Task
}

func (f *fakeProducer) Enqueue(_ context.Context, task sqsqueue.Task) error {
	f.tasks = append(f.tasks, task)
	return nil
}

func newHooksServer(st *fakeWebhookStore, pr *fakeProducer, token string) *httptest.Server {
	r := mux.NewRouter()
	h := &Webhooks{Store: st, Producer: pr, PaymentToken: token}
	h.Register(r)
	return httptest.NewServer(r)
}

func post(t *testing.T, url, token, body string) *http.Response {
	t.Helper()
	req, _ := http.NewRequest(http.MethodPost, url, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	_ = resp.Body.Close()
	return resp
}

func TestFormWebhookAccepted(t *testing.T) {
	st := &fakeWebhookStore{}
	pr := &fakeProducer{}
	srv := newHooksServer(st, pr, "")
	defer srv.Close()

	body := `{"event":"formResponse","data":{"data":{"name":"Ana Silva","email":"ana@x.com"}}}`
	resp := post(t, srv.URL+"/v1/webhooks/form", "", body)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status %d", resp.StatusCode)
	}
	if len(st.records) != 1 {
		t.Fatalf("records %v", st.records)
	}
	if len(pr.tasks) != 1 || pr.tasks[0].Type != sqsqueue.TaskWebhookProcess || pr.tasks[0].WebhookID != 1 {
		t.Fatalf("tasks %+v", pr.tasks)
	}
}

func TestFormWebhookDoubleEncodedBody(t *testing.T) {
	st := &fakeWebhookStore{}
	pr := &fakeProducer{}
	srv := newHooksServer(st, pr, "")
	defer srv.Close()

	body := `"{\"data\":{\"data\":{\"email\":\"ana@x.com\"}}}"`
	resp := post(t, srv.URL+"/v1/webhooks/form", "", body)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status %d", resp.StatusCode)
	}
	if len(st.records) != 1 {
		t.Fatalf("records %v", st.records)
	}
}

func TestFormWebhookPingIgnored(t *testing.T) {
	st := &fakeWebhookStore{}
	pr := &fakeProducer{}
	srv := newHooksServer(st, pr, "")
	defer srv.Close()

	resp := post(t, srv.URL+"/v1/webhooks/form", "", `{"event":"ping"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	if len(st.records) != 0 || len(pr.tasks) != 0 {
		t.Fatal("ping must not be recorded or enqueued")
	}
}

func TestPaymentWebhookCompletesAndFansOut(t *testing.T) {
	st := &fakeWebhookStore{
		found: true,
		charge: store.Charge{
			ID: 9, Status: "pending", CorrelationID: "corr-9",
			CustomerName: "Ana", CustomerPhone: "5511999990000",
		},
	}
	pr := &fakeProducer{}
	srv := newHooksServer(st, pr, "tok")
	defer srv.Close()

	body := `{"event":"OPENPIX:CHARGE_COMPLETED","charge":{"status":"COMPLETED","correlationID":"corr-9"}}`
	resp := post(t, srv.URL+"/v1/webhooks/payment", "tok", body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}

	if len(st.purchased) != 1 || st.purchased[0] != "5511999990000" {
		t.Fatalf("purchased %v", st.purchased)
	}
	if len(pr.tasks) != 2 {
		t.Fatalf("tasks %+v", pr.tasks)
	}
	if pr.tasks[0].Type != sqsqueue.TaskNotifyPurchase || pr.tasks[1].Type != sqsqueue.TaskCRMPurchase {
		t.Fatalf("task types %s %s", pr.tasks[0].Type, pr.tasks[1].Type)
	}
	// Both jobs carry only the charge id; the worker reloads the row.
	if pr.tasks[0].ChargeID != 9 || pr.tasks[0].Notify != nil || pr.tasks[1].ChargeID != 9 {
		t.Fatalf("fan-out tasks %+v", pr.tasks)
	}
}

func TestPaymentWebhookDuplicateDeliveryNoFanOut(t *testing.T) {
	st := &fakeWebhookStore{
		found:  true,
		charge: store.Charge{ID: 9, Status: "completed", CorrelationID: "corr-9"},
	}
	pr := &fakeProducer{}
	srv := newHooksServer(st, pr, "")
	defer srv.Close()

	body := `{"event":"OPENPIX:CHARGE_COMPLETED","charge":{"status":"COMPLETED","correlationID":"corr-9"}}`
	resp := post(t, srv.URL+"/v1/webhooks/payment", "", body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	if len(pr.tasks) != 0 {
		t.Fatalf("duplicate must not fan out, got %+v", pr.tasks)
	}
}

func TestPaymentWebhookAuth(t *testing.T) {
	srv := newHooksServer(&fakeWebhookStore{}, &fakeProducer{}, "tok")
	defer srv.Close()

	resp := post(t, srv.URL+"/v1/webhooks/payment", "wrong", `{}`)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status %d", resp.StatusCode)
	}
}

func TestPaymentWebhookTestPing(t *testing.T) {
	pr := &fakeProducer{}
	srv := newHooksServer(&fakeWebhookStore{}, pr, "")
	defer srv.Close()

	resp := post(t, srv.URL+"/v1/webhooks/payment", "", `{"evento":"teste_webhook"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	if len(pr.tasks) != 0 {
		t.Fatal("ping must not fan out")
	}
}

func TestPaymentWebhookUnknownChargeBenign(t *testing.T) {
	st := &fakeWebhookStore{found: false}
	pr := &fakeProducer{}
	srv := newHooksServer(st, pr, "")
	defer srv.Close()

	body := `{"event":"OPENPIX:CHARGE_COMPLETED","charge":{"status":"COMPLETED","correlationID":"stranger"}}`
	resp := post(t, srv.URL+"/v1/webhooks/payment", "", body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	if len(pr.tasks) != 0 {
		t.Fatal("unknown charge must not fan out")
	}
}

func TestBookingWebhookFansOut(t *testing.T) {
	st := &fakeWebhookStore{}
	pr := &fakeProducer{}
	srv := newHooksServer(st, pr, "")
	defer srv.Close()

	body := `{
		"triggerEvent": "BOOKING_CREATED",
		"payload": {
			"attendees": [{"name":"Ana","email":"ana@x.com","phoneNumber":"+55 11 99999-0000"}],
			"organizer": {"name":"Org","email":"org@x.com"}
		}
	}`
	resp := post(t, srv.URL+"/v1/webhooks/booking", "", body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}

	if len(st.booked) != 1 || st.booked[0] != "5511999990000" {
		t.Fatalf("booked %v", st.booked)
	}
	if len(pr.tasks) != 2 || pr.tasks[0].Type != sqsqueue.TaskNotifyBooking || pr.tasks[1].Type != sqsqueue.TaskCRMBooking {
		t.Fatalf("tasks %+v", pr.tasks)
	}
	if pr.tasks[1].Booking.OrganizerEmail != "org@x.com" {
		t.Fatalf("booking info %+v", pr.tasks[1].Booking)
	}
}

func TestBookingWebhookOtherEventIgnored(t *testing.T) {
	pr := &fakeProducer{}
	srv := newHooksServer(&fakeWebhookStore{}, pr, "")
	defer srv.Close()

	resp := post(t, srv.URL+"/v1/webhooks/booking", "", `{"triggerEvent":"BOOKING_CANCELLED","payload":{"attendees":[{"email":"a@b.c"}]}}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	if len(pr.tasks) != 0 {
		t.Fatal("other events must not fan out")
	}
}
