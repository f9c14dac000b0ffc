package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"auditflow/internal/domain"
	"auditflow/internal/providers/crm"
	"auditflow/internal/providers/pix"
	sqsqueue "auditflow/internal/queue/sqs"
	"auditflow/internal/render"
	"auditflow/internal/store"
)

type fakeStore struct {
	charges  map[int64]store.Charge
	webhooks map[int64]store.WebhookRecord

	providerDetails []store.ProviderDetails
	doneCalls       []string
	failedCalls     []string
	contactSets     map[int64]int64
	dealSets        map[int64]int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		charges:     make(map[int64]store.Charge),
		webhooks:    make(map[int64]store.WebhookRecord),
		contactSets: make(map[int64]int64),
		dealSets:    make(map[int64]int64),
	}
}

func (f *fakeStore) GetCharge(_ context.Context, id int64) (store.Charge, bool, error) {
	c, ok := f.charges[id]
	return c, ok, nil
}

func (f *fakeStore) LatestChargeByEmail(_ context.Context, email string) (store.Charge, bool, error) {
	for _, c := range f.charges {
		if c.CustomerEmail == email {
			return c, true, nil
		}
	}
	return store.Charge{}, false, nil
}

func (f *fakeStore) LatestChargeByEmailOrPhone(_ context.Context, email, phone string) (store.Charge, bool, error) {
	for _, c := range f.charges {
		if c.CustomerEmail == email || (phone != "" && c.CustomerPhone == phone) {
			return c, true, nil
		}
	}
	return store.Charge{}, false, nil
}

func (f *fakeStore) SetProviderDetails(_ context.Context, in store.ProviderDetails) error {
	f.providerDetails = append(f.providerDetails, in)
	c := f.charges[in.ChargeID]
	c.BRCode = in.BRCode
	f.charges[in.ChargeID] = c
	return nil
}

func (f *fakeStore) SetChargeCRMContact(_ context.Context, chargeID, contactID int64, _ time.Time) error {
	f.contactSets[chargeID] = contactID
	c := f.charges[chargeID]
	if c.CRMContactID == nil {
		c.CRMContactID = &contactID
		f.charges[chargeID] = c
	}
	return nil
}

func (f *fakeStore) SetChargeCRMDeal(_ context.Context, chargeID, dealID int64, _ time.Time) error {
	f.dealSets[chargeID] = dealID
	c := f.charges[chargeID]
	if c.CRMDealID == nil {
		c.CRMDealID = &dealID
		f.charges[chargeID] = c
	}
	return nil
}

func (f *fakeStore) GetWebhookRecord(_ context.Context, id int64) (store.WebhookRecord, bool, error) {
	r, ok := f.webhooks[id]
	return r, ok, nil
}

func (f *fakeStore) ClaimWebhookRecord(_ context.Context, id int64, _ time.Time, _ time.Duration) (bool, error) {
	r, ok := f.webhooks[id]
	if !ok || r.Status == "done" || r.Status == "failed" {
		return false, nil
	}
	r.Status = "processing"
	f.webhooks[id] = r
	return true, nil
}

func (f *fakeStore) MarkWebhookDone(_ context.Context, id int64, filename, fileID string, _ time.Time) error {
	f.doneCalls = append(f.doneCalls, fmt.Sprintf("%d:%s:%s", id, filename, fileID))
	r := f.webhooks[id]
	r.Status = "done"
	f.webhooks[id] = r
	return nil
}

func (f *fakeStore) MarkWebhookFailed(_ context.Context, id int64, msg string, _ time.Time) error {
	f.failedCalls = append(f.failedCalls, fmt.Sprintf("%d:%s", id, msg))
	r := f.webhooks[id]
	r.Status = "failed"
	f.webhooks[id] = r
	return nil
}

type fakePix struct {
	createCalls int
	getCalls    int
	createErr   error
	charge      pix.Charge
}

func (f *fakePix) CreateCharge(_ context.Context, req pix.CreateChargeRequest) (pix.Charge, error) {
	f.createCalls++
	if f.createErr != nil {
		return pix.Charge{}, f.createErr
	}
	out := f.charge
	out.CorrelationID = req.CorrelationID
	return out, nil
}

func (f *fakePix) GetCharge(_ context.Context, correlationID string) (pix.Charge, error) {
	f.getCalls++
	out := f.charge
	out.CorrelationID = correlationID
	return out, nil
}

type fakeChat struct {
	sends []string
	err   error
}

func (f *fakeChat) EnsureSubscriberAndSend(_ context.Context, phone, name, text string) error {
	if f.err != nil {
		return f.err
	}
	f.sends = append(f.sends, phone+"|"+text)
	return nil
}

type fakeCRM struct {
	calls          int
	contactByEmail int64
	userByEmail    int64
	userErr        error
	nextDealID     int64
	updateErr      error
	updates        []int64
}

func (f *fakeCRM) UserIDByEmail(_ context.Context, _ string) (int64, error) {
	f.calls++
	return f.userByEmail, f.userErr
}

func (f *fakeCRM) ContactIDByEmail(_ context.Context, _ string) (int64, error) {
	f.calls++
	return f.contactByEmail, nil
}

func (f *fakeCRM) CreateContact(_ context.Context, _ crm.ContactInput) (int64, error) {
	f.calls++
	return 9001, nil
}

func (f *fakeCRM) CreateDeal(_ context.Context, _ crm.DealInput) (int64, error) {
	f.calls++
	return f.nextDealID, nil
}

func (f *fakeCRM) UpdateDeal(_ context.Context, dealID int64, _ map[string]any) error {
	f.calls++
	f.updates = append(f.updates, dealID)
	return f.updateErr
}

type fakeGenerator struct {
	html string
	err  error
}

func (f *fakeGenerator) ReportHTML(_ context.Context, _ domain.Answers, _ time.Time) (string, error) {
	return f.html, f.err
}

type fakeEngine struct {
	err error
}

func (f *fakeEngine) FitToOnePage(_ context.Context, html string) (render.FitResult, error) {
	if f.err != nil {
		return render.FitResult{}, f.err
	}
	return render.FitResult{
		Document: render.Document{PDF: []byte(html), PageCount: 1},
		HeightMM: 812,
		Passes:   13,
	}, nil
}

type fakeUploader struct {
	uploads []string
	err     error
}

func (f *fakeUploader) Upload(_ context.Context, filename string, _ []byte, _ string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.uploads = append(f.uploads, filename)
	return "s3://bucket/reports/" + filename, nil
}

type fakeProducer struct {
	tasks []sqsqueue.Task
}

func (f *fakeProducer) Enqueue(_ context.Context, task sqsqueue.Task) error {
	f.tasks = append(f.tasks, task)
	return nil
}

type fixture struct {
	store    *fakeStore
	pix      *fakePix
	chat     *fakeChat
	crm      *fakeCRM
	producer *fakeProducer
	uploader *fakeUploader
	proc     *Processor
}

func newFixture() *fixture {
	f := &fixture{
		store:    newFakeStore(),
		pix:      &fakePix{charge: pix.Charge{BRCode: "br-123", QRCodeURL: "http://q", PaymentLinkURL: "http://p"}},
		chat:     &fakeChat{},
		crm:      &fakeCRM{nextDealID: 777},
		producer: &fakeProducer{},
		uploader: &fakeUploader{},
	}
	f.proc = &Processor{
		Store:     f.store,
		Pix:       f.pix,
		Chat:      f.chat,
		CRM:       f.crm,
		Generator: &fakeGenerator{html: "<style>--pageH: 1200mm;</style>ok"},
		Engine:    &fakeEngine{},
		Uploader:  f.uploader,
		Producer:  f.producer,
		Messages: map[string]string{
			MsgPurchase:       "oi {name} {booking_link}",
			MsgBooking:        "agendado {name}",
			MsgSurveyReceived: "recebido {name}",
			MsgSurveyReady:    "pronto {name}",
		},
		BookingLink: "http://book",
		SurveyLink:  "http://survey",
		CRMConf: CRMSettings{
			PipelineID: 1, OriginID: 2, OwnerID: 3,
			PurchaseStageID: 10, BookedStageID: 11,
		},
		MaxAttempts: 3,
		StaleAfter:  time.Minute,
		Now:         func() time.Time { return time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC) },
	}
	return f
}

func TestCreateChargeSuccess(t *testing.T) {
	f := newFixture()
	f.store.charges[1] = store.Charge{ID: 1, CorrelationID: "corr-1", ValueCents: 10000, CustomerEmail: "a@b.c"}

	if err := f.proc.createCharge(context.Background(), 1); err != nil {
		t.Fatalf("createCharge: %v", err)
	}
	if len(f.store.providerDetails) != 1 || f.store.providerDetails[0].BRCode != "br-123" {
		t.Fatalf("provider details not recorded: %+v", f.store.providerDetails)
	}
}

func TestCreateChargeAlreadyProvisioned(t *testing.T) {
	f := newFixture()
	f.store.charges[1] = store.Charge{ID: 1, CorrelationID: "corr-1", BRCode: "already"}

	if err := f.proc.createCharge(context.Background(), 1); err != nil {
		t.Fatalf("createCharge: %v", err)
	}
	if f.pix.createCalls != 0 {
		t.Fatalf("expected no provider calls, got %d", f.pix.createCalls)
	}
}

func TestCreateChargeDuplicateResolvesByFetch(t *testing.T) {
	f := newFixture()
	f.store.charges[1] = store.Charge{ID: 1, CorrelationID: "corr-1"}
	f.pix.createErr = &pix.APIError{Status: 400, Message: "Já existe uma cobrança para este correlationID"}

	if err := f.proc.createCharge(context.Background(), 1); err != nil {
		t.Fatalf("createCharge: %v", err)
	}
	if f.pix.getCalls != 1 {
		t.Fatalf("expected duplicate to resolve via get, got %d get calls", f.pix.getCalls)
	}
	if len(f.store.providerDetails) != 1 || f.store.providerDetails[0].BRCode != "br-123" {
		t.Fatalf("resolved charge not recorded: %+v", f.store.providerDetails)
	}
}

func TestCreateChargePermanentRejection(t *testing.T) {
	f := newFixture()
	f.store.charges[1] = store.Charge{ID: 1, CorrelationID: "corr-1"}
	f.pix.createErr = &pix.APIError{Status: 422, Message: "invalid taxID"}

	err := f.proc.createCharge(context.Background(), 1)
	if !IsPermanent(err) {
		t.Fatalf("expected permanent error, got %v", err)
	}

	// Handle consumes permanent failures instead of redriving them.
	d := sqsqueue.Delivery{Task: sqsqueue.Task{Type: sqsqueue.TaskChargeCreate, ChargeID: 1}, Attempt: 1}
	if err := f.proc.Handle(context.Background(), d); err != nil {
		t.Fatalf("Handle should swallow permanent errors, got %v", err)
	}
}

func TestCreateChargeTransientErrorRetries(t *testing.T) {
	f := newFixture()
	f.store.charges[1] = store.Charge{ID: 1, CorrelationID: "corr-1"}
	f.pix.createErr = &pix.APIError{Status: 503, Message: "down"}

	d := sqsqueue.Delivery{Task: sqsqueue.Task{Type: sqsqueue.TaskChargeCreate, ChargeID: 1}, Attempt: 2}
	if err := f.proc.Handle(context.Background(), d); err == nil {
		t.Fatal("expected error so the queue redelivers")
	}
}

func TestProcessWebhookHappyPath(t *testing.T) {
	f := newFixture()
	f.store.webhooks[7] = store.WebhookRecord{
		ID:     7,
		Status: "queued",
		Payload: map[string]any{
			"data": map[string]any{
				"data": map[string]any{
					"name":  "Ana Silva",
					"email": "ana@x.com",
				},
			},
		},
	}
	f.store.charges[1] = store.Charge{ID: 1, CustomerEmail: "ana@x.com", CustomerPhone: "5511999990000"}

	if err := f.proc.processWebhook(context.Background(), 7); err != nil {
		t.Fatalf("processWebhook: %v", err)
	}

	if len(f.store.doneCalls) != 1 {
		t.Fatalf("expected done, got done=%v failed=%v", f.store.doneCalls, f.store.failedCalls)
	}
	if want := "7:auditoria-7.pdf:s3://bucket/reports/auditoria-7.pdf"; f.store.doneCalls[0] != want {
		t.Fatalf("done call %q, want %q", f.store.doneCalls[0], want)
	}

	// Both survey milestones enqueued for the matched customer.
	var stages []string
	for _, task := range f.producer.tasks {
		if task.Type == sqsqueue.TaskNotifySurvey {
			stages = append(stages, task.Notify.Stage)
		}
	}
	if strings.Join(stages, ",") != "received,ready" {
		t.Fatalf("milestones %v", stages)
	}
}

func TestProcessWebhookGenerateFailureIsTerminal(t *testing.T) {
	f := newFixture()
	f.proc.Generator = &fakeGenerator{err: errors.New("llm down")}
	f.store.webhooks[7] = store.WebhookRecord{
		ID: 7, Status: "queued",
		Payload: map[string]any{"data": map[string]any{"data": map[string]any{"email": "a@b.c"}}},
	}

	if err := f.proc.processWebhook(context.Background(), 7); err != nil {
		t.Fatalf("processing failures must not redrive, got %v", err)
	}
	if len(f.store.failedCalls) != 1 || !strings.Contains(f.store.failedCalls[0], "llm down") {
		t.Fatalf("failed calls %v", f.store.failedCalls)
	}
}

func TestProcessWebhookDoneIsIdempotent(t *testing.T) {
	f := newFixture()
	f.store.webhooks[7] = store.WebhookRecord{ID: 7, Status: "done", Payload: map[string]any{}}

	if err := f.proc.processWebhook(context.Background(), 7); err != nil {
		t.Fatalf("processWebhook: %v", err)
	}
	if len(f.uploader.uploads) != 0 || len(f.store.doneCalls) != 0 {
		t.Fatal("done record must not be reprocessed")
	}
}

func TestProcessWebhookMissingEmailStillDelivers(t *testing.T) {
	f := newFixture()
	f.store.webhooks[7] = store.WebhookRecord{
		ID: 7, Status: "queued",
		Payload: map[string]any{"data": map[string]any{"data": map[string]any{"nicho": "moda"}}},
	}

	if err := f.proc.processWebhook(context.Background(), 7); err != nil {
		t.Fatalf("processWebhook: %v", err)
	}
	if len(f.store.doneCalls) != 1 || len(f.store.failedCalls) != 0 {
		t.Fatalf("report must still be produced: done=%v failed=%v", f.store.doneCalls, f.store.failedCalls)
	}
	// Without an email there is no charge to match, so no milestones.
	if len(f.producer.tasks) != 0 {
		t.Fatalf("tasks %+v", f.producer.tasks)
	}
}

func TestCRMPurchaseSkipsWhenDealLinked(t *testing.T) {
	f := newFixture()
	deal := int64(555)
	f.store.charges[1] = store.Charge{ID: 1, CustomerEmail: "a@b.c", CRMDealID: &deal}

	if err := f.proc.crmPurchase(context.Background(), 1); err != nil {
		t.Fatalf("crmPurchase: %v", err)
	}
	if f.crm.calls != 0 {
		t.Fatalf("expected zero crm calls, got %d", f.crm.calls)
	}
}

func TestCRMPurchaseCreatesContactAndDeal(t *testing.T) {
	f := newFixture()
	f.store.charges[1] = store.Charge{ID: 1, CustomerName: "Ana", CustomerEmail: "a@b.c"}

	if err := f.proc.crmPurchase(context.Background(), 1); err != nil {
		t.Fatalf("crmPurchase: %v", err)
	}
	if f.store.contactSets[1] != 9001 {
		t.Fatalf("contact link %v", f.store.contactSets)
	}
	if f.store.dealSets[1] != 777 {
		t.Fatalf("deal link %v", f.store.dealSets)
	}
}

func TestCRMBookingNoMatchingCharge(t *testing.T) {
	f := newFixture()

	err := f.proc.crmBooking(context.Background(), &sqsqueue.BookingInfo{Name: "Ana", Email: "missing@x.com"})
	if err != nil {
		t.Fatalf("crmBooking: %v", err)
	}
	if f.crm.calls != 0 {
		t.Fatalf("expected no crm calls, got %d", f.crm.calls)
	}
}

func TestCRMBookingAdvancesDealAnd404IsBenign(t *testing.T) {
	f := newFixture()
	deal := int64(555)
	f.store.charges[1] = store.Charge{ID: 1, CustomerEmail: "a@b.c", CRMDealID: &deal}

	if err := f.proc.crmBooking(context.Background(), &sqsqueue.BookingInfo{Email: "a@b.c"}); err != nil {
		t.Fatalf("crmBooking: %v", err)
	}
	if len(f.crm.updates) != 1 || f.crm.updates[0] != 555 {
		t.Fatalf("updates %v", f.crm.updates)
	}

	f.crm.updateErr = &crm.APIError{Status: 404, Message: "gone"}
	if err := f.proc.crmBooking(context.Background(), &sqsqueue.BookingInfo{Email: "a@b.c"}); err != nil {
		t.Fatalf("404 must be benign, got %v", err)
	}
}

func TestCRMBookingOrganizerLookupFailureRetries(t *testing.T) {
	f := newFixture()
	deal := int64(555)
	f.store.charges[1] = store.Charge{ID: 1, CustomerEmail: "a@b.c", CRMDealID: &deal}
	f.crm.userErr = errors.New("crm down")

	err := f.proc.crmBooking(context.Background(), &sqsqueue.BookingInfo{Email: "a@b.c", OrganizerEmail: "org@x.com"})
	if err == nil {
		t.Fatal("expected error so the queue redelivers")
	}
	if len(f.crm.updates) != 0 {
		t.Fatalf("deal must not be patched with an unresolved owner, got %v", f.crm.updates)
	}
}

func TestNotifyPurchaseReloadsChargeAndBuildsLink(t *testing.T) {
	f := newFixture()
	f.store.charges[4] = store.Charge{
		ID: 4, CustomerName: "Ana Silva", CustomerEmail: "ana@x.com", CustomerPhone: "5511999990000",
	}

	if err := f.proc.notifyPurchase(context.Background(), 4); err != nil {
		t.Fatalf("notifyPurchase: %v", err)
	}
	want := "5511999990000|oi Ana http://book?attendeePhoneNumber=5511999990000&email=ana%40x.com&name=Ana+Silva"
	if len(f.chat.sends) != 1 || f.chat.sends[0] != want {
		t.Fatalf("sends %v, want %q", f.chat.sends, want)
	}
}

func TestNotifyPurchaseUnknownChargeConsumed(t *testing.T) {
	f := newFixture()

	if err := f.proc.notifyPurchase(context.Background(), 99); err != nil {
		t.Fatalf("missing charge must not redrive, got %v", err)
	}
	if len(f.chat.sends) != 0 {
		t.Fatalf("sends %v", f.chat.sends)
	}
}

func TestNotifyWithoutPhoneIsPermanent(t *testing.T) {
	f := newFixture()
	f.store.charges[4] = store.Charge{ID: 4, CustomerName: "Ana", CustomerEmail: "ana@x.com"}

	err := f.proc.notifyPurchase(context.Background(), 4)
	if !IsPermanent(err) {
		t.Fatalf("expected permanent, got %v", err)
	}
}

func TestHandleUnknownTaskConsumed(t *testing.T) {
	f := newFixture()
	d := sqsqueue.Delivery{Task: sqsqueue.Task{Type: "bogus"}, Attempt: 1}
	if err := f.proc.Handle(context.Background(), d); err != nil {
		t.Fatalf("unknown task must be consumed, got %v", err)
	}
}
