package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/kelseyhightower/envconfig"
)

// Local stand-in for every external dependency of the worker: the Pix
// provider, the chat platform, the CRM, the content generator, and the
// render service. State is in-memory and resets on restart.

type config struct {
	Port string `envconfig:"PORT" default:"8081"`

	// Simulated natural height of rendered content; page count at height H
	// is ceil(ContentHeightMM / H).
	ContentHeightMM int `envconfig:"MOCK_CONTENT_HEIGHT_MM" default:"1134"`

	DelayMs int `envconfig:"MOCK_DELAY_MS" default:"0"`
}

type pixCharge struct {
	CorrelationID  string `json:"correlationID"`
	Status         string `json:"status"`
	BRCode         string `json:"brCode"`
	QRCodeImage    string `json:"qrCodeImage"`
	PaymentLinkURL string `json:"paymentLinkUrl"`
	ExpiresDate    string `json:"expiresDate"`
}

type server struct {
	cfg config

	mu          sync.Mutex
	charges     map[string]pixCharge
	subscribers map[string]int64
	contacts    map[string]int64
	deals       map[int64]map[string]any
	nextID      int64
}

func main() {
	var cfg config
	if err := envconfig.Process("", &cfg); err != nil {
		panic(err)
	}
	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	slog.SetDefault(slog.New(h))

	s := &server{
		cfg:         cfg,
		charges:     make(map[string]pixCharge),
		subscribers: make(map[string]int64),
		contacts:    make(map[string]int64),
		deals:       make(map[int64]map[string]any),
		nextID:      1000,
	}

	r := mux.NewRouter()

	// Pix provider
	r.HandleFunc("/api/v1/charge", s.handleCreateCharge).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/charge/{id}", s.handleGetCharge).Methods(http.MethodGet)

	// Chat platform
	r.HandleFunc("/subscriber/get_by_phone/{phone}/", s.handleGetSubscriber).Methods(http.MethodGet)
	r.HandleFunc("/subscriber/", s.handleCreateSubscriber).Methods(http.MethodPost)
	r.HandleFunc("/subscriber/{id}/send_message/", s.handleSendMessage).Methods(http.MethodPost)

	// CRM (OData-ish)
	r.HandleFunc("/Users", s.handleUsers).Methods(http.MethodGet)
	r.HandleFunc("/Contacts", s.handleContacts).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/Deals", s.handleCreateDeal).Methods(http.MethodPost)
	r.HandleFunc("/Deals({id})", s.handlePatchDeal).Methods(http.MethodPatch)

	// Content generator
	r.HandleFunc("/v1/chat/completions", s.handleCompletion).Methods(http.MethodPost)

	// Render service
	r.HandleFunc("/render", s.handleRender).Methods(http.MethodPost)

	slog.Info("mock provider listening", "port", cfg.Port)
	if err := http.ListenAndServe(":"+cfg.Port, r); err != nil {
		slog.Error("mock provider server failed", "err", err)
		os.Exit(1)
	}
}

func (s *server) delay() {
	if s.cfg.DelayMs > 0 {
		time.Sleep(time.Duration(s.cfg.DelayMs) * time.Millisecond)
	}
}

func (s *server) id() int64 {
	s.nextID++
	return s.nextID
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *server) handleCreateCharge(w http.ResponseWriter, r *http.Request) {
	s.delay()
	var req struct {
		CorrelationID string `json:"correlationID"`
		Value         int    `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.CorrelationID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid charge"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.charges[req.CorrelationID]; dup {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "Já existe uma cobrança para este correlationID",
		})
		return
	}

	ch := pixCharge{
		CorrelationID:  req.CorrelationID,
		Status:         "ACTIVE",
		BRCode:         "00020126mock" + req.CorrelationID,
		QRCodeImage:    "https://mock.local/qr/" + req.CorrelationID + ".png",
		PaymentLinkURL: "https://mock.local/pay/" + req.CorrelationID,
		ExpiresDate:    time.Now().UTC().Add(24 * time.Hour).Format(time.RFC3339),
	}
	s.charges[req.CorrelationID] = ch
	writeJSON(w, http.StatusOK, map[string]any{"charge": ch})
}

func (s *server) handleGetCharge(w http.ResponseWriter, r *http.Request) {
	s.delay()
	s.mu.Lock()
	ch, ok := s.charges[mux.Vars(r)["id"]]
	s.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "charge not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"charge": ch})
}

func (s *server) handleGetSubscriber(w http.ResponseWriter, r *http.Request) {
	s.delay()
	s.mu.Lock()
	id, ok := s.subscribers[mux.Vars(r)["phone"]]
	s.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"id": id})
}

func (s *server) handleCreateSubscriber(w http.ResponseWriter, r *http.Request) {
	s.delay()
	var req struct {
		Phone string `json:"phone"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Phone == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "invalid subscriber"})
		return
	}
	s.mu.Lock()
	id, ok := s.subscribers[req.Phone]
	if !ok {
		id = s.id()
		s.subscribers[req.Phone] = id
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

func (s *server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	s.delay()
	slog.Info("mock chat message", "subscriber", mux.Vars(r)["id"])
	writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

var emailFilterRe = regexp.MustCompile(`Email eq '([^']*)'`)

func filteredEmail(r *http.Request) string {
	m := emailFilterRe.FindStringSubmatch(r.URL.Query().Get("$filter"))
	if len(m) != 2 {
		return ""
	}
	return m[1]
}

func (s *server) handleUsers(w http.ResponseWriter, r *http.Request) {
	s.delay()
	// Every organizer email resolves to one fixed user.
	if filteredEmail(r) == "" {
		writeJSON(w, http.StatusOK, map[string]any{"value": []any{}})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"value": []map[string]int64{{"Id": 501}}})
}

func (s *server) handleContacts(w http.ResponseWriter, r *http.Request) {
	s.delay()
	if r.Method == http.MethodGet {
		s.mu.Lock()
		id, ok := s.contacts[filteredEmail(r)]
		s.mu.Unlock()
		if !ok {
			writeJSON(w, http.StatusOK, map[string]any{"value": []any{}})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"value": []map[string]int64{{"Id": id}}})
		return
	}

	var req struct {
		Email string `json:"Email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid contact"})
		return
	}
	s.mu.Lock()
	id := s.id()
	s.contacts[req.Email] = id
	s.mu.Unlock()
	writeJSON(w, http.StatusCreated, map[string]any{"value": []map[string]int64{{"Id": id}}})
}

func (s *server) handleCreateDeal(w http.ResponseWriter, r *http.Request) {
	s.delay()
	var deal map[string]any
	if err := json.NewDecoder(r.Body).Decode(&deal); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid deal"})
		return
	}
	s.mu.Lock()
	id := s.id()
	s.deals[id] = deal
	s.mu.Unlock()
	writeJSON(w, http.StatusCreated, map[string]any{"value": []map[string]int64{{"Id": id}}})
}

func (s *server) handlePatchDeal(w http.ResponseWriter, r *http.Request) {
	s.delay()
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad deal id"})
		return
	}
	var patch map[string]any
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid patch"})
		return
	}

	s.mu.Lock()
	deal, ok := s.deals[id]
	if ok {
		for k, v := range patch {
			deal[k] = v
		}
	}
	s.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "deal not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"Id": id})
}

func (s *server) handleCompletion(w http.ResponseWriter, r *http.Request) {
	s.delay()
	content := "<h2>Diagnóstico</h2><p>Seu perfil tem bons fundamentos e espaço claro de crescimento.</p>" +
		"<h2>Plano de ação</h2><ul><li>Padronize a frequência de postagens.</li>" +
		"<li>Concentre os Reels no seu nicho principal.</li><li>Teste chamadas diretas para a oferta.</li></ul>"
	writeJSON(w, http.StatusOK, map[string]any{
		"choices": []map[string]any{
			{"message": map[string]string{"role": "assistant", "content": content}},
		},
	})
}

var pageHRe = regexp.MustCompile(`--pageH:\s*(\d+)mm\s*;`)

func (s *server) handleRender(w http.ResponseWriter, r *http.Request) {
	s.delay()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "bad body", http.StatusBadRequest)
		return
	}

	m := pageHRe.FindStringSubmatch(string(body))
	if len(m) != 2 {
		http.Error(w, "no --pageH property in document", http.StatusBadRequest)
		return
	}
	heightMM, _ := strconv.Atoi(m[1])
	if heightMM <= 0 {
		http.Error(w, "bad page height", http.StatusBadRequest)
		return
	}

	pages := (s.cfg.ContentHeightMM + heightMM - 1) / heightMM
	if pages < 1 {
		pages = 1
	}

	pdf := fmt.Sprintf("%%PDF-1.4 mock render, %d page(s) at %dmm\n%s", pages, heightMM, strings.Repeat(".", 64))
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("X-Page-Count", strconv.Itoa(pages))
	_, _ = w.Write([]byte(pdf))
}
