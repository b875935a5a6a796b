package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/pharmeast/pharmeast-backend/internal/analytics"
	"github.com/pharmeast/pharmeast-backend/internal/auth"
	"github.com/pharmeast/pharmeast-backend/internal/campaigns"
	"github.com/pharmeast/pharmeast-backend/internal/config"
	"github.com/pharmeast/pharmeast-backend/internal/email"
	"github.com/pharmeast/pharmeast-backend/internal/email/inbound/correlator"
	"github.com/pharmeast/pharmeast-backend/internal/events"
	"github.com/pharmeast/pharmeast-backend/internal/middleware"
	"github.com/pharmeast/pharmeast-backend/internal/models"
	"github.com/pharmeast/pharmeast-backend/internal/repository"
	"github.com/pharmeast/pharmeast-backend/internal/storage"
)

func init() { gin.SetMode(gin.TestMode) }

type fakeInquiries struct {
	byID      map[int64]*models.Inquiry
	created   []*models.Inquiry
	appended  []*models.Reply
	statuses  map[int64]string
	deleted   []int
	createErr error
	appendErr error
}

func (f *fakeInquiries) Create(_ context.Context, inq *models.Inquiry) (int64, error) {
	if f.createErr != nil {
		return 0, f.createErr
	}
	f.created = append(f.created, inq)
	return 101, nil
}

func (f *fakeInquiries) GetByID(_ context.Context, id int64) (*models.Inquiry, error) {
	inq, ok := f.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return inq, nil
}

func (f *fakeInquiries) List(_ context.Context, _ string, _, _ int) ([]models.Inquiry, error) {
	var out []models.Inquiry
	for _, inq := range f.byID {
		out = append(out, *inq)
	}
	return out, nil
}

func (f *fakeInquiries) AppendReply(_ context.Context, id int64, reply *models.Reply) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	reply.InquiryID = id
	reply.Position = len(f.appended) + 1
	f.appended = append(f.appended, reply)
	return nil
}

func (f *fakeInquiries) DeleteReplyAt(_ context.Context, _ int64, index int) error {
	f.deleted = append(f.deleted, index)
	return nil
}

func (f *fakeInquiries) UpdateStatus(_ context.Context, id int64, status string) error {
	if _, ok := f.byID[id]; !ok {
		return repository.ErrNotFound
	}
	if f.statuses == nil {
		f.statuses = make(map[int64]string)
	}
	f.statuses[id] = status
	return nil
}

type fakeSubscribers struct {
	unsubErr error
	tokens   []string
}

func (f *fakeSubscribers) Subscribe(_ context.Context, email string) (*models.Subscriber, error) {
	return &models.Subscriber{Email: email, Status: models.SubscriberStatusActive}, nil
}

func (f *fakeSubscribers) UnsubscribeByToken(_ context.Context, token string) error {
	f.tokens = append(f.tokens, token)
	return f.unsubErr
}

func (f *fakeSubscribers) List(context.Context, int, int) ([]models.Subscriber, error) {
	return []models.Subscriber{{Email: "a@x.com"}}, nil
}

type fakeStaffStore struct {
	created []*models.Staff
	deleted []int64
}

func (f *fakeStaffStore) Create(_ context.Context, s *models.Staff) (int64, error) {
	f.created = append(f.created, s)
	return 5, nil
}

func (f *fakeStaffStore) GetByID(_ context.Context, id int64) (*models.Staff, error) {
	return &models.Staff{ID: id, Role: models.RoleStaff}, nil
}

func (f *fakeStaffStore) List(context.Context) ([]models.Staff, error) {
	return []models.Staff{{ID: 1, PasswordHash: "secret-hash"}}, nil
}

func (f *fakeStaffStore) Update(context.Context, *models.Staff) error { return nil }

func (f *fakeStaffStore) SetPassword(context.Context, int64, string) error { return nil }

func (f *fakeStaffStore) Delete(_ context.Context, id int64) error {
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeGallery struct{}

func (f *fakeGallery) Create(context.Context, *models.GalleryImage) (int64, error) { return 9, nil }
func (f *fakeGallery) GetByID(_ context.Context, id int64) (*models.GalleryImage, error) {
	return &models.GalleryImage{ID: id, FilePath: "x.png"}, nil
}
func (f *fakeGallery) List(_ context.Context, status string, _, _ int) ([]models.GalleryImage, error) {
	return []models.GalleryImage{{ID: 1, Status: status}}, nil
}
func (f *fakeGallery) SetStatus(context.Context, int64, string) error { return nil }
func (f *fakeGallery) Delete(context.Context, int64) error            { return nil }

type fakeCampaigns struct {
	sendErr error
}

func (f *fakeCampaigns) Create(_ context.Context, subject, md string) (*models.Campaign, error) {
	return &models.Campaign{ID: 7, Subject: subject, BodyMarkdown: md}, nil
}

func (f *fakeCampaigns) Send(context.Context, int64) (*campaigns.SendResult, error) {
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	return &campaigns.SendResult{Sent: 3, Status: models.CampaignStatusSent}, nil
}

func (f *fakeCampaigns) List(context.Context, int, int) ([]models.Campaign, error) {
	return []models.Campaign{{ID: 7}}, nil
}

type fakeAnalytics struct {
	tracked []string
}

func (f *fakeAnalytics) Track(_ context.Context, kind, _ string) error {
	if !models.ValidActivityKind(kind) {
		return fmt.Errorf("unknown kind %q", kind)
	}
	f.tracked = append(f.tracked, kind)
	return nil
}

func (f *fakeAnalytics) Summarize(context.Context, int) (*analytics.Summary, error) {
	return &analytics.Summary{Totals: map[string]int64{"page_view": 4}}, nil
}

type fakePipeline struct {
	result correlator.Result
	err    error
	raws   [][]byte
}

func (f *fakePipeline) Process(_ context.Context, raw []byte) (correlator.Result, error) {
	f.raws = append(f.raws, raw)
	return f.result, f.err
}

type fakeAPISender struct {
	enabled bool
	sent    []string
	err     error
}

func (f *fakeAPISender) Enabled() bool { return f.enabled }
func (f *fakeAPISender) From() string  { return "noreply@pharmeast.com" }
func (f *fakeAPISender) SendTemplate(to []string, _ string, _ map[string]any, _ *email.SendOptions) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, to...)
	return nil
}

type fakeNotifier struct {
	inquiries []*models.Inquiry
}

func (f *fakeNotifier) NotifyNewInquiry(_ context.Context, inq *models.Inquiry) {
	f.inquiries = append(f.inquiries, inq)
}

type harness struct {
	router      *gin.Engine
	jwt         *auth.JWTManager
	inquiries   *fakeInquiries
	subscribers *fakeSubscribers
	staff       *fakeStaffStore
	campaigns   *fakeCampaigns
	analytics   *fakeAnalytics
	pipeline    *fakePipeline
	sender      *fakeAPISender
	notifier    *fakeNotifier
}

type authService struct{ jwt *auth.JWTManager }

func (a *authService) Login(_ context.Context, emailAddr, password string) (*models.Staff, string, error) {
	if password != "correct-pw" {
		return nil, "", auth.ErrBadCredentials
	}
	token, err := a.jwt.GenerateToken(1, emailAddr, models.RoleAdmin)
	return &models.Staff{ID: 1, Email: emailAddr, Role: models.RoleAdmin}, token, err
}

func newHarness(t *testing.T, webhookSecret string) *harness {
	t.Helper()

	cfg := &config.Config{}
	cfg.Server.WebhookSecret = webhookSecret
	cfg.Metrics.Enabled = false

	jwtMgr := auth.NewJWTManager("test-secret", time.Hour)
	uploads, err := storage.NewStore(t.TempDir())
	require.NoError(t, err)

	h := &harness{
		jwt:         jwtMgr,
		inquiries:   &fakeInquiries{byID: map[int64]*models.Inquiry{}},
		subscribers: &fakeSubscribers{},
		staff:       &fakeStaffStore{},
		campaigns:   &fakeCampaigns{},
		analytics:   &fakeAnalytics{},
		pipeline:    &fakePipeline{},
		sender:      &fakeAPISender{enabled: true},
		notifier:    &fakeNotifier{},
	}

	srv := NewServer(Deps{
		Config:      cfg,
		Inquiries:   h.inquiries,
		Subscribers: h.subscribers,
		Staff:       h.staff,
		Gallery:     &fakeGallery{},
		Campaigns:   h.campaigns,
		CampaignsRO: h.campaigns,
		Analytics:   h.analytics,
		Auth:        &authService{jwt: jwtMgr},
		Sender:      h.sender,
		Notifier:    h.notifier,
		Pipeline:    h.pipeline,
		Hub:         events.NewHub(),
		Uploads:     uploads,
		AuthMW:      middleware.NewAuthMiddleware(jwtMgr),
	}, WithLogger(log.New(io.Discard, "", 0)))

	h.router = NewRouter(srv)
	return h
}

func (h *harness) request(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func (h *harness) adminToken(t *testing.T, role string) string {
	t.Helper()
	token, err := h.jwt.GenerateToken(1, "admin@pharmeast.com", role)
	require.NoError(t, err)
	return token
}

func TestWebhookAppended(t *testing.T) {
	h := newHarness(t, "")
	h.pipeline.result = correlator.Result{
		Outcome:  correlator.OutcomeAppended,
		Inquiry:  &models.Inquiry{ID: 42},
		Strategy: "email_exact",
	}

	w := h.request(t, http.MethodPost, "/api/inbound/webhook",
		gin.H{"raw": "From: a@b.c\r\n\r\nhello"}, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"inquiry_id":42`)
	require.Contains(t, w.Body.String(), "email_exact")
	require.Len(t, h.pipeline.raws, 1)
}

func TestWebhookIgnoredOutcomes(t *testing.T) {
	h := newHarness(t, "")
	h.pipeline.result = correlator.Result{Outcome: correlator.OutcomeDropped}

	w := h.request(t, http.MethodPost, "/api/inbound/webhook", gin.H{"raw": "x"}, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"ignored":true`)
	require.Contains(t, w.Body.String(), "dropped")
}

func TestWebhookParseErrorIs400(t *testing.T) {
	h := newHarness(t, "")
	h.pipeline.err = fmt.Errorf("correlator: %w: bad mime", correlator.ErrParse)

	w := h.request(t, http.MethodPost, "/api/inbound/webhook", gin.H{"raw": "junk"}, "")
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWebhookPipelineErrorIs500(t *testing.T) {
	h := newHarness(t, "")
	h.pipeline.err = errors.New("db down")

	w := h.request(t, http.MethodPost, "/api/inbound/webhook", gin.H{"raw": "x"}, "")
	require.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestWebhookRequiresSecret(t *testing.T) {
	h := newHarness(t, "hook-secret")

	w := h.request(t, http.MethodPost, "/api/inbound/webhook", gin.H{"raw": "x"}, "")
	require.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/inbound/webhook",
		bytes.NewReader([]byte(`{"raw":"x"}`)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Secret", "hook-secret")
	w = httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestContactCreatesInquiryAndNotifies(t *testing.T) {
	h := newHarness(t, "")

	w := h.request(t, http.MethodPost, "/api/contact", gin.H{
		"name":    "Jane",
		"email":   "Jane@Example.com",
		"subject": "Bulk order",
		"message": "price list please",
	}, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"id":101`)

	require.Len(t, h.inquiries.created, 1)
	require.Equal(t, "jane@example.com", h.inquiries.created[0].Email)
	require.Len(t, h.notifier.inquiries, 1)
	require.Equal(t, []string{models.ActivityContact}, h.analytics.tracked)
}

func TestContactRejectsInvalidEmail(t *testing.T) {
	h := newHarness(t, "")
	w := h.request(t, http.MethodPost, "/api/contact", gin.H{
		"email": "not-an-address", "subject": "s", "message": "m",
	}, "")
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Empty(t, h.inquiries.created)
}

func TestSubscribeAndUnsubscribe(t *testing.T) {
	h := newHarness(t, "")

	w := h.request(t, http.MethodPost, "/api/subscribe", gin.H{"email": "a@x.com"}, "")
	require.Equal(t, http.StatusOK, w.Code)

	// Unknown tokens still get a success response.
	h.subscribers.unsubErr = repository.ErrNotFound
	w = h.request(t, http.MethodGet, "/api/unsubscribe?token=ghost", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, []string{"ghost"}, h.subscribers.tokens)
	require.Equal(t, []string{models.ActivitySubscribe}, h.analytics.tracked)
}

func TestTrackValidatesKind(t *testing.T) {
	h := newHarness(t, "")

	w := h.request(t, http.MethodPost, "/api/track", gin.H{"kind": "page_view", "path": "/"}, "")
	require.Equal(t, http.StatusOK, w.Code)

	w = h.request(t, http.MethodPost, "/api/track", gin.H{"kind": "bogus"}, "")
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLogin(t *testing.T) {
	h := newHarness(t, "")

	w := h.request(t, http.MethodPost, "/api/admin/login",
		gin.H{"email": "admin@pharmeast.com", "password": "correct-pw"}, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"token"`)

	w = h.request(t, http.MethodPost, "/api/admin/login",
		gin.H{"email": "admin@pharmeast.com", "password": "wrong"}, "")
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdminRoutesRequireAuth(t *testing.T) {
	h := newHarness(t, "")
	w := h.request(t, http.MethodGet, "/api/admin/inquiries", nil, "")
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestReplyAppendsOutboundAndEmails(t *testing.T) {
	h := newHarness(t, "")
	h.inquiries.byID[4] = &models.Inquiry{ID: 4, Email: "cust@x.com", Name: "Cust", Subject: "Order"}

	w := h.request(t, http.MethodPost, "/api/admin/inquiries/4/reply",
		gin.H{"message": "shipping tomorrow"}, h.adminToken(t, models.RoleStaff))
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"email_sent":true`)

	require.Len(t, h.inquiries.appended, 1)
	reply := h.inquiries.appended[0]
	require.False(t, reply.Inbound)
	require.Equal(t, "Re: Order", reply.Subject)
	require.Equal(t, []string{"cust@x.com"}, h.sender.sent)
}

func TestReplyEmailFailureStillSaves(t *testing.T) {
	h := newHarness(t, "")
	h.inquiries.byID[4] = &models.Inquiry{ID: 4, Email: "cust@x.com"}
	h.sender.err = errors.New("smtp down")

	w := h.request(t, http.MethodPost, "/api/admin/inquiries/4/reply",
		gin.H{"message": "m"}, h.adminToken(t, models.RoleStaff))
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"email_sent":false`)
	require.Len(t, h.inquiries.appended, 1)
}

func TestUpdateStatusValidation(t *testing.T) {
	h := newHarness(t, "")
	h.inquiries.byID[4] = &models.Inquiry{ID: 4}
	token := h.adminToken(t, models.RoleStaff)

	w := h.request(t, http.MethodPut, "/api/admin/inquiries/4/status",
		gin.H{"status": "read"}, token)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "read", h.inquiries.statuses[4])

	w = h.request(t, http.MethodPut, "/api/admin/inquiries/4/status",
		gin.H{"status": "archived"}, token)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeleteReplyByIndex(t *testing.T) {
	h := newHarness(t, "")
	token := h.adminToken(t, models.RoleStaff)

	w := h.request(t, http.MethodDelete, "/api/admin/inquiries/4/replies/2", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, []int{2}, h.inquiries.deleted)

	w = h.request(t, http.MethodDelete, "/api/admin/inquiries/4/replies/-1", nil, token)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCampaignSendConflict(t *testing.T) {
	h := newHarness(t, "")
	h.campaigns.sendErr = campaigns.ErrAlreadySent

	w := h.request(t, http.MethodPost, "/api/admin/campaigns/7/send", nil,
		h.adminToken(t, models.RoleAdmin))
	require.Equal(t, http.StatusConflict, w.Code)
}

func TestStaffManagementRequiresAdminRole(t *testing.T) {
	h := newHarness(t, "")

	body := gin.H{"email": "new@pharmeast.com", "name": "New", "password": "longenough", "role": "staff"}

	w := h.request(t, http.MethodPost, "/api/admin/staff", body, h.adminToken(t, models.RoleStaff))
	require.Equal(t, http.StatusForbidden, w.Code)

	w = h.request(t, http.MethodPost, "/api/admin/staff", body, h.adminToken(t, models.RoleAdmin))
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, h.staff.created, 1)
	require.NotEqual(t, "longenough", h.staff.created[0].PasswordHash)
}

func TestCreateStaffPasswordPolicy(t *testing.T) {
	h := newHarness(t, "")
	w := h.request(t, http.MethodPost, "/api/admin/staff",
		gin.H{"email": "n@p.com", "name": "N", "password": "short", "role": "staff"},
		h.adminToken(t, models.RoleAdmin))
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStaffListHidesHashes(t *testing.T) {
	h := newHarness(t, "")
	w := h.request(t, http.MethodGet, "/api/admin/staff", nil, h.adminToken(t, models.RoleAdmin))
	require.Equal(t, http.StatusOK, w.Code)
	require.NotContains(t, w.Body.String(), "secret-hash")
}

func TestDeleteOwnAccountRejected(t *testing.T) {
	h := newHarness(t, "")
	// Token carries staff id 1.
	w := h.request(t, http.MethodDelete, "/api/admin/staff/1", nil,
		h.adminToken(t, models.RoleAdmin))
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Empty(t, h.staff.deleted)
}

func TestHealthz(t *testing.T) {
	h := newHarness(t, "")
	w := h.request(t, http.MethodGet, "/healthz", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
}
