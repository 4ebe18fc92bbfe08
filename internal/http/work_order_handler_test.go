package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"fieldops-data/internal/domain"
	"fieldops-data/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// stubWorkOrderService records calls and returns canned values.
type stubWorkOrderService struct {
	detail *service.WorkOrderDetailResponse
	list   *service.ListWorkOrdersResponse
	err    error

	lastStatusReq service.ChangeStatusRequest
	lastID        string
}

func (s *stubWorkOrderService) List(_ context.Context, _ service.Actor, _ service.ListWorkOrdersRequest) (*service.ListWorkOrdersResponse, error) {
	return s.list, s.err
}
func (s *stubWorkOrderService) ListMine(_ context.Context, _ service.Actor, _ service.ListWorkOrdersRequest) (*service.ListWorkOrdersResponse, error) {
	return s.list, s.err
}
func (s *stubWorkOrderService) Get(_ context.Context, _ service.Actor, id string) (*service.WorkOrderDetailResponse, error) {
	s.lastID = id
	return s.detail, s.err
}
func (s *stubWorkOrderService) Create(_ context.Context, _ service.Actor, _ service.CreateWorkOrderRequest) (*service.WorkOrderDetailResponse, error) {
	return s.detail, s.err
}
func (s *stubWorkOrderService) Update(_ context.Context, _ service.Actor, id string, _ service.UpdateWorkOrderRequest) (*service.WorkOrderDetailResponse, error) {
	s.lastID = id
	return s.detail, s.err
}
func (s *stubWorkOrderService) ChangeStatus(_ context.Context, _ service.Actor, id string, req service.ChangeStatusRequest) (*service.WorkOrderDetailResponse, error) {
	s.lastID = id
	s.lastStatusReq = req
	return s.detail, s.err
}
func (s *stubWorkOrderService) Delete(_ context.Context, _ service.Actor, id string) error {
	s.lastID = id
	return s.err
}
func (s *stubWorkOrderService) Stats(_ context.Context, _ service.Actor) (*service.WorkOrderStatsResponse, error) {
	return &service.WorkOrderStatsResponse{}, s.err
}

type stubCommentService struct {
	comment *service.CommentResponse
	err     error
	lastID  string
}

func (s *stubCommentService) ListByWorkOrder(_ context.Context, _ service.Actor, workOrderID string) ([]*service.CommentResponse, error) {
	s.lastID = workOrderID
	return nil, s.err
}
func (s *stubCommentService) Create(_ context.Context, _ service.Actor, workOrderID string, _ service.CreateCommentRequest) (*service.CommentResponse, error) {
	s.lastID = workOrderID
	return s.comment, s.err
}
func (s *stubCommentService) Update(_ context.Context, _ service.Actor, commentID string, _ service.UpdateCommentRequest) (*service.CommentResponse, error) {
	s.lastID = commentID
	return s.comment, s.err
}
func (s *stubCommentService) Delete(_ context.Context, _ service.Actor, commentID string) error {
	s.lastID = commentID
	return s.err
}

func newWorkOrderTestHandler(orders *stubWorkOrderService, comments *stubCommentService) *WorkOrderHandler {
	return NewWorkOrderHandler(orders, comments, zap.NewNop())
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func TestItem_StatusRouting(t *testing.T) {
	orders := &stubWorkOrderService{detail: &service.WorkOrderDetailResponse{}}
	h := newWorkOrderTestHandler(orders, &stubCommentService{})

	req := httptest.NewRequest(http.MethodPatch, "/api/work-orders/wo-1/status",
		strings.NewReader(`{"status":"ACCEPTED","note":"on it"}`))
	rec := httptest.NewRecorder()
	h.Item(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "wo-1", orders.lastID)
	assert.Equal(t, "ACCEPTED", orders.lastStatusReq.Status)
	assert.Equal(t, "on it", orders.lastStatusReq.Note)

	env := decodeEnvelope(t, rec)
	assert.True(t, env.Success)
}

func TestItem_StatusWrongMethod(t *testing.T) {
	h := newWorkOrderTestHandler(&stubWorkOrderService{}, &stubCommentService{})

	req := httptest.NewRequest(http.MethodGet, "/api/work-orders/wo-1/status", nil)
	rec := httptest.NewRecorder()
	h.Item(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestItem_BusinessErrorEnvelope(t *testing.T) {
	orders := &stubWorkOrderService{err: domain.ErrBadRequest("cannot transition from NEW to COMPLETED")}
	h := newWorkOrderTestHandler(orders, &stubCommentService{})

	req := httptest.NewRequest(http.MethodPatch, "/api/work-orders/wo-1/status",
		strings.NewReader(`{"status":"COMPLETED"}`))
	rec := httptest.NewRecorder()
	h.Item(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.False(t, env.Success)
	assert.Equal(t, "cannot transition from NEW to COMPLETED", env.Error)
}

func TestItem_InternalErrorMasked(t *testing.T) {
	orders := &stubWorkOrderService{err: assert.AnError}
	h := newWorkOrderTestHandler(orders, &stubCommentService{})

	req := httptest.NewRequest(http.MethodGet, "/api/work-orders/wo-1", nil)
	rec := httptest.NewRecorder()
	h.Item(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.False(t, env.Success)
	// 内部错误不泄漏给客户端
	assert.Equal(t, "internal server error", env.Error)
}

func TestItem_CommentRouting(t *testing.T) {
	comments := &stubCommentService{comment: &service.CommentResponse{ID: "c-1"}}
	h := newWorkOrderTestHandler(&stubWorkOrderService{}, comments)

	req := httptest.NewRequest(http.MethodPost, "/api/work-orders/wo-1/comments",
		strings.NewReader(`{"content":"done"}`))
	rec := httptest.NewRecorder()
	h.Item(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "wo-1", comments.lastID)

	// nested comment item
	req = httptest.NewRequest(http.MethodDelete, "/api/work-orders/wo-1/comments/c-9", nil)
	rec = httptest.NewRecorder()
	h.Item(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "c-9", comments.lastID)
}

func TestItem_UnknownPath(t *testing.T) {
	h := newWorkOrderTestHandler(&stubWorkOrderService{}, &stubCommentService{})

	req := httptest.NewRequest(http.MethodGet, "/api/work-orders/wo-1/bogus", nil)
	rec := httptest.NewRecorder()
	h.Item(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCollection_InvalidBody(t *testing.T) {
	h := newWorkOrderTestHandler(&stubWorkOrderService{}, &stubCommentService{})

	req := httptest.NewRequest(http.MethodPost, "/api/work-orders", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	h.Collection(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
