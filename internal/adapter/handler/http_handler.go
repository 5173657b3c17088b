package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"google.golang.org/grpc/codes"

	"github.com/rl1809/order-lifecycle/internal/core/domain"
	"github.com/rl1809/order-lifecycle/internal/port"
)

const (
	requestIDHeader      = "X-Request-ID"
	idempotencyKeyHeader = "Idempotency-Key"
)

// OrderService is the lifecycle engine as seen by the HTTP API.
type OrderService interface {
	Create(ctx context.Context, createdBy string) (int64, error)
	AddItem(ctx context.Context, orderID, productID int64, quantity int) (bool, error)
	RemoveItem(ctx context.Context, orderItemID int64) (bool, error)
	StartProcessing(ctx context.Context, orderID int64) (bool, error)
	Complete(ctx context.Context, orderID int64) (bool, error)
	Cancel(ctx context.Context, orderID int64) (bool, error)
	GetOrder(ctx context.Context, orderID int64) (*domain.Order, error)
	QueryOrders(ctx context.Context, filter domain.OrderFilter) (domain.Page[domain.Order], error)
	QueryItems(ctx context.Context, orderID int64, filter domain.OrderItemFilter) (domain.Page[domain.OrderItem], error)
	GetHistory(ctx context.Context, orderID int64, filter domain.HistoryFilter) (domain.Page[domain.HistoryItem], error)
}

type HTTPHandler struct {
	orders      OrderService
	idempotency port.IdempotencyCache
	validate    *validatorv10.Validate
}

type CreateOrderRequest struct {
	CreatedBy string `json:"createdBy" validate:"required,max=255"`
}

type CreateOrderResponse struct {
	OrderID int64 `json:"orderId"`
}

type AddItemRequest struct {
	ProductID int64 `json:"productId" validate:"required,gt=0"`
	Quantity  int   `json:"quantity" validate:"required,gt=0"`
}

type ResultResponse struct {
	Success bool `json:"success"`
}

type ErrorResponse struct {
	Error   string            `json:"error"`
	Message string            `json:"message,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// NewHTTPHandler builds the handler; idempotency may be nil to disable
// Idempotency-Key support.
func NewHTTPHandler(orders OrderService, idempotency port.IdempotencyCache) *HTTPHandler {
	return &HTTPHandler{
		orders:      orders,
		idempotency: idempotency,
		validate:    validatorv10.New(),
	}
}

func (h *HTTPHandler) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestID(), requestLogger())

	r.GET("/health", h.HealthCheck)

	api := r.Group("/api")
	api.POST("/orders", h.CreateOrder)
	api.GET("/orders", h.ListOrders)
	api.GET("/orders/:orderId", h.GetOrder)
	api.POST("/orders/:orderId/items", h.AddItem)
	api.GET("/orders/:orderId/items", h.ListItems)
	api.POST("/orders/:orderId/start-processing", h.StartProcessing)
	api.POST("/orders/:orderId/complete", h.Complete)
	api.POST("/orders/:orderId/cancel", h.Cancel)
	api.GET("/orders/:orderId/history", h.GetHistory)
	api.DELETE("/order-items/:orderItemId", h.RemoveItem)

	return r
}

func (h *HTTPHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *HTTPHandler) CreateOrder(c *gin.Context) {
	var req CreateOrderRequest
	if !h.bind(c, &req) {
		return
	}
	ctx := c.Request.Context()

	key := c.GetHeader(idempotencyKeyHeader)
	if key != "" && h.idempotency != nil {
		reserved, err := h.idempotency.Reserve(ctx, key)
		if err != nil {
			writeError(c, err)
			return
		}
		if !reserved {
			h.replayCreate(c, key)
			return
		}
	} else {
		key = ""
	}

	orderID, err := h.orders.Create(ctx, req.CreatedBy)
	if key != "" {
		h.settleIdempotencyKey(ctx, key, orderID)
	}
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, CreateOrderResponse{OrderID: orderID})
}

func (h *HTTPHandler) replayCreate(c *gin.Context, key string) {
	orderID, ok, err := h.idempotency.Lookup(c.Request.Context(), key)
	if err != nil {
		writeError(c, err)
		return
	}
	if !ok {
		c.JSON(http.StatusConflict, ErrorResponse{Error: "request_in_progress", Message: "a request with this idempotency key is still running"})
		return
	}
	c.JSON(http.StatusOK, CreateOrderResponse{OrderID: orderID})
}

// settleIdempotencyKey remembers a committed order even when publishing its
// event failed, so a retry does not create a second order. It outlives the
// request: a client that hung up must not leave the key pending.
func (h *HTTPHandler) settleIdempotencyKey(ctx context.Context, key string, orderID int64) {
	ctx = context.WithoutCancel(ctx)
	var err error
	if orderID != 0 {
		err = h.idempotency.Complete(ctx, key, orderID)
	} else {
		err = h.idempotency.Release(ctx, key)
	}
	if err != nil {
		slog.ErrorContext(ctx, "settle idempotency key", "key", key, "order_id", orderID, "error", err)
	}
}

func (h *HTTPHandler) AddItem(c *gin.Context) {
	orderID, ok := pathID(c, "orderId")
	if !ok {
		return
	}
	var req AddItemRequest
	if !h.bind(c, &req) {
		return
	}

	added, err := h.orders.AddItem(c.Request.Context(), orderID, req.ProductID, req.Quantity)
	writeResult(c, added, err)
}

func (h *HTTPHandler) RemoveItem(c *gin.Context) {
	itemID, ok := pathID(c, "orderItemId")
	if !ok {
		return
	}

	removed, err := h.orders.RemoveItem(c.Request.Context(), itemID)
	writeResult(c, removed, err)
}

func (h *HTTPHandler) StartProcessing(c *gin.Context) {
	h.transition(c, h.orders.StartProcessing)
}

func (h *HTTPHandler) Complete(c *gin.Context) {
	h.transition(c, h.orders.Complete)
}

func (h *HTTPHandler) Cancel(c *gin.Context) {
	h.transition(c, h.orders.Cancel)
}

func (h *HTTPHandler) transition(c *gin.Context, op func(context.Context, int64) (bool, error)) {
	orderID, ok := pathID(c, "orderId")
	if !ok {
		return
	}

	changed, err := op(c.Request.Context(), orderID)
	writeResult(c, changed, err)
}

func (h *HTTPHandler) GetOrder(c *gin.Context) {
	orderID, ok := pathID(c, "orderId")
	if !ok {
		return
	}

	order, err := h.orders.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *HTTPHandler) ListOrders(c *gin.Context) {
	page, ok := pageRequest(c)
	if !ok {
		return
	}

	filter := domain.OrderFilter{
		State:     domain.OrderState(c.Query("state")),
		CreatedBy: c.Query("createdBy"),
		Page:      page,
	}
	result, err := h.orders.QueryOrders(c.Request.Context(), filter)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *HTTPHandler) ListItems(c *gin.Context) {
	orderID, ok := pathID(c, "orderId")
	if !ok {
		return
	}
	page, ok := pageRequest(c)
	if !ok {
		return
	}

	filter := domain.OrderItemFilter{Page: page}
	if c.Query("includeDeleted") != "true" {
		live := false
		filter.IsDeleted = &live
	}
	result, err := h.orders.QueryItems(c.Request.Context(), orderID, filter)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *HTTPHandler) GetHistory(c *gin.Context) {
	orderID, ok := pathID(c, "orderId")
	if !ok {
		return
	}
	page, ok := pageRequest(c)
	if !ok {
		return
	}

	filter := domain.HistoryFilter{Kind: domain.HistoryKind(c.Query("kind")), Page: page}
	result, err := h.orders.GetHistory(c.Request.Context(), orderID, filter)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *HTTPHandler) bind(c *gin.Context, out any) bool {
	if err := c.ShouldBindJSON(out); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_request_body", Message: err.Error()})
		return false
	}
	if err := h.validate.Struct(out); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "validation_failed", Fields: validationErrorsToMap(err)})
		return false
	}
	return true
}

func validationErrorsToMap(err error) map[string]string {
	out := map[string]string{}
	if ve, ok := err.(validatorv10.ValidationErrors); ok {
		for _, fe := range ve {
			out[fe.Field()] = fe.Tag()
		}
	} else {
		out["error"] = err.Error()
	}
	return out
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_" + name})
		return 0, false
	}
	return id, true
}

func pageRequest(c *gin.Context) (domain.PageRequest, bool) {
	page := domain.PageRequest{Token: c.Query("pageToken")}
	if raw := c.Query("pageSize"); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil || size <= 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_pageSize"})
			return page, false
		}
		page.Size = size
	}
	return page, true
}

func writeResult(c *gin.Context, ok bool, err error) {
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ResultResponse{Success: ok})
}

func writeError(c *gin.Context, err error) {
	code := errorCode(err)
	c.JSON(httpStatus(code), ErrorResponse{
		Error:   codeName(code),
		Message: publicMessage(c.Request.Context(), code, err),
	})
}

func codeName(code codes.Code) string {
	switch code {
	case codes.NotFound:
		return "not_found"
	case codes.FailedPrecondition:
		return "failed_precondition"
	case codes.InvalidArgument:
		return "invalid_argument"
	case codes.Canceled:
		return "canceled"
	case codes.DeadlineExceeded:
		return "deadline_exceeded"
	default:
		return "internal"
	}
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(requestIDHeader, id)
		c.Set(requestIDHeader, id)
		c.Next()
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.InfoContext(c.Request.Context(), "http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", c.GetString(requestIDHeader),
		)
	}
}
