package httpapi

import (
	"net/http"

	"go.uber.org/zap"
)

// Router 使用标准库 http.ServeMux（避免引入第三方路由依赖）
type Router struct {
	mux    *http.ServeMux
	logger *zap.Logger
}

// NewRouter 创建 Router
func NewRouter(logger *zap.Logger) *Router {
	return &Router{mux: http.NewServeMux(), logger: logger}
}

func (r *Router) Handle(pattern string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Handlers 路由注册所需的全部 handler
type Handlers struct {
	Auth          *AuthHandler
	WorkOrders    *WorkOrderHandler
	TimeLogs      *TimeLogHandler
	Users         *UserHandler
	Notifications *NotificationHandler
	Attachments   *AttachmentHandler
	Analytics     *AnalyticsHandler
}

// RegisterRoutes 注册全部 API 路由
// register/login/refresh 之外的所有路由都经过 Bearer 认证
func (r *Router) RegisterRoutes(h *Handlers, auth *AuthMiddleware) {
	// 健康检查
	r.Handle("/healthz", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// auth
	r.Handle("/api/auth/register", requireMethod(http.MethodPost, h.Auth.Register))
	r.Handle("/api/auth/login", requireMethod(http.MethodPost, h.Auth.Login))
	r.Handle("/api/auth/refresh", requireMethod(http.MethodPost, h.Auth.Refresh))
	r.Handle("/api/auth/profile", auth.Wrap(requireMethod(http.MethodGet, h.Auth.Profile)))

	// work orders（/api/work-orders/ 前缀统一交给 Item 分发）
	r.Handle("/api/work-orders", auth.Wrap(h.WorkOrders.Collection))
	r.Handle("/api/work-orders/my", auth.Wrap(h.WorkOrders.Mine))
	r.Handle("/api/work-orders/stats", auth.Wrap(h.WorkOrders.Stats))
	r.Handle("/api/work-orders/", auth.Wrap(h.WorkOrders.Item))

	// time logs
	r.Handle("/api/time-logs/start", auth.Wrap(h.TimeLogs.Start))
	r.Handle("/api/time-logs/stop", auth.Wrap(h.TimeLogs.Stop))
	r.Handle("/api/time-logs/manual", auth.Wrap(h.TimeLogs.Manual))
	r.Handle("/api/time-logs/active", auth.Wrap(h.TimeLogs.Active))
	r.Handle("/api/time-logs/work-order/", auth.Wrap(h.TimeLogs.ByWorkOrder))

	// users
	r.Handle("/api/users", auth.Wrap(h.Users.Collection))
	r.Handle("/api/users/workers", auth.Wrap(h.Users.Workers))
	r.Handle("/api/users/workers/stats", auth.Wrap(h.Users.WorkerStats))
	r.Handle("/api/users/", auth.Wrap(h.Users.Item))

	// notifications
	r.Handle("/api/notifications", auth.Wrap(h.Notifications.List))
	r.Handle("/api/notifications/read-all", auth.Wrap(h.Notifications.ReadAll))
	r.Handle("/api/notifications/", auth.Wrap(h.Notifications.Item))

	// attachments
	r.Handle("/api/attachments/upload/", auth.Wrap(h.Attachments.Upload))
	r.Handle("/api/attachments/work-order/", auth.Wrap(h.Attachments.ByWorkOrder))
	r.Handle("/api/attachments/", auth.Wrap(h.Attachments.Item))

	// analytics
	r.Handle("/api/analytics/dashboard", auth.Wrap(h.Analytics.Dashboard))
	r.Handle("/api/analytics/workers", auth.Wrap(h.Analytics.Workers))
	r.Handle("/api/analytics/trends", auth.Wrap(h.Analytics.Trends))
	r.Handle("/api/analytics/export", auth.Wrap(h.Analytics.Export))
}

func requireMethod(method string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			methodNotAllowed(w)
			return
		}
		next(w, r)
	}
}
