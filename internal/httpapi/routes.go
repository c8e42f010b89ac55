package httpapi

import (
	"context"
	"errors"
	"net/http"
	hpprof "net/http/pprof"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"planwise/internal/domain"
	"planwise/internal/insights"
	"planwise/internal/reminder"
	rtsup "planwise/internal/runtime/supervisor"
	"planwise/internal/schedule"
	"planwise/internal/transport"
	logx "planwise/pkg/logx"
)

type Estimator interface {
	Estimate(ctx context.Context, userID int64, c domain.Candidate) (domain.DurationEstimate, error)
}

type InsightsSource interface {
	Compute(ctx context.Context, userID int64) domain.Insights
}

type ScheduleBuilder interface {
	Build(ctx context.Context, req schedule.Request) []domain.ScheduledTask
}

type BreakAdvisor interface {
	Suggest(ctx context.Context, userID int64) (domain.BreakSuggestion, bool)
}

type Reminder interface {
	Start(ctx context.Context)
	Stop(ctx context.Context) error
	State() reminder.State
}

type History interface {
	Recent(userID int64, limit int) []transport.Notification
}

type Hub interface {
	ServeWS(w http.ResponseWriter, r *http.Request, userID int64)
}

// Deps are the engine components served over HTTP. Nil members disable their routes.
type Deps struct {
	Estimator Estimator
	Insights  InsightsSource
	Schedule  ScheduleBuilder
	Breaks    BreakAdvisor
	Reminder  Reminder
	History   History
	Hub       Hub
	Ping      func(ctx context.Context) error
	Status    func() map[string][]rtsup.Stats
}

const maxHistory = 200

func newRouter(cfg Config, d Deps, log logx.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLog(log))

	h := &handlers{d: d, user: cfg.User}
	r.GET("/health", h.health)

	api := r.Group("/api/v1", bearerAuth(cfg.Token))
	if d.Insights != nil {
		api.GET("/insights", h.insights)
		api.GET("/recommendations", h.recommendations)
	}
	if d.Estimator != nil {
		api.POST("/estimate", h.estimate)
	}
	if d.Schedule != nil {
		api.POST("/schedule", h.schedule)
	}
	if d.Breaks != nil {
		api.GET("/break", h.breakSuggestion)
	}
	if d.Reminder != nil {
		api.GET("/reminder", h.reminderState)
		api.POST("/reminder/start", h.reminderStart)
		api.POST("/reminder/stop", h.reminderStop)
	}
	if d.History != nil {
		api.GET("/notifications", h.notifications)
	}
	if d.Hub != nil {
		r.GET("/ws/notifications", bearerAuth(cfg.Token), h.websocket)
	}
	if cfg.Pprof {
		dbg := r.Group("/debug/pprof", bearerAuth(cfg.Token))
		dbg.GET("/", gin.WrapF(hpprof.Index))
		dbg.GET("/:name", pprofNamed)
	}
	return r
}

func pprofNamed(c *gin.Context) {
	switch name := c.Param("name"); name {
	case "cmdline":
		hpprof.Cmdline(c.Writer, c.Request)
	case "profile":
		hpprof.Profile(c.Writer, c.Request)
	case "symbol":
		hpprof.Symbol(c.Writer, c.Request)
	case "trace":
		hpprof.Trace(c.Writer, c.Request)
	default:
		hpprof.Handler(name).ServeHTTP(c.Writer, c.Request)
	}
}

type handlers struct {
	d    Deps
	user int64
}

var errBadUser = errors.New("user_id must be a positive integer")

// userID reads ?user_id, falling back to the configured user.
func (h *handlers) userID(c *gin.Context) (int64, error) {
	raw := strings.TrimSpace(c.Query("user_id"))
	if raw == "" {
		return h.user, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errBadUser
	}
	return id, nil
}

func badRequest(c *gin.Context, err error) {
	_ = c.Error(err)
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

func (h *handlers) health(c *gin.Context) {
	if h.d.Ping != nil {
		if err := h.d.Ping(c.Request.Context()); err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "storage": err.Error()})
			return
		}
	}
	out := gin.H{"status": "ok", "time": time.Now().UTC()}
	if h.d.Status != nil {
		out["components"] = h.d.Status()
	}
	c.JSON(http.StatusOK, out)
}

func (h *handlers) insights(c *gin.Context) {
	uid, err := h.userID(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	c.JSON(http.StatusOK, h.d.Insights.Compute(c.Request.Context(), uid))
}

func (h *handlers) recommendations(c *gin.Context) {
	uid, err := h.userID(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	rec := insights.Recommend(h.d.Insights.Compute(c.Request.Context(), uid))
	c.JSON(http.StatusOK, gin.H{
		"optimal_hours":   rec.OptimalHours,
		"session_minutes": rec.SessionMinutes,
		"focus_tips":      rec.FocusTips,
	})
}

type estimateRequest struct {
	UserID int64 `json:"user_id"`
	domain.Candidate
}

func (h *handlers) estimate(c *gin.Context) {
	var req estimateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	uid := req.UserID
	if uid == 0 {
		uid = h.user
	}
	est, err := h.d.Estimator.Estimate(c.Request.Context(), uid, req.Candidate)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "estimate failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"minutes":       est.Minutes,
		"hours":         est.Hours(),
		"method":        est.Method,
		"confidence":    est.Confidence,
		"score":         est.Score,
		"similar_tasks": est.Similar,
	})
}

type scheduleRequest struct {
	UserID        int64              `json:"user_id"`
	Tasks         []domain.Candidate `json:"tasks"`
	ReferenceTime time.Time          `json:"reference_time"`
	Hours         []int              `json:"productive_hours"`
	Existing      []existingTask     `json:"existing"`
}

type existingTask struct {
	TaskID  int64     `json:"task_id"`
	Name    string    `json:"name"`
	Start   time.Time `json:"start"`
	Minutes float64   `json:"minutes"`
}

type scheduledView struct {
	TaskID       int64             `json:"task_id,omitempty"`
	Name         string            `json:"name"`
	Start        time.Time         `json:"start"`
	End          time.Time         `json:"end"`
	Minutes      float64           `json:"minutes"`
	BreakMinutes float64           `json:"break_after_minutes"`
	Confidence   domain.Confidence `json:"confidence"`
	Method       domain.Method     `json:"method"`
	Category     string            `json:"category,omitempty"`
	Project      string            `json:"project,omitempty"`
}

func (h *handlers) schedule(c *gin.Context) {
	var req scheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	for _, hr := range req.Hours {
		if hr < 0 || hr > 23 {
			badRequest(c, errors.New("productive_hours must be within 0..23"))
			return
		}
	}
	uid := req.UserID
	if uid == 0 {
		uid = h.user
	}
	breq := schedule.Request{UserID: uid, Tasks: req.Tasks, ReferenceTime: req.ReferenceTime, Hours: req.Hours}
	for _, e := range req.Existing {
		breq.Existing = append(breq.Existing, domain.ScheduledTask{
			TaskID:   e.TaskID,
			Name:     e.Name,
			Start:    e.Start,
			Duration: time.Duration(e.Minutes * float64(time.Minute)),
		})
	}

	placed := h.d.Schedule.Build(c.Request.Context(), breq)
	out := make([]scheduledView, 0, len(placed))
	for _, p := range placed {
		out = append(out, scheduledView{
			TaskID:       p.TaskID,
			Name:         p.Name,
			Start:        p.Start,
			End:          p.End(),
			Minutes:      p.Duration.Minutes(),
			BreakMinutes: p.TrailingBreak.Minutes(),
			Confidence:   p.Confidence,
			Method:       p.Method,
			Category:     p.Category,
			Project:      p.Project,
		})
	}
	c.JSON(http.StatusOK, gin.H{"schedule": out})
}

func (h *handlers) breakSuggestion(c *gin.Context) {
	uid, err := h.userID(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	s, ok := h.d.Breaks.Suggest(c.Request.Context(), uid)
	if !ok {
		c.JSON(http.StatusOK, gin.H{"should_break": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"should_break":     true,
		"severity":         s.Severity,
		"reason":           s.Reason,
		"duration_minutes": s.Duration.Minutes(),
		"worked_minutes":   s.WorkedMinutes,
	})
}

func (h *handlers) reminderState(c *gin.Context) {
	c.JSON(http.StatusOK, h.d.Reminder.State())
}

func (h *handlers) reminderStart(c *gin.Context) {
	h.d.Reminder.Start(c.Request.Context())
	c.JSON(http.StatusOK, h.d.Reminder.State())
}

func (h *handlers) reminderStop(c *gin.Context) {
	if err := h.d.Reminder.Stop(c.Request.Context()); err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, h.d.Reminder.State())
}

func (h *handlers) notifications(c *gin.Context) {
	uid, err := h.userID(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			badRequest(c, errors.New("limit must be a positive integer"))
			return
		}
		limit = min(n, maxHistory)
	}
	c.JSON(http.StatusOK, gin.H{"notifications": h.d.History.Recent(uid, limit)})
}

func (h *handlers) websocket(c *gin.Context) {
	uid, err := h.userID(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	h.d.Hub.ServeWS(c.Writer, c.Request, uid)
}
