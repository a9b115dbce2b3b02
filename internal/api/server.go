// Package api serves stored signals, scan runs and metrics over read-only HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"SignalScanner/internal/cache"
	"SignalScanner/internal/metrics"
	"SignalScanner/internal/model"
	"SignalScanner/internal/recorder"
	"SignalScanner/internal/report"
)

const (
	defaultSignalLimit = 100
	defaultRunLimit    = 20
	defaultStatsDays   = 7
	maxStatsDays       = 365
	topSymbols         = 10
)

// Response is the envelope of every JSON reply.
type Response struct {
	Success   bool   `json:"success"`
	Data      any    `json:"data,omitempty"`
	Meta      *Meta  `json:"meta,omitempty"`
	Error     string `json:"error,omitempty"`
	Timestamp string `json:"timestamp"`
}

// Meta describes a list reply.
type Meta struct {
	Total int `json:"total"`
	Limit int `json:"limit,omitempty"`
}

// TodayData is the payload of /api/signals/today.
type TodayData struct {
	Date      string         `json:"date"`
	Total     int            `json:"total"`
	Buy       int            `json:"buy"`
	Short     int            `json:"short"`
	Truncated bool           `json:"truncated"` // Signals holds only the newest entries
	Signals   []model.Signal `json:"signals"`
}

// Server holds the read-only handles the handlers need. recent and metrics may be nil.
type Server struct {
	store   recorder.Reader
	recent  cache.RecentReader
	metrics *metrics.Metrics
	log     *zap.SugaredLogger
	loc     *time.Location

	now func() time.Time
}

// NewServer creates the API. loc sets the calendar day boundaries; nil means UTC.
func NewServer(store recorder.Reader, recent cache.RecentReader, m *metrics.Metrics, loc *time.Location, log *zap.SugaredLogger) *Server {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Server{store: store, recent: recent, metrics: m, log: log, loc: loc, now: time.Now}
}

// Router builds the gin engine with every route registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/healthz", s.health)
	if s.metrics != nil {
		r.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	api := r.Group("/api")
	{
		signals := api.Group("/signals")
		signals.GET("", s.listSignals)
		signals.GET("/today", s.todaySignals)
		signals.GET("/recent", s.recentSignals)

		api.GET("/stats", s.stats)
		api.GET("/runs", s.runs)
	}
	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Infow("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debugw("http request",
			"method", c.Request.Method, "path", c.Request.URL.Path,
			"status", c.Writer.Status(), "duration", time.Since(start))
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": s.now().UTC().Format(time.RFC3339)})
}

// GET /api/signals?from=&to=&symbol=&limit=
func (s *Server) listSignals(c *gin.Context) {
	from, err := report.ParseBound(c.Query("from"), false, s.loc)
	if err != nil {
		s.fail(c, http.StatusBadRequest, err.Error())
		return
	}
	to, err := report.ParseBound(c.Query("to"), true, s.loc)
	if err != nil {
		s.fail(c, http.StatusBadRequest, err.Error())
		return
	}
	limit, ok := s.intParam(c, "limit", defaultSignalLimit, 1, recorder.DefaultLimit)
	if !ok {
		return
	}

	q := recorder.Query{
		From:   from,
		To:     to,
		Symbol: strings.ToUpper(strings.TrimSpace(c.Query("symbol"))),
		Limit:  limit,
	}
	sigs, err := s.store.Signals(c.Request.Context(), q)
	if err != nil {
		s.internal(c, "query signals", err)
		return
	}
	s.ok(c, sigs, &Meta{Total: len(sigs), Limit: limit})
}

// GET /api/signals/today?limit=
func (s *Server) todaySignals(c *gin.Context) {
	limit, ok := s.intParam(c, "limit", recorder.DefaultLimit, 1, recorder.DefaultLimit)
	if !ok {
		return
	}
	from, to := report.DayBounds(s.now(), s.loc)
	ctx := c.Request.Context()
	st, err := s.store.Stats(ctx, from, to, 1)
	if err != nil {
		s.internal(c, "query today's stats", err)
		return
	}
	sigs, err := s.store.Signals(ctx, recorder.Query{From: from, To: to, Limit: limit})
	if err != nil {
		s.internal(c, "query today's signals", err)
		return
	}
	data := TodayData{
		Date:      from.Format("2006-01-02"),
		Total:     st.Total,
		Buy:       st.ByDirection[model.Bullish],
		Short:     st.ByDirection[model.Bearish],
		Truncated: st.Total > len(sigs),
		Signals:   sigs,
	}
	s.ok(c, data, &Meta{Total: st.Total, Limit: limit})
}

// GET /api/signals/recent?limit=
func (s *Server) recentSignals(c *gin.Context) {
	if s.recent == nil {
		s.fail(c, http.StatusServiceUnavailable, "signal cache is not configured")
		return
	}
	limit, ok := s.intParam(c, "limit", 50, 1, cache.DefaultRecentMax)
	if !ok {
		return
	}
	sigs, err := s.recent.Recent(c.Request.Context(), limit)
	if err != nil {
		s.log.Warnw("recent signals unavailable", "error", err)
		s.fail(c, http.StatusServiceUnavailable, "signal cache unavailable")
		return
	}
	if sigs == nil {
		sigs = []model.Signal{}
	}
	s.ok(c, sigs, &Meta{Total: len(sigs), Limit: limit})
}

// GET /api/stats?days=
func (s *Server) stats(c *gin.Context) {
	days, ok := s.intParam(c, "days", defaultStatsDays, 1, maxStatsDays)
	if !ok {
		return
	}
	_, to := report.DayBounds(s.now(), s.loc)
	from := to.AddDate(0, 0, -days)
	st, err := s.store.Stats(c.Request.Context(), from, to, topSymbols)
	if err != nil {
		s.internal(c, "query stats", err)
		return
	}
	s.ok(c, st, nil)
}

// GET /api/runs?limit=
func (s *Server) runs(c *gin.Context) {
	limit, ok := s.intParam(c, "limit", defaultRunLimit, 1, recorder.DefaultLimit)
	if !ok {
		return
	}
	runs, err := s.store.RecentRuns(c.Request.Context(), limit)
	if err != nil {
		s.internal(c, "query runs", err)
		return
	}
	s.ok(c, runs, &Meta{Total: len(runs), Limit: limit})
}

// intParam reads an optional integer query parameter within [lo, hi].
// It writes a 400 and returns false when the value is malformed.
func (s *Server) intParam(c *gin.Context, name string, def, lo, hi int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < lo || n > hi {
		s.fail(c, http.StatusBadRequest, name+" must be an integer between "+strconv.Itoa(lo)+" and "+strconv.Itoa(hi))
		return 0, false
	}
	return n, true
}

func (s *Server) ok(c *gin.Context, data any, meta *Meta) {
	c.JSON(http.StatusOK, Response{
		Success:   true,
		Data:      data,
		Meta:      meta,
		Timestamp: s.now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) fail(c *gin.Context, status int, msg string) {
	c.JSON(status, Response{Error: msg, Timestamp: s.now().UTC().Format(time.RFC3339)})
}

func (s *Server) internal(c *gin.Context, what string, err error) {
	s.log.Errorw(what, "error", err)
	s.fail(c, http.StatusInternalServerError, what+" failed")
}
