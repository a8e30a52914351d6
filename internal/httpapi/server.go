package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"horse.fit/digest/internal/db"
	"horse.fit/digest/internal/globaltime"
)

var errReportNotFound = errors.New("report not found")

// ReportStore is the read surface the API serves from. *db.Pool implements it.
type ReportStore interface {
	FindLatestReport(ctx context.Context) (db.Persisted[db.Report], error)
	FindReportForDay(ctx context.Context, dayStart, dayEnd time.Time) (db.Persisted[db.Report], error)
	ListReportGroups(ctx context.Context, reportID db.ID[db.Report]) ([]db.Persisted[db.ReportGroup], error)
	ListGroupStories(ctx context.Context, groupID db.ID[db.ReportGroup], displayLang string) ([]db.GroupStory, error)
}

type Options struct {
	Addr            string
	DisplayLanguage string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type Server struct {
	store  ReportStore
	logger zerolog.Logger
	opts   Options
}

type reportPayload struct {
	ReportID  int64     `json:"report_id"`
	Tolerance float64   `json:"tolerance"`
	MinPoints int       `json:"min_points"`
	Score     float64   `json:"score"`
	Rows      int       `json:"rows"`
	Dims      int       `json:"dims"`
	CreatedAt time.Time `json:"created_at"`
}

type groupPayload struct {
	ReportGroupID int64           `json:"report_group_id"`
	StoryCount    int             `json:"story_count"`
	Stories       []db.GroupStory `json:"stories"`
}

type reportDetail struct {
	Report reportPayload  `json:"report"`
	Groups []groupPayload `json:"groups"`
}

func NewServer(store ReportStore, logger zerolog.Logger, opts Options) *Server {
	if strings.TrimSpace(opts.Addr) == "" {
		opts.Addr = ":8080"
	}
	if strings.TrimSpace(opts.DisplayLanguage) == "" {
		opts.DisplayLanguage = "en"
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 10 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 30 * time.Second
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}

	return &Server{
		store:  store,
		logger: logger,
		opts:   opts,
	}
}

// Start serves the read API until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	if s == nil || s.store == nil {
		return fmt.Errorf("server is not initialized")
	}

	e := s.router()

	httpServer := &http.Server{
		Addr:         s.opts.Addr,
		Handler:      e,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		if shutdownErr := e.Shutdown(shutdownCtx); shutdownErr != nil {
			s.logger.Error().Err(shutdownErr).Msg("server shutdown failed")
		}
	}()

	s.logger.Info().Str("addr", s.opts.Addr).Msg("digest api started")

	if err := e.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("start server: %w", err)
	}
	s.logger.Info().Msg("digest api stopped")
	return nil
}

func (s *Server) router() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.httpErrorHandler

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodOptions},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept"},
		MaxAge:       3600,
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				s.logger.Error().
					Err(v.Error).
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Str("remote_ip", v.RemoteIP).
					Str("request_id", v.RequestID).
					Msg("http request failed")
				return nil
			}

			s.logger.Info().
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("remote_ip", v.RemoteIP).
				Str("request_id", v.RequestID).
				Msg("http request")
			return nil
		},
	}))

	api := e.Group("/api/v1")
	api.GET("/health", s.handleHealth)
	api.GET("/reports/latest", s.handleLatestReport)
	api.GET("/reports/:date", s.handleReportForDay)
	api.GET("/groups/:group_id/stories", s.handleGroupStories)

	return e
}

func (s *Server) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	message := "Internal server error"
	if he, ok := err.(*echo.HTTPError); ok {
		status = he.Code
		switch v := he.Message.(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				message = v
			}
		default:
			if text := strings.TrimSpace(http.StatusText(status)); text != "" {
				message = text
			}
		}
	} else if err != nil {
		message = err.Error()
	}

	if status >= 500 {
		_ = internalError(c, "Internal server error")
		return
	}
	_ = fail(c, status, message, nil)
}

func (s *Server) handleHealth(c echo.Context) error {
	return success(c, map[string]any{
		"service": "digest",
		"time":    globaltime.UTC(),
	})
}

func (s *Server) handleLatestReport(c echo.Context) error {
	detail, err := s.queryReportDetail(c.Request().Context(), func(ctx context.Context) (db.Persisted[db.Report], error) {
		return s.store.FindLatestReport(ctx)
	})
	if err != nil {
		if errors.Is(err, errReportNotFound) {
			return failNotFound(c, "No report yet")
		}
		s.logger.Error().Err(err).Msg("query latest report failed")
		return internalError(c, "Failed to load report")
	}
	return success(c, detail)
}

func (s *Server) handleReportForDay(c echo.Context) error {
	day, err := time.Parse("2006-01-02", strings.TrimSpace(c.Param("date")))
	if err != nil {
		return failValidation(c, map[string]string{"date": "must be YYYY-MM-DD"})
	}
	dayStart := day.UTC()
	dayEnd := dayStart.AddDate(0, 0, 1)

	detail, err := s.queryReportDetail(c.Request().Context(), func(ctx context.Context) (db.Persisted[db.Report], error) {
		return s.store.FindReportForDay(ctx, dayStart, dayEnd)
	})
	if err != nil {
		if errors.Is(err, errReportNotFound) {
			return failNotFound(c, "No report for this day")
		}
		s.logger.Error().Err(err).Str("date", c.Param("date")).Msg("query report for day failed")
		return internalError(c, "Failed to load report")
	}
	return success(c, detail)
}

func (s *Server) handleGroupStories(c echo.Context) error {
	groupID, err := parseID(c.Param("group_id"))
	if err != nil {
		return failValidation(c, map[string]string{"group_id": "must be a positive integer"})
	}

	stories, err := s.store.ListGroupStories(c.Request().Context(), db.ID[db.ReportGroup](groupID), s.opts.DisplayLanguage)
	if err != nil {
		s.logger.Error().Err(err).Int64("report_group_id", groupID).Msg("query group stories failed")
		return internalError(c, "Failed to load group stories")
	}
	if len(stories) == 0 {
		return failNotFound(c, "Group not found")
	}

	return success(c, groupPayload{
		ReportGroupID: groupID,
		StoryCount:    len(stories),
		Stories:       stories,
	})
}

func (s *Server) queryReportDetail(ctx context.Context, find func(context.Context) (db.Persisted[db.Report], error)) (*reportDetail, error) {
	report, err := find(ctx)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, errReportNotFound
		}
		return nil, fmt.Errorf("query report: %w", err)
	}

	groups, err := s.store.ListReportGroups(ctx, report.ID)
	if err != nil {
		return nil, fmt.Errorf("query report groups: %w", err)
	}

	detail := &reportDetail{
		Report: reportPayload{
			ReportID:  report.ID.Int64(),
			Tolerance: report.Value.Tolerance,
			MinPoints: report.Value.MinPoints,
			Score:     report.Value.Score,
			Rows:      report.Value.Rows,
			Dims:      report.Value.Dims,
			CreatedAt: report.Value.CreatedAt,
		},
		Groups: make([]groupPayload, 0, len(groups)),
	}

	for _, group := range groups {
		stories, err := s.store.ListGroupStories(ctx, group.ID, s.opts.DisplayLanguage)
		if err != nil {
			return nil, fmt.Errorf("query group stories: %w", err)
		}
		detail.Groups = append(detail.Groups, groupPayload{
			ReportGroupID: group.ID.Int64(),
			StoryCount:    len(stories),
			Stories:       stories,
		})
	}

	return detail, nil
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return id, nil
}
