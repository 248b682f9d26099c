package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"courseboard/internal/course"
	"courseboard/internal/notification"
	"courseboard/internal/websocket"
)

// Server is the HTTP boundary. It holds no business logic of its own: each
// handler performs its business action through a service, which persists a
// notification record and then invokes the delivery dispatcher.
type Server struct {
	engine        *gin.Engine
	db            *gorm.DB
	registry      *websocket.Registry
	wsHandler     http.Handler
	notifications *notification.Service
	courses       *course.Service
	jwtSecret     string
	wsPath        string
	devProxyPath  string
	log           zerolog.Logger
}

// NewServer builds the Gin engine and mounts all routes.
func NewServer(
	db *gorm.DB,
	registry *websocket.Registry,
	wsHandler http.Handler,
	notifications *notification.Service,
	courses *course.Service,
	jwtSecret string,
	wsPath string,
	devProxyPath string,
	log zerolog.Logger,
) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(CORS())
	engine.Use(RequestLogger(log))

	s := &Server{
		engine:        engine,
		db:            db,
		registry:      registry,
		wsHandler:     wsHandler,
		notifications: notifications,
		courses:       courses,
		jwtSecret:     jwtSecret,
		wsPath:        wsPath,
		devProxyPath:  devProxyPath,
		log:           log,
	}
	s.setupRoutes()
	return s
}

// Engine exposes the router as an http.Handler.
func (s *Server) Engine() *gin.Engine { return s.engine }

func (s *Server) setupRoutes() {
	s.engine.GET("/healthz", s.health)

	// Upgrade traffic. The websocket handler dispatches by exact path,
	// so the dev channel is mounted through the same handler.
	s.engine.GET(s.wsPath, gin.WrapH(s.wsHandler))
	if s.devProxyPath != "" {
		s.engine.Any(s.devProxyPath, gin.WrapH(s.wsHandler))
	}

	auth := s.engine.Group("/api")
	auth.Use(RequireAuth(s.jwtSecret))
	{
		auth.GET("/notifications", s.listNotifications)
		auth.PATCH("/notifications/:id/read", s.markNotificationRead)
		auth.POST("/courses/:id/materials", s.createMaterial)
		auth.POST("/courses/:id/invite", s.inviteParticipant)
		auth.POST("/enrollments/:id/approve", s.approveEnrollment)
		auth.POST("/announcements", s.announce)
	}
}

func (s *Server) health(c *gin.Context) {
	status := http.StatusOK
	dbStatus := "healthy"

	sqlDB, err := s.db.DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		status = http.StatusServiceUnavailable
		dbStatus = err.Error()
	}

	c.JSON(status, gin.H{
		"status":      http.StatusText(status),
		"timestamp":   time.Now(),
		"database":    dbStatus,
		"connections": s.registry.Stats(),
	})
}

func (s *Server) listNotifications(c *gin.Context) {
	userID, ok := CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	items, err := s.notifications.ListForUser(c.Request.Context(), userID, limit)
	if err != nil {
		s.log.Error().Err(err).Msg("notification list failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list notifications"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"notifications": items})
}

func (s *Server) markNotificationRead(c *gin.Context) {
	n, err := s.notifications.MarkRead(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, notification.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "notification not found"})
			return
		}
		s.log.Error().Err(err).Msg("mark read failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to mark notification read"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"notification": n})
}

func (s *Server) createMaterial(c *gin.Context) {
	courseID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid course id"})
		return
	}

	title := c.PostForm("title")
	if title == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "title is required"})
		return
	}

	var (
		filename    string
		contentType string
		size        int64
		reader      io.Reader
	)
	if fileHeader, err := c.FormFile("file"); err == nil {
		file, err := fileHeader.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read upload"})
			return
		}
		defer file.Close()
		filename = fileHeader.Filename
		contentType = fileHeader.Header.Get("Content-Type")
		size = fileHeader.Size
		reader = file
	}

	m, err := s.courses.CreateMaterial(c.Request.Context(), courseID, title, filename, reader, size, contentType)
	if err != nil {
		if errors.Is(err, course.ErrCourseNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "course not found"})
			return
		}
		s.log.Error().Err(err).Msg("material creation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create material"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"material": m})
}

func (s *Server) inviteParticipant(c *gin.Context) {
	courseID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid course id"})
		return
	}

	var req struct {
		UserID int64 `json:"userId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.UserID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId is required"})
		return
	}

	e, err := s.courses.InviteParticipant(c.Request.Context(), courseID, req.UserID)
	if err != nil {
		if errors.Is(err, course.ErrCourseNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "course not found"})
			return
		}
		s.log.Error().Err(err).Msg("invite failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to invite participant"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"enrollment": e})
}

func (s *Server) approveEnrollment(c *gin.Context) {
	enrollmentID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid enrollment id"})
		return
	}

	e, err := s.courses.ApproveEnrollment(c.Request.Context(), enrollmentID)
	if err != nil {
		switch {
		case errors.Is(err, course.ErrEnrollmentNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "enrollment not found"})
		case errors.Is(err, course.ErrAlreadyApproved):
			c.JSON(http.StatusConflict, gin.H{"error": "enrollment already approved"})
		default:
			s.log.Error().Err(err).Msg("approval failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to approve enrollment"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"enrollment": e})
}

func (s *Server) announce(c *gin.Context) {
	var req struct {
		Title   string `json:"title"`
		Message string `json:"message"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Title == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "title is required"})
		return
	}

	n, err := s.notifications.Announce(c.Request.Context(), req.Title, req.Message)
	if err != nil {
		s.log.Error().Err(err).Msg("announcement failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create announcement"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"notification": n})
}
