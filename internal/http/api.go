package http

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"sprintleague/internal/auth"
	"sprintleague/internal/domain"
	"sprintleague/internal/service"
	"sprintleague/internal/storage"
)

const sessionCookie = "sl_session"

// Handler wires HTTP routes to domain services.
type Handler struct {
	users   service.UserService
	runs    service.RunService
	roster  service.RosterService
	signer  *auth.Signer
	db      *sql.DB
	storage storage.Service
	bucket  string
	prefix  string
	scope   string
	logger  *logrus.Logger
}

func NewHandler(
	users service.UserService,
	runs service.RunService,
	roster service.RosterService,
	signer *auth.Signer,
	db *sql.DB,
	store storage.Service,
	bucket, keyPrefix, scoreboardScope string,
	logger *logrus.Logger,
) *Handler {
	return &Handler{
		users:   users,
		runs:    runs,
		roster:  roster,
		signer:  signer,
		db:      db,
		storage: store,
		bucket:  bucket,
		prefix:  keyPrefix,
		scope:   scoreboardScope,
		logger:  logger,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.Use(corsMiddleware())

	api := router.Group("/api")
	{
		api.GET("/health", h.health)

		api.POST("/auth/register", h.register)
		api.POST("/auth/login", h.login)
		api.POST("/auth/logout", h.logout)

		authed := api.Group("", h.requireSession())
		{
			authed.GET("/whoami", h.whoami)

			authed.POST("/runs", h.submitRun)
			authed.GET("/runs/mine", h.myRuns)
			authed.GET("/runs/average", h.myAverage)

			authed.GET("/scoreboard", h.scoreboard)
			authed.GET("/leaderboard", h.leaderboard)

			coach := authed.Group("/coach", h.requireRole(domain.RoleCoach))
			{
				coach.GET("/users", h.listUsers)
				coach.PATCH("/users/:username", h.updateUser)

				coach.GET("/runs", h.listRuns)
				coach.POST("/runs", h.insertRun)
				coach.PATCH("/runs/:id", h.updateRun)
				coach.DELETE("/runs/:id", h.deleteRun)

				coach.POST("/balance", h.proposeBalance)
				coach.POST("/balance/:id/confirm", h.confirmBalance)

				coach.POST("/export", h.exportSnapshot)
				coach.GET("/snapshots", h.listSnapshots)
			}
		}
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// --- session middleware ---

const sessionKey = "session"

// requireSession verifies the sl_session cookie and aborts with 401 on
// any failure. Verification fails closed: there is no partial identity.
func (h *Handler) requireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := c.Cookie(sessionCookie)
		if err != nil || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not logged in"})
			return
		}
		session, err := h.signer.Verify(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid session"})
			return
		}
		c.Set(sessionKey, session)
		c.Next()
	}
}

func (h *Handler) requireRole(role domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		if currentSession(c).Role != role {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "insufficient role"})
			return
		}
		c.Next()
	}
}

func currentSession(c *gin.Context) *auth.Session {
	v, _ := c.Get(sessionKey)
	session, _ := v.(*auth.Session)
	return session
}

func (h *Handler) setSessionCookie(c *gin.Context, token string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(sessionCookie, token, maxAge, "/", "", false, true)
}

// --- auth ---

type registerRequest struct {
	Username         string `json:"username" binding:"required"`
	Password         string `json:"password" binding:"required"`
	RegisterPassword string `json:"register_password"`
}

func (h *Handler) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.users.Register(c.Request.Context(), req.Username, req.Password, req.RegisterPassword)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, userToResponse(*user))
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.users.Authenticate(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		h.respondError(c, err)
		return
	}

	token, err := h.signer.Sign(user)
	if err != nil {
		h.respondError(c, fmt.Errorf("sign session token: %w", err))
		return
	}

	h.setSessionCookie(c, token, int(h.signer.TTL().Seconds()))
	c.JSON(http.StatusOK, gin.H{"ok": true, "role": user.Role})
}

func (h *Handler) logout(c *gin.Context) {
	h.setSessionCookie(c, "", -1)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handler) whoami(c *gin.Context) {
	session := currentSession(c)
	c.JSON(http.StatusOK, gin.H{
		"username": session.Username,
		"role":     session.Role,
		"team":     session.Team,
	})
}

// --- player runs ---

type submitRunRequest struct {
	DurationMs int64 `json:"duration_ms"`
	// Raw stopwatch timestamps, accepted as an alternative to
	// duration_ms. The server only sanity-bounds the difference; the
	// stopwatch itself is client-side by design.
	StartMs float64 `json:"start"`
	StopMs  float64 `json:"stop"`
}

func (r submitRunRequest) duration() int64 {
	if r.DurationMs != 0 {
		return r.DurationMs
	}
	return int64(r.StopMs - r.StartMs)
}

func (h *Handler) submitRun(c *gin.Context) {
	var req submitRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	run, err := h.runs.Submit(c.Request.Context(), currentSession(c).Username, req.duration())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, runToResponse(*run))
}

func (h *Handler) myRuns(c *gin.Context) {
	runs, err := h.runs.ListFor(c.Request.Context(), currentSession(c).Username)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rows": runsToResponse(runs)})
}

func (h *Handler) myAverage(c *gin.Context) {
	avg, ok, err := h.runs.Average(c.Request.Context(), currentSession(c).Username)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if !ok {
		// distinct from an average of 0ms
		c.JSON(http.StatusOK, gin.H{"runs": 0})
		return
	}
	c.JSON(http.StatusOK, gin.H{"avg_ms": avg, "scope": "all"})
}

// --- aggregated views ---

func (h *Handler) scoreboard(c *gin.Context) {
	totals, err := h.runs.Scoreboard(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"blue":  totals.BlueMs,
		"white": totals.WhiteMs,
		"scope": h.scope,
	})
}

func (h *Handler) leaderboard(c *gin.Context) {
	rows, err := h.runs.Leaderboard(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}

	resp := make([]LeaderboardRowResponse, len(rows))
	for i, row := range rows {
		resp[i] = LeaderboardRowResponse{
			Index:      row.Index,
			Username:   row.Username,
			Team:       row.Team,
			DurationMs: row.DurationMs,
			CreatedAt:  row.CreatedAt.Format(time.RFC3339),
		}
	}
	c.JSON(http.StatusOK, gin.H{"rows": resp})
}

// --- coach: roster ---

func (h *Handler) listUsers(c *gin.Context) {
	users, err := h.users.List(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}

	resp := make([]UserResponse, len(users))
	for i, u := range users {
		resp[i] = userToResponse(u)
	}
	c.JSON(http.StatusOK, gin.H{"users": resp})
}

type updateUserRequest struct {
	Role *string `json:"role"`
	Team *string `json:"team"`
}

func (h *Handler) updateUser(c *gin.Context) {
	var req updateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var role *domain.Role
	if req.Role != nil {
		parsed, ok := domain.ParseRole(*req.Role)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid role"})
			return
		}
		role = &parsed
	}
	var team *domain.Team
	if req.Team != nil {
		parsed, ok := domain.ParseTeam(*req.Team)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid team"})
			return
		}
		team = &parsed
	}

	user, err := h.users.UpdateUser(c.Request.Context(), c.Param("username"), role, team)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "user": userToResponse(*user)})
}

// --- coach: runs ---

func (h *Handler) listRuns(c *gin.Context) {
	runs, err := h.runs.ListAll(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}

	users, err := h.users.List(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	teamOf := make(map[string]domain.Team, len(users))
	for _, u := range users {
		teamOf[domain.NormalizeUsername(u.Username)] = u.Team
	}

	resp := make([]CoachRunResponse, len(runs))
	for i, r := range runs {
		team := domain.TeamNone
		if t, known := teamOf[domain.NormalizeUsername(r.Username)]; known {
			team = t
		}
		resp[i] = CoachRunResponse{
			RunResponse: runToResponse(r),
			Team:        team,
		}
	}
	c.JSON(http.StatusOK, gin.H{"rows": resp})
}

type insertRunRequest struct {
	Username   string `json:"username" binding:"required"`
	DurationMs int64  `json:"duration_ms" binding:"required"`
}

func (h *Handler) insertRun(c *gin.Context) {
	var req insertRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	run, err := h.runs.Submit(c.Request.Context(), req.Username, req.DurationMs)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, runToResponse(*run))
}

type updateRunRequest struct {
	Username   *string `json:"username"`
	DurationMs *int64  `json:"duration_ms"`
}

func (h *Handler) updateRun(c *gin.Context) {
	id, ok := runID(c)
	if !ok {
		return
	}

	var req updateRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.runs.Update(c.Request.Context(), id, req.Username, req.DurationMs); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handler) deleteRun(c *gin.Context) {
	id, ok := runID(c)
	if !ok {
		return
	}
	if err := h.runs.Delete(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": id})
}

func runID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run id"})
		return 0, false
	}
	return id, true
}

// --- coach: balanced split ---

func (h *Handler) proposeBalance(c *gin.Context) {
	proposal, err := h.roster.ProposeBalance(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, proposalToResponse(proposal))
}

func (h *Handler) confirmBalance(c *gin.Context) {
	proposal, err := h.roster.ConfirmBalance(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	resp := proposalToResponse(proposal)
	resp.Applied = true
	c.JSON(http.StatusOK, resp)
}

// --- coach: snapshot export ---

func (h *Handler) exportSnapshot(c *gin.Context) {
	if h.storage == nil || h.bucket == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage service not configured"})
		return
	}

	totals, err := h.runs.Scoreboard(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	rows, err := h.runs.Leaderboard(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}

	snapshot := gin.H{
		"taken_at":    time.Now().UTC().Format(time.RFC3339),
		"scope":       h.scope,
		"blue":        totals.BlueMs,
		"white":       totals.WhiteMs,
		"leaderboard": rows,
	}
	body, err := json.Marshal(snapshot)
	if err != nil {
		h.respondError(c, fmt.Errorf("marshal snapshot: %w", err))
		return
	}

	uploadCtx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	name := fmt.Sprintf("scoreboard-%s.json", time.Now().UTC().Format("20060102-150405"))
	location, err := h.storage.UploadSnapshot(uploadCtx, name, body, storage.UploadOptions{
		Bucket:    h.bucket,
		KeyPrefix: h.prefix,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"location": location})
}

func (h *Handler) listSnapshots(c *gin.Context) {
	if h.storage == nil || h.bucket == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage service not configured"})
		return
	}

	objects, err := h.storage.ListObjects(c.Request.Context(), h.bucket, h.prefix)
	if err != nil {
		h.respondError(c, err)
		return
	}

	resp := make([]StorageObjectResponse, len(objects))
	for i := range objects {
		resp[i] = objectToResponse(objects[i])
	}
	c.JSON(http.StatusOK, gin.H{"objects": resp})
}

// --- health ---

func (h *Handler) health(c *gin.Context) {
	pingCtx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	start := time.Now()
	if err := h.db.PingContext(pingCtx); err != nil {
		h.logger.Warnf("health ping: %v", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"ok": false, "error": "database unreachable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "ms": time.Since(start).Milliseconds()})
}

// --- error mapping ---

// respondError maps service errors onto the HTTP taxonomy. Validation
// and authorization failures carry their specific reason; anything
// unrecognized is logged in full and surfaced as a generic retryable
// error so an upstream failure never masquerades as an empty result.
func (h *Handler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, service.ErrInvalidRegistrationPassword):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrUserAlreadyExists):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrDailyCapExceeded):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrInvalidDuration),
		errors.Is(err, service.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrUserNotFound),
		errors.Is(err, service.ErrRunNotFound),
		errors.Is(err, service.ErrProposalNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrTooFewPlayers):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	default:
		h.logger.Errorf("request failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "temporary server error, retry"})
	}
}

// --- response types ---

type UserResponse struct {
	Username string      `json:"username"`
	Role     domain.Role `json:"role"`
	Team     domain.Team `json:"team"`
}

type RunResponse struct {
	ID         int64  `json:"id"`
	Username   string `json:"username"`
	DurationMs int64  `json:"duration_ms"`
	CreatedAt  string `json:"created_at"`
}

type CoachRunResponse struct {
	RunResponse
	Team domain.Team `json:"team"`
}

type LeaderboardRowResponse struct {
	Index      int         `json:"index"`
	Username   string      `json:"username"`
	Team       domain.Team `json:"team"`
	DurationMs int64       `json:"duration_ms"`
	CreatedAt  string      `json:"created_at"`
}

type BalanceProposalResponse struct {
	ProposalID string   `json:"proposal_id"`
	Blue       []string `json:"blue"`
	White      []string `json:"white"`
	BlueSumMs  int64    `json:"blue_sum_ms"`
	WhiteSumMs int64    `json:"white_sum_ms"`
	DeltaMs    int64    `json:"delta_ms"`
	Imputed    []string `json:"imputed,omitempty"`
	ExpiresAt  string   `json:"expires_at"`
	Applied    bool     `json:"applied"`
}

type StorageObjectResponse struct {
	Key          string  `json:"key"`
	Size         int64   `json:"size"`
	LastModified *string `json:"last_modified,omitempty"`
}

func userToResponse(u domain.User) UserResponse {
	return UserResponse{
		Username: u.Username,
		Role:     u.Role,
		Team:     u.Team,
	}
}

func runToResponse(r domain.Run) RunResponse {
	return RunResponse{
		ID:         r.ID,
		Username:   r.Username,
		DurationMs: r.DurationMs,
		CreatedAt:  r.CreatedAt.Format(time.RFC3339),
	}
}

func runsToResponse(runs []domain.Run) []RunResponse {
	resp := make([]RunResponse, len(runs))
	for i := range runs {
		resp[i] = runToResponse(runs[i])
	}
	return resp
}

func proposalToResponse(p *service.BalanceProposal) BalanceProposalResponse {
	return BalanceProposalResponse{
		ProposalID: p.ID,
		Blue:       p.Blue,
		White:      p.White,
		BlueSumMs:  p.BlueSumMs,
		WhiteSumMs: p.WhiteSumMs,
		DeltaMs:    p.DeltaMs,
		Imputed:    p.Imputed,
		ExpiresAt:  p.ExpiresAt.UTC().Format(time.RFC3339),
	}
}

func objectToResponse(obj storage.ObjectInfo) StorageObjectResponse {
	resp := StorageObjectResponse{
		Key:  obj.Key,
		Size: obj.Size,
	}
	if obj.LastModified != nil && !obj.LastModified.IsZero() {
		v := obj.LastModified.Format(time.RFC3339)
		resp.LastModified = &v
	}
	return resp
}
