package login

import (
	"fmt"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nbelghith/authwatch/internal/audit"
	"github.com/nbelghith/authwatch/internal/events"
	"github.com/nbelghith/authwatch/internal/idgen"
	"github.com/nbelghith/authwatch/internal/logging"
	"github.com/nbelghith/authwatch/internal/validation"
)

// Handler exposes the login surface and the ops read endpoints.
type Handler struct {
	orch    *Orchestrator
	events  events.Store
	records audit.Store
}

// NewHandler creates the HTTP handler set.
func NewHandler(orch *Orchestrator, eventStore events.Store, recordStore audit.Store) *Handler {
	return &Handler{orch: orch, events: eventStore, records: recordStore}
}

type loginRequest struct {
	Identity string `json:"identity"`
	Secret   string `json:"secret"`
	Locale   string `json:"locale"`
	Device   string `json:"device"`
	Agent    string `json:"agent"` // optional explicit override (simulation)
}

// HandleLogin evaluates one login attempt.
//
// POST /v1/login
func (h *Handler) HandleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "request body must be valid JSON",
		})
		return
	}

	if errs := validation.Validate(
		validation.MaxLength("identity", req.Identity, validation.MaxIdentityLength),
		validation.MaxLength("locale", req.Locale, validation.MaxFieldLength),
		validation.MaxLength("device", req.Device, validation.MaxFieldLength),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "details": errs})
		return
	}

	attempt := Attempt{
		Identity:  validation.SanitizeString(req.Identity, validation.MaxIdentityLength),
		Secret:    req.Secret,
		Origin:    c.ClientIP(),
		Locale:    validation.SanitizeString(req.Locale, validation.MaxFieldLength),
		Device:    validation.SanitizeString(req.Device, validation.MaxFieldLength),
		UserAgent: c.GetHeader("User-Agent"),
		Agent:     validation.SanitizeString(req.Agent, validation.MaxFieldLength),
	}

	result, err := h.orch.Evaluate(c.Request.Context(), attempt)
	if err != nil {
		// Persistence-class failure: no verdict without durable state.
		logging.L(c.Request.Context()).Error("login evaluation failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Unable to evaluate login attempt",
		})
		return
	}

	switch result.Disposition {
	case DispositionBlocked:
		c.JSON(http.StatusForbidden, gin.H{
			"error":    "blocked",
			"message":  blockMessage(result.RiskCode),
			"riskCode": result.RiskCode,
		})
	case DispositionHijackSuspected:
		body := gin.H{
			"error":    "verification_required",
			"message":  "Suspicious activity detected. Identity verification required.",
			"riskCode": result.RiskCode,
		}
		if result.Rule.Triggered {
			// Only the rule path exposes its score and factors.
			body["riskScore"] = result.Rule.Score
			body["factors"] = result.Rule.Factors
		}
		c.JSON(http.StatusUnauthorized, body)
	case DispositionBadCredentials:
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   "bad_credentials",
			"message": "Incorrect identity or secret.",
		})
	default:
		c.JSON(http.StatusOK, gin.H{
			"message":  fmt.Sprintf("Welcome %s.", result.Event.Identity),
			"riskCode": result.RiskCode,
		})
	}
}

func blockMessage(code events.RiskLabel) string {
	switch code {
	case events.LabelSQLInjection:
		return "SQL injection detected. Access blocked."
	case events.LabelBruteForce:
		return "Brute force detected. Access blocked."
	default:
		return "Access blocked."
	}
}

type simulateRequest struct {
	Identity string `json:"identity"`
	Count    int    `json:"count"`
}

// SimulateBruteForce inserts a burst of failed attempts for a target
// identity spread over the trailing 50 seconds, from one random origin.
// Demo traffic generator for exercising the window classifier.
//
// POST /v1/simulate/bruteforce
func (h *Handler) SimulateBruteForce(c *gin.Context) {
	var req simulateRequest
	_ = c.ShouldBindJSON(&req) // all fields optional
	if req.Identity == "" {
		req.Identity = "admin"
	}
	if req.Count <= 0 || req.Count > 500 {
		req.Count = 50
	}

	origin := fmt.Sprintf("%d.%d.%d.%d",
		rand.Intn(254)+1, rand.Intn(254)+1, rand.Intn(254)+1, rand.Intn(254)+1)

	ctx := c.Request.Context()
	base := time.Now().UTC().Add(-50 * time.Second)
	step := 50 * time.Second / time.Duration(req.Count)

	for i := 0; i < req.Count; i++ {
		ev := &events.LoginEvent{
			ID:        idgen.WithPrefix("evt_"),
			Identity:  req.Identity,
			Origin:    origin,
			Timestamp: base.Add(time.Duration(i) * step),
			Succeeded: false,
			Locale:    "France",
			Device:    "Mobile",
			Agent:     "Unknown",
			RiskLabel: events.LabelBruteForce,
		}
		if err := h.events.Insert(ctx, ev); err != nil {
			logging.L(ctx).Error("brute-force simulation insert failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "internal_error",
				"message": "Simulation failed",
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"message":  fmt.Sprintf("%d failed attempts inserted over the trailing 50 seconds.", req.Count),
		"identity": req.Identity,
		"origin":   origin,
	})
}

// ListEvents returns the newest login events.
//
// GET /v1/events
func (h *Handler) ListEvents(c *gin.Context) {
	limit := parseLimit(c.Query("limit"), 100, 1000)
	evs, err := h.events.Recent(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}
	if evs == nil {
		evs = []*events.LoginEvent{}
	}
	c.JSON(http.StatusOK, gin.H{"events": evs, "count": len(evs)})
}

// ListAuditRecords returns the newest audit records.
//
// GET /v1/audit
func (h *Handler) ListAuditRecords(c *gin.Context) {
	limit := parseLimit(c.Query("limit"), 100, 1000)
	recs, err := h.records.Recent(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}
	if recs == nil {
		recs = []*audit.Record{}
	}
	c.JSON(http.StatusOK, gin.H{"records": recs, "count": len(recs)})
}

func parseLimit(s string, def, max int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}
