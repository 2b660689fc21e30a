package workflow

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/scamshield/scamshield/internal/idgen"
	"github.com/scamshield/scamshield/internal/quiz"
	"github.com/scamshield/scamshield/internal/session"
	"github.com/scamshield/scamshield/internal/validation"
)

// Handler provides HTTP endpoints for the verification workflow.
type Handler struct {
	engine *Engine
}

// NewHandler creates a new workflow handler.
func NewHandler(engine *Engine) *Handler {
	return &Handler{engine: engine}
}

// RegisterRoutes sets up payment verification routes. Middleware passed in
// txMW is applied only to the per-transaction stage routes, not to scoring.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup, txMW ...gin.HandlerFunc) {
	r.POST("/payments/score", h.ScorePayment)

	tx := r.Group("/payments/:id", txMW...)
	tx.GET("", h.GetPayment)
	tx.POST("/educational/complete", h.CompleteEducational)
	tx.POST("/enhanced/complete", h.CompleteEnhanced)
	tx.POST("/quiz", h.IssueQuiz)
	tx.POST("/quiz/answers", h.SubmitQuiz)
	tx.POST("/confirm", h.ConfirmPayment)
	tx.POST("/cancel", h.CancelPayment)
}

// ScoreRequest is the payload for POST /v1/payments/score.
type ScoreRequest struct {
	TransactionID string    `json:"transactionId"`
	TS            time.Time `json:"ts"`
	SrcAccount    string    `json:"srcAccount"`
	DstAccount    string    `json:"dstAccount"`
	Amount        float64   `json:"amount"`
	Currency      string    `json:"currency"`
	Channel       string    `json:"channel"`
	FirstToPayee  bool      `json:"firstToPayee"`
	Description   string    `json:"description"`
	DeviceFP      string    `json:"deviceFp"`
}

// ScorePayment handles POST /v1/payments/score
func (h *Handler) ScorePayment(c *gin.Context) {
	var req ScoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	if errs := validation.Validate(
		validation.ValidAccount("srcAccount", req.SrcAccount),
		validation.ValidAccount("dstAccount", req.DstAccount),
		validation.ValidCurrency("currency", req.Currency),
		validation.ValidChannel("channel", req.Channel),
		validation.PositiveAmount("amount", req.Amount),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": errs.Error(),
			"details": errs,
		})
		return
	}

	if req.TransactionID == "" {
		req.TransactionID = idgen.WithPrefix("tx_")
	}
	tx := session.Transaction{
		ID:           req.TransactionID,
		TS:           req.TS,
		SrcAccount:   validation.NormalizeAccount(req.SrcAccount),
		DstAccount:   validation.NormalizeAccount(req.DstAccount),
		Amount:       req.Amount,
		Currency:     req.Currency,
		Channel:      req.Channel,
		FirstToPayee: req.FirstToPayee,
		Description:  validation.SanitizeString(req.Description, 500),
		DeviceFP:     validation.SanitizeString(req.DeviceFP, 128),
	}

	st, sess, err := h.engine.Score(c.Request.Context(), tx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "scoring_failed",
			"message": "Failed to open verification workflow",
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"state":      st,
		"assessment": sess.Assessment,
	})
}

// GetPayment handles GET /v1/payments/:id
func (h *Handler) GetPayment(c *gin.Context) {
	txID := c.Param("id")

	st, err := h.engine.Get(c.Request.Context(), txID)
	if err != nil {
		h.renderError(c, err)
		return
	}
	sess, err := h.engine.Session(c.Request.Context(), txID)
	if err != nil {
		h.renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"state":          st,
		"transaction":    sess.Transaction,
		"assessment":     sess.Assessment,
		"explanation":    sess.Explanation,
		"classification": sess.Classification,
	})
}

// CompleteEducational handles POST /v1/payments/:id/educational/complete
func (h *Handler) CompleteEducational(c *gin.Context) {
	st, err := h.engine.CompleteEducational(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": st})
}

// CompleteEnhanced handles POST /v1/payments/:id/enhanced/complete
func (h *Handler) CompleteEnhanced(c *gin.Context) {
	st, err := h.engine.CompleteEnhanced(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": st})
}

// IssueQuiz handles POST /v1/payments/:id/quiz
func (h *Handler) IssueQuiz(c *gin.Context) {
	qs, err := h.engine.IssueQuiz(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.renderError(c, err)
		return
	}
	// the rubric stays server-side
	c.JSON(http.StatusOK, gin.H{
		"quiz": gin.H{
			"id":        qs.ID,
			"state":     qs.State,
			"questions": qs.Questions,
		},
	})
}

// SubmitQuiz handles POST /v1/payments/:id/quiz/answers
func (h *Handler) SubmitQuiz(c *gin.Context) {
	var req struct {
		Answers []string `json:"answers"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	qs, st, err := h.engine.SubmitQuiz(c.Request.Context(), c.Param("id"), req.Answers)
	if err != nil {
		h.renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"quiz": gin.H{
			"id":       qs.ID,
			"state":    qs.State,
			"decision": qs.Decision,
			"score":    qs.Score,
			"reasons":  qs.Reasons,
		},
		"state": st,
	})
}

// ConfirmPayment handles POST /v1/payments/:id/confirm
func (h *Handler) ConfirmPayment(c *gin.Context) {
	st, err := h.engine.Confirm(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": st})
}

// CancelPayment handles POST /v1/payments/:id/cancel
func (h *Handler) CancelPayment(c *gin.Context) {
	st, err := h.engine.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": st})
}

func (h *Handler) renderError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, session.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "Transaction not found",
		})
	case errors.Is(err, ErrNotYetEligible):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "not_yet_eligible",
			"message": err.Error(),
		})
	case errors.Is(err, ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "invalid_transition",
			"message": err.Error(),
		})
	case errors.Is(err, ErrQuizPending):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "quiz_pending",
			"message": err.Error(),
		})
	case errors.Is(err, quiz.ErrNoSession), errors.Is(err, quiz.ErrNotIssued):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "quiz_not_issued",
			"message": err.Error(),
		})
	case errors.Is(err, quiz.ErrAnswerCount):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_answers",
			"message": err.Error(),
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Operation failed",
		})
	}
}
