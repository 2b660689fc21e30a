package workflow

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(env *engineEnv) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandler(env.engine).RegisterRoutes(r.Group("/v1"))
	return r
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var parsed map[string]any
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &parsed))
	}
	return w, parsed
}

func scoreBody(txID string, amount float64) map[string]any {
	return map[string]any{
		"transactionId": txID,
		"srcAccount":    "gb29nwbk60161331926819",
		"dstAccount":    "DE89370400440532013000",
		"amount":        amount,
		"currency":      "GBP",
		"channel":       "web",
		"firstToPayee":  true,
	}
}

func TestScorePayment_CreatesWorkflow(t *testing.T) {
	env := newEngineEnv(t, 45)
	r := newTestRouter(env)

	w, resp := doJSON(t, r, http.MethodPost, "/v1/payments/score", scoreBody("tx_h1", 800))
	require.Equal(t, http.StatusCreated, w.Code)

	state := resp["state"].(map[string]any)
	assert.Equal(t, "educational_pending", state["stage"])
	assert.Equal(t, "medium", state["level"])

	assessment := resp["assessment"].(map[string]any)
	assert.Equal(t, 45.0, assessment["score"])
}

func TestScorePayment_GeneratesTransactionID(t *testing.T) {
	env := newEngineEnv(t, 20)
	r := newTestRouter(env)

	body := scoreBody("", 50)
	w, resp := doJSON(t, r, http.MethodPost, "/v1/payments/score", body)
	require.Equal(t, http.StatusCreated, w.Code)

	state := resp["state"].(map[string]any)
	assert.Contains(t, state["transactionId"], "tx_")
}

func TestScorePayment_RejectsBadPayload(t *testing.T) {
	env := newEngineEnv(t, 20)
	r := newTestRouter(env)

	body := scoreBody("tx_bad", -5)
	body["currency"] = "POUNDS"
	w, resp := doJSON(t, r, http.MethodPost, "/v1/payments/score", body)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation_error", resp["error"])
}

func TestGetPayment_NotFound(t *testing.T) {
	env := newEngineEnv(t, 20)
	r := newTestRouter(env)

	w, resp := doJSON(t, r, http.MethodGet, "/v1/payments/tx_nope", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", resp["error"])
}

func TestVerificationFlow_HighRiskOverHTTP(t *testing.T) {
	env := newEngineEnv(t, 80)
	r := newTestRouter(env)

	w, _ := doJSON(t, r, http.MethodPost, "/v1/payments/score", scoreBody("tx_flow", 5000))
	require.Equal(t, http.StatusCreated, w.Code)

	// Quiz issue and pass.
	w, resp := doJSON(t, r, http.MethodPost, "/v1/payments/tx_flow/quiz", nil)
	require.Equal(t, http.StatusOK, w.Code)
	questions := resp["quiz"].(map[string]any)["questions"].([]any)
	require.Len(t, questions, 3)
	_, hasRubric := resp["quiz"].(map[string]any)["rubric"]
	assert.False(t, hasRubric, "rubric must stay server-side")

	w, resp = doJSON(t, r, http.MethodPost, "/v1/payments/tx_flow/quiz/answers",
		map[string]any{"answers": []string{"no", "yes", "no"}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pass", resp["quiz"].(map[string]any)["decision"])

	w, resp = doJSON(t, r, http.MethodPost, "/v1/payments/tx_flow/educational/complete", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "enhanced_pending", resp["state"].(map[string]any)["stage"])

	w, resp = doJSON(t, r, http.MethodPost, "/v1/payments/tx_flow/enhanced/complete", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "final_pending", resp["state"].(map[string]any)["stage"])

	// Cooling-off still running.
	w, resp = doJSON(t, r, http.MethodPost, "/v1/payments/tx_flow/confirm", nil)
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "not_yet_eligible", resp["error"])

	env.advance(31 * time.Minute)
	w, resp = doJSON(t, r, http.MethodPost, "/v1/payments/tx_flow/confirm", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "approve", resp["state"].(map[string]any)["outcome"])
}

func TestSubmitQuiz_AnswerCountMismatch(t *testing.T) {
	env := newEngineEnv(t, 45)
	r := newTestRouter(env)

	doJSON(t, r, http.MethodPost, "/v1/payments/score", scoreBody("tx_cnt", 100))
	doJSON(t, r, http.MethodPost, "/v1/payments/tx_cnt/quiz", nil)

	w, resp := doJSON(t, r, http.MethodPost, "/v1/payments/tx_cnt/quiz/answers",
		map[string]any{"answers": []string{"yes"}})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_answers", resp["error"])
}

func TestCancelPayment_OverHTTP(t *testing.T) {
	env := newEngineEnv(t, 80)
	r := newTestRouter(env)

	doJSON(t, r, http.MethodPost, "/v1/payments/score", scoreBody("tx_hcxl", 100))

	w, resp := doJSON(t, r, http.MethodPost, "/v1/payments/tx_hcxl/cancel", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "deny", resp["state"].(map[string]any)["outcome"])

	// Approving a cancelled payment is a conflict.
	w, resp = doJSON(t, r, http.MethodPost, "/v1/payments/tx_hcxl/confirm", nil)
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "invalid_transition", resp["error"])
}

func TestInvalidTransition_StatusCodes(t *testing.T) {
	env := newEngineEnv(t, 80)
	r := newTestRouter(env)

	doJSON(t, r, http.MethodPost, "/v1/payments/score", scoreBody("tx_codes", 100))

	cases := []struct {
		path string
		want string
	}{
		{"/v1/payments/tx_codes/enhanced/complete", "invalid_transition"},
		{"/v1/payments/tx_codes/confirm", "invalid_transition"},
		{"/v1/payments/tx_codes/quiz/answers", "quiz_not_issued"},
	}
	for _, tc := range cases {
		var body any
		if tc.want == "quiz_not_issued" {
			body = map[string]any{"answers": []string{"no", "yes", "no"}}
		}
		w, resp := doJSON(t, r, http.MethodPost, tc.path, body)
		require.Equal(t, http.StatusConflict, w.Code, tc.path)
		assert.Equal(t, tc.want, resp["error"], fmt.Sprintf("unexpected error for %s", tc.path))
	}
}
