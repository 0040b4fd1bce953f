package handlers_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/geocoder89/expenseflow/internal/http/handlers"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type bindErrorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Details struct {
			JSON   string                `json:"json"`
			Field  string                `json:"field"`
			Fields []handlers.FieldError `json:"fields"`
		} `json:"details"`
	} `json:"error"`
}

type rejectBody struct {
	Reason  string `json:"reason" binding:"required,min=3"`
	Version int    `json:"version" binding:"min=0"`
}

func bindRouter(target func() any) *gin.Engine {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.POST("/bind", func(ctx *gin.Context) {
		req := target()
		if !handlers.BindJSON(ctx, req) {
			return
		}
		ctx.Status(http.StatusNoContent)
	})
	return r
}

func postJSON(r http.Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/bind", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestBindJSON_ValidationErrorsUseJSONFieldNames(t *testing.T) {
	r := bindRouter(func() any { return &handlers.LoginRequest{} })

	w := postJSON(r, `{"email":""}`)
	require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())

	var resp bindErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "invalid_request", resp.Error.Code)

	found := map[string]handlers.FieldError{}
	for _, fe := range resp.Error.Details.Fields {
		found[fe.Field] = fe
	}

	for _, field := range []string{"email", "password"} {
		fe, ok := found[field]
		require.True(t, ok, "missing field error for %q: %+v", field, resp.Error.Details.Fields)
		assert.Equal(t, "required", fe.Rule)
		assert.NotEmpty(t, fe.Message)
	}
}

func TestBindJSON_ParamIsReported(t *testing.T) {
	r := bindRouter(func() any { return &rejectBody{} })

	w := postJSON(r, `{"reason":"no"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	var resp bindErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Error.Details.Fields, 1)

	fe := resp.Error.Details.Fields[0]
	assert.Equal(t, "reason", fe.Field)
	assert.Equal(t, "min", fe.Rule)
	assert.Equal(t, "3", fe.Param)
	assert.Equal(t, "must be at least 3", fe.Message)
}

func TestBindJSON_TypeMismatchUsesJSONFieldNames(t *testing.T) {
	r := bindRouter(func() any { return &handlers.DecisionRequest{} })

	w := postJSON(r, `{"reason":"ok","version":"two"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	var resp bindErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "invalid_json_type", resp.Error.Details.JSON)
	assert.Equal(t, "version", resp.Error.Details.Field)
	require.NotEmpty(t, resp.Error.Details.Fields)
	assert.Equal(t, "type", resp.Error.Details.Fields[0].Rule)
}

func TestBindJSON_SyntaxError(t *testing.T) {
	r := bindRouter(func() any { return &handlers.DecisionRequest{} })

	w := postJSON(r, `{"reason":`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	var resp bindErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "invalid_request", resp.Error.Code)
	assert.Equal(t, "invalid_json_syntax", resp.Error.Details.JSON)

	w = postJSON(r, `{"reason" "x"}`)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "invalid_json_syntax", resp.Error.Details.JSON)
}

func TestBindJSON_BodyTooLarge(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.POST("/bind", func(ctx *gin.Context) {
		ctx.Request.Body = http.MaxBytesReader(ctx.Writer, ctx.Request.Body, 8)
		var req handlers.DecisionRequest
		if !handlers.BindJSON(ctx, &req) {
			return
		}
		ctx.Status(http.StatusNoContent)
	})

	w := postJSON(r, `{"reason":"this body is far too long"}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}
