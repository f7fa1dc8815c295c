package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-session/internal/middleware"
	"github.com/stemsi/exstem-session/internal/model"
	"github.com/stemsi/exstem-session/internal/repository"
	"github.com/stemsi/exstem-session/internal/response"
	"github.com/stemsi/exstem-session/internal/service"
	"github.com/stemsi/exstem-session/internal/session"
)

// maxTestIDLength matches the tests.id column.
const maxTestIDLength = 64

// TestCatalog is the part of service.ContentService the handlers need.
type TestCatalog interface {
	Create(ctx context.Context, def *model.TestDefinition, authorID int) error
	List(ctx context.Context, page, perPage int) ([]model.TestSummary, *response.Pagination, error)
	Summary(ctx context.Context, testID string) (*model.TestSummary, error)
	Load(ctx context.Context, testID string) (*model.TestDefinition, error)
	Update(ctx context.Context, def *model.TestDefinition) error
}

// TestHandler serves test definitions to admins and summaries to learners.
type TestHandler struct {
	catalog TestCatalog
}

// NewTestHandler creates a new TestHandler.
func NewTestHandler(catalog TestCatalog) *TestHandler {
	return &TestHandler{catalog: catalog}
}

// CreateTest godoc
// POST /api/v1/admin/tests
func (h *TestHandler) CreateTest(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var def model.TestDefinition
	if err := c.ShouldBindJSON(&def); err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidPayload)
		return
	}

	err := h.catalog.Create(c.Request.Context(), &def, claims.UserID)
	var fields service.FieldErrors
	switch {
	case err == nil:
		response.Success(c, http.StatusCreated, gin.H{"test": def.Summary()})
	case errors.As(err, &fields):
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
	case errors.Is(err, repository.ErrDuplicateTest):
		response.Fail(c, http.StatusConflict, response.ErrConflict)
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}

// GetTest godoc
// GET /api/v1/admin/tests/:test_id
// Returns the full definition, questions included.
func (h *TestHandler) GetTest(c *gin.Context) {
	testID, ok := testIDParam(c)
	if !ok {
		return
	}

	def, err := h.catalog.Load(c.Request.Context(), testID)
	if err != nil {
		if errors.Is(err, session.ErrTestNotFound) {
			response.Fail(c, http.StatusNotFound, response.ErrTestNotFound)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"test": def})
}

// UpdateTest godoc
// PUT /api/v1/admin/tests/:test_id
// Replaces the header, sections and questions of a test. The body id may be
// omitted; when present it must match the path.
func (h *TestHandler) UpdateTest(c *gin.Context) {
	testID, ok := testIDParam(c)
	if !ok {
		return
	}

	var def model.TestDefinition
	if err := c.ShouldBindJSON(&def); err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidPayload)
		return
	}
	if def.ID != "" && def.ID != testID {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation,
			map[string]string{"id": "must match the test in the URL"})
		return
	}
	def.ID = testID

	err := h.catalog.Update(c.Request.Context(), &def)
	var fields service.FieldErrors
	switch {
	case err == nil:
		response.Success(c, http.StatusOK, gin.H{"test": def.Summary()})
	case errors.As(err, &fields):
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
	case errors.Is(err, session.ErrTestNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrTestNotFound)
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}

// ListTests godoc
// GET /api/v1/admin/tests?page=1&per_page=20
func (h *TestHandler) ListTests(c *gin.Context) {
	page, perPage := pageParams(c)

	tests, pagination, err := h.catalog.List(c.Request.Context(), page, perPage)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.SuccessWithPagination(c, http.StatusOK, gin.H{"tests": tests}, pagination)
}

// GetTestSummary godoc
// GET /api/v1/tests/:test_id
// Returns what the learner sees on the instructions screen.
func (h *TestHandler) GetTestSummary(c *gin.Context) {
	testID, ok := testIDParam(c)
	if !ok {
		return
	}

	summary, err := h.catalog.Summary(c.Request.Context(), testID)
	if err != nil {
		if errors.Is(err, session.ErrTestNotFound) {
			response.Fail(c, http.StatusNotFound, response.ErrTestNotFound)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"test": summary})
}

func pageParams(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "20"))
	return page, perPage
}

// testIDParam reads :test_id and answers 400 itself when it is unusable.
func testIDParam(c *gin.Context) (string, bool) {
	testID := c.Param("test_id")
	if testID == "" || len(testID) > maxTestIDLength {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return "", false
	}
	return testID, true
}
