package todos

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/giterdone/giterdone/internal/http/middleware"
	"github.com/giterdone/giterdone/internal/httputil"
	"github.com/giterdone/giterdone/pkg/domain"
	"github.com/giterdone/giterdone/pkg/repository"
)

// Handler handles todo CRUD endpoints. Every operation is scoped to the
// authenticated user.
type Handler struct {
	logger *slog.Logger
	todos  *repository.TodosRepository
}

// NewHandler creates a new todos handler.
func NewHandler(logger *slog.Logger, todos *repository.TodosRepository) *Handler {
	return &Handler{logger: logger, todos: todos}
}

// TodoResponse represents a todo.
type TodoResponse struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Completed   bool       `json:"completed"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	Priority    int        `json:"priority"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// CreateRequest represents a todo creation request.
type CreateRequest struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	Priority    *int       `json:"priority,omitempty"`
}

// UpdateRequest represents a partial todo update.
type UpdateRequest struct {
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	Completed   *bool      `json:"completed,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	Priority    *int       `json:"priority,omitempty"`
}

func todoResponse(todo *domain.Todo) TodoResponse {
	return TodoResponse{
		ID:          todo.ID.String(),
		Title:       todo.Title,
		Description: todo.Description,
		Completed:   todo.Completed,
		DueDate:     todo.DueDate,
		Priority:    todo.Priority,
		CreatedAt:   todo.CreatedAt,
		UpdatedAt:   todo.UpdatedAt,
	}
}

// List returns the user's todos, highest priority first.
// GET /v1/todos
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	todos, err := h.todos.ListByUserID(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to list todos", "error", err, "user_id", userID)
		httputil.Error(w, http.StatusInternalServerError, "failed to list todos")
		return
	}

	responses := make([]TodoResponse, 0, len(todos))
	for _, todo := range todos {
		responses = append(responses, todoResponse(todo))
	}
	httputil.JSON(w, http.StatusOK, responses)
}

// Create creates a new todo.
// POST /v1/todos
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Title == "" {
		httputil.Error(w, http.StatusBadRequest, "title is required")
		return
	}

	now := time.Now()
	todo := &domain.Todo{
		ID:          uuid.New(),
		UserID:      userID,
		Title:       req.Title,
		Description: req.Description,
		DueDate:     req.DueDate,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if req.Priority != nil {
		todo.Priority = *req.Priority
	}

	if err := h.todos.Create(r.Context(), todo); err != nil {
		h.logger.Error("failed to create todo", "error", err, "user_id", userID)
		httputil.Error(w, http.StatusInternalServerError, "failed to create todo")
		return
	}

	httputil.JSON(w, http.StatusCreated, todoResponse(todo))
}

// Get returns a single todo.
// GET /v1/todos/{id}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	userID, todoID, ok := h.todoRef(w, r)
	if !ok {
		return
	}

	todo, err := h.todos.GetByID(r.Context(), userID, todoID)
	if err != nil {
		if errors.Is(err, domain.ErrTodoNotFound) {
			httputil.Error(w, http.StatusNotFound, "todo not found")
			return
		}
		h.logger.Error("failed to get todo", "error", err, "user_id", userID)
		httputil.Error(w, http.StatusInternalServerError, "failed to get todo")
		return
	}

	httputil.JSON(w, http.StatusOK, todoResponse(todo))
}

// Update applies a partial update to a todo.
// PATCH /v1/todos/{id}
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	userID, todoID, ok := h.todoRef(w, r)
	if !ok {
		return
	}

	var req UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	todo, err := h.todos.GetByID(r.Context(), userID, todoID)
	if err != nil {
		if errors.Is(err, domain.ErrTodoNotFound) {
			httputil.Error(w, http.StatusNotFound, "todo not found")
			return
		}
		h.logger.Error("failed to get todo", "error", err, "user_id", userID)
		httputil.Error(w, http.StatusInternalServerError, "failed to update todo")
		return
	}

	if req.Title != nil {
		if *req.Title == "" {
			httputil.Error(w, http.StatusBadRequest, "title cannot be empty")
			return
		}
		todo.Title = *req.Title
	}
	if req.Description != nil {
		todo.Description = *req.Description
	}
	if req.Completed != nil {
		todo.Completed = *req.Completed
	}
	if req.DueDate != nil {
		todo.DueDate = req.DueDate
	}
	if req.Priority != nil {
		todo.Priority = *req.Priority
	}

	if err := h.todos.Update(r.Context(), todo); err != nil {
		if errors.Is(err, domain.ErrTodoNotFound) {
			httputil.Error(w, http.StatusNotFound, "todo not found")
			return
		}
		h.logger.Error("failed to update todo", "error", err, "user_id", userID)
		httputil.Error(w, http.StatusInternalServerError, "failed to update todo")
		return
	}

	todo.UpdatedAt = time.Now()
	httputil.JSON(w, http.StatusOK, todoResponse(todo))
}

// Delete removes a todo.
// DELETE /v1/todos/{id}
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, todoID, ok := h.todoRef(w, r)
	if !ok {
		return
	}

	if err := h.todos.Delete(r.Context(), userID, todoID); err != nil {
		if errors.Is(err, domain.ErrTodoNotFound) {
			httputil.Error(w, http.StatusNotFound, "todo not found")
			return
		}
		h.logger.Error("failed to delete todo", "error", err, "user_id", userID)
		httputil.Error(w, http.StatusInternalServerError, "failed to delete todo")
		return
	}

	httputil.JSON(w, http.StatusOK, map[string]string{"message": "Todo deleted successfully."})
}

func (h *Handler) todoRef(w http.ResponseWriter, r *http.Request) (userID, todoID uuid.UUID, ok bool) {
	userID, ok = middleware.GetUserID(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "unauthorized")
		return uuid.Nil, uuid.Nil, false
	}
	todoID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid todo id")
		return uuid.Nil, uuid.Nil, false
	}
	return userID, todoID, true
}
