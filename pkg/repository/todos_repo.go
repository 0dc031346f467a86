package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"github.com/giterdone/giterdone/pkg/domain"
)

// TodosRepository handles todo persistence. Every query is scoped to the
// owning user; a todo id from another account behaves as not found.
type TodosRepository struct {
	db *sql.DB
}

// NewTodosRepository creates a new todos repository.
func NewTodosRepository(db *sql.DB) *TodosRepository {
	return &TodosRepository{db: db}
}

const todoColumns = `id, user_id, title, description, completed, due_date, priority, created_at, updated_at`

func scanTodo(scan func(dest ...any) error) (*domain.Todo, error) {
	todo := &domain.Todo{}
	err := scan(
		&todo.ID, &todo.UserID, &todo.Title, &todo.Description, &todo.Completed,
		&todo.DueDate, &todo.Priority, &todo.CreatedAt, &todo.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrTodoNotFound
	}
	if err != nil {
		return nil, err
	}
	return todo, nil
}

// Create creates a new todo.
func (r *TodosRepository) Create(ctx context.Context, todo *domain.Todo) error {
	query := `
		INSERT INTO todos (id, user_id, title, description, completed, due_date, priority, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.ExecContext(ctx, query,
		todo.ID, todo.UserID, todo.Title, todo.Description, todo.Completed,
		todo.DueDate, todo.Priority, todo.CreatedAt, todo.UpdatedAt,
	)
	return err
}

// ListByUserID returns the user's todos, highest priority first, newest
// first within a priority.
func (r *TodosRepository) ListByUserID(ctx context.Context, userID uuid.UUID) ([]*domain.Todo, error) {
	query := `
		SELECT ` + todoColumns + ` FROM todos
		WHERE user_id = $1
		ORDER BY priority DESC, created_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	todos := []*domain.Todo{}
	for rows.Next() {
		todo, err := scanTodo(rows.Scan)
		if err != nil {
			return nil, err
		}
		todos = append(todos, todo)
	}
	return todos, rows.Err()
}

// GetByID retrieves a todo owned by the user.
func (r *TodosRepository) GetByID(ctx context.Context, userID, todoID uuid.UUID) (*domain.Todo, error) {
	query := `SELECT ` + todoColumns + ` FROM todos WHERE id = $1 AND user_id = $2`
	return scanTodo(r.db.QueryRowContext(ctx, query, todoID, userID).Scan)
}

// Update updates a todo owned by the user.
func (r *TodosRepository) Update(ctx context.Context, todo *domain.Todo) error {
	query := `
		UPDATE todos
		SET title = $3, description = $4, completed = $5, due_date = $6, priority = $7, updated_at = NOW()
		WHERE id = $1 AND user_id = $2
	`
	result, err := r.db.ExecContext(ctx, query,
		todo.ID, todo.UserID, todo.Title, todo.Description, todo.Completed,
		todo.DueDate, todo.Priority,
	)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrTodoNotFound
	}
	return nil
}

// Delete removes a todo owned by the user.
func (r *TodosRepository) Delete(ctx context.Context, userID, todoID uuid.UUID) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM todos WHERE id = $1 AND user_id = $2`, todoID, userID)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrTodoNotFound
	}
	return nil
}
