package repositories

import (
	"context"
	"errors"
	"fmt"

	"contractor-backend/internal/apperr"
	"contractor-backend/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ProjectRepository struct {
	DB *pgxpool.Pool
}

func NewProjectRepository(db *pgxpool.Pool) *ProjectRepository {
	return &ProjectRepository{DB: db}
}

// CreateWithFolders inserts the project and its folders in one transaction
func (r *ProjectRepository) CreateWithFolders(ctx context.Context, p *models.Project, folders []string) error {
	tx, err := r.DB.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin create project: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx,
		`INSERT INTO projects (name, description, address,
			customer_name, customer_email, customer_phone, customer_address,
			budget, start_date, status, source_estimate_id, user_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 RETURNING id, created_at`,
		p.Name, p.Description, p.Address,
		p.Customer.Name, p.Customer.Email, p.Customer.Phone, p.Customer.Address,
		p.Budget, p.StartDate, p.Status, p.SourceEstimateID, p.UserID,
	).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert project: %w", err)
	}

	p.Folders = make([]models.ProjectFolder, 0, len(folders))
	for i, name := range folders {
		folder := models.ProjectFolder{ProjectID: p.ID, Name: name, Position: i + 1}
		if err := tx.QueryRow(ctx,
			`INSERT INTO project_folders (project_id, name, position) VALUES ($1, $2, $3) RETURNING id`,
			p.ID, name, folder.Position,
		).Scan(&folder.ID); err != nil {
			return fmt.Errorf("insert project folder %q: %w", name, err)
		}
		p.Folders = append(p.Folders, folder)
	}

	return tx.Commit(ctx)
}

// GetProject loads a project with its folders
func (r *ProjectRepository) GetProject(ctx context.Context, id int64) (*models.Project, error) {
	var p models.Project
	err := r.DB.QueryRow(ctx,
		`SELECT id, name, description, address,
			customer_name, customer_email, customer_phone, customer_address,
			budget, start_date, status, source_estimate_id, user_id, created_at
		 FROM projects WHERE id = $1`, id,
	).Scan(&p.ID, &p.Name, &p.Description, &p.Address,
		&p.Customer.Name, &p.Customer.Email, &p.Customer.Phone, &p.Customer.Address,
		&p.Budget, &p.StartDate, &p.Status, &p.SourceEstimateID, &p.UserID, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("projects.Get", "project %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get project %d: %w", id, err)
	}

	rows, err := r.DB.Query(ctx,
		`SELECT id, project_id, name, position FROM project_folders WHERE project_id = $1 ORDER BY position`, id,
	)
	if err != nil {
		return nil, fmt.Errorf("list project folders: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var f models.ProjectFolder
		if err := rows.Scan(&f.ID, &f.ProjectID, &f.Name, &f.Position); err != nil {
			return nil, err
		}
		p.Folders = append(p.Folders, f)
	}
	return &p, rows.Err()
}
