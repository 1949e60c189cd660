package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Team groups projects.
type Team struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Project groups banners of one campaign.
type Project struct {
	ID          string    `json:"id"`
	TeamID      string    `json:"teamId"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Manager     string    `json:"manager"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ListTeams returns all teams, newest first.
func (s *Store) ListTeams(ctx context.Context) ([]Team, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, description, created_at FROM teams ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("records: list teams: %w", err)
	}
	defer rows.Close()

	teams := []Team{}
	for rows.Next() {
		var t Team
		var created int64
		if err := rows.Scan(&t.ID, &t.Name, &t.Description, &created); err != nil {
			return nil, fmt.Errorf("records: scan team: %w", err)
		}
		t.CreatedAt = fromMillis(created)
		teams = append(teams, t)
	}
	return teams, rows.Err()
}

// CreateTeam inserts a team. The name is required.
func (s *Store) CreateTeam(ctx context.Context, name, description string) (Team, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Team{}, fmt.Errorf("%w: team name is required", ErrInvalid)
	}
	t := Team{ID: newID(), Name: name, Description: description}
	created := s.stamp()
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO teams (id, name, description, created_at) VALUES (?, ?, ?, ?)`,
		t.ID, t.Name, t.Description, created); err != nil {
		return Team{}, fmt.Errorf("records: create team: %w", err)
	}
	t.CreatedAt = fromMillis(created)
	return t, nil
}

// DeleteTeam removes a team with its projects and their banners.
func (s *Store) DeleteTeam(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := deleteBannersWhere(ctx, tx,
			`project_id IN (SELECT id FROM projects WHERE team_id = ?)`, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM projects WHERE team_id = ?`, id); err != nil {
			return fmt.Errorf("records: delete team projects: %w", err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM teams WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("records: delete team: %w", err)
		}
		return rowsAffected(res, "team", id)
	})
}

// ListProjects returns the projects of a team, or all projects when teamID
// is empty, newest first.
func (s *Store) ListProjects(ctx context.Context, teamID string) ([]Project, error) {
	q := `SELECT id, team_id, name, description, manager, status, created_at FROM projects`
	var args []any
	if teamID != "" {
		q += ` WHERE team_id = ?`
		args = append(args, teamID)
	}
	q += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("records: list projects: %w", err)
	}
	defer rows.Close()

	projects := []Project{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// GetProject returns one project.
func (s *Store) GetProject(ctx context.Context, id string) (Project, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, team_id, name, description, manager, status, created_at FROM projects WHERE id = ?`, id)
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Project{}, fmt.Errorf("%w: project %s", ErrNotFound, id)
	}
	return p, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProject(sc scanner) (Project, error) {
	var p Project
	var created int64
	err := sc.Scan(&p.ID, &p.TeamID, &p.Name, &p.Description, &p.Manager, &p.Status, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return Project{}, err
	}
	if err != nil {
		return Project{}, fmt.Errorf("records: scan project: %w", err)
	}
	p.CreatedAt = fromMillis(created)
	return p, nil
}

// CreateProject inserts a project under an existing team.
func (s *Store) CreateProject(ctx context.Context, p Project) (Project, error) {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return Project{}, fmt.Errorf("%w: project name is required", ErrInvalid)
	}
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM teams WHERE id = ?`, p.TeamID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return Project{}, fmt.Errorf("%w: team %s", ErrNotFound, p.TeamID)
	}
	if err != nil {
		return Project{}, fmt.Errorf("records: create project: %w", err)
	}

	p.ID = newID()
	if p.Status == "" {
		p.Status = "active"
	}
	created := s.stamp()
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO projects (id, team_id, name, description, manager, status, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.TeamID, p.Name, p.Description, p.Manager, p.Status, created); err != nil {
		return Project{}, fmt.Errorf("records: create project: %w", err)
	}
	p.CreatedAt = fromMillis(created)
	return p, nil
}

// DeleteProject removes a project with its banners.
func (s *Store) DeleteProject(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := deleteBannersWhere(ctx, tx, `project_id = ?`, id); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("records: delete project: %w", err)
		}
		return rowsAffected(res, "project", id)
	})
}
