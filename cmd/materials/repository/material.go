package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/lyzr/materials/cmd/materials/models"
	"github.com/lyzr/materials/common/db"
)

// ErrMaterialNotFound is returned when no row matches the identifier
var ErrMaterialNotFound = errors.New("material not found")

const materialColumns = `
	m.id, m.name, m.description, m.creator, m.state, m.type, m.created_at,
	COALESCE((SELECT array_agg(t.tag ORDER BY t.tag) FROM material_tags t WHERE t.material_id = m.id), '{}')
`

// MaterialRepository handles database operations for materials and their tags
type MaterialRepository struct {
	db *db.DB
}

// NewMaterialRepository creates a new material repository
func NewMaterialRepository(db *db.DB) *MaterialRepository {
	return &MaterialRepository{db: db}
}

// Save inserts a material and its tags in one transaction
func (r *MaterialRepository) Save(ctx context.Context, m *models.Material, tags []string) error {
	return r.db.InTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			INSERT INTO materials (id, name, description, creator, state, type, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, m.ID, m.Name, m.Description, m.Creator, m.State, m.Type, m.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to save material: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("failed to save material %s: no rows inserted", m.ID)
		}

		if err := insertTags(ctx, tx, m.ID, tags); err != nil {
			return err
		}
		m.Tags = tags
		return nil
	})
}

// Get retrieves a material with its tags
func (r *MaterialRepository) Get(ctx context.Context, id string) (*models.Material, error) {
	query := `SELECT ` + materialColumns + ` FROM materials m WHERE m.id = $1`

	m, err := scanMaterial(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrMaterialNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get material: %w", err)
	}
	return m, nil
}

// Exists checks whether metadata was committed for id
func (r *MaterialRepository) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM materials WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check material existence: %w", err)
	}
	return exists, nil
}

// Delete removes a material and its tags
func (r *MaterialRepository) Delete(ctx context.Context, id string) error {
	return r.db.InTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM material_tags WHERE material_id = $1`, id); err != nil {
			return fmt.Errorf("failed to delete material tags: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM materials WHERE id = $1`, id); err != nil {
			return fmt.Errorf("failed to delete material: %w", err)
		}
		return nil
	})
}

// Update rewrites name and description and replaces the tag set
func (r *MaterialRepository) Update(ctx context.Context, m *models.Material) error {
	return r.db.InTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE materials SET name = $2, description = $3 WHERE id = $1
		`, m.ID, m.Name, m.Description)
		if err != nil {
			return fmt.Errorf("failed to update material: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: %s", ErrMaterialNotFound, m.ID)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM material_tags WHERE material_id = $1`, m.ID); err != nil {
			return fmt.Errorf("failed to clear material tags: %w", err)
		}
		return insertTags(ctx, tx, m.ID, m.Tags)
	})
}

// Search returns one page of materials matching cond, newest first
func (r *MaterialRepository) Search(ctx context.Context, cond models.SearchCondition) ([]*models.Material, int64, error) {
	where, args, err := searchFilter(cond)
	if err != nil {
		return nil, 0, err
	}

	var total int64
	if err := r.db.QueryRow(ctx, `SELECT count(*) FROM materials m`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count materials: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM materials m%s ORDER BY m.created_at DESC, m.id LIMIT $%d OFFSET $%d`,
		materialColumns, where, len(args)+1, len(args)+2)
	rows, err := r.db.Query(ctx, query, append(args, cond.Size, cond.Offset())...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to search materials: %w", err)
	}
	defer rows.Close()

	materials := make([]*models.Material, 0, cond.Size)
	for rows.Next() {
		m, err := scanMaterial(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan material: %w", err)
		}
		materials = append(materials, m)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate materials: %w", err)
	}

	return materials, total, nil
}

// searchFilter builds the WHERE clause for a search. Every listed tag must
// be present on a match.
func searchFilter(cond models.SearchCondition) (string, []any, error) {
	var (
		clauses []string
		args    []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if cond.Type != "" {
		t, err := models.ParseMaterialType(cond.Type)
		if err != nil {
			return "", nil, err
		}
		clauses = append(clauses, "m.type = "+arg(t))
	}
	if q := strings.TrimSpace(cond.Query); q != "" {
		p := arg("%" + escapeLike(q) + "%")
		clauses = append(clauses, fmt.Sprintf("(m.name ILIKE %s OR m.description ILIKE %s)", p, p))
	}
	if len(cond.Tags) > 0 {
		p := arg(cond.Tags)
		clauses = append(clauses, fmt.Sprintf(
			"(SELECT count(DISTINCT t.tag) FROM material_tags t WHERE t.material_id = m.id AND t.tag = ANY(%s)) = %s",
			p, arg(len(cond.Tags))))
	}

	if len(clauses) == 0 {
		return "", args, nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func insertTags(ctx context.Context, tx pgx.Tx, id string, tags []string) error {
	if len(tags) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, tag := range tags {
		batch.Queue(`
			INSERT INTO material_tags (material_id, tag, created_at)
			VALUES ($1, $2, now())
			ON CONFLICT (material_id, tag) DO NOTHING
		`, id, tag)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to save material tags: %w", err)
	}
	return nil
}

func scanMaterial(row pgx.Row) (*models.Material, error) {
	m := &models.Material{}
	err := row.Scan(
		&m.ID,
		&m.Name,
		&m.Description,
		&m.Creator,
		&m.State,
		&m.Type,
		&m.CreatedAt,
		&m.Tags,
	)
	if err != nil {
		return nil, err
	}
	return m, nil
}
