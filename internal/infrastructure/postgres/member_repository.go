package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clubhub/marketplace/internal/domain/apperr"
	"github.com/clubhub/marketplace/internal/domain/member"
)

const memberColumns = `id, member_id, short_id, username, display_name, password_hash, role, status, created_at, updated_at`

// MemberRepository implements member.Repository.
type MemberRepository struct {
	pool *pgxpool.Pool
}

func NewMemberRepository(pool *pgxpool.Pool) *MemberRepository {
	return &MemberRepository{pool: pool}
}

func (r *MemberRepository) Create(ctx context.Context, m *member.Member) error {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO members
		(member_id, short_id, username, display_name, password_hash, role, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING id
	`, m.MemberID, m.ShortID, m.Username, m.DisplayName, m.PasswordHash, m.Role, m.Status, m.CreatedAt, m.UpdatedAt)
	if err := row.Scan(&m.ID); err != nil {
		switch uniqueConstraint(err) {
		case "":
			return err
		case "members_username_key":
			return apperr.Conflict("username %q is taken", m.Username)
		default:
			return apperr.Conflict("short id %q is taken", m.ShortID)
		}
	}
	return nil
}

func (r *MemberRepository) Update(ctx context.Context, m *member.Member) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE members
		SET display_name=$1, password_hash=$2, role=$3, status=$4, updated_at=$5
		WHERE member_id=$6
	`, m.DisplayName, m.PasswordHash, m.Role, m.Status, m.UpdatedAt, m.MemberID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("member %s not found", m.MemberID)
	}
	return nil
}

func (r *MemberRepository) GetByID(ctx context.Context, memberID uuid.UUID) (*member.Member, error) {
	return scanMember(r.pool.QueryRow(ctx, `SELECT `+memberColumns+` FROM members WHERE member_id=$1`, memberID))
}

func (r *MemberRepository) GetByShortID(ctx context.Context, shortID string) (*member.Member, error) {
	return scanMember(r.pool.QueryRow(ctx, `SELECT `+memberColumns+` FROM members WHERE short_id=$1`, shortID))
}

func (r *MemberRepository) GetByUsername(ctx context.Context, username string) (*member.Member, error) {
	return scanMember(r.pool.QueryRow(ctx, `SELECT `+memberColumns+` FROM members WHERE username=$1`, username))
}

func (r *MemberRepository) List(ctx context.Context, filter member.Filter, limit, offset int) ([]*member.Member, error) {
	query := `SELECT ` + memberColumns + ` FROM members`
	args := []interface{}{}
	idx := 1
	if filter.Role != nil {
		query += " WHERE role=$" + itoa(idx)
		args = append(args, *filter.Role)
		idx++
	}
	if filter.Status != nil {
		query += addWhere(query) + " status=$" + itoa(idx)
		args = append(args, *filter.Status)
		idx++
	}
	query += " ORDER BY created_at DESC LIMIT $" + itoa(idx) + " OFFSET $" + itoa(idx+1)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var members []*member.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func (r *MemberRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM members`).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func scanMember(row pgx.Row) (*member.Member, error) {
	var m member.Member
	if err := row.Scan(&m.ID, &m.MemberID, &m.ShortID, &m.Username, &m.DisplayName, &m.PasswordHash, &m.Role, &m.Status, &m.CreatedAt, &m.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}
