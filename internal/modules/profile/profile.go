// README: User profiles and avatar uploads.
package profile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"bidride/internal/apperr"
	"bidride/internal/types"
)

type Profile struct {
	ID        types.ID  `json:"id"`
	Email     string    `json:"email,omitempty"`
	FullName  string    `json:"full_name,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	AvatarURL string    `json:"avatar_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// MaxAvatarBytes caps avatar uploads.
const MaxAvatarBytes = 5 << 20

var errNotFound = errors.New("profile not found")

type Repository interface {
	Get(ctx context.Context, id types.ID) (*Profile, error)
	Upsert(ctx context.Context, p *Profile) error
	SetAvatar(ctx context.Context, id types.ID, url string) error
}

type Uploader interface {
	Upload(ctx context.Context, objectPath, contentType string, r io.Reader) (string, error)
}

type Service struct {
	repo     Repository
	uploader Uploader
	now      func() time.Time
}

func NewService(repo Repository, uploader Uploader) *Service {
	return &Service{repo: repo, uploader: uploader, now: time.Now}
}

// Ensure returns the caller's profile, creating it from the session email on first use.
func (s *Service) Ensure(ctx context.Context, id types.ID, email string) (*Profile, error) {
	p, err := s.repo.Get(ctx, id)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, errNotFound) {
		return nil, apperr.Store("profile.ensure", err)
	}
	p = &Profile{ID: id, Email: email, CreatedAt: s.now()}
	if err := s.repo.Upsert(ctx, p); err != nil {
		return nil, apperr.Store("profile.ensure", err)
	}
	return p, nil
}

type UpdateCommand struct {
	ID       types.ID
	Email    string
	FullName string
	Phone    string
}

func (s *Service) Update(ctx context.Context, cmd UpdateCommand) (*Profile, error) {
	p, err := s.Ensure(ctx, cmd.ID, cmd.Email)
	if err != nil {
		return nil, err
	}
	if name := strings.TrimSpace(cmd.FullName); name != "" {
		p.FullName = name
	}
	if phone := strings.TrimSpace(cmd.Phone); phone != "" {
		p.Phone = phone
	}
	if err := s.repo.Upsert(ctx, p); err != nil {
		return nil, apperr.Store("profile.update", err)
	}
	return p, nil
}

type Avatar struct {
	FileName    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// UploadAvatar stores the image and records only the returned URL.
func (s *Service) UploadAvatar(ctx context.Context, id types.ID, a Avatar) (string, error) {
	const op = "profile.upload_avatar"
	if s.uploader == nil {
		return "", apperr.Rejected(op, "uploads are not enabled")
	}
	if !strings.HasPrefix(a.ContentType, "image/") {
		return "", apperr.Validation(op, "avatar must be an image")
	}
	if a.Size <= 0 || a.Size > MaxAvatarBytes {
		return "", apperr.Validation(op, fmt.Sprintf("avatar must be between 1 byte and %d bytes", MaxAvatarBytes))
	}
	objectPath := fmt.Sprintf("avatars/%s/%d%s", id, s.now().UnixMilli(), strings.ToLower(path.Ext(a.FileName)))
	url, err := s.uploader.Upload(ctx, objectPath, a.ContentType, io.LimitReader(a.Body, MaxAvatarBytes))
	if err != nil {
		return "", apperr.Store(op, err)
	}
	if _, err := s.Ensure(ctx, id, ""); err != nil {
		return "", err
	}
	if err := s.repo.SetAvatar(ctx, id, url); err != nil {
		return "", apperr.Store(op, err)
	}
	return url, nil
}

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) Get(ctx context.Context, id types.ID) (*Profile, error) {
	var p Profile
	var pid string
	var email, name, phone, avatar *string
	err := s.db.QueryRow(ctx, `
		SELECT id, email, full_name, phone, avatar_url, created_at
		FROM profiles WHERE id = $1`, string(id),
	).Scan(&pid, &email, &name, &phone, &avatar, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errNotFound
	}
	if err != nil {
		return nil, err
	}
	p.ID = types.ID(pid)
	p.Email, p.FullName, p.Phone, p.AvatarURL = deref(email), deref(name), deref(phone), deref(avatar)
	return &p, nil
}

func (s *Store) Upsert(ctx context.Context, p *Profile) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO profiles (id, email, full_name, phone, avatar_url, created_at)
		VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''), $6)
		ON CONFLICT (id) DO UPDATE SET
			email = COALESCE(EXCLUDED.email, profiles.email),
			full_name = COALESCE(EXCLUDED.full_name, profiles.full_name),
			phone = COALESCE(EXCLUDED.phone, profiles.phone)`,
		string(p.ID), p.Email, p.FullName, p.Phone, p.AvatarURL, p.CreatedAt,
	)
	return err
}

func (s *Store) SetAvatar(ctx context.Context, id types.ID, url string) error {
	_, err := s.db.Exec(ctx, `UPDATE profiles SET avatar_url = $2 WHERE id = $1`, string(id), url)
	return err
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
