package profile

import (
	"context"
	"io"
	"strings"
	"testing"

	"bidride/internal/apperr"
	"bidride/internal/types"
)

type memRepo map[types.ID]*Profile

func (m memRepo) Get(_ context.Context, id types.ID) (*Profile, error) {
	if p, ok := m[id]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, errNotFound
}

func (m memRepo) Upsert(_ context.Context, p *Profile) error {
	cp := *p
	m[p.ID] = &cp
	return nil
}

func (m memRepo) SetAvatar(_ context.Context, id types.ID, url string) error {
	m[id].AvatarURL = url
	return nil
}

type uploader struct{ path string }

func (u *uploader) Upload(_ context.Context, p, _ string, r io.Reader) (string, error) {
	u.path = p
	_, err := io.ReadAll(r)
	return "https://cdn.example/" + p, err
}

func TestUploadAvatar(t *testing.T) {
	repo := memRepo{}
	up := &uploader{}
	svc := NewService(repo, up)
	ctx := context.Background()

	url, err := svc.UploadAvatar(ctx, "u1", Avatar{FileName: "Me.PNG", ContentType: "image/png", Size: 3, Body: strings.NewReader("png")})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if !strings.HasPrefix(up.path, "avatars/u1/") || !strings.HasSuffix(up.path, ".png") {
		t.Fatalf("object path = %q", up.path)
	}
	if repo["u1"].AvatarURL != url {
		t.Fatalf("avatar url not stored: %+v", repo["u1"])
	}

	if _, err := svc.UploadAvatar(ctx, "u1", Avatar{ContentType: "application/pdf", Size: 3, Body: strings.NewReader("pdf")}); !apperr.IsValidation(err) {
		t.Fatalf("non-image: %v", err)
	}
	if _, err := svc.UploadAvatar(ctx, "u1", Avatar{ContentType: "image/jpeg", Size: MaxAvatarBytes + 1, Body: strings.NewReader("")}); !apperr.IsValidation(err) {
		t.Fatalf("oversize: %v", err)
	}
	if _, err := NewService(repo, nil).UploadAvatar(ctx, "u1", Avatar{ContentType: "image/png", Size: 1, Body: strings.NewReader("x")}); !apperr.IsRejected(err) {
		t.Fatalf("no uploader: %v", err)
	}
}

func TestEnsureAndUpdate(t *testing.T) {
	repo := memRepo{}
	svc := NewService(repo, nil)
	ctx := context.Background()

	p, err := svc.Ensure(ctx, "u1", "u1@example.com")
	if err != nil || p.Email != "u1@example.com" {
		t.Fatalf("ensure: %+v %v", p, err)
	}
	p, err = svc.Update(ctx, UpdateCommand{ID: "u1", FullName: " Ayesha Khan ", Phone: "+92300"})
	if err != nil {
		t.Fatal(err)
	}
	if p.FullName != "Ayesha Khan" || p.Phone != "+92300" || p.Email != "u1@example.com" {
		t.Fatalf("unexpected profile %+v", p)
	}
}
