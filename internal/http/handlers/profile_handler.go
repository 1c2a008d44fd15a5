// README: Profile handlers: read, update details, upload avatar.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"bidride/internal/modules/profile"
)

type ProfileHandler struct {
	profiles *profile.Service
}

func NewProfileHandler(svc *profile.Service) *ProfileHandler {
	return &ProfileHandler{profiles: svc}
}

// Me returns the caller's profile, creating an empty one on first use.
func (h *ProfileHandler) Me(c *gin.Context) {
	p, err := h.profiles.Ensure(c.Request.Context(), callerID(c), "")
	if err != nil {
		writeAppError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, p)
}

type profileReq struct {
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Phone    string `json:"phone"`
}

func (h *ProfileHandler) Update(c *gin.Context) {
	var req profileReq
	if !bindJSON(c, &req) {
		return
	}
	p, err := h.profiles.Update(c.Request.Context(), profile.UpdateCommand{
		ID:       callerID(c),
		Email:    req.Email,
		FullName: req.FullName,
		Phone:    req.Phone,
	})
	if err != nil {
		writeAppError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, p)
}

func (h *ProfileHandler) UploadAvatar(c *gin.Context) {
	fh, err := c.FormFile("avatar")
	if err != nil {
		writeError(c, http.StatusBadRequest, "missing avatar file")
		return
	}
	f, err := fh.Open()
	if err != nil {
		writeError(c, http.StatusBadRequest, "unreadable avatar file")
		return
	}
	defer f.Close()
	url, err := h.profiles.UploadAvatar(c.Request.Context(), callerID(c), profile.Avatar{
		FileName:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Size:        fh.Size,
		Body:        f,
	})
	if err != nil {
		writeAppError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"avatar_url": url})
}
