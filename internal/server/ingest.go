package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/joseph-ayodele/palmistry/internal/common"
	ingestsvc "github.com/joseph-ayodele/palmistry/internal/services/ingest"
)

// multipart headers and the hand field on top of the image itself
const multipartSlack = 1 << 20

// Upload accepts a multipart palm image in field "image" with an optional
// "hand" form value and answers 202 with the job to poll.
func (a *API) Upload(c *gin.Context) {
	if a.maxBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, a.maxBytes+multipartSlack)
	}
	fh, err := c.FormFile("image")
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		a.fail(c, common.NewAppError("FILE_TOO_LARGE", "upload exceeds the size limit", common.ErrInvalidInput))
		return
	}
	if err != nil {
		a.logger.Warn("http.upload.no_file", "req_id", c.GetString(requestIDKey), "error", err)
		a.fail(c, common.NewAppError("NO_FILE", "multipart field \"image\" is required", common.ErrInvalidInput))
		return
	}
	f, err := fh.Open()
	if err != nil {
		a.fail(c, common.WrapError(err, "open upload"))
		return
	}
	defer f.Close()

	res, err := a.ingest.Upload(c.Request.Context(), ingestsvc.UploadRequest{
		OwnerID:  ownerID(c),
		Filename: fh.Filename,
		Hand:     c.PostForm("hand"),
		Body:     f,
	})
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, res)
}

type loginRequest struct {
	User string `json:"user"`
}

// Login issues a bearer token for a user name. Only enabled for development.
func (a *API) Login(c *gin.Context) {
	if !a.auth.AllowLogin {
		a.fail(c, common.NewAppError("LOGIN_DISABLED", "token issuance is disabled", common.ErrNotFound))
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		a.fail(c, common.NewAppError("BAD_BODY", "body must be {\"user\": \"...\"}", common.ErrInvalidInput))
		return
	}
	var v common.Validator
	v.Field("user", req.User, common.Required, common.MaxLength(64))
	if err := v.Err(); err != nil {
		a.fail(c, err)
		return
	}

	token, exp, err := MintToken(a.auth.JWTSecret, req.User, a.auth.TokenTTL)
	if err != nil {
		a.fail(c, common.WrapError(err, "sign token"))
		return
	}
	a.logger.Info("http.login.issued", "user", req.User, "expires_at", exp)
	c.JSON(http.StatusOK, gin.H{"token": token, "expires_at": exp.UTC()})
}
