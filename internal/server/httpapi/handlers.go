package httpapi

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"

	"github.com/avoronov/planvault/internal/common"
	"github.com/avoronov/planvault/internal/server/models"
	"github.com/avoronov/planvault/internal/server/services"
	"github.com/gin-gonic/gin"
)

func (s *Server) getWorkspace(c *gin.Context) {
	w, err := s.workspaces.Get(c.Request.Context(), callerID(c))
	if err != nil {
		s.fail(c, err)
		return
	}

	resp := workspaceResponse{Version: w.Version}
	if w.Version > 0 {
		blob := base64.StdEncoding.EncodeToString(w.Blob)
		resp.Blob = &blob
		resp.UpdatedAt = &w.UpdatedAt
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) pushWorkspace(c *gin.Context) {
	var req workspacePushRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	blob, err := base64.StdEncoding.DecodeString(req.Blob)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "blob is not valid base64"})
		return
	}

	version, err := s.workspaces.Put(c.Request.Context(), callerID(c), blob, req.Version, req.DeviceID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, versionResponse{Version: version})
}

func (s *Server) registerSharingKey(c *gin.Context) {
	var req registerKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	key, err := base64.StdEncoding.DecodeString(req.PublicKey)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "publicKey is not valid base64"})
		return
	}

	if err := s.sharingKeys.Register(c.Request.Context(), callerID(c), key); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) lookupSharingKey(c *gin.Context) {
	var (
		key *models.SharingKey
		err error
	)
	switch {
	case c.Query("email") != "":
		key, err = s.sharingKeys.LookupByEmail(c.Request.Context(), c.Query("email"))
	case c.Query("userId") != "":
		key, err = s.sharingKeys.LookupByUserID(c.Request.Context(), c.Query("userId"))
	default:
		c.JSON(http.StatusBadRequest, errorResponse{Error: "email or userId query parameter required"})
		return
	}
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, publicKeyResponse{
		UserID:    key.UserID,
		PublicKey: base64.StdEncoding.EncodeToString(key.PublicKey),
	})
}

func (s *Server) createShare(c *gin.Context) {
	var req createShareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	recipient, err := s.sharingKeys.LookupByEmail(c.Request.Context(), req.RecipientEmail)
	if err != nil {
		s.fail(c, err)
		return
	}

	data, err := decodeB64(req.EncryptedItemData)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "encryptedItemData is not valid base64"})
		return
	}
	wdekRecipient, err := decodeB64(req.WrappedDekForRecipient)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "wrappedDekForRecipient is not valid base64"})
		return
	}
	wdekOwner, err := decodeB64(req.WrappedDekForOwner)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "wrappedDekForOwner is not valid base64"})
		return
	}

	share, err := s.shares.CreateShare(c.Request.Context(), services.CreateShareParams{
		OwnerID:                callerID(c),
		ItemID:                 req.ItemID,
		RecipientID:            recipient.UserID,
		Permission:             req.Permission,
		EncryptedItemData:      data,
		WrappedDEKForRecipient: wdekRecipient,
		WrappedDEKForOwner:     wdekOwner,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, toShareResponse(share, callerID(c)))
}

func (s *Server) pushShareData(c *gin.Context) {
	var req shareDataRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	blob, err := decodeB64(req.Blob)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "blob is not valid base64"})
		return
	}

	version, err := s.shares.UpdateShareData(c.Request.Context(), callerID(c), c.Param("id"), blob, req.Version)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, versionResponse{Version: version})
}

func (s *Server) updateWrapping(c *gin.Context) {
	var req wrappingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	wdek, err := base64.StdEncoding.DecodeString(req.WrappedDek)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "wrappedDek is not valid base64"})
		return
	}

	if err := s.shares.UpdateRecipientWrapping(c.Request.Context(), callerID(c), c.Param("id"), wdek); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) updateRecipient(c *gin.Context) {
	var req recipientPatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	err := s.shares.UpdateRecipient(c.Request.Context(),
		callerID(c), c.Param("id"), c.Param("userId"), req.Permission, req.AlwaysAccept)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) revokeRecipient(c *gin.Context) {
	err := s.shares.RevokeRecipient(c.Request.Context(), callerID(c), c.Param("id"), c.Param("userId"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) deleteShare(c *gin.Context) {
	if err := s.shares.DeleteShare(c.Request.Context(), callerID(c), c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) listIncomingShares(c *gin.Context) {
	s.listShares(c, s.shares.ListIncoming)
}

func (s *Server) listOutgoingShares(c *gin.Context) {
	s.listShares(c, s.shares.ListOutgoing)
}

func (s *Server) listShares(c *gin.Context, list func(ctx context.Context, userID string) ([]*models.Share, error)) {
	shares, err := list(c.Request.Context(), callerID(c))
	if err != nil {
		s.fail(c, err)
		return
	}

	resp := make([]shareResponse, 0, len(shares))
	for _, share := range shares {
		resp = append(resp, toShareResponse(share, callerID(c)))
	}
	c.JSON(http.StatusOK, resp)
}

// fail maps the error taxonomy onto HTTP statuses. Version conflicts carry
// the authoritative current version in the body.
func (s *Server) fail(c *gin.Context, err error) {
	var vc *common.VersionConflictError
	switch {
	case errors.As(err, &vc):
		c.JSON(http.StatusConflict, conflictResponse{CurrentVersion: vc.Current})
	case errors.Is(err, common.ErrMalformedBlob):
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, common.ErrForbidden):
		c.JSON(http.StatusForbidden, errorResponse{Error: "forbidden"})
	case errors.Is(err, common.ErrorNotFound):
		c.JSON(http.StatusNotFound, errorResponse{Error: "not found"})
	default:
		s.logger.Error(c.Request.Context(), "internal error", "error", err.Error())
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func decodeB64(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	return base64.StdEncoding.DecodeString(s)
}

// toShareResponse renders a share for a given viewer. The owner wrapping is
// only exposed to the owner; recipients only see their own wrapped DEK.
func toShareResponse(share *models.Share, viewerID string) shareResponse {
	resp := shareResponse{
		ID:                share.ID,
		OwnerID:           share.OwnerID,
		ItemID:            share.ItemID,
		EncryptedItemData: base64.StdEncoding.EncodeToString(share.EncryptedItemData),
		Version:           share.Version,
		UpdatedAt:         share.UpdatedAt,
	}
	if share.OwnerID == viewerID {
		resp.WrappedDekOwner = base64.StdEncoding.EncodeToString(share.WrappedDEKOwner)
	}
	for _, rec := range share.Recipients {
		r := recipientResponse{
			UserID:       rec.UserID,
			Permission:   rec.Permission,
			AlwaysAccept: rec.AlwaysAccept,
		}
		if rec.UserID == viewerID || share.OwnerID == viewerID {
			r.WrappedDek = base64.StdEncoding.EncodeToString(rec.WrappedDEK)
		}
		resp.Recipients = append(resp.Recipients, r)
	}
	return resp
}
