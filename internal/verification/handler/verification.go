package handler

import (
	"net/http"

	"vaxslot/internal/verification/service"
	"vaxslot/pkg/auth"
	httputil "vaxslot/pkg/http"
	"vaxslot/pkg/logger"
	"vaxslot/pkg/model"

	"github.com/julienschmidt/httprouter"
)

type VerificationHandler struct {
	service service.VerificationService
	log     *logger.Logger
}

func NewVerificationHandler(service service.VerificationService, log *logger.Logger) *VerificationHandler {
	return &VerificationHandler{
		service: service,
		log:     log,
	}
}

func (h *VerificationHandler) Resolve(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req model.VerifyRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.writeError(w, "Resolve", err)
		return
	}

	view, err := h.service.Resolve(r.Context(), auth.PrincipalFrom(r.Context()), &req)
	if err != nil {
		h.writeError(w, "Resolve", err)
		return
	}

	if err := httputil.WriteSuccess(w, view); err != nil {
		h.log.Error("failed to write success response", "handler", "Resolve", "operation", "WriteSuccess", "error", err)
	}
}

func (h *VerificationHandler) ResolveReference(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	view, err := h.service.ResolveReference(r.Context(), auth.PrincipalFrom(r.Context()), ps.ByName("ref"))
	if err != nil {
		h.writeError(w, "ResolveReference", err)
		return
	}

	if err := httputil.WriteSuccess(w, view); err != nil {
		h.log.Error("failed to write success response", "handler", "ResolveReference", "operation", "WriteSuccess", "error", err)
	}
}

func (h *VerificationHandler) ApplyStatus(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req model.StatusUpdateRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.writeError(w, "ApplyStatus", err)
		return
	}

	a, err := h.service.ApplyStatus(r.Context(), auth.PrincipalFrom(r.Context()), ps.ByName("id"), &req)
	if err != nil {
		h.writeError(w, "ApplyStatus", err)
		return
	}

	if err := httputil.WriteSuccess(w, a); err != nil {
		h.log.Error("failed to write success response", "handler", "ApplyStatus", "operation", "WriteSuccess", "error", err)
	}
}

func (h *VerificationHandler) writeError(w http.ResponseWriter, handler string, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", handler, "operation", "WriteError", "error", writeErr)
	}
}

func (h *VerificationHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/v1/verify", h.Resolve)
	router.GET("/api/v1/verify/:ref", h.ResolveReference)
	router.PATCH("/api/v1/verifications/id/:id/status", h.ApplyStatus)
}
