package handler

import (
	"net/http"

	"vaxslot/internal/vaccines/service"
	"vaxslot/pkg/auth"
	httputil "vaxslot/pkg/http"
	"vaxslot/pkg/logger"
	"vaxslot/pkg/model"

	"github.com/julienschmidt/httprouter"
)

type VaccineHandler struct {
	service service.VaccineService
	log     *logger.Logger
}

func NewVaccineHandler(service service.VaccineService, log *logger.Logger) *VaccineHandler {
	return &VaccineHandler{
		service: service,
		log:     log,
	}
}

func (h *VaccineHandler) Create(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var v model.Vaccine
	if err := httputil.DecodeJSON(r, &v); err != nil {
		h.writeError(w, "Create", err)
		return
	}

	if err := h.service.Create(r.Context(), auth.PrincipalFrom(r.Context()), &v); err != nil {
		h.writeError(w, "Create", err)
		return
	}

	if err := httputil.WriteCreated(w, v); err != nil {
		h.log.Error("failed to write created response", "handler", "Create", "operation", "WriteCreated", "error", err)
	}
}

func (h *VaccineHandler) GetByID(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	v, err := h.service.GetByID(r.Context(), ps.ByName("id"))
	if err != nil {
		h.writeError(w, "GetByID", err)
		return
	}

	if err := httputil.WriteSuccess(w, v); err != nil {
		h.log.Error("failed to write success response", "handler", "GetByID", "operation", "WriteSuccess", "error", err)
	}
}

func (h *VaccineHandler) GetAll(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	limit, offset, err := httputil.ExtractLimitOffset(r)
	if err != nil {
		h.writeError(w, "GetAll", err)
		return
	}

	vaccines, totalCount, err := h.service.GetAll(r.Context(), limit, offset)
	if err != nil {
		h.writeError(w, "GetAll", err)
		return
	}

	if err := httputil.WritePaginated(w, vaccines, totalCount, limit, offset); err != nil {
		h.log.Error("failed to write paginated response", "handler", "GetAll", "operation", "WritePaginated", "error", err)
	}
}

func (h *VaccineHandler) Update(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var updates model.VaccineUpdate
	if err := httputil.DecodeJSON(r, &updates); err != nil {
		h.writeError(w, "Update", err)
		return
	}

	v, err := h.service.Update(r.Context(), auth.PrincipalFrom(r.Context()), ps.ByName("id"), &updates)
	if err != nil {
		h.writeError(w, "Update", err)
		return
	}

	if err := httputil.WriteSuccess(w, v); err != nil {
		h.log.Error("failed to write success response", "handler", "Update", "operation", "WriteSuccess", "error", err)
	}
}

func (h *VaccineHandler) Delete(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	if err := h.service.Delete(r.Context(), auth.PrincipalFrom(r.Context()), ps.ByName("id")); err != nil {
		h.writeError(w, "Delete", err)
		return
	}
	httputil.WriteNoContent(w)
}

func (h *VaccineHandler) writeError(w http.ResponseWriter, handler string, err error) {
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", handler, "operation", "WriteError", "error", writeErr)
	}
}

func (h *VaccineHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/v1/vaccines", h.Create)
	router.GET("/api/v1/vaccines", h.GetAll)
	router.GET("/api/v1/vaccines/id/:id", h.GetByID)
	router.PATCH("/api/v1/vaccines/id/:id", h.Update)
	router.DELETE("/api/v1/vaccines/id/:id", h.Delete)
}
