package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/rabbitry/internal/calendar"
	"github.com/mamadbah2/rabbitry/internal/domain/models"
	"github.com/mamadbah2/rabbitry/internal/service/breeding"
)

// BreedingService is the breeding surface exposed over HTTP.
type BreedingService interface {
	RegisterFarm(ctx context.Context, farm models.Farm) (models.Farm, error)
	RegisterAnimal(ctx context.Context, farmID string, in breeding.AnimalInput) (models.Animal, error)
	GetAnimal(ctx context.Context, id string) (models.Animal, error)
	ListBreedingEvents(ctx context.Context, doeID string) ([]models.BreedingEvent, error)
	ProposeMating(ctx context.Context, in breeding.ProposeMatingInput) (models.BreedingEvent, error)
	RecordBirth(ctx context.Context, eventID string, birth calendar.Date, litterSize int, notes string) (breeding.BirthResult, error)
	RetractMating(ctx context.Context, eventID string) error
	RecordKits(ctx context.Context, eventID string, kits []breeding.KitInput) ([]models.Animal, error)
}

// BreedingHandler exposes farms, animals and breeding events.
type BreedingHandler struct {
	svc    BreedingService
	logger *zap.Logger
}

// NewBreedingHandler constructs the HTTP handler adapter.
func NewBreedingHandler(svc BreedingService, logger *zap.Logger) *BreedingHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BreedingHandler{svc: svc, logger: logger}
}

type farmRequest struct {
	ID       string `json:"id"`
	Name     string `json:"name" binding:"required"`
	Timezone string `json:"timezone"`
	NotifyTo string `json:"notify_to"`
}

// CreateFarm registers a farm.
func (h *BreedingHandler) CreateFarm(c *gin.Context) {
	var req farmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.logger, err)
		return
	}

	farm, err := h.svc.RegisterFarm(c.Request.Context(), models.Farm{
		ID:       req.ID,
		Name:     req.Name,
		Timezone: req.Timezone,
		NotifyTo: req.NotifyTo,
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, farm)
}

type animalRequest struct {
	Name      string        `json:"name"`
	Sex       models.Sex    `json:"sex" binding:"required"`
	HutchID   string        `json:"hutch_id"`
	BirthDate calendar.Date `json:"birth_date"`
}

// CreateAnimal registers an animal on a farm.
func (h *BreedingHandler) CreateAnimal(c *gin.Context) {
	var req animalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.logger, err)
		return
	}

	animal, err := h.svc.RegisterAnimal(c.Request.Context(), c.Param("farmID"), breeding.AnimalInput{
		Name:      req.Name,
		Sex:       req.Sex,
		HutchID:   req.HutchID,
		BirthDate: req.BirthDate,
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, animal)
}

// GetAnimal returns one animal with its pregnancy state.
func (h *BreedingHandler) GetAnimal(c *gin.Context) {
	animal, err := h.svc.GetAnimal(c.Request.Context(), c.Param("animalID"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, animal)
}

// ListBreedings returns a doe's breeding history.
func (h *BreedingHandler) ListBreedings(c *gin.Context) {
	events, err := h.svc.ListBreedingEvents(c.Request.Context(), c.Param("animalID"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	if events == nil {
		events = []models.BreedingEvent{}
	}
	c.JSON(http.StatusOK, gin.H{"breedings": events})
}

type matingRequest struct {
	DoeID      string        `json:"doe_id" binding:"required"`
	BuckID     string        `json:"buck_id" binding:"required"`
	MatingDate calendar.Date `json:"mating_date"`
	Notes      string        `json:"notes"`
}

// ProposeMating records a mating.
func (h *BreedingHandler) ProposeMating(c *gin.Context) {
	var req matingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.logger, err)
		return
	}

	ev, err := h.svc.ProposeMating(c.Request.Context(), breeding.ProposeMatingInput{
		FarmID:     c.Param("farmID"),
		DoeID:      req.DoeID,
		BuckID:     req.BuckID,
		MatingDate: req.MatingDate,
		Notes:      req.Notes,
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, ev)
}

type birthRequest struct {
	BirthDate  calendar.Date `json:"birth_date"`
	LitterSize *int          `json:"litter_size" binding:"required"`
	Notes      string        `json:"notes"`
}

// RecordBirth closes a breeding event with its outcome.
func (h *BreedingHandler) RecordBirth(c *gin.Context) {
	var req birthRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.logger, err)
		return
	}

	res, err := h.svc.RecordBirth(c.Request.Context(), c.Param("eventID"), req.BirthDate, *req.LitterSize, req.Notes)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type kitsRequest struct {
	Kits []struct {
		Name    string     `json:"name"`
		Sex     models.Sex `json:"sex"`
		HutchID string     `json:"hutch_id"`
	} `json:"kits" binding:"required"`
}

// RecordKits registers a litter's kits individually.
func (h *BreedingHandler) RecordKits(c *gin.Context) {
	var req kitsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.logger, err)
		return
	}

	kits := make([]breeding.KitInput, 0, len(req.Kits))
	for _, k := range req.Kits {
		kits = append(kits, breeding.KitInput{Name: k.Name, Sex: k.Sex, HutchID: k.HutchID})
	}

	animals, err := h.svc.RecordKits(c.Request.Context(), c.Param("eventID"), kits)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"kits": animals})
}

// RetractMating soft-deletes an open breeding event.
func (h *BreedingHandler) RetractMating(c *gin.Context) {
	if err := h.svc.RetractMating(c.Request.Context(), c.Param("eventID")); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}
