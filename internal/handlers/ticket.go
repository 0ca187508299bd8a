package handlers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/orvale/backend/internal/services"
)

type TicketHandler struct {
	sequences *services.TicketSequenceService
}

func NewTicketHandler(sequences *services.TicketSequenceService) *TicketHandler {
	return &TicketHandler{sequences: sequences}
}

// NextNumber allocates the next ticket number for a team
func (h *TicketHandler) NextNumber(c *fiber.Ctx) error {
	team := c.Params("team")
	number, err := h.sequences.NextTicketNumber(c.UserContext(), team, time.Now())
	if errors.Is(err, services.ErrEmptyTeam) {
		return badRequest(c, err.Error())
	}
	if err != nil {
		return serverError(c, "Failed to allocate ticket number", err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"team_id":       team,
			"prefix":        services.GetTeamPrefix(team),
			"ticket_number": number,
		},
	})
}

// Current returns today's last allocated sequence for a team
func (h *TicketHandler) Current(c *fiber.Ctx) error {
	team := c.Params("team")
	seq, err := h.sequences.CurrentSequence(c.UserContext(), team, time.Now())
	if errors.Is(err, services.ErrEmptyTeam) {
		return badRequest(c, err.Error())
	}
	if err != nil {
		return serverError(c, "Failed to read sequence", err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"team_id":       team,
			"last_sequence": seq,
		},
	})
}
