package web

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"

	"github.com/runweave/runweave/pkg/engine"
	"github.com/runweave/runweave/pkg/persistence"
	"github.com/runweave/runweave/pkg/validation"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType("not_found").
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func conflict(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(409).
		WithInstance(c.Path()).
		WithType("conflict").
		WithDetail(detail)

	return c.Status(fiber.StatusConflict).JSON(problem)
}

func forbidden(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(403).
		WithInstance(c.Path()).
		WithType("forbidden").
		WithDetail(detail)

	return c.Status(fiber.StatusForbidden).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// unprocessable reports a structurally broken workflow graph with the
// full list of validation findings.
func unprocessable(c fiber.Ctx, errs validation.Errors) error {
	problem := problems.NewStatusProblem(422).
		WithInstance(c.Path()).
		WithType("graph_validation_failed").
		WithDetail(errs.Error())

	return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
		"type":   problem.Type,
		"title":  problem.Title,
		"status": problem.Status,
		"detail": problem.Detail,
		"errors": errs,
	})
}

// handleServiceError maps domain errors onto problem responses.
func handleServiceError(c fiber.Ctx, err error) error {
	switch {
	case persistence.IsRunNotFound(err):
		return notFound(c, "run not found")

	case persistence.IsWorkflowNotFound(err):
		return notFound(c, "workflow not found")

	case persistence.IsConfirmationNotFound(err):
		return notFound(c, "confirmation request not found")

	case errors.Is(err, engine.ErrRunNotStartable), persistence.IsTransitionConflict(err):
		return conflict(c, err.Error())

	case errors.Is(err, engine.ErrExecutionDenied):
		return forbidden(c, err.Error())

	default:
		return internalError(c, err)
	}
}
