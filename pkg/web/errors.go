package web

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"

	"github.com/modernmen/pulse/pkg/rules"
	"github.com/modernmen/pulse/pkg/workflow"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(fiber.StatusBadRequest).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(fiber.StatusNotFound).
		WithInstance(c.Path()).
		WithType("not_found").
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func conflict(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(fiber.StatusConflict).
		WithInstance(c.Path()).
		WithType("conflict").
		WithDetail(detail)

	return c.Status(fiber.StatusConflict).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(fiber.StatusInternalServerError).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleEngineError maps rule and workflow engine errors to problem
// responses.
func handleEngineError(c fiber.Ctx, err error) error {
	switch {
	case workflow.IsNotFound(err), errors.Is(err, rules.ErrRuleNotFound):
		return notFound(c, err.Error())

	case workflow.IsConfigurationError(err), rules.IsValidationError(err):
		return badRequest(c, err.Error())

	case errors.Is(err, workflow.ErrAlreadyTerminal), errors.Is(err, workflow.ErrStepNotCurrent):
		return conflict(c, err.Error())

	default:
		return internalError(c, err)
	}
}
