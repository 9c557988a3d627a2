package util

import (
	"runtime/debug"

	"github.com/fadilmartias/bioreport-worker/internal/response"
	"github.com/gofiber/fiber/v2"
)

type SuccessResponseFormat struct {
	Code       int
	Message    string
	Data       any
	Pagination *response.Pagination
	Meta       any
}

type OrderedSuccessResponse struct {
	Success    bool                 `json:"success"`
	Message    string               `json:"message"`
	Meta       any                  `json:"meta,omitempty"`
	Pagination *response.Pagination `json:"pagination,omitempty"`
	Data       any                  `json:"data,omitempty"`
}

type ErrorResponseFormat struct {
	Code    int
	Message string
	Details any
	// Debug adds the error text and a stack trace to the body. Off in production.
	Debug bool
}

type OrderedErrorResponse struct {
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	DevMessage string `json:"dev_message,omitempty"`
	Details    any    `json:"details,omitempty"`
	Trace      string `json:"trace,omitempty"`
}

// SuccessResponse sends the standard success envelope.
func SuccessResponse(c *fiber.Ctx, params SuccessResponseFormat) error {
	code := params.Code
	if code == 0 {
		code = fiber.StatusOK
	}
	return c.Status(code).JSON(OrderedSuccessResponse{
		Success:    true,
		Message:    params.Message,
		Data:       params.Data,
		Pagination: params.Pagination,
		Meta:       params.Meta,
	})
}

// ErrorResponse sends the standard error envelope.
func ErrorResponse(c *fiber.Ctx, params ErrorResponseFormat, errs ...error) error {
	body := OrderedErrorResponse{
		Success: false,
		Message: params.Message,
		Details: params.Details,
	}
	if params.Debug && len(errs) > 0 && errs[0] != nil {
		body.DevMessage = errs[0].Error()
		body.Trace = string(debug.Stack())
	}

	code := params.Code
	if code == 0 {
		code = fiber.StatusInternalServerError
	}
	return c.Status(code).JSON(body)
}
