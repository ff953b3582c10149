package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/shelf/internal/errors"
)

// checker is implemented by requests with required arguments that the JSON
// shape alone cannot express.
type checker interface {
	check() error
}

// decode binds the tool arguments into T and runs its check, if any. Every
// failure is an INVALID_REQUEST.
func decode[T any](req mcp.CallToolRequest) (T, error) {
	var input T
	if err := req.BindArguments(&input); err != nil {
		return input, errors.NewInvalidRequest("invalid arguments: " + err.Error())
	}
	if c, ok := any(&input).(checker); ok {
		if err := c.check(); err != nil {
			return input, errors.NewInvalidRequest(err.Error())
		}
	}
	return input, nil
}
