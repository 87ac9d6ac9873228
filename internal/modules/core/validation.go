package core

import (
	"context"
	"net/http"
	"strings"

	"github.com/eskrenkovic/mediator-go"
)

type Validator interface {
	Validate() error
}

type ValidationError struct {
	ValidationErrors []error
}

func (e ValidationError) Error() string {
	var b strings.Builder
	for i, err := range e.ValidationErrors {
		if i > 0 {
			b.WriteString(" ")
		}
		b.WriteString("'")
		b.WriteString(err.Error())
		b.WriteString("'")
	}
	return b.String()
}

// Unwrap exposes the individual failures to errors.Is.
func (e ValidationError) Unwrap() []error {
	return e.ValidationErrors
}

var _ mediator.PipelineBehavior = (*RequestValidationBehavior)(nil)

type RequestValidationBehavior struct{}

func (b *RequestValidationBehavior) Handle(
	ctx context.Context,
	request interface{},
	next mediator.RequestHandlerFunc,
) (interface{}, error) {
	if request, ok := request.(Validator); ok {
		if err := request.Validate(); err != nil {
			return nil, NewCommandError(http.StatusBadRequest, err, WithReason("request validation failed"))
		}
	}

	return next(ctx, request)
}
