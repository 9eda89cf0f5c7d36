package reasoning

import (
	"context"

	"github.com/pharmaops/go-rxchat/pkg/circuitbreaker"
)

// breakerService decorates a Service with a circuit breaker so that a failing
// collaborator stops blocking turns while open.
type breakerService struct {
	next    Service
	breaker *circuitbreaker.CircuitBreaker
}

// WithBreaker wraps a reasoning service with the given circuit breaker.
// Breaker rejections surface as CollaboratorErrors like any other failure.
func WithBreaker(next Service, breaker *circuitbreaker.CircuitBreaker) Service {
	return &breakerService{next: next, breaker: breaker}
}

func (b *breakerService) Complete(ctx context.Context, req Request) (*Result, error) {
	out, err := b.breaker.Execute(ctx, func() (interface{}, error) {
		return b.next.Complete(ctx, req)
	})
	if err != nil {
		if _, ok := err.(*CollaboratorError); ok {
			return nil, err
		}
		return nil, NewCollaboratorError("circuit", err)
	}
	return out.(*Result), nil
}
