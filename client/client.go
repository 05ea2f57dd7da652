// Package client talks to OpenAI-compatible chat completion endpoints.
package client

import (
	"context"
	"errors"
	"fmt"

	"marketing-groupchat/agent"
)

//go:generate go run go.uber.org/mock/mockgen -source=client.go -destination=mocks/mock_client.go -package=mocks

var ErrEmptyResponse = errors.New("model returned no choices")

// ModelClient turns system instructions and a message history into the next reply.
type ModelClient interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Request is a single chat completion call.
type Request struct {
	// Caller names who is asking, used only to attribute usage and metrics.
	Caller       string
	Instructions string
	History      []agent.Message
	// Schema, when set, asks the model for a JSON object matching it.
	Schema *Schema
}

// Schema describes a structured output format.
type Schema struct {
	Name        string
	Description string
	Definition  any
}

// InvocationError is returned when a chat completion call fails.
type InvocationError struct {
	Host   Host
	Model  string
	Caller string
	Err    error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("model invocation failed (host=%s model=%s caller=%s): %v", e.Host, e.Model, e.Caller, e.Err)
}

func (e *InvocationError) Unwrap() error {
	return e.Err
}
