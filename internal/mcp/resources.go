package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"repofetch/internal/errors"
)

// clonesResourceURI names the clone cache snapshot resource.
const clonesResourceURI = "repofetch://clones"

// Resource describes one readable resource.
type Resource struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

func (s *Server) registerResources() {
	s.resources = map[string]ResourceHandler{
		clonesResourceURI: s.readClonesResource,
	}
}

// GetResourceDefinitions returns the static resource catalog.
func (s *Server) GetResourceDefinitions() []Resource {
	return []Resource{
		{
			URI:         clonesResourceURI,
			Name:        "Clone cache",
			Description: "Snapshot of cached repository clones with sizes, access times, and in-use state",
			MimeType:    "application/json",
		},
	}
}

func (s *Server) handleListResources(msg *Message) *Message {
	return NewResultMessage(msg.Id, map[string]interface{}{
		"resources": s.GetResourceDefinitions(),
	})
}

func (s *Server) handleReadResource(ctx context.Context, msg *Message) *Message {
	params, ok := msg.Params.(map[string]interface{})
	if !ok {
		return NewErrorMessage(msg.Id, InvalidParams, "invalid params: expected object", nil)
	}

	uri, ok := params["uri"].(string)
	if !ok || uri == "" {
		return NewErrorMessage(msg.Id, InvalidParams, "invalid params: missing uri", nil)
	}

	handler, exists := s.resources[uri]
	if !exists {
		return NewErrorMessage(msg.Id, InvalidParams, fmt.Sprintf("unknown resource: %s", uri), nil)
	}

	s.logger.Debug("reading resource", map[string]interface{}{
		"uri": uri,
	})

	text, err := handler(ctx, uri)
	if err != nil {
		return NewErrorMessage(msg.Id, InternalError, errors.AsError(err).Error(), nil)
	}

	return NewResultMessage(msg.Id, map[string]interface{}{
		"contents": []map[string]interface{}{
			{
				"uri":      uri,
				"mimeType": "application/json",
				"text":     text,
			},
		},
	})
}

// readClonesResource serves the clone cache status snapshot.
func (s *Server) readClonesResource(ctx context.Context, uri string) (string, error) {
	data, err := json.MarshalIndent(s.clones.Status(), "", "  ")
	if err != nil {
		return "", errors.Wrap(errors.Internal, "marshaling clone status", err)
	}
	return string(data), nil
}
