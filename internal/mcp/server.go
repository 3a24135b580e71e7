// Package mcp exposes the retrieval engine over the Model Context
// Protocol: newline-delimited JSON-RPC 2.0 on stdin/stdout. Tools wrap
// batch fetching, pattern resolution, and clone cache control; the
// clone cache snapshot is also readable as a resource. Logs go to
// stderr, stdout carries protocol traffic only.
package mcp

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"

	"repofetch/internal/clonecache"
	"repofetch/internal/errors"
	"repofetch/internal/fetch"
	"repofetch/internal/identity"
	"repofetch/internal/logging"
)

// protocolVersion is the MCP revision this server implements.
const protocolVersion = "2024-11-05"

// ToolHandler executes one tool call and returns the result text.
type ToolHandler func(ctx context.Context, params map[string]interface{}) (string, error)

// ResourceHandler reads one resource and returns its text content.
type ResourceHandler func(ctx context.Context, uri string) (string, error)

// Server speaks MCP over a pair of byte streams, normally the
// process's stdin and stdout.
type Server struct {
	stdin   io.Reader
	stdout  io.Writer
	scanner *bufio.Scanner

	version string
	logger  *logging.Logger

	orch       *fetch.Orchestrator
	clones     *clonecache.Manager
	defaultOrg string
	aliases    map[string]identity.Identity

	tools     map[string]ToolHandler
	resources map[string]ResourceHandler
}

// Options configure a Server. Orchestrator and Clones are required.
type Options struct {
	Version      string
	Orchestrator *fetch.Orchestrator
	Clones       *clonecache.Manager

	// DefaultOrg completes bare repository names in tool arguments.
	DefaultOrg string

	// Aliases maps configured shorthand names to identities.
	Aliases map[string]identity.Identity

	Logger *logging.Logger
}

// NewServer builds a Server bound to os.Stdin/os.Stdout with the full
// tool and resource surface registered.
func NewServer(opts Options) (*Server, error) {
	if opts.Orchestrator == nil || opts.Clones == nil {
		return nil, errors.New(errors.Internal, "mcp server requires an orchestrator and a clone manager")
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}

	s := &Server{
		stdin:      os.Stdin,
		stdout:     os.Stdout,
		version:    opts.Version,
		logger:     opts.Logger,
		orch:       opts.Orchestrator,
		clones:     opts.Clones,
		defaultOrg: opts.DefaultOrg,
		aliases:    opts.Aliases,
	}

	s.registerTools()
	s.registerResources()

	return s, nil
}

// SetStdin replaces the input stream. Testing hook.
func (s *Server) SetStdin(r io.Reader) {
	s.stdin = r
	s.scanner = nil
}

// SetStdout replaces the output stream. Testing hook.
func (s *Server) SetStdout(w io.Writer) {
	s.stdout = w
}

// Start runs the message loop until stdin closes, ctx is canceled, or
// stdout becomes unwritable. A closed stdin is the normal shutdown
// path and returns nil.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("mcp server starting", map[string]interface{}{
		"version": s.version,
		"tools":   len(s.tools),
	})

	for {
		if err := ctx.Err(); err != nil {
			s.logger.Info("mcp server stopping", map[string]interface{}{
				"reason": err.Error(),
			})
			return err
		}

		msg, err := s.readMessage()
		if err != nil {
			if err == io.EOF {
				s.logger.Info("stdin closed, shutting down", nil)
				return nil
			}
			if malformed, ok := err.(*errMalformed); ok {
				s.logger.Warn("dropping malformed message", map[string]interface{}{
					"error": malformed.Error(),
				})
				if werr := s.writeMessage(NewErrorMessage(nil, ParseError, malformed.Error(), nil)); werr != nil {
					return werr
				}
				continue
			}
			return err
		}

		response := s.handleMessage(ctx, msg)
		if response == nil {
			continue
		}

		if err := s.writeMessage(response); err != nil {
			return err
		}
	}
}

// handleMessage routes one decoded message. Notifications and stray
// responses produce no reply.
func (s *Server) handleMessage(ctx context.Context, msg *Message) *Message {
	if msg.IsRequest() {
		return s.handleRequest(ctx, msg)
	}

	if msg.IsNotification() {
		s.handleNotification(msg)
		return nil
	}

	if msg.IsResponse() {
		// This server never issues requests of its own.
		s.logger.Debug("ignoring unsolicited response", map[string]interface{}{
			"id": msg.Id,
		})
		return nil
	}

	return NewErrorMessage(msg.Id, InvalidRequest, "message is neither request nor notification", nil)
}

func (s *Server) handleRequest(ctx context.Context, msg *Message) *Message {
	s.logger.Debug("handling request", map[string]interface{}{
		"method": msg.Method,
		"id":     msg.Id,
	})

	switch msg.Method {
	case "initialize":
		return s.handleInitialize(msg)
	case "tools/list":
		return s.handleListTools(msg)
	case "tools/call":
		return s.handleCallTool(ctx, msg)
	case "resources/list":
		return s.handleListResources(msg)
	case "resources/read":
		return s.handleReadResource(ctx, msg)
	default:
		return NewErrorMessage(msg.Id, MethodNotFound, fmt.Sprintf("method not found: %s", msg.Method), nil)
	}
}

func (s *Server) handleNotification(msg *Message) {
	switch msg.Method {
	case "notifications/initialized":
		s.logger.Info("client initialized", nil)
	default:
		s.logger.Debug("ignoring notification", map[string]interface{}{
			"method": msg.Method,
		})
	}
}

// ServerCapabilities advertises what this server supports. The tool
// and resource catalogs are fixed for the life of the process.
type ServerCapabilities struct {
	Tools     *ToolsCapability     `json:"tools,omitempty"`
	Resources *ResourcesCapability `json:"resources,omitempty"`
}

// ToolsCapability is the tools member of ServerCapabilities.
type ToolsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

// ResourcesCapability is the resources member of ServerCapabilities.
type ResourcesCapability struct {
	Subscribe   bool `json:"subscribe,omitempty"`
	ListChanged bool `json:"listChanged,omitempty"`
}

// ServerInfo names the server to clients.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// InitializeResult is the initialize response payload.
type InitializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ServerCapabilities `json:"capabilities"`
	ServerInfo      ServerInfo         `json:"serverInfo"`
}

func (s *Server) handleInitialize(msg *Message) *Message {
	params, _ := msg.Params.(map[string]interface{})
	s.logger.Info("initializing", map[string]interface{}{
		"clientInfo": params["clientInfo"],
	})

	return NewResultMessage(msg.Id, &InitializeResult{
		ProtocolVersion: protocolVersion,
		Capabilities: ServerCapabilities{
			Tools:     &ToolsCapability{},
			Resources: &ResourcesCapability{},
		},
		ServerInfo: ServerInfo{
			Name:    "repofetch",
			Version: s.version,
		},
	})
}

func (s *Server) handleListTools(msg *Message) *Message {
	return NewResultMessage(msg.Id, map[string]interface{}{
		"tools": s.GetToolDefinitions(),
	})
}

func (s *Server) handleCallTool(ctx context.Context, msg *Message) *Message {
	params, ok := msg.Params.(map[string]interface{})
	if !ok {
		return NewErrorMessage(msg.Id, InvalidParams, "invalid params: expected object", nil)
	}

	name, ok := params["name"].(string)
	if !ok || name == "" {
		return NewErrorMessage(msg.Id, InvalidParams, "invalid params: missing tool name", nil)
	}

	handler, exists := s.tools[name]
	if !exists {
		return NewErrorMessage(msg.Id, InvalidParams, fmt.Sprintf("unknown tool: %s", name), nil)
	}

	args, ok := params["arguments"].(map[string]interface{})
	if !ok {
		args = map[string]interface{}{}
	}

	s.logger.Info("calling tool", map[string]interface{}{
		"tool": name,
	})

	text, err := handler(ctx, args)
	if err != nil {
		return NewResultMessage(msg.Id, toolError(err))
	}

	return NewResultMessage(msg.Id, toolResult(text))
}
