package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/moonmind/moonmind/pkg/errors"
	"github.com/moonmind/moonmind/pkg/log"
	"github.com/moonmind/moonmind/pkg/queue"
)

const serverInstructions = `MoonMind queue MCP server.

Tools cover the full job lifecycle: queue.enqueue files a job,
queue.claim/.heartbeat/.complete/.fail drive it from a worker, and
queue.get/.list/.cancel/.upload_artifact observe and steer it. Worker
tools require a worker token on the transport.`

// Server dispatches the fixed queue tool set. Each tool's argument schema
// is compiled once at construction; dispatch validates arguments before the
// handler runs so REST and MCP agree on what a bad request is.
type Server struct {
	version string
	tools   []*Tool
	index   map[string]*Tool
	schemas map[string]*jsonschema.Schema
	logger  zerolog.Logger
}

// NewServer builds the dispatcher over the queue service.
func NewServer(svc *queue.Service, version string) (*Server, error) {
	tools := queueTools(svc)

	compiler := jsonschema.NewCompiler()
	for _, tool := range tools {
		raw, err := json.Marshal(tool.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("marshal schema for %s: %w", tool.Name, err)
		}
		var doc any
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("unmarshal schema for %s: %w", tool.Name, err)
		}
		if err := compiler.AddResource(tool.Name+".json", doc); err != nil {
			return nil, fmt.Errorf("add schema resource for %s: %w", tool.Name, err)
		}
	}

	index := make(map[string]*Tool, len(tools))
	schemas := make(map[string]*jsonschema.Schema, len(tools))
	for _, tool := range tools {
		schema, err := compiler.Compile(tool.Name + ".json")
		if err != nil {
			return nil, fmt.Errorf("compile schema for %s: %w", tool.Name, err)
		}
		index[tool.Name] = tool
		schemas[tool.Name] = schema
	}

	return &Server{
		version: version,
		tools:   tools,
		index:   index,
		schemas: schemas,
		logger:  log.WithComponent("mcp"),
	}, nil
}

// ListTools returns every tool with its JSON schema.
func (s *Server) ListTools() ToolsListResult {
	defs := make([]ToolDefinition, 0, len(s.tools))
	for _, tool := range s.tools {
		defs = append(defs, ToolDefinition{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: tool.InputSchema,
		})
	}
	return ToolsListResult{Tools: defs}
}

// CallTool validates the arguments against the tool's schema and runs its
// handler. This is the flat {tool, arguments} entry point; tools/call
// delegates here too.
func (s *Server) CallTool(ctx context.Context, sess Session, name string, args json.RawMessage) (any, error) {
	tool, ok := s.index[name]
	if !ok {
		return nil, errors.NewNotFound(errors.CodeToolNotFound,
			fmt.Sprintf("no tool named %q", name))
	}
	if tool.Scope == scopeWorker && sess.Policy == nil {
		return nil, errors.NewAuthentication("tool " + name + " requires a worker token")
	}

	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}
	var value any
	if err := json.Unmarshal(args, &value); err != nil {
		return nil, invalidArguments(err)
	}
	if err := s.schemas[name].Validate(value); err != nil {
		return nil, errors.NewValidation(errors.CodeInvalidToolArguments, err.Error())
	}

	result, err := tool.Handler(ctx, sess, args)
	if err != nil {
		s.logger.Debug().
			Str("tool", name).
			Str("code", errors.CodeOf(err)).
			Msg("Tool call failed")
		return nil, err
	}
	return result, nil
}

// Handle processes one JSON-RPC request. Notifications return nil.
func (s *Server) Handle(ctx context.Context, sess Session, req *JSONRPCRequest) *JSONRPCResponse {
	if req.JSONRPC != JSONRPCVersion {
		if req.IsNotification() {
			return nil
		}
		return NewErrorResponse(req.ID, ErrorCodeInvalidRequest,
			fmt.Sprintf("jsonrpc must be %q", JSONRPCVersion), nil)
	}

	switch req.Method {
	case MethodInitialize:
		return NewResponse(req.ID, InitializeResult{
			ProtocolVersion: ProtocolVersion,
			Capabilities:    ServerCapability{Tools: &ToolsCapability{}},
			ServerInfo:      Implementation{Name: ServerName, Version: s.version},
			Instructions:    serverInstructions,
		})
	case MethodInitialized:
		// Notification; nothing to do.
		return nil
	case MethodPing:
		return NewResponse(req.ID, struct{}{})
	case MethodToolsList:
		return NewResponse(req.ID, s.ListTools())
	case MethodToolsCall:
		return s.handleToolsCall(ctx, sess, req)
	default:
		if req.IsNotification() {
			return nil
		}
		return NewErrorResponse(req.ID, ErrorCodeMethodNotFound,
			fmt.Sprintf("method %q not found", req.Method), nil)
	}
}

func (s *Server) handleToolsCall(ctx context.Context, sess Session, req *JSONRPCRequest) *JSONRPCResponse {
	var params ToolsCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return NewErrorResponse(req.ID, ErrorCodeInvalidParams,
			fmt.Sprintf("tools/call params do not decode: %v", err), nil)
	}

	result, err := s.CallTool(ctx, sess, params.Name, params.Arguments)
	if err != nil {
		return NewErrorResponse(req.ID, rpcErrorCode(err), errors.MessageOf(err),
			map[string]any{"code": errors.CodeOf(err)})
	}

	content, err := NewJSONContent(result)
	if err != nil {
		return NewErrorResponse(req.ID, ErrorCodeInternalError,
			"cannot encode tool result", nil)
	}
	return NewResponse(req.ID, ToolsCallResult{Content: []ContentBlock{content}})
}

// rpcErrorCode folds the domain error sum into JSON-RPC codes. Unknown tools
// keep their dedicated code; everything else that is caller-correctable maps
// to invalid params.
func rpcErrorCode(err error) int {
	switch {
	case errors.CodeOf(err) == errors.CodeToolNotFound:
		return ErrorCodeToolNotFound
	case errors.HTTPStatus(err) >= 500:
		return ErrorCodeInternalError
	case errors.IsValidation(err) || errors.IsContract(err):
		return ErrorCodeInvalidParams
	default:
		return ErrorCodeToolExecutionFail
	}
}
