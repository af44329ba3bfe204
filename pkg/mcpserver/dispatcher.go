// Package mcpserver speaks MCP over stdio: newline-delimited JSON-RPC 2.0
// requests on stdin, responses on stdout, one request processed at a time in
// arrival order. Nothing but protocol frames is ever written to stdout; all
// diagnostics go to stderr through the logger.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/benchnote/eln-mcp/pkg/audit"
	"github.com/benchnote/eln-mcp/pkg/eln"
	"github.com/benchnote/eln-mcp/pkg/logger"
	"github.com/benchnote/eln-mcp/pkg/resources"
)

// message is one inbound JSON-RPC frame.
type message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
}

func (m *message) isNotification() bool {
	return m.Method != "" && m.ID == nil
}

// response is one outbound JSON-RPC frame. ID is always serialized; a parse
// error carries an explicit null.
type response struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      any       `json:"id"`
	Result  any       `json:"result,omitempty"`
	Error   *rpcError `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

type initializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    serverCapabilities `json:"capabilities"`
	ServerInfo      mcp.Implementation `json:"serverInfo"`
}

type serverCapabilities struct {
	Resources resourcesCapability `json:"resources"`
}

type resourcesCapability struct {
	Subscribe   bool `json:"subscribe"`
	ListChanged bool `json:"listChanged"`
}

type listResourcesResult struct {
	Resources []mcp.Resource `json:"resources"`
}

type readResourceParams struct {
	URI string `json:"uri"`
}

type readResourceResult struct {
	Contents []*resources.Content `json:"contents"`
}

// Dispatcher is the serial JSON-RPC request loop.
type Dispatcher struct {
	resources *resources.Manager
	emitter   *audit.Emitter
	framer    *framer
	info      mcp.Implementation
}

// New builds a dispatcher reading frames from in and writing them to out.
func New(mgr *resources.Manager, emitter *audit.Emitter, in io.Reader, out io.Writer, serverName, version string) *Dispatcher {
	return &Dispatcher{
		resources: mgr,
		emitter:   emitter,
		framer:    newFramer(in, out),
		info:      mcp.Implementation{Name: serverName, Version: version},
	}
}

// Run processes requests until the input closes or ctx is canceled. A closed
// stdin is the client's hang-up and returns nil. Cancellation stops intake
// between requests; a request already being handled runs to completion on a
// context detached from ctx, so the caller bounds how long it waits for Run
// to return.
func (d *Dispatcher) Run(ctx context.Context) error {
	type frame struct {
		line []byte
		err  error
	}
	frames := make(chan frame)
	go func() {
		for {
			line, err := d.framer.next()
			select {
			case frames <- frame{line: line, err: err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	reqBase := context.WithoutCancel(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f := <-frames:
			if errors.Is(f.err, io.EOF) {
				logger.Debug("input closed, shutting down")
				return nil
			}
			if f.err != nil {
				return f.err
			}
			d.handleLine(reqBase, f.line)
		}
	}
}

func (d *Dispatcher) handleLine(ctx context.Context, line []byte) {
	var msg message
	if err := json.Unmarshal(line, &msg); err != nil {
		d.writeError(nil, mcp.PARSE_ERROR, "Parse error", errorData{CorrelationID: uuid.NewString()})
		return
	}
	if msg.JSONRPC != "2.0" || msg.Method == "" {
		d.writeError(msg.ID, mcp.INVALID_REQUEST, "Invalid Request", errorData{CorrelationID: uuid.NewString()})
		return
	}

	corrID := uuid.NewString()
	reqCtx := audit.WithCorrelationID(ctx, corrID)

	if msg.isNotification() {
		d.handleNotification(&msg)
		return
	}
	d.handleRequest(reqCtx, &msg, corrID)
}

// handleNotification processes a request with no ID. Notifications never get
// a response, not even on error.
func (d *Dispatcher) handleNotification(msg *message) {
	logger.Debugw("notification received", "method", msg.Method)
}

func (d *Dispatcher) handleRequest(ctx context.Context, msg *message, corrID string) {
	result, err := d.dispatch(ctx, msg)
	if err != nil {
		if isUpstreamFailure(err) {
			d.emitter.Emit(audit.New(ctx, audit.EventUpstreamError, audit.OutcomeError).
				WithErrorKind(string(eln.KindOf(err))).
				WithMessage("upstream call failed during " + msg.Method))
		}
		code, text, data := mapError(err, corrID)
		logger.Debugw("request failed", "method", msg.Method, "code", code, "corr_id", corrID)
		d.writeError(msg.ID, code, text, data)
		return
	}
	d.write(response{JSONRPC: "2.0", ID: msg.ID, Result: result})
}

func (d *Dispatcher) dispatch(ctx context.Context, msg *message) (any, error) {
	switch msg.Method {
	case string(mcp.MethodInitialize):
		return initializeResult{
			ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
			Capabilities:    serverCapabilities{},
			ServerInfo:      d.info,
		}, nil

	case string(mcp.MethodPing):
		return struct{}{}, nil

	case string(mcp.MethodResourcesList):
		listed, err := d.resources.List(ctx)
		if err != nil {
			return nil, err
		}
		return listResourcesResult{Resources: listed}, nil

	case string(mcp.MethodResourcesRead):
		var params readResourceParams
		if len(msg.Params) > 0 {
			if err := json.Unmarshal(msg.Params, &params); err != nil {
				return nil, &resources.ParseError{Reason: "params must be an object with a uri field"}
			}
		}
		if params.URI == "" {
			return nil, &resources.ParseError{Reason: "uri is required"}
		}
		content, err := d.resources.Read(ctx, params.URI)
		if err != nil {
			return nil, err
		}
		return readResourceResult{Contents: []*resources.Content{content}}, nil

	default:
		return nil, errMethodNotFound
	}
}

var errMethodNotFound = errors.New("method not found")

func (d *Dispatcher) writeError(id any, code int, text string, data errorData) {
	d.write(response{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &rpcError{Code: code, Message: text, Data: data},
	})
}

func (d *Dispatcher) write(resp response) {
	if err := d.framer.write(resp); err != nil {
		logger.Errorw("writing response", "error", err)
	}
}
