package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

const chatRequestSchema = `{
  "type": "object",
  "required": ["message"],
  "properties": {
    "message": {"type": "string", "minLength": 1},
    "sessionId": {"type": "string"},
    "messageId": {"type": "string"},
    "workspaceRoot": {"type": "string"},
    "model": {"type": "string"},
    "responseMode": {"type": "string"}
  }
}`

const cancelRequestSchema = `{
  "type": "object",
  "required": ["requestId"],
  "properties": {
    "requestId": {"type": "string", "minLength": 1}
  }
}`

const historyRequestSchema = `{
  "type": "object",
  "required": ["sessionId"],
  "properties": {
    "sessionId": {"type": "string", "minLength": 1},
    "limit": {"type": "integer", "minimum": 0},
    "offset": {"type": "integer", "minimum": 0}
  }
}`

const createSessionRequestSchema = `{
  "type": "object",
  "properties": {
    "userId": {"type": "string"},
    "workspaceRoot": {"type": "string"},
    "model": {"type": "string"},
    "metadata": {"type": "object"}
  }
}`

const rebindRequestSchema = `{
  "type": "object",
  "required": ["workspaceRoot"],
  "properties": {
    "workspaceRoot": {"type": "string", "minLength": 1}
  }
}`

const fileReadRequestSchema = `{
  "type": "object",
  "required": ["sessionId", "path"],
  "properties": {
    "sessionId": {"type": "string", "minLength": 1},
    "path": {"type": "string", "minLength": 1},
    "offset": {"type": "integer", "minimum": 0},
    "limit": {"type": "integer", "minimum": 0}
  }
}`

const fileListRequestSchema = `{
  "type": "object",
  "required": ["sessionId"],
  "properties": {
    "sessionId": {"type": "string", "minLength": 1},
    "path": {"type": "string"},
    "showHidden": {"type": "boolean"}
  }
}`

const fileSearchRequestSchema = `{
  "type": "object",
  "required": ["sessionId", "pattern"],
  "properties": {
    "sessionId": {"type": "string", "minLength": 1},
    "pattern": {"type": "string", "minLength": 1},
    "path": {"type": "string"},
    "include": {"type": "string"},
    "maxMatches": {"type": "integer", "minimum": 0}
  }
}`

const commandListRequestSchema = `{
  "type": "object",
  "required": ["sessionId"],
  "properties": {
    "sessionId": {"type": "string", "minLength": 1}
  }
}`

const commandExecuteRequestSchema = `{
  "type": "object",
  "required": ["sessionId", "command"],
  "properties": {
    "sessionId": {"type": "string", "minLength": 1},
    "command": {"type": "string", "minLength": 1},
    "args": {"type": "string"}
  }
}`

const commandHelpRequestSchema = `{
  "type": "object",
  "required": ["sessionId"],
  "properties": {
    "sessionId": {"type": "string", "minLength": 1},
    "command": {"type": "string"}
  }
}`

// Request body schema names.
const (
	schemaChat           = "chat"
	schemaCancel         = "cancel"
	schemaHistory        = "history"
	schemaCreateSession  = "create_session"
	schemaRebind         = "rebind"
	schemaFileRead       = "file_read"
	schemaFileList       = "file_list"
	schemaFileSearch     = "file_search"
	schemaCommandList    = "command_list"
	schemaCommandExecute = "command_execute"
	schemaCommandHelp    = "command_help"
)

type schemaRegistry struct {
	once    sync.Once
	initErr error
	schemas map[string]*jsonschema.Schema
}

var requestSchemas schemaRegistry

func initRequestSchemas() error {
	requestSchemas.once.Do(func() {
		sources := map[string]string{
			schemaChat:           chatRequestSchema,
			schemaCancel:         cancelRequestSchema,
			schemaHistory:        historyRequestSchema,
			schemaCreateSession:  createSessionRequestSchema,
			schemaRebind:         rebindRequestSchema,
			schemaFileRead:       fileReadRequestSchema,
			schemaFileList:       fileListRequestSchema,
			schemaFileSearch:     fileSearchRequestSchema,
			schemaCommandList:    commandListRequestSchema,
			schemaCommandExecute: commandExecuteRequestSchema,
			schemaCommandHelp:    commandHelpRequestSchema,
		}
		requestSchemas.schemas = make(map[string]*jsonschema.Schema, len(sources))
		for name, src := range sources {
			compiled, err := jsonschema.CompileString("request_"+name+".json", src)
			if err != nil {
				requestSchemas.initErr = fmt.Errorf("compile %s schema: %w", name, err)
				return
			}
			requestSchemas.schemas[name] = compiled
		}
	})
	return requestSchemas.initErr
}

// validationError is a request body that failed to parse or validate.
type validationError struct {
	cause error
}

func (e *validationError) Error() string { return e.cause.Error() }
func (e *validationError) Unwrap() error { return e.cause }

// decodeBody reads a JSON body, validates it against the named schema and
// decodes it into out. Parse and validation failures are *validationError.
func decodeBody(r *http.Request, schemaName string, out any) error {
	if err := initRequestSchemas(); err != nil {
		return err
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return &validationError{cause: fmt.Errorf("read body: %w", err)}
	}
	if len(raw) > maxBodyBytes {
		return &validationError{cause: errors.New("request body too large")}
	}
	if len(raw) == 0 {
		raw = []byte("{}")
	}

	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return &validationError{cause: fmt.Errorf("invalid JSON: %w", err)}
	}
	if schema := requestSchemas.schemas[schemaName]; schema != nil {
		if err := schema.Validate(payload); err != nil {
			return &validationError{cause: err}
		}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &validationError{cause: fmt.Errorf("invalid request: %w", err)}
	}
	return nil
}
