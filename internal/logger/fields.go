package logger

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Field keys shared by the router, the session registry and the LLM clients.
const (
	FieldProvider = "llm_provider"
	FieldModel    = "llm_model"
	FieldSession  = "session_id"
	FieldIntent   = "intent"
	FieldEntity   = "entity_type"
)

// stringField trims value and skips the field when nothing is left.
func stringField(key, value string) zap.Field {
	value = strings.TrimSpace(value)
	if value == "" {
		return zap.Skip()
	}
	return zap.String(key, value)
}

func Session(id string) zap.Field { return stringField(FieldSession, id) }

func Intent(label string) zap.Field { return stringField(FieldIntent, label) }

func Entity(entity string) zap.Field { return stringField(FieldEntity, entity) }

// ModelFields describes the backend answering a request. Blank values are
// left out.
func ModelFields(provider, model string) []zap.Field {
	fields := make([]zap.Field, 0, 2)
	for _, f := range []zap.Field{stringField(FieldProvider, provider), stringField(FieldModel, model)} {
		if f.Type != zapcore.SkipType {
			fields = append(fields, f)
		}
	}
	return fields
}

// WithModel attaches the backend fields. A nil logger becomes a no-op one.
func WithModel(log *zap.Logger, provider, model string) *zap.Logger {
	if log == nil {
		log = zap.NewNop()
	}
	fields := ModelFields(provider, model)
	if len(fields) == 0 {
		return log
	}
	return log.With(fields...)
}

// WithSession scopes a logger to one chat session.
func WithSession(log *zap.Logger, id string) *zap.Logger {
	if log == nil {
		log = zap.NewNop()
	}
	return log.With(Session(id))
}
