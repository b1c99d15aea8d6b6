package flowstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/c360/semflow/errors"
)

// Document keys.
const (
	KeyFlows       = "flows"
	KeyCredentials = "credentials"
	KeySettings    = "settings"
)

// Store is the storage collaborator behind the editor's get/save calls.
// Getters return a default document when nothing has been saved yet.
type Store interface {
	GetFlows(ctx context.Context) (json.RawMessage, error)
	SaveFlows(ctx context.Context, flows json.RawMessage) error
	GetCredentials(ctx context.Context) (json.RawMessage, error)
	SaveCredentials(ctx context.Context, creds json.RawMessage) error
	GetSettings(ctx context.Context) (json.RawMessage, error)
	SaveSettings(ctx context.Context, settings json.RawMessage) error
}

// documents implements Store on top of a raw get/put pair.
type documents struct {
	component string
	get       func(ctx context.Context, key string) ([]byte, bool, error)
	put       func(ctx context.Context, key string, value []byte) error
}

func defaultDocument(key string) json.RawMessage {
	if key == KeyFlows {
		return json.RawMessage(`[]`)
	}
	return json.RawMessage(`{}`)
}

func (d documents) load(ctx context.Context, method, key string) (json.RawMessage, error) {
	data, ok, err := d.get(ctx, key)
	if err != nil {
		return nil, errors.WrapTransient(err, d.component, method, "read "+key)
	}
	if !ok {
		return defaultDocument(key), nil
	}
	return json.RawMessage(data), nil
}

func (d documents) save(ctx context.Context, method, key string, doc json.RawMessage) error {
	if err := validateDocument(key, doc); err != nil {
		return errors.WrapInvalid(err, d.component, method, "validate "+key)
	}
	if err := d.put(ctx, key, doc); err != nil {
		return errors.WrapTransient(err, d.component, method, "write "+key)
	}
	return nil
}

// validateDocument checks the document is JSON of the expected shape:
// an array for flows, an object otherwise.
func validateDocument(key string, doc json.RawMessage) error {
	if !json.Valid(doc) {
		return fmt.Errorf("%w: %s is not valid JSON", errors.ErrInvalidData, key)
	}
	var probe any
	if err := json.Unmarshal(doc, &probe); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrParsingFailed, err)
	}
	switch probe.(type) {
	case []any:
		if key == KeyFlows {
			return nil
		}
	case map[string]any:
		if key != KeyFlows {
			return nil
		}
	}
	return fmt.Errorf("%w: unexpected shape for %s", errors.ErrInvalidData, key)
}

func (d documents) GetFlows(ctx context.Context) (json.RawMessage, error) {
	return d.load(ctx, "GetFlows", KeyFlows)
}

func (d documents) SaveFlows(ctx context.Context, flows json.RawMessage) error {
	return d.save(ctx, "SaveFlows", KeyFlows, flows)
}

func (d documents) GetCredentials(ctx context.Context) (json.RawMessage, error) {
	return d.load(ctx, "GetCredentials", KeyCredentials)
}

func (d documents) SaveCredentials(ctx context.Context, creds json.RawMessage) error {
	return d.save(ctx, "SaveCredentials", KeyCredentials, creds)
}

func (d documents) GetSettings(ctx context.Context) (json.RawMessage, error) {
	return d.load(ctx, "GetSettings", KeySettings)
}

func (d documents) SaveSettings(ctx context.Context, settings json.RawMessage) error {
	return d.save(ctx, "SaveSettings", KeySettings, settings)
}
