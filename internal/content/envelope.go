package content

import (
	"bytes"
	"encoding/json"
	"errors"

	"github.com/mmcdole/catalog/internal/domain"
)

type containerKind int

const (
	kindList containerKind = iota
	kindObject
)

// envelope is the response contract of one resource: the payload lives under
// field and must be of kind. A missing or null list decodes as empty; a
// missing object is malformed.
type envelope struct {
	field string
	kind  containerKind
}

func listOf(entity domain.EntityType) envelope { return envelope{field: string(entity), kind: kindList} }
func itemOf(entity domain.EntityType) envelope { return envelope{field: string(entity), kind: kindObject} }

var errNotObject = errors.New("body is not a json object")

func decodeEnvelope[T any](body []byte, env envelope) (T, error) {
	var out T

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return out, domain.MalformedError(env.field, err)
	}
	if fields == nil {
		return out, domain.MalformedError(env.field, errNotObject)
	}

	raw := bytes.TrimSpace(fields[env.field])
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		if env.kind == kindObject {
			return out, domain.MalformedError(env.field, errors.New("field missing"))
		}
		raw = []byte("[]")
	}

	switch {
	case env.kind == kindList && raw[0] != '[':
		return out, domain.MalformedError(env.field, errors.New("expected a list"))
	case env.kind == kindObject && raw[0] != '{':
		return out, domain.MalformedError(env.field, errors.New("expected an object"))
	}

	if err := json.Unmarshal(raw, &out); err != nil {
		return out, domain.MalformedError(env.field, err)
	}
	return out, nil
}
