package validation

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"meridian/internal/shared/htngerr"
	"meridian/internal/shared/otaxml"
	"meridian/internal/shared/soapenv"
)

// SchemaValidator checks an OTA body against its message schema before it is
// sent or processed. Implementations must be safe for concurrent use.
type SchemaValidator interface {
	Validate(ctx context.Context, kind otaxml.MessageKind, payload []byte) error
}

// schemaTimeouts bounds the schema pass per message kind. Reservation bodies
// are the largest on the wire and get the widest window.
var schemaTimeouts = map[otaxml.MessageKind]time.Duration{
	otaxml.KindInventory:    10 * time.Second,
	otaxml.KindRates:        15 * time.Second,
	otaxml.KindReservation:  20 * time.Second,
	otaxml.KindRestrictions: 10 * time.Second,
	otaxml.KindGroupBlock:   5 * time.Second,
}

const defaultSchemaTimeout = 10 * time.Second

// DefaultSchemaCacheTTL is how long a compiled schema stays valid before it
// is rebuilt.
const DefaultSchemaCacheTTL = 3600 * time.Second

type compiledSchema struct {
	root       string
	compiledAt time.Time
}

// StructuralValidator is the built-in SchemaValidator. It verifies that the
// body is well formed, that the root element matches the kind's OTA root and
// carries the OTA namespace, and that the mandatory root attributes are
// present. Compiled per-kind descriptors are cached with a TTL and can be
// invalidated when property mappings change.
type StructuralValidator struct {
	ttl time.Duration

	mu    sync.RWMutex
	cache map[otaxml.MessageKind]compiledSchema
}

func NewStructuralValidator(ttl time.Duration) *StructuralValidator {
	if ttl <= 0 {
		ttl = DefaultSchemaCacheTTL
	}
	return &StructuralValidator{
		ttl:   ttl,
		cache: make(map[otaxml.MessageKind]compiledSchema),
	}
}

// Invalidate drops every compiled schema. Called when mapping configuration
// changes so the next validation recompiles.
func (v *StructuralValidator) Invalidate() {
	v.mu.Lock()
	v.cache = make(map[otaxml.MessageKind]compiledSchema)
	v.mu.Unlock()
}

func (v *StructuralValidator) schemaFor(kind otaxml.MessageKind) (compiledSchema, error) {
	v.mu.RLock()
	cached, ok := v.cache[kind]
	v.mu.RUnlock()
	if ok && time.Since(cached.compiledAt) < v.ttl {
		return cached, nil
	}

	root, ok := otaxml.RootFor(kind)
	if !ok {
		return compiledSchema{}, htngerr.New(htngerr.KindValidation, "VAL_SCHEMA", "no schema for message kind "+string(kind))
	}
	compiled := compiledSchema{root: root, compiledAt: time.Now()}

	v.mu.Lock()
	v.cache[kind] = compiled
	v.mu.Unlock()
	return compiled, nil
}

func (v *StructuralValidator) Validate(ctx context.Context, kind otaxml.MessageKind, payload []byte) error {
	timeout, ok := schemaTimeouts[kind]
	if !ok {
		timeout = defaultSchemaTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	schema, err := v.schemaFor(kind)
	if err != nil {
		return err
	}

	dec := xml.NewDecoder(bytes.NewReader(payload))
	var root *xml.StartElement
	depth := 0
	for {
		select {
		case <-ctx.Done():
			return htngerr.Wrap(htngerr.KindTimeout, "VAL_SCHEMA_TIMEOUT", "schema validation timed out", ctx.Err())
		default:
		}
		tok, err := dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) && depth == 0 && root != nil {
				break
			}
			return htngerr.Wrap(htngerr.KindValidation, "VAL_SCHEMA", "body is not well-formed XML", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if root == nil {
				copied := t.Copy()
				root = &copied
			}
			depth++
		case xml.EndElement:
			depth--
		}
	}
	if root == nil {
		return htngerr.New(htngerr.KindValidation, "VAL_SCHEMA", "body has no root element")
	}
	if root.Name.Local != schema.root {
		return htngerr.New(htngerr.KindValidation, "VAL_SCHEMA",
			"root element "+root.Name.Local+" does not match expected "+schema.root)
	}
	if root.Name.Space != soapenv.NSOTA {
		return htngerr.New(htngerr.KindValidation, "VAL_SCHEMA",
			"root element is not in the OTA namespace: "+root.Name.Space)
	}
	if attr(root, "TimeStamp") == "" {
		return htngerr.New(htngerr.KindValidation, "VAL_SCHEMA", "root element is missing the TimeStamp attribute")
	}
	if strings.TrimSpace(attr(root, "Version")) == "" {
		return htngerr.New(htngerr.KindValidation, "VAL_SCHEMA", "root element is missing the Version attribute")
	}
	return nil
}

func attr(el *xml.StartElement, name string) string {
	for _, a := range el.Attr {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}
