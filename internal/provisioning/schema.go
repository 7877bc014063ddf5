package provisioning

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/nerrad567/fiware-provisioner/internal/fiware"
	"github.com/nerrad567/fiware-provisioner/internal/infrastructure/config"
)

// Attribute types accepted in entity schemas.
const (
	TypeFloat   = "Float"
	TypeNumber  = "Number"
	TypeInteger = "Integer"
	TypeString  = "String"
	TypeBoolean = "Boolean"
)

// seedWidth is the digit count of the first identifier of a type.
const seedWidth = 8

// HealthStatusAttribute is added to every schema when the health status
// feature is enabled.
var HealthStatusAttribute = Attribute{ObjectID: "hs", Name: "health_status", Type: TypeString}

// Attribute is one measured attribute: the measure key on the wire, the
// entity attribute name (also the request field name) and its NGSI type.
type Attribute struct {
	ObjectID string
	Name     string
	Type     string
	Required bool
}

// EntitySchema describes how devices of one entity type are provisioned.
type EntitySchema struct {
	Type            string
	IDPrefix        string
	NamePrefix      string
	StaticAttribute string
	Attributes      []Attribute
}

// SeedID is the identifier of the first device of this type.
func (s EntitySchema) SeedID() DeviceID {
	return DeviceID{Prefix: s.IDPrefix, Value: 1, Width: seedWidth}
}

// EntityName is the context broker entity id for deviceID.
//
// Example: urn-ngsi:Mobile:Mobile00000001
func (s EntitySchema) EntityName(deviceID string) string {
	return s.NamePrefix + ":" + s.Type + ":" + deviceID
}

// IDPattern matches the entity ids of every device of this type. Entity
// ids are entity names, so the pattern anchors the name prefix and type
// ahead of the device id prefix.
//
// Example: ^urn-ngsi:Mobile:Mobile\d+$
func (s EntitySchema) IDPattern() string {
	return "^" + regexp.QuoteMeta(s.NamePrefix+":"+s.Type+":"+s.IDPrefix) + `\d+$`
}

// AttributeNames lists attribute names in declaration order.
func (s EntitySchema) AttributeNames() []string {
	names := make([]string, 0, len(s.Attributes))
	for _, a := range s.Attributes {
		names = append(names, a.Name)
	}
	return names
}

// DeviceAttributes renders the attribute list of a device record.
func (s EntitySchema) DeviceAttributes() []fiware.Attribute {
	attrs := make([]fiware.Attribute, 0, len(s.Attributes))
	for _, a := range s.Attributes {
		attrs = append(attrs, fiware.Attribute{ObjectID: a.ObjectID, Name: a.Name, Type: a.Type})
	}
	return attrs
}

func (s EntitySchema) validate() error {
	fail := func(format string, args ...any) error {
		return &ConfigError{EntityType: s.Type, Problem: fmt.Sprintf(format, args...)}
	}

	if s.Type == "" {
		return &ConfigError{Problem: "entity type name is empty"}
	}
	if s.IDPrefix == "" {
		return fail("id_prefix is empty")
	}
	if strings.ContainsAny(s.IDPrefix[len(s.IDPrefix)-1:], "0123456789") {
		return fail("id_prefix %q must not end in a digit", s.IDPrefix)
	}
	if s.NamePrefix == "" {
		return fail("name_prefix is empty")
	}
	if s.StaticAttribute == "" {
		return fail("static_attribute is empty")
	}
	if len(s.Attributes) == 0 {
		return fail("no attributes declared")
	}

	objectIDs := make(map[string]struct{}, len(s.Attributes))
	names := make(map[string]struct{}, len(s.Attributes))
	for _, a := range s.Attributes {
		if a.ObjectID == "" || a.Name == "" {
			return fail("attribute with empty object_id or name")
		}
		if _, dup := objectIDs[a.ObjectID]; dup {
			return fail("duplicate object_id %q", a.ObjectID)
		}
		if _, dup := names[a.Name]; dup {
			return fail("duplicate attribute name %q", a.Name)
		}
		if a.Name == "id" {
			return fail("attribute name %q is reserved for the external id", a.Name)
		}
		switch a.Type {
		case TypeFloat, TypeNumber, TypeInteger, TypeString, TypeBoolean:
		default:
			return fail("attribute %q has unsupported type %q", a.Name, a.Type)
		}
		objectIDs[a.ObjectID] = struct{}{}
		names[a.Name] = struct{}{}
	}
	return nil
}

// Schemas is the registry of entity types the provisioner can create.
// It is immutable once built.
type Schemas struct {
	byType map[string]EntitySchema
}

// NewSchemas validates and indexes schemas.
func NewSchemas(schemas ...EntitySchema) (*Schemas, error) {
	reg := &Schemas{byType: make(map[string]EntitySchema, len(schemas))}
	for _, s := range schemas {
		if err := s.validate(); err != nil {
			return nil, err
		}
		if _, dup := reg.byType[s.Type]; dup {
			return nil, &ConfigError{EntityType: s.Type, Problem: "declared more than once"}
		}
		reg.byType[s.Type] = s
	}
	return reg, nil
}

// SchemasFromConfig builds the registry from the entity_types section. With
// healthStatus set, every schema gains HealthStatusAttribute.
func SchemasFromConfig(types []config.EntityTypeConfig, healthStatus bool) (*Schemas, error) {
	schemas := make([]EntitySchema, 0, len(types))
	for _, t := range types {
		s := EntitySchema{
			Type:            t.Name,
			IDPrefix:        t.IDPrefix,
			NamePrefix:      t.NamePrefix,
			StaticAttribute: t.StaticAttribute,
		}
		for _, a := range t.Attributes {
			s.Attributes = append(s.Attributes, Attribute{
				ObjectID: a.ObjectID,
				Name:     a.Name,
				Type:     a.Type,
				Required: a.Required,
			})
		}
		if healthStatus && !s.hasAttribute(HealthStatusAttribute.Name) {
			s.Attributes = append(s.Attributes, HealthStatusAttribute)
		}
		schemas = append(schemas, s)
	}
	return NewSchemas(schemas...)
}

func (s EntitySchema) hasAttribute(name string) bool {
	for _, a := range s.Attributes {
		if a.Name == name {
			return true
		}
	}
	return false
}

// Lookup returns the schema for entityType, or a ConfigError wrapping
// ErrUnknownEntityType.
func (r *Schemas) Lookup(entityType string) (EntitySchema, error) {
	s, ok := r.byType[entityType]
	if !ok {
		return EntitySchema{}, &ConfigError{
			EntityType: entityType,
			Problem:    "no schema registered",
			Err:        ErrUnknownEntityType,
		}
	}
	return s, nil
}

// Types lists the registered entity types in sorted order.
func (r *Schemas) Types() []string {
	types := make([]string, 0, len(r.byType))
	for t := range r.byType {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
