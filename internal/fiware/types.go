package fiware

// ServiceGroup is an IoT Agent device group ("service") binding an API key
// and resource path to an entity type.
type ServiceGroup struct {
	APIKey     string `json:"apikey"`
	CBroker    string `json:"cbroker,omitempty"`
	EntityType string `json:"entity_type"`
	Resource   string `json:"resource"`
}

// Device is an IoT Agent device provisioning record.
type Device struct {
	DeviceID         string            `json:"device_id"`
	EntityName       string            `json:"entity_name,omitempty"`
	EntityType       string            `json:"entity_type,omitempty"`
	Protocol         string            `json:"protocol,omitempty"`
	Transport        string            `json:"transport,omitempty"`
	Attributes       []Attribute       `json:"attributes,omitempty"`
	StaticAttributes []StaticAttribute `json:"static_attributes,omitempty"`
}

// Attribute maps a measure key (object_id) onto an entity attribute.
type Attribute struct {
	ObjectID string `json:"object_id"`
	Name     string `json:"name"`
	Type     string `json:"type"`
}

// StaticAttribute is copied onto the entity unchanged.
type StaticAttribute struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Value any    `json:"value"`
}

// Measure is the body of a southbound JSON measure, keyed by object_id.
type Measure map[string]any

// Subscription is an NGSI v2 subscription as accepted and returned by Orion.
type Subscription struct {
	ID           string       `json:"id,omitempty"`
	Description  string       `json:"description,omitempty"`
	Subject      Subject      `json:"subject"`
	Notification Notification `json:"notification"`
	Throttling   int          `json:"throttling,omitempty"`
	Status       string       `json:"status,omitempty"`
}

// Subject selects the entities and attribute changes a subscription fires on.
type Subject struct {
	Entities  []EntitySelector `json:"entities"`
	Condition Condition        `json:"condition"`
}

// EntitySelector matches entities by id, id pattern and type.
type EntitySelector struct {
	ID        string `json:"id,omitempty"`
	IDPattern string `json:"idPattern,omitempty"`
	Type      string `json:"type,omitempty"`
}

// Condition lists the attributes whose change triggers a notification.
type Condition struct {
	Attrs []string `json:"attrs,omitempty"`
}

// Notification describes what is sent and where.
type Notification struct {
	Attrs []string          `json:"attrs,omitempty"`
	HTTP  *HTTPNotification `json:"http,omitempty"`
}

// HTTPNotification is a plain HTTP notification endpoint.
type HTTPNotification struct {
	URL string `json:"url"`
}

// TargetsType reports whether any entity selector of s names entityType.
func (s Subscription) TargetsType(entityType string) bool {
	for _, e := range s.Subject.Entities {
		if e.Type == entityType {
			return true
		}
	}
	return false
}
